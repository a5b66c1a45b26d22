package shared

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Account  AccountConfig  `toml:"account"`
	Upload   UploadConfig   `toml:"upload"`
	Playback PlaybackConfig `toml:"playback"`
	Download DownloadConfig `toml:"download"`
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig points the client at the separation backend.
type ServerConfig struct {
	BaseURL string `toml:"base_url"`
}

// AccountConfig holds the destination identity tracks are filed under.
type AccountConfig struct {
	Email string `toml:"email"`
}

// UploadConfig contains upload and progress settings.
type UploadConfig struct {
	KeepFile           bool `toml:"keep_file"`
	ProcessingFloor    int  `toml:"processing_floor"`     // Displayed percent once the upload has finished
	ProgressIntervalMs int  `toml:"progress_interval_ms"` // Minimum gap between transfer progress events
}

// PlaybackConfig contains audio output settings.
type PlaybackConfig struct {
	CacheDir   string `toml:"cache_dir"`
	SampleRate int    `toml:"sample_rate"`
	BufferMs   int    `toml:"buffer_ms"`
}

// DownloadConfig contains bulk download settings.
type DownloadConfig struct {
	OutputDir string  `toml:"output_dir"`
	Workers   int     `toml:"workers"`
	RateLimit float64 `toml:"rate_limit"` // Requests per second
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// ProgressInterval returns the configured progress interval as a [time.Duration].
func (c UploadConfig) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalMs) * time.Millisecond
}

// BufferDuration returns the configured output buffer as a [time.Duration].
func (c PlaybackConfig) BufferDuration() time.Duration {
	return time.Duration(c.BufferMs) * time.Millisecond
}

// Validate checks the values the client cannot run without.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: server.base_url %q is not an absolute URL", ErrInvalidConfig, c.Server.BaseURL)
	}
	if c.Upload.ProcessingFloor < 0 || c.Upload.ProcessingFloor > 100 {
		return fmt.Errorf("%w: upload.processing_floor must be within 0-100, got %d", ErrInvalidConfig, c.Upload.ProcessingFloor)
	}
	if c.Playback.SampleRate <= 0 {
		return fmt.Errorf("%w: playback.sample_rate must be positive", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
