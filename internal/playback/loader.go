package playback

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/strume/internal/models"
	"github.com/desertthunder/strume/internal/shared"
)

// Loader resolves a track to an open [Media].
type Loader interface {
	Load(ctx context.Context, track models.Track) (*Media, error)
}

// Downloader fetches a track's audio.
type Downloader interface {
	Download(ctx context.Context, track models.Track, w io.Writer) (int64, error)
}

// CacheLoader downloads tracks into a local cache directory and decodes them from there.
//
// A track whose Filename is an existing local path and which has no download URL is
// decoded in place.
type CacheLoader struct {
	dl     Downloader
	dir    string
	logger *log.Logger

	// OnCached, if set, is called after a track lands in the cache.
	OnCached func(track models.Track, path string)
}

// NewCacheLoader creates a loader caching into dir.
func NewCacheLoader(dl Downloader, dir string, logger *log.Logger) *CacheLoader {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &CacheLoader{dl: dl, dir: dir, logger: logger}
}

// Load returns the decoded track, downloading it first unless already cached.
func (l *CacheLoader) Load(ctx context.Context, track models.Track) (*Media, error) {
	if track.DownloadURL == "" && track.Filename != "" {
		if info, err := os.Stat(track.Filename); err == nil && info.Mode().IsRegular() {
			return Open(track.Filename)
		}
	}

	path, err := l.fetch(ctx, track)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Open(path)
}

// CachePath is where track is stored in the cache.
func (l *CacheLoader) CachePath(track models.Track) string {
	name := filepath.Base(track.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = shared.GenerateID() + ".wav"
	}
	return filepath.Join(l.dir, name)
}

func (l *CacheLoader) fetch(ctx context.Context, track models.Track) (string, error) {
	path := l.CachePath(track)
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		l.logger.Debug("cache hit", "track", track.Filename, "path", path)
		return path, nil
	}

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return "", fmt.Errorf("%w: failed to create cache directory: %v", shared.ErrPlayback, err)
	}

	tmp, err := os.CreateTemp(l.dir, ".track-*")
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrPlayback, err)
	}
	defer os.Remove(tmp.Name())

	n, err := l.dl.Download(ctx, track, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrPlayback, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrPlayback, err)
	}

	l.logger.Debug("cached track", "track", track.Filename, "bytes", n, "path", path)
	if l.OnCached != nil {
		l.OnCached(track, path)
	}
	return path, nil
}
