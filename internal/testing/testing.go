// package testing contains shared testing utilities
package testing

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
)

// Recorder is a dispatcher that keeps every message it receives, in order.
type Recorder struct {
	mu   sync.Mutex
	msgs []any
}

func (r *Recorder) Dispatch(msg any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// Reset drops all recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}

// WaitFor polls until pred holds for the recorded messages or the timeout elapses.
func (r *Recorder) WaitFor(t *testing.T, timeout time.Duration, pred func([]any) bool) []any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		msgs := r.Messages()
		if pred(msgs) {
			return msgs
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for messages, have %d: %#v", len(msgs), msgs)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

// WriteTempFile writes content to name inside a fresh temp dir and returns the path.
func WriteTempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

// Device is an audio output that accepts streams without rendering them.
type Device struct {
	mu      sync.Mutex
	Current beep.Streamer
	Plays   int
	Stops   int
	PlayErr error
}

func (d *Device) Play(format beep.Format, s beep.Streamer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.PlayErr != nil {
		return d.PlayErr
	}
	d.Current = s
	d.Plays++
	return nil
}

func (d *Device) Lock()   { d.mu.Lock() }
func (d *Device) Unlock() { d.mu.Unlock() }

func (d *Device) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Current = nil
	d.Stops++
}

// Render pulls n samples from the current stream as an output would.
func (d *Device) Render(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Current == nil {
		return
	}
	buf := make([][2]float64, n)
	d.Current.Stream(buf)
}

// Tone is a seekable constant-level stream of N samples.
type Tone struct {
	mu    sync.Mutex
	Level float64
	N     int
	pos   int
}

func (s *Tone) Stream(samples [][2]float64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= s.N {
		return 0, false
	}
	count := min(len(samples), s.N-s.pos)
	for i := range count {
		samples[i] = [2]float64{s.Level, s.Level}
	}
	s.pos += count
	return count, true
}

func (s *Tone) Err() error   { return nil }
func (s *Tone) Len() int     { return s.N }
func (s *Tone) Close() error { return nil }

func (s *Tone) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *Tone) Seek(p int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = p
	return nil
}
