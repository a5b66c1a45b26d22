package playback

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"

	"github.com/desertthunder/strume/internal/models"
	"github.com/desertthunder/strume/internal/shared"
	tu "github.com/desertthunder/strume/internal/testing"
)

// wavBytes encodes n samples of silence at 8kHz.
func wavBytes(t *testing.T, n int) []byte {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "*.wav")
	if err != nil {
		t.Fatalf("CreateTemp() error = %v", err)
	}
	defer f.Close()

	if err := wav.Encode(f, beep.Silence(n), testFormat); err != nil {
		t.Fatalf("wav.Encode() error = %v", err)
	}
	return []byte(tu.MustReadFile(t, f.Name()))
}

type bytesDownloader struct {
	data  []byte
	calls int
	err   error
}

func (d *bytesDownloader) Download(ctx context.Context, tr models.Track, w io.Writer) (int64, error) {
	d.calls++
	if d.err != nil {
		return 0, d.err
	}
	n, err := io.Copy(w, bytes.NewReader(d.data))
	return n, err
}

func TestOpen(t *testing.T) {
	t.Run("Decodes WAV", func(t *testing.T) {
		path := tu.WriteTempFile(t, "tone.wav", wavBytes(t, 8000))

		m, err := Open(path)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer m.Close()

		if m.Format.SampleRate != testFormat.SampleRate {
			t.Errorf("expected sample rate %d, got %d", testFormat.SampleRate, m.Format.SampleRate)
		}
		if m.Duration() != time.Second {
			t.Errorf("expected 1s, got %v", m.Duration())
		}
		if err := m.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
		m.Close()
	})

	t.Run("Rejects Garbage", func(t *testing.T) {
		path := tu.WriteTempFile(t, "noise.mp3", []byte("definitely not audio"))

		if _, err := Open(path); !errors.Is(err, shared.ErrPlayback) {
			t.Errorf("expected ErrPlayback, got %v", err)
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		if _, err := Open("/no/such/file.wav"); !errors.Is(err, shared.ErrPlayback) {
			t.Errorf("expected ErrPlayback, got %v", err)
		}
	})
}

func TestCacheLoader(t *testing.T) {
	data := wavBytes(t, 4000)
	tr := models.Track{Filename: "song.wav", DownloadURL: "http://x/download?file=song.wav"}

	t.Run("Downloads Once", func(t *testing.T) {
		dir := t.TempDir()
		dl := &bytesDownloader{data: data}
		loader := NewCacheLoader(dl, filepath.Join(dir, "cache"), nil)

		var cached string
		loader.OnCached = func(_ models.Track, path string) { cached = path }

		for range 2 {
			m, err := loader.Load(context.Background(), tr)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			m.Close()
		}

		if dl.calls != 1 {
			t.Errorf("expected one download, got %d", dl.calls)
		}
		if cached != loader.CachePath(tr) {
			t.Errorf("expected OnCached with %s, got %s", loader.CachePath(tr), cached)
		}
		tu.AssertFileExists(t, cached)
	})

	t.Run("Local File", func(t *testing.T) {
		path := tu.WriteTempFile(t, "local.wav", data)
		dl := &bytesDownloader{}

		m, err := NewCacheLoader(dl, t.TempDir(), nil).Load(context.Background(), models.Track{Filename: path})
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		m.Close()

		if dl.calls != 0 {
			t.Error("local files must not be downloaded")
		}
	})

	t.Run("Download Failure", func(t *testing.T) {
		dir := t.TempDir()
		dl := &bytesDownloader{err: shared.ErrTrackNotFound}

		_, err := NewCacheLoader(dl, dir, nil).Load(context.Background(), tr)
		if !errors.Is(err, shared.ErrPlayback) || !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrPlayback wrapping ErrTrackNotFound, got %v", err)
		}

		entries, _ := os.ReadDir(dir)
		if len(entries) != 0 {
			t.Errorf("expected no partial files, got %d", len(entries))
		}
	})
}
