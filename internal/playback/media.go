package playback

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"

	"github.com/desertthunder/strume/internal/shared"
)

// Media is an open decoder and the file behind it.
type Media struct {
	Stream beep.StreamSeekCloser
	Format beep.Format

	closer io.Closer
	once   sync.Once
	err    error
}

// NewMedia wraps a decoded stream. closer, if non-nil, is closed after the stream.
func NewMedia(stream beep.StreamSeekCloser, format beep.Format, closer io.Closer) *Media {
	return &Media{Stream: stream, Format: format, closer: closer}
}

// Close releases the decoder and its source. Safe to call more than once.
func (m *Media) Close() error {
	m.once.Do(func() {
		var errs []error
		if m.Stream != nil {
			errs = append(errs, m.Stream.Close())
		}
		if m.closer != nil {
			if err := m.closer.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				errs = append(errs, err)
			}
		}
		m.err = errors.Join(errs...)
	})
	return m.err
}

// Duration is the total length of the stream.
func (m *Media) Duration() time.Duration {
	return m.Format.SampleRate.D(m.Stream.Len())
}

// Open decodes the audio file at path, choosing the decoder by extension.
// Files without a known extension are tried as WAV, which is what the backend produces.
func Open(path string) (*Media, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrPlayback, err)
	}

	var (
		stream beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		stream, format, err = mp3.Decode(f)
	case ".flac":
		stream, format, err = flac.Decode(f)
	default:
		stream, format, err = wav.Decode(f)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: failed to decode %s: %v", shared.ErrPlayback, filepath.Base(path), err)
	}

	return NewMedia(stream, format, f), nil
}
