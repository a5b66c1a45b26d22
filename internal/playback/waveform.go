package playback

import (
	"math"
	"sync"

	"github.com/gopxl/beep/v2"
)

// DefaultBars is the number of levels a [Waveform] keeps.
const DefaultBars = 32

// Waveform passes audio through unchanged while recording the RMS level of each block.
//
// Stream runs on the output goroutine; Levels may be called from anywhere.
type Waveform struct {
	src beep.Streamer

	mu       sync.Mutex
	levels   []float64
	next     int
	filled   bool
	detached bool
}

// NewWaveform taps src, keeping the most recent bars levels.
func NewWaveform(src beep.Streamer, bars int) *Waveform {
	if bars <= 0 {
		bars = DefaultBars
	}
	return &Waveform{src: src, levels: make([]float64, bars)}
}

// Stream implements [beep.Streamer].
func (w *Waveform) Stream(samples [][2]float64) (int, bool) {
	n, ok := w.src.Stream(samples)
	if n == 0 {
		return n, ok
	}

	var sum float64
	for _, s := range samples[:n] {
		sum += (s[0]*s[0] + s[1]*s[1]) / 2
	}
	rms := math.Sqrt(sum / float64(n))

	w.mu.Lock()
	if !w.detached {
		w.levels[w.next] = math.Min(rms, 1)
		w.next = (w.next + 1) % len(w.levels)
		if w.next == 0 {
			w.filled = true
		}
	}
	w.mu.Unlock()
	return n, ok
}

// Err implements [beep.Streamer].
func (w *Waveform) Err() error {
	return w.src.Err()
}

// Levels returns recorded levels, oldest first, each in [0, 1].
func (w *Waveform) Levels() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.detached {
		return nil
	}
	if !w.filled {
		return append([]float64(nil), w.levels[:w.next]...)
	}
	out := make([]float64, 0, len(w.levels))
	out = append(out, w.levels[w.next:]...)
	out = append(out, w.levels[:w.next]...)
	return out
}

// Detach stops recording and drops the history.
func (w *Waveform) Detach() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.detached = true
	w.levels = make([]float64, len(w.levels))
	w.next = 0
	w.filled = false
}
