// Package device drives the system audio output through beep's speaker.
package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/desertthunder/strume/internal/shared"
)

// resampleQuality trades CPU for fidelity when a track's rate differs from the output's.
const resampleQuality = 4

// Speaker is the process-wide audio output. The hardware is opened on first Play.
type Speaker struct {
	rate   beep.SampleRate
	buffer time.Duration

	mu     sync.Mutex
	opened bool
}

// NewSpeaker creates an output running at sampleRate with the given buffer length.
func NewSpeaker(sampleRate int, buffer time.Duration) *Speaker {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	if buffer <= 0 {
		buffer = 100 * time.Millisecond
	}
	return &Speaker{rate: beep.SampleRate(sampleRate), buffer: buffer}
}

// Play replaces the current output with s, resampling to the output rate when needed.
func (s *Speaker) Play(format beep.Format, streamer beep.Streamer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		if err := speaker.Init(s.rate, s.rate.N(s.buffer)); err != nil {
			return fmt.Errorf("%w: failed to open audio output: %v", shared.ErrPlaybackBlocked, err)
		}
		s.opened = true
	}

	if format.SampleRate != s.rate {
		streamer = beep.Resample(resampleQuality, format.SampleRate, s.rate, streamer)
	}

	speaker.Clear()
	speaker.Play(streamer)
	return nil
}

// Lock blocks the output goroutine so streamer state can be changed safely.
func (s *Speaker) Lock() {
	if s.isOpen() {
		speaker.Lock()
	}
}

// Unlock releases [Speaker.Lock].
func (s *Speaker) Unlock() {
	if s.isOpen() {
		speaker.Unlock()
	}
}

// Stop drops whatever is playing.
func (s *Speaker) Stop() {
	if s.isOpen() {
		speaker.Clear()
	}
}

// Close shuts the hardware output down.
func (s *Speaker) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		speaker.Close()
		s.opened = false
	}
}

func (s *Speaker) isOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}
