package playback

import (
	"fmt"
	"sync/atomic"

	"github.com/gopxl/beep/v2"

	"github.com/desertthunder/strume/internal/loop"
	"github.com/desertthunder/strume/internal/models"
	"github.com/desertthunder/strume/internal/shared"
)

// Device is the audio output. One device is shared by every resource.
type Device interface {
	// Play replaces whatever is playing with s.
	Play(format beep.Format, s beep.Streamer) error
	// Lock and Unlock guard streamer state against the output goroutine.
	Lock()
	Unlock()
	// Stop silences the output and drops the current streamer.
	Stop()
}

var liveResources atomic.Int32

// LiveResources is the number of resources created and not yet destroyed in the process.
func LiveResources() int {
	return int(liveResources.Load())
}

// Resource owns one decoder and the waveform tap bound to it.
type Resource struct {
	id     uint64
	track  models.Track
	state  State
	err    error
	alive  bool
	device Device
	bars   int

	// wantPlay is the pending play intent applied once loading completes.
	wantPlay bool

	media *Media
	wave  *Waveform
	ctrl  *beep.Ctrl
}

func newResource(id uint64, track models.Track, device Device, bars int, autoplay bool) *Resource {
	liveResources.Add(1)
	return &Resource{
		id:       id,
		track:    track,
		state:    Loading,
		alive:    true,
		device:   device,
		bars:     bars,
		wantPlay: autoplay,
	}
}

// attach takes ownership of m and hands it to the device paused.
func (r *Resource) attach(m *Media, dispatch loop.Dispatcher) error {
	r.media = m
	r.wave = NewWaveform(m.Stream, r.bars)
	if err := r.start(dispatch, true); err != nil {
		return err
	}
	r.state = Ready
	return nil
}

// start builds a fresh output chain from the decoder's current position.
func (r *Resource) start(dispatch loop.Dispatcher, paused bool) error {
	id := r.id
	r.ctrl = &beep.Ctrl{Streamer: r.wave, Paused: paused}
	chain := beep.Seq(r.ctrl, beep.Callback(func() {
		// Runs under the device lock on the output goroutine.
		go dispatch.Dispatch(EndedMsg{ResourceID: id})
	}))

	if err := r.device.Play(r.media.Format, chain); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrPlaybackBlocked, err)
	}
	return nil
}

func (r *Resource) setPaused(paused bool) {
	r.device.Lock()
	r.ctrl.Paused = paused
	r.device.Unlock()
}

func (r *Resource) play() {
	r.setPaused(false)
	r.state = Playing
}

func (r *Resource) pause() {
	r.setPaused(true)
	r.state = Paused
}

// restart rewinds an ended resource and plays it again.
func (r *Resource) restart(dispatch loop.Dispatcher) error {
	r.device.Lock()
	err := r.media.Stream.Seek(0)
	r.device.Unlock()
	if err != nil {
		return fmt.Errorf("%w: failed to rewind: %v", shared.ErrPlayback, err)
	}
	if err := r.start(dispatch, false); err != nil {
		return err
	}
	r.state = Playing
	return nil
}

func (r *Resource) fail(err error) {
	r.state = Errored
	r.err = err
}

// destroy stops output, detaches the waveform and releases the decoder, in that order.
// Safe to call repeatedly and while loading.
func (r *Resource) destroy() {
	if !r.alive {
		return
	}
	r.alive = false
	liveResources.Add(-1)

	if r.ctrl != nil {
		r.device.Stop()
		r.ctrl = nil
	}
	if r.wave != nil {
		r.wave.Detach()
	}
	if r.media != nil {
		r.media.Close()
		r.media = nil
	}
}

func (r *Resource) snapshot() Snapshot {
	s := Snapshot{ResourceID: r.id, Track: r.track, State: r.state, Err: r.err}
	if r.media != nil {
		r.device.Lock()
		s.Position = r.media.Format.SampleRate.D(r.media.Stream.Position())
		r.device.Unlock()
		s.Duration = r.media.Duration()
	}
	return s
}

func (r *Resource) levels() []float64 {
	if r.wave == nil {
		return nil
	}
	return r.wave.Levels()
}

