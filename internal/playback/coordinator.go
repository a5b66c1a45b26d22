package playback

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/strume/internal/loop"
	"github.com/desertthunder/strume/internal/models"
	"github.com/desertthunder/strume/internal/shared"
)

// CoordinatorOpts wires a [Coordinator].
type CoordinatorOpts struct {
	Loader     Loader
	Device     Device
	Dispatcher loop.Dispatcher
	Logger     *log.Logger
	Autoplay   bool // start playing as soon as a track is ready
	Bars       int  // waveform history length
}

// Coordinator arbitrates play requests so that one resource at most is alive.
//
// RequestPlay, RequestClose and Handle must be called from the loop goroutine.
type Coordinator struct {
	loader     Loader
	device     Device
	dispatcher loop.Dispatcher
	logger     *log.Logger
	autoplay   bool
	bars       int

	current    *Resource
	nextID     uint64
	cancelLoad context.CancelFunc

	subs    map[int]func(Snapshot)
	nextSub int
}

// NewCoordinator creates a coordinator with no live resource.
func NewCoordinator(opts CoordinatorOpts) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}
	if opts.Bars <= 0 {
		opts.Bars = DefaultBars
	}
	return &Coordinator{
		loader:     opts.Loader,
		device:     opts.Device,
		dispatcher: opts.Dispatcher,
		logger:     opts.Logger,
		autoplay:   opts.Autoplay,
		bars:       opts.Bars,
		subs:       make(map[int]func(Snapshot)),
	}
}

// RequestPlay plays track.
//
// For the track already live it toggles: play/pause when loaded, the pending play
// intent while loading, a restart once ended. An errored resource is rebuilt.
// For any other track the live resource is destroyed before the new one is created.
func (c *Coordinator) RequestPlay(track models.Track) {
	if r := c.current; r != nil && r.track.Ref() == track.Ref() && r.state != Errored {
		c.toggle(r)
		c.notify()
		return
	}

	c.destroyCurrent()
	c.create(track)
	c.notify()
}

func (c *Coordinator) toggle(r *Resource) {
	switch r.state {
	case Loading:
		r.wantPlay = !r.wantPlay
	case Ready, Paused:
		r.play()
	case Playing:
		r.pause()
	case Ended:
		if err := r.restart(c.dispatcher); err != nil {
			c.logger.Warn("restart failed", "track", r.track.Filename, "error", err)
			r.fail(err)
		}
	}
	c.logger.Debug("playback toggled", "track", r.track.Filename, "state", r.state)
}

func (c *Coordinator) create(track models.Track) {
	c.nextID++
	r := newResource(c.nextID, track, c.device, c.bars, c.autoplay)
	c.current = r

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelLoad = cancel

	c.logger.Debug("loading track", "track", track.Filename, "resource", r.id)
	id := r.id
	go func() {
		m, err := c.loader.Load(ctx, track)
		c.dispatcher.Dispatch(LoadedMsg{ResourceID: id, Media: m, Err: err})
	}()
}

func (c *Coordinator) destroyCurrent() {
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
	if c.current != nil {
		c.logger.Debug("destroying resource", "track", c.current.track.Filename, "resource", c.current.id)
		c.current.destroy()
		c.current = nil
	}
}

// RequestClose destroys the live resource. Safe to call when nothing is live.
func (c *Coordinator) RequestClose() {
	if c.current == nil {
		return
	}
	c.destroyCurrent()
	c.notify()
}

// Handle applies a playback message. It reports whether msg was a playback message.
func (c *Coordinator) Handle(msg any) bool {
	switch m := msg.(type) {
	case LoadedMsg:
		r := c.current
		if r == nil || r.id != m.ResourceID || !r.alive || r.state != Loading {
			if m.Media != nil {
				m.Media.Close()
			}
			return true
		}
		c.cancelLoad = nil
		c.loaded(r, m)
		c.notify()

	case EndedMsg:
		r := c.current
		// A pause can land between the output draining and this message.
		if r == nil || r.id != m.ResourceID || (r.state != Playing && r.state != Paused) {
			return true
		}
		r.state = Ended
		c.logger.Debug("track ended", "track", r.track.Filename)
		c.notify()

	default:
		return false
	}
	return true
}

func (c *Coordinator) loaded(r *Resource, m LoadedMsg) {
	if m.Err != nil {
		err := m.Err
		if !errors.Is(err, shared.ErrPlayback) {
			err = fmt.Errorf("%w: %w", shared.ErrPlayback, err)
		}
		c.logger.Warn("load failed", "track", r.track.Filename, "error", err)
		r.fail(err)
		return
	}

	if err := r.attach(m.Media, c.dispatcher); err != nil {
		c.logger.Warn("output refused playback", "track", r.track.Filename, "error", err)
		r.wave = nil
		r.media = nil
		m.Media.Close()
		r.fail(err)
		return
	}

	if r.wantPlay {
		r.play()
	}
}

// Snapshot describes the live resource, or a Closed snapshot when there is none.
func (c *Coordinator) Snapshot() Snapshot {
	if c.current == nil {
		return Snapshot{State: Closed}
	}
	return c.current.snapshot()
}

// Levels returns the live waveform levels, oldest first.
func (c *Coordinator) Levels() []float64 {
	if c.current == nil {
		return nil
	}
	return c.current.levels()
}

// Subscribe registers fn for every state change and returns a function that removes it.
func (c *Coordinator) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() { delete(c.subs, id) }
}

func (c *Coordinator) notify() {
	s := c.Snapshot()
	for _, fn := range c.subs {
		fn(s)
	}
}
