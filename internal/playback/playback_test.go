package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"

	"github.com/desertthunder/strume/internal/loop"
	"github.com/desertthunder/strume/internal/models"
	"github.com/desertthunder/strume/internal/shared"
)

var testFormat = beep.Format{SampleRate: 8000, NumChannels: 2, Precision: 2}

// toneStream is a seekable constant-level stream.
type toneStream struct {
	mu     sync.Mutex
	pos    int
	n      int
	closes atomic.Int32
}

func (s *toneStream) Stream(samples [][2]float64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= s.n {
		return 0, false
	}
	count := min(len(samples), s.n-s.pos)
	for i := range count {
		samples[i] = [2]float64{0.5, 0.5}
	}
	s.pos += count
	return count, true
}

func (s *toneStream) Err() error    { return nil }
func (s *toneStream) Len() int      { return s.n }
func (s *toneStream) Close() error  { s.closes.Add(1); return nil }
func (s *toneStream) Position() int { s.mu.Lock(); defer s.mu.Unlock(); return s.pos }
func (s *toneStream) Seek(p int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = p
	return nil
}

type fakeDevice struct {
	mu      sync.Mutex
	current beep.Streamer
	plays   int
	stops   int
	playErr error
	log     *eventLog
}

func (d *fakeDevice) Play(format beep.Format, s beep.Streamer) error {
	if d.playErr != nil {
		return d.playErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = s
	d.plays++
	d.log.add("play")
	return nil
}

func (d *fakeDevice) Lock()   { d.mu.Lock() }
func (d *fakeDevice) Unlock() { d.mu.Unlock() }

func (d *fakeDevice) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = nil
	d.stops++
	d.log.add("stop")
}

// render pulls n samples through the output chain like the speaker would.
func (d *fakeDevice) render(n int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return false
	}
	buf := make([][2]float64, n)
	_, ok := d.current.Stream(buf)
	return ok
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeLoader struct {
	mu      sync.Mutex
	streams map[string]*toneStream
	gates   map[string]chan struct{}
	fail    map[string]error
	calls   map[string]int
	log     *eventLog
}

func newFakeLoader(log *eventLog) *fakeLoader {
	return &fakeLoader{
		streams: map[string]*toneStream{},
		gates:   map[string]chan struct{}{},
		fail:    map[string]error{},
		calls:   map[string]int{},
		log:     log,
	}
}

func (l *fakeLoader) Load(ctx context.Context, track models.Track) (*Media, error) {
	ref := track.Ref()
	l.mu.Lock()
	l.calls[ref]++
	gate := l.gates[ref]
	err := l.fail[ref]
	l.mu.Unlock()

	l.log.add(fmt.Sprintf("load %s (live=%d)", ref, LiveResources()))
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}

	s := &toneStream{n: 4000}
	l.mu.Lock()
	l.streams[ref] = s
	l.mu.Unlock()
	return NewMedia(s, testFormat, nil), nil
}

func (l *fakeLoader) stream(ref string) *toneStream {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.streams[ref]
}

func (l *fakeLoader) callCount(ref string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[ref]
}

type harness struct {
	t      *testing.T
	queue  *loop.Queue
	log    *eventLog
	device *fakeDevice
	loader *fakeLoader
	coord  *Coordinator
	seen   []Snapshot
	base   int
}

func newHarness(t *testing.T, autoplay bool) *harness {
	t.Helper()
	log := &eventLog{}
	h := &harness{
		t:      t,
		queue:  loop.NewQueue(64),
		log:    log,
		device: &fakeDevice{log: log},
		loader: newFakeLoader(log),
		base:   LiveResources(),
	}
	h.coord = NewCoordinator(CoordinatorOpts{
		Loader:     h.loader,
		Device:     h.device,
		Dispatcher: h.queue,
		Autoplay:   autoplay,
		Bars:       8,
	})
	h.coord.Subscribe(func(s Snapshot) { h.seen = append(h.seen, s) })
	t.Cleanup(func() {
		h.coord.RequestClose()
		h.queue.Close()
	})
	return h
}

func (h *harness) pump(cond func() bool) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for !cond() {
		msg, err := h.queue.Next(ctx)
		if err != nil {
			h.t.Fatalf("waiting for playback state: %v (snapshot=%+v)", err, h.coord.Snapshot())
		}
		h.coord.Handle(msg)
	}
}

func (h *harness) settle() {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		msg, err := h.queue.Next(ctx)
		cancel()
		if err != nil {
			return
		}
		h.coord.Handle(msg)
	}
}

func (h *harness) state(s State) func() bool {
	return func() bool { return h.coord.Snapshot().State == s }
}

func (h *harness) live() int {
	return LiveResources() - h.base
}

func track(name string) models.Track {
	return models.Track{Filename: name, DownloadURL: "http://x/download?file=" + name}
}

func TestCoordinatorRequestPlay(t *testing.T) {
	t.Run("Autoplay Once Loaded", func(t *testing.T) {
		h := newHarness(t, true)
		a := track("a.wav")

		h.coord.RequestPlay(a)
		if got := h.coord.Snapshot().State; got != Loading {
			t.Fatalf("expected Loading, got %v", got)
		}
		h.pump(h.state(Playing))

		snap := h.coord.Snapshot()
		if snap.Ref() != a.Ref() || snap.Duration != time.Second/2 {
			t.Errorf("unexpected snapshot %+v", snap)
		}
		if h.live() != 1 {
			t.Errorf("expected one live resource, got %d", h.live())
		}
	})

	t.Run("Without Autoplay Stays Ready", func(t *testing.T) {
		h := newHarness(t, false)
		h.coord.RequestPlay(track("a.wav"))
		h.pump(h.state(Ready))
		h.settle()

		if got := h.coord.Snapshot().State; got != Ready {
			t.Errorf("expected Ready, got %v", got)
		}
	})

	t.Run("Same Track Toggles Without Recreating", func(t *testing.T) {
		h := newHarness(t, true)
		a := track("a.wav")
		h.coord.RequestPlay(a)
		h.pump(h.state(Playing))
		id := h.coord.Snapshot().ResourceID

		h.coord.RequestPlay(a)
		if got := h.coord.Snapshot().State; got != Paused {
			t.Errorf("expected Paused, got %v", got)
		}
		h.coord.RequestPlay(a)
		if got := h.coord.Snapshot().State; got != Playing {
			t.Errorf("expected Playing, got %v", got)
		}

		if h.coord.Snapshot().ResourceID != id || h.loader.callCount(a.Ref()) != 1 {
			t.Error("toggle must not recreate the resource")
		}
		if h.device.plays != 1 {
			t.Errorf("expected device started once, got %d", h.device.plays)
		}
	})

	t.Run("Paused Output Produces Silence", func(t *testing.T) {
		h := newHarness(t, false)
		a := track("a.wav")
		h.coord.RequestPlay(a)
		h.pump(h.state(Ready))

		h.device.render(100)
		if pos := h.loader.stream(a.Ref()).Position(); pos != 0 {
			t.Errorf("paused resource must not advance, position %d", pos)
		}

		h.coord.RequestPlay(a)
		h.device.render(100)
		if pos := h.loader.stream(a.Ref()).Position(); pos != 100 {
			t.Errorf("expected position 100 after playing, got %d", pos)
		}
	})

	t.Run("Different Track Destroys First", func(t *testing.T) {
		h := newHarness(t, true)
		a, b := track("a.wav"), track("b.wav")
		h.coord.RequestPlay(a)
		h.pump(h.state(Playing))
		streamA := h.loader.stream(a.Ref())

		h.coord.RequestPlay(b)
		if streamA.closes.Load() != 1 {
			t.Errorf("expected A's decoder released synchronously, got %d closes", streamA.closes.Load())
		}
		if h.live() != 1 {
			t.Errorf("expected exactly one live resource, got %d", h.live())
		}
		h.pump(h.state(Playing))

		if h.coord.Snapshot().Ref() != b.Ref() {
			t.Errorf("expected B live, got %s", h.coord.Snapshot().Ref())
		}

		events := h.log.all()
		want := []string{
			"load " + a.Ref() + " (live=" + fmt.Sprint(h.base+1) + ")",
			"play",
			"stop",
			"load " + b.Ref() + " (live=" + fmt.Sprint(h.base+1) + ")",
			"play",
		}
		if fmt.Sprint(events) != fmt.Sprint(want) {
			t.Errorf("expected events %v, got %v", want, events)
		}
	})

	t.Run("Late Load Is Discarded", func(t *testing.T) {
		h := newHarness(t, true)
		a, b := track("a.wav"), track("b.wav")
		gate := make(chan struct{})
		h.loader.gates[a.Ref()] = gate

		h.coord.RequestPlay(a)
		h.coord.RequestPlay(b)
		h.pump(h.state(Playing))

		close(gate)
		h.pump(func() bool { return h.loader.stream(a.Ref()) != nil })
		h.settle()

		if s := h.loader.stream(a.Ref()); s.closes.Load() != 1 {
			t.Errorf("expected late media closed, got %d closes", s.closes.Load())
		}
		if h.coord.Snapshot().Ref() != b.Ref() || h.coord.Snapshot().State != Playing {
			t.Errorf("late load changed state: %+v", h.coord.Snapshot())
		}
		if h.device.plays != 1 {
			t.Errorf("late media must never reach the device, plays=%d", h.device.plays)
		}
	})

	t.Run("Toggle While Loading Flips Intent", func(t *testing.T) {
		h := newHarness(t, true)
		a := track("a.wav")
		gate := make(chan struct{})
		h.loader.gates[a.Ref()] = gate

		h.coord.RequestPlay(a)
		h.coord.RequestPlay(a)
		close(gate)
		h.pump(h.state(Ready))
		h.settle()

		if got := h.coord.Snapshot().State; got != Ready {
			t.Errorf("expected Ready after cancelled intent, got %v", got)
		}
		if h.loader.callCount(a.Ref()) != 1 {
			t.Error("toggle while loading must not start a second load")
		}
	})

	t.Run("Restart After End", func(t *testing.T) {
		h := newHarness(t, true)
		a := track("a.wav")
		h.coord.RequestPlay(a)
		h.pump(h.state(Playing))

		for h.device.render(1024) {
		}
		h.pump(h.state(Ended))

		h.coord.RequestPlay(a)
		if got := h.coord.Snapshot().State; got != Playing {
			t.Fatalf("expected Playing after restart, got %v", got)
		}
		if pos := h.coord.Snapshot().Position; pos != 0 {
			t.Errorf("expected rewind to start, got %v", pos)
		}
		if h.loader.callCount(a.Ref()) != 1 {
			t.Error("restart must reuse the decoder")
		}
	})

	t.Run("Pause After Drain Still Ends", func(t *testing.T) {
		h := newHarness(t, true)
		a := track("a.wav")
		h.coord.RequestPlay(a)
		h.pump(h.state(Playing))

		for h.device.render(1024) {
		}
		h.coord.RequestPlay(a)
		if got := h.coord.Snapshot().State; got != Paused {
			t.Fatalf("expected Paused before the end is applied, got %v", got)
		}
		h.pump(h.state(Ended))

		h.coord.RequestPlay(a)
		if got := h.coord.Snapshot().State; got != Playing {
			t.Fatalf("expected Playing after restart, got %v", got)
		}
		if !h.device.render(100) {
			t.Error("restarted resource must stream again")
		}
		if pos := h.loader.stream(a.Ref()).Position(); pos != 100 {
			t.Errorf("expected playback from the start, position %d", pos)
		}
	})
}

func TestCoordinatorFailures(t *testing.T) {
	t.Run("Load Error Then Explicit Retry", func(t *testing.T) {
		h := newHarness(t, true)
		a := track("a.wav")
		h.loader.fail[a.Ref()] = errors.New("decode: bad header")

		h.coord.RequestPlay(a)
		h.pump(h.state(Errored))

		snap := h.coord.Snapshot()
		if !errors.Is(snap.Err, shared.ErrPlayback) {
			t.Errorf("expected ErrPlayback, got %v", snap.Err)
		}
		if h.loader.callCount(a.Ref()) != 1 {
			t.Error("errors must not be retried automatically")
		}

		delete(h.loader.fail, a.Ref())
		h.coord.RequestPlay(a)
		h.pump(h.state(Playing))

		if h.loader.callCount(a.Ref()) != 2 {
			t.Errorf("expected a fresh load on retry, got %d", h.loader.callCount(a.Ref()))
		}
		if h.live() != 1 {
			t.Errorf("expected one live resource, got %d", h.live())
		}
	})

	t.Run("Output Refused", func(t *testing.T) {
		h := newHarness(t, true)
		h.device.playErr = errors.New("no audio device")
		a := track("a.wav")

		h.coord.RequestPlay(a)
		h.pump(h.state(Errored))

		if err := h.coord.Snapshot().Err; !errors.Is(err, shared.ErrPlaybackBlocked) || !errors.Is(err, shared.ErrPlayback) {
			t.Errorf("expected ErrPlaybackBlocked, got %v", err)
		}
		if h.loader.stream(a.Ref()).closes.Load() != 1 {
			t.Error("expected decoder released after refusal")
		}
	})
}

func TestCoordinatorClose(t *testing.T) {
	t.Run("Idempotent", func(t *testing.T) {
		h := newHarness(t, true)
		a := track("a.wav")
		h.coord.RequestPlay(a)
		h.pump(h.state(Playing))

		h.coord.RequestClose()
		h.coord.RequestClose()

		if h.coord.Snapshot().State != Closed {
			t.Errorf("expected Closed, got %v", h.coord.Snapshot().State)
		}
		if h.live() != 0 {
			t.Errorf("expected no live resources, got %d", h.live())
		}
		if h.loader.stream(a.Ref()).closes.Load() != 1 {
			t.Error("expected decoder closed exactly once")
		}
		if h.device.stops != 1 {
			t.Errorf("expected one device stop, got %d", h.device.stops)
		}
		if h.coord.Levels() != nil {
			t.Error("expected no levels when closed")
		}
	})

	t.Run("Mid-load", func(t *testing.T) {
		h := newHarness(t, true)
		a := track("a.wav")
		gate := make(chan struct{})
		h.loader.gates[a.Ref()] = gate

		h.coord.RequestPlay(a)
		h.coord.RequestClose()
		close(gate)
		h.pump(func() bool { return h.loader.stream(a.Ref()) != nil })
		h.settle()

		if h.coord.Snapshot().State != Closed {
			t.Errorf("load after close must not revive state, got %v", h.coord.Snapshot().State)
		}
		if h.loader.stream(a.Ref()).closes.Load() != 1 {
			t.Error("expected orphaned media closed")
		}
		if h.device.plays != 0 {
			t.Error("orphaned media must not reach the device")
		}
	})

	t.Run("Subscribers See Every Change", func(t *testing.T) {
		h := newHarness(t, true)
		var other []State
		unsubscribe := h.coord.Subscribe(func(s Snapshot) { other = append(other, s.State) })

		a := track("a.wav")
		h.coord.RequestPlay(a)
		h.pump(h.state(Playing))
		h.coord.RequestPlay(a)
		unsubscribe()
		h.coord.RequestClose()

		if fmt.Sprint(other) != fmt.Sprint([]State{Loading, Playing, Paused}) {
			t.Errorf("unexpected states %v", other)
		}
		if last := h.seen[len(h.seen)-1]; last.State != Closed || last.Ref() != "" {
			t.Errorf("expected closed snapshot last, got %+v", last)
		}
	})
}

func TestWaveform(t *testing.T) {
	t.Run("Records Levels Oldest First", func(t *testing.T) {
		w := NewWaveform(&toneStream{n: 1000}, 4)
		buf := make([][2]float64, 100)
		for range 6 {
			w.Stream(buf)
		}

		levels := w.Levels()
		if len(levels) != 4 {
			t.Fatalf("expected 4 levels, got %d", len(levels))
		}
		for _, l := range levels {
			if l < 0.49 || l > 0.51 {
				t.Errorf("expected RMS of 0.5, got %f", l)
			}
		}
	})

	t.Run("Detach Drops History", func(t *testing.T) {
		w := NewWaveform(&toneStream{n: 1000}, 4)
		w.Stream(make([][2]float64, 10))
		w.Detach()

		if w.Levels() != nil || !w.detached {
			t.Error("expected no levels after detach")
		}
		if n, _ := w.Stream(make([][2]float64, 10)); n != 10 {
			t.Error("detached waveform must still pass audio through")
		}
	})
}
