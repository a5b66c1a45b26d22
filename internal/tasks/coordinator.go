package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/strume/internal/loop"
	"github.com/desertthunder/strume/internal/models"
	"github.com/desertthunder/strume/internal/services"
	"github.com/desertthunder/strume/internal/shared"
)

// Recorder persists task history. Failures are logged and never affect the task.
type Recorder interface {
	CreateUpload(ctx context.Context, u *models.Upload) error
	FinishUpload(ctx context.Context, taskID, state, errMsg string) error
}

// Submission is what a surface hands to [Coordinator.Submit].
type Submission struct {
	Path     string
	Metadata models.Metadata
	Email    string
	KeepFile bool
	Output   io.Writer
}

// CoordinatorOpts wires a [Coordinator].
type CoordinatorOpts struct {
	Transport  services.Transport
	Streams    services.Streamer
	Dispatcher loop.Dispatcher
	Logger     *log.Logger
	Floor      int
	Recorder   Recorder      // optional
	NewID      func() string // defaults to shared.GenerateID
}

// Coordinator drives at most one [UploadTask] from upload through server processing.
//
// Submit, Cancel and Handle must all be called from the goroutine that drains the
// dispatcher. Background work only ever reaches the coordinator through Handle.
type Coordinator struct {
	transport  services.Transport
	streams    services.Streamer
	dispatcher loop.Dispatcher
	logger     *log.Logger
	floor      int
	recorder   Recorder
	newID      func() string

	task   *UploadTask
	ctx    context.Context
	cancel context.CancelFunc
	stream services.Stream
	high   int

	subs    map[int]func(ProgressUpdate)
	nextSub int
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(opts CoordinatorOpts) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}
	if opts.NewID == nil {
		opts.NewID = shared.GenerateID
	}
	if opts.Floor < 0 || opts.Floor > 100 {
		opts.Floor = DefaultFloor
	}

	return &Coordinator{
		transport:  opts.Transport,
		streams:    opts.Streams,
		dispatcher: opts.Dispatcher,
		logger:     opts.Logger,
		floor:      opts.Floor,
		recorder:   opts.Recorder,
		newID:      opts.NewID,
		subs:       make(map[int]func(ProgressUpdate)),
	}
}

// Submit validates s and starts a fresh task, discarding any previous one.
//
// A validation failure is returned directly and leaves the current task untouched.
func (c *Coordinator) Submit(ctx context.Context, s Submission) (string, error) {
	if err := validate(s); err != nil {
		return "", err
	}

	c.discard()

	id := c.newID()
	taskCtx, cancel := context.WithCancel(ctx)
	c.task = &UploadTask{ID: id, State: Uploading}
	c.ctx = taskCtx
	c.cancel = cancel
	c.high = 0

	c.logger.Debug("task submitted", "task", id, "file", s.Path)
	c.record(func(ctx context.Context) error {
		return c.recorder.CreateUpload(ctx, &models.Upload{
			ID:         shared.GenerateID(),
			TaskID:     id,
			Email:      s.Email,
			SourceFile: s.Path,
			Title:      s.Metadata.Title,
			Artist:     s.Metadata.Artist,
			State:      Uploading.String(),
			StartedAt:  time.Now(),
		})
	})
	c.notify()

	req := services.UploadRequest{
		TaskID:   id,
		Path:     s.Path,
		Metadata: s.Metadata,
		Email:    strings.TrimSpace(s.Email),
		KeepFile: s.KeepFile,
		Output:   s.Output,
	}
	go func() {
		err := c.transport.Send(taskCtx, req, func(p int) {
			c.dispatcher.Dispatch(TransferMsg{TaskID: id, Percent: p})
		})
		c.dispatcher.Dispatch(UploadDoneMsg{TaskID: id, Err: err})
	}()

	return id, nil
}

func validate(s Submission) error {
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("%w: no file selected", shared.ErrValidation)
	}
	info, err := os.Stat(s.Path)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", shared.ErrValidation, s.Path)
	}
	if strings.TrimSpace(s.Email) == "" {
		return fmt.Errorf("%w: email is required", shared.ErrValidation)
	}
	return nil
}

// Cancel aborts the current task and returns the coordinator to idle.
// Late results from the cancelled task are ignored.
func (c *Coordinator) Cancel() {
	if c.task == nil {
		return
	}
	c.logger.Debug("task cancelled", "task", c.task.ID, "state", c.task.State)
	c.discard()
	c.publish(idleUpdate())
}

// discard drops the current task, aborting its transport and closing its stream.
func (c *Coordinator) discard() {
	if c.task == nil {
		return
	}
	if !c.task.State.Terminal() {
		id := c.task.ID
		c.record(func(ctx context.Context) error {
			return c.recorder.FinishUpload(ctx, id, "cancelled", "")
		})
	}
	c.release()
	c.task = nil
	c.high = 0
}

func (c *Coordinator) release() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.ctx = nil
	c.closeStream()
}

func (c *Coordinator) closeStream() {
	if c.stream != nil {
		c.stream.Close()
		c.stream = nil
	}
}

// Handle applies a message from the task's background work.
// It reports whether msg was a task message, current or not.
func (c *Coordinator) Handle(msg any) bool {
	switch m := msg.(type) {
	case TransferMsg:
		if !c.current(m.TaskID, Uploading) {
			return true
		}
		if m.Percent > c.task.TransferPercent {
			c.task.TransferPercent = min(m.Percent, 100)
			c.notify()
		}

	case UploadDoneMsg:
		if !c.current(m.TaskID, Uploading) {
			return true
		}
		if m.Err != nil {
			err := m.Err
			if !errors.Is(err, shared.ErrUpload) {
				err = fmt.Errorf("%w: %w", shared.ErrUpload, err)
			}
			c.fail(err)
			return true
		}
		c.task.TransferPercent = 100
		c.task.State = AwaitingProcessing
		c.notify()
		c.openStream(m.TaskID)

	case StreamOpenedMsg:
		if !c.current(m.TaskID, AwaitingProcessing) {
			if m.Stream != nil {
				m.Stream.Close()
			}
			return true
		}
		if m.Err != nil {
			err := m.Err
			if !errors.Is(err, shared.ErrStreamInterrupted) {
				err = fmt.Errorf("%w: %w", shared.ErrStreamInterrupted, err)
			}
			c.fail(err)
			return true
		}
		c.stream = m.Stream
		c.task.State = Processing
		c.notify()

	case StreamValueMsg:
		if !c.current(m.TaskID, Processing) {
			return true
		}
		c.applyValue(m.Value)

	case StreamErrorMsg:
		if !c.current(m.TaskID, Processing) {
			return true
		}
		err := m.Err
		switch {
		case err == nil:
			err = shared.ErrStreamInterrupted
		case !errors.Is(err, shared.ErrStreamInterrupted):
			err = fmt.Errorf("%w: %w", shared.ErrStreamInterrupted, err)
		}
		c.fail(err)

	default:
		return false
	}
	return true
}

func (c *Coordinator) current(id string, state State) bool {
	return c.task != nil && c.task.ID == id && c.task.State == state
}

func (c *Coordinator) applyValue(v int) {
	if v == -1 {
		c.task.ProcessPercent = -1
		c.fail(fmt.Errorf("%w: server reported failure", shared.ErrProcessing))
		return
	}
	if v <= c.task.ProcessPercent {
		return
	}

	c.task.ProcessPercent = min(v, 100)
	if c.task.ProcessPercent < 100 {
		c.notify()
		return
	}

	id := c.task.ID
	c.task.State = Succeeded
	c.release()
	c.logger.Info("task succeeded", "task", id)
	c.record(func(ctx context.Context) error {
		return c.recorder.FinishUpload(ctx, id, Succeeded.String(), "")
	})
	c.notify()
	// Handle runs on the loop goroutine; posting back to it must not block.
	go c.dispatcher.Dispatch(RefreshTracksMsg{TaskID: id})
}

// openStream connects off-loop. Values from the stream are held back until the
// opened message has been posted, so the loop always sees the stream before its values.
func (c *Coordinator) openStream(id string) {
	ctx := c.ctx
	relay := &streamRelay{taskID: id, dispatcher: c.dispatcher, ready: make(chan struct{})}
	go func() {
		s, err := c.streams.Open(ctx, id, relay)
		c.dispatcher.Dispatch(StreamOpenedMsg{TaskID: id, Stream: s, Err: err})
		close(relay.ready)
	}()
}

func (c *Coordinator) fail(err error) {
	c.task.State = Failed
	c.task.Err = err
	c.release()

	id := c.task.ID
	c.logger.Warn("task failed", "task", id, "error", err)
	c.record(func(ctx context.Context) error {
		return c.recorder.FinishUpload(ctx, id, Failed.String(), err.Error())
	})
	c.notify()
}

func (c *Coordinator) record(fn func(ctx context.Context) error) {
	if c.recorder == nil {
		return
	}
	if err := fn(context.Background()); err != nil {
		c.logger.Warn("failed to record upload history", "error", err)
	}
}

func (c *Coordinator) notify() {
	if p := DisplayPercent(c.task.State, c.task.TransferPercent, c.task.ProcessPercent, c.floor); p > c.high {
		c.high = p
	}
	c.logger.Debug("task progress", "task", c.task.ID, "state", c.task.State, "percent", c.high)
	c.publish(taskUpdate(c.task, c.high))
}

func (c *Coordinator) publish(u ProgressUpdate) {
	for _, fn := range c.subs {
		fn(u)
	}
}

// Subscribe registers fn for every update and returns a function that removes it.
func (c *Coordinator) Subscribe(fn func(ProgressUpdate)) (unsubscribe func()) {
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() { delete(c.subs, id) }
}

// Task returns a copy of the current task, or false when idle.
func (c *Coordinator) Task() (UploadTask, bool) {
	if c.task == nil {
		return UploadTask{}, false
	}
	return *c.task, true
}

// Percent is the merged display percent of the current task.
func (c *Coordinator) Percent() int {
	return c.high
}

// Floor is the display percent at which processing begins.
func (c *Coordinator) Floor() int {
	return c.floor
}

// streamRelay forwards stream callbacks to the loop, tagged with their task id.
type streamRelay struct {
	taskID     string
	dispatcher loop.Dispatcher
	ready      chan struct{}
}

func (r *streamRelay) OnProgress(value int) {
	<-r.ready
	r.dispatcher.Dispatch(StreamValueMsg{TaskID: r.taskID, Value: value})
}

func (r *streamRelay) OnTransportError(err error) {
	<-r.ready
	r.dispatcher.Dispatch(StreamErrorMsg{TaskID: r.taskID, Err: err})
}
