package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/strume/internal/loop"
	"github.com/desertthunder/strume/internal/models"
	"github.com/desertthunder/strume/internal/services"
	"github.com/desertthunder/strume/internal/shared"
	tu "github.com/desertthunder/strume/internal/testing"
)

type fakeSend struct {
	ctx      context.Context
	req      services.UploadRequest
	progress func(int)
	result   chan error
}

type fakeTransport struct {
	calls chan *fakeSend
}

func (f *fakeTransport) Send(ctx context.Context, req services.UploadRequest, progress func(int)) error {
	s := &fakeSend{ctx: ctx, req: req, progress: progress, result: make(chan error, 1)}
	f.calls <- s
	select {
	case err := <-s.result:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", shared.ErrUpload, ctx.Err())
	}
}

type fakeStream struct {
	closes atomic.Int32
}

func (s *fakeStream) Close() { s.closes.Add(1) }

type openedStream struct {
	taskID  string
	handler services.StreamHandler
	stream  *fakeStream
}

type fakeStreamer struct {
	opened  chan *openedStream
	openErr error
}

func (f *fakeStreamer) Open(ctx context.Context, taskID string, h services.StreamHandler) (services.Stream, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	o := &openedStream{taskID: taskID, handler: h, stream: &fakeStream{}}
	f.opened <- o
	return o.stream, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	created  []string
	finished map[string]string
}

func (r *fakeRecorder) CreateUpload(ctx context.Context, u *models.Upload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, u.TaskID)
	return nil
}

func (r *fakeRecorder) FinishUpload(ctx context.Context, taskID, state, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished == nil {
		r.finished = map[string]string{}
	}
	r.finished[taskID] = state
	return nil
}

type harness struct {
	t         *testing.T
	queue     *loop.Queue
	transport *fakeTransport
	streamer  *fakeStreamer
	recorder  *fakeRecorder
	coord     *Coordinator
	updates   []ProgressUpdate
	refreshes []string
	file      string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		queue:     loop.NewQueue(256),
		transport: &fakeTransport{calls: make(chan *fakeSend, 4)},
		streamer:  &fakeStreamer{opened: make(chan *openedStream, 4)},
		recorder:  &fakeRecorder{},
		file:      tu.WriteTempFile(t, "song.wav", []byte("RIFF")),
	}
	ids := 0
	h.coord = NewCoordinator(CoordinatorOpts{
		Transport:  h.transport,
		Streams:    h.streamer,
		Dispatcher: h.queue,
		Floor:      60,
		Recorder:   h.recorder,
		NewID: func() string {
			ids++
			return fmt.Sprintf("task-%d", ids)
		},
	})
	h.coord.Subscribe(func(u ProgressUpdate) { h.updates = append(h.updates, u) })
	t.Cleanup(h.queue.Close)
	return h
}

func (h *harness) submit() string {
	h.t.Helper()
	id, err := h.coord.Submit(context.Background(), Submission{Path: h.file, Email: "a@b.c", KeepFile: true})
	if err != nil {
		h.t.Fatalf("Submit() error = %v", err)
	}
	return id
}

// pump applies queued messages until cond holds.
func (h *harness) pump(cond func() bool) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for !cond() {
		msg, err := h.queue.Next(ctx)
		if err != nil {
			h.t.Fatalf("waiting for loop condition: %v (task=%+v)", err, h.task())
		}
		if r, ok := msg.(RefreshTracksMsg); ok {
			h.refreshes = append(h.refreshes, r.TaskID)
		}
		h.coord.Handle(msg)
	}
}

// settle applies whatever is queued right now, without waiting for more.
func (h *harness) settle() {
	h.t.Helper()
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		msg, err := h.queue.Next(ctx)
		cancel()
		if err != nil {
			return
		}
		if r, ok := msg.(RefreshTracksMsg); ok {
			h.refreshes = append(h.refreshes, r.TaskID)
		}
		h.coord.Handle(msg)
	}
}

func (h *harness) task() UploadTask {
	task, _ := h.coord.Task()
	return task
}

func (h *harness) inState(s State) func() bool {
	return func() bool { return h.task().State == s }
}

func (h *harness) nextSend() *fakeSend {
	h.t.Helper()
	select {
	case s := <-h.transport.calls:
		return s
	case <-time.After(2 * time.Second):
		h.t.Fatal("transport was not called")
		return nil
	}
}

func (h *harness) nextStream() *openedStream {
	h.t.Helper()
	select {
	case o := <-h.streamer.opened:
		return o
	case <-time.After(2 * time.Second):
		h.t.Fatal("stream was not opened")
		return nil
	}
}

// uploadAndOpen drives a fresh task to Processing.
func (h *harness) uploadAndOpen() (*fakeSend, *openedStream) {
	h.t.Helper()
	h.submit()
	send := h.nextSend()
	send.progress(100)
	send.result <- nil
	h.pump(h.inState(AwaitingProcessing))
	stream := h.nextStream()
	h.pump(h.inState(Processing))
	return send, stream
}

func (h *harness) assertMonotonic() {
	h.t.Helper()
	last := 0
	for _, u := range h.updates {
		if u.Phase == Idle {
			last = 0
			continue
		}
		if u.Percent < last {
			h.t.Fatalf("display percent regressed: %d -> %d", last, u.Percent)
		}
		last = u.Percent
	}
}

func TestCoordinatorSubmit(t *testing.T) {
	t.Run("Validation", func(t *testing.T) {
		h := newHarness(t)

		tests := []struct {
			name string
			sub  Submission
		}{
			{"no file", Submission{Email: "a@b.c"}},
			{"missing file", Submission{Path: "/no/such/file.wav", Email: "a@b.c"}},
			{"directory", Submission{Path: t.TempDir(), Email: "a@b.c"}},
			{"no email", Submission{Path: h.file, Email: "  "}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := h.coord.Submit(context.Background(), tt.sub)
				if !errors.Is(err, shared.ErrValidation) {
					t.Errorf("expected ErrValidation, got %v", err)
				}
				if _, ok := h.coord.Task(); ok {
					t.Error("expected no task after validation failure")
				}
			})
		}

		if len(h.updates) != 0 {
			t.Errorf("validation failures must not notify, got %d updates", len(h.updates))
		}
	})

	t.Run("Validation Leaves Current Task Alone", func(t *testing.T) {
		h := newHarness(t)
		id := h.submit()
		send := h.nextSend()

		if _, err := h.coord.Submit(context.Background(), Submission{Path: h.file}); !errors.Is(err, shared.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
		if h.task().ID != id || h.task().State != Uploading {
			t.Errorf("expected task %s still uploading, got %+v", id, h.task())
		}
		if send.ctx.Err() != nil {
			t.Error("running upload must not be cancelled by a rejected submission")
		}
	})

	t.Run("Sends Submission", func(t *testing.T) {
		h := newHarness(t)
		id, err := h.coord.Submit(context.Background(), Submission{
			Path:     h.file,
			Email:    " a@b.c ",
			Metadata: models.Metadata{Title: "Song"},
			KeepFile: true,
		})
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}

		send := h.nextSend()
		if send.req.TaskID != id || send.req.Email != "a@b.c" || send.req.Metadata.Title != "Song" || !send.req.KeepFile {
			t.Errorf("unexpected upload request: %+v", send.req)
		}
		if h.task().State != Uploading {
			t.Errorf("expected Uploading, got %v", h.task().State)
		}
		if len(h.recorder.created) != 1 || h.recorder.created[0] != id {
			t.Errorf("expected history row for %s, got %v", id, h.recorder.created)
		}
	})
}

func TestCoordinatorLifecycle(t *testing.T) {
	t.Run("Succeeds", func(t *testing.T) {
		h := newHarness(t)
		id := h.submit()
		send := h.nextSend()

		send.progress(30)
		send.progress(100)
		h.pump(func() bool { return h.task().TransferPercent == 100 })
		if got := h.coord.Percent(); got != 60 {
			t.Errorf("expected 60 after full transfer, got %d", got)
		}

		send.result <- nil
		h.pump(h.inState(AwaitingProcessing))
		stream := h.nextStream()
		if stream.taskID != id {
			t.Errorf("expected stream for %s, got %s", id, stream.taskID)
		}
		h.pump(h.inState(Processing))

		for _, v := range []int{10, 40, 100} {
			stream.handler.OnProgress(v)
		}
		h.pump(h.inState(Succeeded))
		h.pump(func() bool { return len(h.refreshes) > 0 })
		h.settle()

		if got := h.coord.Percent(); got != 100 {
			t.Errorf("expected 100, got %d", got)
		}
		if n := stream.stream.closes.Load(); n != 1 {
			t.Errorf("expected stream closed once, got %d", n)
		}
		if len(h.refreshes) != 1 || h.refreshes[0] != id {
			t.Errorf("expected one refresh for %s, got %v", id, h.refreshes)
		}
		if h.recorder.finished[id] != "succeeded" {
			t.Errorf("expected history finished as succeeded, got %q", h.recorder.finished[id])
		}
		h.assertMonotonic()

		last := h.updates[len(h.updates)-1]
		if last.Message != "Done! Your instrumental is ready." {
			t.Errorf("unexpected final message %q", last.Message)
		}
	})

	t.Run("Processing Failure Sentinel", func(t *testing.T) {
		h := newHarness(t)
		_, stream := h.uploadAndOpen()

		stream.handler.OnProgress(30)
		stream.handler.OnProgress(-1)
		h.pump(h.inState(Failed))

		stream.handler.OnTransportError(errors.New("late eof"))
		h.settle()

		task := h.task()
		if !errors.Is(task.Err, shared.ErrProcessing) {
			t.Errorf("expected ErrProcessing, got %v", task.Err)
		}
		if task.ProcessPercent != -1 {
			t.Errorf("expected sentinel kept, got %d", task.ProcessPercent)
		}
		if n := stream.stream.closes.Load(); n != 1 {
			t.Errorf("expected stream closed exactly once, got %d", n)
		}
		if len(h.refreshes) != 0 {
			t.Errorf("failed task must not refresh, got %v", h.refreshes)
		}
		h.assertMonotonic()
	})

	t.Run("Stream Drop", func(t *testing.T) {
		h := newHarness(t)
		_, stream := h.uploadAndOpen()

		stream.handler.OnProgress(20)
		stream.handler.OnTransportError(fmt.Errorf("%w: unexpected EOF", shared.ErrStreamInterrupted))
		h.pump(h.inState(Failed))

		if !errors.Is(h.task().Err, shared.ErrStreamInterrupted) {
			t.Errorf("expected ErrStreamInterrupted, got %v", h.task().Err)
		}
		if h.task().ProcessPercent != 20 {
			t.Errorf("expected last value 20 kept, got %d", h.task().ProcessPercent)
		}
		if got := h.updates[len(h.updates)-1].Message; got != "Lost connection to server." {
			t.Errorf("unexpected message %q", got)
		}
	})

	t.Run("Lower Values Are Ignored", func(t *testing.T) {
		h := newHarness(t)
		_, stream := h.uploadAndOpen()

		stream.handler.OnProgress(50)
		stream.handler.OnProgress(20)
		stream.handler.OnProgress(50)
		stream.handler.OnProgress(70)
		h.pump(func() bool { return h.task().ProcessPercent == 70 })
		h.settle()

		seen := []int{}
		for _, u := range h.updates {
			if u.Phase == Processing {
				seen = append(seen, u.Process)
			}
		}
		if fmt.Sprint(seen) != "[0 50 70]" {
			t.Errorf("expected processing updates [0 50 70], got %v", seen)
		}
	})

	t.Run("Upload Rejected", func(t *testing.T) {
		h := newHarness(t)
		h.submit()
		send := h.nextSend()
		send.progress(40)
		send.result <- fmt.Errorf("%w: %w: status 500", shared.ErrUpload, shared.ErrAPIRequest)
		h.pump(h.inState(Failed))

		if !errors.Is(h.task().Err, shared.ErrUpload) {
			t.Errorf("expected ErrUpload, got %v", h.task().Err)
		}
		if got := h.coord.Percent(); got != 24 {
			t.Errorf("expected display to hold at 24, got %d", got)
		}
		if got := h.updates[len(h.updates)-1].Message; got != "Upload failed." {
			t.Errorf("unexpected message %q", got)
		}
		select {
		case <-h.streamer.opened:
			t.Error("stream must not open after a failed upload")
		default:
		}
	})

	t.Run("Unwrapped Transport Error", func(t *testing.T) {
		h := newHarness(t)
		h.submit()
		h.nextSend().result <- errors.New("connection reset")
		h.pump(h.inState(Failed))

		if !errors.Is(h.task().Err, shared.ErrUpload) {
			t.Errorf("expected transport error wrapped as ErrUpload, got %v", h.task().Err)
		}
	})

	t.Run("Stream Open Failure", func(t *testing.T) {
		h := newHarness(t)
		h.streamer.openErr = fmt.Errorf("%w: status 404", shared.ErrStreamInterrupted)
		h.submit()
		h.nextSend().result <- nil
		h.pump(h.inState(Failed))

		if !errors.Is(h.task().Err, shared.ErrStreamInterrupted) {
			t.Errorf("expected ErrStreamInterrupted, got %v", h.task().Err)
		}
		if h.task().TransferPercent != 100 {
			t.Errorf("expected transfer complete, got %d", h.task().TransferPercent)
		}
	})
}

func TestCoordinatorIdentity(t *testing.T) {
	t.Run("New Submit Invalidates Previous Task", func(t *testing.T) {
		h := newHarness(t)
		first := h.submit()
		oldSend := h.nextSend()

		second := h.submit()
		newSend := h.nextSend()
		if first == second {
			t.Fatal("expected a fresh task id")
		}
		if oldSend.ctx.Err() == nil {
			t.Error("expected the first upload to be aborted")
		}

		oldSend.progress(90)
		newSend.progress(10)
		h.pump(func() bool { return h.task().TransferPercent == 10 })
		h.settle()

		if h.task().ID != second {
			t.Errorf("expected current task %s, got %s", second, h.task().ID)
		}
		if h.task().State != Uploading {
			t.Errorf("stale upload result must not move the new task, got %v", h.task().State)
		}
		if h.recorder.finished[first] != "cancelled" {
			t.Errorf("expected first task recorded as cancelled, got %q", h.recorder.finished[first])
		}
	})

	t.Run("Stale Stream Messages Are Ignored", func(t *testing.T) {
		h := newHarness(t)
		_, oldStream := h.uploadAndOpen()
		h.submit()
		h.nextSend()

		if n := oldStream.stream.closes.Load(); n != 1 {
			t.Errorf("expected previous stream closed on resubmit, got %d", n)
		}

		h.coord.Handle(StreamValueMsg{TaskID: oldStream.taskID, Value: 100})
		h.coord.Handle(StreamErrorMsg{TaskID: oldStream.taskID, Err: errors.New("eof")})

		if h.task().State != Uploading || h.task().ProcessPercent != 0 {
			t.Errorf("stale stream values applied: %+v", h.task())
		}
	})

	t.Run("Cancel", func(t *testing.T) {
		h := newHarness(t)
		send, stream := h.uploadAndOpen()
		id := stream.taskID

		h.coord.Cancel()
		h.coord.Cancel()

		if _, ok := h.coord.Task(); ok {
			t.Error("expected coordinator to be idle after cancel")
		}
		if send.ctx.Err() == nil {
			t.Error("expected task context cancelled")
		}
		if n := stream.stream.closes.Load(); n != 1 {
			t.Errorf("expected stream closed once, got %d", n)
		}

		stream.handler.OnProgress(100)
		h.settle()
		if _, ok := h.coord.Task(); ok || len(h.refreshes) != 0 {
			t.Error("late values after cancel must not revive the task")
		}
		if h.recorder.finished[id] != "cancelled" {
			t.Errorf("expected cancelled history, got %q", h.recorder.finished[id])
		}
		if last := h.updates[len(h.updates)-1]; last.Phase != Idle {
			t.Errorf("expected idle update last, got %v", last.Phase)
		}
	})

	t.Run("Late Stream Open Is Closed", func(t *testing.T) {
		h := newHarness(t)
		late := &fakeStream{}

		h.coord.Handle(StreamOpenedMsg{TaskID: "gone", Stream: late})
		if late.closes.Load() != 1 {
			t.Error("expected stream for unknown task to be closed")
		}
	})

	t.Run("Unknown Message", func(t *testing.T) {
		h := newHarness(t)
		if h.coord.Handle("not a task message") {
			t.Error("expected Handle to report unrecognized message")
		}
	})
}
