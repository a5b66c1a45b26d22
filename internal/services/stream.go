package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/strume/internal/shared"
)

// ProgressStreamer implements [Streamer] against GET /progress/{task_id}.
type ProgressStreamer struct {
	api        *APIService
	httpClient *http.Client
	logger     *log.Logger
}

// NewProgressStreamer creates a streamer. The client must not set a Timeout, since the
// stream stays open for the whole processing run.
func NewProgressStreamer(api *APIService, client *http.Client, logger *log.Logger) *ProgressStreamer {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &ProgressStreamer{api: api, httpClient: client, logger: logger}
}

// ProgressStream is an open progress subscription for one task.
type ProgressStream struct {
	taskID string
	body   io.ReadCloser
	cancel context.CancelFunc
	logger *log.Logger

	once   sync.Once
	closed atomic.Bool
	done   chan struct{}
}

// Open connects to the task's event stream and starts delivering values to h.
//
// Delivery stops after the first terminal value (100 or -1), after a transport error,
// or after Close. Frames whose data is not an integer are skipped.
func (p *ProgressStreamer) Open(ctx context.Context, taskID string, h StreamHandler) (Stream, error) {
	s, err := p.open(ctx, taskID, h)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (p *ProgressStreamer) open(ctx context.Context, taskID string, h StreamHandler) (*ProgressStream, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.api.ProgressURL(taskID), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: failed to create request: %v", shared.ErrStreamInterrupted, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", shared.ErrStreamInterrupted, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: status %d", shared.ErrStreamInterrupted, resp.StatusCode)
	}

	s := &ProgressStream{
		taskID: taskID,
		body:   resp.Body,
		cancel: cancel,
		logger: shared.WithLogger(p.logger, "task", taskID),
		done:   make(chan struct{}),
	}
	go s.read(h)
	return s, nil
}

func (s *ProgressStream) read(h StreamHandler) {
	defer close(s.done)

	dec := NewDecoder(s.body)
	for {
		ev, err := dec.Next()
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.logger.Debug("progress stream ended", "error", err)
			h.OnTransportError(fmt.Errorf("%w: %v", shared.ErrStreamInterrupted, err))
			return
		}

		if ev.Type != "" && ev.Type != "message" && ev.Type != "progress" {
			continue
		}

		value, ok := ParseProgress(ev.Data)
		if !ok {
			s.logger.Debug("skipping frame", "data", ev.Data)
			continue
		}
		if s.closed.Load() {
			return
		}

		h.OnProgress(value)
		if value == 100 || value == -1 {
			return
		}
	}
}

// Close stops delivery and releases the connection. Safe to call more than once.
func (s *ProgressStream) Close() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
		s.body.Close()
	})
}

// Done is closed once the reader goroutine has exited.
func (s *ProgressStream) Done() <-chan struct{} {
	return s.done
}
