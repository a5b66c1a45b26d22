// Package loop carries asynchronous results back to the single goroutine that owns client state.
//
// Network and media work runs on its own goroutines and reports through a [Dispatcher].
// The owner (a [Queue] consumer for headless commands, the bubbletea program for the TUI)
// applies each message in arrival order, so coordinators never need locks.
package loop

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by [Queue.Next] once the queue has been closed and drained.
var ErrClosed = errors.New("loop: queue closed")

// Dispatcher posts a message to the owning loop.
type Dispatcher interface {
	Dispatch(msg any)
}

// DispatchFunc adapts a function, such as tea.Program.Send, to [Dispatcher].
type DispatchFunc func(msg any)

// Dispatch calls f(msg).
func (f DispatchFunc) Dispatch(msg any) { f(msg) }

// Handler consumes messages on the loop. Handle reports whether the message was recognized.
type Handler interface {
	Handle(msg any) bool
}

// HandlerFunc adapts a function to [Handler].
type HandlerFunc func(msg any) bool

// Handle calls f(msg).
func (f HandlerFunc) Handle(msg any) bool { return f(msg) }

// Queue is a FIFO of messages with a single consumer.
//
// Dispatch blocks while the buffer is full and returns immediately once the queue is closed,
// so producers never leak when the consumer goes away.
type Queue struct {
	msgs chan any
	done chan struct{}
	once sync.Once
}

// NewQueue creates a queue buffering up to size messages.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 64
	}
	return &Queue{
		msgs: make(chan any, size),
		done: make(chan struct{}),
	}
}

// Dispatch enqueues msg. Messages sent after [Queue.Close] are dropped.
func (q *Queue) Dispatch(msg any) {
	select {
	case <-q.done:
		return
	default:
	}

	select {
	case q.msgs <- msg:
	case <-q.done:
	}
}

// Next blocks until a message is available, the queue is closed, or ctx is done.
func (q *Queue) Next(ctx context.Context) (any, error) {
	select {
	case msg := <-q.msgs:
		return msg, nil
	case <-q.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the queue. Safe to call more than once.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}

// Run feeds every message to each handler in order until stop returns true,
// the queue is closed, or ctx is done.
//
// stop is evaluated after each message; a nil stop runs until close or cancellation.
func (q *Queue) Run(ctx context.Context, stop func() bool, handlers ...Handler) error {
	for {
		if stop != nil && stop() {
			return nil
		}

		msg, err := q.Next(ctx)
		if err != nil {
			return err
		}

		for _, h := range handlers {
			h.Handle(msg)
		}
	}
}
