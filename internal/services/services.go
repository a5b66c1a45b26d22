package services

import (
	"context"
	"io"

	"github.com/desertthunder/strume/internal/models"
)

// Library is the track catalogue kept by the backend for one account email.
type Library interface {
	ListFiles(ctx context.Context, email string) (*models.Listing, error)
	DeleteFile(ctx context.Context, filename, email string) error
	DetectMetadata(ctx context.Context, path string) (*models.Metadata, error)
	Download(ctx context.Context, track models.Track, w io.Writer) (int64, error)
}

// Transport performs one upload, reporting transfer percent through progress.
//
// progress is called with non-decreasing values in [0, 100] and never after Send returns.
type Transport interface {
	Send(ctx context.Context, req UploadRequest, progress func(percent int)) error
}

// Streamer opens a progress stream scoped to a task id.
type Streamer interface {
	Open(ctx context.Context, taskID string, h StreamHandler) (Stream, error)
}

// Stream is an open progress channel. Close is idempotent.
type Stream interface {
	Close()
}

// StreamHandler receives decoded progress values.
//
// Calls are made from the stream's reader goroutine; implementations hand the value off
// to the owning event loop rather than mutating state directly.
type StreamHandler interface {
	OnProgress(value int)
	OnTransportError(err error)
}
