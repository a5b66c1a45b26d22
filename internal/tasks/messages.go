package tasks

import "github.com/desertthunder/strume/internal/services"

// Messages posted to the event loop by the coordinator's goroutines. Every message carries
// the task id it was produced for; the coordinator drops any whose id is no longer current.

// TransferMsg carries an upload transfer percent.
type TransferMsg struct {
	TaskID  string
	Percent int
}

// UploadDoneMsg ends the upload. Err is nil on a 2xx response.
type UploadDoneMsg struct {
	TaskID string
	Err    error
}

// StreamOpenedMsg reports the outcome of opening the progress stream.
type StreamOpenedMsg struct {
	TaskID string
	Stream services.Stream
	Err    error
}

// StreamValueMsg carries one decoded progress value, -1 included.
type StreamValueMsg struct {
	TaskID string
	Value  int
}

// StreamErrorMsg reports a dropped progress stream.
type StreamErrorMsg struct {
	TaskID string
	Err    error
}

// RefreshTracksMsg asks listing surfaces to reload after a task succeeds.
type RefreshTracksMsg struct {
	TaskID string
}
