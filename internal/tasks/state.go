package tasks

import (
	"errors"
	"fmt"

	"github.com/desertthunder/strume/internal/shared"
)

// DefaultFloor is the displayed percent at which server processing starts.
const DefaultFloor = 60

// State is the lifecycle position of an [UploadTask].
type State int

const (
	Idle State = iota
	Uploading
	AwaitingProcessing
	Processing
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Uploading:
		return "uploading"
	case AwaitingProcessing:
		return "awaiting_processing"
	case Processing:
		return "processing"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

// Terminal reports whether no further transitions can happen from s.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}

// UploadTask is one submission tracked from upload through server processing.
type UploadTask struct {
	ID              string
	State           State
	TransferPercent int // 0..100, non-decreasing while Uploading
	ProcessPercent  int // 0..100, or -1 once the server reports failure
	Err             error
}

// DisplayPercent merges the two progress signals into one 0..100 value.
//
// Transfer fills [0, floor] and processing fills [floor, 100], so the value at the
// phase switch is the same on both sides.
func DisplayPercent(state State, transfer, process, floor int) int {
	floor = clamp(floor, 0, 100)
	transfer = clamp(transfer, 0, 100)
	process = clamp(process, 0, 100)

	uploading := transfer * floor / 100
	processing := floor + process*(100-floor)/100

	switch state {
	case Uploading:
		return uploading
	case AwaitingProcessing:
		return floor
	case Processing:
		return processing
	case Succeeded:
		return 100
	case Failed:
		if transfer < 100 {
			return uploading
		}
		return processing
	default:
		return 0
	}
}

// StatusText is the user-facing line for a task in state s.
func StatusText(s State, process int, err error) string {
	switch s {
	case Uploading:
		return "Uploading..."
	case AwaitingProcessing:
		return "Separating vocals..."
	case Processing:
		return fmt.Sprintf("Processing... %d%%", clamp(process, 0, 100))
	case Succeeded:
		return "Done! Your instrumental is ready."
	case Failed:
		return FailureText(err)
	default:
		return ""
	}
}

// FailureText maps a task error onto the status line shown for it.
func FailureText(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, shared.ErrValidation):
		return "Please select a file and enter your email."
	case errors.Is(err, shared.ErrProcessing):
		return "Something went wrong during processing."
	case errors.Is(err, shared.ErrStreamInterrupted):
		return "Lost connection to server."
	case errors.Is(err, shared.ErrUpload) && errors.Is(err, shared.ErrAPIRequest):
		return "Upload failed."
	case errors.Is(err, shared.ErrUpload):
		return "Network error during upload."
	default:
		return err.Error()
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
