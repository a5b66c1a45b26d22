package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrTrackNotFound      = fmt.Errorf("track not found")

	// Task errors, terminal for the owning upload task
	ErrValidation        = fmt.Errorf("validation error")
	ErrUpload            = fmt.Errorf("upload failed")
	ErrProcessing        = fmt.Errorf("processing failed")
	ErrStreamInterrupted = fmt.Errorf("progress stream interrupted")

	// Playback errors, terminal for the owning playback resource
	ErrPlayback        = fmt.Errorf("playback error")
	ErrPlaybackBlocked = fmt.Errorf("%w: output refused playback", ErrPlayback)

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)
