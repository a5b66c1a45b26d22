package tasks

import (
	"fmt"

	"github.com/desertthunder/strume/internal/models"
)

// ProgressUpdate is a snapshot of the current task sent to subscribers after each transition.
type ProgressUpdate struct {
	TaskID   string
	Phase    State
	Percent  int    // Merged, non-decreasing display value
	Transfer int    // Raw transfer percent
	Process  int    // Raw processing percent
	Message  string // Human-readable status line
	Err      error
}

// Done reports whether the update describes a finished task.
func (u ProgressUpdate) Done() bool {
	return u.Phase.Terminal()
}

func taskUpdate(t *UploadTask, percent int) ProgressUpdate {
	return ProgressUpdate{
		TaskID:   t.ID,
		Phase:    t.State,
		Percent:  percent,
		Transfer: t.TransferPercent,
		Process:  t.ProcessPercent,
		Message:  StatusText(t.State, t.ProcessPercent, t.Err),
		Err:      t.Err,
	}
}

func idleUpdate() ProgressUpdate {
	return ProgressUpdate{Phase: Idle}
}

// DownloadUpdate reports one step of a [BulkDownload].
type DownloadUpdate struct {
	Step    int
	Total   int
	Track   models.Track
	Path    string
	Message string
	Err     error
}

func downloadStartUpdate(total int) DownloadUpdate {
	return DownloadUpdate{
		Total:   total,
		Message: fmt.Sprintf("Downloading %d tracks...", total),
	}
}

func downloadCompletedUpdate(step, total int, tr models.Track, path string) DownloadUpdate {
	return DownloadUpdate{
		Step:    step,
		Total:   total,
		Track:   tr,
		Path:    path,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, tr.Label()),
	}
}

func downloadFailedUpdate(step, total int, tr models.Track, err error) DownloadUpdate {
	return DownloadUpdate{
		Step:    step,
		Total:   total,
		Track:   tr,
		Err:     err,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, tr.Label(), err),
	}
}

func sendDownloadProgress(ch chan<- DownloadUpdate, u DownloadUpdate) {
	if ch == nil {
		return
	}
	select {
	case ch <- u:
	default:
	}
}
