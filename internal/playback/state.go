package playback

import (
	"time"

	"github.com/desertthunder/strume/internal/models"
)

// State is the play state of the live resource.
type State int

const (
	Closed State = iota // no resource
	Loading
	Ready
	Playing
	Paused
	Ended
	Errored
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Ended:
		return "ended"
	case Errored:
		return "errored"
	default:
		return ""
	}
}

// Snapshot is what subscribers see of the live resource.
type Snapshot struct {
	ResourceID uint64
	Track      models.Track
	State      State
	Err        error
	Position   time.Duration
	Duration   time.Duration
}

// Ref is the track ref of the live resource, empty when closed.
func (s Snapshot) Ref() string {
	if s.State == Closed {
		return ""
	}
	return s.Track.Ref()
}

// Active reports whether s describes a live resource for ref.
func (s Snapshot) Active(ref string) bool {
	return s.State != Closed && s.Track.Ref() == ref
}

// LoadedMsg reports the outcome of a load started for ResourceID.
type LoadedMsg struct {
	ResourceID uint64
	Media      *Media
	Err        error
}

// EndedMsg reports end-of-media for ResourceID.
type EndedMsg struct {
	ResourceID uint64
}
