package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/strume/internal/models"
	"github.com/desertthunder/strume/internal/playback"
)

var _ list.Item = trackItem{}

// trackItem wraps [models.Track] to implement [list.Item].
// state is the play state when the track is the live resource, [playback.Closed] otherwise.
type trackItem struct {
	track models.Track
	state playback.State
}

func (i trackItem) FilterValue() string {
	return i.track.DisplayTitle() + " " + i.track.DisplayArtist()
}

func (i trackItem) Title() string {
	if i.state == playback.Closed {
		return i.track.DisplayTitle()
	}
	return "♪ " + i.track.DisplayTitle()
}

func (i trackItem) Description() string {
	parts := []string{i.track.DisplayArtist()}
	if i.track.Genre != "" {
		parts = append(parts, i.track.Genre)
	}
	if label := nowPlayingLabel(i.state); label != "" {
		parts = append(parts, label)
	}
	return strings.Join(parts, " • ")
}

func nowPlayingLabel(s playback.State) string {
	switch s {
	case playback.Loading:
		return "Loading…"
	case playback.Ready, playback.Paused:
		return "Now Playing (paused)"
	case playback.Playing:
		return "Now Playing"
	case playback.Ended:
		return "Now Playing (ended)"
	case playback.Errored:
		return "Playback error"
	default:
		return ""
	}
}

// trackItems builds list items for tracks, marking the one snap describes.
func trackItems(tracks []models.Track, snap playback.Snapshot) []list.Item {
	items := make([]list.Item, len(tracks))
	for i, tr := range tracks {
		item := trackItem{track: tr}
		if snap.Active(tr.Ref()) {
			item.state = snap.State
		}
		items[i] = item
	}
	return items
}
