package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/strume/internal/models"
)

// MsgKind enumerates the UI's own message types.
// Coordinator messages travel separately and are routed by type.
type MsgKind int

// Msg represents the UI's messages (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgTracksFetched MsgKind = iota
	MsgTrackDeleted
	MsgMetadataDetected
	MsgTick
)

type tracksFetched struct {
	listing *models.Listing
	offline bool
	err     error
}

type trackDeleted struct {
	track models.Track
	err   error
}

type metadataDetected struct {
	path string
	meta *models.Metadata
	err  error
}

// tracksFetchedMsg is the constructor for [MsgTracksFetched]
func tracksFetchedMsg(listing *models.Listing, offline bool, err error) Msg {
	return Msg{kind: MsgTracksFetched, data: tracksFetched{listing, offline, err}}
}

// trackDeletedMsg is the constructor for [MsgTrackDeleted]
func trackDeletedMsg(track models.Track, err error) Msg {
	return Msg{kind: MsgTrackDeleted, data: trackDeleted{track, err}}
}

// metadataDetectedMsg is the constructor for [MsgMetadataDetected]
func metadataDetectedMsg(path string, meta *models.Metadata, err error) Msg {
	return Msg{kind: MsgMetadataDetected, data: metadataDetected{path, meta, err}}
}

// tickMsg is the constructor for [MsgTick]
func tickMsg(t time.Time) Msg {
	return Msg{kind: MsgTick, data: t}
}
