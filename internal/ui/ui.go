package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/desertthunder/strume/internal/playback"
	"github.com/desertthunder/strume/internal/services"
	"github.com/desertthunder/strume/internal/shared"
	"github.com/desertthunder/strume/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	LibraryView ViewState = iota
	UploadView
)

const tickInterval = 100 * time.Millisecond

// Options wires a [Model]. Tasks and Player must dispatch through the program running the model.
type Options struct {
	Library  services.Library
	Cache    ListingCache // optional
	Tasks    *tasks.Coordinator
	Player   *playback.Coordinator
	Email    string
	KeepFile bool
	Logger   *log.Logger
}

// Model represents the TUI application state.
type Model struct {
	ctx     context.Context
	view    ViewState
	lib     services.Library
	cache   ListingCache
	tasks   *tasks.Coordinator
	player  *playback.Coordinator
	email   string
	logger  *log.Logger
	width   int
	height  int
	ticking bool

	library *librarySurface
	bar     *nowPlayingBar
	viz     *visualizer
	upload  *uploadPanel

	unsubscribe []func()
	help        help.Model
	keys        keyMap
}

// NewModel creates a new TUI model and subscribes its surfaces to the coordinators.
func NewModel(ctx context.Context, opts Options) *Model {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}

	m := &Model{
		ctx:     ctx,
		view:    LibraryView,
		lib:     opts.Library,
		cache:   opts.Cache,
		tasks:   opts.Tasks,
		player:  opts.Player,
		email:   opts.Email,
		logger:  opts.Logger,
		library: newLibrarySurface(),
		bar:     &nowPlayingBar{},
		viz:     &visualizer{},
		upload:  newUploadPanel(opts.Email, opts.KeepFile),
		help:    help.New(),
		keys:    newKeyMap(),
	}

	m.unsubscribe = append(m.unsubscribe,
		m.player.Subscribe(m.library.onSnapshot),
		m.player.Subscribe(m.bar.onSnapshot),
		m.player.Subscribe(m.viz.onSnapshot),
		m.tasks.Subscribe(m.upload.onUpdate),
	)
	return m
}

// Close releases the live playback resource and any running task and drops the subscriptions.
func (m *Model) Close() {
	for _, fn := range m.unsubscribe {
		fn()
	}
	m.unsubscribe = nil
	m.player.RequestClose()
	m.tasks.Cancel()
}

// Init initializes the TUI by fetching the track listing.
func (m *Model) Init() tea.Cmd {
	return m.fetchTracks()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.player.Handle(msg) {
		return m, m.startTick()
	}
	if m.tasks.Handle(msg) {
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.library.list.SetSize(msg.Width-4, max(msg.Height-6, 4))
		return m, nil

	case tasks.RefreshTracksMsg:
		m.logger.Debug("refreshing listing", "task", msg.TaskID)
		return m, m.fetchTracks()

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateView(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgTracksFetched:
		data := msg.data.(tracksFetched)
		if data.err != nil {
			m.library.loading = false
			m.library.err = data.err
			m.library.status = fmt.Sprintf("Refresh failed: %v", data.err)
			return m, nil
		}
		m.library.status = ""
		m.library.setListing(data.listing, data.offline)

	case MsgTrackDeleted:
		data := msg.data.(trackDeleted)
		if data.err != nil {
			m.library.status = fmt.Sprintf("Delete failed: %v", data.err)
			return m, nil
		}
		m.library.status = fmt.Sprintf("Deleted %s", data.track.Filename)
		if m.player.Snapshot().Active(data.track.Ref()) {
			m.player.RequestClose()
		}
		return m, m.fetchTracks()

	case MsgMetadataDetected:
		data := msg.data.(metadataDetected)
		if data.err != nil {
			m.upload.notice = "Could not detect metadata."
			m.logger.Warn("metadata detection failed", "file", data.path, "error", data.err)
			return m, nil
		}
		m.upload.detected = data.path
		m.upload.fill(*data.meta)
		m.upload.notice = "Metadata detected."

	case MsgTick:
		m.ticking = false
		snap := m.player.Snapshot()
		m.bar.snap = snap
		m.viz.snap = snap
		m.viz.levels = m.player.Levels()
		return m, m.startTick()
	}
	return m, nil
}

// startTick schedules a refresh of position and waveform while something plays.
func (m *Model) startTick() tea.Cmd {
	if m.ticking || m.player.Snapshot().State != playback.Playing {
		return nil
	}
	m.ticking = true
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m.quit()
	}
	if m.viz.open {
		return m.handleVisualizerKeys(msg)
	}

	switch m.view {
	case UploadView:
		return m.handleUploadKeys(msg)
	default:
		return m.handleLibraryKeys(msg)
	}
}

func (m *Model) handleLibraryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.library.filtering() {
		return m.updateView(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m.quit()
	case key.Matches(msg, m.keys.play):
		if tr, ok := m.library.selected(); ok {
			m.player.RequestPlay(tr)
			return m, m.startTick()
		}
		return m, nil
	case key.Matches(msg, m.keys.close):
		m.player.RequestClose()
		return m, nil
	case key.Matches(msg, m.keys.visualizer):
		m.viz.open = true
		m.viz.levels = m.player.Levels()
		return m, nil
	case key.Matches(msg, m.keys.upload):
		m.view = UploadView
		return m, m.upload.setFocus(m.upload.focus)
	case key.Matches(msg, m.keys.refresh):
		m.library.status = "Refreshing…"
		return m, m.fetchTracks()
	case key.Matches(msg, m.keys.delete):
		if tr, ok := m.library.selected(); ok {
			m.library.status = fmt.Sprintf("Deleting %s…", tr.Filename)
			return m, deleteTrack(m.ctx, m.lib, m.cache, m.email, tr, m.logger)
		}
		return m, nil
	}

	return m.updateView(msg)
}

func (m *Model) handleVisualizerKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.visualizer):
		m.viz.open = false
	case key.Matches(msg, m.keys.play):
		if snap := m.player.Snapshot(); snap.State != playback.Closed {
			m.player.RequestPlay(snap.Track)
			return m, m.startTick()
		}
	case key.Matches(msg, m.keys.close):
		m.player.RequestClose()
	case key.Matches(msg, m.keys.quit):
		return m.quit()
	}
	return m, nil
}

func (m *Model) handleUploadKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.upload

	switch {
	case key.Matches(msg, m.keys.back):
		if p.busy() {
			m.tasks.Cancel()
			p.notice = "Upload cancelled."
			return m, nil
		}
		p.inputs[p.focus].Blur()
		m.view = LibraryView
		return m, nil
	case key.Matches(msg, m.keys.next):
		return m, p.setFocus(p.focus + 1)
	case key.Matches(msg, m.keys.prev):
		return m, p.setFocus(p.focus - 1)
	case key.Matches(msg, m.keys.keep):
		p.keep = !p.keep
		return m, nil
	case key.Matches(msg, m.keys.detect):
		path := p.value(fieldPath)
		if path == "" {
			p.notice = "Select a file first."
			return m, nil
		}
		p.notice = "Detecting metadata…"
		return m, detectMetadata(m.ctx, m.lib, path)
	case key.Matches(msg, m.keys.submit):
		if _, err := m.tasks.Submit(m.ctx, p.submission()); err != nil {
			p.notice = tasks.FailureText(err)
			return m, nil
		}
		return m, nil
	}

	return m, p.updateInputs(msg)
}

func (m *Model) updateView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case LibraryView:
		m.library.list, cmd = m.library.list.Update(msg)
	case UploadView:
		cmd = m.upload.updateInputs(msg)
	}
	return m, cmd
}

func (m *Model) quit() (tea.Model, tea.Cmd) {
	m.Close()
	return m, tea.Quit
}

func (m *Model) fetchTracks() tea.Cmd {
	return fetchTracks(m.ctx, m.lib, m.cache, m.email, m.logger)
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	var body string
	var helpKeys []key.Binding
	switch {
	case m.viz.open:
		body = m.viz.view(m.width)
	case m.view == UploadView:
		body = m.upload.view(m.width)
		helpKeys = []key.Binding{m.keys.submit, m.keys.next, m.keys.detect, m.keys.keep, m.keys.back}
	default:
		body = m.library.view()
		helpKeys = []key.Binding{m.keys.play, m.keys.close, m.keys.visualizer, m.keys.upload, m.keys.refresh, m.keys.delete, m.keys.quit}
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		body,
		m.bar.view(m.width),
		m.help.ShortHelpView(helpKeys),
	)
}

// Run starts the TUI on a fresh program and blocks until it exits.
//
// bridge must be the dispatcher the coordinators in opts were built with.
func Run(ctx context.Context, bridge *Bridge, opts Options) error {
	m := NewModel(ctx, opts)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	bridge.Attach(p)

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui exited: %w", err)
	}
	return nil
}
