package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/desertthunder/strume/internal/models"
	"github.com/desertthunder/strume/internal/playback"
	"github.com/desertthunder/strume/internal/services"
)

// ListingCache keeps the last listing per email for offline browsing.
type ListingCache interface {
	ReplaceForEmail(ctx context.Context, listing *models.Listing) error
	ListByEmail(ctx context.Context, email string) (*models.Listing, error)
	Delete(ctx context.Context, email, filename string) error
}

// librarySurface lists the account's tracks and marks the live one.
type librarySurface struct {
	list    list.Model
	tracks  []models.Track
	snap    playback.Snapshot
	offline bool
	loading bool
	status  string
	err     error
}

func newLibrarySurface() *librarySurface {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Instrumentals"
	l.SetShowHelp(false)
	return &librarySurface{list: l, loading: true}
}

// onSnapshot is the surface's playback subscription.
func (s *librarySurface) onSnapshot(snap playback.Snapshot) {
	prev := s.snap
	s.snap = snap
	if prev.Ref() != snap.Ref() || prev.State != snap.State {
		s.list.SetItems(trackItems(s.tracks, snap))
	}
}

func (s *librarySurface) setListing(l *models.Listing, offline bool) {
	s.tracks = l.Files
	s.offline = offline
	s.loading = false
	s.err = nil
	s.list.SetItems(trackItems(s.tracks, s.snap))
	if offline {
		s.list.Title = fmt.Sprintf("Instrumentals for %s (offline)", l.Email)
	} else {
		s.list.Title = fmt.Sprintf("Instrumentals for %s", l.Email)
	}
}

func (s *librarySurface) selected() (models.Track, bool) {
	item, ok := s.list.SelectedItem().(trackItem)
	if !ok {
		return models.Track{}, false
	}
	return item.track, true
}

func (s *librarySurface) filtering() bool {
	return s.list.FilterState() == list.Filtering
}

func (s *librarySurface) view() string {
	switch {
	case s.err != nil && len(s.tracks) == 0:
		return styles.err.Render(fmt.Sprintf("Could not load tracks: %v", s.err))
	case s.loading && len(s.tracks) == 0:
		return styles.help.Render("Loading tracks…")
	case len(s.tracks) == 0:
		return styles.help.Render("No instrumentals yet. Press u to upload a song.")
	}
	out := s.list.View()
	if s.status != "" {
		out += "\n" + styles.warn.Render(s.status)
	}
	return out
}

// fetchTracks loads the listing, falling back to the cache when the backend is unreachable.
func fetchTracks(ctx context.Context, lib services.Library, cache ListingCache, email string, logger *log.Logger) tea.Cmd {
	return func() tea.Msg {
		listing, err := lib.ListFiles(ctx, email)
		if err == nil {
			if cache != nil {
				if cerr := cache.ReplaceForEmail(ctx, listing); cerr != nil {
					logger.Warn("failed to cache listing", "error", cerr)
				}
			}
			return tracksFetchedMsg(listing, false, nil)
		}

		if cache != nil {
			if cached, cerr := cache.ListByEmail(ctx, email); cerr == nil && len(cached.Files) > 0 {
				logger.Warn("showing cached listing", "error", err)
				return tracksFetchedMsg(cached, true, nil)
			}
		}
		return tracksFetchedMsg(nil, false, err)
	}
}

func deleteTrack(ctx context.Context, lib services.Library, cache ListingCache, email string, track models.Track, logger *log.Logger) tea.Cmd {
	return func() tea.Msg {
		if err := lib.DeleteFile(ctx, track.Filename, email); err != nil {
			return trackDeletedMsg(track, err)
		}
		if cache != nil {
			if err := cache.Delete(ctx, email, track.Filename); err != nil {
				logger.Debug("cached track not removed", "track", track.Filename, "error", err)
			}
		}
		return trackDeletedMsg(track, nil)
	}
}
