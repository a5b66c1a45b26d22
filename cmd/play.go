package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/strume/internal/device"
	"github.com/desertthunder/strume/internal/loop"
	"github.com/desertthunder/strume/internal/models"
	"github.com/desertthunder/strume/internal/playback"
	"github.com/desertthunder/strume/internal/repositories"
	"github.com/desertthunder/strume/internal/shared"
)

// Play plays one track to the end, or until interrupted.
func (r *Runner) Play(ctx context.Context, cmd *cli.Command) error {
	target := cmd.StringArg("track")
	if target == "" {
		return fmt.Errorf("%w: track is required", shared.ErrMissingArgument)
	}

	var repo *repositories.TrackRepository
	if db, err := r.openDB(); err == nil {
		defer db.Close()
		repo = repositories.NewTrackRepository(db)
	}

	track, err := r.resolveTrack(ctx, target, repo)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	speaker := device.NewSpeaker(r.config.Playback.SampleRate, r.config.Playback.BufferDuration())
	defer speaker.Close()

	loader := playback.NewCacheLoader(r.api, r.config.Playback.CacheDir, r.logger)
	if repo != nil {
		email := r.config.Account.Email
		loader.OnCached = func(tr models.Track, path string) {
			if err := repo.SetLocalPath(context.Background(), email, tr.Filename, path); err != nil {
				r.logger.Debug("cached path not recorded", "track", tr.Filename, "error", err)
			}
		}
	}

	queue := loop.NewQueue(0)
	defer queue.Close()

	player := playback.NewCoordinator(playback.CoordinatorOpts{
		Loader:     loader,
		Device:     speaker,
		Dispatcher: queue,
		Logger:     shared.WithLogger(r.logger, "track", track.Filename),
		Autoplay:   true,
	})

	var snap playback.Snapshot
	player.Subscribe(func(s playback.Snapshot) {
		if s.State != snap.State {
			r.writePlain("%s: %s\n", s.State, s.Track.Label())
		}
		snap = s
	})

	player.RequestPlay(track)
	err = queue.Run(ctx, func() bool {
		return snap.State == playback.Ended || snap.State == playback.Errored
	}, player)
	player.RequestClose()

	switch {
	case snap.State == playback.Errored:
		return snap.Err
	case errors.Is(err, context.Canceled):
		return nil
	default:
		return err
	}
}

// resolveTrack finds what to play: a local file, a previously downloaded copy, or a backend track.
func (r *Runner) resolveTrack(ctx context.Context, target string, repo *repositories.TrackRepository) (models.Track, error) {
	if fileExists(target) {
		return models.Track{Filename: target}, nil
	}

	email, err := r.email()
	if err != nil {
		return models.Track{}, err
	}

	if repo != nil {
		if path, err := repo.LocalPath(ctx, email, target); err == nil && fileExists(path) {
			r.logger.Debug("playing local copy", "path", path)
			return models.Track{Filename: path}, nil
		}
	}

	listing, err := r.api.ListFiles(ctx, email)
	if err != nil {
		return models.Track{}, err
	}
	track, ok := listing.Find(target)
	if !ok {
		return models.Track{}, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, target)
	}
	return track, nil
}
