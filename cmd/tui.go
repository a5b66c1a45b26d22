package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/strume/internal/device"
	"github.com/desertthunder/strume/internal/models"
	"github.com/desertthunder/strume/internal/playback"
	"github.com/desertthunder/strume/internal/repositories"
	"github.com/desertthunder/strume/internal/services"
	"github.com/desertthunder/strume/internal/shared"
	"github.com/desertthunder/strume/internal/tasks"
	"github.com/desertthunder/strume/internal/ui"
)

// TUI launches the interactive terminal UI.
//
// Both coordinators dispatch into the running program, which is the single event loop.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	email, err := r.email()
	if err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(r.config.Log.File)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	var (
		cache    ui.ListingCache
		recorder tasks.Recorder
		tracks   *repositories.TrackRepository
	)
	if db, err := r.openDB(); err != nil {
		r.logger.Warn("running without local database", "error", err)
	} else {
		defer db.Close()
		tracks = repositories.NewTrackRepository(db)
		cache = tracks
		recorder = repositories.NewUploadRepository(db)
	}

	bridge := &ui.Bridge{}

	speaker := device.NewSpeaker(r.config.Playback.SampleRate, r.config.Playback.BufferDuration())
	defer speaker.Close()

	loader := playback.NewCacheLoader(r.api, r.config.Playback.CacheDir, r.logger)
	if tracks != nil {
		loader.OnCached = func(tr models.Track, path string) {
			if err := tracks.SetLocalPath(context.Background(), email, tr.Filename, path); err != nil {
				r.logger.Debug("cached path not recorded", "track", tr.Filename, "error", err)
			}
		}
	}

	player := playback.NewCoordinator(playback.CoordinatorOpts{
		Loader:     loader,
		Device:     speaker,
		Dispatcher: bridge,
		Logger:     shared.WithLogger(r.logger, "component", "playback"),
		Autoplay:   true,
	})

	coord := tasks.NewCoordinator(tasks.CoordinatorOpts{
		Transport:  services.NewUploader(r.api, r.httpClient, r.config.Upload.ProgressInterval()),
		Streams:    services.NewProgressStreamer(r.api, r.httpClient, r.logger),
		Dispatcher: bridge,
		Logger:     shared.WithLogger(r.logger, "component", "tasks"),
		Floor:      r.config.Upload.ProcessingFloor,
		Recorder:   recorder,
	})

	return ui.Run(ctx, bridge, ui.Options{
		Library:  r.api,
		Cache:    cache,
		Tasks:    coord,
		Player:   player,
		Email:    email,
		KeepFile: r.config.Upload.KeepFile,
		Logger:   r.logger,
	})
}
