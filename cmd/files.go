package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/strume/internal/formatter"
	"github.com/desertthunder/strume/internal/models"
	"github.com/desertthunder/strume/internal/repositories"
	"github.com/desertthunder/strume/internal/shared"
	"github.com/desertthunder/strume/internal/tasks"
)

// Files lists the account's instrumentals, caching the listing for offline use.
func (r *Runner) Files(ctx context.Context, cmd *cli.Command) error {
	email, err := r.email()
	if err != nil {
		return err
	}

	listing, err := r.listing(ctx, email, cmd.Bool("offline"))
	if err != nil {
		return err
	}

	format := cmd.String("format")
	if out := cmd.String("output"); out != "" {
		if err := formatter.WriteListing(listing, format, out); err != nil {
			return err
		}
		r.logger.Info("listing written", "path", out, "tracks", len(listing.Files))
		return nil
	}

	data, err := formatter.FormatListing(listing, format)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// listing fetches the backend listing and refreshes the cache, or reads the cache when offline.
func (r *Runner) listing(ctx context.Context, email string, offline bool) (*models.Listing, error) {
	db, dbErr := r.openDB()
	if dbErr != nil {
		r.logger.Warn("listing cache unavailable", "error", dbErr)
	} else {
		defer db.Close()
	}

	if offline {
		if dbErr != nil {
			return nil, dbErr
		}
		return repositories.NewTrackRepository(db).ListByEmail(ctx, email)
	}

	listing, err := r.api.ListFiles(ctx, email)
	if err != nil {
		return nil, err
	}
	if dbErr == nil {
		if err := repositories.NewTrackRepository(db).ReplaceForEmail(ctx, listing); err != nil {
			r.logger.Warn("failed to cache listing", "error", err)
		}
	}
	return listing, nil
}

// Delete removes an instrumental from the backend and from the local cache.
func (r *Runner) Delete(ctx context.Context, cmd *cli.Command) error {
	filename := cmd.StringArg("filename")
	if filename == "" {
		return fmt.Errorf("%w: filename is required", shared.ErrMissingArgument)
	}
	email, err := r.email()
	if err != nil {
		return err
	}

	if err := r.api.DeleteFile(ctx, filename, email); err != nil {
		return err
	}

	if db, err := r.openDB(); err == nil {
		defer db.Close()
		if err := repositories.NewTrackRepository(db).Delete(ctx, email, filename); err != nil {
			r.logger.Debug("track was not cached", "track", filename, "error", err)
		}
	}

	r.writePlain("✓ Deleted %s\n", filename)
	return nil
}

// Download saves instrumentals to disk, all of them unless filenames are given.
func (r *Runner) Download(ctx context.Context, cmd *cli.Command) error {
	email, err := r.email()
	if err != nil {
		return err
	}

	listing, err := r.api.ListFiles(ctx, email)
	if err != nil {
		return err
	}

	tracks := listing.Files
	if names := cmd.Args().Slice(); len(names) > 0 {
		tracks = tracks[:0:0]
		for _, name := range names {
			tr, ok := listing.Find(name)
			if !ok {
				return fmt.Errorf("%w: %s", shared.ErrTrackNotFound, name)
			}
			tracks = append(tracks, tr)
		}
	}
	if len(tracks) == 0 {
		r.writePlain("Nothing to download.\n")
		return nil
	}

	opts := tasks.BulkDownloadOpts{
		OutputDir: r.config.Download.OutputDir,
		Workers:   r.config.Download.Workers,
		RateLimit: r.config.Download.RateLimit,
	}
	if dir := cmd.String("output"); dir != "" {
		opts.OutputDir = dir
	}
	if n := cmd.Int("workers"); n > 0 {
		opts.Workers = int(n)
	}
	if rl := cmd.Float("rate-limit"); rl > 0 {
		opts.RateLimit = rl
	}

	if db, err := r.openDB(); err != nil {
		r.logger.Warn("local paths will not be recorded", "error", err)
	} else {
		defer db.Close()
		repo := repositories.NewTrackRepository(db)
		if err := repo.ReplaceForEmail(ctx, listing); err != nil {
			r.logger.Warn("failed to cache listing", "error", err)
		}
		opts.OnSaved = func(tr models.Track, path string) {
			if err := repo.SetLocalPath(ctx, email, tr.Filename, path); err != nil {
				r.logger.Warn("failed to record local path", "track", tr.Filename, "error", err)
			}
		}
	}

	prog := make(chan tasks.DownloadUpdate, len(tracks)+1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for u := range prog {
			r.writePlain("%s\n", u.Message)
		}
	}()

	result, err := tasks.BulkDownload(ctx, prog, r.api, tracks, opts)
	close(prog)
	<-done
	if err != nil {
		return err
	}

	r.writePlainln("Downloaded %d/%d tracks to %s", result.Succeeded, result.Total, result.OutputDirectory)
	if result.Failed > 0 {
		return fmt.Errorf("%w: %d downloads failed", shared.ErrAPIRequest, result.Failed)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
