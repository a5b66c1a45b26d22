package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/strume/internal/loop"
	"github.com/desertthunder/strume/internal/models"
	"github.com/desertthunder/strume/internal/repositories"
	"github.com/desertthunder/strume/internal/services"
	"github.com/desertthunder/strume/internal/shared"
	"github.com/desertthunder/strume/internal/tasks"
)

// Upload submits a song for separation and prints merged progress until the task ends.
//
// The command runs its own event loop: the coordinator's background work posts to a
// [loop.Queue] drained here, and Ctrl-C cancels the task.
func (r *Runner) Upload(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("file")
	email, err := r.email()
	if err != nil {
		return err
	}

	meta := models.Metadata{
		Title:  cmd.String("title"),
		Artist: cmd.String("artist"),
		Genre:  cmd.String("genre"),
	}
	if cmd.Bool("detect") && path != "" {
		if detected, err := r.api.DetectMetadata(ctx, path); err != nil {
			r.logger.Warn("metadata detection failed, continuing without it", "error", err)
		} else {
			meta = meta.Merge(*detected)
			r.logger.Info("detected metadata", "title", meta.Title, "artist", meta.Artist, "genre", meta.Genre)
		}
	}

	keep := r.config.Upload.KeepFile
	if cmd.IsSet("keep") {
		keep = cmd.Bool("keep")
	}

	var output io.Writer
	var saved bool
	savePath := cmd.String("save")
	if savePath != "" {
		f, err := os.Create(savePath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", savePath, err)
		}
		// Only a succeeded task leaves the instrumental behind.
		defer func() {
			f.Close()
			if !saved {
				os.Remove(savePath)
			}
		}()
		output = f
	}

	var recorder tasks.Recorder
	if db, err := r.openDB(); err != nil {
		r.logger.Warn("upload history disabled", "error", err)
	} else {
		defer db.Close()
		recorder = repositories.NewUploadRepository(db)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue := loop.NewQueue(0)
	defer queue.Close()

	coord := tasks.NewCoordinator(tasks.CoordinatorOpts{
		Transport:  services.NewUploader(r.api, r.httpClient, r.config.Upload.ProgressInterval()),
		Streams:    services.NewProgressStreamer(r.api, r.httpClient, r.logger),
		Dispatcher: queue,
		Logger:     r.logger,
		Floor:      r.config.Upload.ProcessingFloor,
		Recorder:   recorder,
	})

	printer := newProgressPrinter(r.output)
	var last tasks.ProgressUpdate
	coord.Subscribe(func(u tasks.ProgressUpdate) {
		last = u
		printer.print(u)
	})

	id, err := coord.Submit(ctx, tasks.Submission{
		Path:     path,
		Metadata: meta,
		Email:    email,
		KeepFile: keep,
		Output:   output,
	})
	if err != nil {
		return err
	}
	r.logger.Debug("upload started", "task", id, "file", path)

	if err := queue.Run(ctx, func() bool { return last.Done() }, coord); err != nil {
		coord.Cancel()
		printer.finish()
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("upload cancelled: %w", err)
		}
		return err
	}
	printer.finish()

	if last.Phase == tasks.Failed {
		return last.Err
	}

	saved = true
	if savePath != "" {
		r.writePlain("Instrumental saved to %s\n", savePath)
	}
	r.writePlain("Run 'strume files' to see it in your library.\n")
	return nil
}

// progressPrinter redraws one status line per update.
type progressPrinter struct {
	w       io.Writer
	bar     progress.Model
	percent int
	message string
	drawn   bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{
		w:   w,
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (p *progressPrinter) print(u tasks.ProgressUpdate) {
	if u.TaskID == "" || (p.drawn && u.Percent == p.percent && u.Message == p.message) {
		return
	}
	p.percent = u.Percent
	p.message = u.Message
	p.drawn = true
	fmt.Fprintf(p.w, "\r\033[K%s  %s", p.bar.ViewAs(float64(u.Percent)/100), u.Message)
}

func (p *progressPrinter) finish() {
	if p.drawn {
		fmt.Fprintln(p.w)
		p.drawn = false
	}
}

// Detect prints the metadata the backend identifies for a file.
func (r *Runner) Detect(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("file")
	if path == "" {
		return fmt.Errorf("%w: file is required", shared.ErrMissingArgument)
	}

	meta, err := r.api.DetectMetadata(ctx, path)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(meta, true)
	}

	r.writePlainHeader("Detected metadata")
	r.writePlain("Title:  %s\n", orDash(meta.Title))
	r.writePlain("Artist: %s\n", orDash(meta.Artist))
	r.writePlain("Genre:  %s\n", orDash(meta.Genre))
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
