package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/desertthunder/strume/internal/models"
	"github.com/desertthunder/strume/internal/shared"
)

// Downloader fetches the audio for one track.
type Downloader interface {
	Download(ctx context.Context, track models.Track, w io.Writer) (int64, error)
}

// BulkDownloadOpts contains configuration for bulk track downloads.
type BulkDownloadOpts struct {
	OutputDir string                                // Destination directory (default: downloads)
	Workers   int                                   // Concurrent downloads (default: 4, max: 10)
	RateLimit float64                               // Requests per second (default: 5)
	OnSaved   func(track models.Track, path string) // Called from a worker after each file lands
}

// DownloadResult is the outcome for one track.
type DownloadResult struct {
	Track models.Track
	Path  string
	Bytes int64
	Err   error
}

// BulkDownloadResult summarizes a [BulkDownload] run. Results keep the input order.
type BulkDownloadResult struct {
	Total           int
	Succeeded       int
	Failed          int
	OutputDirectory string
	Results         []DownloadResult
}

// BulkDownload saves many tracks concurrently with rate limiting and progress reporting.
//
// Individual failures are collected in the result; only setup problems return an error.
// Each file is written to a temporary name and renamed into place once complete.
func BulkDownload(
	ctx context.Context,
	prog chan<- DownloadUpdate,
	dl Downloader,
	tracks []models.Track,
	opts BulkDownloadOpts,
) (*BulkDownloadResult, error) {
	if dl == nil {
		return nil, fmt.Errorf("%w: downloader not initialized", shared.ErrServiceUnavailable)
	}

	if opts.OutputDir == "" {
		opts.OutputDir = "downloads"
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Workers > 10 {
		opts.Workers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &BulkDownloadResult{
		Total:           len(tracks),
		OutputDirectory: opts.OutputDir,
		Results:         make([]DownloadResult, len(tracks)),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	sendDownloadProgress(prog, downloadStartUpdate(len(tracks)))

	var (
		mu        sync.Mutex
		completed int
	)

	g := new(errgroup.Group)
	g.SetLimit(opts.Workers)

	for i, tr := range tracks {
		g.Go(func() error {
			res := DownloadResult{Track: tr}
			if err := limiter.Wait(ctx); err != nil {
				res.Err = err
			} else {
				res.Path, res.Bytes, res.Err = saveTrack(ctx, dl, tr, opts.OutputDir)
			}

			if res.Err == nil && opts.OnSaved != nil {
				opts.OnSaved(tr, res.Path)
			}

			mu.Lock()
			defer mu.Unlock()
			completed++
			result.Results[i] = res
			if res.Err != nil {
				result.Failed++
				sendDownloadProgress(prog, downloadFailedUpdate(completed, len(tracks), tr, res.Err))
			} else {
				result.Succeeded++
				sendDownloadProgress(prog, downloadCompletedUpdate(completed, len(tracks), tr, res.Path))
			}
			return nil
		})
	}

	// Workers record failures per track in result and always return nil.
	g.Wait()
	return result, nil
}

// TrackFileName is the local file name for a track.
func TrackFileName(tr models.Track) string {
	name := filepath.Base(tr.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "track.wav"
	}
	return name
}

func saveTrack(ctx context.Context, dl Downloader, tr models.Track, dir string) (string, int64, error) {
	dest := filepath.Join(dir, TrackFileName(tr))

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := dl.Download(ctx, tr, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close %s: %w", tmp.Name(), cerr)
	}
	if err != nil {
		return "", n, err
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", n, fmt.Errorf("failed to move download into place: %w", err)
	}
	return dest, n, nil
}
