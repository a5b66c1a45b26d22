package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/desertthunder/strume/internal/models"
	"github.com/desertthunder/strume/internal/shared"
)

// UploadRequest is one file submitted for separation.
type UploadRequest struct {
	TaskID   string
	Path     string
	Metadata models.Metadata
	Email    string
	KeepFile bool
	// Output receives the instrumental returned by the backend. Nil discards it.
	Output io.Writer
}

// Uploader implements [Transport] against POST /separate.
type Uploader struct {
	api        *APIService
	httpClient *http.Client
	interval   time.Duration
}

// NewUploader creates an uploader that reports progress at most once per interval.
// A non-positive interval reports every change.
func NewUploader(api *APIService, client *http.Client, interval time.Duration) *Uploader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Uploader{api: api, httpClient: client, interval: interval}
}

// Send uploads req.Path and waits for the backend's response.
//
// The context aborts the request; once it is done no further progress is reported.
func (u *Uploader) Send(ctx context.Context, req UploadRequest, progress func(percent int)) error {
	f, err := os.Open(req.Path)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrUpload, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrUpload, err)
	}

	head, tail, contentType, err := multipartFrame(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrUpload, err)
	}

	total := int64(len(head)) + info.Size() + int64(len(tail))
	counter := newProgressReader(
		ctx,
		io.MultiReader(bytes.NewReader(head), f, bytes.NewReader(tail)),
		total,
		u.limiter(),
		progress,
	)
	defer counter.stop()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.api.SeparateURL(req.TaskID), counter)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", shared.ErrUpload, err)
	}
	httpReq.ContentLength = total
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := u.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", shared.ErrUpload, ctx.Err())
		}
		return fmt.Errorf("%w: %v", shared.ErrUpload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %w: status %d: %s", shared.ErrUpload, shared.ErrAPIRequest, resp.StatusCode, bytes.TrimSpace(body))
	}

	counter.finish()

	out := req.Output
	if out == nil {
		out = io.Discard
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("%w: failed to read instrumental: %v", shared.ErrUpload, err)
	}
	return nil
}

func (u *Uploader) limiter() *rate.Limiter {
	if u.interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(u.interval), 1)
}

// multipartFrame renders everything around the file bytes: the text fields and file part
// header as head, the closing boundary as tail.
func multipartFrame(req UploadRequest) (head, tail []byte, contentType string, err error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"title", req.Metadata.Title},
		{"artist", req.Metadata.Artist},
		{"genre", req.Metadata.Genre},
		{"email", req.Email},
		{"keep_file", strconv.FormatBool(req.KeepFile)},
	}
	for _, field := range fields {
		if err := mw.WriteField(field.name, field.value); err != nil {
			return nil, nil, "", err
		}
	}

	if _, err := mw.CreateFormFile("file", filepath.Base(req.Path)); err != nil {
		return nil, nil, "", err
	}
	headLen := buf.Len()

	if err := mw.Close(); err != nil {
		return nil, nil, "", err
	}

	all := buf.Bytes()
	head = append([]byte(nil), all[:headLen]...)
	tail = append([]byte(nil), all[headLen:]...)
	return head, tail, mw.FormDataContentType(), nil
}

// progressReader counts bytes pulled by the HTTP client and reports them as a percent.
//
// The HTTP transport may still be reading after Do returns, so reporting is gated
// by a stopped flag that Send sets before returning.
type progressReader struct {
	ctx      context.Context
	r        io.Reader
	total    int64
	limiter  *rate.Limiter
	progress func(int)

	mu      sync.Mutex
	sent    int64
	last    int
	stopped bool
}

func newProgressReader(ctx context.Context, r io.Reader, total int64, l *rate.Limiter, fn func(int)) *progressReader {
	return &progressReader{ctx: ctx, r: r, total: total, limiter: l, progress: fn, last: -1}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.mu.Lock()
		p.sent += int64(n)
		pct := 100
		if p.total > 0 {
			pct = int(p.sent * 100 / p.total)
		}
		p.reportLocked(pct, false)
		p.mu.Unlock()
	}
	return n, err
}

// finish reports 100 if the limiter swallowed the final update.
func (p *progressReader) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reportLocked(100, true)
}

func (p *progressReader) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
}

func (p *progressReader) reportLocked(pct int, force bool) {
	if p.progress == nil || p.stopped || p.ctx.Err() != nil {
		return
	}
	if pct > 100 {
		pct = 100
	}
	if pct <= p.last {
		return
	}
	if !force && pct < 100 && !p.limiter.Allow() {
		return
	}
	p.last = pct
	p.progress(pct)
}
