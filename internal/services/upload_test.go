package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/strume/internal/models"
	"github.com/desertthunder/strume/internal/shared"
	tu "github.com/desertthunder/strume/internal/testing"
)

type percentLog struct {
	mu     sync.Mutex
	values []int
}

func (p *percentLog) add(v int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, v)
}

func (p *percentLog) snapshot() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.values...)
}

func TestUploader(t *testing.T) {
	audio := bytes.Repeat([]byte("0123456789abcdef"), 64*1024)
	path := tu.WriteTempFile(t, "track.mp3", audio)

	t.Run("Send", func(t *testing.T) {
		t.Run("Streams Multipart Form", func(t *testing.T) {
			fields := map[string]string{}
			var fileSize int
			var contentLength int64

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/separate" || r.URL.Query().Get("task_id") != "task-1" {
					t.Errorf("unexpected target %s", r.URL.String())
				}
				contentLength = r.ContentLength

				_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
				if err != nil {
					t.Errorf("bad content type: %v", err)
					return
				}
				mr := multipart.NewReader(r.Body, params["boundary"])
				for {
					part, err := mr.NextPart()
					if err == io.EOF {
						break
					}
					if err != nil {
						t.Errorf("NextPart() error = %v", err)
						return
					}
					data, _ := io.ReadAll(part)
					if part.FormName() == "file" {
						fileSize = len(data)
						if part.FileName() != "track.mp3" {
							t.Errorf("expected filename track.mp3, got %s", part.FileName())
						}
						continue
					}
					fields[part.FormName()] = string(data)
				}
				w.Write([]byte("instrumental-bytes"))
			}))
			defer server.Close()

			uploader := NewUploader(NewAPIService(server.URL, nil), nil, 0)
			progress := &percentLog{}
			var out bytes.Buffer

			err := uploader.Send(context.Background(), UploadRequest{
				TaskID:   "task-1",
				Path:     path,
				Metadata: models.Metadata{Title: "Song", Artist: "Band", Genre: "Rock"},
				Email:    "a@b.c",
				KeepFile: false,
				Output:   &out,
			}, progress.add)
			if err != nil {
				t.Fatalf("Send() error = %v", err)
			}

			want := map[string]string{"title": "Song", "artist": "Band", "genre": "Rock", "email": "a@b.c", "keep_file": "false"}
			for k, v := range want {
				if fields[k] != v {
					t.Errorf("field %s: expected %q, got %q", k, v, fields[k])
				}
			}
			if fileSize != len(audio) {
				t.Errorf("expected %d file bytes, got %d", len(audio), fileSize)
			}
			if contentLength <= int64(len(audio)) {
				t.Errorf("expected explicit content length above file size, got %d", contentLength)
			}
			if out.String() != "instrumental-bytes" {
				t.Errorf("expected instrumental written to output, got %q", out.String())
			}

			values := progress.snapshot()
			if len(values) == 0 || values[len(values)-1] != 100 {
				t.Fatalf("expected progress ending at 100, got %v", values)
			}
			for i := 1; i < len(values); i++ {
				if values[i] <= values[i-1] {
					t.Errorf("progress not increasing at %d: %v", i, values)
					break
				}
			}
		})

		t.Run("Throttled Progress Still Reaches 100", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.Copy(io.Discard, r.Body)
			}))
			defer server.Close()

			uploader := NewUploader(NewAPIService(server.URL, nil), nil, time.Hour)
			progress := &percentLog{}

			if err := uploader.Send(context.Background(), UploadRequest{TaskID: "t", Path: path, Email: "a@b.c"}, progress.add); err != nil {
				t.Fatalf("Send() error = %v", err)
			}

			values := progress.snapshot()
			if len(values) > 2 {
				t.Errorf("expected the limiter to drop intermediate updates, got %v", values)
			}
			if values[len(values)-1] != 100 {
				t.Errorf("expected final 100, got %v", values)
			}
		})

		t.Run("Non-Success Status", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.Copy(io.Discard, r.Body)
				http.Error(w, "Separation failed", http.StatusInternalServerError)
			}))
			defer server.Close()

			err := NewUploader(NewAPIService(server.URL, nil), nil, 0).
				Send(context.Background(), UploadRequest{TaskID: "t", Path: path, Email: "a@b.c"}, nil)
			if !errors.Is(err, shared.ErrUpload) || !errors.Is(err, shared.ErrAPIRequest) {
				t.Errorf("expected ErrUpload wrapping ErrAPIRequest, got %v", err)
			}
		})

		t.Run("Missing File", func(t *testing.T) {
			err := NewUploader(NewAPIService("http://example.com", nil), nil, 0).
				Send(context.Background(), UploadRequest{TaskID: "t", Path: "/no/such/file"}, nil)
			if !errors.Is(err, shared.ErrUpload) {
				t.Errorf("expected ErrUpload, got %v", err)
			}
		})

		t.Run("Transport Failure", func(t *testing.T) {
			client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection refused"))}

			err := NewUploader(NewAPIService("http://example.com", nil), client, 0).
				Send(context.Background(), UploadRequest{TaskID: "t", Path: path}, nil)
			if !errors.Is(err, shared.ErrUpload) {
				t.Errorf("expected ErrUpload, got %v", err)
			}
		})

		t.Run("Cancellation Suppresses Progress", func(t *testing.T) {
			release := make(chan struct{})
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				<-release
			}))
			defer server.Close()
			defer close(release)

			ctx, cancel := context.WithCancel(context.Background())
			progress := &percentLog{}
			errc := make(chan error, 1)

			go func() {
				errc <- NewUploader(NewAPIService(server.URL, nil), nil, 0).
					Send(ctx, UploadRequest{TaskID: "t", Path: path}, progress.add)
			}()

			time.Sleep(50 * time.Millisecond)
			cancel()

			select {
			case err := <-errc:
				if !errors.Is(err, context.Canceled) {
					t.Errorf("expected context.Canceled, got %v", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("Send did not return after cancel")
			}

			before := len(progress.snapshot())
			time.Sleep(20 * time.Millisecond)
			if after := len(progress.snapshot()); after != before {
				t.Errorf("progress reported after cancellation: %d -> %d", before, after)
			}
		})
	})

	t.Run("Multipart Frame", func(t *testing.T) {
		head, tail, contentType, err := multipartFrame(UploadRequest{Path: "/x/y.wav", Email: "a@b.c", KeepFile: true})
		if err != nil {
			t.Fatalf("multipartFrame() error = %v", err)
		}

		body := append(append(append([]byte{}, head...), []byte("AUDIO")...), tail...)
		_, params, _ := mime.ParseMediaType(contentType)
		form, err := multipart.NewReader(bytes.NewReader(body), params["boundary"]).ReadForm(1 << 20)
		if err != nil {
			t.Fatalf("ReadForm() error = %v", err)
		}

		if got := form.Value["keep_file"]; len(got) != 1 || got[0] != "true" {
			t.Errorf("expected keep_file=true, got %v", got)
		}
		files := form.File["file"]
		if len(files) != 1 || files[0].Filename != "y.wav" || files[0].Size != 5 {
			t.Errorf("unexpected file part: %+v", files)
		}
	})
}
