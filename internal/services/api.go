// API service for the separation backend's plain HTTP endpoints
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/strume/internal/models"
	"github.com/desertthunder/strume/internal/shared"
)

// DefaultBaseURL is where the backend listens when no server is configured.
const DefaultBaseURL string = "http://127.0.0.1:8000"

// unknownValue is what the backend's detector returns for fields it could not identify.
const unknownValue string = "Unknown"

// APIService provides methods for the listing, download, delete and detection endpoints.
type APIService struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIService creates a new API service instance for the backend at baseURL.
func NewAPIService(baseURL string, client *http.Client) *APIService {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &APIService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

// BaseURL returns the backend root without a trailing slash.
func (a *APIService) BaseURL() string {
	return a.baseURL
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// DownloadURL is the download location of a stored file, which doubles as its track ref.
func (a *APIService) DownloadURL(filename string) string {
	return a.baseURL + "/download?" + url.Values{"file": {filename}}.Encode()
}

// ProgressURL is the server-sent event stream for a task.
func (a *APIService) ProgressURL(taskID string) string {
	return a.baseURL + "/progress/" + url.PathEscape(taskID)
}

// SeparateURL is the upload endpoint for a task.
func (a *APIService) SeparateURL(taskID string) string {
	return a.baseURL + "/separate?" + url.Values{"task_id": {taskID}}.Encode()
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return a.do(req)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req)
}

func (a *APIService) do(req *http.Request) (*APIResponse, error) {
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}

	var jsonData any
	if err := json.Unmarshal(body, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// ListFiles fetches the stored tracks for email.
//
// Tracks without a download_url get one built from their filename so every track has a ref.
func (a *APIService) ListFiles(ctx context.Context, email string) (*models.Listing, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email", shared.ErrMissingArgument)
	}

	resp, err := a.Get(ctx, "/files?"+url.Values{"email": {email}}.Encode())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var listing models.Listing
	if err := json.Unmarshal(resp.Body, &listing); err != nil {
		return nil, fmt.Errorf("%w: failed to decode listing: %v", shared.ErrAPIRequest, err)
	}

	if listing.Email == "" {
		listing.Email = email
	}
	if listing.Files == nil {
		listing.Files = []models.Track{}
	}
	for i := range listing.Files {
		if listing.Files[i].DownloadURL == "" {
			listing.Files[i].DownloadURL = a.DownloadURL(listing.Files[i].Filename)
		}
	}
	return &listing, nil
}

type deleteRequest struct {
	File  string `json:"file"`
	Email string `json:"email"`
}

// DeleteFile removes a stored track. A 404 maps to [shared.ErrTrackNotFound].
func (a *APIService) DeleteFile(ctx context.Context, filename, email string) error {
	if filename == "" || email == "" {
		return fmt.Errorf("%w: file and email", shared.ErrMissingArgument)
	}

	body, err := json.Marshal(deleteRequest{File: filename, Email: email})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, a.baseURL+"/delete", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", shared.ErrTrackNotFound, filename)
	}
	return checkStatus(resp)
}

// DetectMetadata asks the backend to fingerprint the file at path.
//
// Fields the backend reports as "Unknown" come back empty so they can be merged
// under user-entered values.
func (a *APIService) DetectMetadata(ctx context.Context, path string) (*models.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to create form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to create form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/detect-metadata", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := a.do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var md models.Metadata
	if err := json.Unmarshal(resp.Body, &md); err != nil {
		return nil, fmt.Errorf("%w: failed to decode metadata: %v", shared.ErrAPIRequest, err)
	}

	for _, field := range []*string{&md.Title, &md.Artist, &md.Genre} {
		if strings.EqualFold(strings.TrimSpace(*field), unknownValue) {
			*field = ""
		}
	}
	return &md, nil
}

// Download streams the audio for track into w and returns the number of bytes written.
func (a *APIService) Download(ctx context.Context, track models.Track, w io.Writer) (int64, error) {
	target := track.DownloadURL
	if target == "" {
		if track.Filename == "" {
			return 0, fmt.Errorf("%w: track has no filename", shared.ErrMissingArgument)
		}
		target = a.DownloadURL(track.Filename)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, track.Filename)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: download returned status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to write download: %w", err)
	}
	return n, nil
}

func checkStatus(resp *APIResponse) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail := strings.TrimSpace(string(resp.Body))
	if m, ok := resp.JSONData.(map[string]any); ok {
		if d, ok := m["detail"].(string); ok {
			detail = d
		}
	}
	return fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, shared.Truncate(detail, 120))
}
