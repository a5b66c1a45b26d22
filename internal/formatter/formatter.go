// package formatter renders track listings and upload history as CSV, Markdown, plain text, JSON or YAML
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/desertthunder/strume/internal/models"
	"github.com/desertthunder/strume/internal/shared"
)

// Formats accepted by [FormatListing].
const (
	FormatText     = "txt"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
)

// FormatListing renders l in the named format.
func FormatListing(l *models.Listing, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", FormatText, "text":
		return ListingToText(l, ""), nil
	case FormatCSV:
		return ListingToCSV(l)
	case FormatMarkdown, "md":
		return ListingToMarkdown(l), nil
	case FormatJSON:
		return shared.MarshalJSON(l, true)
	case FormatYAML, "yml":
		return ListingToYAML(l)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidInput, format)
	}
}

// WriteListing renders l into path, creating parent directories.
func WriteListing(l *models.Listing, format, path string) error {
	data, err := FormatListing(l, format)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ListingToText renders a numbered list. The track whose ref equals nowPlaying is marked.
func ListingToText(l *models.Listing, nowPlaying string) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Email: %s\n", l.Email))
	buf.WriteString(fmt.Sprintf("Tracks: %d\n\n", len(l.Files)))

	for i, track := range l.Files {
		marker := ""
		if nowPlaying != "" && track.Ref() == nowPlaying {
			marker = "  [Now Playing]"
		}
		genre := ""
		if track.Genre != "" {
			genre = fmt.Sprintf(" (%s)", track.Genre)
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s%s [%s]%s\n", i+1, track.DisplayArtist(), track.DisplayTitle(), genre, track.Filename, marker))
	}

	return buf.Bytes()
}

// ListingToCSV converts a listing to CSV with columns: Filename, Title, Artist, Genre, Download URL
func ListingToCSV(l *models.Listing) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Filename", "Title", "Artist", "Genre", "Download URL"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range l.Files {
		record := []string{track.Filename, track.Title, track.Artist, track.Genre, track.DownloadURL}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ListingToMarkdown renders a listing as a Markdown table
func ListingToMarkdown(l *models.Listing) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# Tracks for %s\n\n", l.Email))
	buf.WriteString(fmt.Sprintf("**Tracks**: %d\n\n", len(l.Files)))

	if len(l.Files) == 0 {
		buf.WriteString("_No tracks yet._\n")
		return buf.Bytes()
	}

	buf.WriteString("| # | Title | Artist | Genre | File |\n")
	buf.WriteString("|---|-------|--------|-------|------|\n")
	for i, track := range l.Files {
		buf.WriteString(fmt.Sprintf("| %d | %s | %s | %s | [%s](%s) |\n",
			i+1,
			escapeCell(track.DisplayTitle()),
			escapeCell(track.DisplayArtist()),
			escapeCell(track.Genre),
			escapeCell(track.Filename),
			track.DownloadURL,
		))
	}

	return buf.Bytes()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// ListingToYAML converts a listing to YAML using the json field names
func ListingToYAML(l *models.Listing) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(l); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	return buf.Bytes(), nil
}

// UploadsToText renders upload history as an aligned table
func UploadsToText(uploads []models.Upload) []byte {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "STARTED\tSTATE\tTITLE\tFILE\tTASK\tERROR")
	for _, u := range uploads {
		title := u.Title
		if title == "" {
			title = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			u.StartedAt.Local().Format(time.DateTime),
			u.State,
			shared.Truncate(title, 30),
			filepath.Base(u.SourceFile),
			shared.Truncate(u.TaskID, 8),
			shared.Truncate(u.Error, 40),
		)
	}
	w.Flush()

	return buf.Bytes()
}
