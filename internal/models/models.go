// package models defines the data model for the strume client
package models

import (
	"strings"
	"time"
)

// Track represents a processed instrumental stored by the backend.
type Track struct {
	Filename    string `json:"filename" yaml:"filename"`
	Title       string `json:"title" yaml:"title"`
	Artist      string `json:"artist" yaml:"artist"`
	Genre       string `json:"genre" yaml:"genre"`
	DownloadURL string `json:"download_url" yaml:"download_url"`
}

// Ref returns the stable identity of the track: its download location, or the filename when no URL is known.
func (t Track) Ref() string {
	if t.DownloadURL != "" {
		return t.DownloadURL
	}
	return t.Filename
}

// DisplayTitle returns the title, or "Untitled".
func (t Track) DisplayTitle() string {
	if strings.TrimSpace(t.Title) == "" {
		return "Untitled"
	}
	return t.Title
}

// DisplayArtist returns the artist, or "Unknown".
func (t Track) DisplayArtist() string {
	if strings.TrimSpace(t.Artist) == "" {
		return "Unknown"
	}
	return t.Artist
}

// Label formats the track as "Title – Artist".
func (t Track) Label() string {
	return t.DisplayTitle() + " – " + t.DisplayArtist()
}

// Metadata describes an audio file being submitted.
type Metadata struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Genre  string `json:"genre"`
}

// Merge fills empty fields of m from other and returns the result.
func (m Metadata) Merge(other Metadata) Metadata {
	if m.Title == "" {
		m.Title = other.Title
	}
	if m.Artist == "" {
		m.Artist = other.Artist
	}
	if m.Genre == "" {
		m.Genre = other.Genre
	}
	return m
}

// Listing is the set of tracks filed under one email.
type Listing struct {
	Email string  `json:"email" yaml:"email"`
	Files []Track `json:"files" yaml:"files"`
}

// Find returns the track with the given filename.
func (l *Listing) Find(filename string) (Track, bool) {
	for _, t := range l.Files {
		if t.Filename == filename {
			return t, true
		}
	}
	return Track{}, false
}

// Upload is one submitted separation task as kept in local history.
type Upload struct {
	ID         string     `json:"id"`
	TaskID     string     `json:"task_id"`
	Email      string     `json:"email"`
	SourceFile string     `json:"source_file"`
	Title      string     `json:"title,omitempty"`
	Artist     string     `json:"artist,omitempty"`
	State      string     `json:"state"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
