package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/strume/internal/models"
	"github.com/desertthunder/strume/internal/shared"
)

// TrackRepository caches the backend's track listing per email.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// ReplaceForEmail makes the cache for listing.Email match listing.Files.
//
// Tracks missing from the listing are soft-deleted; tracks that reappear are restored with
// their original sequence and local path.
func (r *TrackRepository) ReplaceForEmail(ctx context.Context, listing *models.Listing) error {
	if listing == nil || listing.Email == "" {
		return fmt.Errorf("%w: listing email", shared.ErrMissingArgument)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE tracks SET deleted_at = ? WHERE email = ? AND deleted_at IS NULL`,
		now, listing.Email,
	); err != nil {
		return fmt.Errorf("failed to clear cached tracks: %w", err)
	}

	query := `
		INSERT INTO tracks (id, sequence, email, filename, title, artist, genre, download_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email, filename) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			genre = excluded.genre,
			download_url = excluded.download_url,
			updated_at = excluded.updated_at,
			deleted_at = NULL
	`
	for _, tr := range listing.Files {
		sequence, err := nextSequence(ctx, tx, "tracks")
		if err != nil {
			return fmt.Errorf("failed to generate sequence: %w", err)
		}

		if _, err := tx.ExecContext(ctx, query,
			shared.GenerateID(),
			sequence,
			listing.Email,
			tr.Filename,
			tr.Title,
			tr.Artist,
			tr.Genre,
			tr.DownloadURL,
			now,
			now,
		); err != nil {
			return fmt.Errorf("failed to upsert track %s: %w", tr.Filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit track cache: %w", err)
	}
	return nil
}

// ListByEmail returns the cached listing for email in the order tracks were first seen.
func (r *TrackRepository) ListByEmail(ctx context.Context, email string) (*models.Listing, error) {
	query := `
		SELECT filename, title, artist, genre, download_url
		FROM tracks
		WHERE email = ? AND deleted_at IS NULL
		ORDER BY sequence ASC
	`

	rows, err := r.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	listing := &models.Listing{Email: email, Files: []models.Track{}}
	for rows.Next() {
		var tr models.Track
		if err := rows.Scan(&tr.Filename, &tr.Title, &tr.Artist, &tr.Genre, &tr.DownloadURL); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		listing.Files = append(listing.Files, tr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tracks: %w", err)
	}
	return listing, nil
}

// Delete soft-deletes a cached track.
func (r *TrackRepository) Delete(ctx context.Context, email, filename string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tracks SET deleted_at = ? WHERE email = ? AND filename = ? AND deleted_at IS NULL`,
		time.Now(), email, filename,
	)
	if err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}
	return expectRow(result, filename)
}

// SetLocalPath records where a track was saved on disk.
func (r *TrackRepository) SetLocalPath(ctx context.Context, email, filename, path string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tracks SET local_path = ?, updated_at = ? WHERE email = ? AND filename = ? AND deleted_at IS NULL`,
		path, time.Now(), email, filename,
	)
	if err != nil {
		return fmt.Errorf("failed to update local path: %w", err)
	}
	return expectRow(result, filename)
}

// LocalPath returns the saved location of a track, or "" when it was never downloaded.
func (r *TrackRepository) LocalPath(ctx context.Context, email, filename string) (string, error) {
	var path string
	err := r.db.QueryRowContext(ctx,
		`SELECT local_path FROM tracks WHERE email = ? AND filename = ? AND deleted_at IS NULL`,
		email, filename,
	).Scan(&path)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", shared.ErrTrackNotFound, filename)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query local path: %w", err)
	}
	return path, nil
}

func expectRow(result sql.Result, filename string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrTrackNotFound, filename)
	}
	return nil
}
