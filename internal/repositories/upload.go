package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/strume/internal/models"
	"github.com/desertthunder/strume/internal/shared"
)

// UploadRepository keeps the history of submitted tasks.
type UploadRepository struct {
	db *sql.DB
}

// NewUploadRepository creates a new UploadRepository with the given database connection
func NewUploadRepository(db *sql.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// CreateUpload inserts u, assigning an ID when it has none.
func (r *UploadRepository) CreateUpload(ctx context.Context, u *models.Upload) error {
	if u.TaskID == "" {
		return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := nextSequence(ctx, tx, "uploads")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if u.ID == "" {
		u.ID = shared.GenerateID()
	}
	if u.StartedAt.IsZero() {
		u.StartedAt = time.Now()
	}

	query := `
		INSERT INTO uploads (id, sequence, task_id, email, source_file, title, artist, state, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query,
		u.ID, sequence, u.TaskID, u.Email, u.SourceFile, u.Title, u.Artist, u.State, u.StartedAt,
	); err != nil {
		return fmt.Errorf("failed to insert upload: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upload: %w", err)
	}
	return nil
}

// FinishUpload records the final state of a task.
func (r *UploadRepository) FinishUpload(ctx context.Context, taskID, state, errMsg string) error {
	var msg sql.NullString
	if errMsg != "" {
		msg = sql.NullString{String: errMsg, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE uploads SET state = ?, error_message = ?, finished_at = ? WHERE task_id = ?`,
		state, msg, time.Now(), taskID,
	)
	if err != nil {
		return fmt.Errorf("failed to update upload: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("upload not found: %s", taskID)
	}
	return nil
}

// ListUploads returns the most recent uploads for email, newest first.
// An empty email lists every account; limit <= 0 means no limit.
func (r *UploadRepository) ListUploads(ctx context.Context, email string, limit int) ([]models.Upload, error) {
	query := `
		SELECT id, task_id, email, source_file, title, artist, state, error_message, started_at, finished_at
		FROM uploads
	`
	args := []any{}
	if email != "" {
		query += " WHERE email = ?"
		args = append(args, email)
	}
	query += " ORDER BY sequence DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	var uploads []models.Upload
	for rows.Next() {
		var (
			u        models.Upload
			errMsg   sql.NullString
			finished sql.NullTime
		)
		if err := rows.Scan(
			&u.ID, &u.TaskID, &u.Email, &u.SourceFile, &u.Title, &u.Artist, &u.State,
			&errMsg, &u.StartedAt, &finished,
		); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		u.Error = errMsg.String
		if finished.Valid {
			t := finished.Time
			u.FinishedAt = &t
		}
		uploads = append(uploads, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating uploads: %w", err)
	}
	return uploads, nil
}
