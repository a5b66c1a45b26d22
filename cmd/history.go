package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/strume/internal/formatter"
	"github.com/desertthunder/strume/internal/repositories"
)

// History prints uploads recorded in the local database, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	email := ""
	if !cmd.Bool("all") {
		var err error
		if email, err = r.email(); err != nil {
			return err
		}
	}

	db, err := r.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	uploads, err := repositories.NewUploadRepository(db).ListUploads(ctx, email, int(cmd.Int("limit")))
	if err != nil {
		return fmt.Errorf("failed to list uploads: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(uploads, true)
	}
	if len(uploads) == 0 {
		return r.writePlain("No uploads yet.\n")
	}
	_, err = r.output.Write(formatter.UploadsToText(uploads))
	return err
}
