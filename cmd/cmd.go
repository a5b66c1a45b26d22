// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand writes a config file and prepares the local database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml if missing, initialize the database and run migrations",
		Action: r.Setup,
	}
}

// uploadCommand submits a song for separation and follows it to completion.
func uploadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Aliases:   []string{"separate"},
		Usage:     "Upload a song and wait for its instrumental",
		ArgsUsage: "<file>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "file"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Usage: "Song title"},
			&cli.StringFlag{Name: "artist", Usage: "Song artist"},
			&cli.StringFlag{Name: "genre", Usage: "Song genre"},
			&cli.BoolFlag{
				Name:  "keep",
				Usage: "Keep the uploaded file on the server (defaults to upload.keep_file)",
			},
			&cli.BoolFlag{
				Name:  "detect",
				Usage: "Fill missing metadata from the backend's detection first",
			},
			&cli.StringFlag{
				Name:    "save",
				Aliases: []string{"o"},
				Usage:   "Write the returned instrumental to this path",
			},
		},
		Action: r.Upload,
	}
}

// detectCommand identifies a song without uploading it for separation.
func detectCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "detect",
		Usage:     "Detect title, artist and genre of an audio file",
		ArgsUsage: "<file>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "file"},
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
		},
		Action: r.Detect,
	}
}

// filesCommand lists the account's instrumentals.
func filesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "files",
		Aliases: []string{"ls", "tracks"},
		Usage:   "List processed instrumentals",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: txt, csv, markdown, json, yaml",
				Value:   "txt",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the listing to a file instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "offline",
				Usage: "Read the last cached listing instead of calling the backend",
			},
		},
		Action: r.Files,
	}
}

// deleteCommand removes an instrumental from the backend.
func deleteCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "Delete a processed instrumental",
		ArgsUsage: "<filename>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "filename"},
		},
		Action: r.Delete,
	}
}

// downloadCommand saves instrumentals locally.
func downloadCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "download",
		Aliases:   []string{"dl"},
		Usage:     "Download instrumentals (all of them, or the named files)",
		ArgsUsage: "[filename...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory (defaults to download.output_dir)",
			},
			&cli.IntFlag{Name: "workers", Usage: "Concurrent downloads (defaults to download.workers)"},
			&cli.FloatFlag{Name: "rate-limit", Usage: "Requests per second (defaults to download.rate_limit)"},
		},
		Action: r.Download,
	}
}

// playCommand plays one track on the default audio output.
func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "play",
		Usage:     "Play an instrumental by filename, or a local audio file",
		ArgsUsage: "<filename|path>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "track"},
		},
		Action: r.Play,
	}
}

// historyCommand shows uploads recorded locally.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent uploads and how they ended",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Usage: "Maximum number of uploads to show", Value: 20},
			&cli.BoolFlag{Name: "all", Usage: "Include uploads for every email"},
			&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
		},
		Action: r.History,
	}
}

// apiCommand handles direct API calls
func apiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Direct API calls to the separation backend",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Direct GET to the backend, prints raw JSON",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output compact JSON",
					},
				},
				Action: r.APIGet,
			},
			{
				Name:  "post",
				Usage: "Direct POST with JSON body",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "JSON body to send",
						Required: true,
					},
				},
				Action: r.APIPost,
			},
		},
	}
}

// tuiCommand returns the top-level TUI command.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive library, player and uploader",
		Action:  r.TUI,
	}
}
