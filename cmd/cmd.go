// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write the example configuration to the --config path",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

// mixCommand builds an instant mix
func mixCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "mix",
		Usage: "Build an instant mix for a track, album, artist, playlist or folder",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "item",
				Aliases:  []string{"i"},
				Usage:    "Root item ID",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "User ID whose library visibility applies",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of tracks (default: mix.default_limit)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, csv, markdown or json",
				Value:   "text",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the mix to a file instead of stdout",
			},
			&cli.StringFlag{
				Name:  "save-as",
				Usage: "Also store the mix as a playlist with this name owned by --user",
			},
		},
		Action: r.Mix,
	}
}

// syncCommand handles fingerprint playlist sweeps and their history
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Fingerprint playlist synchronization",
		Commands: []*cli.Command{
			{
				Name:  "fingerprint",
				Usage: "Regenerate every user's sonic fingerprint playlist",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output the run as JSON",
					},
					&cli.BoolFlag{
						Name:  "no-history",
						Usage: "Do not record the run in the database",
					},
				},
				Action: r.SyncFingerprint,
			},
			{
				Name:  "history",
				Usage: "List recorded sync runs, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to show",
						Value: 10,
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only show runs with this status (running, completed, cancelled, failed)",
					},
					&cli.StringFlag{
						Name:  "trigger",
						Usage: "Only show runs started by this trigger (cli, http, schedule)",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SyncHistory,
			},
		},
	}
}

// backendCommand handles direct calls to the similarity backend
func backendCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "backend",
		Aliases: []string{"be"},
		Usage:   "Direct calls to the AudioMuse AI backend",
		Commands: []*cli.Command{
			{
				Name:   "health",
				Usage:  "Check that the backend answers",
				Action: r.BackendHealth,
			},
			{
				Name:  "get",
				Usage: "Direct GET to the backend, prints the response body",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "path",
					},
				},
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "query",
						Aliases: []string{"q"},
						Usage:   "Query parameter as key=value, repeatable",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print JSON output",
						Value: true,
					},
				},
				Action: r.BackendGet,
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
				Action: r.BackendPost,
			},
			{
				Name:  "analysis",
				Usage: "Start a library analysis task",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "data",
						Aliases: []string{"d"},
						Usage:   "JSON task parameters",
						Value:   "{}",
					},
				},
				Action: r.BackendAnalysis,
			},
			{
				Name:  "clustering",
				Usage: "Start a clustering task",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "data",
						Aliases: []string{"d"},
						Usage:   "JSON task parameters",
						Value:   "{}",
					},
				},
				Action: r.BackendClustering,
			},
		},
	}
}

// serveCommand runs the HTTP service
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve instant mixes and the backend relay over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: server.host:server.port)",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Fingerprint sweep interval, 0 disables (default: sync.interval)",
			},
		},
		Action: r.Serve,
	}
}
