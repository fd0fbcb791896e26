// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// setupCommand writes the config template and prepares the run history database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml if missing, initialize the database and run migrations",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

// catalogCommand handles mailbox catalog operations
func catalogCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "catalog",
		Usage: "Mailbox catalog operations",
		Commands: []*cli.Command{
			{
				Name:  "fetch",
				Usage: "Crawl the Anytime Mailbox location directory",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Save the catalog as CSV for later runs with verify --catalog",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the catalog as JSON",
					},
				},
				Action: r.CatalogFetch,
			},
		},
	}
}

// credentialsCommand lists the configured accounts
func credentialsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "credentials",
		Aliases: []string{"creds"},
		Usage:   "List configured Smarty credentials and their quota (identifiers masked)",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Credentials,
	}
}

// verifyCommand runs the full pipeline: catalog, verification, ranking and report.
func verifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Verify every catalog address and write the ranked non-CMRA report",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "catalog",
				Usage: "Read the catalog from a CSV file instead of crawling",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Report path (default: result/mailboxes.{format})",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Report format: csv, json, markdown, txt",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent verification workers",
			},
			&cli.FloatFlag{
				Name:  "rate",
				Usage: "Provider requests per second shared by all workers",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Confirm and monitor the run in an interactive terminal UI",
			},
			&cli.BoolFlag{
				Name:  "no-history",
				Usage: "Do not record the run in the database",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve /metrics and /healthz on this address while the run is in flight",
			},
		},
		Action: r.Verify,
	}
}

// runsCommand handles run history
func runsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Inspect recorded verification runs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recorded runs, newest first",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only show runs with this status (running, completed, partial, failed)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to return",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.RunsList,
			},
			{
				Name:  "show",
				Usage: "Show one run by ID or sequence number",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "kind",
						Usage: "Only list outcomes of this kind (verified, rejected, failed, skipped)",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.RunsShow,
			},
		},
	}
}
