// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print output",
		},
	}
}

func accountArg() []cli.Argument {
	return []cli.Argument{
		&cli.StringArg{
			Name: "id",
		},
	}
}

func accountFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "account",
		Aliases:  []string{"a"},
		Usage:    "Account ID",
		Required: true,
	}
}

// setupCommand handles database setup and migrations.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and database commands",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Create config.toml if needed, initialize the database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:  "status",
				Usage: "Show applied and pending migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.withConn(r.SetupStatus),
			},
			{
				Name:   "rollback",
				Usage:  "Revert the latest migration",
				Action: r.withConn(r.SetupRollback),
			},
		},
	}
}

// accountsCommand manages stored accounts and their sessions.
func accountsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "accounts",
		Aliases: []string{"acc"},
		Usage:   "Manage platform accounts and their sessions",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List stored accounts",
				Flags: append(jsonFlags(), &cli.BoolFlag{
					Name:  "active",
					Usage: "Only accounts that are not expired",
				}),
				Action: r.withDB(r.AccountsList),
			},
			{
				Name:      "show",
				Usage:     "Show an account and its session state",
				Arguments: accountArg(),
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "remote",
						Usage: "Also fetch the profile behind the session",
					},
				},
				Action: r.withDB(r.AccountsShow),
			},
			{
				Name:  "import",
				Usage: "Create or refresh an account from a logged-in request (DevTools: Copy as cURL)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "curl",
						Usage: "cURL command from browser DevTools",
					},
					&cli.StringFlag{
						Name:  "curl-file",
						Usage: "Path to .sh file containing cURL command",
					},
					&cli.StringFlag{
						Name:  "token",
						Usage: "Session token, when the request url has none",
					},
				},
				Action: r.withDB(r.AccountsImport),
			},
			{
				Name:      "invalidate",
				Usage:     "Drop an account's session locally and in the backend",
				Arguments: accountArg(),
				Action:    r.withDB(r.AccountsInvalidate),
			},
			{
				Name:      "capture",
				Usage:     "Store the account's partition cookies and local storage as its session",
				Arguments: accountArg(),
				Action:    r.withDB(r.AccountsCapture),
			},
			{
				Name:      "restore",
				Usage:     "Write an account's stored session back into its partition",
				Arguments: accountArg(),
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "clear",
						Usage: "Empty the partition first",
					},
				},
				Action: r.withDB(r.AccountsRestore),
			},
			{
				Name:   "pull",
				Usage:  "Copy accounts from the backend into the local store",
				Action: r.withDB(r.AccountsPull),
			},
			{
				Name:      "notices",
				Usage:     "Print an account's system notifications",
				Arguments: accountArg(),
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "begin",
						Usage: "Offset of the first notification",
					},
					&cli.IntFlag{
						Name:  "count",
						Usage: "Number of notifications",
						Value: 10,
					},
					&cli.IntFlag{
						Name:  "status",
						Usage: "Notification status filter",
					},
				},
				Action: r.withDB(r.AccountsNotices),
			},
		},
	}
}

// draftsCommand handles draft box operations.
func draftsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "drafts",
		Usage: "List, delete and copy drafts",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List one page of an account's drafts",
				Arguments: accountArg(),
				Flags: append(jsonFlags(),
					&cli.IntFlag{
						Name:  "begin",
						Usage: "Offset of the first draft",
					},
					&cli.IntFlag{
						Name:  "count",
						Usage: "Page size",
						Value: 10,
					},
					&cli.StringFlag{
						Name:    "query",
						Aliases: []string{"q"},
						Usage:   "Search drafts by title",
					},
				),
				Action: r.withDB(r.DraftsList),
			},
			{
				Name:  "show",
				Usage: "Print a draft's content",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
					&cli.StringArg{Name: "appmsgid"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.withDB(r.DraftsShow),
			},
			{
				Name:      "delete",
				Usage:     "Delete drafts from an account",
				Arguments: accountArg(),
				Flags: append(batchFlags(),
					&cli.StringSliceFlag{
						Name:  "id",
						Usage: "Draft id to delete (repeatable)",
					},
					&cli.StringFlag{
						Name:    "query",
						Aliases: []string{"q"},
						Usage:   "Delete every draft matching this search",
					},
				),
				Action: r.withDB(r.DraftsDelete),
			},
			{
				Name:  "sync",
				Usage: "Copy a draft to other accounts",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
					&cli.StringArg{Name: "appmsgid"},
				},
				Flags: append(batchFlags(),
					&cli.StringSliceFlag{
						Name:  "to",
						Usage: "Target account id (repeatable)",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Copy to every active account",
					},
				),
				Action: r.withDB(r.DraftsSync),
			},
		},
	}
}

// publishCommand handles mass-send publishing.
func publishCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Publish a draft across accounts",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run a publish plan: check, sync, verify and publish",
				Flags: append(batchFlags(),
					&cli.StringFlag{
						Name:     "plan",
						Aliases:  []string{"p"},
						Usage:    "Path to the plan JSON",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "qrcode",
						Usage: "Run QR confirmation for accounts that need it instead of skipping them",
					},
					&cli.StringFlag{
						Name:  "state",
						Usage: "Write the final per-account state to this file",
					},
				),
				Action: r.withDB(r.PublishRun),
			},
			{
				Name:  "check",
				Usage: "Read the mass-send state of drafts",
				Flags: append(batchFlags(),
					&cli.StringSliceFlag{
						Name:     "draft",
						Usage:    "account=appmsgid pair (repeatable)",
						Required: true,
					},
				),
				Action: r.withDB(r.PublishCheck),
			},
			{
				Name:  "regions",
				Usage: "List region children for group-notify targeting",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "region"},
				},
				Flags:  []cli.Flag{accountFlag()},
				Action: r.withDB(r.PublishRegions),
			},
		},
	}
}

// qrcodeCommand handles QR scan confirmation.
func qrcodeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "qrcode",
		Usage: "QR scan confirmation for protected accounts",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Show the confirmation QR code and wait for the scan",
				Flags: append(batchFlags(),
					accountFlag(),
					&cli.StringFlag{
						Name:     "appmsgid",
						Usage:    "Draft the confirmation is for",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "notify",
						Usage: "Confirm a notified mass send",
						Value: true,
					},
					&cli.BoolFlag{
						Name:  "no-open",
						Usage: "Do not open the saved QR image",
					},
				),
				Action: r.withDB(r.QRCodeLogin),
			},
		},
	}
}

// authCommand handles session sync to the backend.
func authCommand(r *Runner) *cli.Command {
	fileFlag := &cli.StringFlag{
		Name:    "file",
		Aliases: []string{"f"},
		Usage:   "Snapshot JSON file ({cookies, localStorage})",
	}
	return &cli.Command{
		Name:  "auth",
		Usage: "Sync session changes to the backend",
		Commands: []*cli.Command{
			{
				Name:   "sync",
				Usage:  "Push the changes of the current session once",
				Flags:  []cli.Flag{accountFlag(), fileFlag},
				Action: r.withDB(r.AuthSync),
			},
			{
				Name:  "watch",
				Usage: "Push changes whenever the snapshot file is written",
				Flags: []cli.Flag{
					accountFlag(),
					fileFlag,
					&cli.IntFlag{
						Name:  "debounce",
						Usage: "Milliseconds to wait for writes to settle (0 uses the config)",
					},
				},
				Action: r.withDB(r.AuthWatch),
			},
		},
	}
}

// tasksCommand handles batch history.
func tasksCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Batch task history",
		Commands: []*cli.Command{
			{
				Name:  "history",
				Usage: "List finished batch runs",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs",
						Value: 20,
					},
					&cli.StringFlag{
						Name:  "type",
						Usage: "Filter by type (delete, sync, check, publish, qrcode)",
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Filter by status (completed, failed, cancelled)",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "text, markdown or csv",
						Value: "text",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to a file; the extension picks the format",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.withDB(r.TasksHistory),
			},
			{
				Name:      "remove",
				Usage:     "Delete a run from the history",
				Arguments: accountArg(),
				Action:    r.withDB(r.TasksRemove),
			},
		},
	}
}

func serverFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "host",
			Usage: "Host to bind or connect to (default from config)",
		},
		&cli.IntFlag{
			Name:  "port",
			Usage: "Port to bind or connect to (default from config)",
		},
	}
}

// serveCommand runs the task API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the task API and the local storage injection endpoint",
		Flags: append(serverFlags(),
			&cli.StringSliceFlag{
				Name:  "restore",
				Usage: "Account whose session is restored and staged before serving (repeatable)",
			},
			&cli.IntFlag{
				Name:  "keep-alive",
				Usage: "Seconds between keep-alive comments on the event stream",
				Value: 15,
			},
		),
		Action: r.withDB(r.Serve),
	}
}

// tuiCommand launches the task monitor.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Monitor and control the tasks of a running server",
		Flags: append(serverFlags(),
			&cli.StringFlag{
				Name:  "server",
				Usage: "Server URL, e.g. http://127.0.0.1:3000",
			},
		),
		Action: r.TUI,
	}
}
