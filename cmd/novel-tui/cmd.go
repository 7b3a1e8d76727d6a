// Command definitions. Actions live on Runner.
package main

import "github.com/urfave/cli/v3"

func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"ui"},
		Usage:   "Launch the interactive terminal UI",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "path"},
		},
		Action: r.TUI,
	}
}

func loginCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in with a password or an emailed code",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "email",
				Aliases:  []string{"e"},
				Usage:    "Account email",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "Account password",
				Sources: cli.EnvVars("NOVEL_TUI_PASSWORD"),
			},
			&cli.StringFlag{
				Name:  "code",
				Usage: "Verification code from send-code, instead of a password",
			},
		},
		Action: r.Login,
	}
}

func sendCodeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "send-code",
		Usage: "Email a one-time sign-in code",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "email",
				Aliases:  []string{"e"},
				Usage:    "Account email",
				Required: true,
			},
		},
		Action: r.SendCode,
	}
}

func registerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Create an account and sign in",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "username",
				Usage: "Display name",
			},
			&cli.StringFlag{
				Name:     "email",
				Aliases:  []string{"e"},
				Usage:    "Account email",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "password",
				Aliases:  []string{"p"},
				Usage:    "Account password",
				Required: true,
				Sources:  cli.EnvVars("NOVEL_TUI_PASSWORD"),
			},
		},
		Action: r.Register,
	}
}

func whoamiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the signed-in user",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Whoami,
	}
}

func logoutCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "End the session",
		Action: r.Logout,
	}
}

func tasksCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "List generation tasks (active ones by default)",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:  "relation",
				Usage: "Only tasks of this novel",
			},
			&cli.StringFlag{
				Name:  "type",
				Usage: "Task type, e.g. GENERATE_CHAPTER; needs --status",
			},
			&cli.IntFlag{
				Name:  "status",
				Usage: "0 pending, 1 running, 2 done, 3 failed; needs --type",
				Value: -1,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Tasks,
	}
}

func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Follow task updates over the realtime channel until interrupted",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:  "relation",
				Usage: "Only tasks of this novel",
			},
		},
		Action: r.Watch,
	}
}

func mockCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "mock",
		Usage: "Run the in-memory development backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host, overrides mock.host",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port, overrides mock.port",
			},
			&cli.DurationFlag{
				Name:  "tick",
				Usage: "Task generator step interval, overrides mock.tick",
			},
			&cli.StringSliceFlag{
				Name:  "allow-origin",
				Usage: "Extra origin allowed to open the websocket",
			},
		},
		Action: r.Mock,
	}
}
