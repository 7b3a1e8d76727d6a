package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"github.com/wigennn/novel-tui/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := NewRunner(RunnerOpts{})
	if err := r.command().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// command is the root command. Without a subcommand it starts the TUI.
func (r *Runner) command() *cli.Command {
	return &cli.Command{
		Name:    "novel-tui",
		Usage:   "Follow AI novel generation from the terminal",
		Version: "0.3.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   config.DefaultPath(),
				Sources: cli.EnvVars("NOVEL_TUI_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "Backend base URL, overrides server.base_url",
				Sources: cli.EnvVars("NOVEL_TUI_BASE_URL"),
			},
			&cli.StringFlag{
				Name:  "transport",
				Usage: "Realtime transport: sockjs or websocket",
			},
			&cli.StringFlag{
				Name:  "cookie-file",
				Usage: "Where the session cookie is kept; empty keeps it in memory",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			return ctx, r.setup(cmd)
		},
		After: func(ctx context.Context, cmd *cli.Command) error {
			return r.close()
		},
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "path"},
		},
		Action:   r.TUI,
		Commands: r.register(),
	}
}
