package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"
	"github.com/wigennn/novel-tui/internal/app"
	"github.com/wigennn/novel-tui/internal/logging"
)

// TUI launches the interactive terminal UI, optionally at a screen path
// such as /tasks.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Logs go to a file so they don't interfere with rendering.
	fileLogger, closer, err := logging.NewFile(r.config.Log.File, r.config.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer closer.Close()
	r.wire(fileLogger)

	rt := r.realtime()
	defer rt.Disconnect()

	m := app.New(app.Deps{
		Session:   r.session,
		API:       r.api,
		Realtime:  rt,
		Logger:    fileLogger,
		StartPath: cmd.StringArg("path"),
	})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
