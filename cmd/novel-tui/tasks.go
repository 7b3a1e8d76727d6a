package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/urfave/cli/v3"
	"github.com/wigennn/novel-tui/internal/client"
	"github.com/wigennn/novel-tui/internal/realtime"
	"github.com/wigennn/novel-tui/internal/tasks"
	"github.com/wigennn/novel-tui/internal/theme"
)

// Tasks lists tasks once over REST.
func (r *Runner) Tasks(ctx context.Context, cmd *cli.Command) error {
	var (
		list []client.Task
		err  error
	)
	relation, typ, status := cmd.Int64("relation"), cmd.String("type"), cmd.Int("status")
	switch {
	case relation > 0:
		list, err = r.api.TasksByRelation(ctx, relation)
	case typ != "" || status >= 0:
		f := client.TaskFilter{Type: typ}
		if status >= 0 {
			f.Status = &status
		}
		list, err = r.api.Tasks(ctx, f)
	default:
		list, err = r.api.ActiveTasks(ctx)
	}
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(list)
	}
	if len(list) == 0 {
		return r.writePlain("No tasks\n")
	}
	return r.writePlain("%s\n", taskTable(tasks.FromTasks(list)))
}

func taskTable(list []tasks.Snapshot) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		Headers("ID", "TYPE", "NOVEL", "STATUS", "NAME")
	for _, s := range list {
		t.Row(strconv.FormatInt(s.ID, 10), s.Type, strconv.FormatInt(s.RelationID, 10), s.Status.String(), s.Name)
	}
	return t.String()
}

// Watch follows the user's task topic and prints every change the tracker
// accepts until interrupted.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	u := r.session.Load(ctx)
	if u == nil {
		return errNotSignedIn
	}

	relation := cmd.Int64("relation")
	var filter func(tasks.Snapshot) bool
	query := func(ctx context.Context) ([]tasks.Snapshot, error) {
		ts, err := r.api.ActiveTasks(ctx)
		return tasks.FromTasks(ts), err
	}
	if relation > 0 {
		filter = tasks.ForRelation(relation)
		query = func(ctx context.Context) ([]tasks.Snapshot, error) {
			ts, err := r.api.TasksByRelation(ctx, relation)
			return tasks.FromTasks(ts), err
		}
	}

	changes := make(chan tasks.Snapshot, 64)
	tracker := tasks.NewTracker()
	stopTracker := tracker.Watch(func(s tasks.Snapshot) {
		if filter != nil && !filter(s) {
			return
		}
		select {
		case changes <- s:
		default:
			r.logger.Warn("output falling behind, dropping update", "task", s.ID)
		}
	})
	defer stopTracker()

	mgr := r.realtime()
	states, stopStates := mgr.Watch()
	defer stopStates()

	feed := tasks.NewFeed(mgr, realtime.UserTasksTopic(u.ID), tracker, query, r.logger)
	feed.OnSync(func(err error) {
		if err != nil {
			r.logger.Warn("task resync failed", "err", err)
		}
	})
	feed.Start()
	defer feed.Close()

	// A failed first attempt leaves the manager retrying in the background.
	defer mgr.Disconnect()
	if err := mgr.Connect(ctx); err != nil {
		return fmt.Errorf("connect realtime channel: %w", err)
	}
	r.logger.Info("watching tasks", "user", u.DisplayName(), "topic", feed.Topic())

	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-states:
			r.logger.Info("realtime channel", "state", s)
		case s := <-changes:
			line := fmt.Sprintf("%s %-6d %-26s %-9s %s", theme.StatusGlyph(int(s.Status)), s.ID, s.Type, s.Status, s.Name)
			if s.Error != "" {
				line += "  " + s.Error
			}
			if err := r.writePlain("%s\n", lipgloss.NewStyle().Foreground(theme.StatusColor(int(s.Status))).Render(line)); err != nil {
				return err
			}
		}
	}
}
