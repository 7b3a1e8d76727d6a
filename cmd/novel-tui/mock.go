package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
	"github.com/wigennn/novel-tui/internal/mockserver"
)

// Mock runs the development backend until interrupted. The demo account is
// logged at startup and verification codes are logged instead of emailed.
func (r *Runner) Mock(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config.Mock
	if v := cmd.String("host"); v != "" {
		cfg.Host = v
	}
	if v := cmd.Int("port"); v > 0 {
		cfg.Port = v
	}
	if v := cmd.Duration("tick"); v > 0 {
		cfg.Tick = v
	}

	opts := mockserver.DefaultOptions()
	opts.Heartbeat = r.config.Realtime.HeartbeatIncoming
	opts.AllowedOrigins = cmd.StringSlice("allow-origin")

	srv := mockserver.New(opts, r.logger)
	if err := srv.Start(ctx, cfg.Tick); err != nil {
		return err
	}
	r.config.Mock = cfg
	if err := srv.ListenAndServe(ctx, r.config.MockAddr()); err != nil {
		return fmt.Errorf("mock server: %w", err)
	}
	return nil
}
