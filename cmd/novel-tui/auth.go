package main

import (
	"context"
	"errors"

	"github.com/urfave/cli/v3"
	"github.com/wigennn/novel-tui/internal/client"
)

var errNotSignedIn = errors.New("not signed in")

// Login signs in with --password, or with --code after send-code.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	email := cmd.String("email")
	var (
		u   *client.User
		err error
	)
	switch {
	case cmd.String("code") != "":
		u, err = r.session.LoginByCode(ctx, email, cmd.String("code"))
	case cmd.String("password") != "":
		u, err = r.session.Login(ctx, email, cmd.String("password"))
	default:
		return errors.New("login needs --password or --code")
	}
	if err != nil {
		return err
	}
	return r.writePlain("Signed in as %s\n", u.DisplayName())
}

func (r *Runner) SendCode(ctx context.Context, cmd *cli.Command) error {
	email := cmd.String("email")
	if err := r.session.SendCode(ctx, email); err != nil {
		return err
	}
	return r.writePlain("Code sent to %s\n", email)
}

func (r *Runner) Register(ctx context.Context, cmd *cli.Command) error {
	u, err := r.session.Register(ctx, client.RegisterRequest{
		Username: cmd.String("username"),
		Email:    cmd.String("email"),
		Password: cmd.String("password"),
	})
	if err != nil {
		return err
	}
	return r.writePlain("Registered and signed in as %s\n", u.DisplayName())
}

// Whoami asks the server, not the cookie file, who is signed in.
func (r *Runner) Whoami(ctx context.Context, cmd *cli.Command) error {
	u := r.session.Load(ctx)
	if u == nil {
		return errNotSignedIn
	}
	if cmd.Bool("json") {
		return r.writeJSON(u)
	}
	return r.writePlain("%s (id %d, %s)\n", u.DisplayName(), u.ID, u.Email)
}

func (r *Runner) Logout(ctx context.Context, cmd *cli.Command) error {
	if err := r.session.Logout(ctx); err != nil {
		return err
	}
	return r.writePlain("Signed out\n")
}
