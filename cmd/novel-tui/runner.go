package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"github.com/wigennn/novel-tui/internal/client"
	"github.com/wigennn/novel-tui/internal/config"
	"github.com/wigennn/novel-tui/internal/logging"
	"github.com/wigennn/novel-tui/internal/realtime"
	"github.com/wigennn/novel-tui/internal/session"
	"github.com/wigennn/novel-tui/internal/sockjs"
)

// Runner holds the dependencies shared by every command. Clients are built
// in setup, once flags and the config file have been read.
type Runner struct {
	config  *config.Config
	logger  *log.Logger
	output  io.Writer
	logOut  io.Writer
	jar     *client.PersistentJar
	api     *client.HTTPClient
	session *session.Cache
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Output io.Writer
	// LogOutput receives command logs. The TUI always logs to a file.
	LogOutput io.Writer
}

func NewRunner(opts RunnerOpts) *Runner {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	return &Runner{output: opts.Output, logOut: opts.LogOutput}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		tuiCommand, loginCommand, sendCodeCommand, registerCommand, whoamiCommand, logoutCommand,
		tasksCommand, watchCommand, mockCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

// setup loads the config, applies flag overrides and builds the clients.
func (r *Runner) setup(cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	if v := cmd.String("base-url"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := cmd.String("transport"); v != "" {
		cfg.Server.Transport = v
	}
	if v := cmd.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if cmd.IsSet("cookie-file") {
		cfg.Session.CookieFile = cmd.String("cookie-file")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.config = cfg

	jar, err := client.NewPersistentJar(cfg.Session.CookieFile)
	if err != nil {
		return fmt.Errorf("open cookie jar: %w", err)
	}
	r.jar = jar
	r.wire(logging.New(r.logOut, cfg.Log.Level))
	return nil
}

// wire (re)builds the clients around logger.
func (r *Runner) wire(logger *log.Logger) {
	r.logger = logger
	r.api = client.NewHTTPClient(r.config.APIBase(), r.jar, r.config.Server.Timeout, logger)
	r.session = session.New(r.api, logger)
}

// close persists the session cookie.
func (r *Runner) close() error {
	if r.jar == nil {
		return nil
	}
	if err := r.jar.Save(); err != nil {
		return fmt.Errorf("save cookies: %w", err)
	}
	return nil
}

// realtime builds a channel manager that shares the REST session cookie.
func (r *Runner) realtime() *realtime.Manager {
	rc := r.config.Realtime
	opts := realtime.Options{
		HeartbeatOutgoing:    rc.HeartbeatOutgoing,
		HeartbeatIncoming:    rc.HeartbeatIncoming,
		ReconnectDelay:       rc.ReconnectDelay,
		MaxReconnectAttempts: rc.MaxReconnectAttempts,
		ConnectTimeout:       rc.ConnectTimeout,
	}
	if u, err := url.Parse(r.config.Server.BaseURL); err == nil {
		opts.Host = u.Hostname()
	}
	dial := realtime.SockJSDialer(r.config.ChannelURL(), sockjs.Options{
		Jar:              r.jar,
		Raw:              r.config.Server.Transport == "websocket",
		HandshakeTimeout: rc.ConnectTimeout,
	})
	return realtime.New(dial, opts, r.logger)
}

func (r *Runner) writeJSON(data any) error {
	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if _, err := fmt.Fprintf(r.output, "%s\n", output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	if _, err := fmt.Fprintf(r.output, format, args...); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
