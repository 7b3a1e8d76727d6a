package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Session  SessionConfig  `yaml:"session"`
	Log      LogConfig      `yaml:"log"`
	Mock     MockConfig     `yaml:"mock"`
}

type ServerConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIPrefix string        `yaml:"api_prefix"`
	WSPath    string        `yaml:"ws_path"`
	Transport string        `yaml:"transport"` // "sockjs" or "websocket"
	Timeout   time.Duration `yaml:"timeout"`
}

type RealtimeConfig struct {
	HeartbeatOutgoing    time.Duration `yaml:"heartbeat_outgoing"`
	HeartbeatIncoming    time.Duration `yaml:"heartbeat_incoming"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
}

type SessionConfig struct {
	CookieFile string `yaml:"cookie_file"`
	LoginPath  string `yaml:"login_path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type MockConfig struct {
	Host string        `yaml:"host"`
	Port int           `yaml:"port"`
	Tick time.Duration `yaml:"tick"`
}

// Default returns the configuration used when no file is present. The
// realtime values match what the web client shipped with.
func Default() *Config {
	dir := DefaultDir()
	return &Config{
		Server: ServerConfig{
			BaseURL:   "http://localhost:8080",
			APIPrefix: "/api",
			WSPath:    "/ws",
			Transport: "sockjs",
			Timeout:   30 * time.Second,
		},
		Realtime: RealtimeConfig{
			HeartbeatOutgoing: 4 * time.Second,
			HeartbeatIncoming: 4 * time.Second,
			ReconnectDelay:    5 * time.Second,
			ConnectTimeout:    10 * time.Second,
		},
		Session: SessionConfig{
			CookieFile: filepath.Join(dir, "cookies.json"),
			LoginPath:  "/login",
		},
		Log: LogConfig{
			Level: "info",
			File:  filepath.Join(dir, "novel-tui.log"),
		},
		Mock: MockConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Tick: 2 * time.Second,
		},
	}
}

// DefaultDir is where the config, cookie file and TUI log live by default.
func DefaultDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "novel-tui")
}

// DefaultPath is the config file consulted when no --config flag is given.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: server.base_url %q must be an http(s) URL", ErrInvalidConfig, c.Server.BaseURL)
	}
	switch c.Server.Transport {
	case "sockjs", "websocket":
	default:
		return fmt.Errorf("%w: server.transport %q (want sockjs or websocket)", ErrInvalidConfig, c.Server.Transport)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("%w: server.timeout must be positive", ErrInvalidConfig)
	}
	if c.Realtime.HeartbeatOutgoing < 0 || c.Realtime.HeartbeatIncoming < 0 {
		return fmt.Errorf("%w: heartbeat intervals cannot be negative", ErrInvalidConfig)
	}
	if c.Realtime.ReconnectDelay <= 0 {
		return fmt.Errorf("%w: realtime.reconnect_delay must be positive", ErrInvalidConfig)
	}
	if c.Realtime.MaxReconnectAttempts < 0 {
		return fmt.Errorf("%w: realtime.max_reconnect_attempts cannot be negative", ErrInvalidConfig)
	}
	if c.Realtime.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: realtime.connect_timeout must be positive", ErrInvalidConfig)
	}
	if !strings.HasPrefix(c.Session.LoginPath, "/") {
		return fmt.Errorf("%w: session.login_path must start with /", ErrInvalidConfig)
	}
	return nil
}

// APIBase is the prefix every REST call is issued under.
func (c *Config) APIBase() string {
	return strings.TrimRight(c.Server.BaseURL, "/") + c.Server.APIPrefix
}

// ChannelURL returns the endpoint the realtime transport dials. SockJS
// takes the http(s) base and builds its own websocket path; the raw
// websocket transport needs the ws(s) URL of the SockJS endpoint's
// "/websocket" entry.
func (c *Config) ChannelURL() string {
	base := strings.TrimRight(c.Server.BaseURL, "/") + c.Server.WSPath
	if c.Server.Transport == "sockjs" {
		return base
	}
	base += "/websocket"
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}

// MockAddr is the listen address of the development server.
func (c *Config) MockAddr() string {
	return fmt.Sprintf("%s:%d", c.Mock.Host, c.Mock.Port)
}
