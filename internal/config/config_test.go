package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Realtime.ReconnectDelay != 5*time.Second {
		t.Errorf("ReconnectDelay = %v, want 5s", cfg.Realtime.ReconnectDelay)
	}
	if cfg.Realtime.HeartbeatIncoming != 4*time.Second || cfg.Realtime.HeartbeatOutgoing != 4*time.Second {
		t.Errorf("heartbeats = %v/%v, want 4s/4s", cfg.Realtime.HeartbeatIncoming, cfg.Realtime.HeartbeatOutgoing)
	}
	if cfg.Server.Transport != "sockjs" {
		t.Errorf("Transport = %q, want sockjs", cfg.Server.Transport)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  base_url: https://novels.example.com
  transport: websocket
realtime:
  heartbeat_incoming: 10s
  reconnect_delay: 2s
  max_reconnect_attempts: 7
log:
  level: debug
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.BaseURL != "https://novels.example.com" {
		t.Errorf("BaseURL = %q", cfg.Server.BaseURL)
	}
	if cfg.Realtime.HeartbeatIncoming != 10*time.Second {
		t.Errorf("HeartbeatIncoming = %v, want 10s", cfg.Realtime.HeartbeatIncoming)
	}
	// Untouched keys keep their defaults.
	if cfg.Realtime.HeartbeatOutgoing != 4*time.Second {
		t.Errorf("HeartbeatOutgoing = %v, want default 4s", cfg.Realtime.HeartbeatOutgoing)
	}
	if cfg.Realtime.MaxReconnectAttempts != 7 {
		t.Errorf("MaxReconnectAttempts = %d, want 7", cfg.Realtime.MaxReconnectAttempts)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if got := cfg.ChannelURL(); got != "wss://novels.example.com/ws/websocket" {
		t.Errorf("ChannelURL = %q", got)
	}
	if got := cfg.APIBase(); got != "https://novels.example.com/api" {
		t.Errorf("APIBase = %q", got)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad transport", "server:\n  transport: carrier-pigeon\n"},
		{"relative base url", "server:\n  base_url: localhost:8080\n"},
		{"zero reconnect delay", "realtime:\n  reconnect_delay: 0s\n"},
		{"negative attempts", "realtime:\n  max_reconnect_attempts: -1\n"},
		{"login path", "session:\n  login_path: login\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Load() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestChannelURLSockJS(t *testing.T) {
	cfg := Default()
	cfg.Server.BaseURL = "http://127.0.0.1:9000/"
	if got := cfg.ChannelURL(); got != "http://127.0.0.1:9000/ws" {
		t.Errorf("ChannelURL = %q", got)
	}
}
