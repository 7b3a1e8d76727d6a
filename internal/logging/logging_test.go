package logging

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestNewLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn")
	if l.GetLevel() != log.WarnLevel {
		t.Errorf("level = %v, want warn", l.GetLevel())
	}
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn line missing")
	}
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	l := New(&bytes.Buffer{}, "chatty")
	if l.GetLevel() != log.InfoLevel {
		t.Errorf("level = %v, want info", l.GetLevel())
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	Component(New(&buf, "info"), "realtime").Info("connected")
	if !strings.Contains(buf.String(), "component=realtime") {
		t.Errorf("missing component key in %q", buf.String())
	}
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "app.log")
	l, closer, err := NewFile(path, "debug")
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	defer closer.Close()
	l.Debug("written")
}
