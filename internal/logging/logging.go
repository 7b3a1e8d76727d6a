// Package logging builds the charmbracelet loggers shared by the CLI, the
// TUI and the development server.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// New creates a [log.Logger] writing to w with timestamps enabled. The
// writer defaults to [os.Stderr]. Unknown level names fall back to info.
func New(w io.Writer, level string) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	l := log.NewWithOptions(w, log.Options{ReportTimestamp: true})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// NewFile opens (appending) the log file at path. The TUI owns the
// terminal, so it cannot log to stderr.
func NewFile(path, level string) (*log.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return New(f, level), f, nil
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *log.Logger {
	return New(io.Discard, "error")
}

// Component returns a child logger tagged with the component name.
func Component(l *log.Logger, name string) *log.Logger {
	if l == nil {
		l = Discard()
	}
	return l.With("component", name)
}
