// Package logging builds the per-run logger: human output on the terminal
// and a JSON log file for the run inside the log directory.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// FileTimeLayout names run log files; it sorts lexically by start time.
const FileTimeLayout = "2006-01-02_15-04-05"

// Options configures New.
type Options struct {
	Dir     string    // log directory; empty disables the file sink
	Mode    string    // migrate, inspect or rollback
	Level   string    // zerolog level name
	Console io.Writer // defaults to os.Stderr
	Now     time.Time
}

// Run is a logger together with its open log file.
type Run struct {
	zerolog.Logger
	Path string
	file *os.File
}

// FileName returns "<timestamp> - <mode>.log".
func FileName(mode string, t time.Time) string {
	return fmt.Sprintf("%s - %s.log", t.Format(FileTimeLayout), mode)
}

// ParseLevel accepts zerolog level names case-insensitively; empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// New opens the run log file and returns a logger writing to it and the console.
func New(opts Options) (*Run, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}}
	run := &Run{}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		run.Path = filepath.Join(opts.Dir, FileName(opts.Mode, now))
		f, err := os.OpenFile(run.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		run.file = f
		writers = append(writers, f)
	}

	run.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Str("mode", opts.Mode).
		Logger()
	return run, nil
}

// Close closes the log file, if any.
func (r *Run) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
