// Package appctx provides a shared bootstrap helper for CLI commands.
// It centralizes config loading, archive opening, and run logging
// to reduce boilerplate across commands.
package appctx

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lherron/chatmig/internal/config"
	"github.com/lherron/chatmig/internal/db"
	"github.com/lherron/chatmig/internal/logging"
)

// App holds the shared application context for commands.
type App struct {
	// Config is the loaded configuration
	Config *config.Config

	// Source is the opened chat archive (nil if NeedsSource is false)
	Source *db.DB

	// Transfer is the file-transfer log. It shares Source's connection when
	// both point at the same database.
	Transfer *db.DB

	// Log is the run logger; Log.Path is empty when no file sink was opened
	Log *logging.Run

	// Started is when bootstrap began; log and journal names derive from it
	Started time.Time
}

// Logger returns the run logger, or a disabled logger before bootstrap.
func (a *App) Logger() zerolog.Logger {
	if a.Log == nil {
		return zerolog.Nop()
	}
	return a.Log.Logger
}

// Close releases resources held by the App.
// Safe to call multiple times.
func (a *App) Close() {
	if a.Transfer != nil && a.Transfer != a.Source {
		a.Transfer.Close()
	}
	a.Transfer = nil
	if a.Source != nil {
		a.Source.Close()
		a.Source = nil
	}
	if a.Log != nil {
		a.Log.Close()
		a.Log = nil
	}
}

// Options configures the bootstrap behavior.
type Options struct {
	// Mode names the run log file; empty logs to the console only.
	Mode string

	// NeedsSource opens the chat archive.
	NeedsSource bool

	// NeedsTransfer opens the file-transfer log.
	NeedsTransfer bool

	// SkipValidate loads config without checking it can drive a run.
	SkipValidate bool
}

// RunFunc is the signature for command run functions.
type RunFunc func(app *App, cmd *cobra.Command, args []string) error

// WithApp wraps a command's run function with shared bootstrap logic.
// Resources are released automatically when the wrapped function returns.
func WithApp(opts Options, fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := Bootstrap(cmd, opts)
		if err != nil {
			return err
		}
		defer app.Close()

		return fn(app, cmd, args)
	}
}

// Bootstrap initializes the App according to the given options.
// Callers are responsible for calling App.Close() when done.
func Bootstrap(cmd *cobra.Command, opts Options) (*App, error) {
	app := &App{Started: time.Now()}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, cfg)
	app.Config = cfg

	if !opts.SkipValidate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	logDir := ""
	if opts.Mode != "" {
		logDir = cfg.LogDir
	}
	var console io.Writer = cmd.ErrOrStderr()
	run, err := logging.New(logging.Options{
		Dir:     logDir,
		Mode:    opts.Mode,
		Level:   cfg.LogLevel,
		Console: console,
		Now:     app.Started,
	})
	if err != nil {
		return nil, err
	}
	app.Log = run

	if opts.NeedsSource {
		app.Source, err = db.Open(cfg.SourceDriver, cfg.SourceDSN)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
	}

	if opts.NeedsTransfer {
		if err := app.OpenTransfer(); err != nil {
			app.Close()
			return nil, err
		}
	}

	return app, nil
}

// OpenTransfer opens the file-transfer log if it is not open yet.
func (a *App) OpenTransfer() error {
	if a.Transfer != nil {
		return nil
	}
	cfg := a.Config
	if a.Source != nil && cfg.TransferDriver == cfg.SourceDriver && cfg.TransferDSN == cfg.SourceDSN {
		a.Transfer = a.Source
		return nil
	}
	transfer, err := db.Open(cfg.TransferDriver, cfg.TransferDSN)
	if err != nil {
		return fmt.Errorf("failed to open transfer log: %w", err)
	}
	a.Transfer = transfer
	return nil
}

// applyFlags lets persistent flags override loaded config. A transfer log
// that followed the archive keeps following it.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if v := flagValue(cmd, "archive"); v != "" {
		if cfg.TransferDSN == cfg.SourceDSN {
			cfg.TransferDSN = v
		}
		cfg.SourceDSN = v
	}
	if v := flagValue(cmd, "driver"); v != "" {
		if cfg.TransferDriver == cfg.SourceDriver {
			cfg.TransferDriver = v
		}
		cfg.SourceDriver = v
	}
	if v := flagValue(cmd, "transfer-log"); v != "" {
		cfg.TransferDSN = v
	}
	if v := flagValue(cmd, "log-level"); v != "" {
		cfg.LogLevel = v
	}
}

func flagValue(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}
