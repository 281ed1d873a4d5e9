package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lherron/chatmig/internal/cli/appctx"
	"github.com/lherron/chatmig/internal/config"
	"github.com/lherron/chatmig/internal/db"
	"github.com/lherron/chatmig/internal/metrics"
	"github.com/lherron/chatmig/internal/render"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the archive, transfer log and Webex token are usable",
	Long: `Performs read-only checks: configuration, archive tables and schema
version, the file-transfer log, the file server connection and the
identity behind the Webex token. Nothing is created or posted.`,
	RunE: appctx.WithApp(appctx.Options{SkipValidate: true}, runDoctor),
}

var doctorJSON bool

type checkResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Message string `json:"message,omitempty"`
}

type doctorReport struct {
	Version       string        `json:"version"`
	Archive       string        `json:"archive"`
	Checks        []checkResult `json:"checks"`
	Warnings      int           `json:"warnings"`
	Errors        int           `json:"errors"`
	OverallStatus string        `json:"overall_status"`
}

func init() {
	rootAdmCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Output JSON")
}

func runDoctor(app *appctx.App, cmd *cobra.Command, args []string) error {
	cfg := app.Config
	ctx := cmd.Context()

	report := &doctorReport{
		Version:       Version,
		Archive:       redactDSN(cfg.SourceDSN),
		Checks:        []checkResult{},
		OverallStatus: "ok",
	}

	report.Checks = append(report.Checks, checkConfig(cfg))

	archive, err := db.Open(cfg.SourceDriver, cfg.SourceDSN)
	if err != nil {
		report.Checks = append(report.Checks, checkResult{Name: "archive_open", Status: "error", Message: err.Error()})
	} else {
		defer archive.Close()
		report.Checks = append(report.Checks, checkResult{Name: "archive_open", Status: "ok", Message: archive.Driver()})
		report.Checks = append(report.Checks, checkSchemaVersion(archive))
		for _, table := range []string{"tc_rooms", "tc_users", "tc_msgarchive"} {
			report.Checks = append(report.Checks, checkTable(ctx, archive, table))
		}
	}

	if cfg.IncludeFileTransfer {
		report.Checks = append(report.Checks, checkTransferLog(ctx, cfg, archive))
		report.Checks = append(report.Checks, checkFileServer(ctx, cfg))
	}

	report.Checks = append(report.Checks, checkIdentity(ctx, app, cfg))

	for _, check := range report.Checks {
		switch check.Status {
		case "warning":
			report.Warnings++
		case "error":
			report.Errors++
			report.OverallStatus = "error"
		}
	}
	if report.Warnings > 0 && report.OverallStatus == "ok" {
		report.OverallStatus = "warning"
	}

	if doctorJSON {
		if err := render.NewRenderer(cmd.OutOrStdout(), render.Options{Format: render.FormatJSON}).RenderJSON(report); err != nil {
			return err
		}
	} else {
		printHumanReport(cmd, report)
	}

	if report.Errors > 0 {
		return fmt.Errorf("doctor found %d error(s)", report.Errors)
	}
	return nil
}

func checkConfig(cfg *config.Config) checkResult {
	if err := cfg.Validate(); err != nil {
		return checkResult{Name: "config", Status: "error", Message: err.Error()}
	}
	return checkResult{Name: "config", Status: "ok"}
}

func checkSchemaVersion(archive *db.DB) checkResult {
	err := archive.RequiresMigrationError()
	switch {
	case errors.Is(err, db.ErrNotSQLite):
		return checkResult{Name: "schema_version", Status: "ok", Message: "managed externally"}
	case err != nil:
		return checkResult{Name: "schema_version", Status: "warning", Message: err.Error()}
	}
	return checkResult{Name: "schema_version", Status: "ok"}
}

func checkTable(ctx context.Context, database *db.DB, table string) checkResult {
	var n int64
	if err := database.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return checkResult{Name: table, Status: "error", Message: err.Error()}
	}
	status := "ok"
	if n == 0 {
		status = "warning"
	}
	return checkResult{Name: table, Status: status, Message: fmt.Sprintf("%d row(s)", n)}
}

func checkTransferLog(ctx context.Context, cfg *config.Config, archive *db.DB) checkResult {
	transfer := archive
	if transfer == nil || cfg.TransferDSN != cfg.SourceDSN || cfg.TransferDriver != cfg.SourceDriver {
		var err error
		transfer, err = db.Open(cfg.TransferDriver, cfg.TransferDSN)
		if err != nil {
			return checkResult{Name: "aft_log", Status: "error", Message: err.Error()}
		}
		defer transfer.Close()
	}
	return checkTable(ctx, transfer, "aft_log")
}

func checkFileServer(ctx context.Context, cfg *config.Config) checkResult {
	if cfg.FileServerHost == "" {
		return checkResult{Name: "file_server", Status: "warning", Message: "no file_server_host; servers named by each transfer record are used"}
	}
	host := strings.TrimPrefix(cfg.FileServerHost, localHostPrefix)
	session, err := newDialer(cfg).Dial(ctx, host)
	if err != nil {
		return checkResult{Name: "file_server", Status: "error", Message: err.Error()}
	}
	session.Close()
	return checkResult{Name: "file_server", Status: "ok", Message: host}
}

func checkIdentity(ctx context.Context, app *appctx.App, cfg *config.Config) checkResult {
	if cfg.APIToken == "" {
		return checkResult{Name: "api_identity", Status: "warning", Message: "no api_token configured"}
	}
	me, err := newClient(cfg, metrics.New(), app.Logger()).Me(ctx)
	if err != nil {
		return checkResult{Name: "api_identity", Status: "error", Message: err.Error()}
	}
	return checkResult{Name: "api_identity", Status: "ok", Message: me.Email()}
}

// redactDSN hides a password in a URL-style DSN.
func redactDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, hasPass := strings.Cut(creds, ":")
	if !hasPass {
		return dsn
	}
	return scheme + "://" + user + ":****@" + host
}

func printHumanReport(cmd *cobra.Command, report *doctorReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "chatmigadm doctor %s\n\n", report.Version)
	fmt.Fprintf(out, "Archive: %s\n\n", report.Archive)

	for _, check := range report.Checks {
		icon := "✓"
		switch check.Status {
		case "warning":
			icon = "⚠"
		case "error":
			icon = "✗"
		}
		if check.Message != "" {
			fmt.Fprintf(out, "  %s %s: %s\n", icon, check.Name, check.Message)
		} else {
			fmt.Fprintf(out, "  %s %s\n", icon, check.Name)
		}
	}

	fmt.Fprintf(out, "\nSummary: %d warning(s), %d error(s)\n", report.Warnings, report.Errors)
}
