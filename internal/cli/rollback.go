package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/chatmig/internal/cli/appctx"
	"github.com/lherron/chatmig/internal/journal"
	"github.com/lherron/chatmig/internal/metrics"
	"github.com/lherron/chatmig/internal/prompt"
	"github.com/lherron/chatmig/internal/render"
	"github.com/lherron/chatmig/internal/rollback"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <journal>",
	Short: "Leave every space recorded in a migration journal",
	Long: `Reads a journal written by migrate and removes the token's identity
from each recorded space. Spaces the identity has already left are
reported and skipped, so a rollback can be repeated safely.

Legacy list-format summaries are accepted as well.`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.Options{Mode: "rollback", SkipValidate: true}, runRollback),
}

var (
	rollbackYes    bool
	rollbackFormat string
)

func init() {
	rootCmd.AddCommand(rollbackCmd)
	rollbackCmd.Flags().BoolVarP(&rollbackYes, "yes", "y", false, "Do not ask for confirmation")
	rollbackCmd.Flags().StringVar(&rollbackFormat, "format", "table", "Report format: table, json, yaml or tsv")
}

func runRollback(app *appctx.App, cmd *cobra.Command, args []string) error {
	log := app.Logger()
	if app.Config.APIToken == "" {
		return fmt.Errorf("api_token is required for rollback (set CHATMIG_API_TOKEN)")
	}
	format, err := render.ParseFormat(rollbackFormat)
	if err != nil {
		return err
	}

	doc, err := journal.Load(args[0])
	if err != nil {
		return err
	}
	ok, err := journal.Verify(doc)
	if err != nil {
		return err
	}
	if !ok {
		log.Warn().Str("path", args[0]).Msg("journal_rev does not match its content; the file was edited after the run")
	}

	var confirm rollback.Confirmer = prompt.New(cmd.InOrStdin(), cmd.ErrOrStderr())
	if rollbackYes {
		confirm = rollback.AlwaysConfirm
	}

	client := newClient(app.Config, metrics.New(), log)
	report, err := rollback.New(client, confirm, log).Run(cmd.Context(), doc)
	if errors.Is(err, rollback.ErrDeclined) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Rollback cancelled")
		return nil
	}
	if report != nil {
		r := render.NewRenderer(cmd.OutOrStdout(), render.Options{Format: format})
		if renderErr := r.Render(report, render.ReportView{Report: report}); renderErr != nil && err == nil {
			err = renderErr
		}
	}
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d space(s) could not be left", report.Failed)
	}
	return nil
}
