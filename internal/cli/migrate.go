package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lherron/chatmig/internal/cli/appctx"
	"github.com/lherron/chatmig/internal/correlate"
	"github.com/lherron/chatmig/internal/domain"
	"github.com/lherron/chatmig/internal/journal"
	"github.com/lherron/chatmig/internal/message"
	"github.com/lherron/chatmig/internal/metrics"
	"github.com/lherron/chatmig/internal/migrate"
	"github.com/lherron/chatmig/internal/prompt"
	"github.com/lherron/chatmig/internal/render"
	"github.com/lherron/chatmig/internal/source"
	"github.com/lherron/chatmig/internal/transferlog"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate archived rooms to Webex spaces",
	Long: `Creates one Webex space per archived room, adds the room's members,
and replays its messages in order. Each created space is recorded in the
journal, which is written when the run ends (also when it aborts).

Set CHATMIG_CREATE_ROOMS=false to walk the archive without calling Webex.`,
	RunE: appctx.WithApp(appctx.Options{Mode: "migrate", NeedsSource: true}, runMigrate),
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List archived rooms without touching Webex",
	Long: `Walks the archive exactly as migrate would and reports each room's
title, member count and message count. With --include-files attachments
are also correlated against the transfer log, but nothing is downloaded.`,
	RunE: appctx.WithApp(appctx.Options{Mode: "inspect", NeedsSource: true, SkipValidate: true}, runInspect),
}

var (
	migrateOnDuplicate   string
	migrateCheckExisting bool
	migrateIncludeFiles  bool
	migrateRooms         []string
	migrateJournal       string
	migrateMetricsFile   string
	migrateLeaveRooms    bool
	migrateFormat        string
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(inspectCmd)

	migrateCmd.Flags().StringVar(&migrateOnDuplicate, "on-duplicate", "ask", "When a space title already exists: ask, skip or migrate")
	migrateCmd.Flags().BoolVar(&migrateCheckExisting, "check-existing", false, "Look up existing space titles before creating spaces")
	migrateCmd.Flags().StringVar(&migrateJournal, "journal", "", "Journal path (default <log_dir>/<timestamp> - journal.json)")
	migrateCmd.Flags().StringVar(&migrateMetricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")
	migrateCmd.Flags().BoolVar(&migrateLeaveRooms, "leave-rooms", false, "Leave created spaces the archiver was not a member of")

	for _, cmd := range []*cobra.Command{migrateCmd, inspectCmd} {
		cmd.Flags().BoolVar(&migrateIncludeFiles, "include-files", false, "Migrate file attachments (overrides CHATMIG_INCLUDE_FILE_TRANSFER)")
		cmd.Flags().StringArrayVar(&migrateRooms, "room", nil, "Only process this room JID (repeatable)")
		cmd.Flags().StringVar(&migrateFormat, "format", "table", "Summary format: table, json, yaml or tsv")
	}
}

func runMigrate(app *appctx.App, cmd *cobra.Command, args []string) error {
	if migrateCheckExisting {
		app.Config.CheckExistingRooms = true
	}
	return runPipeline(app, cmd, app.Config.CreateRooms)
}

func runInspect(app *appctx.App, cmd *cobra.Command, args []string) error {
	app.Config.CreateRooms = false
	if err := app.Config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return runPipeline(app, cmd, false)
}

func runPipeline(app *appctx.App, cmd *cobra.Command, createRooms bool) error {
	cfg := app.Config
	log := app.Logger()
	if cmd.Flags().Changed("include-files") {
		cfg.IncludeFileTransfer = migrateIncludeFiles
	}

	format, err := render.ParseFormat(migrateFormat)
	if err != nil {
		return err
	}

	policy, err := domain.ParsePolicy(migrateOnDuplicate)
	if err != nil {
		return err
	}
	var duplicates migrate.DuplicatePolicy = migrate.FixedPolicy(policy)
	if policy == domain.PolicyAskInteractive {
		duplicates = prompt.New(cmd.InOrStdin(), cmd.ErrOrStderr())
	}

	m := metrics.New()
	deps := migrate.Deps{
		Source: source.New(app.Source, source.Options{RoomFilter: migrateRooms}),
		Policy: duplicates,
		Transformer: message.Transformer{
			SourceDomain: cfg.SourceDomain,
			DestDomain:   cfg.DestDomain,
		},
		Metrics: m,
		Logger:  log,
	}

	if cfg.IncludeFileTransfer {
		if err := app.OpenTransfer(); err != nil {
			return err
		}
		deps.Correlator = correlate.New(
			transferlog.New(app.Transfer),
			correlate.Options{Window: cfg.CorrelationWindow, MaxBytes: cfg.MaxAttachmentBytes},
			log.With().Str("component", "correlate").Logger(),
		)
	}

	if createRooms {
		deps.API = newClient(cfg, m, log)

		path := migrateJournal
		if path == "" {
			path = journal.DefaultPath(cfg.LogDir, app.Started)
		}
		deps.Journal = journal.New(journal.Options{Path: path})

		if cfg.IncludeFileTransfer {
			fetcher, closer, err := fetcherFor(cmd.Context(), cfg, newDialer(cfg), log)
			defer closer.Close()
			if err != nil {
				return err
			}
			deps.Fetcher = fetcher
		}
	}

	runner, err := migrate.New(migrate.Options{
		CreateRooms:        createRooms,
		CheckExisting:      cfg.CheckExistingRooms,
		IncludeFiles:       cfg.IncludeFileTransfer,
		LeaveRooms:         migrateLeaveRooms,
		DownloadDir:        cfg.DownloadDir,
		MaxAttachmentBytes: cfg.MaxAttachmentBytes,
	}, deps)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := runner.Run(ctx)

	if migrateMetricsFile != "" {
		if err := m.WriteTextfile(migrateMetricsFile, time.Now()); err != nil {
			log.Error().Err(err).Str("path", migrateMetricsFile).Msg("write metrics")
		}
	}

	r := render.NewRenderer(cmd.OutOrStdout(), render.Options{Format: format})
	if err := r.Render(summary, render.SummaryView{Summary: summary}); err != nil {
		return err
	}

	if deps.Journal != nil && runErr == nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Journal: %s\n", deps.Journal.Path())
	}
	return runErr
}
