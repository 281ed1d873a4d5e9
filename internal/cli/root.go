package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatmig",
	Short: "Migrate a persistent-chat archive into Webex spaces",
	Long: `chatmig reads rooms, members and messages from a Jabber persistent-chat
archive and recreates them as Webex spaces. Every space it creates is
recorded in a journal so the run can be rolled back.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	addArchiveFlags(rootCmd)
}

func addArchiveFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("archive", "", "Archive DSN or SQLite path (overrides CHATMIG_SOURCE_DSN)")
	cmd.PersistentFlags().String("driver", "", "Archive driver: sqlite3 or pgx (overrides CHATMIG_SOURCE_DRIVER)")
	cmd.PersistentFlags().String("transfer-log", "", "File-transfer log DSN (defaults to the archive)")
	cmd.PersistentFlags().String("log-level", "", "Log level (overrides CHATMIG_LOG_LEVEL)")
}
