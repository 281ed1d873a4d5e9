package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lherron/chatmig/internal/db"
)

var initArchiveCmd = &cobra.Command{
	Use:   "init-archive <path>",
	Short: "Create an empty SQLite archive with the chat and transfer-log schema",
	Long: `Creates a SQLite database holding the persistent-chat tables
(tc_rooms, tc_users, tc_msgarchive) and the file-transfer log table.
Use it to stage an export of a production archive or to build fixtures.
Running it on an existing archive applies any pending schema migrations.`,
	Args: cobra.ExactArgs(1),
	RunE: runInitArchive,
}

func init() {
	rootAdmCmd.AddCommand(initArchiveCmd)
}

func runInitArchive(cmd *cobra.Command, args []string) error {
	path := args[0]

	exists := false
	if _, err := os.Stat(path); err == nil {
		exists = true
	}

	database, err := db.Create(path)
	if err != nil {
		return err
	}
	defer database.Close()

	applied, err := database.MigrateWithInfo()
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	out := cmd.OutOrStdout()
	if exists {
		fmt.Fprintf(out, "Archive %s already exists\n", path)
	} else {
		fmt.Fprintf(out, "Created archive %s\n", path)
	}
	if len(applied) == 0 {
		fmt.Fprintln(out, "Schema is up to date")
		return nil
	}
	for _, m := range applied {
		fmt.Fprintf(out, "  applied %s\n", m)
	}
	return nil
}
