package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/chatmig/internal/journal"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionJSON bool

func newVersionCmd(name string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Displays version, commit, and build date information.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd, name)
		},
	}
	cmd.Flags().BoolVar(&versionJSON, "json", false, "Output as JSON")
	return cmd
}

func init() {
	rootCmd.AddCommand(newVersionCmd("chatmig"))
	rootAdmCmd.AddCommand(newVersionCmd("chatmigadm"))
}

func runVersion(cmd *cobra.Command, name string) error {
	if versionJSON {
		output := map[string]any{
			"version":                Version,
			"commit":                 GitCommit,
			"build_date":             BuildDate,
			"journal_schema_version": journal.SchemaVersion,
		}
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(output)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", name, Version)
	fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", GitCommit)
	fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", BuildDate)
	fmt.Fprintf(cmd.OutOrStdout(), "  journal schema: v%d\n", journal.SchemaVersion)

	return nil
}
