package cli

import (
	"github.com/spf13/cobra"
)

var rootAdmCmd = &cobra.Command{
	Use:   "chatmigadm",
	Short: "Administrative CLI for chatmig archives and journals",
	Long: `chatmigadm is the administrative companion to chatmig. It creates
staging archives, checks that the archive, transfer log and Webex token
are usable, and inspects or compares migration journals.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExecuteAdmin runs the admin root command
func ExecuteAdmin() error {
	return rootAdmCmd.Execute()
}

func init() {
	addArchiveFlags(rootAdmCmd)
}
