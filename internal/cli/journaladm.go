package cli

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/lherron/chatmig/internal/journal"
	"github.com/lherron/chatmig/internal/prompt"
	"github.com/lherron/chatmig/internal/render"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect migration journals",
}

var journalShowCmd = &cobra.Command{
	Use:   "show <journal>",
	Short: "List the spaces recorded in a journal",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalShow,
}

var journalDiffCmd = &cobra.Command{
	Use:   "diff <a> <b>",
	Short: "Show a unified diff of two journals",
	Long: `Both journals are decoded and re-encoded before comparing, so a legacy
list-format summary can be compared with a current journal. Run metadata
(run_id, generated_at, journal_rev) is ignored unless --meta is given.`,
	Args: cobra.ExactArgs(2),
	RunE: runJournalDiff,
}

var (
	journalShowFormat  string
	journalDiffMeta    bool
	journalDiffContext int
)

func init() {
	rootAdmCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalShowCmd)
	journalCmd.AddCommand(journalDiffCmd)

	journalShowCmd.Flags().StringVar(&journalShowFormat, "format", "table", "Output format: table, json, yaml or tsv")
	journalDiffCmd.Flags().BoolVar(&journalDiffMeta, "meta", false, "Include run metadata in the comparison")
	journalDiffCmd.Flags().IntVarP(&journalDiffContext, "context", "U", 3, "Lines of context")
}

func runJournalShow(cmd *cobra.Command, args []string) error {
	format, err := render.ParseFormat(journalShowFormat)
	if err != nil {
		return err
	}
	doc, err := journal.Load(args[0])
	if err != nil {
		return err
	}

	if format == render.FormatTable {
		meta := doc.Meta
		fmt.Fprintf(cmd.OutOrStdout(), "Run:      %s\n", meta.RunID)
		if meta.Archiver != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Archiver: %s\n", meta.Archiver.Email)
		}
		if meta.GeneratedAt != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Written:  %s\n", meta.GeneratedAt)
		}
		if ok, err := journal.Verify(doc); err == nil && !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Warning:  journal_rev does not match content")
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}

	r := render.NewRenderer(cmd.OutOrStdout(), render.Options{Format: format})
	return r.Render(doc, render.JournalView{Document: doc})
}

func runJournalDiff(cmd *cobra.Command, args []string) error {
	a, err := canonicalJournal(args[0], journalDiffMeta)
	if err != nil {
		return err
	}
	b, err := canonicalJournal(args[1], journalDiffMeta)
	if err != nil {
		return err
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: args[0],
		ToFile:   args[1],
		Context:  journalDiffContext,
	})
	if err != nil {
		return err
	}
	if diff == "" {
		return nil
	}

	out := cmd.OutOrStdout()
	for _, line := range difflib.SplitLines(diff) {
		line = strings.TrimSuffix(line, "\n")
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			fmt.Fprintln(out, prompt.DiffHeaderStyle.Render(line))
		case strings.HasPrefix(line, "@@"):
			fmt.Fprintln(out, prompt.DiffHunkStyle.Render(line))
		case strings.HasPrefix(line, "+"):
			fmt.Fprintln(out, prompt.DiffAddStyle.Render(line))
		case strings.HasPrefix(line, "-"):
			fmt.Fprintln(out, prompt.DiffRemStyle.Render(line))
		default:
			fmt.Fprintln(out, line)
		}
	}
	return nil
}

func canonicalJournal(path string, withMeta bool) (string, error) {
	doc, err := journal.Load(path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	if !withMeta {
		doc.Meta = journal.Meta{SchemaVersion: journal.SchemaVersion, Archiver: doc.Meta.Archiver}
	}
	data, err := journal.Encode(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
