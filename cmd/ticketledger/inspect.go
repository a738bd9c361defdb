package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/steveyegge/ticketledger/internal/ledger"
	"github.com/steveyegge/ticketledger/internal/types"
	"github.com/steveyegge/ticketledger/internal/ui"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file|->",
	Short: "Parse a ledger comment and show its contents",
	Long: `Parses a ledger comment body, as copied from an issue, and prints the report
URL, run label, every recorded result and the overall outcome.

With --format plain or --format wiki the comment is re-rendered instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readArg(cmd, args[0])
		if err != nil {
			return err
		}
		if !ledger.IsLedgerComment(string(data)) {
			logger.Warn("input does not contain the ledger marker", "marker", ledger.Marker)
		}
		l := ledger.Parse(string(data))

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "":
		case "wiki", "plain":
			fmt.Fprintln(cmd.OutOrStdout(), l.WithWikiRendering(format == "wiki").Text())
			return nil
		default:
			return errors.Newf("unknown format %q (want plain or wiki)", format)
		}

		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), ledgerView(l))
		}
		printLedger(cmd.OutOrStdout(), l)
		return nil
	},
}

func init() {
	inspectCmd.Flags().String("format", "", "Re-render the comment (plain or wiki)")
	rootCmd.AddCommand(inspectCmd)
}

func readArg(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		return data, errors.Wrap(err, "reading stdin")
	}
	data, err := os.ReadFile(path) // #nosec G304 - user-supplied input file
	return data, errors.Wrapf(err, "reading %s", path)
}

type ledgerJSON struct {
	ReportURL string              `json:"report_url,omitempty"`
	RunLabel  string              `json:"run_label,omitempty"`
	Overall   types.Outcome       `json:"overall"`
	Results   []types.NamedResult `json:"results"`
}

func ledgerView(l ledger.Ledger) ledgerJSON {
	url, _ := l.ReportURL()
	label, _ := l.RunLabel()
	return ledgerJSON{ReportURL: url, RunLabel: label, Overall: l.OverallOutcome(), Results: l.Results()}
}

func printLedger(w io.Writer, l ledger.Ledger) {
	v := ledgerView(l)
	fmt.Fprintln(w, ui.RenderCategory("Ledger"))
	fmt.Fprintf(w, "Report:  %s\n", orNone(v.ReportURL))
	fmt.Fprintf(w, "Run:     %s\n", orNone(v.RunLabel))
	fmt.Fprintf(w, "Overall: %s\n", ui.RenderOutcome(v.Overall))
	fmt.Fprintln(w, ui.RenderSeparator())
	for _, r := range v.Results {
		fmt.Fprintf(w, "%s %s\n", ui.RenderOutcome(r.Outcome), r.Name)
	}
}

func orNone(s string) string {
	if s == "" {
		return ui.RenderMuted("(none)")
	}
	return s
}
