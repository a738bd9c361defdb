package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/steveyegge/ticketledger/internal/types"
	"github.com/steveyegge/ticketledger/internal/ui"
	"github.com/steveyegge/ticketledger/internal/workflow"
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Show and query the workflow transition table",
}

var workflowShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective workflow table",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := loadWorkflowFlag(cmd)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), map[string]interface{}{
				"active": table.Active(),
				"rules":  table.Rules(),
			})
		}
		printTable(cmd.OutOrStdout(), table)
		return nil
	},
}

var workflowResolveCmd = &cobra.Command{
	Use:   "resolve <OUTCOME> <status>",
	Short: "Print the transitions applied for an outcome and issue status",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		outcome := types.ParseOutcomeFold(args[0])
		if outcome == types.OutcomeUndefined && !strings.EqualFold(strings.TrimSpace(args[0]), string(types.OutcomeUndefined)) {
			return errors.Newf("unknown outcome %q", args[0])
		}
		status := strings.Join(args[1:], " ")

		table, err := loadWorkflowFlag(cmd)
		if err != nil {
			return err
		}
		names := table.Resolve(outcome, status)

		if jsonOutput {
			return outputJSON(cmd.OutOrStdout(), map[string]interface{}{
				"outcome":     outcome,
				"status":      status,
				"transitions": names,
			})
		}
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderMuted("no transitions"))
			return nil
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	workflowCmd.PersistentFlags().String("file", "", "Workflow table file (default: workflow.file from config, else built-in)")
	workflowCmd.AddCommand(workflowShowCmd, workflowResolveCmd)
	rootCmd.AddCommand(workflowCmd)
}

func loadWorkflowFlag(cmd *cobra.Command) (workflow.Table, error) {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		path = settings.Workflow.File
	}
	return loadWorkflow(path)
}

func printTable(w io.Writer, table workflow.Table) {
	state := ui.RenderPass("active")
	if !table.Active() {
		state = ui.RenderMuted("inactive")
	}
	fmt.Fprintf(w, "%s (%s)\n", ui.RenderCategory("Workflow"), state)
	for _, rule := range table.Rules() {
		fmt.Fprintln(w, ui.RenderAccent(rule.Status))
		for _, outcome := range types.Outcomes {
			names, ok := rule.Outcomes[outcome]
			if !ok {
				continue
			}
			fmt.Fprintf(w, "%s%s%s: %s\n", ui.TreeIndent, ui.TreeLast, ui.RenderOutcome(outcome), strings.Join(names, " -> "))
		}
	}
}
