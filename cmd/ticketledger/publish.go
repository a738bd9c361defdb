package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/steveyegge/ticketledger/internal/credential"
	"github.com/steveyegge/ticketledger/internal/listener"
	"github.com/steveyegge/ticketledger/internal/results"
	"github.com/steveyegge/ticketledger/internal/telemetry"
	"github.com/steveyegge/ticketledger/internal/tracker"
	"github.com/steveyegge/ticketledger/internal/ui"
	"github.com/steveyegge/ticketledger/internal/workflow"
)

// credentials is swapped out by tests.
var credentials = &credential.Store{}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish test results to the issues they report against",
	Long: `Reads test outcomes and writes them to the ledger comment of every issue
they name, creating the comment when the issue has none.

Outcomes come from a run file (--results) or from 'go test -json' output
(--gotest-json) combined with an issue map (--issue-map) that assigns issues
to tests by glob pattern.

Examples:
  ticketledger publish --results run.yaml
  go test -json ./... | ticketledger publish --gotest-json - --issue-map issues.yaml
  ticketledger publish --results run.yaml --dry-run`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().String("results", "", "Run file (YAML or JSON, - for stdin)")
	publishCmd.Flags().String("gotest-json", "", "go test -json output (- for stdin)")
	publishCmd.Flags().String("issue-map", "", "Issue map for --gotest-json")
	publishCmd.Flags().Bool("dry-run", false, "Log what would change without contacting the tracker")
	publishCmd.Flags().String("tracker", "", "Tracker type (jira, memory)")
	publishCmd.Flags().Bool("workflow", false, "Apply workflow transitions")
	publishCmd.Flags().String("workflow-file", "", "Workflow table file (YAML or TOML)")
	publishCmd.Flags().String("run-label", "", "Run label, e.g. the CI build number")
	publishCmd.Flags().String("public-url", "", "Public root URL of the published reports")
	publishCmd.Flags().Bool("keep-going", false, "Exit zero even when some issues failed")
	publishCmd.MarkFlagsMutuallyExclusive("results", "gotest-json")

	rootCmd.AddCommand(publishCmd)
}

// flagOverrides maps publish flags to config keys.
var flagOverrides = []struct{ flag, key string }{
	{"dry-run", "dry_run"},
	{"tracker", "tracker.type"},
	{"workflow", "workflow.enabled"},
	{"workflow-file", "workflow.file"},
	{"run-label", "run.label"},
	{"public-url", "report.public_url"},
}

func applyFlagOverrides(cmd *cobra.Command) error {
	for _, o := range flagOverrides {
		f := cmd.Flags().Lookup(o.flag)
		if f == nil || !f.Changed {
			continue
		}
		var value any = f.Value.String()
		if f.Value.Type() == "bool" {
			value, _ = cmd.Flags().GetBool(o.flag)
		}
		if err := settings.Set(o.key, value); err != nil {
			return err
		}
	}
	return nil
}

// publishInput is what publish reads before talking to the tracker.
type publishInput struct {
	story    string
	runLabel string
	outcomes []listener.TestOutcome
}

func loadPublishInput(cmd *cobra.Command) (*publishInput, error) {
	runFile, _ := cmd.Flags().GetString("results")
	goTest, _ := cmd.Flags().GetString("gotest-json")
	mapFile, _ := cmd.Flags().GetString("issue-map")

	switch {
	case runFile != "":
		rf, err := results.LoadRunFile(runFile)
		if err != nil {
			return nil, err
		}
		return &publishInput{story: rf.Story, runLabel: rf.RunLabel, outcomes: rf.Outcomes}, nil

	case goTest != "":
		if mapFile == "" {
			return nil, errors.New("--gotest-json requires --issue-map")
		}
		issues, err := results.LoadIssueMap(mapFile)
		if err != nil {
			return nil, err
		}
		var r io.Reader = cmd.InOrStdin()
		if goTest != "-" {
			f, err := os.Open(goTest) // #nosec G304 - user-supplied input file
			if err != nil {
				return nil, errors.Wrapf(err, "opening %s", goTest)
			}
			defer func() { _ = f.Close() }()
			r = f
		}
		res, err := results.ParseGoTest(r, issues)
		if err != nil {
			return nil, err
		}
		if res.Malformed > 0 {
			logger.Warn("skipped lines that are not test events", "count", res.Malformed)
		}
		logger.Debug("parsed go test output", "mapped", len(res.Outcomes), "unmapped", res.Unmapped)
		return &publishInput{outcomes: res.Outcomes}, nil
	}
	return nil, errors.New("one of --results or --gotest-json is required")
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := applyFlagOverrides(cmd); err != nil {
		return err
	}

	input, err := loadPublishInput(cmd)
	if err != nil {
		return err
	}
	if settings.Run.Label == "" && input.runLabel != "" {
		if err := settings.Set("run.label", input.runLabel); err != nil {
			return err
		}
	}

	table, err := loadWorkflow(settings.Workflow.File)
	if err != nil {
		return err
	}

	if err := telemetry.Init(ctx, settings.TelemetryOptions(Version)); err != nil {
		return errors.Wrap(err, "initializing telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(shutdownCtx)
	}()

	opts := settings.Options(logger)
	tr, err := buildTracker(ctx, opts)
	if err != nil {
		return err
	}

	keepGoing, _ := cmd.Flags().GetBool("keep-going")
	errOut := cmd.ErrOrStderr()
	if !jsonOutput && !quietFlag {
		opts.OnMessage = func(msg string) { fmt.Fprintln(errOut, ui.RenderMuted(msg)) }
		opts.OnWarning = func(msg string) { fmt.Fprintln(errOut, ui.RenderWarn(ui.IconWarn+" "+msg)) }
	}

	l := listener.New(tr, table, opts)
	if input.story != "" {
		l.TestSuiteStarted(input.story)
	}
	report := l.Publish(ctx, input.outcomes)

	if jsonOutput {
		if err := outputJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		printReport(cmd.OutOrStdout(), report, opts.DryRun)
	}

	if report.Failed() && !keepGoing {
		return errors.Newf("%d issue(s) failed to update", report.Stats.Errors)
	}
	return nil
}

// buildTracker creates the configured tracker. It is only initialized when
// the run will actually talk to it.
func buildTracker(ctx context.Context, opts listener.Options) (tracker.IssueTracker, error) {
	tr, err := tracker.NewTracker(settings.Tracker.Type)
	if err != nil {
		return nil, err
	}

	live := !opts.DryRun && strings.TrimSpace(opts.TrackerURL) != "" && strings.TrimSpace(opts.PublicURL) != ""
	if initer, ok := tr.(tracker.Initializer); ok && live {
		if settings.Tracker.Token == "" {
			token, err := credentials.Token("")
			if err != nil {
				logger.Debug("keyring unavailable", "err", err)
			} else if token != "" {
				if err := settings.Set("tracker.token", token); err != nil {
					return nil, err
				}
			}
		}
		if err := initer.Init(ctx, settings.TrackerConfig(ctx)); err != nil {
			return nil, errors.Wrapf(err, "initializing %s tracker", tr.Name())
		}
	}
	return telemetry.WrapTracker(tr), nil
}

func loadWorkflow(path string) (workflow.Table, error) {
	if path == "" {
		return workflow.Default(), nil
	}
	return workflow.LoadFile(path)
}

func printReport(w io.Writer, report listener.RunReport, dryRun bool) {
	if report.Disabled {
		fmt.Fprintln(w, ui.RenderWarn(ui.IconWarn+" Tracker updates disabled: tracker URL or public report URL not configured"))
		return
	}

	title := "Published test results"
	if dryRun {
		title += " (dry run)"
	}
	fmt.Fprintln(w, ui.RenderCategory(title))
	fmt.Fprintln(w, ui.RenderSeparator())

	for _, issue := range report.Issues {
		fmt.Fprintf(w, "%s %s %s\n", stateIcon(issue.State), ui.RenderAccent(issue.Key), ui.RenderMuted(describeIssue(issue)))
		if issue.Error != "" {
			fmt.Fprintf(w, "%s%s%s\n", ui.TreeIndent, ui.TreeLast, ui.RenderFail(issue.Error))
		}
	}

	s := report.Stats
	fmt.Fprintln(w, ui.RenderSeparator())
	fmt.Fprintf(w, "%d added, %d updated, %d transitions, %d skipped, %d missing, %s\n",
		s.Added, s.Updated, s.Transitions, s.Skipped, s.Missing, renderErrors(s.Errors))
}

func stateIcon(state listener.State) string {
	switch state {
	case listener.StateFailed:
		return ui.RenderFail(ui.IconFail)
	case listener.StateMissing:
		return ui.RenderWarn(ui.IconWarn)
	case listener.StateDryRun:
		return ui.RenderMuted(ui.IconSkip)
	default:
		return ui.RenderPass(ui.IconPass)
	}
}

func describeIssue(issue listener.IssueReport) string {
	switch issue.State {
	case listener.StateDryRun:
		return "dry run"
	case listener.StateMissing:
		return "issue not found"
	case listener.StateFailed:
		return "failed"
	}
	desc := issue.Action + " comment"
	if len(issue.Transitions) > 0 {
		desc += ", " + strings.Join(issue.Transitions, " -> ")
	}
	return desc
}

func renderErrors(n int) string {
	text := fmt.Sprintf("%d errors", n)
	if n > 0 {
		return ui.RenderFail(text)
	}
	return text
}
