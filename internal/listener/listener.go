// Package listener publishes test outcomes to an issue tracker. For every
// issue a test reports against it keeps a single ledger comment up to date
// and, when enabled, moves the issue through its workflow.
package listener

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/steveyegge/ticketledger/internal/ledger"
	"github.com/steveyegge/ticketledger/internal/logging"
	"github.com/steveyegge/ticketledger/internal/tracker"
	"github.com/steveyegge/ticketledger/internal/types"
	"github.com/steveyegge/ticketledger/internal/workflow"
)

// DefaultConcurrency is the number of issues updated in parallel when
// Options.Concurrency is not set.
const DefaultConcurrency = 4

// TestOutcome is one finished test and the issues it reports against.
type TestOutcome struct {
	Title      string        `json:"title" yaml:"title"`
	Story      string        `json:"story,omitempty" yaml:"story,omitempty"`
	ReportName string        `json:"report,omitempty" yaml:"report,omitempty"`
	Result     types.Outcome `json:"result" yaml:"result"`
	Issues     []string      `json:"issues" yaml:"issues"`
}

// Options configures a Listener.
type Options struct {
	// TrackerURL and PublicURL must both be set; otherwise every call is a
	// no-op.
	TrackerURL string
	PublicURL  string
	RunLabel   string

	WikiRendering   bool
	WorkflowUpdates bool
	DryRun          bool

	// Concurrency bounds the number of issues processed at once. Zero means
	// DefaultConcurrency, 1 means sequential.
	Concurrency int

	Logger *log.Logger

	// Callbacks for UI feedback (optional).
	OnMessage func(msg string)
	OnWarning func(msg string)
}

// Listener turns finished tests into tracker updates. It is safe for
// concurrent use.
type Listener struct {
	tracker tracker.IssueTracker
	table   workflow.Table
	opts    Options
	logger  *log.Logger

	mu    sync.RWMutex
	story string
}

// New creates a listener. The workflow table is only consulted when
// opts.WorkflowUpdates is set and the table is active.
func New(tr tracker.IssueTracker, table workflow.Table, opts Options) *Listener {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Listener{
		tracker: tr,
		table:   table,
		opts:    opts,
		logger:  logging.OrDefault(opts.Logger),
	}
}

// Enabled reports whether both the tracker and public URLs are configured.
func (l *Listener) Enabled() bool {
	return strings.TrimSpace(l.opts.TrackerURL) != "" && strings.TrimSpace(l.opts.PublicURL) != ""
}

// TestSuiteStarted records the story that following outcomes without their
// own Story belong to.
func (l *Listener) TestSuiteStarted(story string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.story = story
}

// TestFinished publishes a single outcome.
func (l *Listener) TestFinished(ctx context.Context, outcome TestOutcome) RunReport {
	return l.Publish(ctx, []TestOutcome{outcome})
}

// Publish writes every outcome to the issues it names. Issues are processed
// concurrently; the outcomes for one issue are applied in input order so two
// outcomes never race on the same comment. Issue reports follow the order in
// which keys first appear.
func (l *Listener) Publish(ctx context.Context, outcomes []TestOutcome) RunReport {
	var report RunReport
	if !l.Enabled() {
		l.logger.Info("updates disabled: tracker URL or public report URL not configured")
		l.warn("Tracker updates disabled: set the tracker URL and public report URL")
		report.Disabled = true
		return report
	}

	keys, byKey := l.groupByIssue(outcomes)
	results := make([]IssueReport, len(keys))

	sem := semaphore.NewWeighted(int64(l.opts.Concurrency))
	g, gCtx := errgroup.WithContext(ctx)

	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			if err := sem.Acquire(gCtx, 1); err != nil {
				results[i] = IssueReport{Key: key, State: StateFailed, Err: tracker.NewUpdateError("publish", key, err)}
				return nil
			}
			defer sem.Release(1)

			results[i] = l.processIssue(gCtx, key, byKey[key])
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		report.add(r)
		switch r.Action {
		case ActionAdded:
			report.Stats.Added++
		case ActionUpdated:
			report.Stats.Updated++
		}
		report.Stats.Transitions += len(r.Transitions)
	}
	return report
}

// issueEvent is an outcome resolved to the values written for one issue.
type issueEvent struct {
	outcome   TestOutcome
	reportURL string
}

func (l *Listener) groupByIssue(outcomes []TestOutcome) ([]string, map[string][]issueEvent) {
	l.mu.RLock()
	currentStory := l.story
	l.mu.RUnlock()

	var keys []string
	byKey := make(map[string][]issueEvent)
	for _, o := range outcomes {
		story := o.Story
		if story == "" {
			story = currentStory
		}
		name := o.ReportName
		if name == "" {
			name = ReportName(story)
		}
		ev := issueEvent{outcome: o, reportURL: ReportURL(l.opts.PublicURL, name)}

		for _, key := range NormalizeKeys(o.Issues) {
			if _, seen := byKey[key]; !seen {
				keys = append(keys, key)
			}
			byKey[key] = append(byKey[key], ev)
		}
	}
	return keys, byKey
}

// processIssue applies every event for key in order. A failure stops the
// remaining events for that key.
func (l *Listener) processIssue(ctx context.Context, key string, events []issueEvent) IssueReport {
	report := IssueReport{Key: key, State: StateNoPriorComment}
	for _, ev := range events {
		l.processEvent(ctx, key, ev, &report)
		if report.State == StateFailed || report.State == StateMissing || report.State == StateDryRun {
			break
		}
	}
	return report
}

func (l *Listener) processEvent(ctx context.Context, key string, ev issueEvent, report *IssueReport) {
	logger := l.logger.With("issue", key, "test", ev.outcome.Title, "result", ev.outcome.Result)
	result := types.NewNamedResult(ev.outcome.Title, ev.outcome.Result)

	if l.opts.DryRun {
		logger.Info("dry run: would update ledger comment", "report", ev.reportURL)
		l.msg("[dry-run] %s: would record %s = %s", key, result.Name, result.Outcome)
		report.State = StateDryRun
		return
	}

	action, err := l.writeLedger(ctx, key, ev.reportURL, result)
	if err != nil {
		l.fail(logger, report, err)
		return
	}
	if report.Action == "" {
		report.Action = action
	}
	if len(report.Transitions) == 0 {
		report.State = StateCommented
	}
	logger.Debug("ledger comment written", "action", action)
	l.msg("%s: %s ledger comment (%s = %s)", key, action, result.Name, result.Outcome)

	if !l.opts.WorkflowUpdates || !l.table.Active() {
		return
	}
	l.applyTransitions(ctx, logger, key, ev.outcome.Result, report)
}

// writeLedger finds the ledger comment on key and merges result into it, or
// creates the comment when there is none.
func (l *Listener) writeLedger(ctx context.Context, key, reportURL string, result types.NamedResult) (string, error) {
	comments, err := l.tracker.GetComments(ctx, key)
	if err != nil {
		return "", asUpdateError("get comments", key, err)
	}

	existing, found := lo.Find(comments, func(c tracker.Comment) bool {
		return ledger.IsLedgerComment(c.Body)
	})

	if !found {
		next := ledger.New(reportURL, l.opts.RunLabel, []types.NamedResult{result}, l.opts.WikiRendering)
		if err := l.tracker.AddComment(ctx, key, next.Text()); err != nil {
			return "", asUpdateError("add comment", key, err)
		}
		return ActionAdded, nil
	}

	next := ledger.Parse(existing.Body).MergeResults([]types.NamedResult{result})
	if current, _ := next.ReportURL(); reportURL != "" && current != reportURL {
		next = next.WithUpdatedReportURL(reportURL)
	}
	if current, _ := next.RunLabel(); l.opts.RunLabel != "" && current != l.opts.RunLabel {
		next = next.WithUpdatedRunLabel(l.opts.RunLabel)
	}
	next = next.WithWikiRendering(l.opts.WikiRendering)

	updated := tracker.Comment{ID: existing.ID, Body: next.Text(), Author: existing.Author}
	if err := l.tracker.UpdateComment(ctx, key, updated); err != nil {
		return "", asUpdateError("update comment", key, err)
	}
	return ActionUpdated, nil
}

func (l *Listener) applyTransitions(ctx context.Context, logger *log.Logger, key string, outcome types.Outcome, report *IssueReport) {
	status, err := l.tracker.GetStatus(ctx, key)
	if err != nil {
		if tracker.IsNoSuchIssue(err) {
			logger.Warn("issue not found while reading status; skipping transitions")
			l.warn("%s: issue not found, workflow transitions skipped", key)
			skipTransitions(report)
			return
		}
		l.fail(logger, report, asUpdateError("get status", key, err))
		return
	}

	names := l.table.Resolve(outcome, status)
	if len(names) == 0 {
		logger.Debug("no workflow transitions", "status", status)
		skipTransitions(report)
		return
	}

	for _, name := range names {
		if err := l.tracker.DoTransition(ctx, key, name); err != nil {
			if tracker.IsNoSuchIssue(err) {
				logger.Warn("issue disappeared during transitions", "transition", name)
				l.warn("%s: issue not found, remaining transitions skipped", key)
				skipTransitions(report)
				return
			}
			l.fail(logger, report, asUpdateError("transition", key, err))
			return
		}
		report.Transitions = append(report.Transitions, name)
		report.State = StateTransitionsApplied
		logger.Info("applied workflow transition", "status", status, "transition", name)
	}
	l.msg("%s: %s -> %s", key, status, strings.Join(names, " -> "))
}

// skipTransitions marks the key as skipped unless an earlier event already
// applied transitions to it.
func skipTransitions(report *IssueReport) {
	if len(report.Transitions) == 0 {
		report.State = StateTransitionsSkipped
	}
}

// fail records err on the report. A missing issue is logged and skipped
// rather than counted as a failure.
func (l *Listener) fail(logger *log.Logger, report *IssueReport, err error) {
	if tracker.IsNoSuchIssue(err) {
		logger.Warn("issue not found; skipping", "err", err)
		l.warn("%s: issue not found", report.Key)
		report.State = StateMissing
		return
	}
	logger.Error("tracker update failed", "err", err)
	l.warn("%s: %v", report.Key, err)
	report.State = StateFailed
	report.Err = err
}

// asUpdateError makes sure every tracker failure carries the issue key.
func asUpdateError(op, key string, err error) error {
	var ue *tracker.UpdateError
	if errors.As(err, &ue) {
		return err
	}
	return tracker.NewUpdateError(op, key, err)
}

func (l *Listener) msg(format string, args ...interface{}) {
	if l.opts.OnMessage != nil {
		l.opts.OnMessage(fmt.Sprintf(format, args...))
	}
}

func (l *Listener) warn(format string, args ...interface{}) {
	if l.opts.OnWarning != nil {
		l.opts.OnWarning(fmt.Sprintf(format, args...))
	}
}
