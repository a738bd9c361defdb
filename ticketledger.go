// Package ticketledger provides a minimal public API for publishing test
// results to an issue tracker from Go programs, for example a custom test
// runner that wants to keep ledger comments current without the CLI.
//
// Trackers are registered by name; import the jira package for its side
// effect or pass your own IssueTracker implementation to NewListener.
package ticketledger

import (
	"context"

	"github.com/steveyegge/ticketledger/internal/ledger"
	"github.com/steveyegge/ticketledger/internal/listener"
	"github.com/steveyegge/ticketledger/internal/tracker"
	"github.com/steveyegge/ticketledger/internal/types"
	"github.com/steveyegge/ticketledger/internal/workflow"

	// Built-in trackers register themselves with the registry.
	_ "github.com/steveyegge/ticketledger/internal/jira"
	_ "github.com/steveyegge/ticketledger/internal/tracker/memory"
)

// Core types
type (
	Outcome     = types.Outcome
	NamedResult = types.NamedResult
	Ledger      = ledger.Ledger
	Table       = workflow.Table
	Listener    = listener.Listener
	Options     = listener.Options
	TestOutcome = listener.TestOutcome
	RunReport   = listener.RunReport
)

// Tracker contract
type (
	IssueTracker = tracker.IssueTracker
	Comment      = tracker.Comment
	UpdateError  = tracker.UpdateError
)

// Outcome constants
const (
	OutcomeSuccess   = types.OutcomeSuccess
	OutcomeFailure   = types.OutcomeFailure
	OutcomeError     = types.OutcomeError
	OutcomeSkipped   = types.OutcomeSkipped
	OutcomeIgnored   = types.OutcomeIgnored
	OutcomePending   = types.OutcomePending
	OutcomeUndefined = types.OutcomeUndefined
)

// ErrNoSuchIssue is reported by trackers for unknown issue keys.
var ErrNoSuchIssue = tracker.ErrNoSuchIssue

// NewLedger builds a ledger from scratch.
func NewLedger(reportURL, runLabel string, results []NamedResult, wikiRendering bool) Ledger {
	return ledger.New(reportURL, runLabel, results, wikiRendering)
}

// ParseLedger reads a ledger from comment text. It never fails.
func ParseLedger(text string) Ledger {
	return ledger.Parse(text)
}

// DefaultWorkflow returns the built-in transition table.
func DefaultWorkflow() Table {
	return workflow.Default()
}

// LoadWorkflow reads a transition table from a YAML or TOML file.
func LoadWorkflow(path string) (Table, error) {
	return workflow.LoadFile(path)
}

// NewListener creates a listener publishing through tr.
func NewListener(tr IssueTracker, table Table, opts Options) *Listener {
	return listener.New(tr, table, opts)
}

// OpenTracker creates a registered tracker ("jira" or "memory") and
// initializes it from values keyed "<name>.<key>", such as "jira.url" and
// "jira.token". Missing values fall back to environment variables.
func OpenTracker(ctx context.Context, name string, values map[string]string) (IssueTracker, error) {
	tr, err := tracker.NewTracker(name)
	if err != nil {
		return nil, err
	}
	if initer, ok := tr.(tracker.Initializer); ok {
		if err := initer.Init(ctx, tracker.NewConfig(ctx, name, tracker.MapStore(values))); err != nil {
			return nil, err
		}
	}
	return tr, nil
}
