package listener

import (
	"github.com/cockroachdb/errors"
)

// State is the last step an issue reached during a run.
type State string

const (
	StateNoPriorComment     State = "NO_PRIOR_COMMENT"
	StateCommented          State = "COMMENTED"
	StateTransitionsApplied State = "TRANSITIONS_APPLIED"
	StateTransitionsSkipped State = "TRANSITIONS_SKIPPED"
	StateDryRun             State = "DRY_RUN"
	StateMissing            State = "MISSING"
	StateFailed             State = "FAILED"
)

// Comment actions recorded in IssueReport.Action.
const (
	ActionAdded   = "added"
	ActionUpdated = "updated"
)

// IssueReport is the outcome of publishing to one issue.
type IssueReport struct {
	Key         string   `json:"key"`
	State       State    `json:"state"`
	Action      string   `json:"action,omitempty"`
	Transitions []string `json:"transitions,omitempty"`
	Err         error    `json:"-"`
	Error       string   `json:"error,omitempty"`
}

// Stats counts what a run did.
type Stats struct {
	Added       int `json:"added"`       // Ledger comments created
	Updated     int `json:"updated"`     // Ledger comments rewritten
	Transitions int `json:"transitions"` // Workflow transitions applied
	Skipped     int `json:"skipped"`     // Issues left untouched by a dry run
	Missing     int `json:"missing"`     // Issues the tracker does not know
	Errors      int `json:"errors"`      // Issues that failed
}

// RunReport is the result of a TestFinished or Publish call.
type RunReport struct {
	// Disabled is set when the tracker or public URL is missing and nothing
	// was attempted.
	Disabled bool          `json:"disabled,omitempty"`
	Issues   []IssueReport `json:"issues"`
	Stats    Stats         `json:"stats"`
}

// Err joins the errors of every failed issue, or returns nil.
func (r RunReport) Err() error {
	var errs []error
	for _, issue := range r.Issues {
		if issue.Err != nil {
			errs = append(errs, issue.Err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Failed reports whether any issue ended in StateFailed.
func (r RunReport) Failed() bool {
	return r.Stats.Errors > 0
}

func (r *RunReport) add(issue IssueReport) {
	if issue.Err != nil {
		issue.Error = issue.Err.Error()
	}
	r.Issues = append(r.Issues, issue)
	switch issue.State {
	case StateDryRun:
		r.Stats.Skipped++
	case StateMissing:
		r.Stats.Missing++
	case StateFailed:
		r.Stats.Errors++
	}
}
