// Package workflow maps a test outcome and an issue's current status to the
// ordered list of workflow transitions that should be applied to the issue.
package workflow

import (
	"sort"
	"strings"

	"github.com/steveyegge/ticketledger/internal/types"
)

// Table is an immutable transition table. Statuses are matched
// case-insensitively after trimming surrounding whitespace.
type Table struct {
	active      bool
	transitions map[types.Outcome]map[string][]string
	// display keeps the status spelling first seen for each normalized key.
	display map[string]string
}

// Rule is one status row of a table, used for display and serialization.
type Rule struct {
	Status   string                     `json:"status" yaml:"status"`
	Outcomes map[types.Outcome][]string `json:"outcomes" yaml:"outcomes"`
}

// Active reports whether transitions should be applied at all.
func (t Table) Active() bool {
	return t.active
}

// WithActive returns a copy of the table with the active flag replaced.
func (t Table) WithActive(active bool) Table {
	t.active = active
	return t
}

// Resolve is shorthand for Resolve(t, outcome, status).
func (t Table) Resolve(outcome types.Outcome, status string) []string {
	return Resolve(t, outcome, status)
}

// Resolve returns the transitions to apply, in order, for an issue in
// currentStatus whose test finished with outcome. The result is always a new
// non-nil slice. Resolve ignores the active flag.
func Resolve(t Table, outcome types.Outcome, currentStatus string) []string {
	names := t.transitions[outcome][normalizeStatus(currentStatus)]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// Rules lists the table rows ordered by status name.
func (t Table) Rules() []Rule {
	byStatus := make(map[string]Rule)
	for outcome, statuses := range t.transitions {
		for key, names := range statuses {
			r, ok := byStatus[key]
			if !ok {
				r = Rule{Status: t.display[key], Outcomes: make(map[types.Outcome][]string)}
			}
			r.Outcomes[outcome] = append([]string(nil), names...)
			byStatus[key] = r
		}
	}

	keys := make([]string, 0, len(byStatus))
	for k := range byStatus {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rules := make([]Rule, 0, len(keys))
	for _, k := range keys {
		rules = append(rules, byStatus[k])
	}
	return rules
}

// Len returns the number of (outcome, status) pairs with transitions.
func (t Table) Len() int {
	n := 0
	for _, statuses := range t.transitions {
		n += len(statuses)
	}
	return n
}

func normalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}
