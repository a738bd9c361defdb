// Package types defines the value types shared by the ledger, workflow and
// listener packages: test outcomes and named test results.
package types

import "strings"

// Outcome is the result classification of a single test.
type Outcome string

// Outcome constants. UNDEFINED is the fallback for any unrecognized token.
const (
	OutcomeSuccess   Outcome = "SUCCESS"
	OutcomeFailure   Outcome = "FAILURE"
	OutcomeError     Outcome = "ERROR"
	OutcomeSkipped   Outcome = "SKIPPED"
	OutcomeIgnored   Outcome = "IGNORED"
	OutcomePending   Outcome = "PENDING"
	OutcomeUndefined Outcome = "UNDEFINED"
)

// Outcomes lists every outcome in declaration order.
var Outcomes = []Outcome{
	OutcomeSuccess,
	OutcomeFailure,
	OutcomeError,
	OutcomeSkipped,
	OutcomeIgnored,
	OutcomePending,
	OutcomeUndefined,
}

// IsValid checks if the outcome is one of the known values.
func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure, OutcomeError, OutcomeSkipped,
		OutcomeIgnored, OutcomePending, OutcomeUndefined:
		return true
	}
	return false
}

func (o Outcome) String() string {
	return string(o)
}

// ParseOutcome maps a token to an Outcome. Matching is exact after trimming
// surrounding whitespace; anything else (including "") is OutcomeUndefined.
func ParseOutcome(token string) Outcome {
	o := Outcome(strings.TrimSpace(token))
	if o.IsValid() {
		return o
	}
	return OutcomeUndefined
}

// ParseOutcomeFold is like ParseOutcome but ignores case. It is meant for
// user-facing inputs (CLI args, run files), never for comment bodies.
func ParseOutcomeFold(token string) Outcome {
	return ParseOutcome(strings.ToUpper(strings.TrimSpace(token)))
}

// NamedResult pairs a test name with its outcome. Two results refer to the
// same test when their names are equal (case-sensitive).
type NamedResult struct {
	Name    string  `json:"name" yaml:"name"`
	Outcome Outcome `json:"outcome" yaml:"outcome"`
}

// NewNamedResult builds a NamedResult.
func NewNamedResult(name string, outcome Outcome) NamedResult {
	return NamedResult{Name: name, Outcome: outcome}
}

// Aggregate computes the overall outcome of a set of test outcomes.
//
// Precedence: ERROR, then FAILURE, then PENDING. A set made only of SKIPPED
// (or only of IGNORED) keeps that value. A set of SUCCESS mixed with SKIPPED or
// IGNORED is SUCCESS. Anything containing UNDEFINED that was not already
// decided above, and the empty set, is UNDEFINED.
func Aggregate(outcomes ...Outcome) Outcome {
	if len(outcomes) == 0 {
		return OutcomeUndefined
	}

	counts := make(map[Outcome]int, len(Outcomes))
	for _, o := range outcomes {
		if !o.IsValid() {
			o = OutcomeUndefined
		}
		counts[o]++
	}

	switch {
	case counts[OutcomeError] > 0:
		return OutcomeError
	case counts[OutcomeFailure] > 0:
		return OutcomeFailure
	case counts[OutcomePending] > 0:
		return OutcomePending
	case counts[OutcomeSkipped] == len(outcomes):
		return OutcomeSkipped
	case counts[OutcomeIgnored] == len(outcomes):
		return OutcomeIgnored
	case counts[OutcomeUndefined] > 0:
		return OutcomeUndefined
	}
	return OutcomeSuccess
}
