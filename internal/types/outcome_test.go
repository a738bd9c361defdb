package types

import "testing"

func TestParseOutcome(t *testing.T) {
	tests := []struct {
		token string
		want  Outcome
	}{
		{"SUCCESS", OutcomeSuccess},
		{"  FAILURE ", OutcomeFailure},
		{"ERROR", OutcomeError},
		{"SKIPPED", OutcomeSkipped},
		{"IGNORED", OutcomeIgnored},
		{"PENDING", OutcomePending},
		{"UNDEFINED", OutcomeUndefined},
		{"NOT_A_RESULT", OutcomeUndefined},
		{"success", OutcomeUndefined},
		{"", OutcomeUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			if got := ParseOutcome(tt.token); got != tt.want {
				t.Errorf("ParseOutcome(%q) = %q, want %q", tt.token, got, tt.want)
			}
		})
	}
}

func TestParseOutcomeFold(t *testing.T) {
	if got := ParseOutcomeFold(" success "); got != OutcomeSuccess {
		t.Errorf("ParseOutcomeFold = %q, want SUCCESS", got)
	}
	if got := ParseOutcomeFold("nope"); got != OutcomeUndefined {
		t.Errorf("ParseOutcomeFold = %q, want UNDEFINED", got)
	}
}

func TestOutcomeIsValid(t *testing.T) {
	for _, o := range Outcomes {
		if !o.IsValid() {
			t.Errorf("%q should be valid", o)
		}
	}
	if Outcome("BROKEN").IsValid() {
		t.Error("BROKEN should not be valid")
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		in   []Outcome
		want Outcome
	}{
		{"empty", nil, OutcomeUndefined},
		{"all success", []Outcome{OutcomeSuccess, OutcomeSuccess}, OutcomeSuccess},
		{"error wins over failure", []Outcome{OutcomeFailure, OutcomeError, OutcomeSuccess}, OutcomeError},
		{"failure wins over pending", []Outcome{OutcomePending, OutcomeFailure}, OutcomeFailure},
		{"pending wins over success", []Outcome{OutcomeSuccess, OutcomePending}, OutcomePending},
		{"only skipped", []Outcome{OutcomeSkipped, OutcomeSkipped}, OutcomeSkipped},
		{"only ignored", []Outcome{OutcomeIgnored}, OutcomeIgnored},
		{"success with skipped", []Outcome{OutcomeSuccess, OutcomeSkipped, OutcomeIgnored}, OutcomeSuccess},
		{"undefined mixed in", []Outcome{OutcomeSuccess, OutcomeUndefined}, OutcomeUndefined},
		{"unknown value treated as undefined", []Outcome{Outcome("weird")}, OutcomeUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Aggregate(tt.in...); got != tt.want {
				t.Errorf("Aggregate(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
