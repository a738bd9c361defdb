package ledger

import (
	"strings"

	"github.com/steveyegge/ticketledger/internal/types"
)

// Marker identifies a comment as a ledger. It is the header line of every
// serialized ledger and the substring used to find an existing ledger among an
// issue's comments. Changing it orphans every comment posted before the change.
const Marker = "Thucydides Test Results"

const runLabelTitle = "Test Run"

// Line positions inside a serialized ledger.
const (
	reportURLLine   = 1
	runLabelLine    = 2
	firstResultLine = 3
)

// IsLedgerComment reports whether a comment body was written by this package.
func IsLedgerComment(body string) bool {
	return strings.Contains(body, Marker)
}

// Parse reads a ledger from comment text. It never fails: missing lines become
// empty fields, unknown outcomes become UNDEFINED and lines without a usable
// test name are skipped. Both link renderings are accepted; the returned
// ledger has wiki rendering switched on.
func Parse(text string) Ledger {
	lines := splitLines(text)

	var reportURL, runLabel string
	if len(lines) > reportURLLine {
		reportURL = reportURLIn(lines[reportURLLine])
	}
	if len(lines) > runLabelLine {
		runLabel, _ = textAfterColon(lines[runLabelLine])
	}

	var results []types.NamedResult
	for i := firstResultLine; i < len(lines); i++ {
		if r, ok := parseResultLine(lines[i]); ok {
			results = append(results, r)
		}
	}

	return New(reportURL, runLabel, results, true)
}

// Text serializes the ledger:
//
//	Thucydides Test Results
//	[Thucydides Test Results|<url>]   or   Thucydides Test Results: <url>
//	Test Run: <label>
//	- <name>: <OUTCOME>
//
// Results are written in ascending name order.
func (l Ledger) Text() string {
	var sb strings.Builder
	sb.WriteString(Marker)
	sb.WriteString("\n")
	sb.WriteString(l.reportLine())
	sb.WriteString("\n")
	sb.WriteString(runLabelTitle + ": " + l.runLabel)
	for _, r := range l.Results() {
		sb.WriteString("\n- ")
		sb.WriteString(r.Name)
		sb.WriteString(": ")
		sb.WriteString(r.Outcome.String())
	}
	return sb.String()
}

func (l Ledger) reportLine() string {
	if l.wikiRendering {
		return "[" + Marker + "|" + l.reportURL + "]"
	}
	return Marker + ": " + l.reportURL
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// reportURLIn extracts the URL from either "[label|url]" or "label: url".
func reportURLIn(line string) string {
	if strings.Contains(line, "[") {
		if url, ok := wikiLinkTarget(line); ok {
			return url
		}
	}
	url, _ := textAfterColon(line)
	return url
}

// wikiLinkTarget returns the text strictly between the first '|' and the
// following ']'.
func wikiLinkTarget(line string) (string, bool) {
	pipe := strings.Index(line, "|")
	if pipe < 0 {
		return "", false
	}
	end := strings.Index(line[pipe+1:], "]")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(line[pipe+1 : pipe+1+end]), true
}

func textAfterColon(line string) (string, bool) {
	_, after, found := strings.Cut(line, ":")
	if !found {
		return "", false
	}
	return strings.TrimSpace(after), true
}

// parseResultLine reads "- <name>: <OUTCOME>". The line is split on ':' into
// at most three parts; the first is the name, the second the outcome.
func parseResultLine(line string) (types.NamedResult, bool) {
	parts := strings.SplitN(line, ":", 3)
	name := stripInitialDash(strings.TrimSpace(parts[0]))
	if strings.TrimSpace(name) == "" {
		return types.NamedResult{}, false
	}

	outcome := types.OutcomeUndefined
	if len(parts) > 1 {
		outcome = types.ParseOutcome(parts[1])
	}
	return types.NewNamedResult(name, outcome), true
}

func stripInitialDash(s string) string {
	if !strings.HasPrefix(s, "-") {
		return s
	}
	return strings.TrimPrefix(s[1:], " ")
}
