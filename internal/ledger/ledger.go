// Package ledger implements the test-result ledger that lives inside an issue
// comment: an immutable record of a report URL, a run label and the outcome of
// every named test that has ever reported against the issue.
//
// A Ledger is a value. Every With*/Merge* method returns a new Ledger and
// leaves the receiver untouched, so Ledgers can be shared between goroutines
// without locking.
package ledger

import (
	"sort"
	"strings"

	"github.com/steveyegge/ticketledger/internal/types"
)

// Ledger is the structured test-result record embedded in an issue comment.
// The zero value is an empty ledger with plain rendering.
type Ledger struct {
	reportURL     string
	runLabel      string
	results       map[string]types.NamedResult
	wikiRendering bool
}

// New builds a ledger from scratch. Empty reportURL or runLabel mean "none".
// When results contains the same name more than once, the last one wins.
// Test names are stored in their comment-safe form, see SafeName.
func New(reportURL, runLabel string, results []types.NamedResult, wikiRendering bool) Ledger {
	return Ledger{
		reportURL:     singleLine(reportURL),
		runLabel:      singleLine(runLabel),
		results:       indexByName(nil, results),
		wikiRendering: wikiRendering,
	}
}

// ReportURL returns the report URL and whether one is set.
func (l Ledger) ReportURL() (string, bool) {
	return l.reportURL, l.reportURL != ""
}

// RunLabel returns the run label and whether one is set.
func (l Ledger) RunLabel() (string, bool) {
	return l.runLabel, l.runLabel != ""
}

// WikiRendering reports whether the report URL renders as a wiki link.
func (l Ledger) WikiRendering() bool {
	return l.wikiRendering
}

// Len returns the number of named results.
func (l Ledger) Len() int {
	return len(l.results)
}

// Result looks up a single result by test name.
func (l Ledger) Result(name string) (types.NamedResult, bool) {
	r, ok := l.results[SafeName(name)]
	return r, ok
}

// Results returns the named results in ascending name order. The returned
// slice is a copy.
func (l Ledger) Results() []types.NamedResult {
	out := make([]types.NamedResult, 0, len(l.results))
	for _, name := range l.names() {
		out = append(out, l.results[name])
	}
	return out
}

// OverallOutcome aggregates every result in the ledger with types.Aggregate.
func (l Ledger) OverallOutcome() types.Outcome {
	outcomes := make([]types.Outcome, 0, len(l.results))
	for _, r := range l.results {
		outcomes = append(outcomes, r.Outcome)
	}
	return types.Aggregate(outcomes...)
}

// WithUpdatedReportURL returns a copy with a new report URL.
func (l Ledger) WithUpdatedReportURL(reportURL string) Ledger {
	next := l.clone()
	next.reportURL = singleLine(reportURL)
	return next
}

// WithUpdatedRunLabel returns a copy with a new run label.
func (l Ledger) WithUpdatedRunLabel(runLabel string) Ledger {
	next := l.clone()
	next.runLabel = singleLine(runLabel)
	return next
}

// WithWikiRendering returns a copy with the given rendering mode.
func (l Ledger) WithWikiRendering(active bool) Ledger {
	next := l.clone()
	next.wikiRendering = active
	return next
}

// MergeResults returns a copy where every incoming result is inserted or
// overwrites the existing entry with the same name. Entries not mentioned in
// newResults are kept. Within newResults the last duplicate wins.
func (l Ledger) MergeResults(newResults []types.NamedResult) Ledger {
	next := l
	next.results = indexByName(l.results, newResults)
	return next
}

// Equal reports whether two ledgers hold the same report URL, run label and
// result set. The rendering mode is not compared.
func (l Ledger) Equal(other Ledger) bool {
	if l.reportURL != other.reportURL || l.runLabel != other.runLabel {
		return false
	}
	if len(l.results) != len(other.results) {
		return false
	}
	for name, r := range l.results {
		o, ok := other.results[name]
		if !ok || o != r {
			return false
		}
	}
	return true
}

// String renders the ledger as comment text.
func (l Ledger) String() string {
	return l.Text()
}

func (l Ledger) clone() Ledger {
	next := l
	next.results = indexByName(l.results, nil)
	return next
}

func (l Ledger) names() []string {
	names := make([]string, 0, len(l.results))
	for name := range l.results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// indexByName copies base and applies results on top of it, storing each name
// in its SafeName form. Results without a name cannot be written back to a
// comment and are dropped.
func indexByName(base map[string]types.NamedResult, results []types.NamedResult) map[string]types.NamedResult {
	indexed := make(map[string]types.NamedResult, len(base)+len(results))
	for name, r := range base {
		indexed[name] = r
	}
	for _, r := range results {
		name := SafeName(r.Name)
		if name == "" {
			continue
		}
		indexed[name] = types.NewNamedResult(name, r.Outcome)
	}
	return indexed
}

var nameReplacer = strings.NewReplacer(":", "_", "\r\n", "_", "\r", "_", "\n", "_")

// SafeName returns the form of a test name that survives a trip through the
// comment text: colons and line breaks become underscores and surrounding
// whitespace is trimmed. Go subtest names such as "TestParse/key:value" would
// otherwise be cut at the colon when the comment is read back.
func SafeName(name string) string {
	return strings.TrimSpace(nameReplacer.Replace(name))
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// singleLine keeps a header value on its own line of the comment.
func singleLine(s string) string {
	return strings.TrimSpace(lineBreaks.Replace(s))
}
