package results

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/steveyegge/ticketledger/internal/listener"
	"github.com/steveyegge/ticketledger/internal/types"
)

// TestEvent is one line of `go test -json` output.
type TestEvent struct {
	Action  string  `json:"Action"`
	Package string  `json:"Package"`
	Test    string  `json:"Test"`
	Elapsed float64 `json:"Elapsed"`
	Output  string  `json:"Output"`
}

// GoTestResult is what ParseGoTest found in a stream.
type GoTestResult struct {
	// Outcomes holds every test with at least one mapped issue, sorted by
	// package then test name.
	Outcomes []listener.TestOutcome
	// Unmapped counts tests that matched no pattern.
	Unmapped int
	// Malformed counts lines that were not JSON events, including lines
	// longer than maxEventLine.
	Malformed int
}

// maxEventLine bounds a single event line. A test that prints a huge line
// without a newline produces one Output event of that size.
const maxEventLine = 1024 * 1024

type testKey struct {
	pkg, test string
}

type goTestAggregator struct {
	outcomes map[testKey]types.Outcome
	// failedPackages holds packages with a package-level fail event.
	failedPackages map[string]bool
}

// ParseGoTest reads a `go test -json` stream. pass, fail and skip map to
// SUCCESS, FAILURE and SKIPPED. A test that starts but never finishes is an
// ERROR, as is a failed package with no failing test to blame (a build error
// or a failing TestMain); that package is reported under its import path.
//
// Outcomes are titled by test name. When tests with the same name in
// different packages report against the same issue, their titles are
// qualified with the package path so they keep separate ledger entries.
func ParseGoTest(r io.Reader, issues *IssueMap) (*GoTestResult, error) {
	agg := &goTestAggregator{
		outcomes:       make(map[testKey]types.Outcome),
		failedPackages: make(map[string]bool),
	}

	res := &GoTestResult{}
	oversized, err := eachLine(r, func(line []byte) {
		var event TestEvent
		if err := json.Unmarshal(line, &event); err != nil || event.Action == "" {
			res.Malformed++
			return
		}
		agg.process(event)
	})
	res.Malformed += oversized
	if err != nil {
		return nil, errors.Wrap(err, "scanning test output")
	}

	type titleOnIssue struct{ issue, test string }
	packagesFor := make(map[titleOnIssue]map[string]bool)
	mapped := make(map[testKey][]string)
	for key := range agg.finish() {
		keys := issues.Issues(key.pkg, key.test)
		if len(keys) == 0 {
			res.Unmapped++
			continue
		}
		mapped[key] = keys
		if key.test == "" {
			continue
		}
		for _, issue := range keys {
			ti := titleOnIssue{issue: issue, test: key.test}
			if packagesFor[ti] == nil {
				packagesFor[ti] = make(map[string]bool)
			}
			packagesFor[ti][key.pkg] = true
		}
	}

	for key, keys := range mapped {
		title := key.test
		switch {
		case title == "":
			title = key.pkg
		case lo.SomeBy(keys, func(issue string) bool { return len(packagesFor[titleOnIssue{issue, key.test}]) > 1 }):
			title = key.pkg + "/" + key.test
		}
		res.Outcomes = append(res.Outcomes, listener.TestOutcome{
			Title:  title,
			Story:  key.pkg,
			Result: agg.outcomes[key],
			Issues: keys,
		})
	}
	sort.Slice(res.Outcomes, func(i, j int) bool {
		a, b := res.Outcomes[i], res.Outcomes[j]
		if a.Story != b.Story {
			return a.Story < b.Story
		}
		return a.Title < b.Title
	})
	return res, nil
}

func (a *goTestAggregator) process(e TestEvent) {
	if e.Test == "" {
		if e.Action == "fail" {
			a.failedPackages[e.Package] = true
		}
		return
	}

	key := testKey{pkg: e.Package, test: e.Test}
	switch e.Action {
	case "run":
		if _, seen := a.outcomes[key]; !seen {
			a.outcomes[key] = types.OutcomeError
		}
	case "pass":
		a.outcomes[key] = types.OutcomeSuccess
	case "fail":
		a.outcomes[key] = types.OutcomeFailure
	case "skip":
		a.outcomes[key] = types.OutcomeSkipped
	}
}

// finish returns the final outcome per test, adding a package-level ERROR for
// failed packages whose tests all passed or skipped.
func (a *goTestAggregator) finish() map[testKey]types.Outcome {
	blamed := make(map[string]bool)
	for key, outcome := range a.outcomes {
		if outcome == types.OutcomeFailure || outcome == types.OutcomeError {
			blamed[key.pkg] = true
		}
	}
	for pkg := range a.failedPackages {
		if !blamed[pkg] {
			a.outcomes[testKey{pkg: pkg}] = types.OutcomeError
		}
	}
	return a.outcomes
}

// eachLine calls fn for every non-empty line of r, without its line ending.
// Lines longer than maxEventLine are skipped and counted instead of aborting
// the whole stream.
func eachLine(r io.Reader, fn func(line []byte)) (oversized int, err error) {
	br := bufio.NewReaderSize(r, 64*1024)
	var buf []byte
	tooLong := false
	for {
		chunk, readErr := br.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > maxEventLine {
				tooLong = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(readErr, bufio.ErrBufferFull) {
			continue
		}
		if readErr != nil && readErr != io.EOF {
			return oversized, readErr
		}

		if tooLong {
			oversized++
		} else if line := bytes.TrimRight(buf, "\r\n"); len(line) > 0 {
			fn(line)
		}
		buf = buf[:0]
		tooLong = false

		if readErr == io.EOF {
			return oversized, nil
		}
	}
}
