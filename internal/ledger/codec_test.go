package ledger

import (
	"strings"
	"testing"

	"github.com/steveyegge/ticketledger/internal/types"
)

func TestTextWikiRendering(t *testing.T) {
	l := New("http://h/r.html", "42", []types.NamedResult{
		types.NewNamedResult("zeta", types.OutcomeFailure),
		types.NewNamedResult("alpha", types.OutcomeSuccess),
	}, true)

	want := "Thucydides Test Results\n" +
		"[Thucydides Test Results|http://h/r.html]\n" +
		"Test Run: 42\n" +
		"- alpha: SUCCESS\n" +
		"- zeta: FAILURE"
	if got := l.Text(); got != want {
		t.Errorf("Text() =\n%s\nwant\n%s", got, want)
	}
}

func TestTextPlainRendering(t *testing.T) {
	l := New("http://h/r.html", "42", nil, false)
	got := l.Text()
	if !strings.Contains(got, "Thucydides Test Results: http://h/r.html") {
		t.Errorf("plain report line missing:\n%s", got)
	}
	if strings.Contains(got, "[") {
		t.Errorf("plain rendering should not contain wiki markup:\n%s", got)
	}
}

func TestTextWithoutURLOrLabel(t *testing.T) {
	got := New("", "", nil, true).Text()
	want := "Thucydides Test Results\n[Thucydides Test Results|]\nTest Run: "
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestParseWikiComment(t *testing.T) {
	text := "Thucydides Test Results\r\n" +
		"[Thucydides Test Results|http://my.server/myproject/thucydides/my_test.html]\r\n" +
		"Test Run: 7\r\n" +
		"- login works: SUCCESS\r\n" +
		"- logout works: FAILURE\r\n"

	l := Parse(text)

	url, ok := l.ReportURL()
	if !ok || url != "http://my.server/myproject/thucydides/my_test.html" {
		t.Errorf("ReportURL() = %q, %v", url, ok)
	}
	label, ok := l.RunLabel()
	if !ok || label != "7" {
		t.Errorf("RunLabel() = %q, %v", label, ok)
	}
	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", l.Len())
	}
	if r, _ := l.Result("logout works"); r.Outcome != types.OutcomeFailure {
		t.Errorf("logout works = %q, want FAILURE", r.Outcome)
	}
	if !l.WikiRendering() {
		t.Error("parsed ledgers default to wiki rendering")
	}
}

func TestParsePlainComment(t *testing.T) {
	text := "Thucydides Test Results\n" +
		"Thucydides Test Results: http://h:8080/r.html\n" +
		"Test Run: build: 12\n" +
		"- a: SUCCESS"

	l := Parse(text)
	if url, _ := l.ReportURL(); url != "http://h:8080/r.html" {
		t.Errorf("ReportURL() = %q", url)
	}
	if label, _ := l.RunLabel(); label != "build: 12" {
		t.Errorf("RunLabel() = %q", label)
	}
}

func TestParseUnknownOutcome(t *testing.T) {
	l := Parse("Thucydides Test Results\n[x|u]\nTest Run: 1\n- weird: NOT_A_RESULT")
	r, ok := l.Result("weird")
	if !ok {
		t.Fatal("weird result missing")
	}
	if r != types.NewNamedResult("weird", types.OutcomeUndefined) {
		t.Errorf("got %+v", r)
	}
}

func TestParseDegradesGracefully(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantURL   string
		wantLabel string
		wantNames []string
	}{
		{name: "empty", text: ""},
		{name: "header only", text: "Thucydides Test Results"},
		{name: "header and blank url line", text: "Thucydides Test Results\n"},
		{name: "url line without colon", text: "Thucydides Test Results\nno url here\nTest Run: 3", wantLabel: "3"},
		{name: "broken wiki link falls back to colon", text: "x\n[Report: http://h/r.html\nTest Run 4", wantURL: "http://h/r.html"},
		{name: "wiki link without closing bracket", text: "x\n[Report|no-close\n"},
		{name: "missing outcome", text: "x\n\n\n- lonely", wantNames: []string{"lonely"}},
		{name: "blank result lines skipped", text: "x\n\n\n\n- \n   \n- ok: SUCCESS\n", wantNames: []string{"ok"}},
		{name: "line without dash", text: "x\n\n\nplain: SUCCESS", wantNames: []string{"plain"}},
		{name: "duplicate names last wins", text: "x\n\n\n- d: SUCCESS\n- d: ERROR", wantNames: []string{"d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Parse(tt.text)
			if url, _ := l.ReportURL(); url != tt.wantURL {
				t.Errorf("ReportURL() = %q, want %q", url, tt.wantURL)
			}
			if label, _ := l.RunLabel(); label != tt.wantLabel {
				t.Errorf("RunLabel() = %q, want %q", label, tt.wantLabel)
			}
			var names []string
			for _, r := range l.Results() {
				names = append(names, r.Name)
			}
			if strings.Join(names, ",") != strings.Join(tt.wantNames, ",") {
				t.Errorf("names = %v, want %v", names, tt.wantNames)
			}
		})
	}

	if r, _ := Parse("x\n\n\n- d: SUCCESS\n- d: ERROR").Result("d"); r.Outcome != types.OutcomeError {
		t.Errorf("duplicate should resolve to last occurrence, got %q", r.Outcome)
	}
	if r, _ := Parse("x\n\n\n- lonely").Result("lonely"); r.Outcome != types.OutcomeUndefined {
		t.Errorf("missing outcome should be UNDEFINED, got %q", r.Outcome)
	}
}

func TestRoundTrip(t *testing.T) {
	ledgers := []Ledger{
		New("http://h/r.html", "42", []types.NamedResult{
			types.NewNamedResult("t1", types.OutcomeSuccess),
			types.NewNamedResult("t2", types.OutcomeFailure),
			types.NewNamedResult("Should log in with a valid password", types.OutcomePending),
		}, true),
		New("http://h:9090/a/b.html", "build #7", []types.NamedResult{
			types.NewNamedResult("- dashed name", types.OutcomeSkipped),
			types.NewNamedResult("[bracketed]", types.OutcomeIgnored),
		}, false),
		New("", "", []types.NamedResult{types.NewNamedResult("x", types.OutcomeUndefined)}, true),
		New("http://h/r.html", "nightly\nbuild 9", []types.NamedResult{
			types.NewNamedResult("TestParse/case:_colon", types.OutcomeSuccess),
			types.NewNamedResult("TestParse/two\nlines", types.OutcomeFailure),
		}, true),
	}

	for i, l := range ledgers {
		for _, wiki := range []bool{true, false} {
			src := l.WithWikiRendering(wiki)
			back := Parse(src.Text())
			if !back.Equal(src) {
				t.Errorf("ledger %d (wiki=%v) did not round-trip:\n%s\ngot results %v", i, wiki, src.Text(), back.Results())
			}
		}
	}
}

func TestIsLedgerComment(t *testing.T) {
	if !IsLedgerComment("prefix Thucydides Test Results suffix") {
		t.Error("marker should be found anywhere in the body")
	}
	if IsLedgerComment("a comment") {
		t.Error("plain comment should not match")
	}
}

func TestNamesWithSeparators(t *testing.T) {
	const raw = "TestParse/case:_colon"
	l := New("http://h/r.html", "42", []types.NamedResult{types.NewNamedResult(raw, types.OutcomeFailure)}, true)

	if !strings.Contains(l.Text(), "- TestParse/case__colon: FAILURE") {
		t.Errorf("colon should be replaced in the comment text:\n%s", l.Text())
	}

	// A later run reports the same raw name again; it must land on the same entry.
	next := Parse(l.Text()).MergeResults([]types.NamedResult{types.NewNamedResult(raw, types.OutcomeSuccess)})
	if next.Len() != 1 {
		t.Fatalf("expected a single entry, got %v", next.Results())
	}
	if r, ok := next.Result(raw); !ok || r.Outcome != types.OutcomeSuccess {
		t.Errorf("Result(%q) = %v, %v; want SUCCESS", raw, r, ok)
	}

	label := New("", "run\r\n7", nil, true)
	if got, _ := label.RunLabel(); got != "run 7" {
		t.Errorf("run label = %q, want %q", got, "run 7")
	}
	if got := strings.Count(label.Text(), "\n"); got != 2 {
		t.Errorf("header should stay on three lines, got %d breaks:\n%s", got, label.Text())
	}
}
