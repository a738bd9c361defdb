package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/ticketledger/internal/credential"
	"github.com/steveyegge/ticketledger/internal/jira"
	"github.com/steveyegge/ticketledger/internal/ledger"
	"github.com/steveyegge/ticketledger/internal/listener"
	"github.com/steveyegge/ticketledger/internal/tracker/testutil"
)

const runFile = `
story: Sample Story
run_label: "42"
outcomes:
  - title: logs in
    result: SUCCESS
    issues: ["#PROJ-1"]
  - title: logs out
    result: FAILURE
    issues: [PROJ-2]
`

func useTestKeyring(t *testing.T) *credential.Store {
	t.Helper()
	old := credentials
	credentials = credential.NewStore(keyring.NewArrayKeyring(nil))
	t.Cleanup(func() { credentials = old })
	return credentials
}

func TestPublishToJira(t *testing.T) {
	server := testutil.NewJiraMockServer()
	defer server.Close()
	server.AddIssue(testutil.JiraIssue{
		Key:    "PROJ-1",
		Status: "In Progress",
		Transitions: []testutil.JiraTransition{
			{ID: "11", Name: "Stop Progress", Status: "Open"},
			{ID: "21", Name: "Resolve Issue", Status: "Resolved"},
		},
	})
	server.AddIssue(testutil.JiraIssue{
		Key:    "PROJ-2",
		Status: "Open",
		Comments: []jira.Comment{{
			ID:     "500",
			Body:   ledger.New("http://old", "41", nil, true).Text(),
			Author: &jira.User{Name: "alice"},
		}},
	})

	store := useTestKeyring(t)
	require.NoError(t, store.Set(credential.TokenKey, "keyring-token"))

	cfg := writeTemp(t, "ticketledger.yaml", "tracker:\n  url: "+server.URL()+"\nreport:\n  public_url: http://reports/project\n")
	results := writeTemp(t, "run.yaml", runFile)

	out, _, err := execute(t, "", "--config", cfg, "--json", "publish", "--results", results, "--workflow")
	require.NoError(t, err)

	var report listener.RunReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, listener.Stats{Added: 1, Updated: 1, Transitions: 2}, report.Stats)

	issue, ok := server.Issue("PROJ-1")
	require.True(t, ok)
	assert.Equal(t, "Resolved", issue.Status)
	require.Len(t, issue.Comments, 1)
	l := ledger.Parse(issue.Comments[0].Body)
	url, _ := l.ReportURL()
	label, _ := l.RunLabel()
	assert.Equal(t, "http://reports/project/sample_story.html", url)
	assert.Equal(t, "42", label)
	assert.Equal(t, 1, l.Len())

	issue, _ = server.Issue("PROJ-2")
	require.Len(t, issue.Comments, 1)
	assert.Equal(t, "500", issue.Comments[0].ID)
	assert.Contains(t, issue.Comments[0].Body, "- logs out: FAILURE")

	for _, req := range server.GetRequests() {
		assert.Equal(t, "Bearer keyring-token", req.Headers.Get("Authorization"))
	}
}

func TestPublishFailureExitsNonZero(t *testing.T) {
	server := testutil.NewJiraMockServer()
	defer server.Close()
	server.AddIssue(testutil.JiraIssue{Key: "PROJ-1", Status: "Open"})
	server.SetServerError(-1)
	useTestKeyring(t)

	cfg := writeTemp(t, "ticketledger.yaml", "tracker:\n  url: "+server.URL()+"\n  token: t\n  retry:\n    max_elapsed: 1ms\nreport:\n  public_url: http://reports\n")
	results := writeTemp(t, "run.yaml", "outcomes: [{title: t, result: SUCCESS, issues: [PROJ-1]}]")

	out, _, err := execute(t, "", "--config", cfg, "publish", "--results", results)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 issue(s) failed")
	assert.Contains(t, out, "PROJ-1")
	assert.Contains(t, out, "1 errors")

	_, _, err = execute(t, "", "--config", cfg, "publish", "--results", results, "--keep-going")
	assert.NoError(t, err)
}

func TestPublishDryRunNeedsNoCredentials(t *testing.T) {
	useTestKeyring(t)
	results := writeTemp(t, "run.yaml", runFile)

	out, _, err := execute(t, "", "publish", "--results", results, "--dry-run",
		"--public-url", "http://reports")
	require.NoError(t, err)
	// Tracker URL missing: updates are disabled before the dry run matters.
	assert.Contains(t, out, "Tracker updates disabled")

	t.Setenv("JIRA_URL", "https://jira.invalid")
	out, _, err = execute(t, "", "--json", "publish", "--results", results, "--dry-run",
		"--public-url", "http://reports")
	require.NoError(t, err)

	var report listener.RunReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, listener.Stats{Skipped: 2}, report.Stats)
}

func TestPublishMemoryTrackerFromGoTest(t *testing.T) {
	useTestKeyring(t)
	issueMap := writeTemp(t, "issues.yaml", "map:\n  \"**/TestLogin\": [\"#AUTH-12\"]\n")
	stream := `{"Action":"run","Package":"example.com/auth","Test":"TestLogin"}
{"Action":"pass","Package":"example.com/auth","Test":"TestLogin"}
{"Action":"run","Package":"example.com/auth","Test":"TestOther"}
{"Action":"fail","Package":"example.com/auth","Test":"TestOther"}
`
	out, _, err := execute(t, stream, "--json", "publish", "--tracker", "memory",
		"--gotest-json", "-", "--issue-map", issueMap, "--public-url", "http://reports")
	require.NoError(t, err)

	var report listener.RunReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "AUTH-12", report.Issues[0].Key)
	assert.Equal(t, listener.StateCommented, report.Issues[0].State)
}

func TestPublishInputErrors(t *testing.T) {
	_, _, err := execute(t, "", "publish")
	assert.ErrorContains(t, err, "one of --results or --gotest-json is required")

	_, _, err = execute(t, "", "publish", "--gotest-json", "-")
	assert.ErrorContains(t, err, "--gotest-json requires --issue-map")

	_, _, err = execute(t, "", "publish", "--results", "x.yaml", "--gotest-json", "-")
	assert.Error(t, err)
}

func TestInspect(t *testing.T) {
	comment := "Thucydides Test Results\n[Thucydides Test Results|http://my.server/report.html]\nTest Run: 7\n- a: SUCCESS\n- b: FAILURE\n"

	out, _, err := execute(t, comment, "inspect", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "http://my.server/report.html")
	assert.Contains(t, out, "✗ FAILURE")
	assert.Contains(t, out, "Overall: ✗ FAILURE")

	out, _, err = execute(t, comment, "inspect", "-", "--format", "plain")
	require.NoError(t, err)
	assert.Contains(t, out, "Thucydides Test Results: http://my.server/report.html")

	out, _, err = execute(t, comment, "--json", "inspect", "-")
	require.NoError(t, err)
	var view ledgerJSON
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "7", view.RunLabel)
	assert.Len(t, view.Results, 2)

	_, _, err = execute(t, comment, "inspect", "-", "--format", "html")
	assert.Error(t, err)
}

func TestWorkflowCommands(t *testing.T) {
	out, _, err := execute(t, "", "workflow", "resolve", "success", "In", "Progress")
	require.NoError(t, err)
	assert.Equal(t, "Stop Progress\nResolve Issue\n", out)

	out, _, err = execute(t, "", "workflow", "resolve", "PENDING", "Open")
	require.NoError(t, err)
	assert.Contains(t, out, "no transitions")

	_, _, err = execute(t, "", "workflow", "resolve", "BOGUS", "Open")
	assert.ErrorContains(t, err, "unknown outcome")

	out, _, err = execute(t, "", "workflow", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "In Progress")
	assert.Contains(t, out, "Reopen Issue")

	file := writeTemp(t, "wf.yaml", "active: false\nwhen:\n  - status: Triage\n    outcomes:\n      FAILURE: [Escalate]\n")
	out, _, err = execute(t, "", "--json", "workflow", "show", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, `"active": false`)
	assert.Contains(t, out, "Escalate")
}

func TestAuthLoginLogout(t *testing.T) {
	store := useTestKeyring(t)

	out, _, err := execute(t, "piped-token\n", "auth", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Token stored")
	token, err := store.Get(credential.TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "piped-token", token)

	_, _, err = execute(t, "", "auth", "login", "--token", "flag-token")
	require.NoError(t, err)
	token, _ = store.Get(credential.TokenKey)
	assert.Equal(t, "flag-token", token)

	_, _, err = execute(t, "", "auth", "logout")
	require.NoError(t, err)
	token, err = store.Token("")
	require.NoError(t, err)
	assert.Empty(t, token)

	_, _, err = execute(t, strings.Repeat("\n", 1), "auth", "login")
	assert.Error(t, err)
}
