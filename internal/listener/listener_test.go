package listener

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/ticketledger/internal/ledger"
	"github.com/steveyegge/ticketledger/internal/logging"
	"github.com/steveyegge/ticketledger/internal/tracker"
	"github.com/steveyegge/ticketledger/internal/tracker/memory"
	"github.com/steveyegge/ticketledger/internal/types"
	"github.com/steveyegge/ticketledger/internal/workflow"
)

// mockTracker is a testify mock of tracker.IssueTracker.
type mockTracker struct {
	mock.Mock
}

func (m *mockTracker) Name() string { return "mock" }

func (m *mockTracker) GetComments(ctx context.Context, key string) ([]tracker.Comment, error) {
	args := m.Called(ctx, key)
	comments, _ := args.Get(0).([]tracker.Comment)
	return comments, args.Error(1)
}

func (m *mockTracker) AddComment(ctx context.Context, key, body string) error {
	return m.Called(ctx, key, body).Error(0)
}

func (m *mockTracker) UpdateComment(ctx context.Context, key string, c tracker.Comment) error {
	return m.Called(ctx, key, c).Error(0)
}

func (m *mockTracker) GetStatus(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *mockTracker) DoTransition(ctx context.Context, key, transition string) error {
	return m.Called(ctx, key, transition).Error(0)
}

func baseOptions() Options {
	return Options{
		TrackerURL:    "http://my.jira.server",
		PublicURL:     "http://my.server/project",
		RunLabel:      "42",
		WikiRendering: true,
		Logger:        logging.Discard(),
	}
}

func TestAddsLedgerCommentWhenNoneExists(t *testing.T) {
	ctx := context.Background()
	tr := &mockTracker{}
	tr.On("GetComments", mock.Anything, "MYPROJECT-123").Return([]tracker.Comment{}, nil)
	tr.On("AddComment", mock.Anything, "MYPROJECT-123", mock.MatchedBy(func(body string) bool {
		return strings.Contains(body, "[Thucydides Test Results|http://my.server/project/report.html]") &&
			strings.Contains(body, "Test Run: 42") &&
			strings.Contains(body, "- A simple test case: SUCCESS")
	})).Return(nil)

	l := New(tr, workflow.Default(), baseOptions())
	report := l.TestFinished(ctx, TestOutcome{
		Title:      "A simple test case",
		ReportName: "report.html",
		Result:     types.OutcomeSuccess,
		Issues:     []string{"#MYPROJECT-123"},
	})

	tr.AssertExpectations(t)
	tr.AssertNotCalled(t, "DoTransition", mock.Anything, mock.Anything, mock.Anything)
	tr.AssertNotCalled(t, "GetStatus", mock.Anything, mock.Anything)

	require.Len(t, report.Issues, 1)
	assert.Equal(t, IssueReport{Key: "MYPROJECT-123", State: StateCommented, Action: ActionAdded}, report.Issues[0])
	assert.Equal(t, Stats{Added: 1}, report.Stats)
	assert.NoError(t, report.Err())
}

func TestUpdatesExistingLedgerPreservingIDAndAuthor(t *testing.T) {
	ctx := context.Background()
	previous := ledger.New("http://old/report.html", "41", []types.NamedResult{
		types.NewNamedResult("old test", types.OutcomeFailure),
		types.NewNamedResult("A simple test case", types.OutcomeFailure),
	}, true)

	tr := &mockTracker{}
	tr.On("GetComments", mock.Anything, "PROJ-7").Return([]tracker.Comment{
		{ID: "c1", Body: "Looks good to me", Author: "bob"},
		{ID: "c2", Body: previous.Text(), Author: "alice"},
	}, nil)

	var written tracker.Comment
	tr.On("UpdateComment", mock.Anything, "PROJ-7", mock.AnythingOfType("tracker.Comment")).
		Run(func(args mock.Arguments) { written = args.Get(2).(tracker.Comment) }).
		Return(nil)

	opts := baseOptions()
	opts.WikiRendering = false
	report := New(tr, workflow.Default(), opts).TestFinished(ctx, TestOutcome{
		Title:      "A simple test case",
		ReportName: "report.html",
		Result:     types.OutcomeSuccess,
		Issues:     []string{"PROJ-7"},
	})

	tr.AssertExpectations(t)
	tr.AssertNotCalled(t, "AddComment", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, "c2", written.ID)
	assert.Equal(t, "alice", written.Author)

	parsed := ledger.Parse(written.Body)
	url, _ := parsed.ReportURL()
	label, _ := parsed.RunLabel()
	assert.Equal(t, "http://my.server/project/report.html", url)
	assert.Equal(t, "42", label)
	assert.Contains(t, written.Body, "Thucydides Test Results: http://my.server/project/report.html")

	r, _ := parsed.Result("A simple test case")
	assert.Equal(t, types.OutcomeSuccess, r.Outcome)
	r, _ = parsed.Result("old test")
	assert.Equal(t, types.OutcomeFailure, r.Outcome)

	assert.Equal(t, ActionUpdated, report.Issues[0].Action)
	assert.Equal(t, Stats{Updated: 1}, report.Stats)
}

func TestEmptyRunLabelKeepsExistingLabel(t *testing.T) {
	ctx := context.Background()
	tr := memory.New()
	tr.AddIssue("PROJ-1", "Open", tracker.Comment{
		ID:   "1",
		Body: ledger.New("http://my.server/project", "build-9", nil, true).Text(),
	})

	opts := baseOptions()
	opts.RunLabel = ""
	New(tr, workflow.Table{}, opts).TestFinished(ctx, TestOutcome{Title: "t", Result: types.OutcomeSuccess, Issues: []string{"PROJ-1"}})

	label, _ := ledger.Parse(tr.Comments("PROJ-1")[0].Body).RunLabel()
	assert.Equal(t, "build-9", label)
}

func TestMissingIssueOnStatusSkipsTransitions(t *testing.T) {
	ctx := context.Background()
	tr := &mockTracker{}
	tr.On("GetComments", mock.Anything, "PROJ-9").Return(nil, nil)
	tr.On("AddComment", mock.Anything, "PROJ-9", mock.Anything).Return(nil)
	tr.On("GetStatus", mock.Anything, "PROJ-9").
		Return("", tracker.NewUpdateError("get status", "PROJ-9", tracker.ErrNoSuchIssue))

	var warnings []string
	opts := baseOptions()
	opts.WorkflowUpdates = true
	opts.OnWarning = func(msg string) { warnings = append(warnings, msg) }

	report := New(tr, workflow.Default(), opts).TestFinished(ctx, TestOutcome{
		Title:  "t",
		Result: types.OutcomeSuccess,
		Issues: []string{"PROJ-9"},
	})

	tr.AssertExpectations(t)
	tr.AssertNotCalled(t, "DoTransition", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, StateTransitionsSkipped, report.Issues[0].State)
	assert.Equal(t, ActionAdded, report.Issues[0].Action)
	assert.Empty(t, report.Issues[0].Transitions)
	assert.NoError(t, report.Err())
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "PROJ-9")
}

func TestDryRunMakesNoTrackerCalls(t *testing.T) {
	tr := &mockTracker{}
	var (
		mu       sync.Mutex
		messages []string
	)
	opts := baseOptions()
	opts.DryRun = true
	opts.WorkflowUpdates = true
	opts.OnMessage = func(msg string) {
		mu.Lock()
		defer mu.Unlock()
		messages = append(messages, msg)
	}

	report := New(tr, workflow.Default(), opts).Publish(context.Background(), []TestOutcome{
		{Title: "a", Result: types.OutcomeSuccess, Issues: []string{"PROJ-1", "PROJ-2"}},
		{Title: "b", Result: types.OutcomeFailure, Issues: []string{"PROJ-1"}},
	})

	assert.Empty(t, tr.Calls)
	assert.Equal(t, Stats{Skipped: 2}, report.Stats)
	for _, issue := range report.Issues {
		assert.Equal(t, StateDryRun, issue.State)
	}
	assert.Len(t, messages, 2)
}

func TestMissingURLsDisableUpdates(t *testing.T) {
	for name, mutate := range map[string]func(*Options){
		"no tracker url": func(o *Options) { o.TrackerURL = "" },
		"no public url":  func(o *Options) { o.PublicURL = "  " },
	} {
		t.Run(name, func(t *testing.T) {
			tr := &mockTracker{}
			opts := baseOptions()
			mutate(&opts)

			l := New(tr, workflow.Default(), opts)
			assert.False(t, l.Enabled())
			report := l.TestFinished(context.Background(), TestOutcome{Title: "t", Result: types.OutcomeSuccess, Issues: []string{"PROJ-1"}})

			assert.True(t, report.Disabled)
			assert.Empty(t, report.Issues)
			assert.Empty(t, tr.Calls)
			assert.NoError(t, report.Err())
		})
	}
}

func TestNormalizeKeys(t *testing.T) {
	assert.Equal(t, []string{"PROJ-1", "PROJ-2", "#PROJ-3"},
		NormalizeKeys([]string{"#PROJ-1", " PROJ-1 ", "", "#", "PROJ-2", "##PROJ-3", "  #PROJ-2"}))
	assert.Empty(t, NormalizeKeys(nil))
}

func TestWorkflowTransitionsApplied(t *testing.T) {
	ctx := context.Background()
	tr := memory.New()
	tr.AddIssue("PROJ-1", "In Progress")
	tr.AddIssue("PROJ-2", "Resolved")

	opts := baseOptions()
	opts.WorkflowUpdates = true
	l := New(tr, workflow.Default(), opts)

	report := l.Publish(ctx, []TestOutcome{
		{Title: "login", Result: types.OutcomeSuccess, Issues: []string{"PROJ-1"}},
		{Title: "logout", Result: types.OutcomeFailure, Issues: []string{"PROJ-2"}},
	})

	require.Len(t, report.Issues, 2)
	assert.Equal(t, []string{"Stop Progress", "Resolve Issue"}, report.Issues[0].Transitions)
	assert.Equal(t, StateTransitionsApplied, report.Issues[0].State)
	assert.Equal(t, []string{"Reopen Issue"}, report.Issues[1].Transitions)
	assert.Equal(t, 3, report.Stats.Transitions)

	status, _ := tr.Status("PROJ-1")
	assert.Equal(t, "Resolved", status)
	status, _ = tr.Status("PROJ-2")
	assert.Equal(t, "Reopened", status)
}

func TestInactiveTableSkipsWorkflow(t *testing.T) {
	tr := memory.New()
	tr.AddIssue("PROJ-1", "Open")

	opts := baseOptions()
	opts.WorkflowUpdates = true
	report := New(tr, workflow.Default().WithActive(false), opts).TestFinished(context.Background(),
		TestOutcome{Title: "t", Result: types.OutcomeSuccess, Issues: []string{"PROJ-1"}})

	assert.Empty(t, tr.CallsFor(memory.OpGetStatus))
	assert.Equal(t, StateCommented, report.Issues[0].State)
}

func TestNoMatchingTransitionIsSkipped(t *testing.T) {
	tr := memory.New()
	tr.AddIssue("PROJ-1", "Open")

	opts := baseOptions()
	opts.WorkflowUpdates = true
	report := New(tr, workflow.Default(), opts).TestFinished(context.Background(),
		TestOutcome{Title: "t", Result: types.OutcomePending, Issues: []string{"PROJ-1"}})

	assert.Equal(t, StateTransitionsSkipped, report.Issues[0].State)
	assert.Empty(t, tr.CallsFor(memory.OpDoTransition))
}

func TestAppliedTransitionsSurviveLaterEvents(t *testing.T) {
	tr := memory.New()
	tr.AddIssue("PROJ-1", "Open")

	opts := baseOptions()
	opts.WorkflowUpdates = true
	report := New(tr, workflow.Default(), opts).Publish(context.Background(), []TestOutcome{
		{Title: "login", Result: types.OutcomeSuccess, Issues: []string{"PROJ-1"}},
		{Title: "audit", Result: types.OutcomePending, Issues: []string{"PROJ-1"}},
	})

	require.Len(t, report.Issues, 1)
	assert.Equal(t, []string{"Resolve Issue"}, report.Issues[0].Transitions)
	assert.Equal(t, StateTransitionsApplied, report.Issues[0].State)
	assert.Len(t, tr.CallsFor(memory.OpGetStatus), 2)
}

func TestMissingIssueContinuesWithOtherKeys(t *testing.T) {
	tr := memory.New()
	tr.AddIssue("PROJ-2", "Open")

	report := New(tr, workflow.Table{}, baseOptions()).TestFinished(context.Background(),
		TestOutcome{Title: "t", Result: types.OutcomeSuccess, Issues: []string{"PROJ-1", "PROJ-2"}})

	require.Len(t, report.Issues, 2)
	assert.Equal(t, StateMissing, report.Issues[0].State)
	assert.NoError(t, report.Issues[0].Err)
	assert.Equal(t, StateCommented, report.Issues[1].State)
	assert.Equal(t, Stats{Added: 1, Missing: 1}, report.Stats)
	assert.Len(t, tr.Comments("PROJ-2"), 1)
}

func TestTrackerErrorIsRecordedPerIssue(t *testing.T) {
	tr := &mockTracker{}
	tr.On("GetComments", mock.Anything, "PROJ-1").Return(nil, errors.New("connection reset"))
	tr.On("GetComments", mock.Anything, "PROJ-2").Return(nil, nil)
	tr.On("AddComment", mock.Anything, "PROJ-2", mock.Anything).Return(nil)

	report := New(tr, workflow.Table{}, baseOptions()).Publish(context.Background(), []TestOutcome{
		{Title: "first", Result: types.OutcomeSuccess, Issues: []string{"PROJ-1", "PROJ-2"}},
		{Title: "second", Result: types.OutcomeSuccess, Issues: []string{"PROJ-1"}},
	})

	tr.AssertExpectations(t)
	tr.AssertNumberOfCalls(t, "GetComments", 2)

	assert.True(t, report.Failed())
	assert.Equal(t, StateFailed, report.Issues[0].State)
	var ue *tracker.UpdateError
	require.True(t, errors.As(report.Issues[0].Err, &ue))
	assert.Equal(t, "PROJ-1", ue.Key)
	assert.Equal(t, "get comments PROJ-1: connection reset", report.Issues[0].Error)

	err := report.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, Stats{Added: 1, Errors: 1}, report.Stats)
}

func TestTransitionErrorFailsIssue(t *testing.T) {
	tr := memory.New()
	tr.AddIssue("PROJ-1", "In Progress")
	tr.FailOn(memory.OpDoTransition, errors.New("workflow locked"))

	opts := baseOptions()
	opts.WorkflowUpdates = true
	report := New(tr, workflow.Default(), opts).TestFinished(context.Background(),
		TestOutcome{Title: "t", Result: types.OutcomeSuccess, Issues: []string{"PROJ-1"}})

	assert.Equal(t, StateFailed, report.Issues[0].State)
	assert.Empty(t, report.Issues[0].Transitions)
	assert.Len(t, tr.CallsFor(memory.OpDoTransition), 1, "remaining transitions are not attempted")
	assert.Len(t, tr.Comments("PROJ-1"), 1, "the comment was still written")
}

func TestOutcomesForOneIssueAreMergedInOrder(t *testing.T) {
	tr := memory.New()
	tr.AddIssue("PROJ-1", "Open")

	report := New(tr, workflow.Table{}, baseOptions()).Publish(context.Background(), []TestOutcome{
		{Title: "a", Result: types.OutcomeSuccess, Issues: []string{"PROJ-1"}},
		{Title: "b", Result: types.OutcomeFailure, Issues: []string{"#PROJ-1"}},
		{Title: "a", Result: types.OutcomeError, Issues: []string{"PROJ-1"}},
	})

	require.Len(t, report.Issues, 1)
	assert.Equal(t, ActionAdded, report.Issues[0].Action)
	comments := tr.Comments("PROJ-1")
	require.Len(t, comments, 1)

	parsed := ledger.Parse(comments[0].Body)
	assert.Equal(t, []types.NamedResult{
		types.NewNamedResult("a", types.OutcomeError),
		types.NewNamedResult("b", types.OutcomeFailure),
	}, parsed.Results())
	assert.Len(t, tr.CallsFor(memory.OpAddComment), 1)
	assert.Len(t, tr.CallsFor(memory.OpUpdateComment), 2)
}

func TestReportURLFromStory(t *testing.T) {
	tr := memory.New(memory.WithAutoCreate(true))
	l := New(tr, workflow.Table{}, baseOptions())

	l.TestSuiteStarted("Sample Story")
	l.TestFinished(context.Background(), TestOutcome{Title: "t1", Result: types.OutcomeSuccess, Issues: []string{"PROJ-1"}})
	l.TestFinished(context.Background(), TestOutcome{Title: "t2", Story: "SampleTestSuite", Result: types.OutcomeSuccess, Issues: []string{"PROJ-2"}})

	url, _ := ledger.Parse(tr.Comments("PROJ-1")[0].Body).ReportURL()
	assert.Equal(t, "http://my.server/project/sample_story.html", url)
	url, _ = ledger.Parse(tr.Comments("PROJ-2")[0].Body).ReportURL()
	assert.Equal(t, "http://my.server/project/sample_test_suite.html", url)

	l.TestSuiteStarted("")
	l.TestFinished(context.Background(), TestOutcome{Title: "t3", Result: types.OutcomeSuccess, Issues: []string{"PROJ-3"}})
	url, _ = ledger.Parse(tr.Comments("PROJ-3")[0].Body).ReportURL()
	assert.Equal(t, "http://my.server/project", url)
}

// slowTracker tracks how many calls are in flight at once.
type slowTracker struct {
	*memory.Tracker
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (s *slowTracker) GetComments(ctx context.Context, key string) ([]tracker.Comment, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return s.Tracker.GetComments(ctx, key)
}

func TestConcurrencyLimit(t *testing.T) {
	for _, limit := range []int{1, 3} {
		tr := &slowTracker{Tracker: memory.New(memory.WithAutoCreate(true))}
		opts := baseOptions()
		opts.Concurrency = limit

		var outcomes []TestOutcome
		for i := 0; i < 12; i++ {
			outcomes = append(outcomes, TestOutcome{
				Title:  "t",
				Result: types.OutcomeSuccess,
				Issues: []string{"PROJ-" + string(rune('A'+i))},
			})
		}

		report := New(tr, workflow.Table{}, opts).Publish(context.Background(), outcomes)
		assert.Equal(t, 12, report.Stats.Added)
		assert.LessOrEqual(t, int(tr.maxSeen.Load()), limit)
		assert.Equal(t, "PROJ-A", report.Issues[0].Key, "reports keep first-seen key order")
		assert.Equal(t, "PROJ-L", report.Issues[11].Key)
	}
}

func TestDefaultConcurrency(t *testing.T) {
	l := New(memory.New(), workflow.Table{}, Options{})
	assert.Equal(t, DefaultConcurrency, l.opts.Concurrency)
}

func TestConcurrentTestFinishedCalls(t *testing.T) {
	tr := memory.New(memory.WithAutoCreate(true))
	l := New(tr, workflow.Table{}, baseOptions())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.TestFinished(context.Background(), TestOutcome{
				Title:  "t" + string(rune('0'+i)),
				Result: types.OutcomeSuccess,
				Issues: []string{"PROJ-" + string(rune('0'+i))},
			})
		}(i)
	}
	wg.Wait()
	assert.Len(t, tr.Keys(), 10)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := memory.New(memory.WithAutoCreate(true))
	report := New(tr, workflow.Table{}, baseOptions()).TestFinished(ctx,
		TestOutcome{Title: "t", Result: types.OutcomeSuccess, Issues: []string{"PROJ-1"}})

	require.Len(t, report.Issues, 1)
	if report.Issues[0].State == StateFailed {
		assert.ErrorIs(t, report.Issues[0].Err, context.Canceled)
	}
}
