package testutil

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/steveyegge/ticketledger/internal/jira"
)

const jiraAPIPrefix = "/rest/api/2/issue/"

// JiraIssue is the state the Jira mock keeps per issue.
type JiraIssue struct {
	Key         string
	Status      string
	Comments    []jira.Comment
	Transitions []JiraTransition
}

// JiraTransition is an available transition and the status it leads to.
type JiraTransition struct {
	ID     string
	Name   string
	Status string
}

// JiraMockServer simulates the subset of the Jira REST v2 API used for
// comments, statuses and transitions.
type JiraMockServer struct {
	*MockTrackerServer
	issues        map[string]*JiraIssue
	nextCommentID int
	pageSize      int
}

// NewJiraMockServer creates a new Jira mock server.
func NewJiraMockServer() *JiraMockServer {
	m := &JiraMockServer{
		MockTrackerServer: NewMockTrackerServer(),
		issues:            make(map[string]*JiraIssue),
		nextCommentID:     10000,
	}
	m.SetDefaultHandler(m.handleJiraRequest)
	return m
}

// AddIssue registers an issue with the mock.
func (m *JiraMockServer) AddIssue(issue JiraIssue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := issue
	copied.Comments = append([]jira.Comment(nil), issue.Comments...)
	copied.Transitions = append([]JiraTransition(nil), issue.Transitions...)
	m.issues[issue.Key] = &copied
}

// Issue returns a snapshot of an issue's state.
func (m *JiraMockServer) Issue(key string) (JiraIssue, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	issue, ok := m.issues[key]
	if !ok {
		return JiraIssue{}, false
	}
	snapshot := *issue
	snapshot.Comments = append([]jira.Comment(nil), issue.Comments...)
	snapshot.Transitions = append([]JiraTransition(nil), issue.Transitions...)
	return snapshot, true
}

// SetPageSize caps the number of comments returned per page. Zero honours the
// client's maxResults.
func (m *JiraMockServer) SetPageSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageSize = n
}

// handleJiraRequest routes /rest/api/2/issue/{key}[/comment[/{id}]|/transitions].
func (m *JiraMockServer) handleJiraRequest(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, jiraAPIPrefix) {
		writeJSONStatus(w, http.StatusNotFound, jira.ErrorResponse{ErrorMessages: []string{"Not found"}})
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, jiraAPIPrefix), "/")

	m.mu.Lock()
	defer m.mu.Unlock()

	issue, ok := m.issues[parts[0]]
	if !ok {
		writeJSONStatus(w, http.StatusNotFound, jira.ErrorResponse{
			ErrorMessages: []string{"Issue does not exist or you do not have permission to see it."},
		})
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		m.handleGetIssue(w, issue)
	case len(parts) == 2 && parts[1] == "comment" && r.Method == http.MethodGet:
		m.handleGetComments(w, r, issue)
	case len(parts) == 2 && parts[1] == "comment" && r.Method == http.MethodPost:
		m.handleAddComment(w, r, issue)
	case len(parts) == 3 && parts[1] == "comment" && r.Method == http.MethodPut:
		m.handleUpdateComment(w, r, issue, parts[2])
	case len(parts) == 2 && parts[1] == "transitions" && r.Method == http.MethodGet:
		m.handleGetTransitions(w, issue)
	case len(parts) == 2 && parts[1] == "transitions" && r.Method == http.MethodPost:
		m.handleDoTransition(w, r, issue)
	default:
		writeJSONStatus(w, http.StatusMethodNotAllowed, nil)
	}
}

func (m *JiraMockServer) handleGetIssue(w http.ResponseWriter, issue *JiraIssue) {
	writeJSONStatus(w, http.StatusOK, map[string]interface{}{
		"key": issue.Key,
		"fields": map[string]interface{}{
			"status": jira.StatusField{ID: "1", Name: issue.Status},
		},
	})
}

func (m *JiraMockServer) handleGetComments(w http.ResponseWriter, r *http.Request, issue *JiraIssue) {
	startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
	maxResults, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
	if maxResults <= 0 {
		maxResults = 50
	}
	if m.pageSize > 0 && m.pageSize < maxResults {
		maxResults = m.pageSize
	}

	total := len(issue.Comments)
	end := startAt + maxResults
	if startAt > total {
		startAt = total
	}
	if end > total {
		end = total
	}

	writeJSONStatus(w, http.StatusOK, jira.CommentsPage{
		StartAt:    startAt,
		MaxResults: maxResults,
		Total:      total,
		Comments:   append([]jira.Comment{}, issue.Comments[startAt:end]...),
	})
}

func (m *JiraMockServer) handleAddComment(w http.ResponseWriter, r *http.Request, issue *JiraIssue) {
	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, nil)
		return
	}

	m.nextCommentID++
	c := jira.Comment{
		ID:     strconv.Itoa(m.nextCommentID),
		Body:   req.Body,
		Author: &jira.User{Name: "ci-bot", DisplayName: "CI Bot"},
	}
	issue.Comments = append(issue.Comments, c)
	writeJSONStatus(w, http.StatusCreated, c)
}

func (m *JiraMockServer) handleUpdateComment(w http.ResponseWriter, r *http.Request, issue *JiraIssue, id string) {
	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, nil)
		return
	}

	for i := range issue.Comments {
		if issue.Comments[i].ID == id {
			issue.Comments[i].Body = req.Body
			writeJSONStatus(w, http.StatusOK, issue.Comments[i])
			return
		}
	}
	writeJSONStatus(w, http.StatusNotFound, jira.ErrorResponse{ErrorMessages: []string{"Comment not found"}})
}

func (m *JiraMockServer) handleGetTransitions(w http.ResponseWriter, issue *JiraIssue) {
	resp := jira.TransitionsResponse{Transitions: []jira.Transition{}}
	for _, t := range issue.Transitions {
		resp.Transitions = append(resp.Transitions, jira.Transition{
			ID:   t.ID,
			Name: t.Name,
			To:   &jira.StatusField{Name: t.Status},
		})
	}
	writeJSONStatus(w, http.StatusOK, resp)
}

func (m *JiraMockServer) handleDoTransition(w http.ResponseWriter, r *http.Request, issue *JiraIssue) {
	var req struct {
		Transition struct {
			ID string `json:"id"`
		} `json:"transition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, nil)
		return
	}

	for _, t := range issue.Transitions {
		if t.ID == req.Transition.ID {
			issue.Status = t.Status
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSONStatus(w, http.StatusBadRequest, jira.ErrorResponse{
		ErrorMessages: []string{"It seems that you have tried to perform a workflow operation that is not valid from the current state."},
	})
}
