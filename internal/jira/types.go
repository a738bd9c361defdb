// Package jira provides a Jira REST v2 client and the "jira" issue tracker
// built on it.
package jira

// Comment is a Jira issue comment as returned by the REST v2 API. Bodies are
// plain text or wiki markup; v2 does not use the document format of v3.
type Comment struct {
	ID      string `json:"id"`
	Body    string `json:"body"`
	Author  *User  `json:"author,omitempty"`
	Created string `json:"created,omitempty"`
	Updated string `json:"updated,omitempty"`
}

// User is a Jira user reference. Server/DC populates Name and Key, Cloud
// populates AccountID.
type User struct {
	Name        string `json:"name,omitempty"`
	Key         string `json:"key,omitempty"`
	AccountID   string `json:"accountId,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// ID returns the most specific identifier Jira provided for the user.
func (u *User) ID() string {
	if u == nil {
		return ""
	}
	switch {
	case u.AccountID != "":
		return u.AccountID
	case u.Name != "":
		return u.Name
	case u.Key != "":
		return u.Key
	default:
		return u.DisplayName
	}
}

// CommentsPage is one page of GET /issue/{key}/comment.
type CommentsPage struct {
	StartAt    int       `json:"startAt"`
	MaxResults int       `json:"maxResults"`
	Total      int       `json:"total"`
	Comments   []Comment `json:"comments"`
}

// StatusField represents a Jira issue status.
type StatusField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Transition is a workflow transition available on an issue.
type Transition struct {
	ID   string       `json:"id"`
	Name string       `json:"name"`
	To   *StatusField `json:"to,omitempty"`
}

// TransitionsResponse is the body of GET /issue/{key}/transitions.
type TransitionsResponse struct {
	Transitions []Transition `json:"transitions"`
}

// ErrorResponse is the error body Jira returns on 4xx/5xx responses.
type ErrorResponse struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}

type commentRequest struct {
	Body string `json:"body"`
}

type transitionRequest struct {
	Transition struct {
		ID string `json:"id"`
	} `json:"transition"`
}

type issueStatusResponse struct {
	Key    string `json:"key"`
	Fields struct {
		Status *StatusField `json:"status"`
	} `json:"fields"`
}
