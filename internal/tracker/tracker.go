// Package tracker defines the issue tracker contract used to publish test
// result ledgers: reading and writing issue comments, reading an issue's
// status and applying workflow transitions.
//
// Concrete trackers (jira, memory) live in sub-packages and register
// themselves with the package registry at init time.
package tracker

import (
	"context"
)

// Comment is a single issue comment.
type Comment struct {
	ID     string `json:"id"`
	Body   string `json:"body"`
	Author string `json:"author,omitempty"`
}

// IssueTracker is the interface every tracker integration implements.
// Implementations must be safe for concurrent use across different issue
// keys.
type IssueTracker interface {
	// Name returns the lowercase identifier for this tracker (e.g., "jira").
	Name() string

	// GetComments returns the comments on an issue in creation order.
	GetComments(ctx context.Context, key string) ([]Comment, error)

	// AddComment posts a new comment on an issue.
	AddComment(ctx context.Context, key, body string) error

	// UpdateComment replaces the body of an existing comment, keeping its
	// ID and author.
	UpdateComment(ctx context.Context, key string, c Comment) error

	// GetStatus returns the display name of the issue's current status.
	GetStatus(ctx context.Context, key string) (string, error)

	// DoTransition applies the named workflow transition to an issue.
	DoTransition(ctx context.Context, key, transition string) error
}

// Initializer is implemented by trackers that need configuration before
// use. Trackers created through the registry are initialized by the caller.
type Initializer interface {
	Init(ctx context.Context, cfg *Config) error
}
