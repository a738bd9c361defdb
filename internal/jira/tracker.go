package jira

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/steveyegge/ticketledger/internal/tracker"
)

func init() {
	tracker.Register("jira", func() tracker.IssueTracker {
		return &Tracker{}
	})
}

// Tracker implements tracker.IssueTracker for Jira.
type Tracker struct {
	client *Client
}

// NewTracker wraps an already configured client.
func NewTracker(client *Client) *Tracker {
	return &Tracker{client: client}
}

func (t *Tracker) Name() string { return "jira" }

// Init configures the client from the "jira" config prefix: url and token
// are required, username, timeout and retry.max_elapsed are optional.
func (t *Tracker) Init(ctx context.Context, cfg *tracker.Config) error {
	baseURL, err := cfg.GetRequired(tracker.CommonConfig.URL)
	if err != nil {
		return err
	}
	apiToken, err := cfg.GetRequired(tracker.CommonConfig.Token)
	if err != nil {
		return err
	}
	username, err := cfg.Get(tracker.CommonConfig.Username)
	if err != nil {
		return err
	}

	client := NewClient(baseURL, username, apiToken)
	if v := cfg.GetOr(tracker.CommonConfig.Timeout, ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "jira.%s", tracker.CommonConfig.Timeout)
		}
		client.HTTPClient.Timeout = d
	}
	if v := cfg.GetOr(tracker.CommonConfig.RetryElapsed, ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "jira.%s", tracker.CommonConfig.RetryElapsed)
		}
		client.MaxElapsed = d
	}

	t.client = client
	return nil
}

// Validate checks that the tracker is properly configured.
func (t *Tracker) Validate() error {
	if t.client == nil {
		return &tracker.ErrNotInitialized{Tracker: "jira"}
	}
	return nil
}

func (t *Tracker) GetComments(ctx context.Context, key string) ([]tracker.Comment, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	key, err := issueKey("get comments", key)
	if err != nil {
		return nil, err
	}
	comments, err := t.client.GetComments(ctx, key)
	if err != nil {
		return nil, wrapError("get comments", key, err)
	}

	out := make([]tracker.Comment, 0, len(comments))
	for _, c := range comments {
		out = append(out, tracker.Comment{ID: c.ID, Body: c.Body, Author: c.Author.ID()})
	}
	return out, nil
}

func (t *Tracker) AddComment(ctx context.Context, key, body string) error {
	if err := t.Validate(); err != nil {
		return err
	}
	key, err := issueKey("add comment", key)
	if err != nil {
		return err
	}
	if _, err := t.client.AddComment(ctx, key, body); err != nil {
		return wrapError("add comment", key, err)
	}
	return nil
}

func (t *Tracker) UpdateComment(ctx context.Context, key string, c tracker.Comment) error {
	if err := t.Validate(); err != nil {
		return err
	}
	key, err := issueKey("update comment", key)
	if err != nil {
		return err
	}
	if c.ID == "" {
		return tracker.NewUpdateError("update comment", key, errors.New("comment has no ID"))
	}
	if _, err := t.client.UpdateComment(ctx, key, c.ID, c.Body); err != nil {
		return wrapError("update comment", key, err)
	}
	return nil
}

func (t *Tracker) GetStatus(ctx context.Context, key string) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	key, err := issueKey("get status", key)
	if err != nil {
		return "", err
	}
	status, err := t.client.GetStatus(ctx, key)
	if err != nil {
		return "", wrapError("get status", key, err)
	}
	return status, nil
}

// DoTransition looks the transition up by name, ignoring case, among those
// currently available on the issue and applies it.
func (t *Tracker) DoTransition(ctx context.Context, key, transition string) error {
	if err := t.Validate(); err != nil {
		return err
	}
	key, err := issueKey("transition", key)
	if err != nil {
		return err
	}
	available, err := t.client.GetTransitions(ctx, key)
	if err != nil {
		return wrapError("transition", key, err)
	}

	want := strings.TrimSpace(transition)
	names := make([]string, 0, len(available))
	for _, tr := range available {
		if strings.EqualFold(strings.TrimSpace(tr.Name), want) {
			if err := t.client.DoTransition(ctx, key, tr.ID); err != nil {
				return wrapError("transition", key, err)
			}
			return nil
		}
		names = append(names, tr.Name)
	}

	return tracker.NewUpdateError("transition", key,
		errors.Newf("transition %q not available (available: %s)", transition, strings.Join(names, ", ")))
}

// wrapError converts a client error into the tracker error taxonomy. A 404
// becomes ErrNoSuchIssue.
func wrapError(op, key string, err error) error {
	if errors.Is(err, ErrNotFound) {
		err = errors.Mark(err, tracker.ErrNoSuchIssue)
	}
	return tracker.NewUpdateError(op, key, err)
}

// issueKey reduces ref to a bare key. A reference that cannot be a Jira key
// cannot name an existing issue.
func issueKey(op, ref string) (string, error) {
	key := IssueKey(ref)
	if !IsValidKey(key) {
		return "", tracker.NewUpdateError(op, ref, errors.Mark(errors.Newf("invalid issue key %q", key), tracker.ErrNoSuchIssue))
	}
	return key, nil
}
