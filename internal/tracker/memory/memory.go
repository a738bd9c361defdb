// Package memory provides an in-memory issue tracker. It backs tests and
// offline rehearsals of a publish run.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/steveyegge/ticketledger/internal/tracker"
)

func init() {
	tracker.Register("memory", func() tracker.IssueTracker {
		return New(WithAutoCreate(true))
	})
}

// Operation names recorded in Call.Op.
const (
	OpGetComments   = "GetComments"
	OpAddComment    = "AddComment"
	OpUpdateComment = "UpdateComment"
	OpGetStatus     = "GetStatus"
	OpDoTransition  = "DoTransition"
)

// DefaultStatus is the status of issues created on first use.
const DefaultStatus = "Open"

// DefaultTransitions maps the transitions of the default workflow to the
// status they lead to.
var DefaultTransitions = map[string]string{
	"Start Progress": "In Progress",
	"Stop Progress":  "Open",
	"Resolve Issue":  "Resolved",
	"Close Issue":    "Closed",
	"Reopen Issue":   "Reopened",
}

// Call is one recorded tracker call.
type Call struct {
	Op  string
	Key string
	Arg string
}

type issue struct {
	status   string
	comments []tracker.Comment
}

// Tracker is an in-memory tracker.IssueTracker. It is safe for concurrent
// use.
type Tracker struct {
	mu          sync.Mutex
	issues      map[string]*issue
	transitions map[string]string // lowercased name -> target status
	failures    map[string]error  // op -> injected error
	calls       []Call
	nextID      int
	author      string
	autoCreate  bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithAutoCreate makes unknown keys spring into existence in DefaultStatus
// instead of reporting tracker.ErrNoSuchIssue.
func WithAutoCreate(enabled bool) Option {
	return func(t *Tracker) { t.autoCreate = enabled }
}

// WithAuthor sets the author recorded on added comments.
func WithAuthor(author string) Option {
	return func(t *Tracker) { t.author = author }
}

// New creates an empty tracker using DefaultTransitions.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		issues:      make(map[string]*issue),
		transitions: make(map[string]string),
		failures:    make(map[string]error),
		author:      "ticketledger",
	}
	for name, status := range DefaultTransitions {
		t.transitions[strings.ToLower(name)] = status
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) Name() string { return "memory" }

// Init reads "auto_create" and "author" from the "memory" config prefix.
func (t *Tracker) Init(_ context.Context, cfg *tracker.Config) error {
	if v := cfg.GetOr("auto_create", ""); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(err, "memory.auto_create")
		}
		t.mu.Lock()
		t.autoCreate = enabled
		t.mu.Unlock()
	}
	if v := cfg.GetOr("author", ""); v != "" {
		t.mu.Lock()
		t.author = v
		t.mu.Unlock()
	}
	return nil
}

// AddIssue creates or replaces an issue.
func (t *Tracker) AddIssue(key, status string, comments ...tracker.Comment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.issues[key] = &issue{status: status, comments: append([]tracker.Comment(nil), comments...)}
	for _, c := range comments {
		if n, err := strconv.Atoi(c.ID); err == nil && n > t.nextID {
			t.nextID = n
		}
	}
}

// SetTransition defines a transition and the status it leads to.
func (t *Tracker) SetTransition(name, toStatus string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transitions[strings.ToLower(strings.TrimSpace(name))] = toStatus
}

// FailOn makes every subsequent call of op return err. A nil err clears it.
func (t *Tracker) FailOn(op string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		delete(t.failures, op)
		return
	}
	t.failures[op] = err
}

// Comments returns a copy of an issue's comments.
func (t *Tracker) Comments(key string) []tracker.Comment {
	t.mu.Lock()
	defer t.mu.Unlock()
	if is, ok := t.issues[key]; ok {
		return append([]tracker.Comment(nil), is.comments...)
	}
	return nil
}

// Status returns an issue's current status.
func (t *Tracker) Status(key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if is, ok := t.issues[key]; ok {
		return is.status, true
	}
	return "", false
}

// Keys returns the known issue keys in order.
func (t *Tracker) Keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.issues))
	for k := range t.issues {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Calls returns every recorded call in order.
func (t *Tracker) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// CallsFor returns the recorded calls of one operation.
func (t *Tracker) CallsFor(op string) []Call {
	var out []Call
	for _, c := range t.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (t *Tracker) GetComments(_ context.Context, key string) ([]tracker.Comment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	is, err := t.begin(OpGetComments, key, "")
	if err != nil {
		return nil, err
	}
	return append([]tracker.Comment{}, is.comments...), nil
}

func (t *Tracker) AddComment(_ context.Context, key, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	is, err := t.begin(OpAddComment, key, body)
	if err != nil {
		return err
	}
	t.nextID++
	is.comments = append(is.comments, tracker.Comment{ID: strconv.Itoa(t.nextID), Body: body, Author: t.author})
	return nil
}

func (t *Tracker) UpdateComment(_ context.Context, key string, c tracker.Comment) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	is, err := t.begin(OpUpdateComment, key, c.Body)
	if err != nil {
		return err
	}
	for i := range is.comments {
		if is.comments[i].ID == c.ID {
			is.comments[i].Body = c.Body
			return nil
		}
	}
	return tracker.NewUpdateError("update comment", key, errors.Newf("no comment with ID %q", c.ID))
}

func (t *Tracker) GetStatus(_ context.Context, key string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	is, err := t.begin(OpGetStatus, key, "")
	if err != nil {
		return "", err
	}
	return is.status, nil
}

func (t *Tracker) DoTransition(_ context.Context, key, transition string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	is, err := t.begin(OpDoTransition, key, transition)
	if err != nil {
		return err
	}
	status, ok := t.transitions[strings.ToLower(strings.TrimSpace(transition))]
	if !ok {
		return tracker.NewUpdateError("transition", key, errors.Newf("transition %q not available", transition))
	}
	is.status = status
	return nil
}

// begin records the call and returns the issue, applying injected failures
// and auto-creation. The caller holds t.mu.
func (t *Tracker) begin(op, key, arg string) (*issue, error) {
	t.calls = append(t.calls, Call{Op: op, Key: key, Arg: arg})

	if err, ok := t.failures[op]; ok {
		return nil, tracker.NewUpdateError(op, key, err)
	}

	is, ok := t.issues[key]
	if !ok {
		if !t.autoCreate {
			return nil, tracker.NewUpdateError(op, key, tracker.ErrNoSuchIssue)
		}
		is = &issue{status: DefaultStatus}
		t.issues[key] = is
	}
	return is, nil
}
