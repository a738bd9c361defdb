package tracker

import (
	"github.com/cockroachdb/errors"
)

// ErrNoSuchIssue reports that the tracker has no issue with the given key.
// Check for it with errors.Is.
var ErrNoSuchIssue = errors.New("no such issue")

// UpdateError wraps every tracker failure other than a plain missing issue.
type UpdateError struct {
	Op  string
	Key string
	Err error
}

func (e *UpdateError) Error() string {
	if e.Key == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *UpdateError) Unwrap() error {
	return e.Err
}

// NewUpdateError wraps err for operation op on issue key. When err already
// carries ErrNoSuchIssue the result still matches it with errors.Is.
func NewUpdateError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &UpdateError{Op: op, Key: key, Err: err}
}

// IsNoSuchIssue reports whether err means the issue does not exist.
func IsNoSuchIssue(err error) bool {
	return errors.Is(err, ErrNoSuchIssue)
}

// ErrNotInitialized is returned when a tracker is used before Init is called.
type ErrNotInitialized struct {
	Tracker string
}

func (e *ErrNotInitialized) Error() string {
	return e.Tracker + " tracker not initialized; call Init() first"
}
