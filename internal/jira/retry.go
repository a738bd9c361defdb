package jira

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryAfterBackOff is an exponential backoff that defers to the server's
// Retry-After hint for the next interval when one was given.
type retryAfterBackOff struct {
	*backoff.ExponentialBackOff
	retryAfter *time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.ExponentialBackOff.NextBackOff()
	if next == backoff.Stop || b.retryAfter == nil {
		return next
	}
	wait := *b.retryAfter
	b.retryAfter = nil
	return wait
}

// newBackOff returns a fresh backoff for one request. BackOff implementations
// are stateful.
func (c *Client) newBackOff() *retryAfterBackOff {
	bo := backoff.NewExponentialBackOff()
	if c.InitialBackoff > 0 {
		bo.InitialInterval = c.InitialBackoff
	}
	bo.MaxElapsedTime = c.MaxElapsed
	if c.MaxElapsed <= 0 {
		// A zero MaxElapsedTime would retry forever.
		bo.MaxElapsedTime = time.Nanosecond
	}
	bo.Reset()
	return &retryAfterBackOff{ExponentialBackOff: bo}
}

// parseRetryAfter reads a Retry-After header given either as delay seconds or
// as an HTTP date.
func parseRetryAfter(header string) *time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		d := time.Duration(seconds) * time.Second
		return &d
	}
	if at, err := http.ParseTime(header); err == nil {
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}
