package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
)

// Sentinel errors for HTTP statuses callers react to.
var (
	ErrNotFound     = errors.New("jira: not found")
	ErrUnauthorized = errors.New("jira: authentication failed")
)

const (
	apiPrefix             = "/rest/api/2"
	commentPageSize       = 100
	defaultTimeout        = 30 * time.Second
	defaultMaxElapsed     = time.Minute
	defaultInitialBackoff = 500 * time.Millisecond
)

// APIError is a non-2xx response from Jira.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Messages   []string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("jira API returned %d on %s %s", e.StatusCode, e.Method, e.Path)
	if len(e.Messages) > 0 {
		msg += ": " + strings.Join(e.Messages, "; ")
	}
	return msg
}

// Client provides HTTP access to a Jira instance through the REST v2 API.
type Client struct {
	URL        string
	Username   string
	APIToken   string
	HTTPClient *http.Client

	// MaxElapsed bounds the total time spent retrying 429 and 5xx responses.
	// Zero disables retries.
	MaxElapsed time.Duration
	// InitialBackoff is the first retry interval when the server sends no
	// Retry-After header.
	InitialBackoff time.Duration
}

// NewClient creates a new Jira client. With a username, requests use Basic
// auth (Cloud API tokens, Server passwords); without one, the token is sent
// as a Bearer personal access token.
func NewClient(url, username, apiToken string) *Client {
	return &Client{
		URL:      strings.TrimSuffix(url, "/"),
		Username: username,
		APIToken: apiToken,
		HTTPClient: &http.Client{
			Timeout: defaultTimeout,
		},
		MaxElapsed:     defaultMaxElapsed,
		InitialBackoff: defaultInitialBackoff,
	}
}

// GetComments returns every comment on an issue in creation order, following
// pagination.
func (c *Client) GetComments(ctx context.Context, key string) ([]Comment, error) {
	var all []Comment
	startAt := 0

	for {
		params := url.Values{
			"startAt":    {strconv.Itoa(startAt)},
			"maxResults": {strconv.Itoa(commentPageSize)},
			"orderBy":    {"created"},
		}
		path := fmt.Sprintf("%s/issue/%s/comment?%s", apiPrefix, url.PathEscape(key), params.Encode())

		var page CommentsPage
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, errors.Wrapf(err, "get comments %s", key)
		}

		all = append(all, page.Comments...)

		if len(page.Comments) == 0 || startAt+len(page.Comments) >= page.Total {
			break
		}
		startAt += len(page.Comments)
	}

	return all, nil
}

// AddComment posts a new comment on an issue.
func (c *Client) AddComment(ctx context.Context, key, body string) (*Comment, error) {
	path := fmt.Sprintf("%s/issue/%s/comment", apiPrefix, url.PathEscape(key))

	var created Comment
	if err := c.doJSON(ctx, http.MethodPost, path, commentRequest{Body: body}, &created); err != nil {
		return nil, errors.Wrapf(err, "add comment %s", key)
	}
	return &created, nil
}

// UpdateComment replaces the body of comment id on an issue. Jira keeps the
// original author.
func (c *Client) UpdateComment(ctx context.Context, key, id, body string) (*Comment, error) {
	path := fmt.Sprintf("%s/issue/%s/comment/%s", apiPrefix, url.PathEscape(key), url.PathEscape(id))

	var updated Comment
	if err := c.doJSON(ctx, http.MethodPut, path, commentRequest{Body: body}, &updated); err != nil {
		return nil, errors.Wrapf(err, "update comment %s/%s", key, id)
	}
	return &updated, nil
}

// GetStatus returns the name of the issue's current status.
func (c *Client) GetStatus(ctx context.Context, key string) (string, error) {
	path := fmt.Sprintf("%s/issue/%s?fields=status", apiPrefix, url.PathEscape(key))

	var issue issueStatusResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &issue); err != nil {
		return "", errors.Wrapf(err, "get status %s", key)
	}
	if issue.Fields.Status == nil {
		return "", errors.Newf("get status %s: response has no status field", key)
	}
	return issue.Fields.Status.Name, nil
}

// GetTransitions lists the transitions currently available on an issue.
func (c *Client) GetTransitions(ctx context.Context, key string) ([]Transition, error) {
	path := fmt.Sprintf("%s/issue/%s/transitions", apiPrefix, url.PathEscape(key))

	var resp TransitionsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, errors.Wrapf(err, "get transitions %s", key)
	}
	return resp.Transitions, nil
}

// DoTransition applies the transition with the given ID.
func (c *Client) DoTransition(ctx context.Context, key, transitionID string) error {
	path := fmt.Sprintf("%s/issue/%s/transitions", apiPrefix, url.PathEscape(key))

	var req transitionRequest
	req.Transition.ID = transitionID
	if err := c.doJSON(ctx, http.MethodPost, path, req, nil); err != nil {
		return errors.Wrapf(err, "transition %s to %s", key, transitionID)
	}
	return nil
}

// doJSON marshals in, sends the request with retries and decodes the
// response into out when out is non-nil and the response has a body.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		payload = data
	}

	body, err := c.doRequest(ctx, method, c.URL+path, payload)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "parse response from %s %s", method, path)
	}
	return nil
}

// doRequest executes an authenticated HTTP request and returns the response
// body. Failed requests are retried with exponential backoff, honouring
// Retry-After, as far as isRetryable allows for the method.
func (c *Client) doRequest(ctx context.Context, method, apiURL string, body []byte) ([]byte, error) {
	if c.URL == "" {
		return nil, errors.New("jira URL not configured")
	}
	if c.APIToken == "" {
		return nil, errors.New("jira API token not configured")
	}

	bo := c.newBackOff()
	var respBody []byte
	err := backoff.Retry(func() error {
		b, retryAfter, err := c.send(ctx, method, apiURL, body)
		if err == nil {
			respBody = b
			return nil
		}
		if !isRetryable(method, err, retryAfter) {
			return backoff.Permanent(err)
		}
		bo.retryAfter = retryAfter
		return err
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, err
	}
	return respBody, nil
}

func (c *Client) send(ctx context.Context, method, apiURL string, body []byte) ([]byte, *time.Duration, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create request")
	}

	c.setAuth(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ticketledger/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read response")
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil, nil
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil, nil
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Method:     method,
		Path:       req.URL.Path,
		Messages:   errorMessages(respBody),
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, nil, errors.Mark(apiErr, ErrNotFound)
	case http.StatusUnauthorized:
		return nil, nil, errors.Mark(apiErr, ErrUnauthorized)
	}
	return nil, parseRetryAfter(resp.Header.Get("Retry-After")), apiErr
}

// setAuth sets the appropriate authentication header on the request.
func (c *Client) setAuth(req *http.Request) {
	if c.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.APIToken))
		req.Header.Set("Authorization", "Basic "+auth)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.APIToken)
	}
}

func errorMessages(body []byte) []string {
	var jiraErr ErrorResponse
	if json.Unmarshal(body, &jiraErr) != nil {
		if s := strings.TrimSpace(string(body)); s != "" {
			return []string{s}
		}
		return nil
	}
	msgs := append([]string(nil), jiraErr.ErrorMessages...)
	for field, msg := range jiraErr.Errors {
		msgs = append(msgs, field+": "+msg)
	}
	return msgs
}

// isRetryable reports whether a failed request may be sent again. GET and PUT
// are idempotent and retry on 429 and any 5xx. A POST may already have been
// committed behind a failing gateway, so it only retries when the server
// rejected it outright: 429, or 503 with a Retry-After hint.
func isRetryable(method string, err error, retryAfter *time.Duration) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return true
	case method == http.MethodPost:
		return apiErr.StatusCode == http.StatusServiceUnavailable && retryAfter != nil
	default:
		return apiErr.StatusCode >= 500
	}
}
