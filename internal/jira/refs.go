package jira

import (
	"regexp"
	"strings"
)

var issueKeyPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*-[0-9]+$`)

// ExtractJiraKey extracts the Jira issue key from a browse URL.
// For example, "https://company.atlassian.net/browse/PROJ-123" returns "PROJ-123".
func ExtractJiraKey(externalRef string) string {
	idx := strings.LastIndex(externalRef, "/browse/")
	if idx == -1 {
		return ""
	}
	key := externalRef[idx+len("/browse/"):]
	if end := strings.IndexAny(key, "/?#"); end >= 0 {
		key = key[:end]
	}
	return key
}

// IssueKey reduces an issue reference to a bare key. It accepts "PROJ-123"
// and browse URLs.
func IssueKey(ref string) string {
	ref = strings.TrimSpace(ref)
	if key := ExtractJiraKey(ref); key != "" {
		return key
	}
	return ref
}

// IsValidKey reports whether key looks like a Jira issue key.
func IsValidKey(key string) bool {
	return issueKeyPattern.MatchString(key)
}
