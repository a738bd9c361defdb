package results

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/ticketledger/internal/listener"
)

// IssueMap assigns issue keys to tests by glob pattern.
//
//	map:
//	  "TestLogin/**": ["#AUTH-12"]
//	  "github.com/acme/shop/cart/*": ["SHOP-3", "SHOP-4"]
//
// A test is identified as "<package>/<test>" and also by its bare test name,
// so patterns may or may not include the package path. "**" spans path
// separators, so it also crosses subtest boundaries.
type IssueMap struct {
	rules []mapRule
}

type mapRule struct {
	pattern string
	issues  []string
}

type fileIssueMap struct {
	Map map[string][]string `yaml:"map"`
}

// LoadIssueMap reads an issue map file.
func LoadIssueMap(path string) (*IssueMap, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	m, err := ParseIssueMap(data)
	if err != nil {
		return nil, errors.Wrapf(err, "issue map %s", path)
	}
	return m, nil
}

// ParseIssueMap decodes and validates an issue map.
func ParseIssueMap(data []byte) (*IssueMap, error) {
	var f fileIssueMap
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "decoding issue map")
	}

	patterns := make([]string, 0, len(f.Map))
	for p := range f.Map {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	m := &IssueMap{}
	for _, p := range patterns {
		pattern := strings.TrimSpace(p)
		if pattern == "" || !doublestar.ValidatePattern(pattern) {
			return nil, errors.Newf("invalid pattern %q", p)
		}
		m.rules = append(m.rules, mapRule{pattern: pattern, issues: listener.NormalizeKeys(f.Map[p])})
	}
	return m, nil
}

// NewIssueMap builds a map from pattern/keys pairs. Invalid patterns never
// match.
func NewIssueMap(rules map[string][]string) *IssueMap {
	m := &IssueMap{}
	for _, p := range lo.Keys(rules) {
		m.rules = append(m.rules, mapRule{pattern: p, issues: listener.NormalizeKeys(rules[p])})
	}
	sort.Slice(m.rules, func(i, j int) bool { return m.rules[i].pattern < m.rules[j].pattern })
	return m
}

// Len returns the number of patterns.
func (m *IssueMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rules)
}

// Issues returns the keys of every pattern matching the test, in pattern
// order and without duplicates. A nil map matches nothing.
func (m *IssueMap) Issues(pkg, test string) []string {
	if m == nil {
		return nil
	}
	ids := []string{test}
	if pkg != "" {
		ids = append(ids, strings.TrimSuffix(pkg, "/")+"/"+test)
	}
	if test == "" {
		ids = []string{pkg}
	}

	var keys []string
	for _, r := range m.rules {
		if lo.SomeBy(ids, func(id string) bool { return matches(r.pattern, id) }) {
			keys = append(keys, r.issues...)
		}
	}
	return lo.Uniq(keys)
}

func matches(pattern, id string) bool {
	ok, err := doublestar.Match(pattern, id)
	return err == nil && ok
}
