// Package results turns test results into listener.TestOutcome values. It
// reads two inputs: a run file that names issues explicitly, and a
// `go test -json` stream whose tests are mapped to issues with glob patterns.
package results

import (
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/ticketledger/internal/listener"
	"github.com/steveyegge/ticketledger/internal/types"
)

// RunFile is a YAML or JSON document listing finished tests.
//
//	story: Sample Story
//	run_label: "42"
//	outcomes:
//	  - title: logs in
//	    result: SUCCESS
//	    issues: ["#AUTH-12"]
type RunFile struct {
	Story    string                 `yaml:"story" json:"story"`
	RunLabel string                 `yaml:"run_label" json:"run_label"`
	Outcomes []listener.TestOutcome `yaml:"outcomes" json:"outcomes"`
}

// LoadRunFile reads a run file from path, or from stdin when path is "-".
func LoadRunFile(path string) (*RunFile, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	rf, err := ParseRunFile(data)
	if err != nil {
		return nil, errors.Wrapf(err, "run file %s", path)
	}
	return rf, nil
}

// ParseRunFile decodes a run file. JSON is accepted because it is valid YAML.
// Outcome names are matched case-insensitively; unknown ones become
// UNDEFINED. Outcomes without a story inherit the file's story.
func ParseRunFile(data []byte) (*RunFile, error) {
	var rf RunFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, errors.Wrap(err, "decoding run file")
	}

	for i := range rf.Outcomes {
		o := &rf.Outcomes[i]
		o.Title = strings.TrimSpace(o.Title)
		if o.Title == "" {
			return nil, errors.Newf("outcomes[%d]: title is required", i)
		}
		o.Result = types.ParseOutcomeFold(string(o.Result))
		if o.Story == "" {
			o.Story = rf.Story
		}
		o.Issues = listener.NormalizeKeys(o.Issues)
	}
	return &rf, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return data, errors.Wrap(err, "reading stdin")
	}
	data, err := os.ReadFile(path) // #nosec G304 - user-supplied input file
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return data, nil
}
