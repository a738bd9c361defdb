package workflow

import (
	_ "embed"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/ticketledger/internal/types"
)

//go:embed default.yaml
var defaultWorkflow []byte

// Format is a workflow file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ErrUnknownOutcome is returned when a workflow file names an outcome that is
// not part of the outcome enumeration.
var ErrUnknownOutcome = errors.New("unknown outcome")

type fileWorkflow struct {
	Active *bool      `yaml:"active" toml:"active"`
	When   []fileRule `yaml:"when" toml:"when"`
}

type fileRule struct {
	Status   string              `yaml:"status" toml:"status"`
	Outcomes map[string][]string `yaml:"outcomes" toml:"outcomes"`
}

// Default returns the built-in workflow.
func Default() Table {
	t, err := Parse(defaultWorkflow, FormatYAML)
	if err != nil {
		panic(errors.Wrap(err, "embedded default workflow"))
	}
	return t
}

// LoadFile reads a workflow table from a .yaml, .yml or .toml file.
func LoadFile(path string) (Table, error) {
	format, err := formatFor(path)
	if err != nil {
		return Table{}, err
	}
	// #nosec G304 -- path is an explicit user-supplied workflow file
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, errors.Wrapf(err, "read workflow %s", path)
	}
	t, err := Parse(data, format)
	if err != nil {
		return Table{}, errors.Wrapf(err, "parse workflow %s", path)
	}
	return t, nil
}

// Parse decodes a workflow table. A document without an "active" key is
// active.
func Parse(data []byte, format Format) (Table, error) {
	var doc fileWorkflow
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Table{}, errors.Wrap(err, "yaml")
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return Table{}, errors.Wrap(err, "toml")
		}
	default:
		return Table{}, errors.Newf("unsupported workflow format %q", format)
	}

	b := NewBuilder()
	if doc.Active != nil {
		b.Active(*doc.Active)
	}
	for i, rule := range doc.When {
		if strings.TrimSpace(rule.Status) == "" {
			return Table{}, errors.Newf("when[%d]: status is required", i)
		}
		b.When(rule.Status)
		for name, transitions := range rule.Outcomes {
			outcome := types.Outcome(strings.TrimSpace(name))
			if !outcome.IsValid() {
				return Table{}, errors.Wrapf(ErrUnknownOutcome, "when[%d] (%s): %q", i, rule.Status, name)
			}
			b.On(outcome, transitions...)
		}
	}
	return b.Build(), nil
}

func formatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", errors.Newf("workflow file %s: expected .yaml, .yml or .toml", path)
	}
}
