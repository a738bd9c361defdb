package workflow

import (
	"strings"

	"github.com/steveyegge/ticketledger/internal/types"
)

// Builder assembles a Table. Builders are not safe for concurrent use; the
// Table they produce is.
//
//	table := workflow.NewBuilder().
//		When("Open").On(types.OutcomeSuccess, "Resolve Issue").
//		When("In Progress").On(types.OutcomeFailure, "Stop Progress").
//		Build()
type Builder struct {
	active      bool
	status      string
	transitions map[types.Outcome]map[string][]string
	display     map[string]string
}

// NewBuilder returns a builder for an active table.
func NewBuilder() *Builder {
	return &Builder{
		active:      true,
		transitions: make(map[types.Outcome]map[string][]string),
		display:     make(map[string]string),
	}
}

// Active sets the table's active flag.
func (b *Builder) Active(active bool) *Builder {
	b.active = active
	return b
}

// When selects the status that following On calls apply to.
func (b *Builder) When(status string) *Builder {
	b.status = status
	key := normalizeStatus(status)
	if _, ok := b.display[key]; !ok && key != "" {
		b.display[key] = strings.TrimSpace(status)
	}
	return b
}

// On appends transitions for outcome in the current status. Blank transition
// names are ignored, as is an On without a preceding When.
func (b *Builder) On(outcome types.Outcome, transitions ...string) *Builder {
	key := normalizeStatus(b.status)
	if key == "" {
		return b
	}
	for _, name := range transitions {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		statuses, ok := b.transitions[outcome]
		if !ok {
			statuses = make(map[string][]string)
			b.transitions[outcome] = statuses
		}
		statuses[key] = append(statuses[key], name)
	}
	return b
}

// Build returns the table. The builder can keep being used afterwards without
// affecting the returned table.
func (b *Builder) Build() Table {
	transitions := make(map[types.Outcome]map[string][]string, len(b.transitions))
	for outcome, statuses := range b.transitions {
		copied := make(map[string][]string, len(statuses))
		for key, names := range statuses {
			copied[key] = append([]string(nil), names...)
		}
		transitions[outcome] = copied
	}
	display := make(map[string]string, len(b.display))
	for k, v := range b.display {
		display[k] = v
	}
	return Table{active: b.active, transitions: transitions, display: display}
}
