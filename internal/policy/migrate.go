package policy

import "fmt"

// State tracks a rule set through its lifecycle.
type State int

const (
	// Defined means declared but not yet installed.
	Defined State = iota
	// Active means currently enforced.
	Active
	// Superseded means fully replaced by a later migration. A superseded set
	// is retained for inspection, never merged into its successor.
	Superseded
)

// RuleSet is the complete set of rules for one (resource, action) pair at one
// migration version.
type RuleSet struct {
	Resource string
	Action   Action
	Version  int
	Rules    []Rule
	state    State
}

// State returns the lifecycle state of the rule set.
func (rs *RuleSet) State() State {
	return rs.state
}

// Migration installs one rule set. A later migration for the same
// (resource, action) replaces the earlier set wholesale.
type Migration struct {
	Version  int
	Name     string
	Resource string
	Action   Action
	Rules    []Rule
}

// Apply installs migrations in order. Versions must be strictly increasing
// across the Engine's lifetime: a replayed or out-of-order migration fails
// before anything is touched. Each replacement happens under the engine lock,
// so there is never an interim window where a resource has no rules — the
// predecessor stays enforced until the successor is installed, and with no
// rule set installed at all the engine already denies by default.
func (e *Engine) Apply(migrations ...Migration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	version := e.version
	for _, m := range migrations {
		if m.Version <= version {
			return fmt.Errorf("policy: migration %d (%s) not after version %d", m.Version, m.Name, version)
		}
		if m.Resource == "" || m.Action == "" {
			return fmt.Errorf("policy: migration %d (%s) missing resource or action", m.Version, m.Name)
		}
		version = m.Version
	}

	for _, m := range migrations {
		key := setKey{resource: m.Resource, action: m.Action}
		if old := e.active[key]; old != nil {
			old.state = Superseded
			e.superseded = append(e.superseded, old)
		}
		e.active[key] = &RuleSet{
			Resource: m.Resource,
			Action:   m.Action,
			Version:  m.Version,
			Rules:    m.Rules,
			state:    Active,
		}
		e.version = m.Version
	}
	return nil
}

// History returns the superseded rule sets for a (resource, action) pair in
// application order.
func (e *Engine) History(resource string, action Action) []*RuleSet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*RuleSet
	for _, rs := range e.superseded {
		if rs.Resource == resource && rs.Action == action {
			out = append(out, rs)
		}
	}
	return out
}
