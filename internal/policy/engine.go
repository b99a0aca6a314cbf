// Package policy makes the per-row, per-action permit/deny decision at the
// data-access boundary. Repositories consult the engine once per query, either
// compiling the decision into a row scope (pushed into SQL) or checking a
// single row before a mutation. Handlers never re-implement these checks as
// scattered role conditionals.
//
// Predicates are pure functions over (claims, row). The claims carry the
// principal's role, written at session issuance, so no predicate ever queries
// the principals table to learn a role. An evaluation marker in the context
// denies any attempt to re-enter the engine from inside a predicate: the class
// of rule that gates a table by querying that same gated table cannot
// terminate, and is cut off after one level instead of recursing.
package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/choreboard/choreboard/internal/session"
	"github.com/choreboard/choreboard/internal/shared"
)

// Action identifies the data operation a rule gates.
type Action string

const (
	ActionSelect Action = "select"
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Row is the shape predicates evaluate against. Collection-level decisions
// pass a nil Row and rely on Scope instead.
type Row interface {
	PolicyOwnerID() int64
}

// Predicate decides whether the claims may touch the row. It receives the
// evaluation context only so a misbehaving implementation that calls back
// into the engine is detected; it must not reach any store.
type Predicate func(ctx context.Context, c session.Claims, row Row) (bool, error)

// Rule is a named predicate plus its compiled row-scope form.
type Rule struct {
	Name      string
	Predicate Predicate
	scope     func(c session.Claims) Scope
}

// ScopeKind classifies a compiled row filter.
type ScopeKind int

const (
	// ScopeDeny matches no rows.
	ScopeDeny ScopeKind = iota
	// ScopeOwner matches rows owned by OwnerID.
	ScopeOwner
	// ScopeAll matches every row.
	ScopeAll
)

// Scope is the engine's decision compiled into a filter the repository pushes
// into its query, so returned rows are pre-authorized.
type Scope struct {
	Kind    ScopeKind
	OwnerID int64
}

var (
	// ErrDenied is the deny decision. Wraps shared.ErrForbidden for the
	// HTTP boundary.
	ErrDenied = fmt.Errorf("policy: denied: %w", shared.ErrForbidden)
	// ErrRecursiveEvaluation reports a predicate that re-entered the engine.
	// It denies: a self-referential rule is a defect, never a permit.
	ErrRecursiveEvaluation = fmt.Errorf("policy: recursive rule evaluation: %w", shared.ErrForbidden)
)

type evalMarker struct{}

type setKey struct {
	resource string
	action   Action
}

// Engine holds the active rule sets and evaluates them.
type Engine struct {
	mu         sync.RWMutex
	active     map[setKey]*RuleSet
	superseded []*RuleSet
	version    int

	// Observer, when set, receives every decision for metrics.
	Observer func(resource string, action Action, allowed bool)
}

// NewEngine constructs an empty Engine. With no rule installed every decision
// is deny.
func NewEngine() *Engine {
	return &Engine{active: make(map[setKey]*RuleSet)}
}

// Allow evaluates the active rule set for (resource, action) against one row.
// Rules within a set are disjunctive: the first permitting rule wins. Missing
// rule set, empty rule set, predicate error and re-entrant evaluation all
// deny.
func (e *Engine) Allow(ctx context.Context, c session.Claims, resource string, action Action, row Row) error {
	if ctx.Value(evalMarker{}) != nil {
		e.observe(resource, action, false)
		return ErrRecursiveEvaluation
	}

	e.mu.RLock()
	set := e.active[setKey{resource: resource, action: action}]
	e.mu.RUnlock()
	if set == nil || len(set.Rules) == 0 {
		e.observe(resource, action, false)
		return ErrDenied
	}

	ctx = context.WithValue(ctx, evalMarker{}, struct{}{})
	for _, rule := range set.Rules {
		ok, err := rule.Predicate(ctx, c, row)
		if err != nil {
			e.observe(resource, action, false)
			return fmt.Errorf("policy: rule %q: %v: %w", rule.Name, err, ErrDenied)
		}
		if ok {
			e.observe(resource, action, true)
			return nil
		}
	}
	e.observe(resource, action, false)
	return ErrDenied
}

// Scope compiles the active rule set for (resource, action) into a row filter.
// The widest rule wins: any rule granting full visibility yields ScopeAll,
// otherwise an owner rule yields ScopeOwner, otherwise ScopeDeny.
func (e *Engine) Scope(c session.Claims, resource string, action Action) Scope {
	e.mu.RLock()
	set := e.active[setKey{resource: resource, action: action}]
	e.mu.RUnlock()
	if set == nil {
		return Scope{Kind: ScopeDeny}
	}

	result := Scope{Kind: ScopeDeny}
	for _, rule := range set.Rules {
		if rule.scope == nil {
			continue
		}
		s := rule.scope(c)
		switch s.Kind {
		case ScopeAll:
			return s
		case ScopeOwner:
			result = s
		}
	}
	return result
}

// Version returns the last applied migration version.
func (e *Engine) Version() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

func (e *Engine) observe(resource string, action Action, allowed bool) {
	if e.Observer != nil {
		e.Observer(resource, action, allowed)
	}
}
