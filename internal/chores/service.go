package chores

import (
	"context"
	"fmt"
	"time"

	"github.com/choreboard/choreboard/internal/policy"
	"github.com/choreboard/choreboard/internal/session"
	"github.com/choreboard/choreboard/internal/shared"
)

// Resource names registered with the policy engine.
const (
	ResourceChores      = "chores"
	ResourceAssignments = "assignments"
)

// Store defines persistence operations for the chores module.
type Store interface {
	ListChores(ctx context.Context, scope policy.Scope) ([]Chore, error)
	CreateChore(ctx context.Context, c Chore) (Chore, error)
	GetChore(ctx context.Context, scope policy.Scope, id int64) (Chore, error)
	UpdateChore(ctx context.Context, scope policy.Scope, c Chore) error
	DeleteChore(ctx context.Context, scope policy.Scope, id int64) error
	ListAssignments(ctx context.Context, scope policy.Scope) ([]Assignment, error)
	GetAssignment(ctx context.Context, scope policy.Scope, id int64) (Assignment, error)
	CreateAssignment(ctx context.Context, choreID, kidID int64, dueOn time.Time) (Assignment, error)
	CompleteAssignment(ctx context.Context, scope policy.Scope, id int64) (Assignment, error)
	DeleteAssignment(ctx context.Context, scope policy.Scope, id int64) error
	RewardSummaries(ctx context.Context, scope policy.Scope) ([]RewardSummary, error)
}

// Service applies the policy engine's decisions to chore and assignment
// access. Reads and in-place mutations carry a compiled scope down into the
// store; inserts are checked against the row about to be written.
type Service struct {
	store  Store
	engine *policy.Engine
}

// NewService constructs a Service.
func NewService(store Store, engine *policy.Engine) *Service {
	return &Service{store: store, engine: engine}
}

// ListChores returns the chores the caller may see.
func (s *Service) ListChores(ctx context.Context, c session.Claims) ([]Chore, error) {
	scope := s.engine.Scope(c, ResourceChores, policy.ActionSelect)
	return s.store.ListChores(ctx, scope)
}

// CreateChore adds a chore definition owned by the caller.
func (s *Service) CreateChore(ctx context.Context, c session.Claims, title, description string, points int) (Chore, error) {
	chore := Chore{Title: title, Description: description, Points: points, CreatedBy: c.PrincipalID}
	if err := s.engine.Allow(ctx, c, ResourceChores, policy.ActionInsert, chore); err != nil {
		return Chore{}, err
	}
	if chore.Title == "" {
		return Chore{}, fmt.Errorf("%w: title required", shared.ErrValidation)
	}
	return s.store.CreateChore(ctx, chore)
}

// UpdateChore edits a chore within the caller's update scope.
func (s *Service) UpdateChore(ctx context.Context, c session.Claims, chore Chore) error {
	if chore.Title == "" {
		return fmt.Errorf("%w: title required", shared.ErrValidation)
	}
	scope := s.engine.Scope(c, ResourceChores, policy.ActionUpdate)
	return s.store.UpdateChore(ctx, scope, chore)
}

// DeleteChore removes a chore within the caller's delete scope.
func (s *Service) DeleteChore(ctx context.Context, c session.Claims, id int64) error {
	scope := s.engine.Scope(c, ResourceChores, policy.ActionDelete)
	return s.store.DeleteChore(ctx, scope, id)
}

// ListAssignments returns the assignments the caller may see: a kid sees only
// their own rows, a parent sees the household.
func (s *Service) ListAssignments(ctx context.Context, c session.Claims) ([]Assignment, error) {
	scope := s.engine.Scope(c, ResourceAssignments, policy.ActionSelect)
	return s.store.ListAssignments(ctx, scope)
}

// GetAssignment fetches one assignment within the caller's select scope.
func (s *Service) GetAssignment(ctx context.Context, c session.Claims, id int64) (Assignment, error) {
	scope := s.engine.Scope(c, ResourceAssignments, policy.ActionSelect)
	return s.store.GetAssignment(ctx, scope, id)
}

// AssignChore hands a chore to a kid for the given due date.
func (s *Service) AssignChore(ctx context.Context, c session.Claims, choreID, kidID int64, dueOn time.Time) (Assignment, error) {
	candidate := Assignment{ChoreID: choreID, KidID: kidID, DueOn: dueOn}
	if err := s.engine.Allow(ctx, c, ResourceAssignments, policy.ActionInsert, candidate); err != nil {
		return Assignment{}, err
	}
	return s.store.CreateAssignment(ctx, choreID, kidID, dueOn)
}

// CompleteAssignment marks an assignment done within the caller's update
// scope. A kid completing another kid's assignment matches zero rows.
func (s *Service) CompleteAssignment(ctx context.Context, c session.Claims, id int64) (Assignment, error) {
	scope := s.engine.Scope(c, ResourceAssignments, policy.ActionUpdate)
	return s.store.CompleteAssignment(ctx, scope, id)
}

// DeleteAssignment removes an assignment within the caller's delete scope.
func (s *Service) DeleteAssignment(ctx context.Context, c session.Claims, id int64) error {
	scope := s.engine.Scope(c, ResourceAssignments, policy.ActionDelete)
	return s.store.DeleteAssignment(ctx, scope, id)
}

// RewardSummaries totals completed points, scoped like assignment reads.
func (s *Service) RewardSummaries(ctx context.Context, c session.Claims) ([]RewardSummary, error) {
	scope := s.engine.Scope(c, ResourceAssignments, policy.ActionSelect)
	return s.store.RewardSummaries(ctx, scope)
}
