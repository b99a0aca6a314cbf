package chores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/choreboard/choreboard/internal/policy"
	"github.com/choreboard/choreboard/internal/shared"
)

// Repository provides PostgreSQL backed persistence. Every query takes the
// policy engine's compiled scope and pushes it into the WHERE clause, so rows
// leaving the store are already authorized; nothing downstream re-checks them.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// scopeClause renders the row filter for the given owner column. argIndex is
// the position of the next free query placeholder.
func scopeClause(s policy.Scope, ownerCol string, argIndex int) (string, []any) {
	switch s.Kind {
	case policy.ScopeAll:
		return "TRUE", nil
	case policy.ScopeOwner:
		return fmt.Sprintf("%s = $%d", ownerCol, argIndex), []any{s.OwnerID}
	default:
		return "FALSE", nil
	}
}

const choreColumns = `id, title, description, points, created_by, created_at, updated_at`

// ListChores returns chores visible under the scope.
func (r *Repository) ListChores(ctx context.Context, scope policy.Scope) ([]Chore, error) {
	clause, args := scopeClause(scope, "created_by", 1)
	rows, err := r.pool.Query(ctx,
		`SELECT `+choreColumns+` FROM chores WHERE `+clause+` ORDER BY title`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Chore
	for rows.Next() {
		var c Chore
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.Points, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateChore inserts a chore definition.
func (r *Repository) CreateChore(ctx context.Context, c Chore) (Chore, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO chores (title, description, points, created_by)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+choreColumns,
		c.Title, c.Description, c.Points, c.CreatedBy)
	var out Chore
	if err := row.Scan(&out.ID, &out.Title, &out.Description, &out.Points, &out.CreatedBy, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return Chore{}, err
	}
	return out, nil
}

// GetChore fetches one chore within the scope. A chore outside the scope is
// indistinguishable from a missing one.
func (r *Repository) GetChore(ctx context.Context, scope policy.Scope, id int64) (Chore, error) {
	clause, args := scopeClause(scope, "created_by", 2)
	row := r.pool.QueryRow(ctx,
		`SELECT `+choreColumns+` FROM chores WHERE id = $1 AND `+clause,
		append([]any{id}, args...)...)
	var out Chore
	err := row.Scan(&out.ID, &out.Title, &out.Description, &out.Points, &out.CreatedBy, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Chore{}, shared.ErrNotFound
		}
		return Chore{}, err
	}
	return out, nil
}

// UpdateChore edits a chore definition within the scope.
func (r *Repository) UpdateChore(ctx context.Context, scope policy.Scope, c Chore) error {
	clause, args := scopeClause(scope, "created_by", 5)
	tag, err := r.pool.Exec(ctx,
		`UPDATE chores SET title = $2, description = $3, points = $4, updated_at = now()
		 WHERE id = $1 AND `+clause,
		append([]any{c.ID, c.Title, c.Description, c.Points}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteChore removes a chore and its assignments (FK cascade) within the scope.
func (r *Repository) DeleteChore(ctx context.Context, scope policy.Scope, id int64) error {
	clause, args := scopeClause(scope, "created_by", 2)
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM chores WHERE id = $1 AND `+clause,
		append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const assignmentColumns = `id, chore_id, kid_id, status, points, due_on, completed_at, created_at, updated_at`

// ListAssignments returns assignments visible under the scope.
func (r *Repository) ListAssignments(ctx context.Context, scope policy.Scope) ([]Assignment, error) {
	clause, args := scopeClause(scope, "kid_id", 1)
	rows, err := r.pool.Query(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE `+clause+` ORDER BY due_on, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAssignment fetches one assignment within the scope.
func (r *Repository) GetAssignment(ctx context.Context, scope policy.Scope, id int64) (Assignment, error) {
	clause, args := scopeClause(scope, "kid_id", 2)
	row := r.pool.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM assignments WHERE id = $1 AND `+clause,
		append([]any{id}, args...)...)
	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, shared.ErrNotFound
		}
		return Assignment{}, err
	}
	return a, nil
}

// CreateAssignment inserts an assignment, copying the chore's point value.
func (r *Repository) CreateAssignment(ctx context.Context, choreID, kidID int64, dueOn time.Time) (Assignment, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO assignments (chore_id, kid_id, status, points, due_on)
		 SELECT c.id, $2, 'pending', c.points, $3 FROM chores c WHERE c.id = $1
		 RETURNING `+assignmentColumns,
		choreID, kidID, dueOn)
	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, shared.ErrNotFound
		}
		return Assignment{}, err
	}
	return a, nil
}

// CompleteAssignment marks an assignment done within the scope. Completing an
// assignment outside the scope affects zero rows and reports not found, the
// same as a missing assignment.
func (r *Repository) CompleteAssignment(ctx context.Context, scope policy.Scope, id int64) (Assignment, error) {
	clause, args := scopeClause(scope, "kid_id", 2)
	row := r.pool.QueryRow(ctx,
		`UPDATE assignments SET status = 'done', completed_at = now(), updated_at = now()
		 WHERE id = $1 AND status = 'pending' AND `+clause+`
		 RETURNING `+assignmentColumns,
		append([]any{id}, args...)...)
	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, shared.ErrNotFound
		}
		return Assignment{}, err
	}
	return a, nil
}

// DeleteAssignment removes an assignment within the scope.
func (r *Repository) DeleteAssignment(ctx context.Context, scope policy.Scope, id int64) error {
	clause, args := scopeClause(scope, "kid_id", 2)
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM assignments WHERE id = $1 AND `+clause,
		append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// RewardSummaries totals completed points per kid within the scope.
func (r *Repository) RewardSummaries(ctx context.Context, scope policy.Scope) ([]RewardSummary, error) {
	clause, args := scopeClause(scope, "kid_id", 1)
	rows, err := r.pool.Query(ctx,
		`SELECT kid_id, COUNT(*), COALESCE(SUM(points), 0)
		 FROM assignments WHERE status = 'done' AND `+clause+`
		 GROUP BY kid_id ORDER BY kid_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RewardSummary
	for rows.Next() {
		var s RewardSummary
		if err := rows.Scan(&s.KidID, &s.CompletedJobs, &s.Points); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RolloverDue re-creates pending assignments for recurring chores due in the
// new week. Invoked by the background worker, never from a request path.
func (r *Repository) RolloverDue(ctx context.Context, horizon time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO assignments (chore_id, kid_id, status, points, due_on)
		 SELECT a.chore_id, a.kid_id, 'pending', c.points, $1
		 FROM assignments a
		 JOIN chores c ON c.id = a.chore_id
		 WHERE a.status = 'done' AND a.due_on < $1
		   AND NOT EXISTS (
		     SELECT 1 FROM assignments n
		     WHERE n.chore_id = a.chore_id AND n.kid_id = a.kid_id AND n.due_on = $1
		   )`, horizon)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Store = (*Repository)(nil)

func scanAssignment(row pgx.Row) (Assignment, error) {
	var a Assignment
	var status string
	err := row.Scan(&a.ID, &a.ChoreID, &a.KidID, &status, &a.Points, &a.DueOn, &a.CompletedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Assignment{}, err
	}
	a.Status = AssignmentStatus(status)
	return a, nil
}
