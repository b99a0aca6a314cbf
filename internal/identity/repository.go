package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/choreboard/choreboard/internal/shared"
)

// Repository defines persistence operations for principals.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	FindByID(ctx context.Context, id int64) (*Principal, error)
	Create(ctx context.Context, p *Principal) (*Principal, error)
	UpdatePINHash(ctx context.Context, id int64, hash string) error
	ListKids(ctx context.Context) ([]Principal, error)
}

const principalColumns = `id, name, email, role, COALESCE(password_hash, ''), COALESCE(pin_hash, ''), is_active, created_at, updated_at`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches a principal by email, case-insensitively.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Principal, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE lower(email) = lower($1)`,
		strings.TrimSpace(email))
	return scanPrincipal(row)
}

// FindByID fetches a principal by ID.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*Principal, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
	return scanPrincipal(row)
}

// Create inserts a new principal. Emails are stored lowercased so the
// case-insensitive lookup stays index-friendly.
func (r *PGRepository) Create(ctx context.Context, p *Principal) (*Principal, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO principals (name, email, role, password_hash, pin_hash, is_active)
		 VALUES ($1, lower($2), $3, NULLIF($4, ''), NULLIF($5, ''), $6)
		 RETURNING `+principalColumns,
		p.Name, p.Email, string(p.Role), p.PasswordHash, p.PINHash, p.IsActive)
	created, err := scanPrincipal(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, shared.ErrDuplicate
		}
		return nil, err
	}
	return created, nil
}

// UpdatePINHash replaces the PIN hash in a single atomic row write.
// Concurrent callers race to last-write-wins, never a hybrid value.
func (r *PGRepository) UpdatePINHash(ctx context.Context, id int64, hash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE principals SET pin_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListKids returns all active kid principals ordered by name.
func (r *PGRepository) ListKids(ctx context.Context) ([]Principal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE role = $1 AND is_active ORDER BY name`,
		string(RoleKid))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var kids []Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		kids = append(kids, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return kids, nil
}

func scanPrincipal(row pgx.Row) (*Principal, error) {
	var p Principal
	var role string
	err := row.Scan(&p.ID, &p.Name, &p.Email, &role, &p.PasswordHash, &p.PINHash, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	p.Role = Role(role)
	return &p, nil
}

var _ Repository = (*PGRepository)(nil)
