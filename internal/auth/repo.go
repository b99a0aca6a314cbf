package auth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/choreboard/choreboard/internal/session"
)

// Repository persists the durable session audit trail. The Redis store decides
// whether a token is live; these rows exist so sign-ins survive a cache flush
// and can be reviewed after the fact.
type Repository interface {
	session.AuditRecorder
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// RecordSession inserts an audit row for an issued session.
func (r *PGRepository) RecordSession(ctx context.Context, id string, principalID int64, expiresAt time.Time, ip, ua string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, principal_id, expires_at, ip, ua)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))`,
		id, principalID, expiresAt.UTC(), ip, ua)
	return err
}

// RemoveSession closes the audit row for a revoked session.
func (r *PGRepository) RemoveSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE sessions SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	return err
}

// PurgeExpired deletes audit rows whose sessions expired before the cutoff.
// Called from the background worker.
func (r *PGRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
