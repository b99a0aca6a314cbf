package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// SessionPurger deletes expired session audit rows.
type SessionPurger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// AssignmentRoller re-creates recurring assignments for a new due date.
type AssignmentRoller interface {
	RolloverDue(ctx context.Context, horizon time.Time) (int64, error)
}

// NewSessionPurgeHandler builds the handler for TaskSessionPurge.
func NewSessionPurgeHandler(purger SessionPurger, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p SessionPurgePayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			return err
		}
		cutoff := time.Now().Add(-p.Grace)
		purged, err := purger.PurgeExpired(ctx, cutoff)
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("purged expired sessions", slog.Int64("count", purged), slog.Time("cutoff", cutoff))
		}
		return nil
	}
}

// NewRolloverHandler builds the handler for TaskAssignmentRollover.
func NewRolloverHandler(roller AssignmentRoller, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p RolloverPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			return err
		}
		horizon := p.Horizon
		if horizon.IsZero() {
			now := time.Now().UTC()
			horizon = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
		}
		created, err := roller.RolloverDue(ctx, horizon)
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("rolled over assignments", slog.Int64("count", created), slog.Time("horizon", horizon))
		}
		return nil
	}
}
