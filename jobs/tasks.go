// Package jobs holds the background task definitions and the Asynq worker
// that runs them. Nothing here executes on a request path.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// QueueDefault is the queue all Choreboard tasks run on.
const QueueDefault = "default"

const (
	// TaskSessionPurge deletes session audit rows past their expiry.
	TaskSessionPurge = "session:purge"
	// TaskAssignmentRollover re-creates recurring assignments for the next
	// due date.
	TaskAssignmentRollover = "assignment:rollover"
)

// SessionPurgePayload parameterizes a purge run.
type SessionPurgePayload struct {
	// Grace keeps expired rows around for this long before deletion.
	Grace time.Duration `json:"grace"`
}

// NewSessionPurgeTask builds a purge task.
func NewSessionPurgeTask(p SessionPurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionPurge, data), nil
}

// RolloverPayload parameterizes an assignment rollover run.
type RolloverPayload struct {
	// Horizon is the due date new assignments are created for. Zero means
	// the start of the next day at execution time.
	Horizon time.Time `json:"horizon"`
}

// NewRolloverTask builds a rollover task.
func NewRolloverTask(p RolloverPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAssignmentRollover, data), nil
}
