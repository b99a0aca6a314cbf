package chores

import "time"

// Chore is a parent-managed task definition.
type Chore struct {
	ID          int64
	Title       string
	Description string
	Points      int
	CreatedBy   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PolicyOwnerID identifies the creating parent for row-level rules.
func (c Chore) PolicyOwnerID() int64 {
	return c.CreatedBy
}

// AssignmentStatus tracks an assignment through its lifecycle.
type AssignmentStatus string

const (
	StatusPending AssignmentStatus = "pending"
	StatusDone    AssignmentStatus = "done"
)

// Assignment is one chore instance owned by a kid. Points are copied from the
// chore at assignment time so a later chore edit does not change what was
// promised.
type Assignment struct {
	ID          int64
	ChoreID     int64
	KidID       int64
	Status      AssignmentStatus
	Points      int
	DueOn       time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PolicyOwnerID identifies the kid owning the assignment for row-level rules.
func (a Assignment) PolicyOwnerID() int64 {
	return a.KidID
}

// RewardSummary totals a kid's earned points.
type RewardSummary struct {
	KidID         int64 `json:"kidId"`
	CompletedJobs int   `json:"completedJobs"`
	Points        int   `json:"points"`
}
