package domain

import "time"

type ExecutionStatus string

const (
	ExecutionPending ExecutionStatus = "pending"
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
	ExecutionTimeout ExecutionStatus = "timeout"
)

func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionSuccess, ExecutionFailed, ExecutionTimeout:
		return true
	default:
		return false
	}
}

// Execution is one attempt to run a task (§3).
type Execution struct {
	ID             string
	TaskID         string
	OrganizationID string
	Queue          *string

	Status ExecutionStatus

	ScheduledFor time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time

	StatusCode   *int
	DurationMS   *int64
	ResponseBody *string
	ErrorMessage *string

	Attempt     int
	CallbackURL *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
