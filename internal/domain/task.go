package domain

import "time"

type ScheduleType string

const (
	ScheduleCron ScheduleType = "cron"
	ScheduleOnce ScheduleType = "once"
)

// Task is a scheduling definition that produces executions (§3).
type Task struct {
	ID             string
	OrganizationID string
	Name           string
	URL            string
	Method         string
	Headers        map[string]string
	Body           *string

	ScheduleType    ScheduleType
	CronExpression  *string
	ScheduledAt     *time.Time

	Enabled    bool
	TimeoutMS  int
	RetryAttempts int

	CallbackURL           *string
	ExpectedStatusCodes   []int
	ExpectedBodyPattern   *string
	Queue                 *string

	NextRunAt           *time.Time
	LastExecutionAt     *time.Time
	LastExecutionStatus *string

	NotifyOnFailure  *bool
	NotifyOnRecovery *bool

	// Internal marks tasks synthesized for callback delivery or endpoint
	// fan-out. Callback tasks skip notifier feedback and get at most one
	// retry; fan-out tasks keep the endpoint's retry budget and notify
	// through the endpoint's overrides. Neither kind bumps the quota.
	Internal bool

	// FanoutEndpointID/FanoutForwardURL identify the (endpoint, forward_url)
	// pair a synthetic fan-out task was created for, so a later inbound
	// event can reuse the same task instead of creating a duplicate.
	FanoutEndpointID  *string
	FanoutForwardURL  *string

	DeletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t *Task) IsDeleted() bool { return t.DeletedAt != nil }
