package domain

import "errors"

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrExecutionNotFound = errors.New("execution not found")
	ErrScheduleInvalid   = errors.New("invalid schedule: cron_expression or scheduled_at required")
	ErrCronInvalid       = errors.New("invalid cron expression")

	ErrQueueNotFound = errors.New("queue not found")

	ErrEndpointNotFound    = errors.New("endpoint not found")
	ErrEndpointDisabled    = errors.New("endpoint disabled")
	ErrInboundEventEmpty   = errors.New("no_tasks: inbound event has no live tasks to replay")

	ErrMonitorNotFound = errors.New("monitor not found")
	ErrPingTokenUnknown = errors.New("ping token not recognized")

	ErrAPIKeyNotFound = errors.New("api key not found")
	ErrAPIKeyRevoked  = errors.New("api key revoked")

	ErrOrganizationNotFound = errors.New("organization not found")
	ErrQuotaExceeded        = errors.New("organization monthly quota exceeded")

	ErrIdempotencyConflict  = errors.New("conflict: idempotency key in progress with no result yet")
	ErrInviteNotFound       = errors.New("invite not found or expired")
	ErrInviteAlreadyAccepted = errors.New("invite already accepted")
)
