package domain

import "time"

// Endpoint is an inbound-webhook receiver that fans out to forward URLs (§3).
type Endpoint struct {
	ID             string
	OrganizationID string
	Name           string
	Slug           string

	ForwardURLs    []string
	ForwardMethod  *string
	ForwardHeaders map[string]string
	ForwardBody    *string

	RetryAttempts int
	UseQueue      bool
	Enabled       bool

	NotifyOnFailure  *bool
	NotifyOnRecovery *bool
	OnFailureURL     *string
	OnRecoveryURL    *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InboundEvent captures one inbound webhook delivery and the executions it
// spawned, in the order of endpoint.ForwardURLs.
type InboundEvent struct {
	ID         string
	EndpointID string
	Method     string
	Headers    map[string]string
	Body       *string
	SourceIP   string
	ReceivedAt time.Time
	TaskIDs    []string
}
