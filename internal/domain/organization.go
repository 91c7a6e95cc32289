package domain

import "time"

type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// OrgConcurrencyCap returns the fairness-gate cap for the given tier (§4.4).
func OrgConcurrencyCap(tier Tier, freeCap, proCap int) int {
	if tier == TierPro {
		return proCap
	}
	return freeCap
}

type Organization struct {
	ID            string
	Tier          Tier
	WebhookSecret string

	ExecCount     int
	ResetAt       time.Time
	WarningSentAt *time.Time
	ReachedSentAt *time.Time

	NotifyOnFailure bool
	NotifyOnRecovery bool
	NotifyEmail     *string
	NotifyWebhookURL *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Member struct {
	ID             string
	OrganizationID string
	Email          string
	CreatedAt      time.Time
}

type Invite struct {
	ID             string
	OrganizationID string
	Email          string
	TokenHash      string
	ExpiresAt      time.Time
	AcceptedAt     *time.Time
	CreatedAt      time.Time
}
