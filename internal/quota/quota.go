// Package quota implements the per-org monthly execution cap of §4.9: bump
// on attempt=1 finalization, threshold events at 80%/100%, and admission
// refusal once the cap is reached.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/repository"
)

type Limits struct {
	Free int
	Pro  int
}

func (l Limits) For(tier domain.Tier) int {
	if tier == domain.TierPro {
		return l.Pro
	}
	return l.Free
}

// ThresholdEvent reports that a bump crossed a reporting boundary; the
// caller (worker pool) hands it to the notifier.
type ThresholdEvent struct {
	OrgID   string
	Warning bool
	Reached bool
}

type Counter struct {
	orgs   repository.OrganizationStore
	limits Limits
}

func NewCounter(orgs repository.OrganizationStore, limits Limits) *Counter {
	return &Counter{orgs: orgs, limits: limits}
}

// Bump increments the org's monthly counter and returns a ThresholdEvent the
// first time 80% or 100% of the tier's cap is crossed this month (§4.9:
// "if not already sent this month"). Called only on attempt=1 terminal
// outcomes (§4.4 step 7) — retries never bump.
func (c *Counter) Bump(ctx context.Context, orgID string) (*ThresholdEvent, error) {
	org, err := c.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("quota: load org: %w", err)
	}
	count, err := c.orgs.BumpMonthlyCounter(ctx, orgID, 1)
	if err != nil {
		return nil, fmt.Errorf("quota: bump counter: %w", err)
	}

	limit := c.limits.For(org.Tier)
	if limit <= 0 {
		return nil, nil
	}

	var ev *ThresholdEvent
	if count >= limit && org.ReachedSentAt == nil {
		if err := c.orgs.MarkReachedSent(ctx, orgID); err != nil {
			return nil, fmt.Errorf("quota: mark reached sent: %w", err)
		}
		ev = &ThresholdEvent{OrgID: orgID, Reached: true}
	} else if count*100 >= limit*80 && org.WarningSentAt == nil {
		if err := c.orgs.MarkWarningSent(ctx, orgID); err != nil {
			return nil, fmt.Errorf("quota: mark warning sent: %w", err)
		}
		ev = &ThresholdEvent{OrgID: orgID, Warning: true}
	}
	return ev, nil
}

// Allow reports whether the org may admit a new execution request (§4.9:
// "100% -> reached event + admission refusal for new pending executions
// from non-privileged sources; in-flight executions continue"). It reads
// the organization's current counter rather than recomputing it, since only
// Bump mutates it.
func (c *Counter) Allow(ctx context.Context, orgID string) (bool, error) {
	org, err := c.orgs.GetByID(ctx, orgID)
	if err != nil {
		return false, fmt.Errorf("quota: load org: %w", err)
	}
	limit := c.limits.For(org.Tier)
	if limit <= 0 {
		return true, nil
	}
	return org.ExecCount < limit, nil
}

// ResetMonthly runs the leader-only monthly reset job (§4.9).
func (c *Counter) ResetMonthly(ctx context.Context, now time.Time) (int, error) {
	n, err := c.orgs.ResetMonthlyCounters(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("quota: reset monthly counters: %w", err)
	}
	return n, nil
}
