// Package ratelimit fronts the quota counter (C11) with a per-organization
// token bucket so bursts are smoothed before they reach Postgres, grounded
// on itskum47/FluxForge's control_plane/scheduler.TokenBucketLimiter.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

type OrgLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

func NewOrgLimiter(perSecond float64, burst int) *OrgLimiter {
	return &OrgLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(perSecond),
		b:        burst,
	}
}

// Allow reports whether orgID may proceed right now, creating its bucket on
// first use.
func (l *OrgLimiter) Allow(orgID string) bool {
	return l.limiterFor(orgID).Allow()
}

func (l *OrgLimiter) limiterFor(orgID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[orgID]
	if !ok {
		lim = rate.NewLimiter(l.r, l.b)
		l.limiters[orgID] = lim
	}
	return lim
}
