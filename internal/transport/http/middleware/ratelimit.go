package middleware

import (
	"net/http"

	"github.com/ErlanBelekov/taskrelay/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

// RateLimit fronts admission with a per-organization token bucket (§4.9,
// §6) so bursts are smoothed client-side of the quota counter rather than
// hammering Postgres on every rejected request.
func RateLimit(limiter *ratelimit.OrgLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := OrgIDFromContext(c.Request.Context())
		if orgID != "" && !limiter.Allow(orgID) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorEnvelope("rate_limited", "too many requests, slow down"))
			return
		}
		c.Next()
	}
}
