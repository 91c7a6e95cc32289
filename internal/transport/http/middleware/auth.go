package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/ErlanBelekov/taskrelay/internal/apikeycache"
	"github.com/gin-gonic/gin"
)

type ctxKey struct{}

var orgIDKey ctxKey

// OrgIDFromContext returns the organization_id the authenticated API key
// belongs to. Only valid on requests that passed Auth.
func OrgIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(orgIDKey).(string)
	return id
}

// Auth authenticates requests carrying "Authorization: Bearer <key_id>.<secret>"
// against the two-tier API-key cache (§4.8 first half). On success it stores
// the organization_id on the request context for downstream handlers.
func Auth(cache *apikeycache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw := strings.TrimPrefix(header, "Bearer ")
		if raw == "" || raw == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorEnvelope("unauthorized", "missing or malformed Authorization header"))
			return
		}

		keyID, secret, ok := strings.Cut(raw, ".")
		if !ok || keyID == "" || secret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorEnvelope("unauthorized", "malformed api key"))
			return
		}

		ctx := c.Request.Context()
		key, err := cache.Get(ctx, keyID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorEnvelope("unauthorized", "invalid api key"))
			return
		}

		hash := sha256.Sum256([]byte(secret))
		if subtle.ConstantTimeCompare([]byte(hex.EncodeToString(hash[:])), []byte(key.KeyHash)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorEnvelope("unauthorized", "invalid api key"))
			return
		}

		cache.TouchLastUsed(key)
		c.Request = c.Request.WithContext(context.WithValue(ctx, orgIDKey, key.OrganizationID))
		c.Next()
	}
}

func errorEnvelope(code, message string) gin.H {
	return gin.H{"error": gin.H{"code": code, "message": message, "details": nil}}
}
