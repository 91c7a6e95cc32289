package middleware

import (
	"bytes"
	"context"
	"net/http"

	"github.com/ErlanBelekov/taskrelay/internal/idempotency"
	"github.com/ErlanBelekov/taskrelay/internal/transport/http/apierr"
	"github.com/gin-gonic/gin"
)

const idempotencyKeyHeader = "Idempotency-Key"

// Idempotency wraps request handling with the §4.8 guard: a repeated
// (organization, Idempotency-Key) pair replays the first caller's response
// instead of re-running the handler. Requests without the header pass
// through untouched.
func Idempotency(guard *idempotency.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}
		orgID := OrgIDFromContext(c.Request.Context())

		result, err := guard.Execute(c.Request.Context(), orgID, key, func(ctx context.Context) (idempotency.Result, error) {
			rec := &bodyRecorder{ResponseWriter: c.Writer, buf: &bytes.Buffer{}}
			c.Writer = rec
			c.Next()
			return idempotency.Result{StatusCode: rec.status, Body: rec.buf.Bytes()}, nil
		})
		if err != nil {
			apierr.Write(c, err)
			return
		}
		if !c.Writer.Written() {
			c.Data(result.StatusCode, "application/json", result.Body)
		}
	}
}

type bodyRecorder struct {
	gin.ResponseWriter
	buf    *bytes.Buffer
	status int
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *bodyRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

var _ http.ResponseWriter = (*bodyRecorder)(nil)
