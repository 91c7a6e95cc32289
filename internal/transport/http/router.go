// Package httptransport assembles the gin engine for C12: middleware chain
// (RequestID -> Security -> access log -> Metrics -> rate limit), public
// capability routes (/in/{slug}, /ping/{token}), and the authenticated
// /api/v1 surface. Grounded on the teacher's internal/http/router.go, which
// wires the same middleware order around a much smaller job/schedule route
// set.
package httptransport

import (
	"log/slog"

	"github.com/ErlanBelekov/taskrelay/internal/apikeycache"
	"github.com/ErlanBelekov/taskrelay/internal/idempotency"
	"github.com/ErlanBelekov/taskrelay/internal/ratelimit"
	"github.com/ErlanBelekov/taskrelay/internal/transport/http/handler"
	"github.com/ErlanBelekov/taskrelay/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"
)

// Handlers bundles every HTTP handler the router dispatches to, so New's
// signature doesn't grow a parameter per resource.
type Handlers struct {
	Task         *handler.TaskHandler
	Queue        *handler.QueueHandler
	Monitor      *handler.MonitorHandler
	Endpoint     *handler.EndpointHandler
	Inbound      *handler.InboundHandler
	APIKey       *handler.APIKeyHandler
	Organization *handler.OrganizationHandler
	Invite       *handler.InviteHandler
}

func New(logger *slog.Logger, h Handlers, keyCache *apikeycache.Cache, idem *idempotency.Guard, limiter *ratelimit.OrgLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	// Public capability-secured ingress: the slug/token IS the auth.
	r.Any("/in/:slug", h.Inbound.Receive)
	r.GET("/ping/:token", h.Monitor.Ping)
	r.POST("/ping/:token", h.Monitor.Ping)

	// Organization invite acceptance is unauthenticated (the token carries
	// its own signature/expiry); invite creation requires an existing key.
	r.POST("/api/v1/invites/:token/accept", h.Invite.Accept)

	api := r.Group("/api/v1", middleware.Auth(keyCache), middleware.RateLimit(limiter))
	api.Use(middleware.Idempotency(idem))

	tasks := api.Group("/tasks")
	tasks.POST("", h.Task.Create)
	tasks.POST("/batch", h.Task.CreateBatch)
	tasks.GET("", h.Task.List)
	tasks.DELETE("", h.Task.Delete)
	tasks.GET("/:id", h.Task.GetByID)
	tasks.PATCH("/:id", h.Task.Update)
	tasks.DELETE("/:id", h.Task.Delete)
	tasks.POST("/:id/trigger", h.Task.Trigger)
	tasks.GET("/:id/executions", h.Task.ListExecutions)

	queues := api.Group("/queues")
	queues.GET("", h.Queue.List)
	queues.POST("/:name/pause", h.Queue.Pause)
	queues.POST("/:name/resume", h.Queue.Resume)
	queues.DELETE("/:name/executions", h.Queue.Cancel)

	monitors := api.Group("/monitors")
	monitors.POST("", h.Monitor.Create)
	monitors.GET("", h.Monitor.List)
	monitors.GET("/:id", h.Monitor.GetByID)
	monitors.PATCH("/:id", h.Monitor.Update)
	monitors.DELETE("/:id", h.Monitor.Delete)

	endpoints := api.Group("/endpoints")
	endpoints.POST("", h.Endpoint.Create)
	endpoints.GET("", h.Endpoint.List)
	endpoints.GET("/:id", h.Endpoint.GetByID)
	endpoints.PATCH("/:id", h.Endpoint.Update)
	endpoints.DELETE("/:id", h.Endpoint.Delete)
	endpoints.POST("/:id/events/:event_id/replay", h.Inbound.Replay)

	keys := api.Group("/api-keys")
	keys.POST("", h.APIKey.Create)
	keys.GET("", h.APIKey.List)
	keys.DELETE("/:id", h.APIKey.Delete)

	org := api.Group("/organization")
	org.GET("", h.Organization.GetSelf)
	org.PATCH("/notify-config", h.Organization.UpdateNotifyConfig)

	api.PUT("/sync", h.Task.Sync)

	api.POST("/invites", h.Invite.Create)

	return r
}
