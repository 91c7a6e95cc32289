// Command server runs the API ingress (C12): task/queue/monitor/endpoint
// CRUD, inbound webhook fan-out, monitor pings, and invite acceptance. It
// owns no scheduling loop of its own — the scheduler daemon (cmd/scheduler)
// materializes and runs executions; this process only talks to the store.
// A Waker here is a no-op, since there is no in-process loop to nudge
// across a process boundary — the scheduler daemon notices new rows on its
// next horizon poll instead.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/taskrelay/config"
	"github.com/ErlanBelekov/taskrelay/internal/apikeycache"
	"github.com/ErlanBelekov/taskrelay/internal/fanout"
	"github.com/ErlanBelekov/taskrelay/internal/health"
	"github.com/ErlanBelekov/taskrelay/internal/idempotency"
	ctxlog "github.com/ErlanBelekov/taskrelay/internal/log"
	"github.com/ErlanBelekov/taskrelay/internal/metrics"
	"github.com/ErlanBelekov/taskrelay/internal/notifier"
	"github.com/ErlanBelekov/taskrelay/internal/observability"
	"github.com/ErlanBelekov/taskrelay/internal/postgres"
	"github.com/ErlanBelekov/taskrelay/internal/quota"
	"github.com/ErlanBelekov/taskrelay/internal/ratelimit"
	httptransport "github.com/ErlanBelekov/taskrelay/internal/transport/http"
	"github.com/ErlanBelekov/taskrelay/internal/transport/http/handler"
	"github.com/ErlanBelekov/taskrelay/internal/usecase"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

type noopWaker struct{}

func (noopWaker) Wake() {}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	shutdownTracer, err := observability.InitTracer(ctx, "scheduler-api", cfg.OTELExporterEndpoint)
	if err != nil {
		logger.Warn("tracer init failed, continuing without tracing", "error", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.WorkerCount)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	taskRepo := postgres.NewTaskRepository(pool)
	execRepo := postgres.NewExecutionRepository(pool)
	queueRepo := postgres.NewQueueRepository(pool)
	monitorRepo := postgres.NewMonitorRepository(pool)
	endpointRepo := postgres.NewEndpointRepository(pool)
	inboundRepo := postgres.NewInboundEventRepository(pool)
	apiKeyRepo := postgres.NewAPIKeyRepository(pool)
	orgRepo := postgres.NewOrganizationRepository(pool)
	memberRepo := postgres.NewMemberRepository(pool)
	inviteRepo := postgres.NewInviteRepository(pool)
	idemRepo := postgres.NewIdempotencyRepository(pool)
	notificationRepo := postgres.NewNotificationRepository(pool)

	var keyCacheBackend apikeycache.Backend
	if cfg.RedisURL != "" {
		redisBackend, err := apikeycache.NewRedisBackend(cfg.RedisURL)
		if err != nil {
			logger.Warn("redis backend unavailable, falling back to in-process cache", "error", err)
		} else {
			keyCacheBackend = redisBackend
		}
	}
	keyCache := apikeycache.New(keyCacheBackend, apiKeyRepo, 5*time.Minute, 5*time.Minute)

	idemGuard := idempotency.New(idemRepo, time.Duration(cfg.IdempotencyWaitMS)*time.Millisecond)
	limiter := ratelimit.NewOrgLimiter(cfg.AdmissionRateLimitPerSec, cfg.AdmissionRateLimitBurst)

	sink := notifier.NewSink(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
	notif := notifier.New(notificationRepo, orgRepo, sink, logger, time.Duration(cfg.ThrottleWindowSec)*time.Second)

	quotaCounter := quota.NewCounter(orgRepo, quota.Limits{Free: cfg.QuotaMonthlyFree, Pro: cfg.QuotaMonthlyPro})

	waker := noopWaker{}
	taskUC := usecase.NewTaskUsecase(taskRepo, queueRepo, waker)
	execUC := usecase.NewExecutionUsecase(execRepo, taskRepo, quotaCounter, waker)
	queueUC := usecase.NewQueueUsecase(queueRepo, taskRepo)
	monitorUC := usecase.NewMonitorUsecase(monitorRepo, notif)
	endpointUC := usecase.NewEndpointUsecase(endpointRepo)
	apiKeyUC := usecase.NewAPIKeyUsecase(apiKeyRepo, keyCache)
	orgUC := usecase.NewOrganizationUsecase(orgRepo)
	inviteUC := usecase.NewInviteUsecase(inviteRepo, memberRepo, []byte(cfg.JWTSecret), cfg.InviteBaseURL)

	fanoutSvc := fanout.New(endpointRepo, inboundRepo, taskRepo, execRepo, waker, logger)

	handlers := httptransport.Handlers{
		Task:         handler.NewTaskHandler(taskUC, execUC, logger),
		Queue:        handler.NewQueueHandler(queueUC, logger),
		Monitor:      handler.NewMonitorHandler(monitorUC, logger),
		Endpoint:     handler.NewEndpointHandler(endpointUC, logger),
		Inbound:      handler.NewInboundHandler(fanoutSvc, logger),
		APIKey:       handler.NewAPIKeyHandler(apiKeyUC, logger),
		Organization: handler.NewOrganizationHandler(orgUC, logger),
		Invite:       handler.NewInviteHandler(inviteUC, logger),
	}

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	srv := http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httptransport.New(logger, handlers, keyCache, idemGuard, limiter),
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
	if shutdownTracer != nil {
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("tracer shutdown", "error", err)
		}
	}
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(ctxlog.NewContextHandler(observability.NewTraceHandler(inner)))
}
