// Command scheduler runs the execution core: the leader-elected
// materializer (C5) and monitor watchdog (C9), plus the worker pool (C6/C7)
// and stuck-execution janitor, which run on every node regardless of
// leadership since the claim primitive itself is the coordination point.
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
	"github.com/ErlanBelekov/taskrelay/internal/health"
	"github.com/ErlanBelekov/taskrelay/internal/leader"
	ctxlog "github.com/ErlanBelekov/taskrelay/internal/log"
	"github.com/ErlanBelekov/taskrelay/internal/metrics"
	"github.com/ErlanBelekov/taskrelay/internal/notifier"
	"github.com/ErlanBelekov/taskrelay/internal/observability"
	"github.com/ErlanBelekov/taskrelay/internal/postgres"
	"github.com/ErlanBelekov/taskrelay/internal/quota"
	"github.com/ErlanBelekov/taskrelay/internal/repository"
	"github.com/ErlanBelekov/taskrelay/internal/scheduler"
	"github.com/ErlanBelekov/taskrelay/internal/ssrf"
	"github.com/ErlanBelekov/taskrelay/internal/watchdog"
	"github.com/ErlanBelekov/taskrelay/internal/worker"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	shutdownTracer, err := observability.InitTracer(ctx, "scheduler-daemon", cfg.OTELExporterEndpoint)
	if err != nil {
		logger.Warn("tracer init failed, continuing without tracing", "error", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.WorkerCount)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	taskRepo := postgres.NewTaskRepository(pool)
	execRepo := postgres.NewExecutionRepository(pool)
	endpointRepo := postgres.NewEndpointRepository(pool)
	monitorRepo := postgres.NewMonitorRepository(pool)
	orgRepo := postgres.NewOrganizationRepository(pool)
	notificationRepo := postgres.NewNotificationRepository(pool)

	sink := notifier.NewSink(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
	notif := notifier.New(notificationRepo, orgRepo, sink, logger, time.Duration(cfg.ThrottleWindowSec)*time.Second)
	quotaCounter := quota.NewCounter(orgRepo, quota.Limits{Free: cfg.QuotaMonthlyFree, Pro: cfg.QuotaMonthlyPro})

	materializer := scheduler.New(
		taskRepo, execRepo, logger,
		time.Duration(cfg.TickIntervalMS)*time.Millisecond,
		time.Duration(cfg.DispatchHorizonSec)*time.Second,
		time.Duration(cfg.MissedFireThresholdSec)*time.Second,
	)

	mwatchdog := watchdog.New(monitorRepo, notif, logger, time.Duration(cfg.TickIntervalMS)*time.Millisecond)

	elector := leader.NewElector(pool, logger, 5*time.Second)
	go elector.Run(ctx, func(leaderCtx context.Context) {
		logger.Info("acquired leader lock")
		go materializer.Run(leaderCtx)
		go runMonthlyReset(leaderCtx, quotaCounter, logger)
		mwatchdog.Run(leaderCtx)
	})

	guard := ssrf.New(cfg.SSRFAllowlist)
	executor := worker.NewExecutor(logger, guard, cfg.MaxResponseCaptureBytes)
	workerPool := worker.NewPool(
		execRepo, taskRepo, endpointRepo, executor, notif, quotaCounter, logger,
		cfg.WorkerCount,
		time.Duration(cfg.PollIntervalMS)*time.Millisecond,
		worker.BackoffConfig{Base: 10 * time.Second, Max: 10 * time.Minute, Jitter: 0.2},
		repository.FairnessConfig{
			FreeConcurrencyCap: cfg.OrgConcurrencyCapFree,
			ProConcurrencyCap:  cfg.OrgConcurrencyCapPro,
		},
	)
	go workerPool.Run(ctx)

	janitor := worker.NewJanitor(execRepo, logger, time.Duration(cfg.TickIntervalMS)*time.Millisecond, time.Duration(cfg.StuckRunningThresholdSec)*time.Second)
	go janitor.Run(ctx)

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
	if shutdownTracer != nil {
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("tracer shutdown", "error", err)
		}
	}

	logger.Info("scheduler shut down")
}

// runMonthlyReset periodically zeroes counters for orgs whose reset window
// has rolled over (§4.9). Leader-only: it runs inside the elector callback.
func runMonthlyReset(ctx context.Context, q *quota.Counter, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := q.ResetMonthly(ctx, time.Now().UTC())
			if err != nil {
				logger.Error("monthly quota reset", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("monthly quota counters reset", "organizations", n)
			}
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
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(observability.NewTraceHandler(inner)))
}
