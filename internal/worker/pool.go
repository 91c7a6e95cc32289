// Package worker (pool.go) implements C6/C7: the fixed-size loop of workers
// claiming executions via the fairness-aware ClaimNext primitive and driving
// them through dispatch, success/failure evaluation, retry scheduling, quota
// accounting, notifier dispatch, and callback fan-out (§4.4). Grounded on the
// teacher's scheduler.WorkerPool (fixed goroutine count, poll-or-wake loop,
// per-attempt metrics), generalized from single-outcome jobs to the full
// retry/quota/notify/callback pipeline.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/metrics"
	"github.com/ErlanBelekov/taskrelay/internal/notifier"
	"github.com/ErlanBelekov/taskrelay/internal/quota"
	"github.com/ErlanBelekov/taskrelay/internal/repository"
)

// BackoffConfig parameterizes the retry delay of §4.4 step 6.
type BackoffConfig struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64 // fraction, e.g. 0.2 for ±20%
}

func DefaultBackoff() BackoffConfig {
	return BackoffConfig{Base: 10 * time.Second, Max: 10 * time.Minute, Jitter: 0.2}
}

// delay implements backoff(a) = min(max, base * 2^(a-1)) + jitter.
func (b BackoffConfig) delay(attempt int) time.Duration {
	d := b.Base * time.Duration(1<<uint(attempt-1))
	if d > b.Max || d <= 0 {
		d = b.Max
	}
	if b.Jitter <= 0 {
		return d
	}
	spread := float64(d) * b.Jitter
	offset := (rand.Float64()*2 - 1) * spread
	return d + time.Duration(offset)
}

type Pool struct {
	executions repository.ExecutionStore
	tasks      repository.TaskStore
	endpoints  repository.EndpointStore
	executor   *Executor
	notifier   *notifier.Notifier
	quota      *quota.Counter
	logger     *slog.Logger

	workerCount  int
	pollInterval time.Duration
	backoff      BackoffConfig
	fairness     repository.FairnessConfig

	wake chan struct{}
}

func NewPool(executions repository.ExecutionStore, tasks repository.TaskStore, endpoints repository.EndpointStore, executor *Executor, notif *notifier.Notifier, q *quota.Counter, logger *slog.Logger, workerCount int, pollInterval time.Duration, backoff BackoffConfig, fairness repository.FairnessConfig) *Pool {
	return &Pool{
		executions:   executions,
		tasks:        tasks,
		endpoints:    endpoints,
		executor:     executor,
		notifier:     notif,
		quota:        q,
		logger:       logger.With("component", "worker_pool"),
		workerCount:  workerCount,
		pollInterval: pollInterval,
		backoff:      backoff,
		fairness:     fairness,
		wake:         make(chan struct{}, 1),
	}
}

// Wake nudges idle workers to re-poll immediately rather than wait a full
// pollInterval, e.g. right after fan-out enqueues new pending executions.
func (p *Pool) Wake() {
	for i := 0; i < p.workerCount; i++ {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}

func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.runWorker(ctx, workerID)
		}()
	}
	wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, workerID string) {
	p.logger.Info("worker started", "worker_id", workerID)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		claimedAny := p.claimAndRunOnce(ctx, workerID)
		if claimedAny {
			continue // keep draining the queue without waiting for the next tick
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.wake:
		}
	}
}

func (p *Pool) claimAndRunOnce(ctx context.Context, workerID string) bool {
	now := time.Now().UTC()
	exec, err := p.executions.ClaimNext(ctx, now, workerID, p.fairness)
	if err != nil {
		p.logger.Error("claim next execution", "worker_id", workerID, "error", err)
		return false
	}
	if exec == nil {
		return false
	}

	metrics.ClaimLatency.Observe(now.Sub(exec.ScheduledFor).Seconds())
	p.perform(ctx, exec)
	return true
}

// perform implements §4.4 steps 1-9 for one claimed execution.
func (p *Pool) perform(ctx context.Context, exec *domain.Execution) {
	metrics.ExecutionsInFlight.Inc()
	defer metrics.ExecutionsInFlight.Dec()

	task, err := p.tasks.GetByID(ctx, exec.TaskID, exec.OrganizationID)
	if err != nil {
		p.logger.Error("load task snapshot", "execution_id", exec.ID, "task_id", exec.TaskID, "error", err)
		_ = p.executions.Finish(ctx, exec.ID, repository.ExecutionOutcome{
			Status:       domain.ExecutionFailed,
			FinishedAt:   time.Now().UTC(),
			ErrorMessage: strPtr("task snapshot unavailable: " + err.Error()),
		})
		return
	}

	result := p.executor.Run(ctx, task)
	status, errMsg := classify(task, result)

	outcome := repository.ExecutionOutcome{
		Status:       status,
		FinishedAt:   time.Now().UTC(),
		DurationMS:   result.Duration.Milliseconds(),
		ErrorMessage: errMsg,
	}
	if result.StatusCode != 0 {
		sc := result.StatusCode
		outcome.StatusCode = &sc
	}
	if result.Body != "" {
		body := result.Body
		outcome.ResponseBody = &body
	}

	if err := p.executions.Finish(ctx, exec.ID, outcome); err != nil {
		p.logger.Error("finish execution", "execution_id", exec.ID, "error", err)
		return
	}
	metrics.ExecutionDuration.WithLabelValues(string(status)).Observe(result.Duration.Seconds())
	metrics.ExecutionsCompletedTotal.WithLabelValues(string(status)).Inc()

	if task.Internal {
		p.handleInternalOutcome(ctx, task, exec, status, result)
		return
	}

	retried := p.maybeRetry(ctx, task, exec, status)
	// Attempt-1 terminal outcomes count against the monthly quota whether or
	// not a retry follows; the retries themselves never do.
	if exec.Attempt == 1 {
		p.bumpQuota(ctx, task.OrganizationID)
	}
	if !retried {
		p.maybeNotify(ctx, task, exec, status, result)
	}
	p.maybeEnqueueCallback(ctx, task, exec, status, result)
}

// classify implements §4.4 step 4: success/failure evaluation order.
func classify(task *domain.Task, result Result) (domain.ExecutionStatus, *string) {
	if result.Err != nil {
		if result.TimedOut {
			return domain.ExecutionTimeout, strPtr(result.Err.Error())
		}
		return domain.ExecutionFailed, strPtr(result.Err.Error())
	}

	var ok bool
	if len(task.ExpectedStatusCodes) > 0 {
		ok = containsInt(task.ExpectedStatusCodes, result.StatusCode)
	} else {
		ok = result.StatusCode >= 200 && result.StatusCode < 300
	}
	if ok && task.ExpectedBodyPattern != nil && *task.ExpectedBodyPattern != "" {
		ok = strings.Contains(result.Body, *task.ExpectedBodyPattern)
	}
	if ok {
		return domain.ExecutionSuccess, nil
	}
	msg := fmt.Sprintf("unexpected response: status=%d", result.StatusCode)
	return domain.ExecutionFailed, &msg
}

func containsInt(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// maybeRetry implements §4.4 step 6. Only the synthetic callback-POST task
// is clamped to a single retry (§4.4 step 9); fan-out tasks keep the retry
// budget copied from endpoint.retry_attempts (§4.5).
func (p *Pool) maybeRetry(ctx context.Context, task *domain.Task, exec *domain.Execution, status domain.ExecutionStatus) bool {
	if !(status == domain.ExecutionFailed || status == domain.ExecutionTimeout) {
		return false
	}
	maxAttempts := task.RetryAttempts
	if task.Internal && task.FanoutEndpointID == nil && maxAttempts > 1 {
		maxAttempts = 1
	}
	if exec.Attempt > maxAttempts {
		return false
	}

	scheduledFor := time.Now().UTC().Add(p.backoff.delay(exec.Attempt))
	_, err := p.executions.Create(ctx, repository.CreateExecutionInput{
		TaskID:         task.ID,
		OrganizationID: task.OrganizationID,
		Queue:          task.Queue,
		ScheduledFor:   scheduledFor,
		Attempt:        exec.Attempt + 1,
		CallbackURL:    task.CallbackURL,
	})
	if err != nil {
		p.logger.Error("schedule retry", "execution_id", exec.ID, "error", err)
		return false
	}
	metrics.RetriesScheduledTotal.Inc()
	return true
}

func (p *Pool) bumpQuota(ctx context.Context, orgID string) {
	if p.quota == nil {
		return
	}
	ev, err := p.quota.Bump(ctx, orgID)
	if err != nil {
		p.logger.Error("bump quota", "org_id", orgID, "error", err)
		return
	}
	if ev == nil {
		return
	}
	kind := "warning"
	if ev.Reached {
		kind = "reached"
	}
	metrics.QuotaThresholdTotal.WithLabelValues(kind).Inc()
}

// maybeNotify implements §4.4 step 8 / §4.6 for task resources.
func (p *Pool) maybeNotify(ctx context.Context, task *domain.Task, exec *domain.Execution, status domain.ExecutionStatus, result Result) {
	if p.notifier == nil {
		return
	}
	detail := map[string]any{
		"task_id":      task.ID,
		"execution_id": exec.ID,
		"status_code":  result.StatusCode,
	}
	switch status {
	case domain.ExecutionFailed, domain.ExecutionTimeout:
		if err := p.notifier.NotifyFailure(ctx, task.OrganizationID, "task", task.ID, notifier.TaskOverrides(task), detail); err != nil {
			p.logger.Warn("notify failure", "task_id", task.ID, "error", err)
		}
	case domain.ExecutionSuccess:
		prev, found, err := p.executions.PreviousTerminalStatus(ctx, task.ID, exec.ID)
		if err != nil {
			p.logger.Error("load previous terminal status", "task_id", task.ID, "error", err)
			return
		}
		if found && (prev == domain.ExecutionFailed || prev == domain.ExecutionTimeout) {
			if err := p.notifier.NotifyRecovery(ctx, task.OrganizationID, "task", task.ID, notifier.TaskOverrides(task), detail); err != nil {
				p.logger.Warn("notify recovery", "task_id", task.ID, "error", err)
			}
		}
	}
}

// maybeEnqueueCallback implements §4.4 step 9: a best-effort POST to
// task.callback_url or execution.callback_url, delivered through the same
// pool as a synthetic internal one-shot task.
func (p *Pool) maybeEnqueueCallback(ctx context.Context, task *domain.Task, exec *domain.Execution, status domain.ExecutionStatus, result Result) {
	callbackURL := exec.CallbackURL
	if callbackURL == nil {
		callbackURL = task.CallbackURL
	}
	if callbackURL == nil {
		return
	}

	var statusCode *int
	if result.StatusCode != 0 {
		sc := result.StatusCode
		statusCode = &sc
	}
	body := fmt.Sprintf(`{"task_id":%q,"execution_id":%q,"status":%q,"status_code":%s,"duration_ms":%d}`,
		task.ID, exec.ID, status, jsonIntPtr(statusCode), result.Duration.Milliseconds())

	callbackTask := &domain.Task{
		OrganizationID: task.OrganizationID,
		Name:           "callback:" + task.Name,
		URL:            *callbackURL,
		Method:         "POST",
		Headers:        map[string]string{"Content-Type": "application/json"},
		Body:           &body,
		ScheduleType:   domain.ScheduleOnce,
		Enabled:        true,
		TimeoutMS:      10_000,
		RetryAttempts:  1,
		Internal:       true,
	}
	created, err := p.tasks.Create(ctx, callbackTask)
	if err != nil {
		p.logger.Error("create callback task", "execution_id", exec.ID, "error", err)
		return
	}
	now := time.Now().UTC()
	_, err = p.executions.Create(ctx, repository.CreateExecutionInput{
		TaskID:         created.ID,
		OrganizationID: created.OrganizationID,
		ScheduledFor:   now,
		Attempt:        1,
	})
	if err != nil {
		p.logger.Error("enqueue callback execution", "execution_id", exec.ID, "error", err)
	}
	p.Wake()
}

// handleInternalOutcome splits the two synthetic-task kinds. The callback
// POST gets at most one retry and no notifier feedback (§4.4 step 9).
// Fan-out tasks are real deliveries: they keep the endpoint's retry budget
// and, on a final failure or a recovery, notify through the endpoint's
// override fields (§4.5, §4.6). Neither kind bumps the quota counter.
func (p *Pool) handleInternalOutcome(ctx context.Context, task *domain.Task, exec *domain.Execution, status domain.ExecutionStatus, result Result) {
	if task.FanoutEndpointID == nil {
		p.maybeRetry(ctx, task, exec, status)
		return
	}
	retried := p.maybeRetry(ctx, task, exec, status)
	if !retried {
		p.maybeNotifyEndpoint(ctx, task, exec, status, result)
	}
}

// maybeNotifyEndpoint is the fan-out counterpart of maybeNotify, resolving
// overrides (and on_failure_url/on_recovery_url webhook targets) from the
// owning endpoint rather than the task.
func (p *Pool) maybeNotifyEndpoint(ctx context.Context, task *domain.Task, exec *domain.Execution, status domain.ExecutionStatus, result Result) {
	if p.notifier == nil || p.endpoints == nil {
		return
	}
	endpoint, err := p.endpoints.GetByID(ctx, *task.FanoutEndpointID, task.OrganizationID)
	if err != nil {
		p.logger.Error("load fan-out endpoint", "endpoint_id", *task.FanoutEndpointID, "task_id", task.ID, "error", err)
		return
	}
	detail := map[string]any{
		"endpoint_id":  endpoint.ID,
		"task_id":      task.ID,
		"execution_id": exec.ID,
		"status_code":  result.StatusCode,
	}
	switch status {
	case domain.ExecutionFailed, domain.ExecutionTimeout:
		if err := p.notifier.NotifyFailure(ctx, task.OrganizationID, "endpoint", endpoint.ID, notifier.EndpointFailureOverrides(endpoint), detail); err != nil {
			p.logger.Warn("notify endpoint failure", "endpoint_id", endpoint.ID, "error", err)
		}
	case domain.ExecutionSuccess:
		prev, found, err := p.executions.PreviousTerminalStatus(ctx, task.ID, exec.ID)
		if err != nil {
			p.logger.Error("load previous terminal status", "task_id", task.ID, "error", err)
			return
		}
		if found && (prev == domain.ExecutionFailed || prev == domain.ExecutionTimeout) {
			if err := p.notifier.NotifyRecovery(ctx, task.OrganizationID, "endpoint", endpoint.ID, notifier.EndpointRecoveryOverrides(endpoint), detail); err != nil {
				p.logger.Warn("notify endpoint recovery", "endpoint_id", endpoint.ID, "error", err)
			}
		}
	}
}

func jsonIntPtr(v *int) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%d", *v)
}

func strPtr(s string) *string { return &s }
