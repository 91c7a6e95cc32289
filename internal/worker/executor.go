package worker

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/requestid"
	"github.com/ErlanBelekov/taskrelay/internal/ssrf"
)

// Executor performs the outbound HTTP call for one execution attempt (§4.4
// steps 2-3). Grounded on the teacher's scheduler.Executor, generalized to
// the task/execution domain and fitted with the SSRF guard the teacher
// never needed (it only ever called operator-configured job URLs).
type Executor struct {
	client             *http.Client
	logger             *slog.Logger
	maxResponseCapture int
}

func NewExecutor(logger *slog.Logger, guard *ssrf.Guard, maxResponseCapture int) *Executor {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &Executor{
		client: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext:         guard.DialContext(dialer),
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		logger:             logger.With("component", "executor"),
		maxResponseCapture: maxResponseCapture,
	}
}

// Result is the outcome of one dispatch (§4.4 step 3): status code, body
// (already truncated to maxResponseCapture), wall duration, and transport
// error if the request never completed.
type Result struct {
	StatusCode int
	Body       string
	Truncated  bool
	Duration   time.Duration
	Err        error
	TimedOut   bool
}

// Run dispatches the request under task.TimeoutMS and classifies the
// outcome. It never returns an error itself; transport failures and
// timeouts are reported on Result so the caller can write them to the
// execution row (§7: outbound errors never surface to the API caller).
func (e *Executor) Run(ctx context.Context, t *domain.Task) Result {
	start := time.Now()

	timeout := time.Duration(t.TimeoutMS) * time.Millisecond
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if t.Body != nil {
		bodyReader = strings.NewReader(*t.Body)
	}

	req, err := http.NewRequestWithContext(reqCtx, t.Method, t.URL, bodyReader)
	if err != nil {
		return Result{Err: fmt.Errorf("build request: %w", err), Duration: time.Since(start)}
	}
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}

	reqID := requestid.New()
	req.Header.Set("X-Request-ID", reqID)
	reqCtx = requestid.WithRequestID(reqCtx, reqID)

	e.logger.InfoContext(reqCtx, "dispatching task execution",
		"task_id", t.ID, "method", t.Method, "url", t.URL)

	resp, err := e.client.Do(req)
	if err != nil {
		duration := time.Since(start)
		timedOut := reqCtx.Err() == context.DeadlineExceeded
		e.logger.WarnContext(reqCtx, "task execution transport error",
			"task_id", t.ID, "error", err, "timed_out", timedOut, "duration", duration)
		return Result{Err: err, Duration: duration, TimedOut: timedOut}
	}
	defer func() { _ = resp.Body.Close() }()

	limited := io.LimitReader(resp.Body, int64(e.maxResponseCapture)+1)
	raw, readErr := io.ReadAll(limited)
	truncated := len(raw) > e.maxResponseCapture
	if truncated {
		raw = raw[:e.maxResponseCapture]
	}
	_, _ = io.Copy(io.Discard, resp.Body) // drain so the connection is reusable

	duration := time.Since(start)
	if readErr != nil {
		e.logger.WarnContext(reqCtx, "task execution body read error",
			"task_id", t.ID, "error", readErr, "duration", duration)
	}
	e.logger.InfoContext(reqCtx, "task execution responded",
		"task_id", t.ID, "status", resp.StatusCode, "duration", duration)

	return Result{
		StatusCode: resp.StatusCode,
		Body:       string(raw),
		Truncated:  truncated,
		Duration:   duration,
	}
}
