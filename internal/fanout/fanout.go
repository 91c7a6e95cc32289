// Package fanout implements C8: receiving an inbound webhook at /in/{slug}
// and fanning it out to an endpoint's forward_urls as synthetic one-shot
// tasks (§4.5), plus replaying a previously-received event. Grounded on the
// teacher's job-trigger handler (the closest analogue to "one inbound call
// spawns N dispatchable rows"), generalized to persist the inbound payload
// and reuse sibling tasks across repeated deliveries.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/apperror"
	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/repository"
)

// Waker lets fan-out nudge idle workers once it has enqueued pending
// executions, instead of waiting out a full poll interval.
type Waker interface {
	Wake()
}

type Service struct {
	endpoints repository.EndpointStore
	events    repository.InboundEventStore
	tasks     repository.TaskStore
	execs     repository.ExecutionStore
	waker     Waker
	logger    *slog.Logger
}

func New(endpoints repository.EndpointStore, events repository.InboundEventStore, tasks repository.TaskStore, execs repository.ExecutionStore, waker Waker, logger *slog.Logger) *Service {
	return &Service{
		endpoints: endpoints,
		events:    events,
		tasks:     tasks,
		execs:     execs,
		waker:     waker,
		logger:    logger.With("component", "fanout"),
	}
}

// ReceiveInput is the inbound delivery, already read off the HTTP request by
// the transport layer.
type ReceiveInput struct {
	Slug     string
	Method   string
	Headers  http.Header
	Body     []byte
	SourceIP string
}

// Receive implements §4.5 steps 1-5.
func (s *Service) Receive(ctx context.Context, in ReceiveInput) (*domain.InboundEvent, error) {
	endpoint, err := s.endpoints.GetBySlug(ctx, in.Slug)
	if err != nil {
		return nil, apperror.WithDetails(apperror.KindNotFound, "unknown endpoint", map[string]string{"slug": in.Slug})
	}
	if !endpoint.Enabled {
		return nil, apperror.WithDetails(apperror.KindNotFound, "endpoint disabled", map[string]string{"slug": in.Slug})
	}

	var bodyPtr *string
	if len(in.Body) > 0 {
		b := string(in.Body)
		bodyPtr = &b
	}

	event, err := s.events.Create(ctx, &domain.InboundEvent{
		EndpointID: endpoint.ID,
		Method:     in.Method,
		Headers:    filterHeaders(in.Headers),
		Body:       bodyPtr,
		SourceIP:   in.SourceIP,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("fanout: persist inbound event: %w", err)
	}

	taskIDs, err := s.dispatch(ctx, endpoint, bodyPtr)
	if err != nil {
		return nil, err
	}
	if err := s.events.SetTaskIDs(ctx, event.ID, taskIDs); err != nil {
		return nil, fmt.Errorf("fanout: set task ids: %w", err)
	}
	event.TaskIDs = taskIDs

	if s.waker != nil {
		s.waker.Wake()
	}
	return event, nil
}

// dispatch implements §4.5 step 3-4: one synthetic task per forward_url,
// reusing a prior fan-out sibling task when one already exists for the
// (endpoint, forward_url) pair, and a pending execution for each.
func (s *Service) dispatch(ctx context.Context, endpoint *domain.Endpoint, body *string) ([]string, error) {
	taskIDs := make([]string, 0, len(endpoint.ForwardURLs))
	now := time.Now().UTC()

	for _, forwardURL := range endpoint.ForwardURLs {
		task, err := s.resolveTask(ctx, endpoint, forwardURL, body)
		if err != nil {
			s.logger.Error("resolve fan-out task", "endpoint_id", endpoint.ID, "forward_url", forwardURL, "error", err)
			continue
		}
		taskIDs = append(taskIDs, task.ID)

		var queue *string
		if endpoint.UseQueue {
			q := endpoint.Slug
			queue = &q
		}
		if _, err := s.execs.Create(ctx, repository.CreateExecutionInput{
			TaskID:         task.ID,
			OrganizationID: endpoint.OrganizationID,
			Queue:          queue,
			ScheduledFor:   now,
			Attempt:        1,
		}); err != nil {
			s.logger.Error("enqueue fan-out execution", "task_id", task.ID, "error", err)
		}
	}
	return taskIDs, nil
}

func (s *Service) resolveTask(ctx context.Context, endpoint *domain.Endpoint, forwardURL string, body *string) (*domain.Task, error) {
	if sibling, err := s.tasks.FindFanoutSibling(ctx, endpoint.ID, forwardURL); err == nil && sibling != nil {
		return sibling, nil
	}

	method := "POST"
	if endpoint.ForwardMethod != nil && *endpoint.ForwardMethod != "" {
		method = *endpoint.ForwardMethod
	}
	taskBody := body
	if endpoint.ForwardBody != nil {
		taskBody = endpoint.ForwardBody
	}

	return s.tasks.Create(ctx, &domain.Task{
		OrganizationID:    endpoint.OrganizationID,
		Name:              fmt.Sprintf("fanout:%s->%s", endpoint.Slug, forwardURL),
		URL:               forwardURL,
		Method:            method,
		Headers:           endpoint.ForwardHeaders,
		Body:              taskBody,
		ScheduleType:      domain.ScheduleOnce,
		Enabled:           true,
		TimeoutMS:         30_000,
		RetryAttempts:     endpoint.RetryAttempts,
		NotifyOnFailure:   endpoint.NotifyOnFailure,
		NotifyOnRecovery:  endpoint.NotifyOnRecovery,
		Internal:          true,
		FanoutEndpointID:  &endpoint.ID,
		FanoutForwardURL:  &forwardURL,
	})
}

// EventByID loads a previously recorded inbound event for replay.
func (s *Service) EventByID(ctx context.Context, id string) (*domain.InboundEvent, error) {
	return s.events.GetByID(ctx, id)
}

// Replay re-inserts one pending execution per task_id on a previously
// received event (§4.5: "Replay contract").
func (s *Service) Replay(ctx context.Context, event *domain.InboundEvent, orgID string) (int, error) {
	if _, err := s.endpoints.GetByID(ctx, event.EndpointID, orgID); err != nil {
		return 0, apperror.New(apperror.KindNotFound, "inbound event not found")
	}

	if len(event.TaskIDs) == 0 {
		return 0, apperror.New(apperror.KindInvalidInput, "no_tasks")
	}

	now := time.Now().UTC()
	count := 0
	for _, taskID := range event.TaskIDs {
		task, err := s.tasks.GetByID(ctx, taskID, orgID)
		if err != nil || task.IsDeleted() {
			continue
		}
		if _, err := s.execs.Create(ctx, repository.CreateExecutionInput{
			TaskID:         task.ID,
			OrganizationID: orgID,
			Queue:          task.Queue,
			ScheduledFor:   now,
			Attempt:        1,
		}); err != nil {
			s.logger.Error("replay enqueue execution", "task_id", task.ID, "error", err)
			continue
		}
		count++
	}
	if count == 0 {
		return 0, apperror.New(apperror.KindInvalidInput, "no_tasks")
	}
	if s.waker != nil {
		s.waker.Wake()
	}
	return count, nil
}

// filterHeaders drops the authorization-family headers before persisting the
// inbound event (§4.5 step 2).
func filterHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if strings.HasPrefix(strings.ToLower(k), "authorization") || strings.EqualFold(k, "cookie") {
			continue
		}
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
