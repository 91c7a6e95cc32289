package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/repository"
	"github.com/ErlanBelekov/taskrelay/internal/usecase"
)

// ---- fakes ----

type fakeTaskStore struct {
	created []*domain.Task
	nextID  int
}

func (s *fakeTaskStore) Create(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	s.nextID++
	cp := *t
	cp.ID = fakeID(s.nextID)
	s.created = append(s.created, &cp)
	return &cp, nil
}
func (s *fakeTaskStore) GetByID(ctx context.Context, id, orgID string) (*domain.Task, error) {
	for _, t := range s.created {
		if t.ID == id && t.OrganizationID == orgID {
			return t, nil
		}
	}
	return nil, domain.ErrTaskNotFound
}
func (s *fakeTaskStore) Update(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	for i, existing := range s.created {
		if existing.ID == t.ID {
			cp := *t
			s.created[i] = &cp
			return &cp, nil
		}
	}
	return t, nil
}
func (s *fakeTaskStore) SoftDelete(ctx context.Context, id, orgID string) error { return nil }
func (s *fakeTaskStore) List(ctx context.Context, in repository.ListTasksInput) ([]*domain.Task, error) {
	return s.created, nil
}
func (s *fakeTaskStore) ListDueTasks(ctx context.Context, now time.Time, horizon time.Duration, limit int) ([]*domain.Task, error) {
	return nil, nil
}
func (s *fakeTaskStore) AdvanceNextRunAt(ctx context.Context, taskID string, nextRunAt *time.Time, lastExecutionAt time.Time) error {
	return nil
}
func (s *fakeTaskStore) FindFanoutSibling(ctx context.Context, endpointID, forwardURL string) (*domain.Task, error) {
	return nil, domain.ErrTaskNotFound
}
func (s *fakeTaskStore) CancelPendingInQueue(ctx context.Context, orgID, queue string) (int, error) {
	return 0, nil
}
func (s *fakeTaskStore) GetByName(ctx context.Context, orgID, name string) (*domain.Task, error) {
	for _, t := range s.created {
		if t.OrganizationID == orgID && t.Name == name && t.DeletedAt == nil && !t.Internal {
			return t, nil
		}
	}
	return nil, domain.ErrTaskNotFound
}
func (s *fakeTaskStore) SoftDeleteAllExcept(ctx context.Context, orgID string, keep []string) (int, error) {
	kept := make(map[string]bool, len(keep))
	for _, name := range keep {
		kept[name] = true
	}
	now := time.Now()
	n := 0
	for _, t := range s.created {
		if t.OrganizationID == orgID && t.DeletedAt == nil && !t.Internal && !kept[t.Name] {
			t.DeletedAt = &now
			n++
		}
	}
	return n, nil
}

func fakeID(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return "task-" + string(letters[n%len(letters)])
}

type fakeQueueStore struct {
	ensured []string
}

func (s *fakeQueueStore) List(ctx context.Context, orgID string) ([]*domain.Queue, error) {
	return nil, nil
}
func (s *fakeQueueStore) SetPaused(ctx context.Context, orgID, name string, paused bool) error {
	return nil
}
func (s *fakeQueueStore) EnsureExists(ctx context.Context, orgID, name string) error {
	s.ensured = append(s.ensured, name)
	return nil
}

type fakeWaker struct{ woken int }

func (w *fakeWaker) Wake() { w.woken++ }

// ---- Create ----

func TestCreate_CronTask_DerivesNextRunAt(t *testing.T) {
	tasks := &fakeTaskStore{}
	queues := &fakeQueueStore{}
	waker := &fakeWaker{}
	uc := usecase.NewTaskUsecase(tasks, queues, waker)

	cron := "*/5 * * * *"
	created, err := uc.Create(context.Background(), usecase.CreateTaskInput{
		OrganizationID: "org-1",
		Name:           "ping",
		URL:            "https://x.test/ok",
		Method:         "GET",
		CronExpression: &cron,
		Enabled:        true,
		TimeoutMS:      5000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ScheduleType != domain.ScheduleCron {
		t.Errorf("ScheduleType = %v, want cron", created.ScheduleType)
	}
	if created.NextRunAt == nil {
		t.Fatal("want NextRunAt to be derived for a cron task")
	}
	if waker.woken != 1 {
		t.Errorf("woken = %d, want 1 for an enabled task", waker.woken)
	}
}

func TestCreate_OnceTask_UsesScheduledAt(t *testing.T) {
	tasks := &fakeTaskStore{}
	queues := &fakeQueueStore{}
	waker := &fakeWaker{}
	uc := usecase.NewTaskUsecase(tasks, queues, waker)

	at := time.Now().Add(time.Hour).UTC()
	created, err := uc.Create(context.Background(), usecase.CreateTaskInput{
		OrganizationID: "org-1",
		Name:           "one-shot",
		URL:            "https://x.test/ok",
		Method:         "POST",
		ScheduledAt:    &at,
		Enabled:        true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ScheduleType != domain.ScheduleOnce {
		t.Errorf("ScheduleType = %v, want once", created.ScheduleType)
	}
	if created.NextRunAt == nil || !created.NextRunAt.Equal(at) {
		t.Errorf("NextRunAt = %v, want %v", created.NextRunAt, at)
	}
}

func TestCreate_NeitherCronNorScheduledAt_ReturnsErrScheduleInvalid(t *testing.T) {
	uc := usecase.NewTaskUsecase(&fakeTaskStore{}, &fakeQueueStore{}, &fakeWaker{})

	_, err := uc.Create(context.Background(), usecase.CreateTaskInput{
		OrganizationID: "org-1",
		Name:           "broken",
		URL:            "https://x.test/ok",
		Method:         "GET",
	})
	if !errors.Is(err, domain.ErrScheduleInvalid) {
		t.Errorf("want ErrScheduleInvalid, got %v", err)
	}
}

func TestCreate_DisabledTask_DoesNotWake(t *testing.T) {
	cron := "0 * * * *"
	waker := &fakeWaker{}
	uc := usecase.NewTaskUsecase(&fakeTaskStore{}, &fakeQueueStore{}, waker)

	_, err := uc.Create(context.Background(), usecase.CreateTaskInput{
		OrganizationID: "org-1",
		Name:           "disabled",
		URL:            "https://x.test/ok",
		Method:         "GET",
		CronExpression: &cron,
		Enabled:        false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if waker.woken != 0 {
		t.Errorf("woken = %d, want 0 for a disabled task", waker.woken)
	}
}

func TestCreate_WithQueue_EnsuresQueueExists(t *testing.T) {
	cron := "0 * * * *"
	queues := &fakeQueueStore{}
	uc := usecase.NewTaskUsecase(&fakeTaskStore{}, queues, &fakeWaker{})

	queue := "emails"
	_, err := uc.Create(context.Background(), usecase.CreateTaskInput{
		OrganizationID: "org-1",
		Name:           "queued",
		URL:            "https://x.test/ok",
		Method:         "GET",
		CronExpression: &cron,
		Queue:          &queue,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queues.ensured) != 1 || queues.ensured[0] != "emails" {
		t.Errorf("ensured = %v, want [emails]", queues.ensured)
	}
}

// ---- CreateBatch ----

func TestCreateBatch_EmptyItems_ReturnsInvalidInput(t *testing.T) {
	uc := usecase.NewTaskUsecase(&fakeTaskStore{}, &fakeQueueStore{}, &fakeWaker{})

	_, err := uc.CreateBatch(context.Background(), "org-1", "emails", nil)
	if err == nil {
		t.Fatal("want an error for an empty batch")
	}
}

func TestCreateBatch_OverLimit_ReturnsInvalidInput(t *testing.T) {
	uc := usecase.NewTaskUsecase(&fakeTaskStore{}, &fakeQueueStore{}, &fakeWaker{})

	cron := "0 * * * *"
	items := make([]usecase.CreateTaskInput, 1001)
	for i := range items {
		items[i] = usecase.CreateTaskInput{Name: "t", URL: "https://x.test", Method: "GET", CronExpression: &cron}
	}

	_, err := uc.CreateBatch(context.Background(), "org-1", "emails", items)
	if err == nil {
		t.Fatal("want an error for a batch over 1000 items")
	}
}

func TestCreateBatch_AllItemsShareTheGivenQueue(t *testing.T) {
	tasks := &fakeTaskStore{}
	queues := &fakeQueueStore{}
	uc := usecase.NewTaskUsecase(tasks, queues, &fakeWaker{})

	cron := "0 * * * *"
	items := []usecase.CreateTaskInput{
		{Name: "a", URL: "https://x.test/a", Method: "GET", CronExpression: &cron},
		{Name: "b", URL: "https://x.test/b", Method: "GET", CronExpression: &cron},
	}

	created, err := uc.CreateBatch(context.Background(), "org-1", "emails", items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created %d tasks, want 2", len(created))
	}
	for _, task := range created {
		if task.Queue == nil || *task.Queue != "emails" {
			t.Errorf("task %q queue = %v, want emails", task.Name, task.Queue)
		}
	}
	if len(queues.ensured) != 1 {
		t.Errorf("want EnsureExists called once for the shared queue, got %d calls", len(queues.ensured))
	}
}

func TestCreateBatch_OneItemInvalid_FailsBeforeAnyWrite(t *testing.T) {
	tasks := &fakeTaskStore{}
	uc := usecase.NewTaskUsecase(tasks, &fakeQueueStore{}, &fakeWaker{})

	cron := "0 * * * *"
	items := []usecase.CreateTaskInput{
		{Name: "a", URL: "https://x.test/a", Method: "GET", CronExpression: &cron},
		{Name: "bad", URL: "https://x.test/b", Method: "GET"}, // no schedule
	}

	_, err := uc.CreateBatch(context.Background(), "org-1", "", items)
	if !errors.Is(err, domain.ErrScheduleInvalid) {
		t.Errorf("want wrapped ErrScheduleInvalid, got %v", err)
	}
	if len(tasks.created) != 0 {
		t.Errorf("want no writes when any item is invalid, got %d", len(tasks.created))
	}
}

// ---- Sync ----

func TestSync_CreatesNewAndUpdatesExistingByName(t *testing.T) {
	tasks := &fakeTaskStore{}
	uc := usecase.NewTaskUsecase(tasks, &fakeQueueStore{}, &fakeWaker{})

	cron := "0 * * * *"
	_, err := uc.Create(context.Background(), usecase.CreateTaskInput{
		OrganizationID: "org-1",
		Name:           "existing",
		URL:            "https://x.test/old",
		Method:         "GET",
		CronExpression: &cron,
		Enabled:        true,
	})
	if err != nil {
		t.Fatalf("seed task: %v", err)
	}

	res, err := uc.Sync(context.Background(), "org-1", []usecase.CreateTaskInput{
		{Name: "existing", URL: "https://x.test/new", Method: "POST", CronExpression: &cron, Enabled: true},
		{Name: "fresh", URL: "https://x.test/fresh", Method: "GET", CronExpression: &cron, Enabled: true},
	}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Created != 1 || res.Updated != 1 || res.Deleted != 0 {
		t.Errorf("result = %+v, want created=1 updated=1 deleted=0", res)
	}

	updated, err := tasks.GetByName(context.Background(), "org-1", "existing")
	if err != nil {
		t.Fatalf("lookup updated task: %v", err)
	}
	if updated.URL != "https://x.test/new" || updated.Method != "POST" {
		t.Errorf("existing task not rewritten in place: url=%q method=%q", updated.URL, updated.Method)
	}
}

func TestSync_DeleteRemovedPrunesUndeclaredTasks(t *testing.T) {
	tasks := &fakeTaskStore{}
	uc := usecase.NewTaskUsecase(tasks, &fakeQueueStore{}, &fakeWaker{})

	cron := "0 * * * *"
	for _, name := range []string{"keep", "drop"} {
		if _, err := uc.Create(context.Background(), usecase.CreateTaskInput{
			OrganizationID: "org-1",
			Name:           name,
			URL:            "https://x.test/" + name,
			Method:         "GET",
			CronExpression: &cron,
			Enabled:        true,
		}); err != nil {
			t.Fatalf("seed %q: %v", name, err)
		}
	}

	res, err := uc.Sync(context.Background(), "org-1", []usecase.CreateTaskInput{
		{Name: "keep", URL: "https://x.test/keep", Method: "GET", CronExpression: &cron, Enabled: true},
	}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Updated != 1 || res.Deleted != 1 {
		t.Errorf("result = %+v, want updated=1 deleted=1", res)
	}
	if _, err := tasks.GetByName(context.Background(), "org-1", "drop"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("want %q soft-deleted, got err=%v", "drop", err)
	}
}

func TestSync_InvalidItem_WritesNothing(t *testing.T) {
	tasks := &fakeTaskStore{}
	uc := usecase.NewTaskUsecase(tasks, &fakeQueueStore{}, &fakeWaker{})

	cron := "0 * * * *"
	_, err := uc.Sync(context.Background(), "org-1", []usecase.CreateTaskInput{
		{Name: "ok", URL: "https://x.test/ok", Method: "GET", CronExpression: &cron},
		{Name: "bad", URL: "https://x.test/bad", Method: "GET"}, // no schedule
	}, false)
	if !errors.Is(err, domain.ErrScheduleInvalid) {
		t.Fatalf("want ErrScheduleInvalid, got %v", err)
	}
	if len(tasks.created) != 0 {
		t.Errorf("want no writes when the declaration is invalid, got %d", len(tasks.created))
	}
}
