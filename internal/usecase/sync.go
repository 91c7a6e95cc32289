package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
)

// SyncResult summarizes one declarative sync pass (§6: PUT /api/v1/sync).
type SyncResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

// Sync reconciles the organization's task set against a declared list,
// keyed by task name: declared tasks are created or updated in place, and
// with deleteRemoved set, tasks absent from the declaration are soft-deleted.
// Internal (fan-out/callback) tasks are never touched.
func (u *TaskUsecase) Sync(ctx context.Context, orgID string, items []CreateTaskInput, deleteRemoved bool) (SyncResult, error) {
	var res SyncResult

	// Validate the whole declaration before writing anything, the same
	// all-or-nothing rule CreateBatch follows.
	desired := make([]*domain.Task, 0, len(items))
	names := make([]string, 0, len(items))
	for i := range items {
		in := items[i]
		in.OrganizationID = orgID
		t, err := u.buildTask(in)
		if err != nil {
			return res, fmt.Errorf("task %q: %w", in.Name, err)
		}
		desired = append(desired, t)
		names = append(names, t.Name)
	}

	anyEnabled := false
	for _, t := range desired {
		if t.Queue != nil {
			if err := u.queue.EnsureExists(ctx, orgID, *t.Queue); err != nil {
				return res, fmt.Errorf("ensure queue exists: %w", err)
			}
		}

		existing, err := u.tasks.GetByName(ctx, orgID, t.Name)
		switch {
		case err == nil:
			t.ID = existing.ID
			if _, err := u.tasks.Update(ctx, t); err != nil {
				return res, fmt.Errorf("sync update %q: %w", t.Name, err)
			}
			res.Updated++
		case errors.Is(err, domain.ErrTaskNotFound):
			if _, err := u.tasks.Create(ctx, t); err != nil {
				return res, fmt.Errorf("sync create %q: %w", t.Name, err)
			}
			res.Created++
		default:
			return res, fmt.Errorf("sync lookup %q: %w", t.Name, err)
		}
		anyEnabled = anyEnabled || t.Enabled
	}

	if deleteRemoved {
		n, err := u.tasks.SoftDeleteAllExcept(ctx, orgID, names)
		if err != nil {
			return res, fmt.Errorf("sync delete removed: %w", err)
		}
		res.Deleted = n
	}

	if anyEnabled {
		u.wake.Wake()
	}
	return res, nil
}
