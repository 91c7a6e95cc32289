package quota_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/quota"
)

// ---- fakes ----

type fakeOrgStore struct {
	org             *domain.Organization
	bumpedBy        int
	warningMarked   bool
	reachedMarked   bool
	bumpErr         error
	getErr          error
}

func (s *fakeOrgStore) Create(ctx context.Context, o *domain.Organization) (*domain.Organization, error) {
	return o, nil
}

func (s *fakeOrgStore) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.org, nil
}

func (s *fakeOrgStore) UpdateNotifyConfig(ctx context.Context, id string, notifyOnFailure, notifyOnRecovery bool, email, webhookURL *string) error {
	return nil
}

func (s *fakeOrgStore) BumpMonthlyCounter(ctx context.Context, orgID string, delta int) (int, error) {
	if s.bumpErr != nil {
		return 0, s.bumpErr
	}
	s.org.ExecCount += delta
	s.bumpedBy += delta
	return s.org.ExecCount, nil
}

func (s *fakeOrgStore) MarkWarningSent(ctx context.Context, orgID string) error {
	s.warningMarked = true
	now := time.Now()
	s.org.WarningSentAt = &now
	return nil
}

func (s *fakeOrgStore) MarkReachedSent(ctx context.Context, orgID string) error {
	s.reachedMarked = true
	now := time.Now()
	s.org.ReachedSentAt = &now
	return nil
}

func (s *fakeOrgStore) ResetMonthlyCounters(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

var testLimits = quota.Limits{Free: 100, Pro: 1000}

// ---- Bump ----

func TestBump_NoThreshold_ReturnsNilEvent(t *testing.T) {
	store := &fakeOrgStore{org: &domain.Organization{ID: "org-1", Tier: domain.TierFree, ExecCount: 10}}
	c := quota.NewCounter(store, testLimits)

	ev, err := c.Bump(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev != nil {
		t.Errorf("want nil event below threshold, got %+v", ev)
	}
	if store.bumpedBy != 1 {
		t.Errorf("bumpedBy = %d, want 1", store.bumpedBy)
	}
}

func TestBump_CrossingWarningThreshold_FiresOnce(t *testing.T) {
	store := &fakeOrgStore{org: &domain.Organization{ID: "org-1", Tier: domain.TierFree, ExecCount: 79}}
	c := quota.NewCounter(store, testLimits)

	ev, err := c.Bump(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil || !ev.Warning || ev.Reached {
		t.Fatalf("want warning event, got %+v", ev)
	}
	if !store.warningMarked {
		t.Error("expected MarkWarningSent to be called")
	}

	// A subsequent bump must not re-fire the warning (already sent this month).
	ev2, err := c.Bump(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev2 != nil {
		t.Errorf("want no second warning event, got %+v", ev2)
	}
}

func TestBump_CrossingReachedThreshold_FiresReachedNotWarning(t *testing.T) {
	store := &fakeOrgStore{org: &domain.Organization{ID: "org-1", Tier: domain.TierFree, ExecCount: 99}}
	c := quota.NewCounter(store, testLimits)

	ev, err := c.Bump(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev == nil || !ev.Reached || ev.Warning {
		t.Fatalf("want reached event, got %+v", ev)
	}
	if !store.reachedMarked {
		t.Error("expected MarkReachedSent to be called")
	}
}

func TestBump_ZeroLimit_NeverFires(t *testing.T) {
	store := &fakeOrgStore{org: &domain.Organization{ID: "org-1", Tier: domain.TierFree, ExecCount: 500}}
	c := quota.NewCounter(store, quota.Limits{Free: 0, Pro: 0})

	ev, err := c.Bump(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev != nil {
		t.Errorf("want nil event with an unlimited tier, got %+v", ev)
	}
}

func TestBump_RepoError_Propagates(t *testing.T) {
	wantErr := errors.New("db down")
	store := &fakeOrgStore{getErr: wantErr}
	c := quota.NewCounter(store, testLimits)

	_, err := c.Bump(context.Background(), "org-1")
	if !errors.Is(err, wantErr) {
		t.Errorf("want wrapped repo error, got %v", err)
	}
}

// ---- Allow ----

func TestAllow_UnderLimit_True(t *testing.T) {
	store := &fakeOrgStore{org: &domain.Organization{ID: "org-1", Tier: domain.TierFree, ExecCount: 50}}
	c := quota.NewCounter(store, testLimits)

	ok, err := c.Allow(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("want Allow=true under limit")
	}
}

func TestAllow_AtLimit_False(t *testing.T) {
	store := &fakeOrgStore{org: &domain.Organization{ID: "org-1", Tier: domain.TierFree, ExecCount: 100}}
	c := quota.NewCounter(store, testLimits)

	ok, err := c.Allow(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("want Allow=false at limit")
	}
}

func TestAllow_ZeroLimit_AlwaysTrue(t *testing.T) {
	store := &fakeOrgStore{org: &domain.Organization{ID: "org-1", Tier: domain.TierPro, ExecCount: 999999}}
	c := quota.NewCounter(store, quota.Limits{Free: 100, Pro: 0})

	ok, err := c.Allow(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("want Allow=true with unlimited pro tier")
	}
}
