package apikeycache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/apikeycache"
	"github.com/ErlanBelekov/taskrelay/internal/domain"
)

type fakeAPIKeyStore struct {
	getByKeyID    func(ctx context.Context, keyID string) (*domain.APIKey, error)
	touchLastUsed func(ctx context.Context, id string) error
	touchCalls    int
}

func (s *fakeAPIKeyStore) Create(ctx context.Context, k *domain.APIKey) (*domain.APIKey, error) {
	return k, nil
}
func (s *fakeAPIKeyStore) GetByKeyID(ctx context.Context, keyID string) (*domain.APIKey, error) {
	return s.getByKeyID(ctx, keyID)
}
func (s *fakeAPIKeyStore) List(ctx context.Context, orgID string) ([]*domain.APIKey, error) {
	return nil, nil
}
func (s *fakeAPIKeyStore) Delete(ctx context.Context, id, orgID string) (string, error) {
	return "", nil
}
func (s *fakeAPIKeyStore) TouchLastUsed(ctx context.Context, id string) error {
	s.touchCalls++
	if s.touchLastUsed != nil {
		return s.touchLastUsed(ctx, id)
	}
	return nil
}

func TestGet_MissesLocalThenHitsStore(t *testing.T) {
	calls := 0
	store := &fakeAPIKeyStore{
		getByKeyID: func(_ context.Context, keyID string) (*domain.APIKey, error) {
			calls++
			return &domain.APIKey{ID: "k1", KeyID: keyID}, nil
		},
	}
	c := apikeycache.New(nil, store, time.Minute, time.Minute)

	k, err := c.Get(context.Background(), "kid-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.ID != "k1" {
		t.Errorf("got %q, want k1", k.ID)
	}
	if calls != 1 {
		t.Fatalf("store called %d times, want 1", calls)
	}

	// Second call within TTL must hit L1, not the store.
	if _, err := c.Get(context.Background(), "kid-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("store called %d times after cache hit, want 1", calls)
	}
}

func TestGet_StoreError_Propagates(t *testing.T) {
	wantErr := errors.New("db down")
	store := &fakeAPIKeyStore{
		getByKeyID: func(context.Context, string) (*domain.APIKey, error) { return nil, wantErr },
	}
	c := apikeycache.New(nil, store, time.Minute, time.Minute)

	_, err := c.Get(context.Background(), "kid-1")
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want %v", err, wantErr)
	}
}

func TestTouchLastUsed_Debounced(t *testing.T) {
	store := &fakeAPIKeyStore{}
	c := apikeycache.New(nil, store, time.Minute, time.Hour)
	k := &domain.APIKey{ID: "k1"}

	c.TouchLastUsed(k)
	c.TouchLastUsed(k)
	c.TouchLastUsed(k)

	// TouchLastUsed dispatches asynchronously; give the goroutine a chance.
	time.Sleep(20 * time.Millisecond)
	if store.touchCalls != 1 {
		t.Errorf("touchCalls = %d, want 1 (debounced within window)", store.touchCalls)
	}
}

func TestInvalidate_ForcesStoreRefetch(t *testing.T) {
	calls := 0
	store := &fakeAPIKeyStore{
		getByKeyID: func(_ context.Context, keyID string) (*domain.APIKey, error) {
			calls++
			return &domain.APIKey{ID: "k1", KeyID: keyID}, nil
		},
	}
	c := apikeycache.New(nil, store, time.Minute, time.Minute)

	if _, err := c.Get(context.Background(), "kid-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.Invalidate(context.Background(), "kid-1")
	if _, err := c.Get(context.Background(), "kid-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls != 2 {
		t.Errorf("store called %d times, want 2 (cache invalidated between)", calls)
	}
}
