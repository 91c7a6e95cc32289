package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ErlanBelekov/taskrelay/internal/apikeycache"
	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/repository"
)

type APIKeyUsecase struct {
	keys  repository.APIKeyStore
	cache *apikeycache.Cache
}

func NewAPIKeyUsecase(keys repository.APIKeyStore, cache *apikeycache.Cache) *APIKeyUsecase {
	return &APIKeyUsecase{keys: keys, cache: cache}
}

// Create mints a new key_id.secret pair. Only the SHA-256 of the secret is
// persisted; the full secret is returned exactly once.
func (u *APIKeyUsecase) Create(ctx context.Context, orgID, name string) (k *domain.APIKey, secret string, err error) {
	keyID, err := randomHex(8)
	if err != nil {
		return nil, "", fmt.Errorf("generate key id: %w", err)
	}
	rawSecret, err := randomHex(24)
	if err != nil {
		return nil, "", fmt.Errorf("generate secret: %w", err)
	}

	hash := sha256.Sum256([]byte(rawSecret))
	created, err := u.keys.Create(ctx, &domain.APIKey{
		OrganizationID: orgID,
		Name:           name,
		KeyID:          keyID,
		KeyHash:        hex.EncodeToString(hash[:]),
	})
	if err != nil {
		return nil, "", fmt.Errorf("create api key: %w", err)
	}
	return created, keyID + "." + rawSecret, nil
}

func (u *APIKeyUsecase) List(ctx context.Context, orgID string) ([]*domain.APIKey, error) {
	return u.keys.List(ctx, orgID)
}

func (u *APIKeyUsecase) Delete(ctx context.Context, id, orgID string) error {
	keyID, err := u.keys.Delete(ctx, id, orgID)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	u.cache.Invalidate(ctx, keyID)
	return nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
