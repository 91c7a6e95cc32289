package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/repository"
)

type EndpointUsecase struct {
	endpoints repository.EndpointStore
}

func NewEndpointUsecase(endpoints repository.EndpointStore) *EndpointUsecase {
	return &EndpointUsecase{endpoints: endpoints}
}

func (u *EndpointUsecase) Create(ctx context.Context, e *domain.Endpoint) (*domain.Endpoint, error) {
	if e.Slug == "" {
		slug, err := randomSlug()
		if err != nil {
			return nil, fmt.Errorf("generate slug: %w", err)
		}
		e.Slug = slug
	}
	created, err := u.endpoints.Create(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("create endpoint: %w", err)
	}
	return created, nil
}

func (u *EndpointUsecase) GetByID(ctx context.Context, id, orgID string) (*domain.Endpoint, error) {
	return u.endpoints.GetByID(ctx, id, orgID)
}

func (u *EndpointUsecase) List(ctx context.Context, orgID string) ([]*domain.Endpoint, error) {
	return u.endpoints.List(ctx, orgID)
}

func (u *EndpointUsecase) Update(ctx context.Context, e *domain.Endpoint) (*domain.Endpoint, error) {
	updated, err := u.endpoints.Update(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("update endpoint: %w", err)
	}
	return updated, nil
}

func (u *EndpointUsecase) Delete(ctx context.Context, id, orgID string) error {
	if err := u.endpoints.Delete(ctx, id, orgID); err != nil {
		return fmt.Errorf("delete endpoint: %w", err)
	}
	return nil
}

func randomSlug() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
