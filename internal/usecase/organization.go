package usecase

import (
	"context"
	"fmt"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/repository"
)

type OrganizationUsecase struct {
	orgs repository.OrganizationStore
}

func NewOrganizationUsecase(orgs repository.OrganizationStore) *OrganizationUsecase {
	return &OrganizationUsecase{orgs: orgs}
}

func (u *OrganizationUsecase) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	return u.orgs.GetByID(ctx, id)
}

func (u *OrganizationUsecase) UpdateNotifyConfig(ctx context.Context, id string, notifyOnFailure, notifyOnRecovery bool, email, webhookURL *string) error {
	if err := u.orgs.UpdateNotifyConfig(ctx, id, notifyOnFailure, notifyOnRecovery, email, webhookURL); err != nil {
		return fmt.Errorf("update notify config: %w", err)
	}
	return nil
}
