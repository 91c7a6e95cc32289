package usecase

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/ErlanBelekov/taskrelay/internal/domain"
	"github.com/ErlanBelekov/taskrelay/internal/repository"
	"github.com/golang-jwt/jwt/v5"
)

const inviteTTL = 72 * time.Hour

// InviteUsecase covers organization membership at the interface level only
// (§3): no role/permission model beyond "is a member".
type InviteUsecase struct {
	invites repository.InviteStore
	members repository.MemberStore
	jwtKey  []byte
	baseURL string
}

func NewInviteUsecase(invites repository.InviteStore, members repository.MemberStore, jwtKey []byte, baseURL string) *InviteUsecase {
	return &InviteUsecase{invites: invites, members: members, jwtKey: jwtKey, baseURL: baseURL}
}

// Create signs a short-lived JWT carrying org_id/email, persists its hash so
// it can be looked up and revoked on accept, and returns the invite link.
func (u *InviteUsecase) Create(ctx context.Context, orgID, email string) (link string, err error) {
	expiresAt := time.Now().Add(inviteTTL)

	claims := jwt.MapClaims{
		"org_id": orgID,
		"email":  email,
		"iat":    time.Now().Unix(),
		"exp":    expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(u.jwtKey)
	if err != nil {
		return "", fmt.Errorf("sign invite token: %w", err)
	}

	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(signed)))
	if _, err := u.invites.Create(ctx, &domain.Invite{
		OrganizationID: orgID,
		Email:          email,
		TokenHash:      hash,
		ExpiresAt:      expiresAt,
	}); err != nil {
		return "", fmt.Errorf("persist invite: %w", err)
	}

	return u.baseURL + "/api/v1/invites/" + signed + "/accept", nil
}

// Accept verifies the JWT, loads the matching invite row by its token hash,
// and creates the member row. Accepting twice returns ErrInviteAlreadyAccepted.
func (u *InviteUsecase) Accept(ctx context.Context, rawToken string) (*domain.Member, error) {
	parsed, err := jwt.Parse(rawToken, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return u.jwtKey, nil
	})
	if err != nil || !parsed.Valid {
		return nil, domain.ErrInviteNotFound
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, domain.ErrInviteNotFound
	}
	email, _ := claims["email"].(string)
	orgID, _ := claims["org_id"].(string)

	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(rawToken)))
	inv, err := u.invites.GetByTokenHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if inv.AcceptedAt != nil {
		return nil, domain.ErrInviteAlreadyAccepted
	}
	if time.Now().After(inv.ExpiresAt) {
		return nil, domain.ErrInviteNotFound
	}

	member, err := u.members.Create(ctx, &domain.Member{OrganizationID: orgID, Email: email})
	if err != nil {
		return nil, fmt.Errorf("create member: %w", err)
	}
	if err := u.invites.MarkAccepted(ctx, inv.ID); err != nil {
		return nil, fmt.Errorf("mark invite accepted: %w", err)
	}
	return member, nil
}
