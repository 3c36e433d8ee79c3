package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/stockroom/stockroom/internal/rbac"
	"github.com/stockroom/stockroom/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	loader *rbac.PrincipalLoader
	codec  *Codec
}

// NewService constructs a new Service. loader should read claims straight
// from storage so freshly issued tokens are never stale.
func NewService(repo Repository, loader *rbac.PrincipalLoader, codec *Codec) *Service {
	return &Service{repo: repo, loader: loader, codec: codec}
}

// Authenticate validates email/password credentials. Unknown, inactive and
// wrong-password attempts are indistinguishable.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (Token, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return Token{}, err
	}
	token, err := s.IssueToken(ctx, user.ID)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: token, TokenType: "bearer"}, nil
}

// IssueToken snapshots the current roles and claims of userID into a signed token.
func (s *Service) IssueToken(ctx context.Context, userID uuid.UUID) (string, error) {
	p, err := s.loader.Load(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("auth: issue token: %w", err)
	}
	return s.codec.Encode(p.Snapshot())
}

// PrincipalFromToken verifies token and rebuilds the principal it carries.
func (s *Service) PrincipalFromToken(token string) (rbac.Principal, error) {
	return s.codec.PrincipalFromToken(token)
}

// Inspect verifies token and describes its subject. The account must still exist.
func (s *Service) Inspect(ctx context.Context, token string) (TokenInfo, error) {
	snap, err := s.codec.Decode(token)
	if err != nil {
		return TokenInfo{}, err
	}
	user, err := s.repo.GetUser(ctx, snap.SubjectID)
	if err != nil {
		return TokenInfo{}, fmt.Errorf("%w: unknown subject", rbac.ErrInvalidToken)
	}
	info := TokenInfo{
		ID:          snap.SubjectID,
		Email:       user.Email,
		FullName:    user.FullName,
		IsActive:    snap.IsActive,
		IsSuperuser: snap.IsSuperuser,
		Roles:       make([]TokenRole, 0, len(snap.Roles)),
		Claims:      snap.Claims,
		IssuedAt:    snap.IssuedAt,
		ExpiresAt:   snap.ExpiresAt,
	}
	if info.Claims == nil {
		info.Claims = map[string][]string{}
	}
	for _, r := range snap.Roles {
		info.Roles = append(info.Roles, TokenRole{ID: r.ID, Name: r.Name})
	}
	return info, nil
}

var _ rbac.TokenDecoder = (*Service)(nil)
