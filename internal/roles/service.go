package roles

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/stockroom/stockroom/internal/platform/httpx"
)

// ErrDuplicateName indicates another active role already uses the name.
var ErrDuplicateName = fmt.Errorf("role name already in use: %w", httpx.ErrDuplicate)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListActive(ctx context.Context) ([]Role, error)
	Get(ctx context.Context, id uuid.UUID) (Role, error)
	Create(ctx context.Context, role Role) (Role, error)
	Update(ctx context.Context, role Role) (Role, error)
}

// Service handles role business logic.
type Service struct {
	repo  RepositoryPort
	clock func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, clock: func() time.Time { return time.Now().UTC() }}
}

// ListRoles returns active roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListActive(ctx)
}

// GetRole returns a role regardless of its active flag.
func (s *Service) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	return s.repo.Get(ctx, id)
}

// CreateRole inserts a role owned by actor.
func (s *Service) CreateRole(ctx context.Context, actor uuid.UUID, in CreateInput) (Role, error) {
	name, err := normalizeName(in.Name)
	if err != nil {
		return Role{}, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return s.repo.Create(ctx, Role{
		ID:        uuid.New(),
		Name:      name,
		IsActive:  active,
		CreatedAt: s.clock(),
		CreatedBy: actor,
	})
}

// UpdateRole patches a role.
func (s *Service) UpdateRole(ctx context.Context, actor uuid.UUID, id uuid.UUID, in UpdateInput) (Role, error) {
	role, err := s.repo.Get(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if in.Name != nil {
		name, err := normalizeName(*in.Name)
		if err != nil {
			return Role{}, err
		}
		role.Name = name
	}
	if in.IsActive != nil {
		role.IsActive = *in.IsActive
	}
	now := s.clock()
	role.UpdatedAt = &now
	role.UpdatedBy = &actor
	return s.repo.Update(ctx, role)
}

// DeactivateRole soft-deletes a role. Its assignments and claims stop
// counting immediately because resolution ignores inactive roles.
func (s *Service) DeactivateRole(ctx context.Context, actor uuid.UUID, id uuid.UUID) error {
	inactive := false
	_, err := s.UpdateRole(ctx, actor, id, UpdateInput{IsActive: &inactive})
	return err
}

// normalizeName trims and NFC-composes name so equivalent spellings hit the
// same unique index entry.
func normalizeName(name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" || utf8.RuneCountInString(name) > 255 {
		return "", fmt.Errorf("%w: role name must be 1-255 characters", httpx.ErrValidation)
	}
	return name, nil
}
