package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Repository is the read/write persistence used by Service.
type Repository interface {
	Store
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetRoleClaim(ctx context.Context, id uuid.UUID) (RoleClaim, error)
	ListRoleClaims(ctx context.Context, roleID *uuid.UUID) ([]RoleClaim, error)
	GetAssignment(ctx context.Context, id uuid.UUID) (UserRoleAssignment, error)
	ListActiveAssignmentsByUser(ctx context.Context, userID uuid.UUID) ([]UserRoleAssignment, error)
	ListActiveAssignmentsByRole(ctx context.Context, roleID uuid.UUID) ([]UserRoleAssignment, error)
	PurgeInactiveRoleClaims(ctx context.Context, before time.Time) (int64, error)
}

// TxRepository exposes the operations that run inside a transaction. Finder
// methods lock the rows they return.
type TxRepository interface {
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
	GetRole(ctx context.Context, id uuid.UUID) (Role, error)
	GetRoleClaimForUpdate(ctx context.Context, id uuid.UUID) (RoleClaim, error)
	FindRoleClaims(ctx context.Context, roleID uuid.UUID, claim Claim) ([]RoleClaim, error)
	InsertRoleClaim(ctx context.Context, c RoleClaim) (RoleClaim, error)
	UpdateRoleClaim(ctx context.Context, c RoleClaim) (RoleClaim, error)
	DeleteRoleClaim(ctx context.Context, id uuid.UUID) error
	GetAssignmentForUpdate(ctx context.Context, id uuid.UUID) (UserRoleAssignment, error)
	FindActiveAssignment(ctx context.Context, userID, roleID uuid.UUID) (UserRoleAssignment, error)
	InsertAssignment(ctx context.Context, a UserRoleAssignment) (UserRoleAssignment, error)
	UpdateAssignment(ctx context.Context, a UserRoleAssignment) (UserRoleAssignment, error)
}

// CacheInvalidator drops cached claim sets after a grant changes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// RoleClaimInput describes a claim grant to create.
type RoleClaimInput struct {
	RoleID   uuid.UUID
	Type     string
	Value    string
	IsActive *bool
}

// RoleClaimUpdate replaces the identity of a grant; IsActive is optional.
type RoleClaimUpdate struct {
	RoleID   uuid.UUID
	Type     string
	Value    string
	IsActive *bool
}

// Service orchestrates role-claim and user-role administration.
type Service struct {
	repo   Repository
	cache  CacheInvalidator
	logger *slog.Logger
	clock  func() time.Time
}

// NewService constructs a Service. cache may be nil.
func NewService(repo Repository, cache CacheInvalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// GetRoleClaim fetches a grant by ID.
func (s *Service) GetRoleClaim(ctx context.Context, id uuid.UUID) (RoleClaim, error) {
	return s.repo.GetRoleClaim(ctx, id)
}

// ListRoleClaims lists grants, optionally filtered to one role.
func (s *Service) ListRoleClaims(ctx context.Context, roleID *uuid.UUID) ([]RoleClaim, error) {
	return s.repo.ListRoleClaims(ctx, roleID)
}

// CreateRoleClaim grants a claim to a role. An active duplicate is a
// conflict; an inactive duplicate is reactivated instead of inserting a row.
func (s *Service) CreateRoleClaim(ctx context.Context, actor uuid.UUID, in RoleClaimInput) (RoleClaim, error) {
	claim, err := NewClaim(in.Type, in.Value)
	if err != nil {
		return RoleClaim{}, err
	}
	var out RoleClaim
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetRole(ctx, in.RoleID); err != nil {
			return fmt.Errorf("role %s: %w", in.RoleID, err)
		}
		existing, err := tx.FindRoleClaims(ctx, in.RoleID, claim)
		if err != nil {
			return err
		}
		var dormant *RoleClaim
		for i := range existing {
			if existing[i].IsActive {
				return fmt.Errorf("claim %s already granted to role %s: %w", claim, in.RoleID, ErrConflict)
			}
			if dormant == nil {
				dormant = &existing[i]
			}
		}
		now := s.clock()
		if dormant != nil {
			dormant.IsActive = true
			dormant.UpdatedAt = &now
			dormant.UpdatedBy = &actor
			out, err = tx.UpdateRoleClaim(ctx, *dormant)
			return err
		}
		active := true
		if in.IsActive != nil {
			active = *in.IsActive
		}
		out, err = tx.InsertRoleClaim(ctx, RoleClaim{
			ID:        uuid.New(),
			RoleID:    in.RoleID,
			Type:      claim.Type,
			Value:     claim.Value,
			IsActive:  active,
			CreatedAt: now,
			CreatedBy: actor,
		})
		return err
	})
	if err != nil {
		return RoleClaim{}, err
	}
	s.invalidate(ctx)
	return out, nil
}

// UpdateRoleClaim changes a grant. The result may not collide with another
// active grant of the same (role, type, value).
func (s *Service) UpdateRoleClaim(ctx context.Context, actor uuid.UUID, id uuid.UUID, in RoleClaimUpdate) (RoleClaim, error) {
	claim, err := NewClaim(in.Type, in.Value)
	if err != nil {
		return RoleClaim{}, err
	}
	var out RoleClaim
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetRoleClaimForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("role claim %s: %w", id, err)
		}
		if in.RoleID != current.RoleID {
			if _, err := tx.GetRole(ctx, in.RoleID); err != nil {
				return fmt.Errorf("role %s: %w", in.RoleID, err)
			}
		}
		next := current
		next.RoleID = in.RoleID
		next.Type = claim.Type
		next.Value = claim.Value
		if in.IsActive != nil {
			next.IsActive = *in.IsActive
		}
		if next.IsActive {
			others, err := tx.FindRoleClaims(ctx, next.RoleID, claim)
			if err != nil {
				return err
			}
			for _, o := range others {
				if o.ID != id && o.IsActive {
					return fmt.Errorf("claim %s already granted to role %s: %w", claim, next.RoleID, ErrConflict)
				}
			}
		}
		now := s.clock()
		next.UpdatedAt = &now
		next.UpdatedBy = &actor
		out, err = tx.UpdateRoleClaim(ctx, next)
		return err
	})
	if err != nil {
		return RoleClaim{}, err
	}
	s.invalidate(ctx)
	return out, nil
}

// DeleteRoleClaim soft-deletes a grant, or removes the row when permanent is set.
func (s *Service) DeleteRoleClaim(ctx context.Context, actor uuid.UUID, id uuid.UUID, permanent bool) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetRoleClaimForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("role claim %s: %w", id, err)
		}
		if permanent {
			return tx.DeleteRoleClaim(ctx, id)
		}
		now := s.clock()
		current.IsActive = false
		current.UpdatedAt = &now
		current.UpdatedBy = &actor
		_, err = tx.UpdateRoleClaim(ctx, current)
		return err
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// PurgeInactiveRoleClaims permanently removes grants inactive for longer than retention.
func (s *Service) PurgeInactiveRoleClaims(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, errors.New("rbac: purge retention must be positive")
	}
	return s.repo.PurgeInactiveRoleClaims(ctx, s.clock().Add(-retention))
}

// AssignRole links a user to a role. A second active assignment of the same
// pair is a conflict.
func (s *Service) AssignRole(ctx context.Context, actor uuid.UUID, userID, roleID uuid.UUID) (UserRoleAssignment, error) {
	var out UserRoleAssignment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return fmt.Errorf("user %s: %w", userID, err)
		}
		if _, err := tx.GetRole(ctx, roleID); err != nil {
			return fmt.Errorf("role %s: %w", roleID, err)
		}
		if err := ensureNoActiveAssignment(ctx, tx, userID, roleID, uuid.Nil); err != nil {
			return err
		}
		var err error
		out, err = tx.InsertAssignment(ctx, UserRoleAssignment{
			ID:        uuid.New(),
			UserID:    userID,
			RoleID:    roleID,
			IsActive:  true,
			CreatedAt: s.clock(),
			CreatedBy: actor,
		})
		return err
	})
	return out, err
}

// SetAssignmentActive flips the assignment flag. Reactivation is rejected
// when another active assignment of the same pair exists.
func (s *Service) SetAssignmentActive(ctx context.Context, actor uuid.UUID, id uuid.UUID, active bool) (UserRoleAssignment, error) {
	var out UserRoleAssignment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAssignmentForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("user role %s: %w", id, err)
		}
		if active && !current.IsActive {
			if err := ensureNoActiveAssignment(ctx, tx, current.UserID, current.RoleID, id); err != nil {
				return err
			}
		}
		now := s.clock()
		current.IsActive = active
		current.UpdatedAt = &now
		current.UpdatedBy = &actor
		out, err = tx.UpdateAssignment(ctx, current)
		return err
	})
	return out, err
}

// RevokeAssignment soft-deletes an assignment.
func (s *Service) RevokeAssignment(ctx context.Context, actor uuid.UUID, id uuid.UUID) error {
	_, err := s.SetAssignmentActive(ctx, actor, id, false)
	return err
}

// GetAssignment fetches an assignment by ID.
func (s *Service) GetAssignment(ctx context.Context, id uuid.UUID) (UserRoleAssignment, error) {
	return s.repo.GetAssignment(ctx, id)
}

// AssignmentsForUser lists the active assignments of a user.
func (s *Service) AssignmentsForUser(ctx context.Context, userID uuid.UUID) ([]UserRoleAssignment, error) {
	return s.repo.ListActiveAssignmentsByUser(ctx, userID)
}

// AssignmentsForRole lists the active assignments of a role.
func (s *Service) AssignmentsForRole(ctx context.Context, roleID uuid.UUID) ([]UserRoleAssignment, error) {
	return s.repo.ListActiveAssignmentsByRole(ctx, roleID)
}

func ensureNoActiveAssignment(ctx context.Context, tx TxRepository, userID, roleID, except uuid.UUID) error {
	existing, err := tx.FindActiveAssignment(ctx, userID, roleID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	case existing.ID == except:
		return nil
	default:
		return fmt.Errorf("user %s already has role %s: %w", userID, roleID, ErrConflict)
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "rbac invalidate claim cache", slog.Any("error", err))
	}
}
