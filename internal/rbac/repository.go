package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockroom/stockroom/internal/platform/db"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
	q    querier
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool, q: pool}
}

// WithTx runs fn inside a RepeatableRead transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &PGRepository{pool: r.pool, q: tx})
	})
	return mapErr(err)
}

const roleClaimColumns = `id, role_id, claim_type, claim_value, is_active, created_at, created_by, updated_at, updated_by`

const assignmentColumns = `id, user_id, role_id, is_active, created_at, created_by, updated_at, updated_by`

// GetUser fetches the authorization fields of a user.
func (r *PGRepository) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	var u User
	err := r.q.QueryRow(ctx, `SELECT id, email, COALESCE(full_name, ''), is_active, is_superuser FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.FullName, &u.IsActive, &u.IsSuperuser)
	if err != nil {
		return User{}, mapErr(err)
	}
	return u, nil
}

// GetRole fetches a role by ID regardless of its active flag.
func (r *PGRepository) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	var role Role
	err := r.q.QueryRow(ctx, `SELECT id, name, is_active, created_at, created_by, updated_at, updated_by FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.IsActive, &role.CreatedAt, &role.CreatedBy, &role.UpdatedAt, &role.UpdatedBy)
	if err != nil {
		return Role{}, mapErr(err)
	}
	return role, nil
}

// ActiveAssignmentsForUser returns the user's assignments whose assignment
// and role are both active.
func (r *PGRepository) ActiveAssignmentsForUser(ctx context.Context, userID uuid.UUID) ([]AssignedRole, error) {
	rows, err := r.q.Query(ctx, `SELECT ur.id, ur.user_id, ur.role_id, ur.is_active, ur.created_at, ur.created_by, ur.updated_at, ur.updated_by,
       ro.id, ro.name, ro.is_active, ro.created_at, ro.created_by, ro.updated_at, ro.updated_by
FROM user_roles ur
JOIN roles ro ON ro.id = ur.role_id
WHERE ur.user_id = $1 AND ur.is_active AND ro.is_active`, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []AssignedRole
	for rows.Next() {
		var a AssignedRole
		if err := rows.Scan(
			&a.Assignment.ID, &a.Assignment.UserID, &a.Assignment.RoleID, &a.Assignment.IsActive,
			&a.Assignment.CreatedAt, &a.Assignment.CreatedBy, &a.Assignment.UpdatedAt, &a.Assignment.UpdatedBy,
			&a.Role.ID, &a.Role.Name, &a.Role.IsActive, &a.Role.CreatedAt, &a.Role.CreatedBy, &a.Role.UpdatedAt, &a.Role.UpdatedBy,
		); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

// ActiveClaimsForRoles returns the active grants of roleIDs.
func (r *PGRepository) ActiveClaimsForRoles(ctx context.Context, roleIDs []uuid.UUID) ([]RoleClaim, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	return r.queryRoleClaims(ctx, `SELECT `+roleClaimColumns+` FROM role_claims WHERE role_id = ANY($1::uuid[]) AND is_active`, roleIDs)
}

// GetRoleClaim fetches a grant by ID.
func (r *PGRepository) GetRoleClaim(ctx context.Context, id uuid.UUID) (RoleClaim, error) {
	return r.getRoleClaim(ctx, `SELECT `+roleClaimColumns+` FROM role_claims WHERE id = $1`, id)
}

// GetRoleClaimForUpdate fetches and locks a grant.
func (r *PGRepository) GetRoleClaimForUpdate(ctx context.Context, id uuid.UUID) (RoleClaim, error) {
	return r.getRoleClaim(ctx, `SELECT `+roleClaimColumns+` FROM role_claims WHERE id = $1 FOR UPDATE`, id)
}

// ListRoleClaims lists grants ordered by type and value.
func (r *PGRepository) ListRoleClaims(ctx context.Context, roleID *uuid.UUID) ([]RoleClaim, error) {
	if roleID != nil {
		return r.queryRoleClaims(ctx, `SELECT `+roleClaimColumns+` FROM role_claims WHERE role_id = $1 ORDER BY claim_type, claim_value`, *roleID)
	}
	return r.queryRoleClaims(ctx, `SELECT `+roleClaimColumns+` FROM role_claims ORDER BY role_id, claim_type, claim_value`)
}

// FindRoleClaims locks every row of (role, type, value), active rows first,
// then the most recently updated.
func (r *PGRepository) FindRoleClaims(ctx context.Context, roleID uuid.UUID, claim Claim) ([]RoleClaim, error) {
	return r.queryRoleClaims(ctx, `SELECT `+roleClaimColumns+` FROM role_claims
WHERE role_id = $1 AND claim_type = $2 AND claim_value = $3
ORDER BY is_active DESC, COALESCE(updated_at, created_at) DESC
FOR UPDATE`, roleID, claim.Type, claim.Value)
}

// InsertRoleClaim inserts a grant. A concurrent active duplicate surfaces as ErrConflict.
func (r *PGRepository) InsertRoleClaim(ctx context.Context, c RoleClaim) (RoleClaim, error) {
	return r.getRoleClaim(ctx, `INSERT INTO role_claims (`+roleClaimColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING `+roleClaimColumns,
		c.ID, c.RoleID, c.Type, c.Value, c.IsActive, c.CreatedAt, c.CreatedBy, c.UpdatedAt, c.UpdatedBy)
}

// UpdateRoleClaim overwrites the mutable fields of a grant.
func (r *PGRepository) UpdateRoleClaim(ctx context.Context, c RoleClaim) (RoleClaim, error) {
	return r.getRoleClaim(ctx, `UPDATE role_claims
SET role_id = $2, claim_type = $3, claim_value = $4, is_active = $5, updated_at = $6, updated_by = $7
WHERE id = $1
RETURNING `+roleClaimColumns,
		c.ID, c.RoleID, c.Type, c.Value, c.IsActive, c.UpdatedAt, c.UpdatedBy)
}

// DeleteRoleClaim removes a grant permanently.
func (r *PGRepository) DeleteRoleClaim(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM role_claims WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeInactiveRoleClaims deletes grants inactive since before.
func (r *PGRepository) PurgeInactiveRoleClaims(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM role_claims WHERE NOT is_active AND COALESCE(updated_at, created_at) < $1`, before)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

// GetAssignment fetches an assignment by ID.
func (r *PGRepository) GetAssignment(ctx context.Context, id uuid.UUID) (UserRoleAssignment, error) {
	return r.getAssignment(ctx, `SELECT `+assignmentColumns+` FROM user_roles WHERE id = $1`, id)
}

// GetAssignmentForUpdate fetches and locks an assignment.
func (r *PGRepository) GetAssignmentForUpdate(ctx context.Context, id uuid.UUID) (UserRoleAssignment, error) {
	return r.getAssignment(ctx, `SELECT `+assignmentColumns+` FROM user_roles WHERE id = $1 FOR UPDATE`, id)
}

// FindActiveAssignment returns the active assignment of the pair or ErrNotFound.
func (r *PGRepository) FindActiveAssignment(ctx context.Context, userID, roleID uuid.UUID) (UserRoleAssignment, error) {
	return r.getAssignment(ctx, `SELECT `+assignmentColumns+` FROM user_roles WHERE user_id = $1 AND role_id = $2 AND is_active LIMIT 1 FOR UPDATE`, userID, roleID)
}

// ListActiveAssignmentsByUser lists active assignments of a user.
func (r *PGRepository) ListActiveAssignmentsByUser(ctx context.Context, userID uuid.UUID) ([]UserRoleAssignment, error) {
	return r.queryAssignments(ctx, `SELECT `+assignmentColumns+` FROM user_roles WHERE user_id = $1 AND is_active ORDER BY created_at`, userID)
}

// ListActiveAssignmentsByRole lists active assignments of a role.
func (r *PGRepository) ListActiveAssignmentsByRole(ctx context.Context, roleID uuid.UUID) ([]UserRoleAssignment, error) {
	return r.queryAssignments(ctx, `SELECT `+assignmentColumns+` FROM user_roles WHERE role_id = $1 AND is_active ORDER BY created_at`, roleID)
}

// InsertAssignment inserts an assignment. A concurrent active duplicate surfaces as ErrConflict.
func (r *PGRepository) InsertAssignment(ctx context.Context, a UserRoleAssignment) (UserRoleAssignment, error) {
	return r.getAssignment(ctx, `INSERT INTO user_roles (`+assignmentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+assignmentColumns,
		a.ID, a.UserID, a.RoleID, a.IsActive, a.CreatedAt, a.CreatedBy, a.UpdatedAt, a.UpdatedBy)
}

// UpdateAssignment overwrites the active flag and audit fields.
func (r *PGRepository) UpdateAssignment(ctx context.Context, a UserRoleAssignment) (UserRoleAssignment, error) {
	return r.getAssignment(ctx, `UPDATE user_roles SET is_active = $2, updated_at = $3, updated_by = $4
WHERE id = $1
RETURNING `+assignmentColumns,
		a.ID, a.IsActive, a.UpdatedAt, a.UpdatedBy)
}

func (r *PGRepository) getRoleClaim(ctx context.Context, sql string, args ...any) (RoleClaim, error) {
	var c RoleClaim
	err := r.q.QueryRow(ctx, sql, args...).Scan(&c.ID, &c.RoleID, &c.Type, &c.Value, &c.IsActive, &c.CreatedAt, &c.CreatedBy, &c.UpdatedAt, &c.UpdatedBy)
	if err != nil {
		return RoleClaim{}, mapErr(err)
	}
	return c, nil
}

func (r *PGRepository) queryRoleClaims(ctx context.Context, sql string, args ...any) ([]RoleClaim, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []RoleClaim
	for rows.Next() {
		var c RoleClaim
		if err := rows.Scan(&c.ID, &c.RoleID, &c.Type, &c.Value, &c.IsActive, &c.CreatedAt, &c.CreatedBy, &c.UpdatedAt, &c.UpdatedBy); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (r *PGRepository) getAssignment(ctx context.Context, sql string, args ...any) (UserRoleAssignment, error) {
	var a UserRoleAssignment
	err := r.q.QueryRow(ctx, sql, args...).Scan(&a.ID, &a.UserID, &a.RoleID, &a.IsActive, &a.CreatedAt, &a.CreatedBy, &a.UpdatedAt, &a.UpdatedBy)
	if err != nil {
		return UserRoleAssignment{}, mapErr(err)
	}
	return a, nil
}

func (r *PGRepository) queryAssignments(ctx context.Context, sql string, args ...any) ([]UserRoleAssignment, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []UserRoleAssignment
	for rows.Next() {
		var a UserRoleAssignment
		if err := rows.Scan(&a.ID, &a.UserID, &a.RoleID, &a.IsActive, &a.CreatedAt, &a.CreatedBy, &a.UpdatedAt, &a.UpdatedBy); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}

var (
	_ Repository   = (*PGRepository)(nil)
	_ TxRepository = (*PGRepository)(nil)
)
