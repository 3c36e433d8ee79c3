package rbac

import (
	"time"

	"github.com/google/uuid"
)

// User is the subset of the account record the authorization core reads.
type User struct {
	ID          uuid.UUID
	Email       string
	FullName    string
	IsActive    bool
	IsSuperuser bool
}

// Role represents a named grouping of claims.
type Role struct {
	ID        uuid.UUID
	Name      string
	IsActive  bool
	CreatedAt time.Time
	CreatedBy uuid.UUID
	UpdatedAt *time.Time
	UpdatedBy *uuid.UUID
}

// UserRoleAssignment links a user to a role. The assignment carries its own
// is_active flag so it can be revoked independently of the role.
type UserRoleAssignment struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	RoleID    uuid.UUID
	IsActive  bool
	CreatedAt time.Time
	CreatedBy uuid.UUID
	UpdatedAt *time.Time
	UpdatedBy *uuid.UUID
}

// AssignedRole pairs an assignment with the role it points at.
type AssignedRole struct {
	Assignment UserRoleAssignment
	Role       Role
}

// Active reports whether both the assignment and the role are active.
func (a AssignedRole) Active() bool {
	return a.Assignment.IsActive && a.Role.IsActive
}

// RoleClaim grants a (type, value) claim to a role.
type RoleClaim struct {
	ID        uuid.UUID
	RoleID    uuid.UUID
	Type      string
	Value     string
	IsActive  bool
	CreatedAt time.Time
	CreatedBy uuid.UUID
	UpdatedAt *time.Time
	UpdatedBy *uuid.UUID
}

// Claim returns the claim granted by the row.
func (c RoleClaim) Claim() Claim {
	return Claim{Type: c.Type, Value: c.Value}
}

// RoleRef is the role identity embedded in principals and snapshots.
type RoleRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Snapshot is the authorization state carried inside a token. It is never
// persisted and is trusted verbatim until ExpiresAt.
type Snapshot struct {
	SubjectID   uuid.UUID
	IsSuperuser bool
	IsActive    bool
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Roles       []RoleRef
	Claims      map[string][]string
}
