package rbac

import (
	"context"

	"github.com/google/uuid"
)

// Store is the storage boundary the authorization core reads from. Every
// method is a key lookup or a filtered scan; none of them mutate state.
type Store interface {
	UserReader
	AssignmentReader
	ClaimReader
	GetRole(ctx context.Context, id uuid.UUID) (Role, error)
}

// UserReader loads user accounts.
type UserReader interface {
	GetUser(ctx context.Context, id uuid.UUID) (User, error)
}

// AssignmentReader lists the role assignments of a user joined with their roles.
type AssignmentReader interface {
	ActiveAssignmentsForUser(ctx context.Context, userID uuid.UUID) ([]AssignedRole, error)
}

// ClaimReader lists the claims granted to a set of roles.
type ClaimReader interface {
	ActiveClaimsForRoles(ctx context.Context, roleIDs []uuid.UUID) ([]RoleClaim, error)
}

// ClaimSource resolves the grouped claim set of a set of roles.
type ClaimSource interface {
	ClaimsForRoles(ctx context.Context, roleIDs []uuid.UUID) (ClaimSet, error)
}
