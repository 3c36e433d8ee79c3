package rbac

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// RoleResolver derives the active roles of a user.
type RoleResolver struct {
	store AssignmentReader
}

// NewRoleResolver constructs a RoleResolver backed by store.
func NewRoleResolver(store AssignmentReader) *RoleResolver {
	return &RoleResolver{store: store}
}

// ActiveRoles returns the roles whose assignment and role record are both
// active, deduplicated and ordered by name. An empty result is not an error.
func (r *RoleResolver) ActiveRoles(ctx context.Context, userID uuid.UUID) ([]RoleRef, error) {
	rows, err := r.store.ActiveAssignmentsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: resolve roles: %w", err)
	}
	seen := make(map[uuid.UUID]struct{}, len(rows))
	roles := make([]RoleRef, 0, len(rows))
	for _, row := range rows {
		if !row.Active() || row.Assignment.UserID != userID {
			continue
		}
		if _, ok := seen[row.Role.ID]; ok {
			continue
		}
		seen[row.Role.ID] = struct{}{}
		roles = append(roles, RoleRef{ID: row.Role.ID, Name: row.Role.Name})
	}
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].Name != roles[j].Name {
			return roles[i].Name < roles[j].Name
		}
		return roles[i].ID.String() < roles[j].ID.String()
	})
	return roles, nil
}

// ActiveRoleIDs returns the identifiers of ActiveRoles as a set.
func (r *RoleResolver) ActiveRoleIDs(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	roles, err := r.ActiveRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make(map[uuid.UUID]struct{}, len(roles))
	for _, role := range roles {
		ids[role.ID] = struct{}{}
	}
	return ids, nil
}

// RoleIDs extracts the identifiers of refs in order.
func RoleIDs(refs []RoleRef) []uuid.UUID {
	ids := make([]uuid.UUID, len(refs))
	for i, ref := range refs {
		ids[i] = ref.ID
	}
	return ids
}
