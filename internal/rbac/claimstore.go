package rbac

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ClaimStore reads the active claims granted to roles.
type ClaimStore struct {
	store ClaimReader
}

// NewClaimStore constructs a ClaimStore backed by store.
func NewClaimStore(store ClaimReader) *ClaimStore {
	return &ClaimStore{store: store}
}

// ClaimsForRoles returns the active claims of roleIDs grouped by type. An
// empty roleIDs returns an empty set without querying storage.
func (s *ClaimStore) ClaimsForRoles(ctx context.Context, roleIDs []uuid.UUID) (ClaimSet, error) {
	set := make(ClaimSet)
	if len(roleIDs) == 0 {
		return set, nil
	}
	wanted := make(map[uuid.UUID]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		wanted[id] = struct{}{}
	}
	rows, err := s.store.ActiveClaimsForRoles(ctx, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("rbac: load claims: %w", err)
	}
	for _, row := range rows {
		if !row.IsActive {
			continue
		}
		if _, ok := wanted[row.RoleID]; !ok {
			continue
		}
		c, err := NewClaim(row.Type, row.Value)
		if err != nil {
			continue
		}
		set.Add(c)
	}
	return set, nil
}

var _ ClaimSource = (*ClaimStore)(nil)
