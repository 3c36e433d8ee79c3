package rbac

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Principal is the authenticated actor together with the roles and claims
// resolved for the current request. It is immutable once built.
type Principal struct {
	userID    uuid.UUID
	superuser bool
	active    bool
	roles     []RoleRef
	claims    ClaimSet
	fromToken bool
	issuedAt  time.Time
	expiresAt time.Time
}

// NewPrincipal builds a principal from a live lookup.
func NewPrincipal(user User, roles []RoleRef, claims ClaimSet) Principal {
	p := Principal{
		userID:    user.ID,
		superuser: user.IsSuperuser,
		active:    user.IsActive,
		roles:     append([]RoleRef(nil), roles...),
		claims:    make(ClaimSet),
	}
	if claims != nil {
		p.claims = claims.Clone()
	}
	return p
}

// PrincipalFromSnapshot builds a principal from a decoded token snapshot.
func PrincipalFromSnapshot(s Snapshot) Principal {
	return Principal{
		userID:    s.SubjectID,
		superuser: s.IsSuperuser,
		active:    s.IsActive,
		roles:     append([]RoleRef(nil), s.Roles...),
		claims:    NewClaimSet(s.Claims),
		fromToken: true,
		issuedAt:  s.IssuedAt,
		expiresAt: s.ExpiresAt,
	}
}

// UserID returns the subject identifier.
func (p Principal) UserID() uuid.UUID { return p.userID }

// IsSuperuser reports whether claim checks are bypassed.
func (p Principal) IsSuperuser() bool { return p.superuser }

// IsActive reports whether the account was active when resolved.
func (p Principal) IsActive() bool { return p.active }

// FromToken reports whether the principal was reconstructed from a token snapshot.
func (p Principal) FromToken() bool { return p.fromToken }

// ExpiresAt returns the token expiry, zero for live principals.
func (p Principal) ExpiresAt() time.Time { return p.expiresAt }

// IssuedAt returns the token issue time, zero for live principals.
func (p Principal) IssuedAt() time.Time { return p.issuedAt }

// Roles returns a copy of the active roles.
func (p Principal) Roles() []RoleRef { return append([]RoleRef(nil), p.roles...) }

// Claims returns a copy of the resolved claim set.
func (p Principal) Claims() ClaimSet { return p.claims.Clone() }

// HasRole reports whether the principal holds the role. Active superusers hold
// every role; inactive principals hold none.
func (p Principal) HasRole(id uuid.UUID) bool {
	if !p.active {
		return false
	}
	if p.superuser {
		return true
	}
	for _, r := range p.roles {
		if r.ID == id {
			return true
		}
	}
	return false
}

// HasRoleNamed reports whether the principal holds a role with the given name.
func (p Principal) HasRoleNamed(name string) bool {
	if !p.active {
		return false
	}
	if p.superuser {
		return true
	}
	for _, r := range p.roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Can reports whether HasPermission allows claim.
func (p Principal) Can(claim string) bool { return HasPermission(p, claim) == nil }

// CanAny reports whether HasAny allows claims.
func (p Principal) CanAny(claims ...string) bool { return HasAny(p, claims...) == nil }

// CanAll reports whether HasAll allows claims.
func (p Principal) CanAll(claims ...string) bool { return HasAll(p, claims...) == nil }

// Snapshot returns the token-embeddable authorization state. IssuedAt and
// ExpiresAt are left for the token codec to fill.
func (p Principal) Snapshot() Snapshot {
	return Snapshot{
		SubjectID:   p.userID,
		IsSuperuser: p.superuser,
		IsActive:    p.active,
		Roles:       p.Roles(),
		Claims:      p.claims.Map(),
	}
}

// PrincipalLoader builds principals from storage.
type PrincipalLoader struct {
	users  UserReader
	roles  *RoleResolver
	claims ClaimSource
}

// NewPrincipalLoader wires the user lookup, role resolver and claim source.
func NewPrincipalLoader(users UserReader, roles *RoleResolver, claims ClaimSource) *PrincipalLoader {
	return &PrincipalLoader{users: users, roles: roles, claims: claims}
}

// Load resolves the user, active roles and their claims.
func (l *PrincipalLoader) Load(ctx context.Context, userID uuid.UUID) (Principal, error) {
	user, err := l.users.GetUser(ctx, userID)
	if err != nil {
		return Principal{}, fmt.Errorf("rbac: load user %s: %w", userID, err)
	}
	return l.loadFor(ctx, user)
}

func (l *PrincipalLoader) loadFor(ctx context.Context, user User) (Principal, error) {
	roles, err := l.roles.ActiveRoles(ctx, user.ID)
	if err != nil {
		return Principal{}, err
	}
	claims, err := l.claims.ClaimsForRoles(ctx, RoleIDs(roles))
	if err != nil {
		return Principal{}, err
	}
	return NewPrincipal(user, roles, claims), nil
}
