package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type evaluatorFixture struct {
	repo      *mockRepository
	evaluator *Evaluator
	loader    *PrincipalLoader
	clerk     User
	admin     User
	orphan    User
}

// newEvaluatorFixture seeds a clerk holding R1 (active) and R2 (revoked
// assignment). R1 grants read:items and a soft-deleted write:items; R2
// grants write:items.
func newEvaluatorFixture() evaluatorFixture {
	repo := newMockRepository()
	clerk := repo.addUser("clerk@example.com", true, false)
	admin := repo.addUser("admin@example.com", true, true)
	orphan := repo.addUser("orphan@example.com", true, false)

	r1 := repo.addRole("r1", true)
	r2 := repo.addRole("r2", true)
	repo.assign(clerk.ID, r1.ID, true)
	repo.assign(clerk.ID, r2.ID, false)
	repo.grant(r1.ID, "read", "items", true)
	repo.grant(r1.ID, "write", "items", false)
	repo.grant(r2.ID, "write", "items", true)

	loader := NewPrincipalLoader(repo, NewRoleResolver(repo), NewClaimStore(repo))
	return evaluatorFixture{
		repo:      repo,
		evaluator: NewEvaluator(loader),
		loader:    loader,
		clerk:     clerk,
		admin:     admin,
		orphan:    orphan,
	}
}

func TestEvaluatorScenario(t *testing.T) {
	f := newEvaluatorFixture()
	ctx := context.Background()

	require.NoError(t, f.evaluator.HasPermission(ctx, f.clerk.ID, "read:items"))
	assert.ErrorIs(t, f.evaluator.HasPermission(ctx, f.clerk.ID, "write:items"), ErrForbidden)
	require.NoError(t, f.evaluator.HasAny(ctx, f.clerk.ID, "write:items", "read:items"))
	assert.ErrorIs(t, f.evaluator.HasAll(ctx, f.clerk.ID, "read:items", "write:items"), ErrForbidden)
	require.NoError(t, f.evaluator.HasAll(ctx, f.clerk.ID, "read:items"))
}

func TestEvaluatorSuperuserSkipsRoleQueries(t *testing.T) {
	f := newEvaluatorFixture()
	ctx := context.Background()

	require.NoError(t, f.evaluator.HasPermission(ctx, f.admin.ID, "delete:everything"))
	require.NoError(t, f.evaluator.HasAll(ctx, f.admin.ID, "a:b", "c:d"))
	assert.Zero(t, f.repo.assignmentQueries)
	assert.Zero(t, f.repo.claimQueries)
}

func TestEvaluatorNoRolesForbidden(t *testing.T) {
	f := newEvaluatorFixture()
	err := f.evaluator.HasAll(context.Background(), f.orphan.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Contains(t, err.Error(), "no active roles")
}

func TestEvaluatorUnknownUser(t *testing.T) {
	f := newEvaluatorFixture()
	err := f.evaluator.HasPermission(context.Background(), uuid.New(), "read:items")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEvaluatorInvalidClaim(t *testing.T) {
	f := newEvaluatorFixture()
	err := f.evaluator.HasPermission(context.Background(), f.clerk.ID, "read-items")
	assert.ErrorIs(t, err, ErrInvalidClaim)
}

func TestSuperuserAlwaysAllowed(t *testing.T) {
	p := NewPrincipal(User{ID: uuid.New(), IsActive: true, IsSuperuser: true}, nil, nil)
	for _, claims := range [][]string{{"read:items"}, {"x:y", "z:w"}, {}} {
		assert.NoError(t, HasAll(p, claims...))
		assert.NoError(t, HasAny(p, claims...))
	}
	assert.NoError(t, HasPermission(p, "write:anything"))
	assert.True(t, p.HasRole(uuid.New()))
	assert.True(t, p.HasRoleNamed("anything"))
}

func TestHasAllIsConjunctionOfHasPermission(t *testing.T) {
	roles := []RoleRef{{ID: uuid.New(), Name: "staff"}}
	claims := NewClaimSet(map[string][]string{"read": {"items", "locations"}, "write": {"items"}})
	p := NewPrincipal(User{ID: uuid.New(), IsActive: true}, roles, claims)

	universe := []string{"read:items", "read:locations", "write:items", "write:locations", "delete:items"}
	for _, a := range universe {
		for _, b := range universe {
			both := HasPermission(p, a) == nil && HasPermission(p, b) == nil
			assert.Equal(t, both, HasAll(p, a, b) == nil, "%s,%s", a, b)
			either := HasPermission(p, a) == nil || HasPermission(p, b) == nil
			assert.Equal(t, either, HasAny(p, a, b) == nil, "%s|%s", a, b)
		}
	}
}

func TestEmptyRequirementLists(t *testing.T) {
	withRoles := NewPrincipal(User{ID: uuid.New(), IsActive: true}, []RoleRef{{ID: uuid.New(), Name: "staff"}}, nil)
	assert.NoError(t, HasAll(withRoles))
	assert.ErrorIs(t, HasAny(withRoles), ErrForbidden)

	noRoles := NewPrincipal(User{ID: uuid.New(), IsActive: true}, nil, nil)
	assert.ErrorIs(t, HasAll(noRoles), ErrForbidden)
}

func TestPrincipalSnapshotRoundTrip(t *testing.T) {
	f := newEvaluatorFixture()
	live, err := f.loader.Load(context.Background(), f.clerk.ID)
	require.NoError(t, err)

	restored := PrincipalFromSnapshot(live.Snapshot())
	assert.True(t, restored.FromToken())
	assert.Equal(t, live.UserID(), restored.UserID())
	assert.Equal(t, live.Roles(), restored.Roles())
	assert.Equal(t, live.Claims().Strings(), restored.Claims().Strings())
	for _, claim := range []string{"read:items", "write:items", "read:locations"} {
		assert.Equal(t, errors.Is(HasPermission(live, claim), ErrForbidden), errors.Is(HasPermission(restored, claim), ErrForbidden), claim)
	}
	assert.True(t, restored.HasRoleNamed("r1"))
	assert.False(t, restored.HasRoleNamed("r2"))
}

func TestPrincipalIsImmutable(t *testing.T) {
	roles := []RoleRef{{ID: uuid.New(), Name: "staff"}}
	claims := NewClaimSet(map[string][]string{"read": {"items"}})
	p := NewPrincipal(User{ID: uuid.New(), IsActive: true}, roles, claims)

	roles[0].Name = "mutated"
	claims.Add(Claim{Type: "write", Value: "items"})
	p.Claims().Add(Claim{Type: "delete", Value: "items"})

	assert.Equal(t, "staff", p.Roles()[0].Name)
	assert.False(t, p.Can("write:items"))
	assert.False(t, p.Can("delete:items"))
	assert.True(t, p.Can("read:items"))
}

func TestRequirementString(t *testing.T) {
	assert.Equal(t, "claim(read:items)", RequireClaim("read:items").String())
	assert.Equal(t, "any(a:b,c:d)", RequireAny("a:b", "c:d").String())
	assert.Equal(t, ModeAll, RequireAll("a:b").Mode())
	assert.Equal(t, ModeAuthenticated, Authenticated().Mode())
}

func TestEvaluatorInactiveSuperuserForbidden(t *testing.T) {
	f := newEvaluatorFixture()
	disabled := f.repo.addUser("disabled@example.com", false, true)
	err := f.evaluator.HasPermission(context.Background(), disabled.ID, "read:items")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSuperuserBypassesClaimParsing(t *testing.T) {
	p := NewPrincipal(User{ID: uuid.New(), IsActive: true, IsSuperuser: true}, nil, nil)
	for _, claim := range []string{"anything", ":items", "read:", ""} {
		assert.NoError(t, HasPermission(p, claim), claim)
		assert.NoError(t, HasAll(p, claim, "x:y"), claim)
		assert.True(t, p.Can(claim), claim)
	}

	f := newEvaluatorFixture()
	require.NoError(t, f.evaluator.HasPermission(context.Background(), f.admin.ID, "anything"))
	assert.Zero(t, f.repo.assignmentQueries)
}

func TestInactivePrincipalForbidden(t *testing.T) {
	claims := map[string][]string{"read": {"items"}}
	roles := []RoleRef{{ID: uuid.New(), Name: "staff"}}
	cases := []struct {
		name      string
		superuser bool
		check     func(Principal) error
	}{
		{name: "permission", check: func(p Principal) error { return HasPermission(p, "read:items") }},
		{name: "any", check: func(p Principal) error { return HasAny(p, "read:items", "write:items") }},
		{name: "all", check: func(p Principal) error { return HasAll(p, "read:items") }},
		{name: "empty all", check: func(p Principal) error { return HasAll(p) }},
		{name: "authenticated", check: func(p Principal) error { return Authenticated().Evaluate(p) }},
		{name: "superuser permission", superuser: true, check: func(p Principal) error { return HasPermission(p, "read:items") }},
		{name: "superuser all", superuser: true, check: func(p Principal) error { return HasAll(p, "x:y") }},
		{name: "superuser bad claim", superuser: true, check: func(p Principal) error { return HasPermission(p, "anything") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := PrincipalFromSnapshot(Snapshot{
				SubjectID:   uuid.New(),
				IsActive:    false,
				IsSuperuser: tc.superuser,
				Roles:       roles,
				Claims:      claims,
			})
			err := tc.check(p)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrForbidden)
			assert.Contains(t, err.Error(), "inactive user")
			assert.False(t, p.Can("read:items"))
			assert.False(t, p.CanAny("read:items"))
			assert.False(t, p.CanAll("read:items"))
			assert.False(t, p.HasRole(roles[0].ID))
			assert.False(t, p.HasRoleNamed("staff"))
		})
	}
}
