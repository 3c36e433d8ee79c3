package rbac

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	mu          sync.Mutex
	users       map[uuid.UUID]User
	roles       map[uuid.UUID]Role
	assignments map[uuid.UUID]UserRoleAssignment
	claims      map[uuid.UUID]RoleClaim

	// call counters
	assignmentQueries int
	claimQueries      int

	// error injection
	txError    error
	claimError error

	// perStatement drops the transaction-wide lock so concurrent callers
	// interleave between statements, leaving the uniqueness checks in
	// Insert* as the only serialization point.
	perStatement bool
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users:       make(map[uuid.UUID]User),
		roles:       make(map[uuid.UUID]Role),
		assignments: make(map[uuid.UUID]UserRoleAssignment),
		claims:      make(map[uuid.UUID]RoleClaim),
	}
}

func (m *mockRepository) addUser(email string, active, superuser bool) User {
	u := User{ID: uuid.New(), Email: email, IsActive: active, IsSuperuser: superuser}
	m.users[u.ID] = u
	return u
}

func (m *mockRepository) addRole(name string, active bool) Role {
	r := Role{ID: uuid.New(), Name: name, IsActive: active, CreatedAt: time.Now().UTC()}
	m.roles[r.ID] = r
	return r
}

func (m *mockRepository) assign(userID, roleID uuid.UUID, active bool) UserRoleAssignment {
	a := UserRoleAssignment{ID: uuid.New(), UserID: userID, RoleID: roleID, IsActive: active, CreatedAt: time.Now().UTC()}
	m.assignments[a.ID] = a
	return a
}

func (m *mockRepository) grant(roleID uuid.UUID, claimType, value string, active bool) RoleClaim {
	c := RoleClaim{ID: uuid.New(), RoleID: roleID, Type: claimType, Value: value, IsActive: active, CreatedAt: time.Now().UTC()}
	m.claims[c.ID] = c
	return c
}

func (m *mockRepository) activeClaimRows(roleID uuid.UUID, c Claim) int {
	n := 0
	for _, row := range m.claims {
		if row.RoleID == roleID && row.Type == c.Type && row.Value == c.Value && row.IsActive {
			n++
		}
	}
	return n
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	if m.perStatement {
		return fn(ctx, &mockTxRepo{mock: m, perStatement: true})
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, &mockTxRepo{mock: m})
}

func (m *mockRepository) activeAssignmentRows(userID, roleID uuid.UUID) int {
	n := 0
	for _, a := range m.assignments {
		if a.UserID == userID && a.RoleID == roleID && a.IsActive {
			n++
		}
	}
	return n
}

func (m *mockRepository) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *mockRepository) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return r, nil
}

// ActiveAssignmentsForUser deliberately skips the SQL-side filters so the
// resolver's own checks are exercised.
func (m *mockRepository) ActiveAssignmentsForUser(ctx context.Context, userID uuid.UUID) ([]AssignedRole, error) {
	m.assignmentQueries++
	var out []AssignedRole
	for _, a := range m.assignments {
		if a.UserID != userID {
			continue
		}
		role, ok := m.roles[a.RoleID]
		if !ok {
			continue
		}
		out = append(out, AssignedRole{Assignment: a, Role: role})
	}
	return out, nil
}

// ActiveClaimsForRoles returns inactive rows too; ClaimStore must drop them.
func (m *mockRepository) ActiveClaimsForRoles(ctx context.Context, roleIDs []uuid.UUID) ([]RoleClaim, error) {
	m.claimQueries++
	if m.claimError != nil {
		return nil, m.claimError
	}
	wanted := make(map[uuid.UUID]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		wanted[id] = struct{}{}
	}
	var out []RoleClaim
	for _, c := range m.claims {
		if _, ok := wanted[c.RoleID]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockRepository) GetRoleClaim(ctx context.Context, id uuid.UUID) (RoleClaim, error) {
	c, ok := m.claims[id]
	if !ok {
		return RoleClaim{}, ErrNotFound
	}
	return c, nil
}

func (m *mockRepository) ListRoleClaims(ctx context.Context, roleID *uuid.UUID) ([]RoleClaim, error) {
	var out []RoleClaim
	for _, c := range m.claims {
		if roleID != nil && c.RoleID != *roleID {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Claim().String() < out[j].Claim().String() })
	return out, nil
}

func (m *mockRepository) GetAssignment(ctx context.Context, id uuid.UUID) (UserRoleAssignment, error) {
	a, ok := m.assignments[id]
	if !ok {
		return UserRoleAssignment{}, ErrNotFound
	}
	return a, nil
}

func (m *mockRepository) ListActiveAssignmentsByUser(ctx context.Context, userID uuid.UUID) ([]UserRoleAssignment, error) {
	var out []UserRoleAssignment
	for _, a := range m.assignments {
		if a.UserID == userID && a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockRepository) ListActiveAssignmentsByRole(ctx context.Context, roleID uuid.UUID) ([]UserRoleAssignment, error) {
	var out []UserRoleAssignment
	for _, a := range m.assignments {
		if a.RoleID == roleID && a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockRepository) PurgeInactiveRoleClaims(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	for id, c := range m.claims {
		stamp := c.CreatedAt
		if c.UpdatedAt != nil {
			stamp = *c.UpdatedAt
		}
		if !c.IsActive && stamp.Before(before) {
			delete(m.claims, id)
			n++
		}
	}
	return n, nil
}

type mockTxRepo struct {
	mock         *mockRepository
	perStatement bool
}

func (t *mockTxRepo) lock() func() {
	if !t.perStatement {
		return func() {}
	}
	t.mock.mu.Lock()
	return t.mock.mu.Unlock
}

func (t *mockTxRepo) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	defer t.lock()()
	return t.mock.GetUser(ctx, id)
}

func (t *mockTxRepo) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	defer t.lock()()
	return t.mock.GetRole(ctx, id)
}

func (t *mockTxRepo) GetRoleClaimForUpdate(ctx context.Context, id uuid.UUID) (RoleClaim, error) {
	defer t.lock()()
	return t.mock.GetRoleClaim(ctx, id)
}

func (t *mockTxRepo) FindRoleClaims(ctx context.Context, roleID uuid.UUID, claim Claim) ([]RoleClaim, error) {
	defer t.lock()()
	var out []RoleClaim
	for _, c := range t.mock.claims {
		if c.RoleID == roleID && c.Type == claim.Type && c.Value == claim.Value {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].IsActive && !out[j].IsActive })
	return out, nil
}

func (t *mockTxRepo) InsertRoleClaim(ctx context.Context, c RoleClaim) (RoleClaim, error) {
	defer t.lock()()
	if c.IsActive && t.mock.activeClaimRows(c.RoleID, c.Claim()) > 0 {
		return RoleClaim{}, ErrConflict
	}
	t.mock.claims[c.ID] = c
	return c, nil
}

func (t *mockTxRepo) UpdateRoleClaim(ctx context.Context, c RoleClaim) (RoleClaim, error) {
	defer t.lock()()
	current, ok := t.mock.claims[c.ID]
	if !ok {
		return RoleClaim{}, ErrNotFound
	}
	if c.IsActive && !current.IsActive && t.mock.activeClaimRows(c.RoleID, c.Claim()) > 0 {
		return RoleClaim{}, ErrConflict
	}
	t.mock.claims[c.ID] = c
	return c, nil
}

func (t *mockTxRepo) DeleteRoleClaim(ctx context.Context, id uuid.UUID) error {
	defer t.lock()()
	if _, ok := t.mock.claims[id]; !ok {
		return ErrNotFound
	}
	delete(t.mock.claims, id)
	return nil
}

func (t *mockTxRepo) GetAssignmentForUpdate(ctx context.Context, id uuid.UUID) (UserRoleAssignment, error) {
	defer t.lock()()
	return t.mock.GetAssignment(ctx, id)
}

func (t *mockTxRepo) FindActiveAssignment(ctx context.Context, userID, roleID uuid.UUID) (UserRoleAssignment, error) {
	defer t.lock()()
	for _, a := range t.mock.assignments {
		if a.UserID == userID && a.RoleID == roleID && a.IsActive {
			return a, nil
		}
	}
	return UserRoleAssignment{}, ErrNotFound
}

func (t *mockTxRepo) InsertAssignment(ctx context.Context, a UserRoleAssignment) (UserRoleAssignment, error) {
	defer t.lock()()
	if a.IsActive && t.mock.activeAssignmentRows(a.UserID, a.RoleID) > 0 {
		return UserRoleAssignment{}, ErrConflict
	}
	t.mock.assignments[a.ID] = a
	return a, nil
}

func (t *mockTxRepo) UpdateAssignment(ctx context.Context, a UserRoleAssignment) (UserRoleAssignment, error) {
	defer t.lock()()
	if _, ok := t.mock.assignments[a.ID]; !ok {
		return UserRoleAssignment{}, ErrNotFound
	}
	t.mock.assignments[a.ID] = a
	return a, nil
}

var (
	_ Repository   = (*mockRepository)(nil)
	_ TxRepository = (*mockTxRepo)(nil)
)

// stubTokens decodes tokens from a fixed table.
type stubTokens map[string]Principal

func (s stubTokens) PrincipalFromToken(token string) (Principal, error) {
	p, ok := s[token]
	if !ok {
		return Principal{}, ErrInvalidToken
	}
	return p, nil
}

type decision struct{ mode, outcome string }

type recordingRecorder struct {
	mu        sync.Mutex
	decisions []decision
}

func (r *recordingRecorder) RecordAuthzDecision(mode, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, decision{mode: mode, outcome: outcome})
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingInvalidator) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}
