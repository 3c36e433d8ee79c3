package roles

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockroom/stockroom/internal/platform/httpx"
	"github.com/stockroom/stockroom/internal/rbac"
	"github.com/stockroom/stockroom/internal/shared"
)

type memRepo struct {
	roles map[uuid.UUID]Role
}

func newMemRepo() *memRepo { return &memRepo{roles: make(map[uuid.UUID]Role)} }

func (m *memRepo) ListActive(ctx context.Context) ([]Role, error) {
	var out []Role
	for _, r := range m.roles {
		if r.IsActive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memRepo) Get(ctx context.Context, id uuid.UUID) (Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return r, nil
}

func (m *memRepo) Create(ctx context.Context, role Role) (Role, error) {
	if err := m.checkName(role); err != nil {
		return Role{}, err
	}
	m.roles[role.ID] = role
	return role, nil
}

func (m *memRepo) Update(ctx context.Context, role Role) (Role, error) {
	if err := m.checkName(role); err != nil {
		return Role{}, err
	}
	m.roles[role.ID] = role
	return role, nil
}

func (m *memRepo) checkName(role Role) error {
	if !role.IsActive {
		return nil
	}
	for _, r := range m.roles {
		if r.ID != role.ID && r.IsActive && strings.EqualFold(r.Name, role.Name) {
			return ErrDuplicateName
		}
	}
	return nil
}

func TestNormalizeNameComposes(t *testing.T) {
	decomposed, err := normalizeName(" cafe\u0301 ")
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", decomposed)

	wide, err := normalizeName(strings.Repeat("é", 255))
	require.NoError(t, err)
	assert.Len(t, []rune(wide), 255)
}

func TestServiceLifecycle(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.clock = func() time.Time { return now }
	ctx := context.Background()
	actor := uuid.New()

	staff, err := svc.CreateRole(ctx, actor, CreateInput{Name: "  staff "})
	require.NoError(t, err)
	assert.Equal(t, "staff", staff.Name)
	assert.True(t, staff.IsActive)
	assert.Equal(t, actor, staff.CreatedBy)

	_, err = svc.CreateRole(ctx, actor, CreateInput{Name: "Staff"})
	assert.ErrorIs(t, err, httpx.ErrDuplicate)

	_, err = svc.CreateRole(ctx, actor, CreateInput{Name: "   "})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.CreateRole(ctx, actor, CreateInput{Name: strings.Repeat("x", 256)})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	renamed := "warehouse"
	updated, err := svc.UpdateRole(ctx, actor, staff.ID, UpdateInput{Name: &renamed})
	require.NoError(t, err)
	assert.Equal(t, "warehouse", updated.Name)
	require.NotNil(t, updated.UpdatedAt)
	assert.Equal(t, now, *updated.UpdatedAt)

	require.NoError(t, svc.DeactivateRole(ctx, actor, staff.ID))
	list, err := svc.ListRoles(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	got, err := svc.GetRole(ctx, staff.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.ErrorIs(t, svc.DeactivateRole(ctx, actor, uuid.New()), shared.ErrNotFound)
}

type stubTokens map[string]rbac.Principal

func (s stubTokens) PrincipalFromToken(token string) (rbac.Principal, error) {
	p, ok := s[token]
	if !ok {
		return rbac.Principal{}, rbac.ErrInvalidToken
	}
	return p, nil
}

func TestHandlerGuardsAndCRUD(t *testing.T) {
	reader := rbac.PrincipalFromSnapshot(rbac.Snapshot{
		SubjectID: uuid.New(), IsActive: true,
		Roles:  []rbac.RoleRef{{ID: uuid.New(), Name: "auditor"}},
		Claims: map[string][]string{"read": {"roles"}},
	})
	admin := rbac.PrincipalFromSnapshot(rbac.Snapshot{SubjectID: uuid.New(), IsActive: true, IsSuperuser: true})
	mw := rbac.Middleware{Guard: rbac.NewGuard(stubTokens{"reader": reader, "admin": admin}, rbac.WithLogger(nil))}
	h := NewHandler(nil, NewService(newMemRepo()), mw)
	router := chi.NewRouter()
	router.Use(mw.Authenticate)
	router.Route("/roles", h.MountRoutes)

	do := func(method, path, token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := do(http.MethodPost, "/roles/", "reader", `{"name":"staff"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(http.MethodPost, "/roles/", "admin", `{"name":"staff"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), admin.UserID().String())

	rr = do(http.MethodGet, "/roles/", "reader", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"name":"staff"`)

	rr = do(http.MethodPost, "/roles/", "admin", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(http.MethodDelete, "/roles/"+uuid.NewString(), "admin", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
