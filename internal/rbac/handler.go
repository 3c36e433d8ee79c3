package rbac

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/stockroom/stockroom/internal/platform/httpx"
	"github.com/stockroom/stockroom/internal/shared"
)

// Handler exposes role-claim and user-role administration over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoleClaimRoutes registers /role-claims routes.
func (h *Handler) MountRoleClaimRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireClaim(shared.ClaimRoleClaimsRead))
		r.Get("/", h.listRoleClaims)
		r.Get("/{id}", h.getRoleClaim)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireClaim(shared.ClaimRoleClaimsWrite))
		r.Post("/", h.createRoleClaim)
		r.Put("/{id}", h.updateRoleClaim)
		r.Delete("/{id}", h.deleteRoleClaim)
	})
}

// MountUserRoleRoutes registers /user-roles routes.
func (h *Handler) MountUserRoleRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireClaim(shared.ClaimUserRolesRead))
		r.Get("/{id}", h.getAssignment)
		r.Get("/user/{userID}", h.assignmentsForUser)
		r.Get("/role/{roleID}", h.assignmentsForRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireClaim(shared.ClaimUserRolesWrite))
		r.Post("/", h.assignRole)
		r.Patch("/{id}", h.setAssignmentActive)
		r.Delete("/{id}", h.revokeAssignment)
	})
}

type roleClaimRequest struct {
	RoleID     string `json:"role_id" validate:"required,uuid"`
	ClaimType  string `json:"claim_type" validate:"required,max=100"`
	ClaimValue string `json:"claim_value" validate:"required,max=255"`
	IsActive   *bool  `json:"is_active,omitempty"`
}

type userRoleRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	RoleID string `json:"role_id" validate:"required,uuid"`
}

type userRoleUpdateRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

type roleClaimResponse struct {
	ID         uuid.UUID  `json:"id"`
	RoleID     uuid.UUID  `json:"role_id"`
	ClaimType  string     `json:"claim_type"`
	ClaimValue string     `json:"claim_value"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	CreatedBy  uuid.UUID  `json:"created_by"`
	UpdatedAt  *time.Time `json:"updated_at"`
	UpdatedBy  *uuid.UUID `json:"updated_by"`
}

type userRoleResponse struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	RoleID    uuid.UUID  `json:"role_id"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	CreatedBy uuid.UUID  `json:"created_by"`
	UpdatedAt *time.Time `json:"updated_at"`
	UpdatedBy *uuid.UUID `json:"updated_by"`
}

func toRoleClaimResponse(c RoleClaim) roleClaimResponse {
	return roleClaimResponse{
		ID: c.ID, RoleID: c.RoleID, ClaimType: c.Type, ClaimValue: c.Value, IsActive: c.IsActive,
		CreatedAt: c.CreatedAt, CreatedBy: c.CreatedBy, UpdatedAt: c.UpdatedAt, UpdatedBy: c.UpdatedBy,
	}
}

func toUserRoleResponse(a UserRoleAssignment) userRoleResponse {
	return userRoleResponse{
		ID: a.ID, UserID: a.UserID, RoleID: a.RoleID, IsActive: a.IsActive,
		CreatedAt: a.CreatedAt, CreatedBy: a.CreatedBy, UpdatedAt: a.UpdatedAt, UpdatedBy: a.UpdatedBy,
	}
}

func (h *Handler) listRoleClaims(w http.ResponseWriter, r *http.Request) {
	var roleID *uuid.UUID
	if raw := r.URL.Query().Get("role_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.fail(w, r, fmt.Errorf("%w: role_id: %v", httpx.ErrValidation, err))
			return
		}
		roleID = &id
	}
	claims, err := h.service.ListRoleClaims(r.Context(), roleID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]roleClaimResponse, 0, len(claims))
	for _, c := range claims {
		out = append(out, toRoleClaimResponse(c))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getRoleClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.service.GetRoleClaim(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleClaimResponse(c))
}

func (h *Handler) createRoleClaim(w http.ResponseWriter, r *http.Request) {
	var req roleClaimRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.service.CreateRoleClaim(r.Context(), actorFrom(r), RoleClaimInput{
		RoleID:   uuid.MustParse(req.RoleID),
		Type:     req.ClaimType,
		Value:    req.ClaimValue,
		IsActive: req.IsActive,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleClaimResponse(c))
}

func (h *Handler) updateRoleClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req roleClaimRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.service.UpdateRoleClaim(r.Context(), actorFrom(r), id, RoleClaimUpdate{
		RoleID:   uuid.MustParse(req.RoleID),
		Type:     req.ClaimType,
		Value:    req.ClaimValue,
		IsActive: req.IsActive,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleClaimResponse(c))
}

func (h *Handler) deleteRoleClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	permanent := false
	if raw := r.URL.Query().Get("permanent"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.fail(w, r, fmt.Errorf("%w: permanent: %v", httpx.ErrValidation, err))
			return
		}
		permanent = v
	}
	if err := h.service.DeleteRoleClaim(r.Context(), actorFrom(r), id, permanent); err != nil {
		h.fail(w, r, err)
		return
	}
	msg := "Role claim deleted successfully"
	if permanent {
		msg = "Role claim permanently deleted"
	}
	httpx.JSON(w, http.StatusOK, httpx.Message{Message: msg})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var req userRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	a, err := h.service.AssignRole(r.Context(), actorFrom(r), uuid.MustParse(req.UserID), uuid.MustParse(req.RoleID))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toUserRoleResponse(a))
}

func (h *Handler) getAssignment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	a, err := h.service.GetAssignment(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserRoleResponse(a))
}

func (h *Handler) assignmentsForUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	list, err := h.service.AssignmentsForUser(r.Context(), id)
	h.writeAssignments(w, r, list, err)
}

func (h *Handler) assignmentsForRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	list, err := h.service.AssignmentsForRole(r.Context(), id)
	h.writeAssignments(w, r, list, err)
}

func (h *Handler) writeAssignments(w http.ResponseWriter, r *http.Request, list []UserRoleAssignment, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]userRoleResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toUserRoleResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) setAssignmentActive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req userRoleUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	a, err := h.service.SetAssignmentActive(r.Context(), actorFrom(r), id, *req.IsActive)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserRoleResponse(a))
}

func (h *Handler) revokeAssignment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.RevokeAssignment(r.Context(), actorFrom(r), id); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, httpx.Message{Message: "User role deleted successfully"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		h.fail(w, r, err)
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			err = fmt.Errorf("%w: %s", httpx.ErrValidation, verrs[0].Error())
		} else {
			err = fmt.Errorf("%w: %v", httpx.ErrValidation, err)
		}
		h.fail(w, r, err)
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: %s: %v", httpx.ErrValidation, param, err))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError && h.logger != nil {
		h.logger.ErrorContext(r.Context(), "rbac admin", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func actorFrom(r *http.Request) uuid.UUID {
	p, _ := PrincipalFromContext(r.Context())
	return p.UserID()
}
