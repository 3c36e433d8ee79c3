package rbac

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stockroom/stockroom/internal/platform/httpx"
)

// PermissionsHandler reports the caller's permissions as currently stored,
// independent of the snapshot carried by the token.
type PermissionsHandler struct {
	logger    *slog.Logger
	evaluator *Evaluator
	rbac      Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, evaluator *Evaluator, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, evaluator: evaluator, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAuthenticated())
		r.Get("/me", h.me)
		r.Get("/check", h.check)
	})
}

type permissionsResponse struct {
	ID          uuid.UUID           `json:"id"`
	IsActive    bool                `json:"is_active"`
	IsSuperuser bool                `json:"is_superuser"`
	Roles       []RoleRef           `json:"roles"`
	Claims      map[string][]string `json:"claims"`
}

type checkResponse struct {
	Mode    string   `json:"mode"`
	Claims  []string `json:"claims"`
	Allowed bool     `json:"allowed"`
}

func (h *PermissionsHandler) me(w http.ResponseWriter, r *http.Request) {
	p, err := h.evaluator.Principal(r.Context(), actorFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, permissionsResponse{
		ID:          p.UserID(),
		IsActive:    p.IsActive(),
		IsSuperuser: p.IsSuperuser(),
		Roles:       p.Roles(),
		Claims:      p.Claims().Map(),
	})
}

func (h *PermissionsHandler) check(w http.ResponseWriter, r *http.Request) {
	claims := r.URL.Query()["claim"]
	mode := strings.ToLower(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = ModeAll.String()
		if len(claims) == 1 {
			mode = ModeClaim.String()
		}
	}

	ctx := r.Context()
	userID := actorFrom(r)
	var err error
	switch mode {
	case ModeClaim.String():
		if len(claims) != 1 {
			h.fail(w, r, fmt.Errorf("%w: mode claim needs exactly one claim", httpx.ErrValidation))
			return
		}
		err = h.evaluator.HasPermission(ctx, userID, claims[0])
	case ModeAny.String():
		err = h.evaluator.HasAny(ctx, userID, claims...)
	case ModeAll.String():
		err = h.evaluator.HasAll(ctx, userID, claims...)
	default:
		h.fail(w, r, fmt.Errorf("%w: unknown mode %q", httpx.ErrValidation, mode))
		return
	}
	if err != nil && !errors.Is(err, ErrForbidden) {
		h.fail(w, r, err)
		return
	}
	if claims == nil {
		claims = []string{}
	}
	httpx.JSON(w, http.StatusOK, checkResponse{Mode: mode, Claims: claims, Allowed: err == nil})
}

func (h *PermissionsHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError && h.logger != nil {
		h.logger.ErrorContext(r.Context(), "rbac permissions", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
