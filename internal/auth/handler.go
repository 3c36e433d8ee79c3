package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/stockroom/stockroom/internal/platform/httpx"
	"github.com/stockroom/stockroom/internal/rbac"
	"github.com/stockroom/stockroom/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
	rateLimit int
}

// NewHandler constructs a Handler instance. rateLimit caps login attempts
// per client IP and minute; zero disables the limit.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, rateLimit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		rbac:      rbac,
		validator: validator.New(),
		rateLimit: rateLimit,
	}
}

// MountRoutes registers /login routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.rateLimit > 0 {
			r.Use(httprate.Limit(h.rateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		}
		r.Post("/access-token", h.handleAccessToken)
	})
	r.With(h.rbac.RequireAuthenticated()).Post("/test-token", h.handleTestToken)
}

type loginForm struct {
	Username string `validate:"required,email"`
	Password string `validate:"required"`
}

func (h *Handler) handleAccessToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed form body")
		return
	}
	form := loginForm{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}
	if err := h.validator.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", verrs[0].Error())
			return
		}
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	token, err := h.service.Login(r.Context(), form.Username, form.Password)
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.ErrorContext(r.Context(), "issue access token", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, token)
}

func (h *Handler) handleTestToken(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Inspect(r.Context(), rbac.BearerToken(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, info)
}
