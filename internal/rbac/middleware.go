package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/stockroom/stockroom/internal/platform/httpx"
	"github.com/stockroom/stockroom/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Guard  *Guard
	Logger *slog.Logger
}

// Authenticate copies the bearer token of the Authorization header into the
// request context. It never rejects; the Require* middleware do.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithBearerToken(r.Context(), token)))
	})
}

// RequireClaim ensures the current user holds claim.
func (m Middleware) RequireClaim(claim string) func(http.Handler) http.Handler {
	return m.require(RequireClaim(claim))
}

// RequireAny ensures the current user has at least one of the required claims.
func (m Middleware) RequireAny(claims ...string) func(http.Handler) http.Handler {
	return m.require(RequireAny(claims...))
}

// RequireAll ensures the current user has all required claims.
func (m Middleware) RequireAll(claims ...string) func(http.Handler) http.Handler {
	return m.require(RequireAll(claims...))
}

// RequireAuthenticated only requires a valid token of an active user.
func (m Middleware) RequireAuthenticated() func(http.Handler) http.Handler {
	return m.require(Authenticated())
}

func (m Middleware) require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := m.Guard.Authorize(r.Context(), req)
			if err != nil {
				if !IsAuthError(err) && m.Logger != nil {
					m.Logger.Error("rbac require", slog.String("requirement", req.String()), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
