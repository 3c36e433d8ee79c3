package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/stockroom/stockroom/internal/shared"
)

// TokenDecoder turns a raw bearer token into a principal.
type TokenDecoder interface {
	PrincipalFromToken(token string) (Principal, error)
}

// DecisionRecorder observes guard outcomes.
type DecisionRecorder interface {
	RecordAuthzDecision(mode, outcome string)
}

// Guard outcomes reported to the DecisionRecorder.
const (
	OutcomeAllowed         = "allowed"
	OutcomeSuperuser       = "superuser"
	OutcomeForbidden       = "forbidden"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeError           = "error"
)

// Guard is the single entry point surrounding protected operations.
type Guard struct {
	tokens   TokenDecoder
	logger   *slog.Logger
	recorder DecisionRecorder
}

// GuardOption customises a Guard.
type GuardOption func(*Guard)

// WithLogger sets the logger used for rejections.
func WithLogger(logger *slog.Logger) GuardOption {
	return func(g *Guard) { g.logger = logger }
}

// WithDecisionRecorder sets the decision recorder.
func WithDecisionRecorder(rec DecisionRecorder) GuardOption {
	return func(g *Guard) { g.recorder = rec }
}

// NewGuard constructs a guard resolving principals through tokens.
func NewGuard(tokens TokenDecoder, opts ...GuardOption) *Guard {
	g := &Guard{tokens: tokens, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Principal resolves the current principal: one already placed in ctx, or
// the bearer token carried by the request context.
func (g *Guard) Principal(ctx context.Context) (Principal, error) {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p, nil
	}
	token := shared.BearerTokenFromContext(ctx)
	if token == "" {
		return Principal{}, fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}
	if g.tokens == nil {
		return Principal{}, errors.New("rbac: guard has no token decoder")
	}
	p, err := g.tokens.PrincipalFromToken(token)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return Principal{}, err
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return p, nil
}

// Authorize resolves the principal and applies req. Superusers are allowed
// unconditionally; inactive principals are rejected as forbidden.
func (g *Guard) Authorize(ctx context.Context, req Requirement) (Principal, error) {
	p, err := g.Principal(ctx)
	if err != nil {
		g.record(req, outcomeFor(err))
		g.log(ctx, req, p, err)
		return Principal{}, err
	}
	if !p.IsActive() {
		err := fmt.Errorf("%w: inactive user", ErrForbidden)
		g.record(req, OutcomeForbidden)
		g.log(ctx, req, p, err)
		return Principal{}, err
	}
	if p.IsSuperuser() {
		g.record(req, OutcomeSuperuser)
		return p, nil
	}
	if err := req.Evaluate(p); err != nil {
		g.record(req, outcomeFor(err))
		g.log(ctx, req, p, err)
		return Principal{}, err
	}
	g.record(req, OutcomeAllowed)
	return p, nil
}

// Protect runs fn only when req is satisfied. fn receives a context carrying
// the authorized principal.
func (g *Guard) Protect(ctx context.Context, req Requirement, fn func(context.Context, Principal) error) error {
	p, err := g.Authorize(ctx, req)
	if err != nil {
		return err
	}
	return fn(ContextWithPrincipal(ctx, p), p)
}

func (g *Guard) record(req Requirement, outcome string) {
	if g.recorder != nil {
		g.recorder.RecordAuthzDecision(req.mode.String(), outcome)
	}
}

func (g *Guard) log(ctx context.Context, req Requirement, p Principal, err error) {
	if g.logger == nil {
		return
	}
	attrs := []any{slog.String("requirement", req.String()), slog.Any("error", err)}
	if p.UserID() != uuid.Nil {
		attrs = append(attrs, slog.String("user_id", p.UserID().String()))
	}
	if outcomeFor(err) == OutcomeError {
		g.logger.ErrorContext(ctx, "rbac authorize", attrs...)
		return
	}
	g.logger.DebugContext(ctx, "rbac denied", attrs...)
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return OutcomeUnauthenticated
	case errors.Is(err, ErrForbidden):
		return OutcomeForbidden
	default:
		return OutcomeError
	}
}
