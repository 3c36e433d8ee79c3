package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Mode selects how a requirement combines its claims.
type Mode int

const (
	// ModeClaim requires a single claim.
	ModeClaim Mode = iota
	// ModeAny requires at least one of the claims.
	ModeAny
	// ModeAll requires every claim.
	ModeAll
	// ModeAuthenticated only requires an active principal.
	ModeAuthenticated
)

func (m Mode) String() string {
	switch m {
	case ModeClaim:
		return "claim"
	case ModeAny:
		return "any"
	case ModeAll:
		return "all"
	case ModeAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// HasPermission allows active superusers unconditionally, without looking at
// claim. Any other active principal needs at least one active role and the
// claim itself; otherwise ErrForbidden. Inactive principals are always
// forbidden.
func HasPermission(p Principal, claim string) error {
	return evaluate(p, ModeClaim, []string{claim})
}

// HasAny allows the principal when at least one claim is held.
func HasAny(p Principal, claims ...string) error {
	return evaluate(p, ModeAny, claims)
}

// HasAll allows the principal only when the full claim set contains every claim.
func HasAll(p Principal, claims ...string) error {
	return evaluate(p, ModeAll, claims)
}

func evaluate(p Principal, mode Mode, raw []string) error {
	if !p.active {
		return fmt.Errorf("%w: inactive user", ErrForbidden)
	}
	if p.superuser || mode == ModeAuthenticated {
		return nil
	}
	required, err := ParseClaims(raw)
	if err != nil {
		return err
	}
	if len(p.roles) == 0 {
		return fmt.Errorf("%w: no active roles", ErrForbidden)
	}
	switch mode {
	case ModeAny:
		for _, c := range required {
			if p.claims.Has(c) {
				return nil
			}
		}
		return fmt.Errorf("%w: none of %s", ErrForbidden, joinClaims(required))
	default:
		var missing []Claim
		for _, c := range required {
			if !p.claims.Has(c) {
				missing = append(missing, c)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: missing %s", ErrForbidden, joinClaims(missing))
		}
		return nil
	}
}

func joinClaims(claims []Claim) string {
	parts := make([]string, len(claims))
	for i, c := range claims {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}

// Evaluator runs the predicates against a live storage lookup rather than a
// token snapshot.
type Evaluator struct {
	loader *PrincipalLoader
}

// NewEvaluator constructs an Evaluator over loader.
func NewEvaluator(loader *PrincipalLoader) *Evaluator {
	return &Evaluator{loader: loader}
}

// HasPermission checks claim for userID against current storage state.
func (e *Evaluator) HasPermission(ctx context.Context, userID uuid.UUID, claim string) error {
	return e.check(ctx, userID, RequireClaim(claim))
}

// HasAny checks that userID currently holds at least one of claims.
func (e *Evaluator) HasAny(ctx context.Context, userID uuid.UUID, claims ...string) error {
	return e.check(ctx, userID, RequireAny(claims...))
}

// HasAll checks that userID currently holds every claim.
func (e *Evaluator) HasAll(ctx context.Context, userID uuid.UUID, claims ...string) error {
	return e.check(ctx, userID, RequireAll(claims...))
}

// Principal resolves the live principal for userID.
func (e *Evaluator) Principal(ctx context.Context, userID uuid.UUID) (Principal, error) {
	return e.loader.Load(ctx, userID)
}

func (e *Evaluator) check(ctx context.Context, userID uuid.UUID, req Requirement) error {
	user, err := e.loader.users.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("rbac: load user %s: %w", userID, err)
	}
	if !user.IsActive {
		return fmt.Errorf("%w: inactive user", ErrForbidden)
	}
	if user.IsSuperuser {
		return nil
	}
	if _, err := ParseClaims(req.claims); err != nil {
		return err
	}
	p, err := e.loader.loadFor(ctx, user)
	if err != nil {
		return err
	}
	return req.Evaluate(p)
}

// Requirement is a claim predicate a guard enforces.
type Requirement struct {
	mode   Mode
	claims []string
}

// RequireClaim requires a single claim, e.g. "read:items".
func RequireClaim(claim string) Requirement {
	return Requirement{mode: ModeClaim, claims: []string{claim}}
}

// RequireAny requires at least one of claims.
func RequireAny(claims ...string) Requirement {
	return Requirement{mode: ModeAny, claims: append([]string(nil), claims...)}
}

// RequireAll requires every claim.
func RequireAll(claims ...string) Requirement {
	return Requirement{mode: ModeAll, claims: append([]string(nil), claims...)}
}

// Authenticated only requires an active, authenticated principal.
func Authenticated() Requirement {
	return Requirement{mode: ModeAuthenticated}
}

// Mode returns the combination mode.
func (r Requirement) Mode() Mode { return r.mode }

// Claims returns the required claim strings.
func (r Requirement) Claims() []string { return append([]string(nil), r.claims...) }

// Evaluate applies the requirement to p.
func (r Requirement) Evaluate(p Principal) error {
	return evaluate(p, r.mode, r.claims)
}

func (r Requirement) String() string {
	return r.mode.String() + "(" + strings.Join(r.claims, ",") + ")"
}
