package rbac

import (
	"errors"
	"fmt"

	"github.com/stockroom/stockroom/internal/platform/httpx"
)

var (
	// ErrUnauthorized indicates a missing credential.
	ErrUnauthorized = fmt.Errorf("rbac: %w", httpx.ErrUnauthorized)
	// ErrInvalidToken indicates a malformed, expired or tampered token.
	ErrInvalidToken = fmt.Errorf("%w: invalid token", ErrUnauthorized)
	// ErrForbidden indicates an authenticated principal without the required claims.
	ErrForbidden = fmt.Errorf("rbac: %w", httpx.ErrForbidden)
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = fmt.Errorf("rbac: %w", httpx.ErrNotFound)
	// ErrConflict indicates a duplicate active assignment or claim.
	ErrConflict = fmt.Errorf("rbac: %w", httpx.ErrDuplicate)
	// ErrInvalidClaim indicates a claim string that is not "<type>:<value>".
	ErrInvalidClaim = fmt.Errorf("rbac: invalid claim: %w", httpx.ErrValidation)
)

// IsAuthError reports whether err is one of the outward authorization rejections.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}
