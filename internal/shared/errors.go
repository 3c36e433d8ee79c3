package shared

import (
	"fmt"

	"github.com/stockroom/stockroom/internal/platform/httpx"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = fmt.Errorf("shared: %w", httpx.ErrNotFound)
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = fmt.Errorf("incorrect email or password: %w", httpx.ErrValidation)
)
