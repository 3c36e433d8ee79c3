package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stockroom/stockroom/internal/rbac"
)

// TokenDecoder verifies a bearer token and returns its snapshot.
type TokenDecoder interface {
	Decode(token string) (rbac.Snapshot, error)
}

// TokenIssuer signs a token for a stored user.
type TokenIssuer interface {
	IssueToken(ctx context.Context, userID uuid.UUID) (string, error)
}

// TokenCLI offers operational helpers around bearer tokens.
type TokenCLI struct {
	decoder TokenDecoder
	issuer  TokenIssuer
}

// NewTokenCLI constructs the helper. issuer may be nil when only inspection is needed.
func NewTokenCLI(decoder TokenDecoder, issuer TokenIssuer) (*TokenCLI, error) {
	if decoder == nil {
		return nil, errors.New("token cli: decoder is required")
	}
	return &TokenCLI{decoder: decoder, issuer: issuer}, nil
}

// TokenInspectOptions configures the inspect command.
type TokenInspectOptions struct {
	Token  string
	Stdout io.Writer
	Stderr io.Writer
}

// TokenSummary is the JSON document printed by inspect.
type TokenSummary struct {
	Subject     uuid.UUID           `json:"sub"`
	IsActive    bool                `json:"is_active"`
	IsSuperuser bool                `json:"is_superuser"`
	Roles       []rbac.RoleRef      `json:"roles"`
	Claims      map[string][]string `json:"claims"`
	IssuedAt    time.Time           `json:"issued_at"`
	ExpiresAt   time.Time           `json:"expires_at"`
}

// InspectCommand decodes a token and prints its snapshot. It returns the process exit code.
func (c *TokenCLI) InspectCommand(ctx context.Context, opts TokenInspectOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		_, _ = fmt.Fprintln(stderr, "token inspect: token argument is required")
		return 2
	}
	snap, err := c.decoder.Decode(token)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "token inspect: %v\n", err)
		return 1
	}
	summary := TokenSummary{
		Subject:     snap.SubjectID,
		IsActive:    snap.IsActive,
		IsSuperuser: snap.IsSuperuser,
		Roles:       snap.Roles,
		Claims:      snap.Claims,
		IssuedAt:    snap.IssuedAt.UTC(),
		ExpiresAt:   snap.ExpiresAt.UTC(),
	}
	if summary.Roles == nil {
		summary.Roles = []rbac.RoleRef{}
	}
	if summary.Claims == nil {
		summary.Claims = map[string][]string{}
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		_, _ = fmt.Fprintf(stderr, "token inspect: encode json: %v\n", err)
		return 1
	}
	return 0
}

// TokenIssueOptions configures the issue command.
type TokenIssueOptions struct {
	UserID string
	Stdout io.Writer
	Stderr io.Writer
}

// IssueCommand prints a freshly signed token for the user. It returns the process exit code.
func (c *TokenCLI) IssueCommand(ctx context.Context, opts TokenIssueOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	if c.issuer == nil {
		_, _ = fmt.Fprintln(stderr, "token issue: issuer not configured")
		return 1
	}
	userID, err := uuid.Parse(strings.TrimSpace(opts.UserID))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "token issue: --user must be a uuid (got %q)\n", opts.UserID)
		return 2
	}
	token, err := c.issuer.IssueToken(ctx, userID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "token issue: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, token)
	return 0
}

func writers(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
