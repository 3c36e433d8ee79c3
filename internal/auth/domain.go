package auth

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account able to log in.
type User struct {
	ID           uuid.UUID
	Email        string
	FullName     string
	PasswordHash string
	IsActive     bool
	IsSuperuser  bool
	CreatedAt    time.Time
}

// Token is the body returned by the access-token endpoint.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// TokenInfo describes the principal carried by a verified token.
type TokenInfo struct {
	ID          uuid.UUID           `json:"id"`
	Email       string              `json:"email"`
	FullName    string              `json:"full_name,omitempty"`
	IsActive    bool                `json:"is_active"`
	IsSuperuser bool                `json:"is_superuser"`
	Roles       []TokenRole         `json:"roles"`
	Claims      map[string][]string `json:"claims"`
	IssuedAt    time.Time           `json:"issued_at"`
	ExpiresAt   time.Time           `json:"expires_at"`
}

// TokenRole is a role listed in TokenInfo.
type TokenRole struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}
