package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/stockroom/stockroom/internal/rbac"
)

// MinSecretLength is the shortest HMAC secret the codec accepts.
const MinSecretLength = 32

// TokenConfig configures token signing.
type TokenConfig struct {
	Secret    []byte
	TTL       time.Duration
	Algorithm string
	Issuer    string
}

type tokenClaims struct {
	IsSuperuser bool                `json:"is_superuser"`
	IsActive    bool                `json:"is_active"`
	Roles       []rbac.RoleRef      `json:"roles,omitempty"`
	Claims      map[string][]string `json:"claims,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies access tokens carrying an authorization snapshot.
type Codec struct {
	secret []byte
	ttl    time.Duration
	method jwt.SigningMethod
	issuer string
	now    func() time.Time
}

// NewCodec validates cfg and builds a Codec.
func NewCodec(cfg TokenConfig) (*Codec, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: token secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	alg := cfg.Algorithm
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	var method jwt.SigningMethod
	switch alg {
	case jwt.SigningMethodHS256.Alg():
		method = jwt.SigningMethodHS256
	case jwt.SigningMethodHS384.Alg():
		method = jwt.SigningMethodHS384
	case jwt.SigningMethodHS512.Alg():
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("auth: unsupported token algorithm %q", cfg.Algorithm)
	}
	return &Codec{
		secret: append([]byte(nil), cfg.Secret...),
		ttl:    cfg.TTL,
		method: method,
		issuer: cfg.Issuer,
		now:    time.Now,
	}, nil
}

// TTL returns the token lifetime.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Encode signs s. IssuedAt and ExpiresAt are set from the codec clock.
func (c *Codec) Encode(s rbac.Snapshot) (string, error) {
	now := c.now().UTC().Truncate(time.Second)
	claims := tokenClaims{
		IsSuperuser: s.IsSuperuser,
		IsActive:    s.IsActive,
		Roles:       s.Roles,
		Claims:      s.Claims,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.SubjectID.String(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies signature, algorithm, expiry and issuer, and returns the
// embedded snapshot. Every failure is rbac.ErrInvalidToken.
func (c *Codec) Decode(token string) (rbac.Snapshot, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	var claims tokenClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	}, opts...)
	if err != nil {
		return rbac.Snapshot{}, fmt.Errorf("%w: %v", rbac.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return rbac.Snapshot{}, rbac.ErrInvalidToken
	}
	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return rbac.Snapshot{}, fmt.Errorf("%w: subject: %v", rbac.ErrInvalidToken, err)
	}
	snap := rbac.Snapshot{
		SubjectID:   subject,
		IsSuperuser: claims.IsSuperuser,
		IsActive:    claims.IsActive,
		Roles:       claims.Roles,
		Claims:      claims.Claims,
		ExpiresAt:   claims.ExpiresAt.Time.UTC(),
	}
	if claims.IssuedAt != nil {
		snap.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	return snap, nil
}

// PrincipalFromToken decodes token into a principal.
func (c *Codec) PrincipalFromToken(token string) (rbac.Principal, error) {
	snap, err := c.Decode(token)
	if err != nil {
		return rbac.Principal{}, err
	}
	return rbac.PrincipalFromSnapshot(snap), nil
}

var _ rbac.TokenDecoder = (*Codec)(nil)
