// Package auth implements bearer-token verification for the gateway:
// JWT validation for tenant-scoped principals (see jwt.go).
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingBearerToken = errors.New("auth: missing bearer token")
	ErrInvalidToken       = errors.New("auth: invalid or expired token")
)

// Principal is the authenticated identity installed into a request's
// context by AuthMiddleware, carrying the fields TenantResolver and the
// cross-tenant access check need.
type Principal struct {
	UserID    string
	TenantID  string
	SessionID string
	Roles     []string
	Claims    map[string]string
}

// HasRole reports whether the principal was granted role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Claim returns a named custom claim and whether it was present.
func (p Principal) Claim(name string) (string, bool) {
	v, ok := p.Claims[name]
	return v, ok
}

// claims is the JWT claim set a token must carry, matching the shape
// issued by GenerateToken below.
type claims struct {
	TenantID  string            `json:"tenant_id"`
	UserID    string            `json:"user_id"`
	SessionID string            `json:"session_id,omitempty"`
	Roles     []string          `json:"roles,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
	jwt.RegisteredClaims
}

// JWTValidator verifies shared-secret-signed (HS256) bearer tokens.
type JWTValidator struct {
	secretKey []byte
	issuer    string
}

// NewJWTValidator constructs a validator. secretKey must be non-empty;
// its absence at gateway startup is a fatal configuration error.
func NewJWTValidator(secretKey []byte, issuer string) (*JWTValidator, error) {
	if len(secretKey) == 0 {
		return nil, errors.New("auth: jwt secret key is required")
	}
	return &JWTValidator{secretKey: secretKey, issuer: issuer}, nil
}

// ValidateAuthHeader extracts and verifies the bearer token from an
// "Authorization: Bearer <token>" header value, returning the resolved
// Principal.
func (v *JWTValidator) ValidateAuthHeader(header string) (Principal, error) {
	token, err := extractBearerToken(header)
	if err != nil {
		return Principal{}, err
	}
	return v.Validate(token)
}

// Validate verifies a raw JWT string and returns the resolved Principal.
func (v *JWTValidator) Validate(tokenString string) (Principal, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return v.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil || !parsed.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if v.issuer != "" && c.Issuer != v.issuer {
		return Principal{}, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, c.Issuer)
	}

	claimsCopy := make(map[string]string, len(c.Extra))
	for k, val := range c.Extra {
		claimsCopy[k] = val
	}

	return Principal{
		UserID:    c.UserID,
		TenantID:  c.TenantID,
		SessionID: c.SessionID,
		Roles:     c.Roles,
		Claims:    claimsCopy,
	}, nil
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingBearerToken
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrMissingBearerToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", ErrMissingBearerToken
	}
	return token, nil
}

// GenerateToken issues a signed JWT for p, valid for ttl. Used by
// tests.
func (v *JWTValidator) GenerateToken(p Principal, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	c := claims{
		TenantID:  p.TenantID,
		UserID:    p.UserID,
		SessionID: p.SessionID,
		Roles:     p.Roles,
		Extra:     p.Claims,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(v.secretKey)
}
