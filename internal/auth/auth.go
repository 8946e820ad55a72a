// Package auth validates bearer tokens and resolves them into the user
// identity the rest of the system keys sessions and knowledge bases by.
// Tokens are issued elsewhere; this package only verifies.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized indicates the token is missing, malformed, expired,
// or fails signature or claim verification.
var ErrUnauthorized = errors.New("unauthorized")

// UserContext is the verified identity carried through a request.
type UserContext struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	Groups    []string  `json:"groups,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	TokenID   string    `json:"token_id,omitempty"`
}

// claims is the JWT payload shape we accept.
type claims struct {
	Email  string   `json:"email,omitempty"`
	Name   string   `json:"name,omitempty"`
	Groups []string `json:"groups,omitempty"`
	jwt.RegisteredClaims
}

// Config configures token verification.
type Config struct {
	// Secret is the HMAC signing key. Required.
	Secret []byte

	// Issuer, when set, must match the token's iss claim.
	Issuer string

	// Audience, when set, must appear in the token's aud claim.
	Audience string

	// Leeway tolerates clock skew on time-based claims.
	Leeway time.Duration
}

// Validator verifies bearer tokens. Safe for concurrent use.
type Validator struct {
	secret []byte
	parser *jwt.Parser
}

// NewValidator creates a token validator.
func NewValidator(cfg Config) (*Validator, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("signing secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}

	return &Validator{
		secret: cfg.Secret,
		parser: jwt.NewParser(opts...),
	}, nil
}

// Validate verifies a compact JWT and returns the identity it carries.
// All failures surface as ErrUnauthorized; the wrapped cause is for logs,
// never for clients.
func (v *Validator) Validate(tokenString string) (*UserContext, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	var c claims
	token, err := v.parser.ParseWithClaims(tokenString, &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if !token.Valid || c.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrUnauthorized)
	}

	user := &UserContext{
		UserID: c.Subject,
		Email:  c.Email,
		Name:   c.Name,
		Groups: c.Groups,
	}
	if c.IssuedAt != nil {
		user.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		user.ExpiresAt = c.ExpiresAt.Time
	}
	if c.ID != "" {
		user.TokenID = c.ID
	}
	return user, nil
}
