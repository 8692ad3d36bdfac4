// Package auth adapts the identity provider's bearer tokens into a
// types.Participant. Tokens are HS256 JWTs carrying the actor's name, role
// and course memberships; the subject is the participant id.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"classboard/internal/config"
	"classboard/pkg/types"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Claims is the token payload.
type Claims struct {
	Name    string                   `json:"name"`
	Role    string                   `json:"role"`
	Courses []types.CourseMembership `json:"courses"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(cfg *config.AuthConfig) *Authenticator {
	return &Authenticator{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		ttl:    cfg.TokenTTL,
		now:    time.Now,
	}
}

// Issue signs a token for p. The service itself only verifies; Issue exists
// for the token command and for tests.
func (a *Authenticator) Issue(p *types.Participant) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	now := a.now()
	claims := Claims{
		Name:    p.Name,
		Role:    p.Role,
		Courses: p.CourseMemberships,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token and returns the participant it names.
func (a *Authenticator) Verify(tokenString string) (*types.Participant, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return a.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	p := &types.Participant{
		ID:                claims.Subject,
		Name:              claims.Name,
		Role:              claims.Role,
		CourseMemberships: claims.Courses,
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return p, nil
}
