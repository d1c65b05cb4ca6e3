// Package session provides the local authenticated session collaborator:
// stateless JWT session tokens carried in a cookie.
package session

import (
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/philiph/samlspflow/internal/core/domain"
)

// ErrSessionNotFound is returned when a session token is invalid, expired,
// or not found.
var ErrSessionNotFound = errors.New("session not found")

// Session holds the authenticated local user.
type Session struct {
	// Subject is the local user id.
	Subject string

	// Name is the user's display name.
	Name string

	// Attributes are assertion attributes kept for the host application.
	Attributes map[string]string

	// IdPEntityID identifies which IdP authenticated the user.
	IdPEntityID string

	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Store creates and validates local authenticated sessions.
type Store interface {
	// Create creates a new session and returns a token.
	Create(session *Session) (string, error)

	// Get retrieves a session by token. Returns ErrSessionNotFound if the
	// token is invalid, expired, or not found.
	Get(token string) (*Session, error)
}

// CookieStore implements Store using RS256-signed JWT tokens. Tokens are
// stateless; cookie removal is the HTTP layer's job.
type CookieStore struct {
	privateKey *rsa.PrivateKey
	duration   time.Duration
}

// sessionClaims defines the JWT claims structure for sessions.
type sessionClaims struct {
	jwt.RegisteredClaims
	Name        string            `json:"name,omitempty"`
	IdPEntityID string            `json:"idp"`
	Attributes  map[string]string `json:"attrs,omitempty"`
}

// NewCookieStore creates a new JWT-based session store.
func NewCookieStore(privateKey *rsa.PrivateKey, duration time.Duration) *CookieStore {
	return &CookieStore{
		privateKey: privateKey,
		duration:   duration,
	}
}

// Create generates a signed JWT token from the session.
func (s *CookieStore) Create(session *Session) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.duration)),
		},
		Name:        session.Name,
		IdPEntityID: session.IdPEntityID,
		Attributes:  session.Attributes,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(s.privateKey)
}

// Get validates a JWT token and returns the session.
func (s *CookieStore) Get(token string) (*Session, error) {
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return &s.privateKey.PublicKey, nil
	})
	if err != nil {
		return nil, ErrSessionNotFound
	}

	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return nil, ErrSessionNotFound
	}

	return &Session{
		Subject:     claims.Subject,
		Name:        claims.Name,
		Attributes:  claims.Attributes,
		IdPEntityID: claims.IdPEntityID,
		IssuedAt:    claims.IssuedAt.Time,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// FromUser builds a session for a resolved local user.
func FromUser(user *domain.User, idpEntityID string) *Session {
	return &Session{
		Subject:     user.ID,
		Name:        user.Name,
		Attributes:  user.Attributes,
		IdPEntityID: idpEntityID,
	}
}
