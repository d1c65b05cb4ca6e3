package samlspflow

import (
	"github.com/philiph/samlspflow/internal/adapters/driven/session"
)

// Re-export the session token types for integrators.
type Session = session.Session
type SessionStore = session.Store
type CookieSessionStore = session.CookieStore

var (
	ErrSessionNotFound    = session.ErrSessionNotFound
	NewCookieSessionStore = session.NewCookieStore
)
