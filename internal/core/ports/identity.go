package ports

import "github.com/philiph/samlspflow/internal/core/domain"

// IdentityStore tracks the authenticated subject's SAML identity for the
// lifetime of the local session.
type IdentityStore interface {
	// Set stores the identity record for the session.
	Set(record domain.IdentityRecord) error

	// Get returns the identity record, or false if the session carries none.
	Get() (domain.IdentityRecord, bool)

	// Clear removes the identity record. Clearing an absent record is not
	// an error.
	Clear()
}
