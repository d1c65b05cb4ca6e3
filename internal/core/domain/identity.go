// Package domain holds the core types of the SP flow layer.
// This is the core domain model - it has no external dependencies.
package domain

// IdentityRecord is the authenticated subject's SAML identity, kept for the
// lifetime of the local session so an SP-initiated logout can name the
// subject back to the IdP.
type IdentityRecord struct {
	// NameID is the subject's SAML name identifier.
	NameID string `json:"name_id"`

	// NameIDFormat is the format URI the IdP issued the NameID under.
	NameIDFormat string `json:"name_id_format,omitempty"`

	// SessionIndex is the protocol session identifier from the assertion's
	// AuthnStatement, echoed in logout requests.
	SessionIndex string `json:"session_index,omitempty"`

	// IdPEntityID identifies which IdP authenticated the subject.
	IdPEntityID string `json:"idp_entity_id"`
}

// AssertionInfo is what the flow layer needs from a verified assertion.
// Trust in these fields derives from the protocol library's verification,
// never from tracker state.
type AssertionInfo struct {
	// NameID and NameIDFormat identify the authenticated subject.
	NameID       string
	NameIDFormat string

	// SessionIndex is the IdP's session identifier, if present.
	SessionIndex string

	// InResponseTo is the id of the AuthnRequest this response answers.
	// Empty for IdP-initiated responses.
	InResponseTo string

	// IdPEntityID identifies which IdP issued the assertion.
	IdPEntityID string

	// Attributes are the assertion's attribute statements, first value per
	// attribute, keyed by friendly name when available.
	Attributes map[string]string
}

// User is a local user resolved from a verified assertion by the host's
// authentication backend.
type User struct {
	ID         string
	Name       string
	Attributes map[string]string
}
