package ports

import (
	"net/http"
	"net/url"

	"github.com/philiph/samlspflow/internal/core/domain"
)

// IdPEndpoint is the per-IdP configuration the engine needs to address one
// identity provider.
type IdPEndpoint struct {
	// EntityID is the IdP's SAML entity id.
	EntityID string

	// SSOURL is the Single Sign-On endpoint (redirect binding).
	SSOURL string

	// SLOURL is the Single Logout endpoint (redirect binding). Empty when
	// the IdP does not support SLO.
	SLOURL string

	// Certificates are the IdP's signing certificates, base64 DER.
	Certificates []string

	// DisplayName is shown on the discovery page.
	DisplayName string
}

// RedirectMessage is a protocol message the engine rendered for the HTTP
// redirect binding: the id the library assigned to it and the target URL.
type RedirectMessage struct {
	RequestID string
	URL       *url.URL
}

// LogoutReply is the engine's verdict on the IdP's LogoutResponse to a
// logout we initiated.
type LogoutReply struct {
	// InResponseTo correlates the reply to our pending LogoutRequest.
	InResponseTo string

	Outcome domain.LogoutOutcome
}

// LogoutTurnaround is the engine's answer to an IdP-initiated
// LogoutRequest: the outcome and, when one could be produced, the redirect
// carrying our LogoutResponse back to the IdP.
type LogoutTurnaround struct {
	Outcome domain.LogoutOutcome

	// URL is the redirect target, nil when no response could be built.
	URL *url.URL
}

// ProtocolEngine is the narrow capability surface over the external SAML
// protocol library. It owns all XML, cryptography, and signature concerns;
// the flow layer never sees raw SAML payloads. Implementations are
// constructed per operation from an immutable configuration snapshot.
type ProtocolEngine interface {
	// MakeRedirectAuthnRequest builds a redirect-binding AuthnRequest for
	// the IdP and returns the fresh request id and Location URL.
	MakeRedirectAuthnRequest(idp *IdPEndpoint, relayState string) (*RedirectMessage, error)

	// ParseResponse parses and verifies a posted SAML response against the
	// set of currently outstanding request ids. The response's issuer
	// selects the matching IdP from the configured set; verification then
	// runs against that IdP's trust anchors.
	ParseResponse(r *http.Request, idps []IdPEndpoint, outstandingIDs []string) (*domain.AssertionInfo, error)

	// MakeRedirectLogoutRequest builds a global LogoutRequest for the
	// subject and returns the request id and Location URL.
	MakeRedirectLogoutRequest(idp *IdPEndpoint, identity *domain.IdentityRecord, relayState string) (*RedirectMessage, error)

	// ValidateLogoutResponse validates an IdP LogoutResponse delivered via
	// the redirect binding.
	ValidateLogoutResponse(idp *IdPEndpoint, query url.Values) (*LogoutReply, error)

	// ProcessLogoutRequest handles an IdP-initiated LogoutRequest for the
	// current session's subject and builds the reply redirect.
	ProcessLogoutRequest(idp *IdPEndpoint, identity *domain.IdentityRecord, query url.Values) (*LogoutTurnaround, error)

	// Metadata renders the SP's entity descriptor. Pure function of the
	// engine's configuration and clock.
	Metadata() ([]byte, error)
}

// UserResolver is the host's authentication backend: it resolves a local
// user from verified assertion identity info. A nil user with a nil error
// means no local user matches; the flow must not create a session.
type UserResolver interface {
	Resolve(info *domain.AssertionInfo) (*domain.User, error)
}
