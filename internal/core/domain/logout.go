package domain

import "net/url"

// LogoutMessageKind tags which leg of Single Logout an inbound request to
// the logout service belongs to. The classification is decided once at the
// HTTP boundary and passed down, never re-derived from the query.
type LogoutMessageKind int

const (
	// LogoutUnknown means neither protocol parameter is present.
	LogoutUnknown LogoutMessageKind = iota

	// LogoutSPReply is the IdP's LogoutResponse to a logout we initiated.
	LogoutSPReply

	// LogoutIdPRequest is a LogoutRequest initiated by the IdP, independent
	// of any SP-initiated flow.
	LogoutIdPRequest
)

// String returns the kind name for logs and metrics labels.
func (k LogoutMessageKind) String() string {
	switch k {
	case LogoutSPReply:
		return "sp_reply"
	case LogoutIdPRequest:
		return "idp_request"
	default:
		return "unknown"
	}
}

// ClassifyLogoutMessage inspects the logout service query parameters and
// returns the message kind. SAMLResponse wins if both are present, matching
// the order the original protocol dispatch checked them in.
func ClassifyLogoutMessage(query url.Values) LogoutMessageKind {
	if query.Get("SAMLResponse") != "" {
		return LogoutSPReply
	}
	if query.Get("SAMLRequest") != "" {
		return LogoutIdPRequest
	}
	return LogoutUnknown
}

// LogoutOutcome is the result of processing one SLO leg.
type LogoutOutcome int

const (
	// LogoutOutcomeFailed means the message could not be validated or no
	// reply could be produced at all.
	LogoutOutcomeFailed LogoutOutcome = iota

	// LogoutOutcomeSuccess means the leg completed and the local session
	// may be torn down.
	LogoutOutcomeSuccess

	// LogoutOutcomePartial means the leg did not complete cleanly but a
	// redirect target was still produced, e.g. a multi-SP fan-out where
	// another participant failed. The user is redirected like on success;
	// the ambiguity is preserved deliberately and only surfaced in logs
	// and metrics, and the local session is not torn down.
	LogoutOutcomePartial
)

// String returns the outcome name for logs and metrics labels.
func (o LogoutOutcome) String() string {
	switch o {
	case LogoutOutcomeSuccess:
		return "success"
	case LogoutOutcomePartial:
		return "partial"
	default:
		return "failed"
	}
}

// PendingLogout is the protocol state kept between sending a LogoutRequest
// and receiving the IdP's LogoutResponse. Stored in the Protocol State
// Store keyed by the request id, because the reply may arrive on a
// different request context than the one that initiated the logout.
type PendingLogout struct {
	// RequestID is the protocol-assigned id of the LogoutRequest we sent.
	RequestID string `json:"request_id"`

	// SessionHandle names the browser session whose trackers must be
	// cleared when the reply arrives.
	SessionHandle string `json:"session_handle"`

	// Identity is the subject the logout was issued for.
	Identity IdentityRecord `json:"identity"`

	// IssuedAt is the unix time the request was issued, for expiry.
	IssuedAt int64 `json:"issued_at"`
}
