package samlspflow

import (
	"github.com/philiph/samlspflow/internal/core/domain"
	"github.com/philiph/samlspflow/internal/core/ports"
)

// Re-export the domain types a host application touches: the resolver
// contract and the identity shapes it receives.
type (
	AssertionInfo  = domain.AssertionInfo
	IdentityRecord = domain.IdentityRecord
	User           = domain.User
	UserResolver   = ports.UserResolver

	SessionCache     = ports.SessionCache
	OutstandingStore = ports.OutstandingStore
	IdentityStore    = ports.IdentityStore
	ProtocolEngine   = ports.ProtocolEngine
	IdPEndpoint      = ports.IdPEndpoint
)

var (
	ErrDuplicateRequestID = ports.ErrDuplicateRequestID
	ErrUnknownRequest     = ports.ErrUnknownRequest
)

// ValidateRelayState re-exports the return-destination validator so hosts
// building their own login links can apply the same rules.
var ValidateRelayState = domain.ValidateRelayState
