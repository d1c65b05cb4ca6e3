package samlspflow

import (
	"github.com/philiph/samlspflow/internal/core/domain"
	"github.com/philiph/samlspflow/internal/core/ports"
)

// NameIDResolver is the default user resolver: it accepts every verified
// subject and uses the SAML NameID as the local user id. Deployments with
// their own user backend replace it via WithUserResolver.
type NameIDResolver struct{}

// Resolve maps a verified assertion to a local user keyed by NameID.
func (NameIDResolver) Resolve(info *domain.AssertionInfo) (*domain.User, error) {
	if info == nil || info.NameID == "" {
		return nil, nil
	}
	name := info.Attributes["displayName"]
	if name == "" {
		name = info.Attributes["cn"]
	}
	return &domain.User{
		ID:         info.NameID,
		Name:       name,
		Attributes: info.Attributes,
	}, nil
}

var _ ports.UserResolver = NameIDResolver{}
