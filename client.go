package samlspflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/philiph/samlspflow/internal/core/domain"
	"github.com/philiph/samlspflow/internal/core/ports"
)

// pendingLogoutKey namespaces protocol state entries for SP-initiated
// logouts awaiting their IdP reply.
func pendingLogoutKey(requestID string) string {
	return "slo:" + requestID
}

// protocolClient runs one protocol operation for one browser session. It is
// built per request: the engine works on a cloned configuration and the
// trackers are bound to the caller's session handle.
type protocolClient struct {
	engine      ports.ProtocolEngine
	outstanding ports.OutstandingStore
	identity    ports.IdentityStore
	state       ports.StateStore
	handle      string
	logger      *zap.Logger
	metrics     ports.MetricsRecorder
}

// StartLogin builds an authentication request for the given IdP and records
// its ID against the session before returning the redirect target. The ID
// is recorded before the caller ever sees the URL, so the assertion
// consumer can always correlate the reply.
func (c *protocolClient) StartLogin(idp *ports.IdPEndpoint, next string) (*url.URL, error) {
	msg, err := c.engine.MakeRedirectAuthnRequest(idp, next)
	if err != nil {
		return nil, err
	}
	if msg.URL == nil {
		return nil, domain.ContractError("authentication request yielded no redirect location", nil)
	}
	if msg.RequestID == "" {
		return nil, domain.ContractError("authentication request yielded no request id", nil)
	}
	if err := c.outstanding.Record(msg.RequestID, next); err != nil {
		return nil, domain.ContractError("failed to record outstanding request", err)
	}
	c.metrics.RecordLoginStarted(idp.EntityID)
	return msg.URL, nil
}

// ConsumeAssertion verifies an incoming SAML response against the session's
// full outstanding-request set and retires the matched entry, returning the
// destination recorded when the request was issued. A response that
// verified but correlates to no tracked request is tolerated with a
// warning: trust comes from signature verification, the tracker is
// bookkeeping.
func (c *protocolClient) ConsumeAssertion(r *http.Request, idps []ports.IdPEndpoint) (*domain.AssertionInfo, string, error) {
	info, err := c.engine.ParseResponse(r, idps, c.outstanding.IDs())
	if err != nil {
		c.metrics.RecordAssertion(false)
		return nil, "", err
	}
	var returnTo string
	if info.InResponseTo != "" {
		returnTo, err = c.outstanding.Resolve(info.InResponseTo)
		if err != nil {
			c.logger.Warn("verified response correlates to no outstanding request",
				zap.String("in_response_to", info.InResponseTo))
		}
		c.outstanding.Forget(info.InResponseTo)
	}
	return info, returnTo, nil
}

// RegisterIdentity stores the just-asserted subject identity against the
// session so a later logout can name it to the IdP.
func (c *protocolClient) RegisterIdentity(info *domain.AssertionInfo) error {
	return c.identity.Set(domain.IdentityRecord{
		NameID:       info.NameID,
		NameIDFormat: info.NameIDFormat,
		SessionIndex: info.SessionIndex,
		IdPEntityID:  info.IdPEntityID,
	})
}

// Identity returns the session's stored subject identity, if any.
func (c *protocolClient) Identity() (domain.IdentityRecord, bool) {
	return c.identity.Get()
}

// StartLogout builds a logout request naming the session's stored identity
// and persists a pending-logout entry in the protocol state store. The
// entry is committed before the redirect URL is returned: once the browser
// leaves for the IdP, the state is durably visible to whichever process
// receives the reply.
func (c *protocolClient) StartLogout(ctx context.Context, idp *ports.IdPEndpoint) (*url.URL, error) {
	rec, ok := c.identity.Get()
	if !ok {
		return nil, domain.NotAuthenticatedError()
	}

	msg, err := c.engine.MakeRedirectLogoutRequest(idp, &rec, "")
	if err != nil {
		return nil, err
	}
	if msg.URL == nil {
		return nil, domain.ContractError("logout request yielded no redirect location", nil)
	}

	tx, err := c.state.Acquire(ctx, pendingLogoutKey(msg.RequestID))
	if err != nil {
		c.metrics.RecordStateOp("acquire", false)
		return nil, domain.ContractError("failed to acquire protocol state", err)
	}
	defer tx.Release()

	entry := domain.PendingLogout{
		RequestID:     msg.RequestID,
		SessionHandle: c.handle,
		Identity:      rec,
		IssuedAt:      time.Now().Unix(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, domain.ContractError("failed to encode pending logout", err)
	}
	tx.Set(raw)
	if err := tx.Commit(ctx); err != nil {
		c.metrics.RecordStateOp("commit", false)
		return nil, domain.ContractError("failed to persist pending logout", err)
	}
	c.metrics.RecordStateOp("commit", true)
	return msg.URL, nil
}

// FinishLogout validates the IdP's logout response and clears the matching
// pending-logout entry. The entry is cleared whether or not validation
// succeeded: the exchange is over either way.
func (c *protocolClient) FinishLogout(ctx context.Context, idp *ports.IdPEndpoint, query url.Values) (domain.LogoutOutcome, error) {
	reply, err := c.engine.ValidateLogoutResponse(idp, query)
	if reply != nil && reply.InResponseTo != "" {
		c.clearPendingLogout(ctx, reply.InResponseTo)
	}
	if err != nil {
		return domain.LogoutOutcomeFailed, err
	}
	if reply == nil {
		return domain.LogoutOutcomeFailed, domain.ContractError("logout response validation yielded no reply", nil)
	}
	return reply.Outcome, nil
}

// AnswerIdPLogout handles an unsolicited logout request from the IdP and
// returns the signed reply to deliver back, whatever its status.
func (c *protocolClient) AnswerIdPLogout(idp *ports.IdPEndpoint, query url.Values) (*ports.LogoutTurnaround, error) {
	var rec *domain.IdentityRecord
	if r, ok := c.identity.Get(); ok {
		rec = &r
	}
	turn, err := c.engine.ProcessLogoutRequest(idp, rec, query)
	if err != nil {
		return nil, err
	}
	if turn == nil || turn.URL == nil {
		return nil, domain.ContractError("logout request processing yielded no reply location", nil)
	}
	return turn, nil
}

func (c *protocolClient) clearPendingLogout(ctx context.Context, requestID string) {
	tx, err := c.state.Acquire(ctx, pendingLogoutKey(requestID))
	if err != nil {
		c.metrics.RecordStateOp("acquire", false)
		c.logger.Warn("failed to acquire pending logout state",
			zap.String("request_id", requestID), zap.Error(err))
		return
	}
	defer tx.Release()

	if _, ok := tx.Get(); !ok {
		c.logger.Warn("logout reply correlates to no pending logout",
			zap.String("request_id", requestID))
		return
	}
	tx.Delete()
	if err := tx.Commit(ctx); err != nil {
		c.metrics.RecordStateOp("commit", false)
		c.logger.Warn("failed to clear pending logout state",
			zap.String("request_id", requestID), zap.Error(err))
		return
	}
	c.metrics.RecordStateOp("commit", true)
}
