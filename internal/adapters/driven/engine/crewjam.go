// Package engine adapts github.com/crewjam/saml to the ProtocolEngine port.
// It is the only package that touches raw SAML XML, signatures, or keys;
// the flow layer above sees protocol ids, URLs, and verdicts.
package engine

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crewjam/saml"

	"github.com/philiph/samlspflow/internal/core/domain"
	"github.com/philiph/samlspflow/internal/core/ports"
)

const entityIssuerFormat = "urn:oasis:names:tc:SAML:2.0:nameid-format:entity"

// statusPartialLogout is the SAML status for a logout that did not complete
// across every participant.
const statusPartialLogout = "urn:oasis:names:tc:SAML:2.0:status:PartialLogout"

// Clock abstracts time for deterministic metadata output in tests.
type Clock interface {
	Now() time.Time
}

// RealClock uses the system clock.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// Config is the immutable per-operation configuration of the engine.
// Callers hand the engine a fresh copy for every protocol operation so the
// library can never observe shared mutable state across requests.
type Config struct {
	// EntityID is the SP's SAML entity id.
	EntityID string

	// BaseURL is the externally visible scheme://host[:port] of the SP.
	BaseURL *url.URL

	// AcsPath, SloPath, MetadataPath locate the SP endpoints under BaseURL.
	AcsPath      string
	SloPath      string
	MetadataPath string

	// Key and Certificate are the SP's signing credentials.
	Key         *rsa.PrivateKey
	Certificate *x509.Certificate

	// MetadataID, MetadataName, SignMetadata, MetadataValidFor shape the
	// published entity descriptor.
	MetadataID       string
	MetadataName     string
	SignMetadata     bool
	MetadataValidFor time.Duration

	// Clock defaults to RealClock.
	Clock Clock
}

// Engine implements ports.ProtocolEngine on crewjam/saml.
type Engine struct {
	cfg   Config
	clock Clock
}

// New creates an engine from the given configuration snapshot.
func New(cfg Config) *Engine {
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock{}
	}
	return &Engine{cfg: cfg, clock: clock}
}

func (e *Engine) endpointURL(path string) url.URL {
	return url.URL{Scheme: e.cfg.BaseURL.Scheme, Host: e.cfg.BaseURL.Host, Path: path}
}

// serviceProvider builds a crewjam ServiceProvider bound to one IdP.
// idp may be nil for operations that do not address an IdP (metadata).
func (e *Engine) serviceProvider(idp *ports.IdPEndpoint) (*saml.ServiceProvider, error) {
	sp := &saml.ServiceProvider{
		EntityID:    e.cfg.EntityID,
		Key:         e.cfg.Key,
		Certificate: e.cfg.Certificate,
		MetadataURL: e.endpointURL(e.cfg.MetadataPath),
		AcsURL:      e.endpointURL(e.cfg.AcsPath),
		SloURL:      e.endpointURL(e.cfg.SloPath),
	}
	if e.cfg.MetadataValidFor > 0 {
		sp.MetadataValidDuration = e.cfg.MetadataValidFor
	}
	if idp != nil {
		md, err := idpEntityDescriptor(idp)
		if err != nil {
			return nil, err
		}
		sp.IDPMetadata = md
	}
	return sp, nil
}

// idpEntityDescriptor converts IdP endpoint configuration to the entity
// descriptor shape the library consumes.
func idpEntityDescriptor(idp *ports.IdPEndpoint) (*saml.EntityDescriptor, error) {
	if idp.SSOURL == "" {
		return nil, domain.ConfigError("identity provider has no single sign-on endpoint")
	}

	ed := &saml.EntityDescriptor{
		EntityID: idp.EntityID,
		IDPSSODescriptors: []saml.IDPSSODescriptor{{
			SingleSignOnServices: []saml.Endpoint{{
				Binding:  saml.HTTPRedirectBinding,
				Location: idp.SSOURL,
			}},
		}},
	}

	if idp.SLOURL != "" {
		ed.IDPSSODescriptors[0].SingleLogoutServices = []saml.Endpoint{{
			Binding:  saml.HTTPRedirectBinding,
			Location: idp.SLOURL,
		}}
	}

	for _, certData := range idp.Certificates {
		ed.IDPSSODescriptors[0].KeyDescriptors = append(
			ed.IDPSSODescriptors[0].KeyDescriptors,
			saml.KeyDescriptor{
				Use: "signing",
				KeyInfo: saml.KeyInfo{
					X509Data: saml.X509Data{
						X509Certificates: []saml.X509Certificate{{Data: certData}},
					},
				},
			},
		)
	}

	return ed, nil
}

// idpSigningCerts parses the IdP's configured certificates.
func idpSigningCerts(idp *ports.IdPEndpoint) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for _, data := range idp.Certificates {
		der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(data), ""))
		if err != nil {
			return nil, fmt.Errorf("decode idp certificate: %w", err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("parse idp certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// MakeRedirectAuthnRequest builds a redirect-binding AuthnRequest and
// returns the fresh request id and Location URL.
func (e *Engine) MakeRedirectAuthnRequest(idp *ports.IdPEndpoint, relayState string) (*ports.RedirectMessage, error) {
	sp, err := e.serviceProvider(idp)
	if err != nil {
		return nil, err
	}

	authReq, err := sp.MakeAuthenticationRequest(idp.SSOURL, saml.HTTPRedirectBinding, saml.HTTPPostBinding)
	if err != nil {
		return nil, domain.ContractError("failed to build authentication request", err)
	}

	redirectURL, err := authReq.Redirect(relayState, sp)
	if err != nil {
		return nil, domain.ContractError("failed to build redirect location", err)
	}
	if redirectURL == nil {
		return nil, domain.ContractError("protocol library produced no redirect location", nil)
	}

	return &ports.RedirectMessage{RequestID: authReq.ID, URL: redirectURL}, nil
}

// ParseResponse parses and verifies a posted SAML response against the set
// of currently outstanding request ids. The response issuer only selects
// which configured IdP's trust anchors to verify with; trust in the
// response derives from the library's verification alone.
func (e *Engine) ParseResponse(r *http.Request, idps []ports.IdPEndpoint, outstandingIDs []string) (*domain.AssertionInfo, error) {
	idp, err := matchResponseIdP(r, idps)
	if err != nil {
		return nil, err
	}
	sp, err := e.serviceProvider(idp)
	if err != nil {
		return nil, err
	}

	assertion, err := sp.ParseResponse(r, outstandingIDs)
	if err != nil {
		return nil, domain.VerificationError(err)
	}

	info := &domain.AssertionInfo{
		IdPEntityID: idp.EntityID,
		Attributes:  make(map[string]string),
	}

	if assertion.Subject != nil && assertion.Subject.NameID != nil {
		info.NameID = assertion.Subject.NameID.Value
		info.NameIDFormat = assertion.Subject.NameID.Format
	}
	if assertion.Subject != nil {
		for _, sc := range assertion.Subject.SubjectConfirmations {
			if sc.SubjectConfirmationData != nil && sc.SubjectConfirmationData.InResponseTo != "" {
				info.InResponseTo = sc.SubjectConfirmationData.InResponseTo
				break
			}
		}
	}
	for _, stmt := range assertion.AuthnStatements {
		if stmt.SessionIndex != "" {
			info.SessionIndex = stmt.SessionIndex
			break
		}
	}
	for _, stmt := range assertion.AttributeStatements {
		for _, attr := range stmt.Attributes {
			if len(attr.Values) == 0 {
				continue
			}
			key := attr.FriendlyName
			if key == "" {
				key = attr.Name
			}
			info.Attributes[key] = attr.Values[0].Value
		}
	}

	return info, nil
}

// matchResponseIdP picks the configured IdP whose entity id matches the
// response's Issuer. With a single configured IdP the peek is skipped.
func matchResponseIdP(r *http.Request, idps []ports.IdPEndpoint) (*ports.IdPEndpoint, error) {
	if len(idps) == 0 {
		return nil, domain.ConfigError("no identity provider is configured")
	}
	if len(idps) == 1 {
		return &idps[0], nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, domain.VerificationError(err)
	}
	issuer, err := peekResponseIssuer(r.PostForm.Get("SAMLResponse"))
	if err != nil {
		return nil, domain.VerificationError(err)
	}
	for i := range idps {
		if idps[i].EntityID == issuer {
			return &idps[i], nil
		}
	}
	return nil, domain.VerificationError(fmt.Errorf("response issuer matches no configured identity provider"))
}

// MakeRedirectLogoutRequest builds a global LogoutRequest for the subject.
// The redirect encoding is done locally so the request id stays visible for
// correlation with the IdP's eventual reply.
func (e *Engine) MakeRedirectLogoutRequest(idp *ports.IdPEndpoint, identity *domain.IdentityRecord, relayState string) (*ports.RedirectMessage, error) {
	if idp.SLOURL == "" {
		return nil, domain.ConfigError("identity provider has no single logout endpoint")
	}
	sp, err := e.serviceProvider(idp)
	if err != nil {
		return nil, err
	}

	req, err := sp.MakeLogoutRequest(idp.SLOURL, identity.NameID)
	if err != nil {
		return nil, domain.ContractError("failed to build logout request", err)
	}
	if identity.SessionIndex != "" {
		req.SessionIndex = &saml.SessionIndex{Value: identity.SessionIndex}
	}

	redirectURL, err := encodeRedirect(idp.SLOURL, "SAMLRequest", req.Element(), relayState)
	if err != nil {
		return nil, domain.ContractError("failed to build redirect location", err)
	}

	return &ports.RedirectMessage{RequestID: req.ID, URL: redirectURL}, nil
}

// ValidateLogoutResponse validates an IdP LogoutResponse delivered via the
// redirect binding. The returned reply carries the correlating id even when
// validation fails, so pending state can be cleaned up.
func (e *Engine) ValidateLogoutResponse(idp *ports.IdPEndpoint, query url.Values) (*ports.LogoutReply, error) {
	data := query.Get("SAMLResponse")
	raw, err := decodeRedirect(data)
	if err != nil {
		return nil, domain.VerificationError(err)
	}

	var resp saml.LogoutResponse
	if err := xml.Unmarshal(raw, &resp); err != nil {
		return nil, domain.VerificationError(err)
	}
	reply := &ports.LogoutReply{InResponseTo: resp.InResponseTo}

	sp, err := e.serviceProvider(idp)
	if err != nil {
		return reply, err
	}
	if err := sp.ValidateLogoutResponseRedirect(data); err != nil {
		reply.Outcome = domain.LogoutOutcomeFailed
		return reply, domain.VerificationError(err)
	}

	reply.Outcome = domain.LogoutOutcomeSuccess
	return reply, nil
}

// ProcessLogoutRequest handles an IdP-initiated LogoutRequest and builds
// the reply redirect. A subject mismatch yields the partial outcome with a
// redirect still attached; an unverifiable message yields no reply at all.
func (e *Engine) ProcessLogoutRequest(idp *ports.IdPEndpoint, identity *domain.IdentityRecord, query url.Values) (*ports.LogoutTurnaround, error) {
	if idp.SLOURL == "" {
		return nil, domain.ConfigError("identity provider has no single logout endpoint")
	}

	raw, err := decodeRedirect(query.Get("SAMLRequest"))
	if err != nil {
		return nil, domain.VerificationError(err)
	}
	var req saml.LogoutRequest
	if err := xml.Unmarshal(raw, &req); err != nil {
		return nil, domain.VerificationError(err)
	}
	if req.Issuer == nil || req.Issuer.Value != idp.EntityID {
		return nil, domain.VerificationError(fmt.Errorf("logout request issuer mismatch"))
	}
	if err := e.verifyEmbeddedSignature(idp, raw); err != nil {
		return nil, err
	}

	outcome := domain.LogoutOutcomeSuccess
	statusCode := saml.StatusSuccess
	if identity == nil || req.NameID == nil || identity.NameID != req.NameID.Value {
		// The IdP names a subject this session does not hold, e.g. a
		// multi-SP fan-out that outlived our session. Answer with a
		// partial status but still send the user back to the IdP.
		outcome = domain.LogoutOutcomePartial
		statusCode = statusPartialLogout
	}

	resp := saml.LogoutResponse{
		ID:           randomID(),
		InResponseTo: req.ID,
		Version:      "2.0",
		IssueInstant: e.clock.Now().UTC(),
		Destination:  idp.SLOURL,
		Issuer: &saml.Issuer{
			Format: entityIssuerFormat,
			Value:  e.cfg.EntityID,
		},
		Status: saml.Status{
			StatusCode: saml.StatusCode{Value: statusCode},
		},
	}

	redirectURL, err := encodeRedirect(idp.SLOURL, "SAMLResponse", resp.Element(), query.Get("RelayState"))
	if err != nil {
		return nil, domain.ContractError("failed to build logout reply location", err)
	}

	return &ports.LogoutTurnaround{Outcome: outcome, URL: redirectURL}, nil
}
