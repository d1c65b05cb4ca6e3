//go:build unit

package engine

import (
	"encoding/base64"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"

	"github.com/philiph/samlspflow/internal/core/domain"
	"github.com/philiph/samlspflow/internal/core/ports"
)

func testIdP() *ports.IdPEndpoint {
	return &ports.IdPEndpoint{
		EntityID: "https://idp.example.com/metadata",
		SSOURL:   "https://idp.example.com/sso",
		SLOURL:   "https://idp.example.com/slo",
	}
}

func TestMakeRedirectAuthnRequest(t *testing.T) {
	key, cert := testCredentials(t)
	eng := testEngine(t, Config{Key: key, Certificate: cert})

	msg, err := eng.MakeRedirectAuthnRequest(testIdP(), "/dashboard")
	if err != nil {
		t.Fatalf("MakeRedirectAuthnRequest() error = %v", err)
	}

	if msg.RequestID == "" {
		t.Error("request id must be exposed for outstanding tracking")
	}
	if msg.URL == nil {
		t.Fatal("redirect URL must not be nil")
	}
	if msg.URL.Host != "idp.example.com" || msg.URL.Path != "/sso" {
		t.Errorf("redirect target = %s, want the IdP SSO endpoint", msg.URL)
	}
	query := msg.URL.Query()
	if query.Get("SAMLRequest") == "" {
		t.Error("redirect must carry a SAMLRequest parameter")
	}
	if query.Get("RelayState") != "/dashboard" {
		t.Errorf("RelayState = %q, want %q", query.Get("RelayState"), "/dashboard")
	}
}

func TestMakeRedirectAuthnRequest_NoSSOEndpoint(t *testing.T) {
	key, cert := testCredentials(t)
	eng := testEngine(t, Config{Key: key, Certificate: cert})

	idp := testIdP()
	idp.SSOURL = ""
	if _, err := eng.MakeRedirectAuthnRequest(idp, "/"); err == nil {
		t.Error("missing SSO endpoint should be a configuration error")
	}
}

func TestMakeRedirectLogoutRequest(t *testing.T) {
	key, cert := testCredentials(t)
	eng := testEngine(t, Config{Key: key, Certificate: cert})

	identity := &domain.IdentityRecord{
		NameID:       "user@example.com",
		SessionIndex: "idx-7",
		IdPEntityID:  "https://idp.example.com/metadata",
	}
	msg, err := eng.MakeRedirectLogoutRequest(testIdP(), identity, "")
	if err != nil {
		t.Fatalf("MakeRedirectLogoutRequest() error = %v", err)
	}
	if msg.RequestID == "" {
		t.Error("logout request id must be exposed for state correlation")
	}
	if msg.URL.Host != "idp.example.com" || msg.URL.Path != "/slo" {
		t.Errorf("redirect target = %s, want the IdP SLO endpoint", msg.URL)
	}

	raw, err := decodeRedirect(msg.URL.Query().Get("SAMLRequest"))
	if err != nil {
		t.Fatalf("decodeRedirect() error = %v", err)
	}
	body := string(raw)
	if !strings.Contains(body, "user@example.com") {
		t.Error("logout request must name the subject")
	}
	if !strings.Contains(body, "idx-7") {
		t.Error("logout request must carry the session index")
	}
}

func TestMakeRedirectLogoutRequest_NoSLOEndpoint(t *testing.T) {
	key, cert := testCredentials(t)
	eng := testEngine(t, Config{Key: key, Certificate: cert})

	idp := testIdP()
	idp.SLOURL = ""
	identity := &domain.IdentityRecord{NameID: "user@example.com"}
	if _, err := eng.MakeRedirectLogoutRequest(idp, identity, ""); err == nil {
		t.Error("missing SLO endpoint should be a configuration error")
	}
}

func TestValidateLogoutResponse_CarriesInResponseToOnFailure(t *testing.T) {
	key, cert := testCredentials(t)
	eng := testEngine(t, Config{Key: key, Certificate: cert})

	// A response addressed to the wrong destination cannot validate, but
	// its correlating id must still surface for state cleanup.
	el := etree.NewElement("samlp:LogoutResponse")
	el.CreateAttr("xmlns:samlp", "urn:oasis:names:tc:SAML:2.0:protocol")
	el.CreateAttr("ID", randomID())
	el.CreateAttr("InResponseTo", "id-pending-1")
	el.CreateAttr("Version", "2.0")
	el.CreateAttr("IssueInstant", time.Now().UTC().Format(time.RFC3339))
	el.CreateAttr("Destination", "https://wrong.example.com/ls")

	target, err := encodeRedirect("https://sp.example.com/saml/ls", "SAMLResponse", el, "")
	if err != nil {
		t.Fatalf("encodeRedirect() error = %v", err)
	}

	reply, err := eng.ValidateLogoutResponse(testIdP(), target.Query())
	if err == nil {
		t.Fatal("validation should fail for a mis-addressed response")
	}
	if reply == nil {
		t.Fatal("reply must be returned even on failure")
	}
	if reply.InResponseTo != "id-pending-1" {
		t.Errorf("InResponseTo = %q, want %q", reply.InResponseTo, "id-pending-1")
	}
	if reply.Outcome != domain.LogoutOutcomeFailed {
		t.Errorf("Outcome = %v, want failed", reply.Outcome)
	}
}

func makeIdPLogoutQuery(t *testing.T, idp *ports.IdPEndpoint, nameID, relayState string) url.Values {
	t.Helper()
	el := etree.NewElement("samlp:LogoutRequest")
	el.CreateAttr("xmlns:samlp", "urn:oasis:names:tc:SAML:2.0:protocol")
	el.CreateAttr("xmlns:saml", "urn:oasis:names:tc:SAML:2.0:assertion")
	el.CreateAttr("ID", "id-idp-initiated-1")
	el.CreateAttr("Version", "2.0")
	el.CreateAttr("IssueInstant", time.Now().UTC().Format(time.RFC3339))
	el.CreateElement("saml:Issuer").SetText(idp.EntityID)
	nameEl := el.CreateElement("saml:NameID")
	nameEl.SetText(nameID)

	target, err := encodeRedirect("https://sp.example.com/saml/ls", "SAMLRequest", el, relayState)
	if err != nil {
		t.Fatalf("encodeRedirect() error = %v", err)
	}
	return target.Query()
}

func TestProcessLogoutRequest_MatchingSubject(t *testing.T) {
	key, cert := testCredentials(t)
	eng := testEngine(t, Config{Key: key, Certificate: cert})
	idp := testIdP()

	identity := &domain.IdentityRecord{NameID: "user@example.com"}
	turn, err := eng.ProcessLogoutRequest(idp, identity, makeIdPLogoutQuery(t, idp, "user@example.com", "token-123"))
	if err != nil {
		t.Fatalf("ProcessLogoutRequest() error = %v", err)
	}
	if turn.Outcome != domain.LogoutOutcomeSuccess {
		t.Errorf("Outcome = %v, want success", turn.Outcome)
	}
	if turn.URL == nil {
		t.Fatal("reply redirect must not be nil")
	}
	if turn.URL.Host != "idp.example.com" || turn.URL.Path != "/slo" {
		t.Errorf("reply target = %s, want the IdP SLO endpoint", turn.URL)
	}
	query := turn.URL.Query()
	if query.Get("RelayState") != "token-123" {
		t.Errorf("RelayState = %q, the IdP's token must round-trip untouched", query.Get("RelayState"))
	}

	raw, err := decodeRedirect(query.Get("SAMLResponse"))
	if err != nil {
		t.Fatalf("decodeRedirect() error = %v", err)
	}
	body := string(raw)
	if !strings.Contains(body, `InResponseTo="id-idp-initiated-1"`) {
		t.Errorf("reply must correlate to the IdP's request: %s", body)
	}
	if !strings.Contains(body, "urn:oasis:names:tc:SAML:2.0:status:Success") {
		t.Errorf("reply should report success: %s", body)
	}
}

func TestProcessLogoutRequest_SubjectMismatchIsPartial(t *testing.T) {
	key, cert := testCredentials(t)
	eng := testEngine(t, Config{Key: key, Certificate: cert})
	idp := testIdP()

	identity := &domain.IdentityRecord{NameID: "someone-else@example.com"}
	turn, err := eng.ProcessLogoutRequest(idp, identity, makeIdPLogoutQuery(t, idp, "user@example.com", ""))
	if err != nil {
		t.Fatalf("ProcessLogoutRequest() error = %v", err)
	}
	if turn.Outcome != domain.LogoutOutcomePartial {
		t.Errorf("Outcome = %v, want partial", turn.Outcome)
	}
	if turn.URL == nil {
		t.Fatal("a partial outcome still carries the reply redirect")
	}
	raw, err := decodeRedirect(turn.URL.Query().Get("SAMLResponse"))
	if err != nil {
		t.Fatalf("decodeRedirect() error = %v", err)
	}
	if !strings.Contains(string(raw), "urn:oasis:names:tc:SAML:2.0:status:PartialLogout") {
		t.Errorf("reply should report partial logout: %s", raw)
	}
}

func TestProcessLogoutRequest_NoLocalIdentityIsPartial(t *testing.T) {
	key, cert := testCredentials(t)
	eng := testEngine(t, Config{Key: key, Certificate: cert})
	idp := testIdP()

	turn, err := eng.ProcessLogoutRequest(idp, nil, makeIdPLogoutQuery(t, idp, "user@example.com", ""))
	if err != nil {
		t.Fatalf("ProcessLogoutRequest() error = %v", err)
	}
	if turn.Outcome != domain.LogoutOutcomePartial {
		t.Errorf("Outcome = %v, want partial", turn.Outcome)
	}
}

func TestProcessLogoutRequest_IssuerMismatch(t *testing.T) {
	key, cert := testCredentials(t)
	eng := testEngine(t, Config{Key: key, Certificate: cert})

	stranger := &ports.IdPEndpoint{
		EntityID: "https://stranger.example.com",
		SSOURL:   "https://stranger.example.com/sso",
		SLOURL:   "https://stranger.example.com/slo",
	}
	query := makeIdPLogoutQuery(t, stranger, "user@example.com", "")
	if _, err := eng.ProcessLogoutRequest(testIdP(), nil, query); err == nil {
		t.Error("a request issued by a different entity must be rejected")
	}
}

func TestProcessLogoutRequest_GarbageMessage(t *testing.T) {
	key, cert := testCredentials(t)
	eng := testEngine(t, Config{Key: key, Certificate: cert})

	query := url.Values{"SAMLRequest": {base64.StdEncoding.EncodeToString([]byte("not xml at all"))}}
	if _, err := eng.ProcessLogoutRequest(testIdP(), nil, query); err == nil {
		t.Error("an undecodable message must be rejected")
	}
}
