package engine

import (
	"bytes"
	"compress/flate"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/philiph/samlspflow/internal/core/domain"
	"github.com/philiph/samlspflow/internal/core/ports"
)

// encodeRedirect serializes a protocol message element into the HTTP
// redirect binding: deflate, base64, then a query parameter on the
// destination URL. RelayState is passed through untouched when present.
func encodeRedirect(destination, param string, el *etree.Element, relayState string) (*url.URL, error) {
	var buf bytes.Buffer
	b64 := base64.NewEncoder(base64.StdEncoding, &buf)
	deflate, err := flate.NewWriter(b64, 9)
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	doc.SetRoot(el)
	if _, err := doc.WriteTo(deflate); err != nil {
		return nil, err
	}
	if err := deflate.Close(); err != nil {
		return nil, err
	}
	if err := b64.Close(); err != nil {
		return nil, err
	}

	target, err := url.Parse(destination)
	if err != nil {
		return nil, err
	}
	query := target.Query()
	query.Set(param, buf.String())
	if relayState != "" {
		query.Set("RelayState", relayState)
	}
	target.RawQuery = query.Encode()
	return target, nil
}

// decodeRedirect reverses the redirect binding encoding.
func decodeRedirect(data string) ([]byte, error) {
	if data == "" {
		return nil, fmt.Errorf("empty protocol message")
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	inflated, err := io.ReadAll(flate.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	return inflated, nil
}

// peekResponseIssuer reads the Issuer of a POST-binding SAML response
// without verifying it. Used only to select trust anchors.
func peekResponseIssuer(data string) (string, error) {
	if data == "" {
		return "", fmt.Errorf("empty SAMLResponse")
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return "", fmt.Errorf("empty response document")
	}
	issuer := root.FindElement("./Issuer")
	if issuer == nil {
		return "", fmt.Errorf("response carries no issuer")
	}
	return issuer.Text(), nil
}

// verifyEmbeddedSignature validates the enveloped XML signature of a
// protocol message against the IdP's certificates. Messages without an
// embedded signature pass: the redirect binding signs the query string,
// and enforcement of a signing requirement belongs to IdP configuration.
func (e *Engine) verifyEmbeddedSignature(idp *ports.IdPEndpoint, raw []byte) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return domain.VerificationError(err)
	}
	root := doc.Root()
	if root == nil {
		return domain.VerificationError(fmt.Errorf("empty protocol message"))
	}
	if root.FindElement("./Signature") == nil {
		return nil
	}

	certs, err := idpSigningCerts(idp)
	if err != nil {
		return domain.ConfigError(err.Error())
	}
	if len(certs) == 0 {
		return domain.VerificationError(fmt.Errorf("signed message but no idp certificate configured"))
	}

	ctx := dsig.NewDefaultValidationContext(&dsig.MemoryX509CertificateStore{Roots: certs})
	if _, err := ctx.Validate(root); err != nil {
		return domain.VerificationError(err)
	}
	return nil
}

// randomID generates a protocol message id in the library's id format.
func randomID() string {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return fmt.Sprintf("id-%x", buf)
}
