package engine

import (
	"crypto/tls"
	"encoding/xml"
	"time"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/philiph/samlspflow/internal/core/domain"
)

// metadataValidityFormat is the xs:dateTime layout for validUntil.
const metadataValidityFormat = "2006-01-02T15:04:05Z"

// Metadata renders the SP's entity descriptor. The validity window, document
// id, and display name come from configuration; with a fixed clock and
// signing disabled the output is byte-identical for identical configuration.
func (e *Engine) Metadata() ([]byte, error) {
	sp, err := e.serviceProvider(nil)
	if err != nil {
		return nil, err
	}

	descriptor := sp.Metadata()
	raw, err := xml.MarshalIndent(descriptor, "", "  ")
	if err != nil {
		return nil, domain.ContractError("failed to render metadata", err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, domain.ContractError("failed to render metadata", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, domain.ContractError("protocol library produced empty metadata", nil)
	}

	validFor := e.cfg.MetadataValidFor
	if validFor <= 0 {
		validFor = 24 * time.Hour
	}
	root.CreateAttr("validUntil", e.clock.Now().UTC().Add(validFor).Format(metadataValidityFormat))

	if e.cfg.MetadataID != "" {
		root.CreateAttr("ID", e.cfg.MetadataID)
	}
	if e.cfg.MetadataName != "" {
		org := root.CreateElement("Organization")
		for _, tag := range []string{"OrganizationName", "OrganizationDisplayName"} {
			el := org.CreateElement(tag)
			el.CreateAttr("xml:lang", "en")
			el.SetText(e.cfg.MetadataName)
		}
		orgURL := org.CreateElement("OrganizationURL")
		orgURL.CreateAttr("xml:lang", "en")
		orgURL.SetText(e.cfg.EntityID)
	}

	if e.cfg.SignMetadata {
		signed, err := e.signElement(root)
		if err != nil {
			return nil, err
		}
		doc = etree.NewDocument()
		doc.SetRoot(signed)
	}

	doc.Indent(2)
	return doc.WriteToBytes()
}

// signElement wraps the element in an enveloped XML signature using the
// SP's key and certificate.
func (e *Engine) signElement(el *etree.Element) (*etree.Element, error) {
	if e.cfg.Key == nil || e.cfg.Certificate == nil {
		return nil, domain.ConfigError("metadata signing requires the SP key and certificate")
	}

	keyStore := dsig.TLSCertKeyStore(tls.Certificate{
		Certificate: [][]byte{e.cfg.Certificate.Raw},
		PrivateKey:  e.cfg.Key,
		Leaf:        e.cfg.Certificate,
	})
	ctx := dsig.NewDefaultSigningContext(keyStore)

	signed, err := ctx.SignEnveloped(el)
	if err != nil {
		return nil, domain.ContractError("failed to sign metadata", err)
	}
	return signed, nil
}
