// Command testidp runs a throwaway SAML Identity Provider for exercising
// the SP flows locally. It self-registers the SP from its metadata URL and
// seeds one test user.
// Usage: go run ./cmd/testidp
package main

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/xml"
	"flag"
	"fmt"
	"io"
	"log"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/crewjam/saml/samlidp"
)

func main() {
	port := flag.Int("port", 8443, "Port to listen on")
	spMetadata := flag.String("sp-metadata", "http://localhost:9080/saml/metadata", "SP metadata URL to register")
	flag.Parse()

	key, cert, err := selfSignedCredentials()
	if err != nil {
		log.Fatalf("generate credentials: %v", err)
	}

	base, _ := url.Parse(fmt.Sprintf("http://localhost:%d", *port))
	idp, err := samlidp.New(samlidp.Options{
		URL:         *base,
		Key:         key,
		Certificate: cert,
		Store:       &samlidp.MemoryStore{},
	})
	if err != nil {
		log.Fatalf("create idp: %v", err)
	}

	go seed(base.String(), *spMetadata)

	log.Printf("Test IdP on %s", base)
	log.Printf("  Metadata: %s/metadata", base)
	log.Printf("  SSO:      %s/sso", base)
	log.Println("Credentials: testuser / password")

	if err := http.ListenAndServe(fmt.Sprintf(":%d", *port), idp); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

// seed adds the test user and registers the SP once both servers are up.
func seed(idpBase, spMetadataURL string) {
	time.Sleep(500 * time.Millisecond)
	if err := putUser(idpBase, "testuser", "password"); err != nil {
		log.Printf("seed user: %v", err)
	}
	if err := putService(idpBase, spMetadataURL); err != nil {
		log.Printf("register SP from %s: %v (is the SP running?)", spMetadataURL, err)
	} else {
		log.Printf("registered SP from %s", spMetadataURL)
	}
}

func putUser(idpBase, name, password string) error {
	body, err := json.Marshal(samlidp.User{
		Name:              name,
		PlaintextPassword: &password,
		Email:             name + "@example.com",
		CommonName:        name,
		GivenName:         name,
		Surname:           "Test",
	})
	if err != nil {
		return err
	}
	return put(idpBase+"/users/"+name, "application/json", body)
}

func putService(idpBase, metadataURL string) error {
	resp, err := http.Get(metadataURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("metadata status %d", resp.StatusCode)
	}
	metadata, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var descriptor struct {
		EntityID string `xml:"entityID,attr"`
	}
	if err := xml.Unmarshal(metadata, &descriptor); err != nil {
		return fmt.Errorf("parse metadata: %w", err)
	}

	return put(idpBase+"/services/"+url.PathEscape(descriptor.EntityID), "application/xml", metadata)
}

func put(target, contentType string, body []byte) error {
	req, err := http.NewRequest(http.MethodPut, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("put %s: status %d", target, resp.StatusCode)
	}
	return nil
}

func selfSignedCredentials() (*rsa.PrivateKey, *x509.Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, err
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName:   "Test IdP",
			Organization: []string{"Test"},
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, err
	}
	return key, cert, nil
}
