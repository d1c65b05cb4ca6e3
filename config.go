package samlspflow

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/philiph/samlspflow/internal/core/ports"
)

// IdPConfig describes one identity provider the SP trusts.
type IdPConfig struct {
	// EntityID is the IdP's SAML entity ID (required).
	EntityID string `yaml:"entity_id"`

	// DisplayName is shown on the discovery page. Defaults to EntityID.
	DisplayName string `yaml:"display_name,omitempty"`

	// SSOURL is the Single Sign-On endpoint, redirect binding (required).
	SSOURL string `yaml:"sso_url"`

	// SLOURL is the Single Logout endpoint, redirect binding. Logout flows
	// fail with a configuration error when unset.
	SLOURL string `yaml:"slo_url,omitempty"`

	// Certificates are the IdP's signing certificates, base64 DER.
	Certificates []string `yaml:"certificates,omitempty"`
}

// Config holds the configuration for the SP flow handler. Flows never read
// it directly: each protocol operation works on a Clone, so the protocol
// library cannot observe or mutate shared process state across requests.
type Config struct {
	// EntityID is the SAML entity ID for this SP (required).
	EntityID string `yaml:"entity_id"`

	// BaseURL is the externally visible scheme://host[:port] of this SP
	// (required).
	BaseURL string `yaml:"base_url"`

	// BasePath is the path prefix the flow endpoints are mounted under.
	// Defaults to "/saml".
	BasePath string `yaml:"base_path,omitempty"`

	// KeyFile is the path to the SP private key file (PEM format, required).
	KeyFile string `yaml:"key_file"`

	// CertFile is the path to the SP certificate file (PEM format, required).
	CertFile string `yaml:"cert_file"`

	// MetadataID is the optional ID attribute of the published entity
	// descriptor.
	MetadataID string `yaml:"metadata_id,omitempty"`

	// MetadataName is the optional organization display name in the
	// published metadata.
	MetadataName string `yaml:"metadata_name,omitempty"`

	// MetadataSign enables an enveloped signature on the published
	// metadata.
	MetadataSign bool `yaml:"metadata_sign,omitempty"`

	// MetadataValidFor is the metadata validity window (e.g. "24h").
	// Defaults to "24h".
	MetadataValidFor string `yaml:"metadata_valid_for,omitempty"`

	// SessionCookieName is the name of the authenticated session cookie.
	// Defaults to "samlsp_session".
	SessionCookieName string `yaml:"session_cookie_name,omitempty"`

	// HandleCookieName is the name of the cookie carrying the opaque
	// browser session handle the trackers are scoped by. Distinct from the
	// auth cookie so tracker state exists before authentication.
	// Defaults to "samlsp_handle".
	HandleCookieName string `yaml:"handle_cookie_name,omitempty"`

	// SessionDuration is how long authenticated sessions last (e.g. "8h").
	// Defaults to "8h".
	SessionDuration string `yaml:"session_duration,omitempty"`

	// StateBackend selects the protocol state store: "memory" or "redis".
	// Defaults to "memory".
	StateBackend string `yaml:"state_backend,omitempty"`

	// RedisAddr is the host:port of the Redis server when StateBackend is
	// "redis".
	RedisAddr string `yaml:"redis_addr,omitempty"`

	// TemplatesDir is the path to custom template files. If not set,
	// embedded templates are used.
	TemplatesDir string `yaml:"templates_dir,omitempty"`

	// IdPs lists the identity providers this SP trusts (at least one
	// required). With more than one, the login flow shows a discovery page
	// unless an IdP is pre-selected.
	IdPs []IdPConfig `yaml:"idps"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.SetDefaults()
	return &cfg, nil
}

// SetDefaults fills in default values for unset fields.
func (c *Config) SetDefaults() {
	if c.BasePath == "" {
		c.BasePath = "/saml"
	}
	if c.MetadataValidFor == "" {
		c.MetadataValidFor = "24h"
	}
	if c.SessionCookieName == "" {
		c.SessionCookieName = "samlsp_session"
	}
	if c.HandleCookieName == "" {
		c.HandleCookieName = "samlsp_handle"
	}
	if c.SessionDuration == "" {
		c.SessionDuration = "8h"
	}
	if c.StateBackend == "" {
		c.StateBackend = "memory"
	}
	for i := range c.IdPs {
		if c.IdPs[i].DisplayName == "" {
			c.IdPs[i].DisplayName = c.IdPs[i].EntityID
		}
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.EntityID == "" {
		return fmt.Errorf("entity_id is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.KeyFile == "" || c.CertFile == "" {
		return fmt.Errorf("key_file and cert_file are required")
	}
	if len(c.IdPs) == 0 {
		return fmt.Errorf("at least one idp is required")
	}
	for i, idp := range c.IdPs {
		if idp.EntityID == "" {
			return fmt.Errorf("idps[%d]: entity_id is required", i)
		}
		if idp.SSOURL == "" {
			return fmt.Errorf("idps[%d]: sso_url is required", i)
		}
	}
	if c.StateBackend != "memory" && c.StateBackend != "redis" {
		return fmt.Errorf("state_backend must be memory or redis, got %q", c.StateBackend)
	}
	if c.StateBackend == "redis" && c.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required with the redis state backend")
	}
	if _, err := time.ParseDuration(c.MetadataValidFor); err != nil {
		return fmt.Errorf("parse metadata_valid_for: %w", err)
	}
	if _, err := time.ParseDuration(c.SessionDuration); err != nil {
		return fmt.Errorf("parse session_duration: %w", err)
	}
	return nil
}

// Clone returns a deep copy. Every protocol operation consumes a fresh
// clone of the process-wide configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.IdPs = make([]IdPConfig, len(c.IdPs))
	for i, idp := range c.IdPs {
		clone.IdPs[i] = idp
		clone.IdPs[i].Certificates = append([]string(nil), idp.Certificates...)
	}
	return &clone
}

// WAYFNeeded reports whether login needs an IdP discovery step.
func (c *Config) WAYFNeeded() bool {
	return len(c.IdPs) > 1
}

// SelectIdP resolves an IdP by entity id. An empty id selects the sole
// configured IdP; with several configured, an empty id is an error.
func (c *Config) SelectIdP(entityID string) (*IdPConfig, error) {
	if entityID == "" {
		if len(c.IdPs) == 1 {
			return &c.IdPs[0], nil
		}
		return nil, fmt.Errorf("an idp must be selected")
	}
	for i := range c.IdPs {
		if c.IdPs[i].EntityID == entityID {
			return &c.IdPs[i], nil
		}
	}
	return nil, fmt.Errorf("unknown idp %q", entityID)
}

// Endpoint converts the IdP configuration to the engine's endpoint shape.
func (p *IdPConfig) Endpoint() *ports.IdPEndpoint {
	return &ports.IdPEndpoint{
		EntityID:     p.EntityID,
		SSOURL:       p.SSOURL,
		SLOURL:       p.SLOURL,
		Certificates: append([]string(nil), p.Certificates...),
		DisplayName:  p.DisplayName,
	}
}

// Endpoints converts all configured IdPs to the engine's endpoint shape.
func (c *Config) Endpoints() []ports.IdPEndpoint {
	endpoints := make([]ports.IdPEndpoint, len(c.IdPs))
	for i := range c.IdPs {
		endpoints[i] = *c.IdPs[i].Endpoint()
	}
	return endpoints
}

// metadataValidFor returns the parsed validity window.
func (c *Config) metadataValidFor() time.Duration {
	d, err := time.ParseDuration(c.MetadataValidFor)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// sessionDuration returns the parsed session lifetime.
func (c *Config) sessionDuration() time.Duration {
	d, err := time.ParseDuration(c.SessionDuration)
	if err != nil {
		return 8 * time.Hour
	}
	return d
}

// path joins the base path with an endpoint suffix.
func (c *Config) path(suffix string) string {
	return strings.TrimSuffix(c.BasePath, "/") + suffix
}
