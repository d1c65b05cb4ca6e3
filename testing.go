package samlspflow

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"go.uber.org/zap"

	"github.com/philiph/samlspflow/internal/adapters/driven/engine"
	"github.com/philiph/samlspflow/internal/adapters/driven/metrics"
	"github.com/philiph/samlspflow/internal/adapters/driven/session"
	"github.com/philiph/samlspflow/internal/adapters/driven/sessioncache"
	"github.com/philiph/samlspflow/internal/adapters/driven/state"
)

// NewHandlerForTest creates a Handler with in-memory collaborators and the
// given credentials, bypassing key and certificate files. This constructor
// is intended for testing purposes only.
func NewHandlerForTest(cfg *Config, key *rsa.PrivateKey, cert *x509.Certificate, opts ...Option) (*Handler, error) {
	cfg.SetDefaults()
	if cfg.EntityID == "" || cfg.BaseURL == "" || len(cfg.IdPs) == 0 {
		return nil, fmt.Errorf("test handler needs entity_id, base_url, and at least one idp")
	}

	h := &Handler{
		cfg:          cfg.Clone(),
		key:          key,
		cert:         cert,
		clock:        engine.RealClock{},
		loginPath:    cfg.path("/login"),
		acsPath:      cfg.path("/acs"),
		logoutPath:   cfg.path("/logout"),
		lsPath:       cfg.path("/ls"),
		metadataPath: cfg.path("/metadata"),
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.cache == nil {
		h.cache = sessioncache.NewMemory()
	}
	if h.state == nil {
		h.state = state.NewMemory()
	}
	if h.sessions == nil {
		h.sessions = session.NewCookieStore(key, cfg.sessionDuration())
	}
	if h.resolver == nil {
		h.resolver = NameIDResolver{}
	}
	if h.metrics == nil {
		h.metrics = metrics.NewNoop()
	}
	if h.renderer == nil {
		renderer, err := NewTemplateRenderer()
		if err != nil {
			panic("failed to load embedded templates: " + err.Error())
		}
		h.renderer = renderer
	}
	if h.newEngine == nil {
		h.newEngine = h.defaultEngineFactory()
	}

	return h, nil
}
