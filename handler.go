// Package samlspflow implements the HTTP flows of a SAML 2.0 service
// provider: login with IdP discovery, assertion consumption, SP-initiated
// and IdP-initiated single logout, and metadata publication. The protocol
// library is confined behind the ProtocolEngine port; this package deals in
// request ids, URLs, and verdicts.
package samlspflow

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/philiph/samlspflow/internal/adapters/driven/engine"
	"github.com/philiph/samlspflow/internal/adapters/driven/identity"
	"github.com/philiph/samlspflow/internal/adapters/driven/metrics"
	"github.com/philiph/samlspflow/internal/adapters/driven/outstanding"
	"github.com/philiph/samlspflow/internal/adapters/driven/session"
	"github.com/philiph/samlspflow/internal/adapters/driven/sessioncache"
	"github.com/philiph/samlspflow/internal/adapters/driven/state"
	"github.com/philiph/samlspflow/internal/core/domain"
	"github.com/philiph/samlspflow/internal/core/ports"
)

// EngineFactory builds a protocol engine from a configuration snapshot.
// Called once per protocol operation with a fresh Config clone.
type EngineFactory func(cfg *Config) (ports.ProtocolEngine, error)

// Handler serves the SAML SP endpoints under Config.BasePath.
type Handler struct {
	cfg  *Config
	key  *rsa.PrivateKey
	cert *x509.Certificate

	cache     ports.SessionCache
	state     ports.StateStore
	sessions  session.Store
	resolver  ports.UserResolver
	metrics   ports.MetricsRecorder
	renderer  *TemplateRenderer
	logger    *zap.Logger
	clock     engine.Clock
	newEngine EngineFactory

	loginPath    string
	acsPath      string
	logoutPath   string
	lsPath       string
	metadataPath string
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithSessionCache replaces the session-scoped tracker cache.
func WithSessionCache(cache ports.SessionCache) Option {
	return func(h *Handler) { h.cache = cache }
}

// WithStateStore replaces the protocol state store chosen by the config.
func WithStateStore(store ports.StateStore) Option {
	return func(h *Handler) { h.state = store }
}

// WithSessionStore replaces the authenticated session token store.
func WithSessionStore(store session.Store) Option {
	return func(h *Handler) { h.sessions = store }
}

// WithUserResolver sets the host's authentication backend. Defaults to
// NameIDResolver.
func WithUserResolver(resolver ports.UserResolver) Option {
	return func(h *Handler) { h.resolver = resolver }
}

// WithMetrics sets the metrics recorder. Defaults to a no-op recorder.
func WithMetrics(recorder ports.MetricsRecorder) Option {
	return func(h *Handler) { h.metrics = recorder }
}

// WithTemplateRenderer replaces the page renderer.
func WithTemplateRenderer(renderer *TemplateRenderer) Option {
	return func(h *Handler) { h.renderer = renderer }
}

// WithEngineFactory replaces the protocol engine construction, mainly for
// tests that substitute a fake engine.
func WithEngineFactory(factory EngineFactory) Option {
	return func(h *Handler) { h.newEngine = factory }
}

// WithClock sets the clock used for metadata validity, for deterministic
// output in tests.
func WithClock(clock engine.Clock) Option {
	return func(h *Handler) { h.clock = clock }
}

// New builds a Handler from the given configuration.
func New(cfg *Config, opts ...Option) (*Handler, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base_url: %w", err)
	}

	key, err := LoadPrivateKey(cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	cert, err := LoadCertificate(cfg.CertFile)
	if err != nil {
		return nil, err
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
		switch cfg.StateBackend {
		case "redis":
			// A dead Redis should fail startup, not the first logout.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			store, err := state.NewRedisAddr(ctx, cfg.RedisAddr)
			cancel()
			if err != nil {
				return nil, fmt.Errorf("connect state store: %w", err)
			}
			h.state = store
		default:
			h.state = state.NewMemory()
		}
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
		var renderer *TemplateRenderer
		if cfg.TemplatesDir != "" {
			renderer, err = NewTemplateRendererWithDir(cfg.TemplatesDir)
		} else {
			renderer, err = NewTemplateRenderer()
		}
		if err != nil {
			return nil, err
		}
		h.renderer = renderer
	}
	if h.newEngine == nil {
		h.newEngine = h.defaultEngineFactory()
	}

	return h, nil
}

// defaultEngineFactory builds crewjam-backed engines from config snapshots.
func (h *Handler) defaultEngineFactory() EngineFactory {
	return func(cfg *Config) (ports.ProtocolEngine, error) {
		base, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, domain.ConfigError("invalid base URL")
		}
		return engine.New(engine.Config{
			EntityID:         cfg.EntityID,
			BaseURL:          base,
			AcsPath:          cfg.path("/acs"),
			SloPath:          cfg.path("/ls"),
			MetadataPath:     cfg.path("/metadata"),
			Key:              h.key,
			Certificate:      h.cert,
			MetadataID:       cfg.MetadataID,
			MetadataName:     cfg.MetadataName,
			SignMetadata:     cfg.MetadataSign,
			MetadataValidFor: cfg.metadataValidFor(),
			Clock:            h.clock,
		}), nil
	}
}

// ServeHTTP routes the SP endpoints.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case h.loginPath:
		if r.Method == http.MethodGet {
			h.handleLogin(w, r)
			return
		}
	case h.acsPath:
		if r.Method == http.MethodPost {
			h.handleACS(w, r)
			return
		}
	case h.logoutPath:
		if r.Method == http.MethodGet {
			h.handleLogout(w, r)
			return
		}
	case h.lsPath:
		if r.Method == http.MethodGet {
			h.handleLogoutService(w, r)
			return
		}
	case h.metadataPath:
		if r.Method == http.MethodGet {
			h.handleMetadata(w, r)
			return
		}
	default:
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Allow", allowedMethod(r.URL.Path, h.acsPath))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func allowedMethod(path, acsPath string) string {
	if path == acsPath {
		return http.MethodPost
	}
	return http.MethodGet
}

// client builds the per-request protocol client bound to the browser
// session handle.
func (h *Handler) client(eng ports.ProtocolEngine, handle string) *protocolClient {
	return &protocolClient{
		engine:      eng,
		outstanding: outstanding.New(h.cache, handle),
		identity:    identity.New(h.cache, handle),
		state:       h.state,
		handle:      handle,
		logger:      h.logger,
		metrics:     h.metrics,
	}
}

// handleLogin starts authentication. With several IdPs configured and none
// selected, the discovery page is shown instead of a redirect.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	cfg := h.cfg.Clone()
	next := domain.ValidateRelayState(r.URL.Query().Get("next"))
	selected := r.URL.Query().Get("idp")

	if selected == "" && cfg.WAYFNeeded() {
		h.renderWAYF(w, cfg, next)
		return
	}

	idp, err := cfg.SelectIdP(selected)
	if err != nil {
		h.renderAppError(w, domain.BadRequestError("unknown identity provider"))
		return
	}

	eng, err := h.newEngine(cfg)
	if err != nil {
		h.renderAppError(w, err)
		return
	}

	handle := h.sessionHandle(w, r)
	client := h.client(eng, handle)
	redirectURL, err := client.StartLogin(idp.Endpoint(), next)
	if err != nil {
		h.logger.Error("login initiation failed",
			zap.String("idp", idp.EntityID), zap.Error(err))
		h.renderAppError(w, err)
		return
	}

	h.logger.Info("redirecting to identity provider",
		zap.String("idp", idp.EntityID), zap.String("next", next))
	http.Redirect(w, r, redirectURL.String(), http.StatusFound)
}

// renderWAYF shows the IdP discovery page.
func (h *Handler) renderWAYF(w http.ResponseWriter, cfg *Config, next string) {
	choices := make([]WAYFChoice, len(cfg.IdPs))
	for i, idp := range cfg.IdPs {
		q := url.Values{}
		q.Set("idp", idp.EntityID)
		if next != "" && next != "/" {
			q.Set("next", next)
		}
		choices[i] = WAYFChoice{
			EntityID:    idp.EntityID,
			DisplayName: idp.DisplayName,
			LoginURL:    h.loginPath + "?" + q.Encode(),
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.renderer.RenderWAYF(w, WAYFData{IdPs: choices, Next: next}); err != nil {
		h.logger.Error("failed to render discovery page", zap.Error(err))
	}
}

// handleACS consumes a posted SAML response, resolves the local user, and
// establishes the authenticated session.
func (h *Handler) handleACS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderAppError(w, domain.BadRequestError("malformed form body"))
		return
	}
	if r.PostForm.Get("SAMLResponse") == "" {
		h.renderAppError(w, domain.BadRequestError("no SAMLResponse found"))
		return
	}

	cfg := h.cfg.Clone()
	eng, err := h.newEngine(cfg)
	if err != nil {
		h.renderAppError(w, err)
		return
	}

	handle := h.sessionHandle(w, r)
	client := h.client(eng, handle)

	info, returnTo, err := client.ConsumeAssertion(r, cfg.Endpoints())
	if err != nil {
		h.logger.Warn("assertion rejected", zap.Error(err))
		h.renderAppError(w, err)
		return
	}

	user, err := h.resolver.Resolve(info)
	if err != nil || user == nil {
		if err != nil {
			h.logger.Warn("user resolution failed",
				zap.String("name_id", info.NameID), zap.Error(err))
		}
		h.metrics.RecordAssertion(false)
		h.renderAppError(w, domain.UserNotValidError())
		return
	}

	token, err := h.sessions.Create(session.FromUser(user, info.IdPEntityID))
	if err != nil {
		h.renderAppError(w, domain.ContractError("failed to create session", err))
		return
	}
	h.setAuthCookie(w, r, token)

	if err := client.RegisterIdentity(info); err != nil {
		h.renderAppError(w, domain.ContractError("failed to store subject identity", err))
		return
	}
	h.metrics.RecordAssertion(true)

	// The destination recorded at login wins over the round-tripped
	// RelayState; both have passed the same validation.
	if returnTo == "" {
		returnTo = domain.ValidateRelayState(r.PostForm.Get("RelayState"))
	}
	h.logger.Info("session established",
		zap.String("user", user.ID),
		zap.String("idp", info.IdPEntityID),
		zap.String("return_to", returnTo))
	http.Redirect(w, r, returnTo, http.StatusFound)
}

// handleLogout starts SP-initiated single logout for the current session.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if _, err := h.currentSession(r); err != nil {
		h.renderAppError(w, domain.NotAuthenticatedError())
		return
	}

	cfg := h.cfg.Clone()
	eng, err := h.newEngine(cfg)
	if err != nil {
		h.renderAppError(w, err)
		return
	}

	handle := h.sessionHandle(w, r)
	client := h.client(eng, handle)

	rec, ok := client.Identity()
	if !ok {
		h.renderAppError(w, domain.NotAuthenticatedError())
		return
	}
	idp, err := cfg.SelectIdP(rec.IdPEntityID)
	if err != nil {
		h.renderAppError(w, domain.ConfigError("identity provider is no longer configured"))
		return
	}

	redirectURL, err := client.StartLogout(r.Context(), idp.Endpoint())
	if err != nil {
		h.logger.Error("logout initiation failed",
			zap.String("idp", idp.EntityID), zap.Error(err))
		h.renderAppError(w, err)
		return
	}

	h.logger.Info("redirecting logout request to identity provider",
		zap.String("idp", idp.EntityID))
	http.Redirect(w, r, redirectURL.String(), http.StatusFound)
}

// handleLogoutService is the single logout endpoint. It serves both legs:
// the IdP's reply to a logout we initiated and a logout the IdP initiated.
// The kind is decided here once and dispatched, never re-derived.
func (h *Handler) handleLogoutService(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	switch kind := domain.ClassifyLogoutMessage(query); kind {
	case domain.LogoutSPReply:
		h.finishLogout(w, r, query)
	case domain.LogoutIdPRequest:
		h.answerIdPLogout(w, r, query)
	default:
		h.renderAppError(w, domain.NotFoundError("no SAML message found"))
	}
}

// finishLogout handles the IdP's LogoutResponse to a logout we initiated.
func (h *Handler) finishLogout(w http.ResponseWriter, r *http.Request, query url.Values) {
	cfg := h.cfg.Clone()
	eng, err := h.newEngine(cfg)
	if err != nil {
		h.renderAppError(w, err)
		return
	}

	handle := h.sessionHandle(w, r)
	client := h.client(eng, handle)

	idp, err := h.logoutPeer(cfg, client)
	if err != nil {
		h.renderAppError(w, err)
		return
	}

	outcome, err := client.FinishLogout(r.Context(), idp, query)
	h.metrics.RecordLogout(domain.LogoutSPReply.String(), outcome.String())
	if err != nil || outcome != domain.LogoutOutcomeSuccess {
		h.logger.Warn("logout did not complete",
			zap.String("outcome", outcome.String()), zap.Error(err))
		if err == nil {
			err = domain.VerificationError(fmt.Errorf("logout response reported %s", outcome))
		}
		h.renderAppError(w, err)
		return
	}

	h.teardownSession(w, r, handle)
	h.logger.Info("logout completed", zap.String("idp", idp.EntityID))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.renderer.RenderLoggedOut(w); err != nil {
		h.logger.Error("failed to render logged-out page", zap.Error(err))
	}
}

// answerIdPLogout handles a LogoutRequest initiated by the IdP.
func (h *Handler) answerIdPLogout(w http.ResponseWriter, r *http.Request, query url.Values) {
	cfg := h.cfg.Clone()
	eng, err := h.newEngine(cfg)
	if err != nil {
		h.renderAppError(w, err)
		return
	}

	handle := h.sessionHandle(w, r)
	client := h.client(eng, handle)

	idp, err := h.logoutPeer(cfg, client)
	if err != nil {
		h.renderAppError(w, err)
		return
	}

	turn, err := client.AnswerIdPLogout(idp, query)
	if err != nil {
		h.metrics.RecordLogout(domain.LogoutIdPRequest.String(), domain.LogoutOutcomeFailed.String())
		h.logger.Warn("idp logout request rejected",
			zap.String("idp", idp.EntityID), zap.Error(err))
		h.renderAppError(w, err)
		return
	}

	h.metrics.RecordLogout(domain.LogoutIdPRequest.String(), turn.Outcome.String())
	switch turn.Outcome {
	case domain.LogoutOutcomeSuccess:
		h.teardownSession(w, r, handle)
		h.logger.Info("session terminated by identity provider",
			zap.String("idp", idp.EntityID))
	case domain.LogoutOutcomePartial:
		// The reply names a subject this session does not hold. Answer the
		// IdP but leave the local session alone.
		h.logger.Warn("partial logout reported to identity provider",
			zap.String("idp", idp.EntityID))
	}
	http.Redirect(w, r, turn.URL.String(), http.StatusFound)
}

// logoutPeer picks which IdP a logout service message belongs to: the one
// bound to the session's identity record, or the sole configured IdP.
func (h *Handler) logoutPeer(cfg *Config, client *protocolClient) (*ports.IdPEndpoint, error) {
	if rec, ok := client.Identity(); ok {
		if idp, err := cfg.SelectIdP(rec.IdPEntityID); err == nil {
			return idp.Endpoint(), nil
		}
		return nil, domain.ConfigError("identity provider is no longer configured")
	}
	if len(cfg.IdPs) == 1 {
		return cfg.IdPs[0].Endpoint(), nil
	}
	return nil, domain.VerificationError(fmt.Errorf("cannot attribute logout message to an identity provider"))
}

// handleMetadata publishes the SP's entity descriptor.
func (h *Handler) handleMetadata(w http.ResponseWriter, r *http.Request) {
	cfg := h.cfg.Clone()
	eng, err := h.newEngine(cfg)
	if err != nil {
		h.renderAppError(w, err)
		return
	}

	data, err := eng.Metadata()
	if err != nil {
		h.logger.Error("metadata generation failed", zap.Error(err))
		h.renderAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf8")
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("failed to write metadata response", zap.Error(err))
	}
}

// sessionHandle returns the browser's opaque session handle, minting one
// and setting its cookie when absent. The handle scopes tracker state and
// is distinct from the authenticated session token.
func (h *Handler) sessionHandle(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(h.cfg.HandleCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	handle := uuid.NewString()
	// The IdP delivers the assertion by cross-site POST, which Lax cookies
	// do not accompany. None requires Secure, so plain-HTTP deployments
	// fall back to Lax and lose cross-site delivery.
	sameSite := http.SameSiteLaxMode
	if r.TLS != nil {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.HandleCookieName,
		Value:    handle,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: sameSite,
	})
	return handle
}

// currentSession returns the authenticated session, or an error when the
// auth cookie is absent or invalid.
func (h *Handler) currentSession(r *http.Request) (*session.Session, error) {
	cookie, err := r.Cookie(h.cfg.SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, session.ErrSessionNotFound
	}
	return h.sessions.Get(cookie.Value)
}

// setAuthCookie sets the authenticated session cookie.
func (h *Handler) setAuthCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.cfg.sessionDuration().Seconds()),
	})
}

// teardownSession removes every trace of the local session: the auth
// cookie, the handle cookie, and all tracker state under the handle.
func (h *Handler) teardownSession(w http.ResponseWriter, r *http.Request, handle string) {
	h.cache.DestroySession(handle)
	for _, name := range []string{h.cfg.SessionCookieName, h.cfg.HandleCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   -1,
		})
	}
}

// renderAppError renders an error page for the given error, coercing
// non-AppError values to an internal service error.
func (h *Handler) renderAppError(w http.ResponseWriter, err error) {
	var appErr *domain.AppError
	if !errors.As(err, &appErr) {
		appErr = domain.ContractError("internal error", err)
	}
	if appErr.Cause != nil {
		h.logger.Debug("error detail", zap.String("code", appErr.Code.String()),
			zap.Error(appErr.Cause))
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(appErr.Code.HTTPStatus())
	if err := h.renderer.RenderError(w, ErrorData{
		Title:   appErr.Code.Title(),
		Message: appErr.Message,
	}); err != nil {
		h.logger.Error("failed to render error page", zap.Error(err))
	}
}
