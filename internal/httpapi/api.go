package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"lumenid.org/internal/obs"
	"lumenid.org/internal/oidc"
	"lumenid.org/internal/session"
	"lumenid.org/internal/user"
)

// ReadyProbe checks backing store readiness (DB ping when configured).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer of the provider.
type API struct {
	mux        *http.ServeMux
	provider   *oidc.Provider
	users      *user.Service
	sessions   *session.Issuer
	readyProbe ReadyProbe
	version    string

	corsOrigins []string
}

// Option configures the API.
type Option func(*API)

// WithCORSOrigins sets the origins allowed to call the token and discovery
// endpoints from the browser.
func WithCORSOrigins(origins []string) Option {
	return func(a *API) { a.corsOrigins = origins }
}

func New(provider *oidc.Provider, users *user.Service, sessions *session.Issuer, rp ReadyProbe, version string, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		provider:   provider,
		users:      users,
		sessions:   sessions,
		readyProbe: rp,
		version:    version,
	}
	for _, opt := range opts {
		opt(a)
	}

	// protocol endpoints; credential-bearing routes are rate limited per IP
	a.mux.HandleFunc("/authorize", a.Authorize)
	a.mux.Handle("/token", RateLimit(http.HandlerFunc(a.Token), 20, 10))
	a.mux.HandleFunc("/logout", a.Logout)
	a.mux.HandleFunc("/.well-known/openid-configuration", a.Discovery)
	a.mux.HandleFunc("/.well-known/jwks.json", a.JWKS)

	// interaction pages
	a.mux.Handle("/login", RateLimit(http.HandlerFunc(a.Login), 20, 10))
	a.mux.HandleFunc("/register", a.Register)
	a.mux.HandleFunc(oidc.DefaultPostLogoutPath, a.LoggedOut)

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = obs.Instrument(h)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h, a.corsOrigins)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

// --- health handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "lumenid",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "lumenid",
		"issuer":  a.provider.Issuer(),
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
