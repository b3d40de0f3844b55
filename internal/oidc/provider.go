package oidc

import (
	"strconv"
	"time"

	"lumenid.org/internal/client"
	"lumenid.org/internal/token"
)

const (
	// Codes are short-lived; ten minutes is the upper bound.
	defaultCodeTTL    = 5 * time.Minute
	maxCodeTTL        = 10 * time.Minute
	defaultIDTokenTTL = 5 * time.Minute

	// ScopeOpenID switches ID token issuance on.
	ScopeOpenID = "openid"
)

// Provider drives the authorization and token endpoints over an injected
// client registry, code store and token signer.
type Provider struct {
	registry   client.Registry
	codes      CodeStore
	signer     *token.Signer
	codeTTL    time.Duration
	idTokenTTL time.Duration
	now        func() time.Time
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithCodeTTL overrides the authorization code lifetime, capped at ten
// minutes.
func WithCodeTTL(ttl time.Duration) ProviderOption {
	return func(p *Provider) {
		if ttl > 0 && ttl <= maxCodeTTL {
			p.codeTTL = ttl
		}
	}
}

// WithIDTokenTTL overrides the ID token lifetime.
func WithIDTokenTTL(ttl time.Duration) ProviderOption {
	return func(p *Provider) {
		if ttl > 0 {
			p.idTokenTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ProviderOption {
	return func(p *Provider) {
		if fn != nil {
			p.now = fn
		}
	}
}

// NewProvider constructs a Provider.
func NewProvider(registry client.Registry, codes CodeStore, signer *token.Signer, opts ...ProviderOption) *Provider {
	p := &Provider{
		registry:   registry,
		codes:      codes,
		signer:     signer,
		codeTTL:    defaultCodeTTL,
		idTokenTTL: defaultIDTokenTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Issuer returns the token issuer identifier.
func (p *Provider) Issuer() string { return p.signer.Issuer() }

// JWKS returns the public signing key set.
func (p *Provider) JWKS() ([]byte, error) { return p.signer.JWKS() }

func expiresInSeconds(exp, now time.Time) string {
	secs := int64(exp.Sub(now).Seconds())
	if secs < 0 {
		secs = 0
	}
	return strconv.FormatInt(secs, 10)
}

func containsScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}
