package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"lumenid.org/internal/ids"
)

const (
	// CookieName carries the signed opaque session id.
	CookieName = "lumenid_session"

	defaultSessionTTL = 8 * time.Hour
)

// Issuer creates and destroys authenticated browser sessions. The cookie
// holds only an opaque session id signed with a server-scoped HMAC key.
type Issuer struct {
	store  Store
	key    []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithTTL overrides the session lifetime.
func WithTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithSecureCookies marks issued cookies Secure (HTTPS deployments).
func WithSecureCookies(secure bool) IssuerOption {
	return func(i *Issuer) { i.secure = secure }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIssuer constructs an Issuer. The key signs cookie values and must be
// kept stable across restarts for sessions to survive.
func NewIssuer(store Store, key []byte, opts ...IssuerOption) (*Issuer, error) {
	if len(key) < 16 {
		return nil, errors.New("session: signing key must be at least 16 bytes")
	}
	iss := &Issuer{
		store: store,
		key:   key,
		ttl:   defaultSessionTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(iss)
	}
	return iss, nil
}

// SignIn creates a fresh session for the subject and sets the cookie.
// Any prior session for the same subject is replaced, and the session id is
// always new, so a pre-login cookie can never be fixated into an
// authenticated one.
func (i *Issuer) SignIn(ctx context.Context, w http.ResponseWriter, subject, email string, roles []string) (*Session, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, ErrInvalid
	}
	now := i.now().UTC()
	s := &Session{
		ID:        ids.New(),
		Subject:   subject,
		Email:     email,
		Roles:     roles,
		Scheme:    SchemeCookie,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.ttl),
	}
	if err := i.store.Put(ctx, s); err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    i.sign(s.ID),
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   i.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return s, nil
}

// SignOut invalidates the session and instructs the browser to discard the
// cookie.
func (i *Issuer) SignOut(ctx context.Context, w http.ResponseWriter, s *Session) error {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   i.secure,
		SameSite: http.SameSiteLaxMode,
	})
	if s == nil {
		return nil
	}
	return i.store.Delete(ctx, s.ID)
}

// FromRequest resolves the session referenced by the request cookie,
// verifying the cookie signature and the session expiry.
func (i *Issuer) FromRequest(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil, ErrNotFound
	}
	id, err := i.verify(cookie.Value)
	if err != nil {
		return nil, ErrInvalid
	}
	s, err := i.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.Active(i.now().UTC()) {
		_ = i.store.Delete(ctx, s.ID)
		return nil, ErrExpired
	}
	return s, nil
}

func (i *Issuer) sign(id string) string {
	mac := hmac.New(sha256.New, i.key)
	mac.Write([]byte(id))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return id + "." + sig
}

func (i *Issuer) verify(value string) (string, error) {
	parts := strings.Split(value, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", ErrInvalid
	}
	mac := hmac.New(sha256.New, i.key)
	mac.Write([]byte(parts[0]))
	expected := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(expected)) != 1 {
		return "", ErrInvalid
	}
	return parts[0], nil
}
