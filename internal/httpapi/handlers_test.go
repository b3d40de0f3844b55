package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"lumenid.org/internal/client"
	"lumenid.org/internal/oidc"
	"lumenid.org/internal/session"
	"lumenid.org/internal/token"
	"lumenid.org/internal/user"
)

const (
	testIssuer      = "http://issuer.test"
	testRedirectURI = "https://app.example/cb"
	testSecret      = "s3cret-value"
)

func newTestAPI(t *testing.T) (*API, http.Handler) {
	t.Helper()

	registry, err := client.NewInMemoryRegistry([]client.Client{
		{
			ID:                     "web_app",
			SecretHash:             client.HashSecret(testSecret),
			GrantTypes:             []string{client.GrantAuthorizationCode, client.GrantClientCredentials},
			RedirectURIs:           []string{testRedirectURI},
			PostLogoutRedirectURIs: []string{"https://app.example/bye"},
			Scopes:                 []string{"openid", "profile", "role"},
		},
		{
			ID:           "spa",
			GrantTypes:   []string{client.GrantImplicit},
			RedirectURIs: []string{"https://spa.example/cb"},
			Scopes:       []string{"openid", "profile"},
		},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	signer, err := token.NewDevSigner(testIssuer)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	provider := oidc.NewProvider(registry, oidc.NewMemoryCodeStore(), signer)

	users := user.NewService(user.NewMemoryStore())
	if _, err := users.Register(context.Background(), "alice@test.com", "password"); err != nil {
		t.Fatalf("register: %v", err)
	}

	sessions, err := session.NewIssuer(session.NewMemoryStore(), []byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}

	api := New(provider, users, sessions, ReadyProbe{}, "test")
	return api, api.Handler()
}

func postForm(h http.Handler, path string, form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthorizeAnonymousRedirectsToLogin(t *testing.T) {
	_, h := newTestAPI(t)

	target := "/authorize?client_id=web_app&redirect_uri=" + url.QueryEscape(testRedirectURI) +
		"&response_type=code&scope=openid&state=xyz"
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/login?return_url=") {
		t.Fatalf("expected login redirect, got %s", loc)
	}
	parsed, err := url.Parse(loc)
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if got := parsed.Query().Get("return_url"); !strings.HasPrefix(got, "/authorize?") {
		t.Fatalf("return_url should carry the authorization request, got %s", got)
	}
}

func TestAuthorizeUnknownClientAnswersLocally(t *testing.T) {
	_, h := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet,
		"/authorize?client_id=ghost&redirect_uri=https://evil.example/cb&response_type=code", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec.Header().Get("Location") != "" {
		t.Fatal("must not redirect for an unverified client")
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "invalid_request" {
		t.Fatalf("unexpected error code: %v", body["error"])
	}
}

func TestAuthorizeScopeErrorRedirectsToClient(t *testing.T) {
	_, h := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet,
		"/authorize?client_id=web_app&redirect_uri="+url.QueryEscape(testRedirectURI)+
			"&response_type=code&scope=admin_everything&state=s1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	if !strings.HasPrefix(loc.String(), testRedirectURI) {
		t.Fatalf("expected client redirect, got %s", loc)
	}
	if loc.Query().Get("error") != "invalid_scope" || loc.Query().Get("state") != "s1" {
		t.Fatalf("unexpected redirect query: %s", loc.RawQuery)
	}
}

func TestLoginWrongPasswordIsGeneric(t *testing.T) {
	_, h := newTestAPI(t)

	rec := postForm(h, "/login", url.Values{
		"email":    {"alice@test.com"},
		"password": {"wrong"},
	}, nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "login or password incorrect") {
		t.Fatalf("expected the uniform failure message, got %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "user:") {
		t.Fatalf("internal error prefix leaked into the page: %s", rec.Body.String())
	}
}

func TestLoginUnknownEmailSameMessage(t *testing.T) {
	_, h := newTestAPI(t)

	known := postForm(h, "/login", url.Values{
		"email":    {"alice@test.com"},
		"password": {"wrong"},
	}, nil)
	unknown := postForm(h, "/login", url.Values{
		"email":    {"nobody@test.com"},
		"password": {"wrong"},
	}, nil)

	if known.Code != unknown.Code {
		t.Fatalf("status codes differ: %d vs %d", known.Code, unknown.Code)
	}
	if !strings.Contains(unknown.Body.String(), "login or password incorrect") {
		t.Fatal("unknown account must yield the same uniform message")
	}
}

func TestFullAuthorizationCodeFlow(t *testing.T) {
	_, h := newTestAPI(t)

	authorizeURL := "/authorize?client_id=web_app&redirect_uri=" + url.QueryEscape(testRedirectURI) +
		"&response_type=code&scope=openid+profile&state=st-42&nonce=n-1"

	login := postForm(h, "/login", url.Values{
		"email":      {"alice@test.com"},
		"password":   {"password"},
		"return_url": {authorizeURL},
	}, nil)
	if login.Code != http.StatusFound {
		t.Fatalf("login: expected 302, got %d (%s)", login.Code, login.Body.String())
	}
	if got := login.Header().Get("Location"); got != authorizeURL {
		t.Fatalf("login should return to the authorization request, got %s", got)
	}
	cookies := login.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("login must set a session cookie")
	}

	req := httptest.NewRequest(http.MethodGet, authorizeURL, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("authorize: expected 302, got %d (%s)", rec.Code, rec.Body.String())
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse location: %v", err)
	}
	code := loc.Query().Get("code")
	if code == "" || loc.Query().Get("state") != "st-42" {
		t.Fatalf("unexpected redirect: %s", loc)
	}

	tokenRec := postForm(h, "/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"client_id":     {"web_app"},
		"client_secret": {testSecret},
	}, nil)
	if tokenRec.Code != http.StatusOK {
		t.Fatalf("token: expected 200, got %d (%s)", tokenRec.Code, tokenRec.Body.String())
	}
	var resp oidc.TokenResponse
	if err := json.Unmarshal(tokenRec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AccessToken == "" || resp.IDToken == "" || resp.TokenType != "Bearer" {
		t.Fatalf("unexpected token response: %+v", resp)
	}
	if tokenRec.Header().Get("Cache-Control") != "no-store" {
		t.Fatal("token response must not be cacheable")
	}

	// A second redemption of the same code must fail.
	replay := postForm(h, "/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"client_id":     {"web_app"},
		"client_secret": {testSecret},
	}, nil)
	if replay.Code != http.StatusBadRequest {
		t.Fatalf("replay: expected 400, got %d", replay.Code)
	}
	if !strings.Contains(replay.Body.String(), "invalid_grant") {
		t.Fatalf("replay should yield invalid_grant, got %s", replay.Body.String())
	}
}

func TestTokenBasicAuthClient(t *testing.T) {
	_, h := newTestAPI(t)

	form := url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {"profile"},
	}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("web_app", testSecret)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestTokenBadSecretUnauthorized(t *testing.T) {
	_, h := newTestAPI(t)

	rec := postForm(h, "/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {"web_app"},
		"client_secret": {"nope"},
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Fatal("401 must carry WWW-Authenticate")
	}
}

func TestLogoutFallsBackToLocalPage(t *testing.T) {
	_, h := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet,
		"/logout?client_id=web_app&post_logout_redirect_uri=https://evil.example/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/logged-out" {
		t.Fatalf("unvalidated destination must fall back, got %s", got)
	}
}

func TestLogoutRegisteredDestination(t *testing.T) {
	_, h := newTestAPI(t)

	login := postForm(h, "/login", url.Values{
		"email":    {"alice@test.com"},
		"password": {"password"},
	}, nil)
	cookies := login.Result().Cookies()

	req := httptest.NewRequest(http.MethodGet,
		"/logout?client_id=web_app&post_logout_redirect_uri="+url.QueryEscape("https://app.example/bye"), nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Location"); got != "https://app.example/bye" {
		t.Fatalf("registered destination should be honored, got %s", got)
	}

	// The cookie must be cleared.
	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("logout must discard the session cookie")
	}
}

func TestDiscoveryDocument(t *testing.T) {
	_, h := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/openid-configuration", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc["issuer"] != testIssuer {
		t.Fatalf("unexpected issuer: %v", doc["issuer"])
	}
	if doc["jwks_uri"] != testIssuer+"/.well-known/jwks.json" {
		t.Fatalf("unexpected jwks_uri: %v", doc["jwks_uri"])
	}
}

func TestJWKSServesKeys(t *testing.T) {
	_, h := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var doc struct {
		Keys []map[string]any `json:"keys"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode jwks: %v", err)
	}
	if len(doc.Keys) != 1 || doc.Keys[0]["kty"] != "RSA" {
		t.Fatalf("unexpected key set: %+v", doc)
	}
}

func TestRegisterSignsInNewAccount(t *testing.T) {
	_, h := newTestAPI(t)

	rec := postForm(h, "/register", url.Values{
		"email":    {"bob@test.com"},
		"password": {"hunter2"},
	}, nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Fatal("registration must sign the new account in")
	}

	dup := postForm(h, "/register", url.Values{
		"email":    {"bob@test.com"},
		"password": {"hunter2"},
	}, nil)
	if dup.Code != http.StatusConflict {
		t.Fatalf("duplicate registration: expected 409, got %d", dup.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	_, h := newTestAPI(t)

	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, h := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/token", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	if rec.Header().Get("Allow") != http.MethodPost {
		t.Fatalf("unexpected Allow header: %s", rec.Header().Get("Allow"))
	}
}
