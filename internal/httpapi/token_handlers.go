package httpapi

import (
	"net/http"
	"strings"

	"lumenid.org/internal/audit"
	"lumenid.org/internal/obs"
	"lumenid.org/internal/oidc"
)

// Token is the token endpoint. Client credentials arrive either in the form
// body or via HTTP Basic authentication.
func (a *API) Token(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeTokenError(w, &oidc.TokenError{
			Code: oidc.ErrCodeInvalidRequest, Description: "malformed form body", Status: http.StatusBadRequest,
		})
		return
	}
	ctx := r.Context()

	req := oidc.TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
		Scopes:       strings.Fields(r.PostFormValue("scope")),
	}
	if id, secret, ok := r.BasicAuth(); ok {
		req.ClientID = id
		req.ClientSecret = secret
	}

	resp, terr := a.provider.Exchange(ctx, req)
	if terr != nil {
		obs.ObserveTokenRequest(req.GrantType, "failure")
		_ = audit.LogEvent(ctx, "token_rejected", map[string]any{
			"client_id":  req.ClientID,
			"grant_type": req.GrantType,
			"error":      terr.Code,
		})
		writeTokenError(w, terr)
		return
	}
	obs.ObserveTokenRequest(req.GrantType, "success")
	_ = audit.LogEvent(ctx, "token_issued", map[string]any{
		"client_id":  req.ClientID,
		"grant_type": req.GrantType,
	})

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, resp)
}

func writeTokenError(w http.ResponseWriter, terr *oidc.TokenError) {
	if terr.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="token"`)
	}
	w.Header().Set("Cache-Control", "no-store")
	status := terr.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]any{
		"error":             terr.Code,
		"error_description": terr.Description,
	})
}

// Discovery serves the OpenID Connect provider metadata.
func (a *API) Discovery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	issuer := strings.TrimSuffix(a.provider.Issuer(), "/")
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/authorize",
		"token_endpoint":                        issuer + "/token",
		"end_session_endpoint":                  issuer + "/logout",
		"jwks_uri":                              issuer + "/.well-known/jwks.json",
		"response_types_supported":              []string{"code", "token"},
		"grant_types_supported":                 []string{"authorization_code", "implicit", "client_credentials"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"scopes_supported":                      []string{"openid", "profile", "role", "userId"},
		"token_endpoint_auth_methods_supported": []string{"client_secret_basic", "client_secret_post"},
	})
}

// JWKS serves the public signing keys.
func (a *API) JWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	keys, err := a.provider.JWKS()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(keys)
}
