package oidc

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"lumenid.org/internal/client"
)

// TokenRequest is a parsed token endpoint request.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// TokenResponse is the successful token endpoint payload.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token,omitempty"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// Exchange redeems an authorization code or a client_credentials grant for
// tokens.
func (p *Provider) Exchange(ctx context.Context, req TokenRequest) (*TokenResponse, *TokenError) {
	switch req.GrantType {
	case client.GrantAuthorizationCode:
		return p.exchangeCode(ctx, req)
	case client.GrantClientCredentials:
		return p.clientCredentials(ctx, req)
	case "":
		return nil, &TokenError{Code: ErrCodeInvalidRequest, Description: "grant_type is required", Status: http.StatusBadRequest}
	default:
		return nil, &TokenError{Code: ErrCodeUnsupportedGrantType, Description: "unsupported grant_type", Status: http.StatusBadRequest}
	}
}

// authenticateClient resolves the requesting client. Confidential clients
// must present their secret; public clients must present none.
func (p *Provider) authenticateClient(ctx context.Context, clientID, secret string) (*client.Client, *TokenError) {
	if clientID == "" {
		return nil, &TokenError{Code: ErrCodeInvalidClient, Description: "client authentication failed", Status: http.StatusUnauthorized}
	}
	c, err := p.registry.Lookup(ctx, clientID)
	if err != nil {
		return nil, &TokenError{Code: ErrCodeInvalidClient, Description: "client authentication failed", Status: http.StatusUnauthorized}
	}
	if c.Public() {
		if secret != "" {
			return nil, &TokenError{Code: ErrCodeInvalidClient, Description: "client authentication failed", Status: http.StatusUnauthorized}
		}
		return c, nil
	}
	authed, err := p.registry.Authenticate(ctx, clientID, secret)
	if err != nil {
		return nil, &TokenError{Code: ErrCodeInvalidClient, Description: "client authentication failed", Status: http.StatusUnauthorized}
	}
	return authed, nil
}

func (p *Provider) exchangeCode(ctx context.Context, req TokenRequest) (*TokenResponse, *TokenError) {
	c, terr := p.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if terr != nil {
		return nil, terr
	}
	if !c.AllowsGrant(client.GrantAuthorizationCode) {
		return nil, &TokenError{Code: ErrCodeUnsupportedGrantType, Description: "grant type not allowed for client", Status: http.StatusBadRequest}
	}
	if req.Code == "" {
		return nil, &TokenError{Code: ErrCodeInvalidRequest, Description: "code is required", Status: http.StatusBadRequest}
	}

	// Consume is atomic: a concurrent second redemption observes not-found.
	code, err := p.codes.Consume(ctx, req.Code)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return nil, &TokenError{Code: ErrCodeInvalidGrant, Description: "code is invalid, expired or already used", Status: http.StatusBadRequest}
		}
		return nil, &TokenError{Code: ErrCodeServerError, Status: http.StatusInternalServerError}
	}
	now := p.now().UTC()
	if now.After(code.ExpiresAt) {
		return nil, &TokenError{Code: ErrCodeInvalidGrant, Description: "code is invalid, expired or already used", Status: http.StatusBadRequest}
	}
	if code.ClientID != c.ID {
		return nil, &TokenError{Code: ErrCodeInvalidGrant, Description: "code was issued to a different client", Status: http.StatusBadRequest}
	}
	if code.RedirectURI != req.RedirectURI {
		return nil, &TokenError{Code: ErrCodeInvalidGrant, Description: "redirect_uri does not match authorization request", Status: http.StatusBadRequest}
	}

	access, exp, err := p.signer.MintAccessToken(code.Subject, c.ID, code.Scopes, code.Roles, c.TokenTTL())
	if err != nil {
		return nil, &TokenError{Code: ErrCodeServerError, Status: http.StatusInternalServerError}
	}
	resp := &TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(exp.Sub(now).Seconds()),
		Scope:       strings.Join(code.Scopes, " "),
	}
	if containsScope(code.Scopes, ScopeOpenID) {
		idToken, err := p.signer.MintIDToken(code.Subject, c.ID, code.Email, code.Nonce, code.Roles, p.idTokenTTL)
		if err != nil {
			return nil, &TokenError{Code: ErrCodeServerError, Status: http.StatusInternalServerError}
		}
		resp.IDToken = idToken
	}
	return resp, nil
}

func (p *Provider) clientCredentials(ctx context.Context, req TokenRequest) (*TokenResponse, *TokenError) {
	if req.ClientSecret == "" {
		return nil, &TokenError{Code: ErrCodeInvalidClient, Description: "client authentication failed", Status: http.StatusUnauthorized}
	}
	c, err := p.registry.Authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, &TokenError{Code: ErrCodeInvalidClient, Description: "client authentication failed", Status: http.StatusUnauthorized}
	}
	if !c.AllowsGrant(client.GrantClientCredentials) {
		return nil, &TokenError{Code: ErrCodeUnsupportedGrantType, Description: "grant type not allowed for client", Status: http.StatusBadRequest}
	}
	granted, verr := p.registry.ValidateScopes(ctx, c, req.Scopes)
	if verr != nil {
		return nil, &TokenError{Code: ErrCodeInvalidScope, Description: "requested scope exceeds client allowance", Status: http.StatusBadRequest}
	}

	now := p.now().UTC()
	access, exp, err := p.signer.MintAccessToken(c.ID, c.ID, granted, nil, c.TokenTTL())
	if err != nil {
		return nil, &TokenError{Code: ErrCodeServerError, Status: http.StatusInternalServerError}
	}
	return &TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(exp.Sub(now).Seconds()),
		Scope:       strings.Join(granted, " "),
	}, nil
}
