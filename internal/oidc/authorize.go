package oidc

import (
	"context"
	"net/url"
	"strings"
	"time"

	"lumenid.org/internal/client"
	"lumenid.org/internal/obs"
	"lumenid.org/internal/session"
)

// Response types accepted at the authorization endpoint.
const (
	ResponseTypeCode  = "code"
	ResponseTypeToken = "token"
)

// FlowStatus tracks the authorization request through its states.
type FlowStatus int

const (
	StatusStart FlowStatus = iota
	StatusAwaitingLogin
	StatusAuthenticated
	StatusCodeIssued
	StatusRejected
)

// AuthorizeRequest is a parsed authorization endpoint request.
type AuthorizeRequest struct {
	ClientID     string
	RedirectURI  string
	ResponseType string
	Scopes       []string
	State        string
	Nonce        string
}

// ParseAuthorizeRequest extracts an AuthorizeRequest from query values.
func ParseAuthorizeRequest(values url.Values) AuthorizeRequest {
	return AuthorizeRequest{
		ClientID:     strings.TrimSpace(values.Get("client_id")),
		RedirectURI:  strings.TrimSpace(values.Get("redirect_uri")),
		ResponseType: strings.TrimSpace(values.Get("response_type")),
		Scopes:       strings.Fields(values.Get("scope")),
		State:        values.Get("state"),
		Nonce:        values.Get("nonce"),
	}
}

// Flow is a validated authorization request progressing toward issuance.
type Flow struct {
	Status  FlowStatus
	Request AuthorizeRequest
	Client  *client.Client
	Granted []string
}

// BeginAuthorization validates the incoming request against the registry.
//
// Validation order is deliberate: client and redirect URI are verified
// before anything else, and a redirect URI failure always wins over a scope
// failure, so an error is never delivered to an unverified URI.
func (p *Provider) BeginAuthorization(ctx context.Context, req AuthorizeRequest) (*Flow, *AuthorizeError) {
	if req.ClientID == "" {
		return nil, &AuthorizeError{Code: ErrCodeInvalidRequest, Description: "client_id is required", State: req.State}
	}
	c, err := p.registry.Lookup(ctx, req.ClientID)
	if err != nil {
		// Unknown client: no redirect target can be trusted.
		return nil, &AuthorizeError{Code: ErrCodeInvalidRequest, Description: "unknown client", State: req.State}
	}
	if err := p.registry.ValidateRedirectURI(ctx, c, req.RedirectURI); err != nil {
		return nil, &AuthorizeError{Code: ErrCodeInvalidRequest, Description: "redirect_uri is not registered", State: req.State}
	}

	// From here the redirect URI is trusted; protocol errors may redirect.
	var grant string
	switch req.ResponseType {
	case ResponseTypeCode:
		grant = client.GrantAuthorizationCode
	case ResponseTypeToken:
		grant = client.GrantImplicit
	default:
		return nil, &AuthorizeError{
			Code: ErrCodeUnsupportedResponseType, Description: "response_type must be code or token",
			RedirectURI: req.RedirectURI, State: req.State,
		}
	}
	if !c.AllowsGrant(grant) {
		return nil, &AuthorizeError{
			Code: ErrCodeUnauthorizedClient, Description: "grant type not allowed for client",
			RedirectURI: req.RedirectURI, State: req.State,
		}
	}
	granted, err := p.registry.ValidateScopes(ctx, c, req.Scopes)
	if err != nil {
		return nil, &AuthorizeError{
			Code: ErrCodeInvalidScope, Description: "requested scope exceeds client allowance",
			RedirectURI: req.RedirectURI, State: req.State,
		}
	}

	return &Flow{
		Status:  StatusAwaitingLogin,
		Request: req,
		Client:  c,
		Granted: granted,
	}, nil
}

// Authenticate moves the flow forward once an active session exists.
func (f *Flow) Authenticate(sess *session.Session, now time.Time) *AuthorizeError {
	if f.Status != StatusAwaitingLogin {
		return &AuthorizeError{Code: ErrCodeServerError, State: f.Request.State}
	}
	if !sess.Active(now) {
		return &AuthorizeError{Code: ErrCodeAccessDenied, RedirectURI: f.Request.RedirectURI, State: f.Request.State}
	}
	f.Status = StatusAuthenticated
	return nil
}

// CompleteAuthorization finishes an authenticated flow and returns the
// redirect the browser should follow.
//
// For response_type=code a single-use code bound to client, redirect URI,
// scopes and subject is minted. For response_type=token the access token is
// issued directly and delivered in the URI fragment.
func (p *Provider) CompleteAuthorization(ctx context.Context, f *Flow, sess *session.Session) (string, *AuthorizeError) {
	if f.Status != StatusAuthenticated {
		return "", &AuthorizeError{Code: ErrCodeServerError, State: f.Request.State}
	}
	redirect, err := url.Parse(f.Request.RedirectURI)
	if err != nil {
		return "", &AuthorizeError{Code: ErrCodeInvalidRequest, Description: "redirect_uri is malformed", State: f.Request.State}
	}

	switch f.Request.ResponseType {
	case ResponseTypeCode:
		value, err := newCodeValue()
		if err != nil {
			return "", &AuthorizeError{Code: ErrCodeServerError, RedirectURI: f.Request.RedirectURI, State: f.Request.State}
		}
		now := p.now().UTC()
		code := &Code{
			Value:       value,
			ClientID:    f.Client.ID,
			RedirectURI: f.Request.RedirectURI,
			Scopes:      f.Granted,
			Subject:     sess.Subject,
			Email:       sess.Email,
			Roles:       sess.Roles,
			Nonce:       f.Request.Nonce,
			IssuedAt:    now,
			ExpiresAt:   now.Add(p.codeTTL),
		}
		if err := p.codes.Put(ctx, code); err != nil {
			return "", &AuthorizeError{Code: ErrCodeServerError, RedirectURI: f.Request.RedirectURI, State: f.Request.State}
		}
		obs.ObserveCodeIssued()
		f.Status = StatusCodeIssued

		q := redirect.Query()
		q.Set("code", value)
		if f.Request.State != "" {
			q.Set("state", f.Request.State)
		}
		redirect.RawQuery = q.Encode()
		return redirect.String(), nil

	case ResponseTypeToken:
		access, exp, err := p.signer.MintAccessToken(sess.Subject, f.Client.ID, f.Granted, sess.Roles, f.Client.TokenTTL())
		if err != nil {
			return "", &AuthorizeError{Code: ErrCodeServerError, RedirectURI: f.Request.RedirectURI, State: f.Request.State}
		}
		f.Status = StatusCodeIssued

		frag := url.Values{}
		frag.Set("access_token", access)
		frag.Set("token_type", "Bearer")
		frag.Set("expires_in", expiresInSeconds(exp, p.now().UTC()))
		if len(f.Granted) > 0 {
			frag.Set("scope", strings.Join(f.Granted, " "))
		}
		if f.Request.State != "" {
			frag.Set("state", f.Request.State)
		}
		redirect.Fragment = ""
		return redirect.String() + "#" + frag.Encode(), nil

	default:
		return "", &AuthorizeError{Code: ErrCodeUnsupportedResponseType, RedirectURI: f.Request.RedirectURI, State: f.Request.State}
	}
}

// ErrorRedirect renders the error redirect for a rejection that carries a
// verified redirect URI. Returns "" when no redirect may be followed.
func (e *AuthorizeError) ErrorRedirect() string {
	if e.RedirectURI == "" {
		return ""
	}
	redirect, err := url.Parse(e.RedirectURI)
	if err != nil {
		return ""
	}
	q := redirect.Query()
	q.Set("error", e.Code)
	if e.State != "" {
		q.Set("state", e.State)
	}
	redirect.RawQuery = q.Encode()
	return redirect.String()
}
