package oidc

// Protocol error codes surfaced to clients. Internal failure detail never
// leaks through these.
const (
	ErrCodeInvalidRequest          = "invalid_request"
	ErrCodeUnauthorizedClient      = "unauthorized_client"
	ErrCodeAccessDenied            = "access_denied"
	ErrCodeUnsupportedResponseType = "unsupported_response_type"
	ErrCodeInvalidScope            = "invalid_scope"
	ErrCodeServerError             = "server_error"

	ErrCodeInvalidGrant         = "invalid_grant"
	ErrCodeInvalidClient        = "invalid_client"
	ErrCodeUnsupportedGrantType = "unsupported_grant_type"
)

// AuthorizeError is a rejection of an authorization request.
//
// RedirectURI is set only when the client and redirect URI were positively
// validated first; when empty the caller must answer on its own origin and
// must not follow the supplied redirect.
type AuthorizeError struct {
	Code        string
	Description string
	RedirectURI string
	State       string
}

func (e *AuthorizeError) Error() string {
	if e.Description != "" {
		return e.Code + ": " + e.Description
	}
	return e.Code
}

// TokenError is a token endpoint rejection with its HTTP status.
type TokenError struct {
	Code        string
	Description string
	Status      int
}

func (e *TokenError) Error() string {
	if e.Description != "" {
		return e.Code + ": " + e.Description
	}
	return e.Code
}
