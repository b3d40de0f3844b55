package client

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

// Grant types a client may be allowed to use.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantImplicit          = "implicit"
	GrantClientCredentials = "client_credentials"
)

const defaultAccessTokenTTL = time.Hour

// Client is a registered relying party. Immutable during a request;
// configuration-time lifecycle only.
type Client struct {
	ID                     string
	Name                   string
	SecretHash             string // hex SHA-256; empty for public clients
	GrantTypes             []string
	RedirectURIs           []string
	PostLogoutRedirectURIs []string
	Scopes                 []string
	AccessTokenTTL         time.Duration
	RequireConsent         bool
	AllowedCORSOrigins     []string
}

// Public reports whether the client has no secret configured.
func (c *Client) Public() bool { return c.SecretHash == "" }

// AllowsGrant reports whether the grant type is enabled for the client.
func (c *Client) AllowsGrant(grant string) bool {
	for _, g := range c.GrantTypes {
		if g == grant {
			return true
		}
	}
	return false
}

// TokenTTL returns the configured access token lifetime or the default.
func (c *Client) TokenTTL() time.Duration {
	if c.AccessTokenTTL > 0 {
		return c.AccessTokenTTL
	}
	return defaultAccessTokenTTL
}

// HashSecret derives the stored form of a client secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// verifySecret compares a presented secret against the stored hash in
// constant time.
func verifySecret(secretHash, presented string) bool {
	if secretHash == "" || presented == "" {
		return false
	}
	sum := sha256.Sum256([]byte(presented))
	actual := hex.EncodeToString(sum[:])
	if len(actual) != len(secretHash) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(actual), []byte(secretHash)) == 1
}
