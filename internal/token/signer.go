package token

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken indicates the token failed validation.
var ErrInvalidToken = errors.New("token: invalid")

// Signer mints and verifies RS256 JWTs with a single active key.
type Signer struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	keyID      string
	issuer     string
	now        func() time.Time
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithKeyID sets the key identifier embedded into JWT headers and the JWKS.
func WithKeyID(kid string) SignerOption {
	return func(s *Signer) {
		if kid != "" {
			s.keyID = kid
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) SignerOption {
	return func(s *Signer) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewSigner parses the PEM-encoded RSA key pair and constructs a Signer.
func NewSigner(privatePEM, publicPEM []byte, issuer string, opts ...SignerOption) (*Signer, error) {
	if issuer == "" {
		return nil, errors.New("token: issuer is required")
	}
	priv, err := jwt.ParseRSAPrivateKeyFromPEM(privatePEM)
	if err != nil {
		return nil, fmt.Errorf("token: parse private key: %w", err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(publicPEM)
	if err != nil {
		return nil, fmt.Errorf("token: parse public key: %w", err)
	}
	s := &Signer{
		privateKey: priv,
		publicKey:  pub,
		keyID:      "default",
		issuer:     issuer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewDevSigner generates an ephemeral RSA key. Tokens do not survive a
// restart; intended for development setups without configured keys.
func NewDevSigner(issuer string, opts ...SignerOption) (*Signer, error) {
	if issuer == "" {
		return nil, errors.New("token: issuer is required")
	}
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("token: generate dev key: %w", err)
	}
	s := &Signer{
		privateKey: priv,
		publicKey:  &priv.PublicKey,
		keyID:      "dev",
		issuer:     issuer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issuer returns the iss claim value the signer stamps into tokens.
func (s *Signer) Issuer() string { return s.issuer }

func (s *Signer) sign(claims jwt.Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.keyID
	signed, err := tok.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// JWKS renders the public key set for the discovery document.
func (s *Signer) JWKS() ([]byte, error) {
	type jwk struct {
		Kty string `json:"kty"`
		Use string `json:"use"`
		Alg string `json:"alg"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	}
	e := big.NewInt(int64(s.publicKey.E))
	doc := struct {
		Keys []jwk `json:"keys"`
	}{
		Keys: []jwk{{
			Kty: "RSA",
			Use: "sig",
			Alg: "RS256",
			Kid: s.keyID,
			N:   base64.RawURLEncoding.EncodeToString(s.publicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(e.Bytes()),
		}},
	}
	return json.Marshal(doc)
}
