package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"lumenid.org/internal/ids"
)

// AccessClaims are carried by access tokens. Validity is determined solely
// by signature and expiry; there is no server-side revocation list.
type AccessClaims struct {
	Scope string   `json:"scope,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// IDClaims are carried by ID tokens when the openid scope was granted.
type IDClaims struct {
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles,omitempty"`
	Nonce  string   `json:"nonce,omitempty"`
	UserID string   `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

// MintAccessToken signs an access token bound to subject, audience and scopes.
// Pure given its inputs and the signing key; safe to call concurrently.
func (s *Signer) MintAccessToken(subject, clientID string, scopes, roles []string, ttl time.Duration) (string, time.Time, error) {
	now := s.now().UTC()
	exp := now.Add(ttl)
	claims := AccessClaims{
		Scope: strings.Join(scopes, " "),
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        ids.New(),
		},
	}
	signed, err := s.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// MintIDToken signs an ID token with the subject's identity claims.
func (s *Signer) MintIDToken(subject, clientID, email, nonce string, roles []string, ttl time.Duration) (string, error) {
	now := s.now().UTC()
	claims := IDClaims{
		Email:  email,
		Roles:  roles,
		Nonce:  nonce,
		UserID: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        ids.New(),
		},
	}
	return s.sign(claims)
}

// ParseAndValidate verifies an access token's signature, issuer and expiry.
func (s *Signer) ParseAndValidate(raw string) (*AccessClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(raw, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodRS256 {
			return nil, ErrInvalidToken
		}
		return s.publicKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
