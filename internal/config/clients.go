package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"lumenid.org/internal/client"
)

// clientEntry is the on-disk client table row.
type clientEntry struct {
	ID                     string   `json:"id"`
	Name                   string   `json:"name"`
	Secret                 string   `json:"secret,omitempty"`
	GrantTypes             []string `json:"grant_types"`
	RedirectURIs           []string `json:"redirect_uris"`
	PostLogoutRedirectURIs []string `json:"post_logout_redirect_uris,omitempty"`
	Scopes                 []string `json:"scopes"`
	AccessTokenSeconds     int      `json:"access_token_seconds,omitempty"`
	RequireConsent         bool     `json:"require_consent,omitempty"`
	AllowedCORSOrigins     []string `json:"allowed_cors_origins,omitempty"`
}

func (e clientEntry) toClient() client.Client {
	c := client.Client{
		ID:                     e.ID,
		Name:                   e.Name,
		GrantTypes:             e.GrantTypes,
		RedirectURIs:           e.RedirectURIs,
		PostLogoutRedirectURIs: e.PostLogoutRedirectURIs,
		Scopes:                 e.Scopes,
		RequireConsent:         e.RequireConsent,
		AllowedCORSOrigins:     e.AllowedCORSOrigins,
	}
	if e.Secret != "" {
		c.SecretHash = client.HashSecret(e.Secret)
	}
	if e.AccessTokenSeconds > 0 {
		c.AccessTokenTTL = time.Duration(e.AccessTokenSeconds) * time.Second
	}
	return c
}

// LoadClients reads the client table from path, or returns the built-in
// development table when path is empty.
func LoadClients(path string) ([]client.Client, error) {
	if path == "" {
		return DefaultClients(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read clients file: %w", err)
	}
	var entries []clientEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("config: parse clients file: %w", err)
	}
	clients := make([]client.Client, 0, len(entries))
	for _, e := range entries {
		clients = append(clients, e.toClient())
	}
	return clients, nil
}

// DefaultClients is the development client table: a browser SPA on the
// implicit flow and a confidential server-side app on authorization_code.
func DefaultClients() []client.Client {
	return []client.Client{
		{
			ID:                     "angular_spa",
			Name:                   "Angular SPA",
			GrantTypes:             []string{client.GrantImplicit},
			RedirectURIs:           []string{"http://localhost:4200/auth-callback"},
			PostLogoutRedirectURIs: []string{"http://localhost:4200"},
			Scopes:                 []string{"openid", "profile", "role", "userId", "QuizApi", "UserApi", "StatisticApi"},
			AllowedCORSOrigins:     []string{"http://localhost:4200"},
			AccessTokenTTL:         time.Hour,
		},
		{
			ID:           "web_app",
			Name:         "Server-side web app",
			SecretHash:   client.HashSecret("dev-secret"),
			GrantTypes:   []string{client.GrantAuthorizationCode, client.GrantClientCredentials},
			RedirectURIs: []string{"http://localhost:5000/signin-oidc"},
			Scopes:       []string{"openid", "profile", "role", "userId"},
		},
	}
}
