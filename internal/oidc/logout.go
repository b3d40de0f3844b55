package oidc

import (
	"context"

	"lumenid.org/internal/client"
)

// DefaultPostLogoutPath is where browsers land when no registered
// post-logout redirect applies.
const DefaultPostLogoutPath = "/logged-out"

// ResolvePostLogoutRedirect validates a requested post-logout destination
// against the client's registered set. An unknown client, a missing URI or
// any mismatch falls back to the default page; the supplied URI is never
// followed unvalidated.
func (p *Provider) ResolvePostLogoutRedirect(ctx context.Context, clientID, requestedURI string) string {
	if clientID == "" || requestedURI == "" {
		return DefaultPostLogoutPath
	}
	c, err := p.registry.Lookup(ctx, clientID)
	if err != nil {
		return DefaultPostLogoutPath
	}
	if !client.ValidatePostLogoutRedirectURI(c, requestedURI) {
		return DefaultPostLogoutPath
	}
	return requestedURI
}
