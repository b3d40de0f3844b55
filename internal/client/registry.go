package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrNotFound        = errors.New("client: not found")
	ErrInvalidRedirect = errors.New("client: redirect uri not registered")
	ErrInvalidScope    = errors.New("client: scope not allowed")
	ErrBadSecret       = errors.New("client: authentication failed")
)

// Registry resolves and validates registered clients.
type Registry interface {
	Lookup(ctx context.Context, clientID string) (*Client, error)

	// ValidateRedirectURI requires an exact string match against the
	// registered set. No prefix or wildcard matching.
	ValidateRedirectURI(ctx context.Context, c *Client, uri string) error

	// ValidateScopes returns the granted subset, rejecting the request if
	// any requested scope is outside the client's allowed set.
	ValidateScopes(ctx context.Context, c *Client, requested []string) ([]string, error)

	// Authenticate verifies a confidential client's secret using a
	// constant-time comparison against the stored hash.
	Authenticate(ctx context.Context, clientID, secret string) (*Client, error)
}

var _ Registry = (*InMemoryRegistry)(nil)

// InMemoryRegistry is a Registry backed by a static table loaded at startup.
type InMemoryRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewInMemoryRegistry indexes the given clients by id.
func NewInMemoryRegistry(clients []Client) (*InMemoryRegistry, error) {
	reg := &InMemoryRegistry{clients: make(map[string]*Client, len(clients))}
	for i := range clients {
		c := clients[i]
		if strings.TrimSpace(c.ID) == "" {
			return nil, fmt.Errorf("client at index %d has no id", i)
		}
		if _, ok := reg.clients[c.ID]; ok {
			return nil, fmt.Errorf("duplicate client id %q", c.ID)
		}
		if len(c.GrantTypes) == 0 {
			return nil, fmt.Errorf("client %q has no grant types", c.ID)
		}
		for _, g := range c.GrantTypes {
			switch g {
			case GrantAuthorizationCode, GrantImplicit, GrantClientCredentials:
			default:
				return nil, fmt.Errorf("client %q: unknown grant type %q", c.ID, g)
			}
		}
		reg.clients[c.ID] = &c
	}
	return reg, nil
}

func (r *InMemoryRegistry) Lookup(ctx context.Context, clientID string) (*Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *InMemoryRegistry) ValidateRedirectURI(ctx context.Context, c *Client, uri string) error {
	if uri == "" {
		return ErrInvalidRedirect
	}
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return nil
		}
	}
	return ErrInvalidRedirect
}

func (r *InMemoryRegistry) ValidateScopes(ctx context.Context, c *Client, requested []string) ([]string, error) {
	allowed := make(map[string]struct{}, len(c.Scopes))
	for _, s := range c.Scopes {
		allowed[s] = struct{}{}
	}
	granted := make([]string, 0, len(requested))
	seen := make(map[string]struct{}, len(requested))
	for _, s := range requested {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := allowed[s]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidScope, s)
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		granted = append(granted, s)
	}
	return granted, nil
}

func (r *InMemoryRegistry) Authenticate(ctx context.Context, clientID, secret string) (*Client, error) {
	c, err := r.Lookup(ctx, clientID)
	if err != nil {
		return nil, ErrBadSecret
	}
	if !verifySecret(c.SecretHash, secret) {
		return nil, ErrBadSecret
	}
	return c, nil
}

// ValidatePostLogoutRedirectURI checks the post-logout redirect against the
// client's registered set, exact match only.
func ValidatePostLogoutRedirectURI(c *Client, uri string) bool {
	if c == nil || uri == "" {
		return false
	}
	for _, registered := range c.PostLogoutRedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}
