// Package oauth runs browser-based sign-in against OpenID Connect providers
// and hands the verified ID token to the session store.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownProvider is returned for a provider name that is not registered.
var ErrUnknownProvider = errors.New("unknown oauth provider")

// Identity is what a provider reports after a verified exchange.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	// IDToken is the raw token, forwarded to the backend's id_token grant.
	IDToken string
}

// Provider is one external identity provider. Implementations return
// identity facts only; they never create sessions.
type Provider interface {
	// Name returns the provider identifier, e.g. "google".
	Name() string

	// RedirectURL is where the provider sends the browser after consent.
	RedirectURL() string

	// AuthCodeURL returns the authorization URL. State, PKCE challenge and
	// nonce are generated by the caller.
	AuthCodeURL(state, codeChallenge, nonce string) string

	// Exchange trades the authorization code for a verified identity.
	Exchange(ctx context.Context, code, codeVerifier, nonce string) (Identity, error)
}

// Registry holds the configured providers by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry registers the given providers. A later provider with the same
// name replaces an earlier one.
func NewRegistry(list ...Provider) *Registry {
	m := make(map[string]Provider, len(list))
	for _, p := range list {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists the registered providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
