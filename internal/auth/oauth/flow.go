package oauth

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/rshade/finsync/internal/apierr"
)

// Callback holds the query parameters the provider redirects back with.
type Callback struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Authorizer shows the authorization URL to the user and waits for the
// provider's redirect. Returning an apierr.ErrUserCancelled error, or a
// callback with error=access_denied, means the user backed out.
type Authorizer interface {
	Authorize(ctx context.Context, authURL, redirectURL string) (Callback, error)
}

// errAccessDenied is the OAuth error code for a refused consent screen.
const errAccessDenied = "access_denied"

// Flow runs the authorization code flow with PKCE, state and nonce checks.
// It implements session.IDTokenSource.
type Flow struct {
	registry   *Registry
	authorizer Authorizer
	logger     zerolog.Logger
}

// NewFlow returns a flow over the registered providers.
func NewFlow(registry *Registry, authorizer Authorizer, logger zerolog.Logger) *Flow {
	return &Flow{registry: registry, authorizer: authorizer, logger: logger}
}

// IDToken runs the flow for provider and returns its verified ID token and
// the nonce bound into it.
func (f *Flow) IDToken(ctx context.Context, provider string) (string, string, error) {
	id, nonce, err := f.Authenticate(ctx, provider)
	if err != nil {
		return "", "", err
	}
	return id.IDToken, nonce, nil
}

// Authenticate runs the flow and returns the verified identity and nonce.
func (f *Flow) Authenticate(ctx context.Context, provider string) (Identity, string, error) {
	const op = "oauth.Authenticate"
	log := f.logger.With().Str("component", "oauth").Str("provider", provider).Logger()

	p, err := f.registry.Get(provider)
	if err != nil {
		return Identity{}, "", apierr.Wrap(apierr.KindProviderError, op, err)
	}

	pkce, err := NewPKCE()
	if err != nil {
		return Identity{}, "", apierr.Wrap(apierr.KindInternal, op, err)
	}
	state, err := RandomToken()
	if err != nil {
		return Identity{}, "", apierr.Wrap(apierr.KindInternal, op, err)
	}
	nonce, err := RandomToken()
	if err != nil {
		return Identity{}, "", apierr.Wrap(apierr.KindInternal, op, err)
	}

	cb, err := f.authorizer.Authorize(ctx, p.AuthCodeURL(state, pkce.Challenge, nonce), p.RedirectURL())
	switch {
	case apierr.IsCancelled(err), errors.Is(err, context.Canceled):
		log.Info().Msg("authorization cancelled")
		return Identity{}, "", apierr.Wrap(apierr.KindUserCancelled, op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return Identity{}, "", apierr.Wrap(apierr.KindTimeout, op, err)
	case err != nil:
		return Identity{}, "", apierr.Wrap(apierr.KindProviderError, op, err)
	}

	switch {
	case cb.Error == errAccessDenied:
		log.Info().Msg("consent denied")
		return Identity{}, "", apierr.New(apierr.KindUserCancelled, op, "access denied by user")
	case cb.Error != "":
		return Identity{}, "", apierr.Newf(apierr.KindProviderError, op, "%s: %s", cb.Error, cb.ErrorDescription)
	case cb.State != state:
		log.Warn().Msg("state mismatch on oauth callback")
		return Identity{}, "", apierr.New(apierr.KindProviderError, op, "state mismatch")
	case cb.Code == "":
		return Identity{}, "", apierr.New(apierr.KindProviderError, op, "callback carried no authorization code")
	}

	id, err := p.Exchange(ctx, cb.Code, pkce.Verifier, nonce)
	if err != nil {
		return Identity{}, "", apierr.Wrap(apierr.KindProviderError, op, err)
	}
	log.Info().Bool("email_verified", id.EmailVerified).Msg("oauth identity verified")
	return id, nonce, nil
}
