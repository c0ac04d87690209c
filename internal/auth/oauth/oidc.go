package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// GoogleIssuer is Google's OpenID Connect issuer.
const GoogleIssuer = "https://accounts.google.com"

// ProviderGoogle is the registry name of the Google provider.
const ProviderGoogle = "google"

// OIDCConfig configures a generic OpenID Connect provider.
type OIDCConfig struct {
	Name         string   `yaml:"name"`
	Issuer       string   `yaml:"issuer"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret,omitempty"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes,omitempty"`
}

// Validate reports missing required fields.
func (c OIDCConfig) Validate() error {
	if c.Name == "" || c.Issuer == "" || c.ClientID == "" || c.RedirectURL == "" {
		return fmt.Errorf("oauth provider %q: name, issuer, client_id and redirect_url are required", c.Name)
	}
	return nil
}

// OIDCProvider signs users in through any OpenID Connect issuer.
type OIDCProvider struct {
	name        string
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	logger      zerolog.Logger
}

// NewOIDC discovers the issuer's endpoints and returns a provider.
func NewOIDC(ctx context.Context, cfg OIDCConfig, logger zerolog.Logger) (*OIDCProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	discovered, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discovering oidc issuer %s: %w", cfg.Issuer, err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"profile", "email"}
	}
	return &OIDCProvider{
		name: cfg.Name,
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     discovered.Endpoint(),
			Scopes:       append([]string{oidc.ScopeOpenID}, scopes...),
		},
		verifier: discovered.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		logger:   logger,
	}, nil
}

// NewGoogle returns the Google provider.
func NewGoogle(ctx context.Context, clientID, clientSecret, redirectURL string, logger zerolog.Logger) (*OIDCProvider, error) {
	return NewOIDC(ctx, OIDCConfig{
		Name:         ProviderGoogle,
		Issuer:       GoogleIssuer,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
	}, logger)
}

// Name implements Provider.
func (p *OIDCProvider) Name() string { return p.name }

// RedirectURL implements Provider.
func (p *OIDCProvider) RedirectURL() string { return p.oauthConfig.RedirectURL }

// AuthCodeURL implements Provider.
func (p *OIDCProvider) AuthCodeURL(state, codeChallenge, nonce string) string {
	return p.oauthConfig.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oidc.Nonce(nonce),
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange implements Provider.
func (p *OIDCProvider) Exchange(ctx context.Context, code, codeVerifier, nonce string) (Identity, error) {
	token, err := p.oauthConfig.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	if err != nil {
		return Identity{}, fmt.Errorf("%s token exchange failed: %w", p.name, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return Identity{}, fmt.Errorf("%s did not return an id_token", p.name)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Identity{}, fmt.Errorf("%s id_token verification failed: %w", p.name, err)
	}
	if idToken.Nonce != nonce {
		return Identity{}, errors.New("id_token nonce mismatch")
	}

	var claims struct {
		Subject       string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, fmt.Errorf("%s id_token claims parse failed: %w", p.name, err)
	}
	if claims.Subject == "" || claims.Email == "" {
		return Identity{}, fmt.Errorf("%s id_token missing required claims", p.name)
	}

	p.logger.Debug().
		Str("component", "oauth").
		Str("provider", p.name).
		Str("issuer", idToken.Issuer).
		Bool("email_verified", claims.EmailVerified).
		Time("expiry", idToken.Expiry).
		Msg("oidc identity verified")

	return Identity{
		Provider:      p.name,
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		IDToken:       rawIDToken,
	}, nil
}
