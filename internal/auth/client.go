// Package auth talks to the backend's auth endpoints and implements
// session.AuthProvider.
package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/rshade/finsync/internal/apierr"
	"github.com/rshade/finsync/internal/httpapi"
	"github.com/rshade/finsync/internal/session"
)

// Grant types accepted by the token endpoint.
const (
	GrantPassword     = "password"
	GrantRefreshToken = "refresh_token"
	GrantIDToken      = "id_token"
)

// Endpoint paths.
const (
	PathToken    = "/auth/v1/token"
	PathLogout   = "/auth/v1/logout"
	PathUser     = "/auth/v1/user"
	PathProfiles = "/rest/v1/profiles/"
)

// TokenResponse is the data member of a token grant.
type TokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type,omitempty"`
	ExpiresIn    int64        `json:"expires_in"`
	User         session.User `json:"user"`
}

// PasswordGrant is the body of a password grant.
type PasswordGrant struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshGrant is the body of a refresh_token grant.
type RefreshGrant struct {
	RefreshToken string `json:"refresh_token"`
}

// IDTokenGrant is the body of an id_token grant.
type IDTokenGrant struct {
	Provider string `json:"provider"`
	IDToken  string `json:"id_token"`
	Nonce    string `json:"nonce,omitempty"`
}

// Client implements session.AuthProvider over HTTP.
type Client struct {
	api *httpapi.Client
	now func() time.Time
}

var _ session.AuthProvider = (*Client)(nil)

// New returns a client using api for transport.
func New(api *httpapi.Client) *Client {
	return &Client{api: api, now: time.Now}
}

// SignInWithPassword implements session.AuthProvider.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (session.Tokens, error) {
	return c.grant(ctx, "auth.SignInWithPassword", GrantPassword, PasswordGrant{Email: email, Password: password})
}

// SignInWithIDToken implements session.AuthProvider.
func (c *Client) SignInWithIDToken(ctx context.Context, provider, idToken, nonce string) (session.Tokens, error) {
	return c.grant(ctx, "auth.SignInWithIDToken", GrantIDToken,
		IDTokenGrant{Provider: provider, IDToken: idToken, Nonce: nonce})
}

// Refresh implements session.AuthProvider.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (session.Tokens, error) {
	return c.grant(ctx, "auth.Refresh", GrantRefreshToken, RefreshGrant{RefreshToken: refreshToken})
}

// SignOut implements session.AuthProvider.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.api.Do(ctx, "auth.SignOut", httpapi.Request{
		Method: http.MethodPost,
		Path:   PathLogout,
		Token:  accessToken,
	}, nil)
}

// User implements session.AuthProvider.
func (c *Client) User(ctx context.Context, accessToken string) (session.User, error) {
	var u session.User
	err := c.api.Do(ctx, "auth.User", httpapi.Request{Path: PathUser, Token: accessToken}, &u)
	return u, err
}

// Profile implements session.AuthProvider.
func (c *Client) Profile(ctx context.Context, accessToken, userID string) (session.Profile, error) {
	var p session.Profile
	err := c.api.Do(ctx, "auth.Profile", httpapi.Request{
		Path:  PathProfiles + url.PathEscape(userID),
		Token: accessToken,
	}, &p)
	return p, err
}

// UpdateProfile implements session.AuthProvider.
func (c *Client) UpdateProfile(
	ctx context.Context, accessToken, userID string, upd session.ProfileUpdate,
) (session.Profile, error) {
	var p session.Profile
	err := c.api.Do(ctx, "auth.UpdateProfile", httpapi.Request{
		Method: http.MethodPatch,
		Path:   PathProfiles + url.PathEscape(userID),
		Token:  accessToken,
		Body:   upd,
	}, &p)
	return p, err
}

func (c *Client) grant(ctx context.Context, op, grantType string, body any) (session.Tokens, error) {
	var resp TokenResponse
	err := c.api.Do(ctx, op, httpapi.Request{
		Method: http.MethodPost,
		Path:   PathToken,
		Query:  url.Values{"grant_type": {grantType}},
		Body:   body,
	}, &resp)
	if err != nil {
		if grantType == GrantPassword {
			err = passwordRejection(op, err)
		}
		return session.Tokens{}, err
	}
	t := session.Tokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		User:         resp.User,
	}
	if resp.ExpiresIn > 0 {
		t.ExpiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return t, nil
}

// passwordRejection reports a password grant refused with 400, 401 or 403 as
// InvalidCredentials, whatever envelope code the backend used.
func passwordRejection(op string, err error) error {
	var ae *apierr.Error
	if !errors.As(err, &ae) {
		return err
	}
	switch ae.Kind {
	case apierr.KindUnauthenticated, apierr.KindValidation:
		return apierr.New(apierr.KindInvalidCredentials, op, ae.Message)
	default:
		return err
	}
}
