// Package gateway is the typed client for the finance backend: transaction
// and reminder queries, their summaries, and the mutations. Every call runs
// as the signed-in user and returns failures as *apierr.Error values.
package gateway

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/finsync/internal/apierr"
	"github.com/rshade/finsync/internal/httpapi"
	"github.com/rshade/finsync/internal/session"
)

// Backend paths.
const (
	PathHealth       = "/health"
	PathTransactions = "/rest/v1/transactions"
	PathReminders    = "/rest/v1/reminders"
)

// CredentialSource supplies the session every request runs as.
type CredentialSource interface {
	Credentials(ctx context.Context) (session.Session, error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Gateway talks to the backend's data endpoints.
type Gateway struct {
	api    *httpapi.Client
	creds  CredentialSource
	clock  Clock
	logger zerolog.Logger
	compat compatibility
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(g *Gateway) { g.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New returns a gateway that sends requests through api as the session from creds.
func New(api *httpapi.Client, creds CredentialSource, opts ...Option) *Gateway {
	g := &Gateway{
		api:    api,
		creds:  creds,
		clock:  systemClock{},
		logger: zerolog.Nop(),
		compat: defaultCompatibility(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// session returns the caller's credentials or an Unauthenticated error.
func (g *Gateway) session(ctx context.Context, op string) (session.Session, error) {
	sess, err := g.creds.Credentials(ctx)
	if err != nil {
		var e *apierr.Error
		if errors.As(err, &e) {
			return session.Session{}, err
		}
		return session.Session{}, apierr.Wrap(apierr.KindUnauthenticated, op, err)
	}
	if !sess.IsAuthenticated() {
		return session.Session{}, apierr.New(apierr.KindUnauthenticated, op, "not signed in")
	}
	return sess, nil
}

func (g *Gateway) do(ctx context.Context, op string, req httpapi.Request, out any) error {
	err := g.api.Do(ctx, op, req, out)
	if err != nil {
		g.logger.Debug().
			Str("component", "gateway").
			Str("operation", op).
			Str("kind", string(apierr.KindOf(err))).
			Err(err).
			Msg("backend call failed")
	}
	return err
}

func requireID(op, id string) error {
	if strings.TrimSpace(id) == "" {
		return apierr.New(apierr.KindValidation, op, "id is required")
	}
	return nil
}

func itemPath(base, id string) string {
	return base + "/" + url.PathEscape(id)
}

func userQuery(sess session.Session) url.Values {
	return url.Values{"user_id": {sess.UserID}}
}
