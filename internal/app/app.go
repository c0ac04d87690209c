// Package app builds the finsync client from configuration: local
// persistence, the backend client, the session store, the gateway, and the
// cache with its query and mutation front ends.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rshade/finsync/internal/auth"
	"github.com/rshade/finsync/internal/auth/oauth"
	"github.com/rshade/finsync/internal/cache"
	"github.com/rshade/finsync/internal/config"
	"github.com/rshade/finsync/internal/gateway"
	"github.com/rshade/finsync/internal/httpapi"
	"github.com/rshade/finsync/internal/localstore"
	"github.com/rshade/finsync/internal/logging"
	"github.com/rshade/finsync/internal/mutation"
	"github.com/rshade/finsync/internal/notify"
	"github.com/rshade/finsync/internal/query"
	"github.com/rshade/finsync/internal/session"
)

// App holds every component of a running client.
type App struct {
	Config   *config.Config
	Local    localstore.Store
	API      *httpapi.Client
	Sessions *session.Store
	Gateway  *gateway.Gateway
	Cache    *cache.Store
	Query    *query.Service
	Mutate   *mutation.Coordinator
	Notifier *notify.Dispatcher

	logger      zerolog.Logger
	unsubscribe func()
	closeOnce   sync.Once
}

type options struct {
	logger     zerolog.Logger
	httpClient *http.Client
	local      localstore.Store
	sender     notify.Sender
	authorizer oauth.Authorizer
	out        io.Writer
}

// Option customizes New.
type Option func(*options)

// WithLogger sets the logger every component derives from.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHTTPClient replaces the backend HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithLocalStore uses store instead of opening the configured one.
func WithLocalStore(store localstore.Store) Option {
	return func(o *options) { o.local = store }
}

// WithSender replaces the notification sender. The default logs.
func WithSender(s notify.Sender) Option {
	return func(o *options) { o.sender = s }
}

// WithAuthorizer replaces how the OAuth authorization URL is presented and
// the redirect received. The default listens on the loopback redirect URL.
func WithAuthorizer(a oauth.Authorizer) Option {
	return func(o *options) { o.authorizer = a }
}

// WithOutput sets where interactive prompts such as the OAuth URL go.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// New validates cfg and wires the client. Nothing touches the network.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	o := options{logger: zerolog.Nop(), out: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cacheCfg, err := cfg.Cache.ToCacheConfig()
	if err != nil {
		return nil, err
	}

	local := o.local
	if local == nil {
		path, pathErr := cfg.StoragePath()
		if pathErr != nil {
			return nil, pathErr
		}
		local, err = localstore.Open(cfg.Storage.Driver, path)
		if err != nil {
			return nil, fmt.Errorf("opening local store: %w", err)
		}
	}

	apiOpts := []httpapi.Option{
		httpapi.WithAPIKey(cfg.API.APIKey),
		httpapi.WithTimeout(cfg.API.Timeout()),
		httpapi.WithLogger(logging.ComponentLogger(o.logger, "httpapi")),
	}
	if o.httpClient != nil {
		apiOpts = append(apiOpts, httpapi.WithHTTPClient(o.httpClient))
	}
	api, err := httpapi.New(cfg.API.BaseURL, apiOpts...)
	if err != nil {
		_ = local.Close()
		return nil, err
	}

	authorizer := o.authorizer
	if authorizer == nil {
		authorizer = &oauth.LoopbackAuthorizer{Out: o.out}
	}
	sessOpts := []session.Option{
		session.WithRefreshSkew(cfg.Auth.RefreshSkew()),
		session.WithLogger(logging.ComponentLogger(o.logger, "session")),
	}
	if len(cfg.Auth.Providers) > 0 {
		sessOpts = append(sessOpts, session.WithIDTokenSource(&lazyFlow{
			providers:  cfg.Auth.Providers,
			authorizer: authorizer,
			logger:     o.logger,
		}))
	}
	sessions := session.New(auth.New(api), local, sessOpts...)

	gw := gateway.New(api, sessions,
		gateway.WithLogger(logging.ComponentLogger(o.logger, "gateway")),
		gateway.WithVersionConstraint(cfg.API.VersionConstraint, cfg.API.StrictCompatibility))

	store, err := cache.New(cacheCfg,
		cache.WithLogger(logging.ComponentLogger(o.logger, "cache")),
		cache.WithScope(sessions.UserID),
		cache.WithSignOutSource(sessions))
	if err != nil {
		_ = local.Close()
		return nil, err
	}

	sender := o.sender
	if sender == nil {
		sender = notify.LogSender{Logger: o.logger}
	}
	notifier := notify.NewDispatcher(notify.SourceFunc(gw.ListRemindersDueWithin), sender,
		notify.WithHours(cfg.Notifications.LookaheadHours),
		notify.WithConcurrency(cfg.Notifications.Concurrency),
		notify.WithLocation(func() *time.Location {
			sess, _ := sessions.Current()
			return sess.Location()
		}),
		notify.WithLogger(o.logger))

	a := &App{
		Config:   cfg,
		Local:    local,
		API:      api,
		Sessions: sessions,
		Gateway:  gw,
		Cache:    store,
		Query:    query.New(gw, store, logging.ComponentLogger(o.logger, "query")),
		Mutate:   mutation.New(gw, store, logging.ComponentLogger(o.logger, "mutation")),
		Notifier: notifier,
		logger:   o.logger,
	}
	a.unsubscribe = sessions.OnSignOut(notifier.Reset)
	return a, nil
}

// Start restores the persisted session and checks the backend version.
// A backend that cannot be reached is logged, not returned, unless strict
// compatibility is configured.
func (a *App) Start(ctx context.Context) (session.Session, bool, error) {
	if _, err := a.Gateway.CheckCompatibility(ctx); err != nil {
		if a.Config.API.StrictCompatibility {
			return session.Session{}, false, err
		}
		a.logger.Warn().Str("component", "app").Err(err).Msg("backend compatibility check failed")
	}
	return a.Sessions.Restore(ctx)
}

// RunNotifier dispatches due reminders on the configured interval until ctx
// ends. It returns immediately when notifications are disabled.
func (a *App) RunNotifier(ctx context.Context) error {
	if !a.Config.Notifications.Enabled {
		return nil
	}
	return a.Notifier.Watch(ctx, a.Config.Notifications.Interval())
}

// Close stops the cache and releases the local store.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.unsubscribe != nil {
			a.unsubscribe()
		}
		a.Cache.Close()
		err = a.Local.Close()
	})
	return err
}

// lazyFlow discovers the configured OIDC issuers on first use so commands
// that never sign in with a provider do not need the network.
type lazyFlow struct {
	providers  []oauth.OIDCConfig
	authorizer oauth.Authorizer
	logger     zerolog.Logger

	mu   sync.Mutex
	flow *oauth.Flow
}

func (l *lazyFlow) IDToken(ctx context.Context, provider string) (string, string, error) {
	flow, err := l.get(ctx)
	if err != nil {
		return "", "", err
	}
	return flow.IDToken(ctx, provider)
}

func (l *lazyFlow) get(ctx context.Context) (*oauth.Flow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.flow != nil {
		return l.flow, nil
	}

	discovered := make([]oauth.Provider, len(l.providers))
	g, gCtx := errgroup.WithContext(ctx)
	for i, pc := range l.providers {
		g.Go(func() error {
			p, err := oauth.NewOIDC(gCtx, pc, logging.ComponentLogger(l.logger, "oauth"))
			if err != nil {
				return err
			}
			discovered[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	l.flow = oauth.NewFlow(oauth.NewRegistry(discovered...), l.authorizer, l.logger)
	return l.flow, nil
}
