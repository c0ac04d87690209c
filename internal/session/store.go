package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rshade/finsync/internal/apierr"
	"github.com/rshade/finsync/internal/localstore"
)

// DefaultRefreshSkew is how early before expiry a token is refreshed.
const DefaultRefreshSkew = 60 * time.Second

// AuthProvider is the auth backend.
type AuthProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (Tokens, error)
	SignInWithIDToken(ctx context.Context, provider, idToken, nonce string) (Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
	SignOut(ctx context.Context, accessToken string) error
	User(ctx context.Context, accessToken string) (User, error)
	Profile(ctx context.Context, accessToken, userID string) (Profile, error)
	UpdateProfile(ctx context.Context, accessToken, userID string, upd ProfileUpdate) (Profile, error)
}

// IDTokenSource runs an interactive OAuth flow and returns the provider's ID
// token. A user who abandons the flow yields apierr.ErrUserCancelled.
type IDTokenSource interface {
	IDToken(ctx context.Context, provider string) (idToken, nonce string, err error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// persistedSession is what survives a restart under localstore.KeySession.
type persistedSession struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Provider     string    `json:"provider"`
}

// persistedUserData is stored under localstore.KeyUserData.
type persistedUserData struct {
	UserID string `json:"user_id"`
	Profile
}

type listener struct {
	id int
	fn func(Event)
}

// Store holds the current session. Safe for concurrent use.
//
// Listeners run synchronously, in subscription order, after the transition
// is applied and outside the store lock. They must not call back into
// SignIn*, SignOut, Refresh, Restore, HandleAuthEvent or UpdateProfile.
type Store struct {
	auth   AuthProvider
	local  localstore.Store
	oauth  IDTokenSource
	clock  Clock
	skew   time.Duration
	logger zerolog.Logger

	// transition serializes state changes so listeners observe them in order.
	transition sync.Mutex

	mu        sync.RWMutex
	state     State
	current   Session
	listeners []listener
	nextID    int
}

// Option configures a Store.
type Option func(*Store)

// WithIDTokenSource enables SignInWithOAuth.
func WithIDTokenSource(src IDTokenSource) Option {
	return func(s *Store) { s.oauth = src }
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithRefreshSkew sets how early tokens are refreshed.
func WithRefreshSkew(d time.Duration) Option {
	return func(s *Store) { s.skew = d }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns an unauthenticated store. Call Restore to pick up a persisted session.
func New(auth AuthProvider, local localstore.Store, opts ...Option) *Store {
	s := &Store{
		auth:   auth,
		local:  local,
		clock:  systemClock{},
		skew:   DefaultRefreshSkew,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the session and whether it is authenticated.
func (s *Store) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.state == StateAuthenticated && s.current.IsAuthenticated()
}

// State returns the lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// UserID returns the authenticated user's ID, or "" when signed out.
func (s *Store) UserID() string {
	cur, ok := s.Current()
	if !ok {
		return ""
	}
	return cur.UserID
}

// Subscribe registers fn for every transition and returns its unsubscribe func.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// OnSignOut registers fn to run synchronously whenever the session ends.
func (s *Store) OnSignOut(fn func()) func() {
	return s.Subscribe(func(e Event) {
		if e.Type == EventSignedOut {
			fn()
		}
	})
}

// SignInWithPassword authenticates with email and password.
func (s *Store) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	const op = "session.SignInWithPassword"
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Session{}, apierr.New(apierr.KindValidation, op, "email and password are required")
	}

	s.transition.Lock()
	defer s.transition.Unlock()

	log := s.opLogger("sign_in_password")
	tokens, err := s.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		log.Debug().Err(err).Msg("sign-in rejected")
		return Session{}, classify(op, err, apierr.KindInternal)
	}
	return s.completeSignInLocked(ctx, tokens, ProviderPassword)
}

// SignInWithOAuth runs the OAuth flow for provider and exchanges its ID token.
// A cancelled flow returns an error for which apierr.IsCancelled is true and
// leaves the current state unchanged.
func (s *Store) SignInWithOAuth(ctx context.Context, provider string) (Session, error) {
	const op = "session.SignInWithOAuth"
	if s.oauth == nil {
		return Session{}, apierr.New(apierr.KindProviderError, op, "oauth sign-in is not configured")
	}
	if strings.TrimSpace(provider) == "" {
		return Session{}, apierr.New(apierr.KindValidation, op, "provider is required")
	}

	// The browser flow runs without the transition lock held.
	idToken, nonce, err := s.oauth.IDToken(ctx, provider)
	if err != nil {
		if apierr.IsCancelled(err) {
			s.opLogger("sign_in_oauth").Info().Str("provider", provider).Msg("oauth sign-in cancelled")
			return Session{}, err
		}
		return Session{}, classify(op, err, apierr.KindProviderError)
	}

	s.transition.Lock()
	defer s.transition.Unlock()

	tokens, err := s.auth.SignInWithIDToken(ctx, provider, idToken, nonce)
	if err != nil {
		return Session{}, classify(op, err, apierr.KindProviderError)
	}
	return s.completeSignInLocked(ctx, tokens, provider)
}

// SignOut ends the session. Local state is always cleared first; a failure to
// revoke the token remotely is returned afterwards.
func (s *Store) SignOut(ctx context.Context) error {
	s.transition.Lock()
	defer s.transition.Unlock()

	prev, ok := s.Current()
	if !ok {
		return nil
	}
	s.signOutLocked(ctx, "user")

	if prev.AccessToken == "" {
		return nil
	}
	if err := s.auth.SignOut(ctx, prev.AccessToken); err != nil {
		s.opLogger("sign_out").Warn().Err(err).Msg("remote sign-out failed; local session already cleared")
		return classify("session.SignOut", err, apierr.KindNetwork)
	}
	return nil
}

// Restore loads the persisted session, refreshing it when the token has
// expired or is about to. Finding nothing persisted is not an error. Any
// failure clears the persisted state and leaves the store unauthenticated.
// Restore is a no-op while already signed in.
func (s *Store) Restore(ctx context.Context) (Session, bool, error) {
	const op = "session.Restore"

	s.transition.Lock()
	defer s.transition.Unlock()

	log := s.opLogger("restore")
	if cur, ok := s.Current(); ok {
		return cur, true, nil
	}
	s.setState(StateAuthenticating, Session{})

	var ps persistedSession
	found, err := s.local.Load(ctx, localstore.KeySession, &ps)
	if err != nil {
		s.failRestore(ctx, log, err)
		return Session{}, false, apierr.Wrap(apierr.KindInternal, op, err)
	}
	if !found || ps.AccessToken == "" || ps.UserID == "" {
		s.setState(StateUnauthenticated, Session{})
		log.Debug().Msg("no persisted session")
		return Session{}, false, nil
	}

	sess := Session{
		UserID:       ps.UserID,
		Email:        ps.Email,
		AccessToken:  ps.AccessToken,
		RefreshToken: ps.RefreshToken,
		ExpiresAt:    ps.ExpiresAt,
		Provider:     ps.Provider,
	}
	sess.applyProfile(s.loadUserData(ctx, ps.UserID))

	if sess.ExpiresWithin(s.clock.Now(), s.skew) {
		if sess.RefreshToken == "" {
			s.failRestore(ctx, log, errors.New("token expired and no refresh token"))
			return Session{}, false, apierr.New(apierr.KindUnauthenticated, op, "session expired")
		}
		tokens, rerr := s.auth.Refresh(ctx, sess.RefreshToken)
		if rerr != nil {
			s.failRestore(ctx, log, rerr)
			return Session{}, false, classify(op, rerr, apierr.KindUnauthenticated)
		}
		if tokens.User.ID != "" && tokens.User.ID != sess.UserID {
			s.failRestore(ctx, log, errors.New("refreshed token belongs to another user"))
			return Session{}, false, apierr.New(apierr.KindUnauthenticated, op, "refreshed token belongs to another user")
		}
		sess.applyTokens(tokens)
		s.persistSession(ctx, sess)
		log.Debug().Msg("expired session refreshed during restore")
	}

	s.setState(StateAuthenticated, sess)
	log.Info().Str("user_id", sess.UserID).Msg("session restored")
	s.notify(Event{Type: EventSessionRestored, Session: sess})
	return sess, true, nil
}

// Refresh exchanges the refresh token for a new access token. A rejected
// refresh token signs the user out.
func (s *Store) Refresh(ctx context.Context) (Session, error) {
	s.transition.Lock()
	defer s.transition.Unlock()
	return s.refreshLocked(ctx, "")
}

// Credentials returns an authenticated session whose token is valid for at
// least the refresh skew, refreshing it first if needed.
func (s *Store) Credentials(ctx context.Context) (Session, error) {
	cur, ok := s.Current()
	if !ok {
		return Session{}, apierr.New(apierr.KindUnauthenticated, "session.Credentials", "not signed in")
	}
	if !cur.ExpiresWithin(s.clock.Now(), s.skew) {
		return cur, nil
	}

	s.transition.Lock()
	defer s.transition.Unlock()
	return s.refreshLocked(ctx, cur.AccessToken)
}

// HandleAuthEvent applies an auth state change reported by the backend.
func (s *Store) HandleAuthEvent(ctx context.Context, ev AuthEvent) error {
	const op = "session.HandleAuthEvent"

	s.transition.Lock()
	defer s.transition.Unlock()

	switch ev.Type {
	case AuthSignedIn:
		provider := ev.Provider
		if provider == "" {
			provider = ProviderPassword
		}
		_, err := s.completeSignInLocked(ctx, ev.Tokens, provider)
		return err
	case AuthSignedOut:
		if _, ok := s.Current(); ok {
			s.signOutLocked(ctx, "auth_event")
		}
		return nil
	case AuthTokenRefreshed:
		cur, ok := s.Current()
		if !ok {
			return apierr.New(apierr.KindUnauthenticated, op, "token refreshed while signed out")
		}
		if ev.Tokens.User.ID != "" && ev.Tokens.User.ID != cur.UserID {
			_, err := s.completeSignInLocked(ctx, ev.Tokens, cur.Provider)
			return err
		}
		if ev.Tokens.AccessToken == "" {
			return apierr.New(apierr.KindValidation, op, "refresh event without access token")
		}
		s.applyRefreshLocked(ctx, cur, ev.Tokens)
		return nil
	}
	return apierr.Newf(apierr.KindValidation, op, "unknown auth event %q", ev.Type)
}

// UpdateProfile changes the user's settings on the backend and in the session.
func (s *Store) UpdateProfile(ctx context.Context, upd ProfileUpdate) (Session, error) {
	const op = "session.UpdateProfile"
	if err := upd.Validate(); err != nil {
		return Session{}, err
	}

	s.transition.Lock()
	defer s.transition.Unlock()

	cur, ok := s.Current()
	if !ok {
		return Session{}, apierr.New(apierr.KindUnauthenticated, op, "not signed in")
	}
	profile, err := s.auth.UpdateProfile(ctx, cur.AccessToken, cur.UserID, upd)
	if err != nil {
		return Session{}, classify(op, err, apierr.KindInternal)
	}

	next := cur
	next.applyProfile(upd.apply(mergeProfile(cur.profile(), profile)))
	s.persistUserData(ctx, next)
	s.setState(StateAuthenticated, next)
	s.opLogger("update_profile").Info().
		Str("currency", next.Currency).
		Str("language", next.Language).
		Str("timezone", next.Timezone).
		Msg("profile updated")
	s.notify(Event{Type: EventProfileUpdated, Session: next})
	return next, nil
}

// completeSignInLocked turns issued tokens into the current session.
func (s *Store) completeSignInLocked(ctx context.Context, tokens Tokens, provider string) (Session, error) {
	const op = "session.SignIn"
	if tokens.AccessToken == "" {
		return Session{}, apierr.New(apierr.KindInternal, op, "auth backend returned no access token")
	}

	user := tokens.User
	if user.ID == "" {
		u, err := s.auth.User(ctx, tokens.AccessToken)
		if err != nil {
			return Session{}, classify(op, err, apierr.KindInternal)
		}
		user = u
	}

	if prev, ok := s.Current(); ok && prev.UserID != user.ID {
		s.signOutLocked(ctx, "identity_change")
	}

	sess := Session{
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Provider:    provider,
	}
	sess.applyTokens(tokens)

	profile, err := s.auth.Profile(ctx, tokens.AccessToken, user.ID)
	if err != nil {
		// A missing or unreachable profile falls back to local or default settings.
		s.opLogger("sign_in").Warn().Err(err).Str("user_id", user.ID).Msg("profile unavailable, using defaults")
		profile = s.loadUserData(ctx, user.ID)
	}
	sess.applyProfile(profile)

	s.persistSession(ctx, sess)
	s.persistUserData(ctx, sess)
	s.setState(StateAuthenticated, sess)
	s.opLogger("sign_in").Info().Str("user_id", sess.UserID).Str("provider", provider).Msg("signed in")
	s.notify(Event{Type: EventSignedIn, Session: sess})
	return sess, nil
}

// refreshLocked refreshes the current token. When staleToken is set the
// refresh is skipped if another caller already replaced that token.
func (s *Store) refreshLocked(ctx context.Context, staleToken string) (Session, error) {
	const op = "session.Refresh"
	cur, ok := s.Current()
	if !ok {
		return Session{}, apierr.New(apierr.KindUnauthenticated, op, "not signed in")
	}
	if staleToken != "" && cur.AccessToken != staleToken && !cur.ExpiresWithin(s.clock.Now(), s.skew) {
		return cur, nil
	}
	if cur.RefreshToken == "" {
		s.signOutLocked(ctx, "no_refresh_token")
		return Session{}, apierr.New(apierr.KindUnauthenticated, op, "session expired")
	}

	tokens, err := s.auth.Refresh(ctx, cur.RefreshToken)
	if err != nil {
		kind := apierr.KindOf(err)
		if kind == apierr.KindUnauthenticated || kind == apierr.KindInvalidCredentials {
			s.signOutLocked(ctx, "refresh_rejected")
			return Session{}, apierr.Wrap(apierr.KindUnauthenticated, op, err)
		}
		return Session{}, classify(op, err, apierr.KindNetwork)
	}
	return s.applyRefreshLocked(ctx, cur, tokens), nil
}

func (s *Store) applyRefreshLocked(ctx context.Context, cur Session, tokens Tokens) Session {
	next := cur
	next.applyTokens(tokens)
	s.persistSession(ctx, next)
	s.setState(StateAuthenticated, next)
	s.opLogger("refresh").Debug().Time("expires_at", next.ExpiresAt).Msg("token refreshed")
	s.notify(Event{Type: EventTokenRefreshed, Session: next})
	return next
}

// signOutLocked clears the session locally and notifies listeners.
func (s *Store) signOutLocked(ctx context.Context, reason string) {
	prev, _ := s.Current()
	s.clearPersisted(ctx)
	s.setState(StateUnauthenticated, Session{})
	s.opLogger("sign_out").Info().Str("user_id", prev.UserID).Str("reason", reason).Msg("signed out")
	s.notify(Event{Type: EventSignedOut})
}

func (s *Store) failRestore(ctx context.Context, log *zerolog.Logger, cause error) {
	log.Warn().Err(cause).Msg("restore failed, clearing persisted session")
	s.clearPersisted(ctx)
	s.setState(StateUnauthenticated, Session{})
}

func (s *Store) setState(state State, sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.current = sess
}

func (s *Store) notify(e Event) {
	s.mu.RLock()
	ls := make([]listener, len(s.listeners))
	copy(ls, s.listeners)
	s.mu.RUnlock()

	for _, l := range ls {
		l.fn(e)
	}
}

func (s *Store) loadUserData(ctx context.Context, userID string) Profile {
	var ud persistedUserData
	found, err := s.local.Load(ctx, localstore.KeyUserData, &ud)
	if err != nil {
		s.logger.Warn().Err(err).Msg("reading persisted user data")
		return Profile{}
	}
	if !found || ud.UserID != userID {
		return Profile{}
	}
	return ud.Profile
}

func (s *Store) persistSession(ctx context.Context, sess Session) {
	ps := persistedSession{
		UserID:       sess.UserID,
		Email:        sess.Email,
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.ExpiresAt,
		Provider:     sess.Provider,
	}
	if err := s.local.Save(ctx, localstore.KeySession, ps); err != nil {
		s.logger.Warn().Err(err).Msg("persisting session")
	}
}

func (s *Store) persistUserData(ctx context.Context, sess Session) {
	ud := persistedUserData{UserID: sess.UserID, Profile: sess.profile()}
	if err := s.local.Save(ctx, localstore.KeyUserData, ud); err != nil {
		s.logger.Warn().Err(err).Msg("persisting user data")
	}
}

func (s *Store) clearPersisted(ctx context.Context) {
	for _, key := range []string{localstore.KeySession, localstore.KeyUserData} {
		if err := s.local.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("clearing persisted state")
		}
	}
}

func (s *Store) opLogger(operation string) *zerolog.Logger {
	l := s.logger.With().Str("component", "session").Str("operation", operation).Logger()
	return &l
}

// mergeProfile overlays the non-empty fields of next on base.
func mergeProfile(base, next Profile) Profile {
	if next.DisplayName != "" {
		base.DisplayName = next.DisplayName
	}
	if next.Currency != "" {
		base.Currency = next.Currency
	}
	if next.Language != "" {
		base.Language = next.Language
	}
	if next.Timezone != "" {
		base.Timezone = next.Timezone
	}
	return base
}

// classify keeps classified errors as they are and wraps anything else in fallback.
func classify(op string, err error, fallback apierr.Kind) error {
	var e *apierr.Error
	if errors.As(err, &e) {
		return err
	}
	kind := apierr.KindOf(err)
	if kind == apierr.KindInternal {
		kind = fallback
	}
	return apierr.Wrap(kind, op, err)
}
