package session_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/finsync/internal/apierr"
	"github.com/rshade/finsync/internal/localstore"
	"github.com/rshade/finsync/internal/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeUser struct {
	id       string
	password string
}

// fakeAuth is an in-memory auth backend.
type fakeAuth struct {
	mu        sync.Mutex
	clock     *fakeClock
	users     map[string]fakeUser
	profiles  map[string]session.Profile
	refreshes map[string]string
	seq       int

	refreshErr error
	signOutErr error

	signInCalls  int
	refreshCalls int
	signOutCalls int
}

func newFakeAuth(clock *fakeClock) *fakeAuth {
	return &fakeAuth{
		clock: clock,
		users: map[string]fakeUser{
			"ana@example.com": {id: "user-ana", password: "secret"},
			"bo@example.com":  {id: "user-bo", password: "hunter2"},
		},
		profiles: map[string]session.Profile{
			"user-ana": {DisplayName: "Ana", Currency: "BRL", Language: "pt-BR", Timezone: "America/Sao_Paulo"},
		},
		refreshes: map[string]string{},
	}
}

func (f *fakeAuth) issueLocked(userID, email string) session.Tokens {
	f.seq++
	rt := fmt.Sprintf("rt-%s-%d", userID, f.seq)
	f.refreshes[rt] = userID
	return session.Tokens{
		AccessToken:  fmt.Sprintf("at-%s-%d", userID, f.seq),
		RefreshToken: rt,
		ExpiresAt:    f.clock.Now().Add(time.Hour),
		User:         session.User{ID: userID, Email: email},
	}
}

func (f *fakeAuth) SignInWithPassword(_ context.Context, email, password string) (session.Tokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signInCalls++
	u, ok := f.users[email]
	if !ok || u.password != password {
		return session.Tokens{}, apierr.New(apierr.KindInvalidCredentials, "fake", "bad login")
	}
	return f.issueLocked(u.id, email), nil
}

func (f *fakeAuth) SignInWithIDToken(_ context.Context, provider, idToken, _ string) (session.Tokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if idToken == "" {
		return session.Tokens{}, apierr.New(apierr.KindProviderError, "fake", "empty id token")
	}
	return f.issueLocked("user-"+provider, provider+"@example.com"), nil
}

func (f *fakeAuth) Refresh(_ context.Context, refreshToken string) (session.Tokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return session.Tokens{}, f.refreshErr
	}
	userID, ok := f.refreshes[refreshToken]
	if !ok {
		return session.Tokens{}, apierr.New(apierr.KindUnauthenticated, "fake", "unknown refresh token")
	}
	delete(f.refreshes, refreshToken)
	return f.issueLocked(userID, ""), nil
}

func (f *fakeAuth) SignOut(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutCalls++
	return f.signOutErr
}

func (f *fakeAuth) User(_ context.Context, accessToken string) (session.User, error) {
	return session.User{}, apierr.New(apierr.KindUnauthenticated, "fake", accessToken)
}

func (f *fakeAuth) Profile(_ context.Context, _, userID string) (session.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return session.Profile{}, apierr.New(apierr.KindNotFound, "fake", "no profile")
	}
	return p, nil
}

func (f *fakeAuth) UpdateProfile(
	_ context.Context, _, userID string, upd session.ProfileUpdate,
) (session.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.profiles[userID]
	if upd.Currency != nil {
		p.Currency = *upd.Currency
	}
	if upd.Language != nil {
		p.Language = *upd.Language
	}
	if upd.Timezone != nil {
		p.Timezone = *upd.Timezone
	}
	f.profiles[userID] = p
	return p, nil
}

type fakeIDTokens struct {
	err error
}

func (f fakeIDTokens) IDToken(context.Context, string) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	return "id-token", "nonce", nil
}

type harness struct {
	clock  *fakeClock
	auth   *fakeAuth
	local  *localstore.FileStore
	store  *session.Store
	events []session.Event
}

func newHarness(t *testing.T, opts ...session.Option) *harness {
	t.Helper()
	h := &harness{clock: &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}}
	h.auth = newFakeAuth(h.clock)
	h.local = localstore.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	h.store = h.newStore(opts...)
	return h
}

// newStore builds a store over the harness backends, as a fresh process would.
func (h *harness) newStore(opts ...session.Option) *session.Store {
	opts = append([]session.Option{session.WithClock(h.clock)}, opts...)
	s := session.New(h.auth, h.local, opts...)
	s.Subscribe(func(e session.Event) { h.events = append(h.events, e) })
	return s
}

func (h *harness) eventTypes() []session.EventType {
	out := make([]session.EventType, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.Type)
	}
	return out
}

func TestSignInWithPassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	sess, err := h.store.SignInWithPassword(ctx, " ana@example.com ", "secret")
	require.NoError(t, err)
	assert.True(t, sess.IsAuthenticated())
	assert.Equal(t, "user-ana", sess.UserID)
	assert.Equal(t, "BRL", sess.Currency)
	assert.Equal(t, "America/Sao_Paulo", sess.Timezone)
	assert.Equal(t, session.ProviderPassword, sess.Provider)
	assert.Equal(t, session.StateAuthenticated, h.store.State())
	assert.Equal(t, []session.EventType{session.EventSignedIn}, h.eventTypes())

	cur, ok := h.store.Current()
	require.True(t, ok)
	assert.Equal(t, sess, cur)
	assert.Equal(t, "user-ana", h.store.UserID())
}

func TestSignInWithPassword_Failures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name      string
		email     string
		password  string
		wantKind  apierr.Kind
		wantCalls int
	}{
		{name: "blank email", email: "  ", password: "x", wantKind: apierr.ErrValidation},
		{name: "blank password", email: "ana@example.com", wantKind: apierr.ErrValidation},
		{name: "wrong password", email: "ana@example.com", password: "nope", wantKind: apierr.ErrInvalidCredentials, wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			_, err := h.store.SignInWithPassword(ctx, tt.email, tt.password)
			require.ErrorIs(t, err, tt.wantKind)
			assert.Equal(t, tt.wantCalls, h.auth.signInCalls)
			assert.Equal(t, session.StateUnauthenticated, h.store.State())
			assert.Empty(t, h.events)
		})
	}
}

func TestSignIn_ProfileDefaults(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	sess, err := h.store.SignInWithPassword(context.Background(), "bo@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, session.DefaultCurrency, sess.Currency)
	assert.Equal(t, session.DefaultLanguage, sess.Language)
	assert.Equal(t, session.DefaultTimezone, sess.Timezone)
	assert.Equal(t, time.UTC, sess.Location())
}

func TestSignIn_DifferentUserSignsOutFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	var cleared int
	h.store.OnSignOut(func() { cleared++ })

	_, err := h.store.SignInWithPassword(ctx, "ana@example.com", "secret")
	require.NoError(t, err)
	sess, err := h.store.SignInWithPassword(ctx, "bo@example.com", "hunter2")
	require.NoError(t, err)

	assert.Equal(t, "user-bo", sess.UserID)
	assert.Equal(t, 1, cleared)
	assert.Equal(t, []session.EventType{
		session.EventSignedIn, session.EventSignedOut, session.EventSignedIn,
	}, h.eventTypes())
}

func TestSignOut(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("clears local state and notifies synchronously", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, err := h.store.SignInWithPassword(ctx, "ana@example.com", "secret")
		require.NoError(t, err)

		var stateDuringCallback session.State
		h.store.OnSignOut(func() { stateDuringCallback = h.store.State() })

		require.NoError(t, h.store.SignOut(ctx))
		assert.Equal(t, session.StateUnauthenticated, stateDuringCallback)
		_, ok := h.store.Current()
		assert.False(t, ok)
		assert.Empty(t, h.store.UserID())
		assert.Equal(t, 1, h.auth.signOutCalls)

		var raw map[string]any
		found, err := h.local.Load(ctx, localstore.KeySession, &raw)
		require.NoError(t, err)
		assert.False(t, found, "persisted session removed")
	})

	t.Run("remote failure returned after local sign-out", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, err := h.store.SignInWithPassword(ctx, "ana@example.com", "secret")
		require.NoError(t, err)
		h.auth.signOutErr = errors.New("connection reset")

		err = h.store.SignOut(ctx)
		require.ErrorIs(t, err, apierr.ErrNetwork)
		assert.Equal(t, session.StateUnauthenticated, h.store.State())
		assert.Contains(t, h.eventTypes(), session.EventSignedOut)
	})

	t.Run("signed out is a no-op", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		require.NoError(t, h.store.SignOut(ctx))
		assert.Empty(t, h.events)
		assert.Zero(t, h.auth.signOutCalls)
	})
}

func TestRestore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("nothing persisted", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, ok, err := h.store.Restore(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, session.StateUnauthenticated, h.store.State())
	})

	t.Run("valid token restores without network", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		signedIn, err := h.store.SignInWithPassword(ctx, "ana@example.com", "secret")
		require.NoError(t, err)

		h.events = nil
		restarted := h.newStore()
		sess, ok, err := restarted.Restore(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, signedIn.AccessToken, sess.AccessToken)
		assert.Equal(t, "BRL", sess.Currency, "profile restored from userData")
		assert.Zero(t, h.auth.refreshCalls)
		assert.Equal(t, []session.EventType{session.EventSessionRestored}, h.eventTypes())
	})

	t.Run("expired token is refreshed", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		signedIn, err := h.store.SignInWithPassword(ctx, "ana@example.com", "secret")
		require.NoError(t, err)

		h.clock.Advance(time.Hour - 30*time.Second)
		sess, ok, err := h.newStore().Restore(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 1, h.auth.refreshCalls)
		assert.NotEqual(t, signedIn.AccessToken, sess.AccessToken)
		assert.True(t, sess.ExpiresAt.After(h.clock.Now()))
	})

	t.Run("refresh failure clears persisted state", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, err := h.store.SignInWithPassword(ctx, "ana@example.com", "secret")
		require.NoError(t, err)

		h.clock.Advance(2 * time.Hour)
		h.auth.refreshErr = apierr.New(apierr.KindUnauthenticated, "fake", "revoked")

		restarted := h.newStore()
		_, ok, err := restarted.Restore(ctx)
		require.ErrorIs(t, err, apierr.ErrUnauthenticated)
		assert.False(t, ok)
		assert.Equal(t, session.StateUnauthenticated, restarted.State())

		var raw map[string]any
		found, loadErr := h.local.Load(ctx, localstore.KeySession, &raw)
		require.NoError(t, loadErr)
		assert.False(t, found)
	})

	t.Run("corrupt local state is replaced on next sign-in", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		require.NoError(t, os.WriteFile(h.local.FilePath(), []byte("{nope"), 0o600))

		_, ok, err := h.store.Restore(ctx)
		require.Error(t, err)
		assert.False(t, ok)

		signedIn, err := h.store.SignInWithPassword(ctx, "ana@example.com", "secret")
		require.NoError(t, err)

		sess, ok, err := h.newStore().Restore(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, signedIn.AccessToken, sess.AccessToken)
	})
}

func TestCredentials(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.store.Credentials(ctx)
	require.ErrorIs(t, err, apierr.ErrUnauthenticated)

	first, err := h.store.SignInWithPassword(ctx, "ana@example.com", "secret")
	require.NoError(t, err)

	got, err := h.store.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.AccessToken, got.AccessToken)
	assert.Zero(t, h.auth.refreshCalls)

	h.clock.Advance(time.Hour - 10*time.Second)
	var wg sync.WaitGroup
	tokens := make([]string, 5)
	for i := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, cerr := h.store.Credentials(ctx)
			if cerr == nil {
				tokens[i] = s.AccessToken
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.auth.refreshCalls, "concurrent callers share one refresh")
	for _, tok := range tokens {
		assert.NotEqual(t, first.AccessToken, tok)
		assert.Equal(t, tokens[0], tok)
	}
}

func TestRefresh_RejectedSignsOut(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.store.SignInWithPassword(ctx, "ana@example.com", "secret")
	require.NoError(t, err)

	h.auth.refreshErr = apierr.New(apierr.KindUnauthenticated, "fake", "revoked")
	_, err = h.store.Refresh(ctx)
	require.ErrorIs(t, err, apierr.ErrUnauthenticated)
	assert.Equal(t, session.StateUnauthenticated, h.store.State())
	assert.Equal(t, session.EventSignedOut, h.events[len(h.events)-1].Type)
}

func TestRefresh_TransientKeepsSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.store.SignInWithPassword(ctx, "ana@example.com", "secret")
	require.NoError(t, err)

	h.auth.refreshErr = apierr.New(apierr.KindNetwork, "fake", "offline")
	_, err = h.store.Refresh(ctx)
	require.ErrorIs(t, err, apierr.ErrNetwork)
	assert.Equal(t, session.StateAuthenticated, h.store.State())
}

func TestSignInWithOAuth(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.store = h.newStore(session.WithIDTokenSource(fakeIDTokens{}))

		sess, err := h.store.SignInWithOAuth(ctx, "google")
		require.NoError(t, err)
		assert.Equal(t, "user-google", sess.UserID)
		assert.Equal(t, "google", sess.Provider)
	})

	t.Run("cancelled leaves state unchanged", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		cancelled := apierr.New(apierr.KindUserCancelled, "oauth", "window closed")
		h.store = h.newStore(session.WithIDTokenSource(fakeIDTokens{err: cancelled}))

		_, err := h.store.SignInWithPassword(ctx, "ana@example.com", "secret")
		require.NoError(t, err)
		before := h.eventTypes()

		_, err = h.store.SignInWithOAuth(ctx, "google")
		require.Error(t, err)
		assert.True(t, apierr.IsCancelled(err))
		assert.Equal(t, before, h.eventTypes())
		assert.Equal(t, "user-ana", h.store.UserID())
	})

	t.Run("provider failure", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.store = h.newStore(session.WithIDTokenSource(fakeIDTokens{err: errors.New("bad issuer")}))

		_, err := h.store.SignInWithOAuth(ctx, "google")
		require.ErrorIs(t, err, apierr.ErrProviderError)
		assert.False(t, apierr.IsCancelled(err))
	})

	t.Run("not configured", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		_, err := h.store.SignInWithOAuth(ctx, "google")
		require.ErrorIs(t, err, apierr.ErrProviderError)
	})
}

func TestHandleAuthEvent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	tokens := session.Tokens{
		AccessToken:  "at-ext",
		RefreshToken: "rt-ext",
		ExpiresAt:    h.clock.Now().Add(time.Hour),
		User:         session.User{ID: "user-ana", Email: "ana@example.com"},
	}
	require.NoError(t, h.store.HandleAuthEvent(ctx, session.AuthEvent{Type: session.AuthSignedIn, Tokens: tokens}))
	assert.Equal(t, "user-ana", h.store.UserID())

	tokens.AccessToken = "at-ext-2"
	tokens.RefreshToken = ""
	require.NoError(t, h.store.HandleAuthEvent(ctx, session.AuthEvent{Type: session.AuthTokenRefreshed, Tokens: tokens}))
	cur, _ := h.store.Current()
	assert.Equal(t, "at-ext-2", cur.AccessToken)
	assert.Equal(t, "rt-ext", cur.RefreshToken, "refresh token kept when not rotated")

	require.NoError(t, h.store.HandleAuthEvent(ctx, session.AuthEvent{Type: session.AuthSignedOut}))
	assert.Equal(t, session.StateUnauthenticated, h.store.State())

	err := h.store.HandleAuthEvent(ctx, session.AuthEvent{Type: session.AuthTokenRefreshed, Tokens: tokens})
	require.ErrorIs(t, err, apierr.ErrUnauthenticated)

	err = h.store.HandleAuthEvent(ctx, session.AuthEvent{Type: "PASSWORD_RECOVERY"})
	require.ErrorIs(t, err, apierr.ErrValidation)

	assert.Equal(t, []session.EventType{
		session.EventSignedIn, session.EventTokenRefreshed, session.EventSignedOut,
	}, h.eventTypes())
}

func TestUpdateProfile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	str := func(s string) *string { return &s }

	_, err := h.store.UpdateProfile(ctx, session.ProfileUpdate{Currency: str("EUR")})
	require.ErrorIs(t, err, apierr.ErrUnauthenticated)

	_, err = h.store.SignInWithPassword(ctx, "bo@example.com", "hunter2")
	require.NoError(t, err)

	invalid := []session.ProfileUpdate{
		{},
		{Currency: str("NOPE")},
		{Language: str("not a tag!")},
		{Timezone: str("Mars/Olympus_Mons")},
	}
	for _, upd := range invalid {
		_, err = h.store.UpdateProfile(ctx, upd)
		require.ErrorIs(t, err, apierr.ErrValidation)
	}

	sess, err := h.store.UpdateProfile(ctx, session.ProfileUpdate{
		Currency: str("eur"),
		Language: str("de"),
		Timezone: str("Europe/Berlin"),
	})
	require.NoError(t, err)
	assert.Equal(t, "EUR", sess.Currency)
	assert.Equal(t, "de", sess.Language)
	assert.Equal(t, "Europe/Berlin", sess.Location().String())
	assert.Equal(t, session.EventProfileUpdated, h.events[len(h.events)-1].Type)

	restored, ok, err := h.newStore().Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "EUR", restored.Currency)
}

func TestSubscribe_OrderAndUnsubscribe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	var order []string
	h.store.Subscribe(func(session.Event) { order = append(order, "first") })
	unsubscribe := h.store.Subscribe(func(session.Event) { order = append(order, "second") })
	h.store.Subscribe(func(session.Event) { order = append(order, "third") })

	_, err := h.store.SignInWithPassword(ctx, "ana@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, order)

	unsubscribe()
	order = nil
	require.NoError(t, h.store.SignOut(ctx))
	assert.Equal(t, []string{"first", "third"}, order)
}

func TestOperationLogging(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	var buf bytes.Buffer
	h := newHarness(t, session.WithLogger(zerolog.New(&buf)))

	_, err := h.store.SignInWithPassword(ctx, "ana@example.com", "secret")
	require.NoError(t, err)
	require.NoError(t, h.store.SignOut(ctx))

	out := buf.String()
	assert.Contains(t, out, `"component":"session"`)
	assert.Contains(t, out, `"operation":"sign_in"`)
	assert.Contains(t, out, `"message":"signed in"`)
	assert.Contains(t, out, `"operation":"sign_out"`)
	assert.Contains(t, out, `"message":"signed out"`)
}
