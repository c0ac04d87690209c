// Package gatewaytest runs an in-memory finance backend over real HTTP for
// tests. It implements the auth, profile, transaction and reminder endpoints
// with the same envelope, status codes and ownership rules as the real
// service, and counts every request by route.
package gatewaytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/rshade/finsync/internal/auth"
	"github.com/rshade/finsync/internal/gateway"
	"github.com/rshade/finsync/internal/model"
	"github.com/rshade/finsync/internal/session"
)

// DefaultTokenTTL is the lifetime of issued access tokens.
const DefaultTokenTTL = time.Hour

// DefaultVersion is what /health reports unless Version is changed.
const DefaultVersion = "1.4.0"

type user struct {
	id          string
	email       string
	displayName string
	hash        []byte
}

type token struct {
	userID    string
	expiresAt time.Time
}

type failure struct {
	status int
	code   string
}

// Server is the fake backend. Its exported fields may be changed between
// requests while holding no other locks.
type Server struct {
	*httptest.Server

	// APIKey, when set, must be sent in the apikey header.
	APIKey string

	mu           sync.Mutex
	now          func() time.Time
	version      string
	tokenTTL     time.Duration
	users        map[string]*user // by email
	idTokens     map[string]string
	access       map[string]token
	refresh      map[string]string
	profiles     map[string]session.Profile
	transactions map[string]model.Transaction
	reminders    map[string]model.Reminder
	calls        map[string]int
	failures     map[string][]failure
	holds        map[string]chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithNow sets the server clock.
func WithNow(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithTokenTTL sets the lifetime of issued access tokens.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.tokenTTL = d }
}

// WithAPIKey requires the apikey header.
func WithAPIKey(key string) Option {
	return func(s *Server) { s.APIKey = key }
}

// New starts a server that is closed when the test ends.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		now:          time.Now,
		version:      DefaultVersion,
		tokenTTL:     DefaultTokenTTL,
		users:        map[string]*user{},
		idTokens:     map[string]string{},
		access:       map[string]token{},
		refresh:      map[string]string{},
		profiles:     map[string]session.Profile{},
		transactions: map[string]model.Transaction{},
		reminders:    map[string]model.Reminder{},
		calls:        map[string]int{},
		failures:     map[string][]failure{},
		holds:        map[string]chan struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.countAndInject)

	r.HandleFunc(gateway.PathHealth, s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc(auth.PathToken, s.handleToken).Methods(http.MethodPost)

	protected := r.NewRoute().Subrouter()
	protected.Use(s.authenticate)
	protected.HandleFunc(auth.PathLogout, s.handleLogout).Methods(http.MethodPost)
	protected.HandleFunc(auth.PathUser, s.handleUser).Methods(http.MethodGet)
	protected.HandleFunc(auth.PathProfiles+"{id}", s.handleGetProfile).Methods(http.MethodGet)
	protected.HandleFunc(auth.PathProfiles+"{id}", s.handlePatchProfile).Methods(http.MethodPatch)

	protected.HandleFunc(gateway.PathTransactions, s.handleListTransactions).Methods(http.MethodGet)
	protected.HandleFunc(gateway.PathTransactions, s.handleCreateTransaction).Methods(http.MethodPost)
	protected.HandleFunc(gateway.PathTransactions+"/{id}", s.handleGetTransaction).Methods(http.MethodGet)
	protected.HandleFunc(gateway.PathTransactions+"/{id}", s.handlePatchTransaction).Methods(http.MethodPatch)
	protected.HandleFunc(gateway.PathTransactions+"/{id}", s.handleDeleteTransaction).Methods(http.MethodDelete)

	protected.HandleFunc(gateway.PathReminders, s.handleListReminders).Methods(http.MethodGet)
	protected.HandleFunc(gateway.PathReminders, s.handleCreateReminder).Methods(http.MethodPost)
	protected.HandleFunc(gateway.PathReminders+"/{id}", s.handlePatchReminder).Methods(http.MethodPatch)
	protected.HandleFunc(gateway.PathReminders+"/{id}", s.handleDeleteReminder).Methods(http.MethodDelete)
	return r
}

// Route names a request by method and path template, e.g. "GET /rest/v1/transactions".
func Route(method, pathTemplate string) string {
	return method + " " + pathTemplate
}

// Calls returns how many requests reached route.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// FailNext makes the next request to route fail with status and envelope code.
func (s *Server) FailNext(route string, status int, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], failure{status: status, code: code})
}

// Hold blocks requests to route until the returned release func is called.
func (s *Server) Hold(route string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[route] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.holds, route)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// SetVersion changes what /health reports.
func (s *Server) SetVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
}

// AddUser registers a password user and returns its ID.
func (s *Server) AddUser(email, password, displayName string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &user{id: uuid.NewString(), email: email, displayName: displayName, hash: hash}
	s.users[email] = u
	return u.id
}

// AddIDToken makes idToken redeemable through the id_token grant for email,
// creating the user if needed.
func (s *Server) AddIDToken(idToken, email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		u = &user{id: uuid.NewString(), email: email}
		s.users[email] = u
	}
	s.idTokens[idToken] = email
	return u.id
}

// SetProfile stores a profile for userID.
func (s *Server) SetProfile(userID string, p session.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID] = p
}

// Profile returns the stored profile for userID.
func (s *Server) Profile(userID string) (session.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	return p, ok
}

// RevokeTokens invalidates every access and refresh token.
func (s *Server) RevokeTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = map[string]token{}
	s.refresh = map[string]string{}
}

// SeedTransaction stores tx as is, assigning an ID and CreatedAt when missing.
func (s *Server) SeedTransaction(tx model.Transaction) model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.now()
	}
	s.transactions[tx.ID] = tx
	return tx
}

// SeedReminder stores r as is, assigning an ID and CreatedAt when missing.
func (s *Server) SeedReminder(r model.Reminder) model.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	s.reminders[r.ID] = r
	return r
}

// Transaction returns the stored transaction id.
func (s *Server) Transaction(id string) (model.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	return tx, ok
}

// Reminder returns the stored reminder id.
func (s *Server) Reminder(id string) (model.Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	return r, ok
}

func (s *Server) issueLocked(u *user) auth.TokenResponse {
	at := uuid.NewString()
	rt := uuid.NewString()
	s.access[at] = token{userID: u.id, expiresAt: s.now().Add(s.tokenTTL)}
	s.refresh[rt] = u.id
	return auth.TokenResponse{
		AccessToken:  at,
		RefreshToken: rt,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.tokenTTL / time.Second),
		User:         session.User{ID: u.id, Email: u.email, DisplayName: u.displayName},
	}
}

func (s *Server) userByIDLocked(id string) *user {
	for _, u := range s.users {
		if u.id == id {
			return u
		}
	}
	return nil
}

// countAndInject counts the request, then applies any queued failure or hold.
func (s *Server) countAndInject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = Route(r.Method, tpl)
			}
		}

		s.mu.Lock()
		s.calls[route]++
		var fail *failure
		if q := s.failures[route]; len(q) > 0 {
			fail = &q[0]
			s.failures[route] = q[1:]
		}
		hold := s.holds[route]
		s.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}
		if fail != nil {
			writeError(w, fail.status, fail.code, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ctxKey struct{}

// authenticate checks the apikey header and bearer token.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.APIKey != "" && r.Header.Get("apikey") != s.APIKey {
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, "invalid api key")
			return
		}
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") || bearer(r) == "" {
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, "missing bearer token")
			return
		}
		s.mu.Lock()
		tok, ok := s.access[bearer(r)]
		expired := ok && !s.now().Before(tok.expiresAt)
		s.mu.Unlock()
		if !ok || expired {
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithUser(r, tok.userID)))
	})
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	v := s.version
	s.mu.Unlock()
	writeData(w, http.StatusOK, gateway.Health{Status: "ok", Version: v})
}
