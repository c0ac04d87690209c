package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/rshade/finsync/internal/apierr"
)

// Common cache errors.
var (
	ErrInvalidCacheKey = errors.New("cache key cannot be empty")
	ErrNilFetcher      = errors.New("cache fetch function cannot be nil")
	ErrTypeMismatch    = errors.New("cached value has a different type")
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SignOutSource lets the store clear itself when the user signs out.
// The callback must run synchronously inside the sign-out transition.
type SignOutSource interface {
	OnSignOut(fn func()) (unsubscribe func())
}

// Stats counts store activity since construction.
type Stats struct {
	Hits    int `json:"hits"`
	Misses  int `json:"misses"`
	Fetches int `json:"fetches"`
	Errors  int `json:"errors"`
	Clears  int `json:"clears"`
}

// Store is the in-memory cache. Safe for concurrent use.
type Store struct {
	cfg    Config
	clock  Clock
	scope  func() string
	logger zerolog.Logger

	mu         sync.Mutex
	entries    map[string]*entry
	generation uint64
	stats      Stats

	flights     singleflight.Group
	unsubscribe func()
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithScope sets the function that names the current identity. Entries
// fetched for another identity are treated as cold misses, and fetches that
// finish after the identity changed are discarded.
func WithScope(fn func() string) Option {
	return func(s *Store) { s.scope = fn }
}

// WithSignOutSource registers ClearAll as a sign-out handler.
func WithSignOutSource(src SignOutSource) Option {
	return func(s *Store) {
		s.unsubscribe = src.OnSignOut(s.ClearAll)
	}
}

// New creates a store. It returns an error if cfg is invalid.
func New(cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		cfg:     cfg,
		clock:   systemClock{},
		scope:   func() string { return "" },
		logger:  zerolog.Nop(),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close detaches the store from its sign-out source.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Config returns the store's TTL configuration.
func (s *Store) Config() Config {
	return s.cfg
}

// Fetcher loads a value from the backend.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Result is what Get returns. On a failed refetch Data holds the retained
// stale value, if any, and HasData reports whether it is set.
type Result[T any] struct {
	Data      T
	HasData   bool
	FromCache bool
	Stale     bool
	FetchedAt time.Time
}

type getOptions struct {
	forceRefresh bool
}

// GetOption configures a single Get call.
type GetOption func(*getOptions)

// ForceRefresh bypasses a fresh entry and always fetches.
func ForceRefresh(force bool) GetOption {
	return func(o *getOptions) { o.forceRefresh = force }
}

// flight is what the shared fetch reports back to every waiter.
type flight struct {
	value     any
	fetchedAt time.Time
	stale     bool
	fromCache bool
}

// Get returns the value for key, calling fetch when the entry is absent, stale
// or forceRefresh is set. Concurrent calls for the same key share one fetch
// unless an invalidation of the key happened between them; a Get issued after
// Invalidate or InvalidateResource always starts its own fetch.
//
// When fetch fails the entry is left untouched; the error is returned together
// with whatever data the entry still holds. When ctx ends first, Get returns
// ctx.Err() but the shared fetch keeps running and its result is committed.
func Get[T any](ctx context.Context, s *Store, key string, fetch Fetcher[T], opts ...GetOption) (Result[T], error) {
	var zero Result[T]
	if key == "" {
		return zero, ErrInvalidCacheKey
	}
	if fetch == nil {
		return zero, ErrNilFetcher
	}
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}

	owner := s.scope()

	s.mu.Lock()
	e := s.lookupLocked(key, owner)
	now := s.clock.Now()
	ttl := s.cfg.TTLFor(e.resource)
	if !o.forceRefresh && !e.stale(now, ttl) {
		s.stats.Hits++
		value, fetchedAt := e.data, e.fetchedAt
		s.mu.Unlock()
		s.logger.Debug().Str("key", key).Msg("cache hit")
		return typedResult[T](value, fetchedAt, true, false)
	}
	s.stats.Misses++
	gen, epoch, seen := s.generation, e.epoch, e.version
	s.mu.Unlock()

	// Callers that arrive after an invalidation never join a fetch started before it.
	flightKey := fmt.Sprintf("%d\x00%d\x00%s\x00%s", gen, epoch, owner, key)
	ch := s.flights.DoChan(flightKey, func() (any, error) {
		return s.fetchAndCommit(ctx, key, owner, gen, epoch, seen, o.forceRefresh, func(c context.Context) (any, error) {
			return fetch(c)
		})
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return retained[T](s, key, owner), res.Err
		}
		f, _ := res.Val.(flight)
		return typedResult[T](f.value, f.fetchedAt, f.fromCache, f.stale)
	}
}

// fetchAndCommit runs inside the singleflight group.
func (s *Store) fetchAndCommit(
	ctx context.Context,
	key, owner string,
	gen, epoch, seen uint64,
	force bool,
	fetch func(context.Context) (any, error),
) (any, error) {
	log := s.logger.With().Str("key", key).Logger()

	// A fetch for this key may have landed between our check and the flight start.
	s.mu.Lock()
	if e, ok := s.entries[key]; ok && !force && s.generation == gen && e.version != seen &&
		!e.stale(s.clock.Now(), s.cfg.TTLFor(e.resource)) {
		f := flight{value: e.data, fetchedAt: e.fetchedAt, fromCache: true}
		s.stats.Hits++
		s.mu.Unlock()
		return f, nil
	}
	s.stats.Fetches++
	s.mu.Unlock()

	log.Debug().Msg("cache fetch")
	value, err := fetch(context.WithoutCancel(ctx))
	currentOwner := s.scope()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.stats.Errors++
		log.Debug().Err(err).Msg("cache fetch failed, entry left untouched")
		return nil, err
	}

	if s.generation != gen || currentOwner != owner {
		log.Debug().Msg("cache cleared during fetch, result discarded")
		return nil, apierr.New(apierr.KindUnauthenticated, "cache.Get", "session changed while fetching")
	}

	e := s.lookupLocked(key, owner)
	now := s.clock.Now()
	if e.hasData && e.dataEpoch > epoch {
		// A fetch started after a later invalidation already landed.
		log.Debug().Msg("older fetch finished last, result not committed")
		return flight{value: value, fetchedAt: now, stale: true}, nil
	}
	e.data = value
	e.hasData = true
	e.fetchedAt = now
	e.dataEpoch = epoch
	e.version++
	// An invalidation that raced the fetch keeps the entry stale.
	e.invalidated = e.epoch != epoch

	return flight{value: value, fetchedAt: e.fetchedAt, stale: e.invalidated}, nil
}

// lookupLocked returns the entry for key, creating it lazily. Data owned by a
// different identity is dropped.
func (s *Store) lookupLocked(key, owner string) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{key: key, resource: ResourceOf(key), owner: owner}
		s.entries[key] = e
		return e
	}
	if e.owner != owner {
		e.reset(owner)
	}
	return e
}

func typedResult[T any](value any, fetchedAt time.Time, fromCache, stale bool) (Result[T], error) {
	data, ok := value.(T)
	if !ok {
		var zero Result[T]
		return zero, fmt.Errorf("%w: %T", ErrTypeMismatch, value)
	}
	return Result[T]{Data: data, HasData: true, FromCache: fromCache, Stale: stale, FetchedAt: fetchedAt}, nil
}

// retained returns the data still held for key after a failed refetch.
func retained[T any](s *Store, key, owner string) Result[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.hasData || e.owner != owner {
		return Result[T]{}
	}
	data, ok := e.data.(T)
	if !ok {
		return Result[T]{}
	}
	return Result[T]{Data: data, HasData: true, FromCache: true, Stale: true, FetchedAt: e.fetchedAt}
}

// Invalidate marks the given keys stale, or every key when none are given.
// Data is kept and nothing is refetched until the next Get.
func (s *Store) Invalidate(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(keys) == 0 {
		for _, e := range s.entries {
			markStale(e)
		}
		s.logger.Debug().Int("entries", len(s.entries)).Msg("cache invalidated")
		return
	}
	for _, key := range keys {
		if e, ok := s.entries[key]; ok {
			markStale(e)
		}
	}
	s.logger.Debug().Strs("keys", keys).Msg("cache keys invalidated")
}

// InvalidateResource marks every key of the given resources stale.
func (s *Store) InvalidateResource(resources ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if slices.Contains(resources, e.resource) {
			markStale(e)
			n++
		}
	}
	s.logger.Debug().
		Str("resources", strings.Join(resources, ",")).
		Int("entries", n).
		Msg("cache resources invalidated")
}

func markStale(e *entry) {
	e.invalidated = true
	e.epoch++
}

// ClearAll drops every entry and its data. Fetches still in flight will not commit.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	s.entries = make(map[string]*entry)
	s.generation++
	s.stats.Clears++
	s.logger.Debug().Int("entries", n).Msg("cache cleared")
}

// Peek returns a snapshot of the entry for key without fetching.
func (s *Store) Peek(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return s.snapshotLocked(e), true
}

// Entries returns snapshots of every entry, ordered by key.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, s.snapshotLocked(e))
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.Key, b.Key) })
	return out
}

// Len returns the number of entries, including ones that never fetched.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats returns activity counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Store) snapshotLocked(e *entry) Entry {
	now := s.clock.Now()
	ttl := s.cfg.TTLFor(e.resource)
	return Entry{
		Key:       e.key,
		Resource:  e.resource,
		Owner:     e.owner,
		Data:      e.data,
		FetchedAt: e.fetchedAt,
		Stale:     e.stale(now, ttl),
		TTL:       ttl,
		now:       now,
	}
}
