package cache

import (
	"encoding/json"
	"time"
)

// entry is the mutable record behind a key. It is only touched with Store.mu held.
type entry struct {
	key      string
	resource string
	owner    string

	data      any
	hasData   bool
	fetchedAt time.Time

	// invalidated is set by Invalidate and cleared by the next successful fetch.
	invalidated bool

	// epoch counts invalidations so a fetch can tell it raced one.
	epoch uint64

	// version counts commits so a late joiner can tell a fetch already landed.
	version uint64

	// dataEpoch is the epoch the committed data was fetched under.
	dataEpoch uint64
}

// stale reports whether e must be refetched before it is served as fresh.
func (e *entry) stale(now time.Time, ttl time.Duration) bool {
	if e.invalidated || !e.hasData || e.fetchedAt.IsZero() {
		return true
	}
	return now.Sub(e.fetchedAt) > ttl
}

func (e *entry) reset(owner string) {
	e.owner = owner
	e.data = nil
	e.hasData = false
	e.fetchedAt = time.Time{}
	e.invalidated = false
}

// Entry is a read-only snapshot of a cache entry.
//
//nolint:revive // Entry reads better than CacheEntry at call sites (cache.Entry).
type Entry struct {
	// Key is the cache key, e.g. "transactions_30_all".
	Key string `json:"key"`

	// Resource is the key prefix the TTL is looked up by.
	Resource string `json:"resource"`

	// Owner is the user the data was fetched for.
	Owner string `json:"owner,omitempty"`

	// Data is the cached value, nil until the first successful fetch.
	Data any `json:"-"`

	// FetchedAt is the time of the last successful fetch, zero if never fetched.
	FetchedAt time.Time `json:"fetched_at"`

	// Stale reports whether the next read will refetch.
	Stale bool `json:"stale"`

	// TTL is the lifetime that applies to this entry.
	TTL time.Duration `json:"ttl"`

	now time.Time
}

// HasData reports whether the entry holds data from a successful fetch.
func (e Entry) HasData() bool {
	return !e.FetchedAt.IsZero()
}

// Age returns how long ago the data was fetched, or 0 if never fetched.
func (e Entry) Age() time.Duration {
	if e.FetchedAt.IsZero() {
		return 0
	}
	return e.now.Sub(e.FetchedAt)
}

// TimeUntilExpiration returns the time left before the entry goes stale by age.
// Returns 0 if already stale.
func (e Entry) TimeUntilExpiration() time.Duration {
	if e.Stale || e.FetchedAt.IsZero() {
		return 0
	}
	remaining := e.TTL - e.Age()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MarshalJSON renders times as RFC3339 and durations as strings.
func (e Entry) MarshalJSON() ([]byte, error) {
	type alias Entry
	fetched := ""
	if !e.FetchedAt.IsZero() {
		fetched = e.FetchedAt.Format(time.RFC3339)
	}
	return json.Marshal(&struct {
		alias

		FetchedAt string `json:"fetched_at,omitempty"`
		TTL       string `json:"ttl"`
		Age       string `json:"age,omitempty"`
	}{
		alias:     alias(e),
		FetchedAt: fetched,
		TTL:       FormatDuration(e.TTL),
		Age:       formatAge(e),
	})
}

func formatAge(e Entry) string {
	if e.FetchedAt.IsZero() {
		return ""
	}
	return FormatDuration(e.Age())
}
