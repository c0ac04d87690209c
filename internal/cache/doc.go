// Package cache provides the in-memory, TTL-bounded store that sits between
// callers and the remote data gateway.
//
// Entries are keyed by a resource name plus canonical query parameters
// (for example "transactions_30_expense"). Key features:
//   - Read-through Get with per-resource TTL (default 5 minutes)
//   - Explicit invalidation that keeps data for display but forces a refetch
//   - ClearAll on sign-out, wired to the session store at construction
//   - At most one in-flight fetch per key (singleflight)
//   - Fetch results are discarded when the store was cleared or the signed-in
//     identity changed while the fetch was running
//
// The store never persists anything; it is rebuilt from the backend on every
// cold start.
package cache
