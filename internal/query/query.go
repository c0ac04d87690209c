// Package query serves gateway reads through the cache. Callers name what
// they want; the service builds the cache key and the fetch closure.
package query

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rshade/finsync/internal/cache"
	"github.com/rshade/finsync/internal/model"
)

// Source is the read side of the gateway.
type Source interface {
	FetchTransactions(ctx context.Context, days int, txType model.TransactionType) (model.TransactionList, error)
	FetchTransactionSummary(ctx context.Context, days int) (model.TransactionSummary, error)
	FetchReminders(ctx context.Context, includeCompleted bool, limit int) (model.ReminderList, error)
	ListRemindersDueWithin(ctx context.Context, hours int) ([]model.Reminder, error)
	FetchReminderSummary(ctx context.Context, days int) (model.ReminderSummary, error)
}

// Service answers cached queries.
type Service struct {
	src    Source
	cache  *cache.Store
	logger zerolog.Logger
}

// New returns a service reading src through store.
func New(src Source, store *cache.Store, logger zerolog.Logger) *Service {
	return &Service{src: src, cache: store, logger: logger}
}

// Cache returns the underlying store.
func (s *Service) Cache() *cache.Store {
	return s.cache
}

// Transactions returns the transaction list for the last days days.
func (s *Service) Transactions(
	ctx context.Context, days int, txType model.TransactionType, refresh bool,
) (cache.Result[model.TransactionList], error) {
	return get(ctx, s, cache.TransactionsKey(days, string(txType)), refresh,
		func(ctx context.Context) (model.TransactionList, error) {
			return s.src.FetchTransactions(ctx, days, txType)
		})
}

// Summary returns the transaction summary for the last days days.
func (s *Service) Summary(ctx context.Context, days int, refresh bool) (cache.Result[model.TransactionSummary], error) {
	return get(ctx, s, cache.SummaryKey(days), refresh,
		func(ctx context.Context) (model.TransactionSummary, error) {
			return s.src.FetchTransactionSummary(ctx, days)
		})
}

// Reminders returns up to limit reminders.
func (s *Service) Reminders(
	ctx context.Context, includeCompleted bool, limit int, refresh bool,
) (cache.Result[model.ReminderList], error) {
	return get(ctx, s, cache.RemindersKey(includeCompleted, limit), refresh,
		func(ctx context.Context) (model.ReminderList, error) {
			return s.src.FetchReminders(ctx, includeCompleted, limit)
		})
}

// DueReminders returns pending reminders due within hours.
func (s *Service) DueReminders(ctx context.Context, hours int, refresh bool) (cache.Result[[]model.Reminder], error) {
	return get(ctx, s, cache.RemindersDueKey(hours), refresh,
		func(ctx context.Context) ([]model.Reminder, error) {
			return s.src.ListRemindersDueWithin(ctx, hours)
		})
}

// ReminderSummary returns the reminder summary for the last days days.
func (s *Service) ReminderSummary(
	ctx context.Context, days int, refresh bool,
) (cache.Result[model.ReminderSummary], error) {
	return get(ctx, s, cache.ReminderSummaryKey(days), refresh,
		func(ctx context.Context) (model.ReminderSummary, error) {
			return s.src.FetchReminderSummary(ctx, days)
		})
}

func get[T any](
	ctx context.Context, s *Service, key string, refresh bool, fetch cache.Fetcher[T],
) (cache.Result[T], error) {
	res, err := cache.Get(ctx, s.cache, key, fetch, cache.ForceRefresh(refresh))
	ev := s.logger.Debug()
	if err != nil {
		ev = s.logger.Warn().Err(err).Bool("has_data", res.HasData)
	}
	ev.Str("component", "query").
		Str("key", key).
		Bool("from_cache", res.FromCache).
		Bool("refresh", refresh).
		Msg("query")
	return res, err
}
