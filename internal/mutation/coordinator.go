// Package mutation runs writes against the backend and keeps the cache
// consistent with them. A successful write marks every cached view of the
// affected resources stale; a failed write leaves the cache untouched. No
// cached data is ever edited in place.
package mutation

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rshade/finsync/internal/cache"
	"github.com/rshade/finsync/internal/model"
)

// Sink is the write side of the gateway.
type Sink interface {
	CreateTransaction(ctx context.Context, in model.NewTransaction) (model.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, patch model.TransactionPatch) (model.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	CreateReminder(ctx context.Context, in model.NewReminder) (model.Reminder, error)
	UpdateReminder(ctx context.Context, id string, patch model.ReminderPatch) (model.Reminder, error)
	CompleteReminder(ctx context.Context, id string) (model.Reminder, error)
	DeleteReminder(ctx context.Context, id string) error
}

// Invalidator is the part of the cache a coordinator needs.
type Invalidator interface {
	InvalidateResource(resources ...string)
}

var _ Invalidator = (*cache.Store)(nil)

// Coordinator pairs each write with its cache invalidation.
type Coordinator struct {
	sink   Sink
	cache  Invalidator
	logger zerolog.Logger
}

// New returns a coordinator.
func New(sink Sink, c Invalidator, logger zerolog.Logger) *Coordinator {
	return &Coordinator{sink: sink, cache: c, logger: logger}
}

// CreateTransaction creates a transaction.
func (c *Coordinator) CreateTransaction(ctx context.Context, in model.NewTransaction) (model.Transaction, error) {
	tx, err := c.sink.CreateTransaction(ctx, in)
	return tx, c.after("CreateTransaction", err, cache.TransactionResources())
}

// UpdateTransaction updates a transaction.
func (c *Coordinator) UpdateTransaction(
	ctx context.Context, id string, patch model.TransactionPatch,
) (model.Transaction, error) {
	tx, err := c.sink.UpdateTransaction(ctx, id, patch)
	return tx, c.after("UpdateTransaction", err, cache.TransactionResources())
}

// DeleteTransaction deletes a transaction.
func (c *Coordinator) DeleteTransaction(ctx context.Context, id string) error {
	return c.after("DeleteTransaction", c.sink.DeleteTransaction(ctx, id), cache.TransactionResources())
}

// CreateReminder creates a reminder.
func (c *Coordinator) CreateReminder(ctx context.Context, in model.NewReminder) (model.Reminder, error) {
	r, err := c.sink.CreateReminder(ctx, in)
	return r, c.after("CreateReminder", err, cache.ReminderResources())
}

// UpdateReminder updates a reminder.
func (c *Coordinator) UpdateReminder(ctx context.Context, id string, patch model.ReminderPatch) (model.Reminder, error) {
	r, err := c.sink.UpdateReminder(ctx, id, patch)
	return r, c.after("UpdateReminder", err, cache.ReminderResources())
}

// CompleteReminder marks a reminder done.
func (c *Coordinator) CompleteReminder(ctx context.Context, id string) (model.Reminder, error) {
	r, err := c.sink.CompleteReminder(ctx, id)
	return r, c.after("CompleteReminder", err, cache.ReminderResources())
}

// DeleteReminder deletes a reminder.
func (c *Coordinator) DeleteReminder(ctx context.Context, id string) error {
	return c.after("DeleteReminder", c.sink.DeleteReminder(ctx, id), cache.ReminderResources())
}

// after invalidates resources when err is nil and returns err unchanged.
func (c *Coordinator) after(op string, err error, resources []string) error {
	log := c.logger.With().Str("component", "mutation").Str("operation", op).Logger()
	if err != nil {
		log.Debug().Err(err).Msg("mutation failed, cache untouched")
		return err
	}
	c.cache.InvalidateResource(resources...)
	log.Debug().Strs("resources", resources).Msg("mutation applied, cache invalidated")
	return nil
}
