// Package notify delivers local notifications for reminders that come due.
//
// The package defines the two collaborators a platform integration needs, a
// DueSource that lists reminders due soon and a Sender that shows one
// notification, plus a Dispatcher that connects them and never announces the
// same reminder twice in one process.
package notify

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rshade/finsync/internal/model"
)

// DefaultHours is the look-ahead window used when none is configured.
const DefaultHours = 24

// Notification is what a Sender shows.
type Notification struct {
	ReminderID string         `json:"reminder_id"`
	Title      string         `json:"title"`
	Body       string         `json:"body"`
	DueAt      time.Time      `json:"due_at"`
	Priority   model.Priority `json:"priority"`
}

// DueSource lists pending reminders due within the next hours hours.
type DueSource interface {
	DueReminders(ctx context.Context, hours int) ([]model.Reminder, error)
}

// SourceFunc adapts a function to DueSource.
type SourceFunc func(ctx context.Context, hours int) ([]model.Reminder, error)

// DueReminders implements DueSource.
func (f SourceFunc) DueReminders(ctx context.Context, hours int) ([]model.Reminder, error) {
	return f(ctx, hours)
}

// Sender shows a notification.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Report summarizes one Dispatch.
type Report struct {
	Due     int `json:"due"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Dispatcher sends each due reminder once per process.
type Dispatcher struct {
	src         DueSource
	sender      Sender
	hours       int
	concurrency int
	location    func() *time.Location
	logger      zerolog.Logger

	mu   sync.Mutex
	sent map[string]struct{}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHours sets the look-ahead window.
func WithHours(h int) Option {
	return func(d *Dispatcher) {
		if h > 0 {
			d.hours = h
		}
	}
}

// WithConcurrency bounds how many notifications are sent at once.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithLocation sets the zone due times are rendered in.
func WithLocation(fn func() *time.Location) Option {
	return func(d *Dispatcher) { d.location = fn }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher returns a dispatcher.
func NewDispatcher(src DueSource, sender Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		src:         src,
		sender:      sender,
		hours:       DefaultHours,
		concurrency: runtime.NumCPU(),
		location:    func() *time.Location { return time.UTC },
		logger:      zerolog.Nop(),
		sent:        map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends a notification for every due reminder not yet announced.
// A failed send is retried on the next Dispatch. The returned error joins
// every send failure.
func (d *Dispatcher) Dispatch(ctx context.Context) (Report, error) {
	log := d.logger.With().Str("component", "notify").Str("operation", "Dispatch").Logger()

	due, err := d.src.DueReminders(ctx, d.hours)
	if err != nil {
		return Report{}, fmt.Errorf("listing due reminders: %w", err)
	}
	report := Report{Due: len(due)}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, r := range due {
		if r.DueAt == nil || !d.claim(r.ID) {
			report.Skipped++
			continue
		}
		n := d.notification(r)
		g.Go(func() error {
			sendErr := d.sender.Send(gCtx, n)
			mu.Lock()
			defer mu.Unlock()
			if sendErr != nil {
				d.release(n.ReminderID)
				report.Failed++
				errs = append(errs, fmt.Errorf("reminder %s: %w", n.ReminderID, sendErr))
				log.Warn().Err(sendErr).Str("reminder_id", n.ReminderID).Msg("notification failed")
				return nil
			}
			report.Sent++
			return nil
		})
	}
	_ = g.Wait()

	log.Debug().
		Int("due", report.Due).
		Int("sent", report.Sent).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("dispatch complete")
	return report, errors.Join(errs...)
}

// Watch runs Dispatch every interval until ctx ends. Errors are logged.
func (d *Dispatcher) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := d.Dispatch(ctx); err != nil {
			d.logger.Warn().Str("component", "notify").Err(err).Msg("dispatch failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Reset forgets which reminders were announced, e.g. after sign-out.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = map[string]struct{}{}
}

func (d *Dispatcher) claim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sent[id]; ok {
		return false
	}
	d.sent[id] = struct{}{}
	return true
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sent, id)
}

func (d *Dispatcher) notification(r model.Reminder) Notification {
	due := r.DueAt.In(d.location())
	body := "Due " + due.Format("Mon Jan 2 15:04 MST")
	if r.Description != "" {
		body = r.Description + "\n" + body
	}
	return Notification{
		ReminderID: r.ID,
		Title:      r.Title,
		Body:       body,
		DueAt:      *r.DueAt,
		Priority:   r.Priority,
	}
}

// LogSender writes notifications to the structured log.
type LogSender struct {
	Logger zerolog.Logger
}

// Send implements Sender.
func (s LogSender) Send(_ context.Context, n Notification) error {
	s.Logger.Info().
		Str("component", "notify").
		Str("reminder_id", n.ReminderID).
		Str("title", n.Title).
		Str("priority", string(n.Priority)).
		Time("due_at", n.DueAt).
		Msg("reminder due")
	return nil
}
