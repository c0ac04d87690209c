package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rshade/finsync/internal/apierr"
	"github.com/rshade/finsync/internal/httpapi"
	"github.com/rshade/finsync/internal/model"
	"github.com/rshade/finsync/internal/session"
)

// reminderInsert is the create body: the input plus its owner.
type reminderInsert struct {
	UserID string `json:"user_id"`
	model.NewReminder
}

// FetchReminders lists up to limit reminders ordered by due time (undated
// last), then priority, then creation. Completed reminders are included only
// when includeCompleted is set.
func (g *Gateway) FetchReminders(ctx context.Context, includeCompleted bool, limit int) (model.ReminderList, error) {
	const op = "gateway.FetchReminders"
	if limit <= 0 {
		return model.ReminderList{}, apierr.Newf(apierr.KindValidation, op, "limit must be positive, got %d", limit)
	}
	sess, err := g.session(ctx, op)
	if err != nil {
		return model.ReminderList{}, err
	}
	rs, err := g.listReminders(ctx, op, sess, includeCompleted, limit, nil)
	if err != nil {
		return model.ReminderList{}, err
	}
	return model.ReminderList{Reminders: rs, Count: len(rs)}, nil
}

// ListRemindersDueWithin returns pending reminders due between now and now+hours.
func (g *Gateway) ListRemindersDueWithin(ctx context.Context, hours int) ([]model.Reminder, error) {
	const op = "gateway.ListRemindersDueWithin"
	if hours <= 0 {
		return nil, apierr.Newf(apierr.KindValidation, op, "hours must be positive, got %d", hours)
	}
	sess, err := g.session(ctx, op)
	if err != nil {
		return nil, err
	}

	now := g.clock.Now()
	to := now.Add(time.Duration(hours) * time.Hour)
	rs, err := g.listReminders(ctx, op, sess, false, 0, url.Values{
		"due_from": {now.UTC().Format(time.RFC3339)},
		"due_to":   {to.UTC().Format(time.RFC3339)},
	})
	if err != nil {
		return nil, err
	}

	due := rs[:0]
	for _, r := range rs {
		if r.IsCompleted || r.DueAt == nil || r.DueAt.Before(now) || r.DueAt.After(to) {
			continue
		}
		due = append(due, r)
	}
	return due, nil
}

// FetchReminderSummary aggregates every reminder the user has.
func (g *Gateway) FetchReminderSummary(ctx context.Context, days int) (model.ReminderSummary, error) {
	const op = "gateway.FetchReminderSummary"
	if days <= 0 {
		return model.ReminderSummary{}, apierr.Newf(apierr.KindValidation, op, "days must be positive, got %d", days)
	}
	sess, err := g.session(ctx, op)
	if err != nil {
		return model.ReminderSummary{}, err
	}
	rs, err := g.listReminders(ctx, op, sess, true, 0, nil)
	if err != nil {
		return model.ReminderSummary{}, err
	}
	return SummarizeReminders(rs, days, g.clock.Now(), sess.Location()), nil
}

// listReminders fetches and orders reminders. A zero limit means no limit.
func (g *Gateway) listReminders(
	ctx context.Context, op string, sess session.Session, includeCompleted bool, limit int, extra url.Values,
) ([]model.Reminder, error) {
	q := userQuery(sess)
	q.Set("include_completed", strconv.FormatBool(includeCompleted))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	for k, v := range extra {
		q[k] = v
	}

	var rs []model.Reminder
	if err := g.do(ctx, op, httpapi.Request{Path: PathReminders, Query: q, Token: sess.AccessToken}, &rs); err != nil {
		return nil, err
	}
	if rs == nil {
		rs = []model.Reminder{}
	}
	model.SortReminders(rs)
	if limit > 0 && len(rs) > limit {
		rs = rs[:limit]
	}
	return rs, nil
}

// CreateReminder stores a new reminder. A blank priority means medium.
func (g *Gateway) CreateReminder(ctx context.Context, in model.NewReminder) (model.Reminder, error) {
	const op = "gateway.CreateReminder"
	in.Title = strings.TrimSpace(in.Title)
	if err := in.Validate(); err != nil {
		return model.Reminder{}, err
	}
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	sess, err := g.session(ctx, op)
	if err != nil {
		return model.Reminder{}, err
	}

	var r model.Reminder
	err = g.do(ctx, op, httpapi.Request{
		Method: http.MethodPost,
		Path:   PathReminders,
		Token:  sess.AccessToken,
		Body:   reminderInsert{UserID: sess.UserID, NewReminder: in},
	}, &r)
	return r, err
}

// UpdateReminder applies patch to the user's reminder id.
func (g *Gateway) UpdateReminder(ctx context.Context, id string, patch model.ReminderPatch) (model.Reminder, error) {
	const op = "gateway.UpdateReminder"
	if err := requireID(op, id); err != nil {
		return model.Reminder{}, err
	}
	if err := patch.Validate(); err != nil {
		return model.Reminder{}, err
	}
	sess, err := g.session(ctx, op)
	if err != nil {
		return model.Reminder{}, err
	}

	var r model.Reminder
	err = g.do(ctx, op, httpapi.Request{
		Method: http.MethodPatch,
		Path:   itemPath(PathReminders, id),
		Query:  userQuery(sess),
		Token:  sess.AccessToken,
		Body:   patch,
	}, &r)
	return r, err
}

// CompleteReminder marks the user's reminder id as done.
func (g *Gateway) CompleteReminder(ctx context.Context, id string) (model.Reminder, error) {
	return g.UpdateReminder(ctx, id, model.CompleteReminderPatch())
}

// DeleteReminder removes the user's reminder id.
func (g *Gateway) DeleteReminder(ctx context.Context, id string) error {
	const op = "gateway.DeleteReminder"
	if err := requireID(op, id); err != nil {
		return err
	}
	sess, err := g.session(ctx, op)
	if err != nil {
		return err
	}
	return g.do(ctx, op, httpapi.Request{
		Method: http.MethodDelete,
		Path:   itemPath(PathReminders, id),
		Query:  userQuery(sess),
		Token:  sess.AccessToken,
	}, nil)
}
