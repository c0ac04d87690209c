package model

import (
	"slices"
	"strings"
	"time"

	"github.com/rshade/finsync/internal/apierr"
)

// Priority of a reminder.
type Priority string

// Reminder priorities, lowest first.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every priority from lowest to highest.
//
//nolint:gochecknoglobals // Read-only enumeration.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// Rank orders priorities; unknown values rank below low.
func (p Priority) Rank() int {
	return slices.Index(Priorities, p)
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p.Rank() >= 0
}

// ParsePriority parses a priority name, defaulting blank input to medium.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PriorityMedium, nil
	}
	p := Priority(s)
	if !p.Valid() {
		return "", apierr.Newf(apierr.KindValidation, "model.ParsePriority",
			"priority must be one of low, medium, high, urgent; got %q", s)
	}
	return p, nil
}

// Reminder is a to-do item with an optional due time.
type Reminder struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	DueAt             *time.Time `json:"due_datetime,omitempty"`
	Priority          Priority   `json:"priority"`
	IsCompleted       bool       `json:"is_completed"`
	IsRecurring       bool       `json:"is_recurring"`
	RecurrencePattern string     `json:"recurrence_pattern,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// IsOverdue reports whether a pending reminder's due time has passed.
func (r Reminder) IsOverdue(now time.Time) bool {
	return !r.IsCompleted && r.DueAt != nil && r.DueAt.Before(now)
}

// ReminderList is the result of a reminder query.
type ReminderList struct {
	Reminders []Reminder `json:"reminders"`
	Count     int        `json:"count"`
}

// NewReminder is the input for creating a reminder.
type NewReminder struct {
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	DueAt             *time.Time `json:"due_datetime,omitempty"`
	Priority          Priority   `json:"priority"`
	IsRecurring       bool       `json:"is_recurring"`
	RecurrencePattern string     `json:"recurrence_pattern,omitempty"`
}

// Validate checks the input before any network call.
func (n NewReminder) Validate() error {
	const op = "model.NewReminder"
	if strings.TrimSpace(n.Title) == "" {
		return apierr.New(apierr.KindValidation, op, "title is required")
	}
	if n.Priority != "" && !n.Priority.Valid() {
		return apierr.Newf(apierr.KindValidation, op, "invalid priority %q", n.Priority)
	}
	if n.RecurrencePattern != "" && !n.IsRecurring {
		return apierr.New(apierr.KindValidation, op, "recurrence pattern requires a recurring reminder")
	}
	return nil
}

// ReminderPatch lists the fields to change. ClearDue removes the due time.
type ReminderPatch struct {
	Title             *string    `json:"title,omitempty"`
	Description       *string    `json:"description,omitempty"`
	DueAt             *time.Time `json:"due_datetime,omitempty"`
	ClearDue          bool       `json:"clear_due_datetime,omitempty"`
	Priority          *Priority  `json:"priority,omitempty"`
	IsCompleted       *bool      `json:"is_completed,omitempty"`
	IsRecurring       *bool      `json:"is_recurring,omitempty"`
	RecurrencePattern *string    `json:"recurrence_pattern,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p ReminderPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.DueAt == nil && !p.ClearDue &&
		p.Priority == nil && p.IsCompleted == nil && p.IsRecurring == nil && p.RecurrencePattern == nil
}

// Validate checks the patched fields.
func (p ReminderPatch) Validate() error {
	const op = "model.ReminderPatch"
	if p.IsEmpty() {
		return apierr.New(apierr.KindValidation, op, "nothing to update")
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return apierr.New(apierr.KindValidation, op, "title cannot be blank")
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return apierr.Newf(apierr.KindValidation, op, "invalid priority %q", *p.Priority)
	}
	if p.ClearDue && p.DueAt != nil {
		return apierr.New(apierr.KindValidation, op, "cannot set and clear the due time together")
	}
	return nil
}

// Apply returns a copy of r with the patch applied. Completing stamps
// CompletedAt once; it is never cleared.
func (p ReminderPatch) Apply(r Reminder, now time.Time) Reminder {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.DueAt != nil {
		due := *p.DueAt
		r.DueAt = &due
	}
	if p.ClearDue {
		r.DueAt = nil
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
	}
	if p.IsRecurring != nil {
		r.IsRecurring = *p.IsRecurring
	}
	if p.RecurrencePattern != nil {
		r.RecurrencePattern = *p.RecurrencePattern
	}
	if p.IsCompleted != nil {
		r.IsCompleted = *p.IsCompleted
		if r.IsCompleted && r.CompletedAt == nil {
			stamp := now
			r.CompletedAt = &stamp
		}
	}
	return r
}

// CompleteReminderPatch is the distinguished update that marks a reminder done.
func CompleteReminderPatch() ReminderPatch {
	done := true
	return ReminderPatch{IsCompleted: &done}
}

// SortReminders orders reminders by due time ascending with no-due-date last,
// then by priority descending, then by creation time and ID.
func SortReminders(rs []Reminder) {
	slices.SortStableFunc(rs, compareReminders)
}

func compareReminders(a, b Reminder) int {
	switch {
	case a.DueAt == nil && b.DueAt != nil:
		return 1
	case a.DueAt != nil && b.DueAt == nil:
		return -1
	case a.DueAt != nil && b.DueAt != nil:
		if c := a.DueAt.Compare(*b.DueAt); c != 0 {
			return c
		}
	}
	if c := b.Priority.Rank() - a.Priority.Rank(); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
