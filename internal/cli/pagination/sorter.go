package pagination

import (
	"cmp"
	"slices"
	"strings"

	"github.com/rshade/finsync/internal/model"
)

// Sorter sorts a slice of T by a named field.
type Sorter[T any] struct {
	fields map[string]func(a, b T) int
}

// NewSorter builds a sorter from field comparators.
func NewSorter[T any](fields map[string]func(a, b T) int) *Sorter[T] {
	return &Sorter[T]{fields: fields}
}

// IsValidField reports whether field can be sorted on.
func (s *Sorter[T]) IsValidField(field string) bool {
	_, ok := s.fields[field]
	return ok
}

// ValidFields returns the sortable field names in order.
func (s *Sorter[T]) ValidFields() []string {
	fields := make([]string, 0, len(s.fields))
	for f := range s.fields {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	return fields
}

// Sort returns a stably sorted copy of items. An unknown field returns items
// unchanged.
func (s *Sorter[T]) Sort(items []T, field, order string) []T {
	compare, ok := s.fields[field]
	if !ok {
		return items
	}
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b T) int {
		if order == SortOrderDesc {
			return compare(b, a)
		}
		return compare(a, b)
	})
	return sorted
}

// TransactionSorter sorts transactions by date, amount, category, description or type.
func TransactionSorter() *Sorter[model.Transaction] {
	return NewSorter(map[string]func(a, b model.Transaction) int{
		"date":        func(a, b model.Transaction) int { return compareDate(a, b) },
		"amount":      func(a, b model.Transaction) int { return a.Amount.Cmp(b.Amount) },
		"category":    func(a, b model.Transaction) int { return strings.Compare(a.Category, b.Category) },
		"description": func(a, b model.Transaction) int { return cmpFold(a.Description, b.Description) },
		"type":        func(a, b model.Transaction) int { return strings.Compare(string(a.Type), string(b.Type)) },
	})
}

// ReminderSorter sorts reminders by due time, priority, title or creation time.
// Undated reminders sort after dated ones.
func ReminderSorter() *Sorter[model.Reminder] {
	return NewSorter(map[string]func(a, b model.Reminder) int{
		"due": func(a, b model.Reminder) int {
			switch {
			case a.DueAt == nil && b.DueAt == nil:
				return 0
			case a.DueAt == nil:
				return 1
			case b.DueAt == nil:
				return -1
			}
			return a.DueAt.Compare(*b.DueAt)
		},
		"priority": func(a, b model.Reminder) int { return cmp.Compare(a.Priority.Rank(), b.Priority.Rank()) },
		"title":    func(a, b model.Reminder) int { return cmpFold(a.Title, b.Title) },
		"created":  func(a, b model.Reminder) int { return a.CreatedAt.Compare(b.CreatedAt) },
	})
}

func compareDate(a, b model.Transaction) int {
	switch {
	case a.Date.Before(b.Date):
		return -1
	case a.Date.After(b.Date):
		return 1
	}
	return 0
}

func cmpFold(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}
