package cache

import (
	"strconv"
	"strings"
)

// Resource names. A resource is the key prefix before the first underscore.
const (
	ResourceTransactions    = "transactions"
	ResourceSummary         = "summary"
	ResourceReminders       = "reminders"
	ResourceReminderSummary = "remindersummary"
)

// TransactionResources are the resources affected by a transaction mutation.
func TransactionResources() []string {
	return []string{ResourceTransactions, ResourceSummary}
}

// ReminderResources are the resources affected by a reminder mutation.
func ReminderResources() []string {
	return []string{ResourceReminders, ResourceReminderSummary}
}

// TransactionsKey returns the key for a transaction list, e.g. "transactions_30_expense".
// An empty txType is rendered as "all".
func TransactionsKey(days int, txType string) string {
	if txType == "" {
		txType = "all"
	}
	return join(ResourceTransactions, strconv.Itoa(days), strings.ToLower(txType))
}

// SummaryKey returns the key for a transaction summary, e.g. "summary_30".
func SummaryKey(days int) string {
	return join(ResourceSummary, strconv.Itoa(days))
}

// RemindersKey returns the key for a reminder list, e.g. "reminders_pending_50".
func RemindersKey(includeCompleted bool, limit int) string {
	scope := "pending"
	if includeCompleted {
		scope = "all"
	}
	return join(ResourceReminders, scope, strconv.Itoa(limit))
}

// RemindersDueKey returns the key for reminders due within hours, e.g. "reminders_due_24".
func RemindersDueKey(hours int) string {
	return join(ResourceReminders, "due", strconv.Itoa(hours))
}

// ReminderSummaryKey returns the key for a reminder summary, e.g. "remindersummary_7".
func ReminderSummaryKey(days int) string {
	return join(ResourceReminderSummary, strconv.Itoa(days))
}

// ResourceOf returns the resource portion of key.
func ResourceOf(key string) string {
	resource, _, _ := strings.Cut(key, "_")
	return resource
}

func join(parts ...string) string {
	return strings.Join(parts, "_")
}
