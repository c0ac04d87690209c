package model

import (
	"github.com/shopspring/decimal"
)

// CategoryTotal is the expense total for one category.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}

// TransactionSummary aggregates transactions over the last PeriodDays days.
type TransactionSummary struct {
	PeriodDays       int             `json:"period_days"`
	TotalIncome      decimal.Decimal `json:"total_income"`
	TotalExpenses    decimal.Decimal `json:"total_expenses"`
	NetAmount        decimal.Decimal `json:"net_amount"`
	IncomeCount      int             `json:"income_count"`
	ExpenseCount     int             `json:"expense_count"`
	TransactionCount int             `json:"transaction_count"`
	AverageExpense   decimal.Decimal `json:"average_expense"`
	ByCategory       []CategoryTotal `json:"by_category"`
}

// ReminderSummary aggregates a user's reminders.
type ReminderSummary struct {
	PeriodDays        int              `json:"period_days"`
	Total             int              `json:"total"`
	Pending           int              `json:"pending"`
	Completed         int              `json:"completed"`
	CompletedInPeriod int              `json:"completed_in_period"`
	Overdue           int              `json:"overdue"`
	DueToday          int              `json:"due_today"`
	ByPriority        map[Priority]int `json:"by_priority"`
}
