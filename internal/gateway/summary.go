package gateway

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rshade/finsync/internal/model"
)

// moneyPlaces is the rounding applied to derived amounts.
const moneyPlaces = 2

// SummarizeTransactions aggregates txs, which should be one window's list.
func SummarizeTransactions(txs []model.Transaction, days int) model.TransactionSummary {
	sum := model.TransactionSummary{
		PeriodDays:       days,
		TotalIncome:      decimal.Zero,
		TotalExpenses:    decimal.Zero,
		TransactionCount: len(txs),
		ByCategory:       []model.CategoryTotal{},
	}

	byCategory := map[string]*model.CategoryTotal{}
	for _, tx := range txs {
		switch tx.Type {
		case model.TypeIncome:
			sum.TotalIncome = sum.TotalIncome.Add(tx.Amount)
			sum.IncomeCount++
		case model.TypeExpense:
			sum.TotalExpenses = sum.TotalExpenses.Add(tx.Amount)
			sum.ExpenseCount++
			cat := tx.Category
			if cat == "" {
				cat = CategoryOther
			}
			ct, ok := byCategory[cat]
			if !ok {
				ct = &model.CategoryTotal{Category: cat, Total: decimal.Zero}
				byCategory[cat] = ct
			}
			ct.Total = ct.Total.Add(tx.Amount)
			ct.Count++
		}
	}

	sum.NetAmount = sum.TotalIncome.Sub(sum.TotalExpenses)
	sum.AverageExpense = decimal.Zero
	if sum.ExpenseCount > 0 {
		sum.AverageExpense = sum.TotalExpenses.DivRound(decimal.NewFromInt(int64(sum.ExpenseCount)), moneyPlaces)
	}

	for _, ct := range byCategory {
		sum.ByCategory = append(sum.ByCategory, *ct)
	}
	slices.SortFunc(sum.ByCategory, func(a, b model.CategoryTotal) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return strings.Compare(a.Category, b.Category)
	})
	return sum
}

// SummarizeReminders aggregates rs as of now. Completions count toward the
// period when CompletedAt falls within the last days days; "today" is the
// calendar day of now in loc.
func SummarizeReminders(rs []model.Reminder, days int, now time.Time, loc *time.Location) model.ReminderSummary {
	if loc == nil {
		loc = time.UTC
	}
	sum := model.ReminderSummary{
		PeriodDays: days,
		Total:      len(rs),
		ByPriority: make(map[model.Priority]int, len(model.Priorities)),
	}
	for _, p := range model.Priorities {
		sum.ByPriority[p] = 0
	}

	periodStart := now.AddDate(0, 0, -days)
	today := model.Today(now, loc)

	for _, r := range rs {
		if r.IsCompleted {
			sum.Completed++
			if r.CompletedAt != nil && !r.CompletedAt.Before(periodStart) {
				sum.CompletedInPeriod++
			}
			continue
		}
		sum.Pending++
		sum.ByPriority[r.Priority]++
		if r.DueAt == nil {
			continue
		}
		if r.IsOverdue(now) {
			sum.Overdue++
		}
		if model.Today(*r.DueAt, loc) == today {
			sum.DueToday++
		}
	}
	return sum
}
