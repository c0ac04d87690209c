// Package model holds the domain types shared by the gateway, the cache and
// the CLI: transactions, reminders and their derived summaries.
package model

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/rshade/finsync/internal/apierr"
)

// TransactionType is either expense or income.
type TransactionType string

// Transaction types.
const (
	TypeExpense TransactionType = "expense"
	TypeIncome  TransactionType = "income"
)

// TypeAll is the list filter that selects both transaction types.
const TypeAll = "all"

// Valid reports whether t is one of the two transaction types.
func (t TransactionType) Valid() bool {
	return t == TypeExpense || t == TypeIncome
}

// ParseTransactionType parses a type name. An empty string or "all" yields
// the empty filter.
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", TypeAll:
		return "", nil
	case string(TypeExpense):
		return TypeExpense, nil
	case string(TypeIncome):
		return TypeIncome, nil
	}
	return "", apierr.Newf(apierr.KindValidation, "model.ParseTransactionType",
		"transaction type must be expense or income, got %q", s)
}

// Transaction is a single income or expense owned by one user.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Type        TransactionType `json:"transaction_type"`
	Merchant    string          `json:"merchant,omitempty"`
	Date        civil.Date      `json:"date"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TransactionList is the result of a transaction query.
type TransactionList struct {
	Transactions []Transaction `json:"transactions"`
	Count        int           `json:"count"`
}

// NewTransaction is the input for creating a transaction. A blank Category is
// filled in by auto-categorization; a zero Date means today.
type NewTransaction struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category,omitempty"`
	Type        TransactionType `json:"transaction_type"`
	Merchant    string          `json:"merchant,omitempty"`
	Date        civil.Date      `json:"date"`
}

// Validate checks the input before any network call.
func (n NewTransaction) Validate() error {
	const op = "model.NewTransaction"
	if !n.Amount.IsPositive() {
		return apierr.New(apierr.KindValidation, op, "amount must be greater than zero")
	}
	if strings.TrimSpace(n.Description) == "" {
		return apierr.New(apierr.KindValidation, op, "description is required")
	}
	if !n.Type.Valid() {
		return apierr.Newf(apierr.KindValidation, op, "invalid transaction type %q", n.Type)
	}
	if !n.Date.IsZero() && !n.Date.IsValid() {
		return apierr.Newf(apierr.KindValidation, op, "invalid date %s", n.Date)
	}
	return nil
}

// TransactionPatch lists the fields to change. Nil fields are left as they are.
type TransactionPatch struct {
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Description *string          `json:"description,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Type        *TransactionType `json:"transaction_type,omitempty"`
	Merchant    *string          `json:"merchant,omitempty"`
	Date        *civil.Date      `json:"date,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p TransactionPatch) IsEmpty() bool {
	return p.Amount == nil && p.Description == nil && p.Category == nil &&
		p.Type == nil && p.Merchant == nil && p.Date == nil
}

// Validate checks the patched fields.
func (p TransactionPatch) Validate() error {
	const op = "model.TransactionPatch"
	if p.IsEmpty() {
		return apierr.New(apierr.KindValidation, op, "nothing to update")
	}
	if p.Amount != nil && !p.Amount.IsPositive() {
		return apierr.New(apierr.KindValidation, op, "amount must be greater than zero")
	}
	if p.Description != nil && strings.TrimSpace(*p.Description) == "" {
		return apierr.New(apierr.KindValidation, op, "description cannot be blank")
	}
	if p.Type != nil && !p.Type.Valid() {
		return apierr.Newf(apierr.KindValidation, op, "invalid transaction type %q", *p.Type)
	}
	if p.Date != nil && !p.Date.IsValid() {
		return apierr.Newf(apierr.KindValidation, op, "invalid date %s", *p.Date)
	}
	return nil
}

// Apply returns a copy of t with the patch applied.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Merchant != nil {
		t.Merchant = *p.Merchant
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	return t
}

// Today returns the calendar date of now in loc.
func Today(now time.Time, loc *time.Location) civil.Date {
	if loc == nil {
		loc = time.UTC
	}
	return civil.DateOf(now.In(loc))
}

// WindowStart returns the first date included in a window of the given days ending today.
func WindowStart(today civil.Date, days int) civil.Date {
	return today.AddDays(-days)
}
