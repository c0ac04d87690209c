package gateway

import (
	"strings"

	"github.com/rshade/finsync/internal/model"
)

// CategoryOther is assigned when no keyword matches.
const CategoryOther = "Other"

// CategoryRule maps description keywords to a category.
type CategoryRule struct {
	Category string
	Keywords []string
}

// ExpenseRules is checked in order; the first rule with a matching keyword wins.
// "utility" appears under both Essentials and the legacy Utilities category,
// so Essentials takes it.
//
//nolint:gochecknoglobals // Read-only keyword table.
var ExpenseRules = []CategoryRule{
	{"Food & Dining", []string{
		"restaurant", "cafe", "coffee", "pizza", "burger", "grocery", "groceries",
		"supermarket", "lunch", "dinner", "breakfast", "bakery", "food",
	}},
	{"Transportation", []string{
		"uber", "lyft", "taxi", "fuel", "gasoline", "gas station", "parking",
		"bus fare", "train", "metro", "subway", "toll",
	}},
	{"Shopping", []string{"amazon", "mall", "clothes", "clothing", "shoes", "shopping", "walmart", "target"}},
	{"Entertainment", []string{"netflix", "spotify", "movie", "cinema", "concert", "theater", "game"}},
	{"Essentials", []string{
		"rent", "mortgage", "utility", "electricity", "water", "internet", "phone", "insurance",
	}},
	{"Healthcare", []string{"doctor", "pharmacy", "hospital", "dentist", "medicine", "clinic"}},
	{"Utilities", []string{"utility", "electric", "power bill", "water bill", "sewage"}},
	{"Education", []string{"tuition", "course", "school", "textbook", "udemy"}},
	{"Travel", []string{"flight", "airline", "hotel", "airbnb", "booking.com"}},
}

// IncomeRules is the income counterpart of ExpenseRules.
//
//nolint:gochecknoglobals // Read-only keyword table.
var IncomeRules = []CategoryRule{
	{"Salary", []string{"salary", "payroll", "paycheck", "wage"}},
	{"Freelance", []string{"freelance", "invoice", "consulting", "contract"}},
	{"Investment", []string{"dividend", "interest", "stock", "crypto", "capital gain"}},
	{"Refund", []string{"refund", "reimbursement", "cashback"}},
	{"Gift", []string{"gift", "present"}},
}

// Categorize picks a category for a transaction description.
func Categorize(t model.TransactionType, description string) string {
	rules := ExpenseRules
	if t == model.TypeIncome {
		rules = IncomeRules
	}
	desc := strings.ToLower(description)
	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if strings.Contains(desc, kw) {
				return rule.Category
			}
		}
	}
	return CategoryOther
}
