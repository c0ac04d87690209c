package cli

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rshade/finsync/internal/apierr"
	"github.com/rshade/finsync/internal/app"
	"github.com/rshade/finsync/internal/cache"
	"github.com/rshade/finsync/internal/cli/pagination"
	"github.com/rshade/finsync/internal/model"
	"github.com/rshade/finsync/internal/tui"
)

const defaultDays = 30

func newTxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tx",
		Aliases: []string{"transactions"},
		Short:   "List and edit transactions",
	}
	cmd.AddCommand(newTxListCmd(), newTxBrowseCmd(), newTxAddCmd(), newTxUpdateCmd(), newTxDeleteCmd())
	return cmd
}

// queryResult prints a warning for a failed refresh that still has cached
// data and returns the error only when there is nothing to show.
func queryResult[T any](cmd *cobra.Command, res cache.Result[T], err error) error {
	if err == nil {
		return nil
	}
	if res.HasData {
		cmd.PrintErrf("Warning: showing cached data, refresh failed: %v\n", err)
		return nil
	}
	return err
}

// txListJSON is the JSON shape of tx list.
type txListJSON struct {
	Transactions []model.Transaction `json:"transactions"`
	Count        int                 `json:"count"`
	Pagination   *pagination.Meta    `json:"pagination,omitempty"`
}

func newTxListCmd() *cobra.Command {
	var (
		days    int
		txType  string
		refresh bool
		output  string
		page    pagination.Params
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent transactions, newest first",
		Example: `  # Last 30 days
  finsync tx list

  # Income over the last quarter as JSON
  finsync tx list --days 90 --type income --output json

  # Ten largest expenses
  finsync tx list --type expense --sort amount:desc --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			if err := page.Validate(); err != nil {
				return err
			}
			t, err := model.ParseTransactionType(txType)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				sess, err := currentSession(a)
				if err != nil {
					return err
				}
				res, err := a.Query.Transactions(ctx, days, t, refresh)
				if err = queryResult(cmd, res, err); err != nil {
					return err
				}
				rows, meta, err := pagination.Apply(res.Data.Transactions, page, pagination.TransactionSorter())
				if err != nil {
					return err
				}
				list := model.TransactionList{Transactions: rows, Count: len(rows)}
				if output == outputJSON {
					out := txListJSON{Transactions: list.Transactions, Count: list.Count}
					if page.IsEnabled() {
						out.Pagination = &meta
					}
					return writeJSON(cmd.OutOrStdout(), out)
				}
				writeHeader(cmd.OutOrStdout(), fmt.Sprintf("Transactions, last %d days", days),
					cachedNote(res.FromCache, res.Stale, res.FetchedAt))
				if err := renderTransactions(cmd.OutOrStdout(), newMoney(sess), list); err != nil {
					return err
				}
				if page.IsEnabled() {
					cmd.Printf("Page %d of %d, %d in total\n", meta.CurrentPage, meta.TotalPages, meta.TotalItems)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", defaultDays, "window in days, counting today")
	cmd.Flags().StringVar(&txType, "type", "", "expense, income, or all")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache")
	cmd.Flags().StringVar(&output, "output", outputTable, "Output format: table or json")
	page.AddFlags(cmd, "sort by date, amount, category, description or type, e.g. amount:desc")

	return cmd
}

func newTxBrowseCmd() *cobra.Command {
	var (
		days   int
		txType string
	)

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse transactions interactively",
		Long: `Opens a full-screen view of recent transactions. Filter with /, change the
sort with s, refresh with r, and press Enter for details.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := model.ParseTransactionType(txType)
			if err != nil {
				return err
			}
			if !isInteractive(cmd) || !isWriterTerminal(cmd.OutOrStdout()) {
				return apierr.New(apierr.KindValidation, "cli.tx.browse",
					"tx browse needs a terminal; use 'finsync tx list' instead")
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				sess, err := currentSession(a)
				if err != nil {
					return err
				}
				fetch := func(ctx context.Context, refresh bool) (model.TransactionList, error) {
					res, err := a.Query.Transactions(ctx, days, t, refresh)
					if err != nil && res.HasData {
						return res.Data, nil
					}
					return res.Data, err
				}
				return runInteractiveTUI(ctx, cmd, tui.NewTransactionsViewModel(ctx, fetch, newMoney(sess).format))
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", defaultDays, "window in days, counting today")
	cmd.Flags().StringVar(&txType, "type", "", "expense, income, or all")

	return cmd
}

func runInteractiveTUI(ctx context.Context, cmd *cobra.Command, m *tui.TransactionsViewModel) error {
	p := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run interactive TUI: %w", err)
	}
	return m.Err()
}

func newSummaryCmd() *cobra.Command {
	var (
		days    int
		refresh bool
		output  string
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarize income and expenses by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				sess, err := currentSession(a)
				if err != nil {
					return err
				}
				res, err := a.Query.Summary(ctx, days, refresh)
				if err = queryResult(cmd, res, err); err != nil {
					return err
				}
				if output == outputJSON {
					return writeJSON(cmd.OutOrStdout(), res.Data)
				}
				writeHeader(cmd.OutOrStdout(), fmt.Sprintf("Summary, last %d days", days),
					cachedNote(res.FromCache, res.Stale, res.FetchedAt))
				return renderTransactionSummary(cmd.OutOrStdout(), newMoney(sess), res.Data)
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", defaultDays, "window in days, counting today")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache")
	cmd.Flags().StringVar(&output, "output", outputTable, "Output format: table or json")

	return cmd
}

// txFields holds the flags shared by add and update.
type txFields struct {
	amount      string
	description string
	category    string
	txType      string
	merchant    string
	date        string
}

func (f *txFields) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.amount, "amount", "", "positive amount, e.g. 23.40")
	cmd.Flags().StringVar(&f.description, "description", "", "description; also drives auto-categorization")
	cmd.Flags().StringVar(&f.category, "category", "", "category (inferred from the description when empty)")
	cmd.Flags().StringVar(&f.txType, "type", string(model.TypeExpense), "expense or income")
	cmd.Flags().StringVar(&f.merchant, "merchant", "", "merchant name")
	cmd.Flags().StringVar(&f.date, "date", "", "date as YYYY-MM-DD (default today)")
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, apierr.Newf(apierr.KindValidation, "cli", "invalid amount %q", s)
	}
	return d, nil
}

func parseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return civil.Date{}, apierr.Newf(apierr.KindValidation, "cli", "invalid date %q, want YYYY-MM-DD", s)
	}
	return d, nil
}

func (f *txFields) newTransaction() (model.NewTransaction, error) {
	in := model.NewTransaction{
		Description: f.description,
		Category:    f.category,
		Type:        model.TransactionType(strings.ToLower(f.txType)),
		Merchant:    f.merchant,
	}
	var err error
	if in.Amount, err = parseAmount(f.amount); err != nil {
		return in, err
	}
	if f.date != "" {
		if in.Date, err = parseDate(f.date); err != nil {
			return in, err
		}
	}
	return in, nil
}

func (f *txFields) patch(cmd *cobra.Command) (model.TransactionPatch, error) {
	var p model.TransactionPatch
	changed := cmd.Flags().Changed
	if changed("amount") {
		a, err := parseAmount(f.amount)
		if err != nil {
			return p, err
		}
		p.Amount = &a
	}
	if changed("description") {
		p.Description = &f.description
	}
	if changed("category") {
		p.Category = &f.category
	}
	if changed("type") {
		t := model.TransactionType(strings.ToLower(f.txType))
		p.Type = &t
	}
	if changed("merchant") {
		p.Merchant = &f.merchant
	}
	if changed("date") {
		d, err := parseDate(f.date)
		if err != nil {
			return p, err
		}
		p.Date = &d
	}
	// An empty category asks the gateway to categorize again.
	if (p.Description != nil || p.Type != nil) && p.Category == nil {
		p.Category = new(string)
	}
	return p, nil
}

func newTxAddCmd() *cobra.Command {
	var f txFields

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a transaction",
		Example: `  finsync tx add --amount 23.40 --description "Uber to airport"
  finsync tx add --amount 3200 --description "Monthly salary" --type income`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := f.newTransaction()
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				sess, err := currentSession(a)
				if err != nil {
					return err
				}
				tx, err := a.Mutate.CreateTransaction(ctx, in)
				if err != nil {
					return err
				}
				cmd.Printf("Added %s %s (%s) on %s [%s]\n",
					tx.Type, newMoney(sess).format(tx.Amount), tx.Category, tx.Date, tx.ID)
				return nil
			})
		},
	}

	f.register(cmd)

	return cmd
}

func newTxUpdateCmd() *cobra.Command {
	var f txFields

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change fields of a transaction",
		Long: `Changes only the fields given as flags. Changing the description
or type without --category re-runs auto-categorization.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := f.patch(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				sess, err := currentSession(a)
				if err != nil {
					return err
				}
				tx, err := a.Mutate.UpdateTransaction(ctx, args[0], patch)
				if err != nil {
					return err
				}
				cmd.Printf("Updated %s: %s %s (%s) on %s\n",
					tx.ID, tx.Description, newMoney(sess).signed(tx), tx.Category, tx.Date)
				return nil
			})
		},
	}

	f.register(cmd)

	return cmd
}

func newTxDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && isInteractive(cmd) {
				if res := newPrompter(cmd).Confirm("Delete transaction " + args[0] + "?"); !res.Accepted {
					cmd.Println("Aborted.")
					return nil
				}
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Mutate.DeleteTransaction(ctx, args[0]); err != nil {
					return err
				}
				cmd.Printf("Deleted transaction %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	return cmd
}
