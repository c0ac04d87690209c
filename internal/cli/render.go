package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"golang.org/x/term"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rshade/finsync/internal/model"
	"github.com/rshade/finsync/internal/session"
)

// Output formats accepted by --output.
const (
	outputTable = "table"
	outputJSON  = "json"
)

const tabPadding = 2

func headerColor() lipgloss.Color { return lipgloss.Color("39") }
func mutedColor() lipgloss.Color  { return lipgloss.Color("240") }

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// isWriterTerminal reports whether w is a terminal. Buffers never are.
func isWriterTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isTerminal(f)
	}
	return false
}

func validateOutput(format string) error {
	switch format {
	case outputTable, outputJSON:
		return nil
	}
	return fmt.Errorf("unsupported output format %q (want %s or %s)", format, outputTable, outputJSON)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeHeader prints a section title, styled on a terminal.
func writeHeader(w io.Writer, title, subtitle string) {
	if isWriterTerminal(w) {
		titleStyle := lipgloss.NewStyle().Bold(true).Foreground(headerColor())
		subStyle := lipgloss.NewStyle().Foreground(mutedColor())
		line := titleStyle.Render(title)
		if subtitle != "" {
			line += " " + subStyle.Render(subtitle)
		}
		_, _ = fmt.Fprintln(w, line)
		return
	}
	if subtitle != "" {
		title += " " + subtitle
	}
	_, _ = fmt.Fprintln(w, title)
	_, _ = fmt.Fprintln(w, strings.Repeat("-", len(title)))
}

// cachedNote describes where a query result came from.
func cachedNote(fromCache, stale bool, fetchedAt time.Time) string {
	switch {
	case stale:
		return "(stale, last fetched " + fetchedAt.Format(time.Kitchen) + ")"
	case fromCache:
		return "(cached)"
	}
	return ""
}

// money formats amounts in the session's currency and language.
type money struct {
	printer *message.Printer
	unit    currency.Unit
}

func newMoney(sess session.Session) money {
	tag, err := language.Parse(sess.Language)
	if err != nil {
		tag = language.English
	}
	unit, err := currency.ParseISO(sess.Currency)
	if err != nil {
		unit = currency.USD
	}
	return money{printer: message.NewPrinter(tag), unit: unit}
}

func (m money) format(d decimal.Decimal) string {
	return m.printer.Sprint(currency.Symbol(m.unit.Amount(d.InexactFloat64())))
}

func (m money) signed(t model.Transaction) string {
	if t.Type == model.TypeExpense {
		return "-" + m.format(t.Amount)
	}
	return m.format(t.Amount)
}

func renderTransactions(w io.Writer, m money, list model.TransactionList) error {
	if list.Count == 0 {
		_, err := fmt.Fprintln(w, "No transactions.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, tabPadding, ' ', 0)
	fmt.Fprintln(tw, "Date\tDescription\tCategory\tAmount\tID")
	for _, t := range list.Transactions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.Date, t.Description, t.Category, m.signed(t), t.ID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d transaction(s)\n", list.Count)
	return err
}

func renderTransactionSummary(w io.Writer, m money, s model.TransactionSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, tabPadding, ' ', 0)
	fmt.Fprintf(tw, "Income\t%s\t(%d)\n", m.format(s.TotalIncome), s.IncomeCount)
	fmt.Fprintf(tw, "Expenses\t%s\t(%d)\n", m.format(s.TotalExpenses), s.ExpenseCount)
	fmt.Fprintf(tw, "Net\t%s\t\n", m.format(s.NetAmount))
	fmt.Fprintf(tw, "Average expense\t%s\t\n", m.format(s.AverageExpense))
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(s.ByCategory) == 0 {
		return nil
	}
	_, _ = fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, tabPadding, ' ', 0)
	fmt.Fprintln(tw, "Category\tTotal\tCount")
	for _, c := range s.ByCategory {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", c.Category, m.format(c.Total), c.Count)
	}
	return tw.Flush()
}

func formatDue(r model.Reminder, loc *time.Location) string {
	if r.DueAt == nil {
		return "-"
	}
	return r.DueAt.In(loc).Format("2006-01-02 15:04")
}

func renderReminders(w io.Writer, loc *time.Location, now time.Time, rs []model.Reminder) error {
	if len(rs) == 0 {
		_, err := fmt.Fprintln(w, "No reminders.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, tabPadding, ' ', 0)
	fmt.Fprintln(tw, "Due\tTitle\tPriority\tStatus\tID")
	for _, r := range rs {
		status := "pending"
		switch {
		case r.IsCompleted:
			status = "done"
		case r.IsOverdue(now):
			status = "overdue"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", formatDue(r, loc), r.Title, r.Priority, status, r.ID)
	}
	return tw.Flush()
}

func renderReminderSummary(w io.Writer, s model.ReminderSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, tabPadding, ' ', 0)
	fmt.Fprintf(tw, "Total\t%d\n", s.Total)
	fmt.Fprintf(tw, "Pending\t%d\n", s.Pending)
	fmt.Fprintf(tw, "Completed\t%d\n", s.Completed)
	fmt.Fprintf(tw, "Completed in period\t%d\n", s.CompletedInPeriod)
	fmt.Fprintf(tw, "Overdue\t%d\n", s.Overdue)
	fmt.Fprintf(tw, "Due today\t%d\n", s.DueToday)
	for _, p := range model.Priorities {
		fmt.Fprintf(tw, "Priority %s\t%d\n", p, s.ByPriority[p])
	}
	return tw.Flush()
}

func renderSession(w io.Writer, sess session.Session) error {
	tw := tabwriter.NewWriter(w, 0, 0, tabPadding, ' ', 0)
	fmt.Fprintf(tw, "User\t%s\n", sess.UserID)
	fmt.Fprintf(tw, "Email\t%s\n", sess.Email)
	if sess.DisplayName != "" {
		fmt.Fprintf(tw, "Name\t%s\n", sess.DisplayName)
	}
	fmt.Fprintf(tw, "Provider\t%s\n", sess.Provider)
	fmt.Fprintf(tw, "Currency\t%s\n", sess.Currency)
	fmt.Fprintf(tw, "Language\t%s\n", sess.Language)
	fmt.Fprintf(tw, "Timezone\t%s\n", sess.Timezone)
	if !sess.ExpiresAt.IsZero() {
		fmt.Fprintf(tw, "Token expires\t%s\n", sess.ExpiresAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
