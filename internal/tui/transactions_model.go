package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/rshade/finsync/internal/cli/pagination"
	"github.com/rshade/finsync/internal/model"
	listview "github.com/rshade/finsync/internal/tui/list"
)

// Table column widths for transactions.
const (
	txColWidthDate        = 10
	txColWidthDescription = 32
	txColWidthCategory    = 16
	txColWidthAmount      = 14

	// txSummaryHeight is the height reserved for the summary and help lines.
	txSummaryHeight = 8
)

// txSort is one entry of the sort cycle.
type txSort struct {
	label string
	field string
	order string
}

//nolint:gochecknoglobals // Read-only sort cycle.
var txSorts = []txSort{
	{"newest first", "date", pagination.SortOrderDesc},
	{"largest first", "amount", pagination.SortOrderDesc},
	{"category", "category", pagination.SortOrderAsc},
	{"description", "description", pagination.SortOrderAsc},
}

// TransactionFetcher loads the transactions to browse. refresh bypasses any cache.
type TransactionFetcher func(ctx context.Context, refresh bool) (model.TransactionList, error)

// AmountFormatter renders an amount in the user's currency.
type AmountFormatter func(decimal.Decimal) string

type transactionsLoadedMsg struct {
	list model.TransactionList
	err  error
}

// TransactionsViewModel is the Bubble Tea model behind tx browse.
type TransactionsViewModel struct {
	ctx    context.Context
	fetch  TransactionFetcher
	format AmountFormatter
	sorter *pagination.Sorter[model.Transaction]

	state ViewState
	all   []model.Transaction
	shown []model.Transaction

	list       *listview.Model[model.Transaction]
	textInput  textinput.Model
	showFilter bool
	sortIdx    int

	width   int
	height  int
	loading *LoadingState
	err     error
}

// NewTransactionsViewModel creates a model that loads its data on Init.
func NewTransactionsViewModel(
	ctx context.Context, fetch TransactionFetcher, format AmountFormatter,
) *TransactionsViewModel {
	ti := textinput.New()
	ti.Placeholder = "Filter transactions..."
	ti.CharLimit = filterInputCharLimit
	ti.Width = filterInputWidth

	return &TransactionsViewModel{
		ctx:       ctx,
		fetch:     fetch,
		format:    format,
		sorter:    pagination.TransactionSorter(),
		state:     ViewStateLoading,
		textInput: ti,
		width:     defaultWidth,
		height:    defaultHeight,
		loading:   NewLoadingState(),
	}
}

// Err returns the load error that ended the program, if any.
func (m *TransactionsViewModel) Err() error {
	return m.err
}

// Init starts the first load.
func (m *TransactionsViewModel) Init() tea.Cmd {
	return tea.Batch(m.loading.Init(), m.load(false))
}

func (m *TransactionsViewModel) load(refresh bool) tea.Cmd {
	return func() tea.Msg {
		list, err := m.fetch(m.ctx, refresh)
		return transactionsLoadedMsg{list: list, err: err}
	}
}

// Update handles messages and updates the model state.
func (m *TransactionsViewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if winMsg, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = winMsg.Width
		m.height = winMsg.Height
		m.rebuildList()
		return m, nil
	}

	if loaded, ok := msg.(transactionsLoadedMsg); ok {
		return m.handleLoaded(loaded)
	}

	if m.showFilter {
		return m.handleFilterInput(msg)
	}

	switch m.state {
	case ViewStateLoading:
		return m, m.loading.Update(msg)
	case ViewStateList:
		return m.handleListUpdate(msg)
	case ViewStateDetail:
		return m.handleDetailUpdate(msg)
	case ViewStateError:
		return m.handleErrorUpdate(msg)
	case ViewStateQuitting:
		return m, nil
	}
	return m, nil
}

func (m *TransactionsViewModel) handleLoaded(msg transactionsLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.err = msg.err
		m.state = ViewStateError
		return m, nil
	}
	m.err = nil
	m.all = msg.list.Transactions
	m.state = ViewStateList
	m.applyFilter()
	return m, nil
}

func (m *TransactionsViewModel) handleFilterInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case keyEnter, keyEsc:
			m.showFilter = false
			m.textInput.Blur()
			m.applyFilter()
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *TransactionsViewModel) handleListUpdate(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case keyQuit, keyCtrlC:
			m.state = ViewStateQuitting
			return m, tea.Quit
		case keyEnter:
			if len(m.shown) > 0 {
				m.state = ViewStateDetail
			}
			return m, nil
		case keySlash:
			m.showFilter = true
			return m, m.textInput.Focus()
		case keyS:
			m.sortIdx = (m.sortIdx + 1) % len(txSorts)
			m.applyFilter()
			return m, nil
		case keyR:
			m.state = ViewStateLoading
			return m, tea.Batch(m.loading.Init(), m.load(true))
		case keyEsc:
			if m.textInput.Value() != "" {
				m.textInput.SetValue("")
				m.applyFilter()
			}
			return m, nil
		}
	}

	if m.list != nil {
		_, cmd := m.list.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *TransactionsViewModel) handleDetailUpdate(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case keyQuit, keyCtrlC:
			m.state = ViewStateQuitting
			return m, tea.Quit
		case keyEsc:
			m.state = ViewStateList
			return m, nil
		}
	}
	return m, nil
}

func (m *TransactionsViewModel) handleErrorUpdate(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case keyQuit, keyCtrlC, keyEsc:
			m.state = ViewStateQuitting
			return m, tea.Quit
		case keyR:
			m.state = ViewStateLoading
			return m, tea.Batch(m.loading.Init(), m.load(true))
		}
	}
	return m, nil
}

// applyFilter filters by the text input, sorts, and rebuilds the list.
func (m *TransactionsViewModel) applyFilter() {
	query := strings.ToLower(strings.TrimSpace(m.textInput.Value()))
	filtered := make([]model.Transaction, 0, len(m.all))
	for _, tx := range m.all {
		if query == "" ||
			strings.Contains(strings.ToLower(tx.Description), query) ||
			strings.Contains(strings.ToLower(tx.Category), query) ||
			strings.Contains(strings.ToLower(tx.Merchant), query) {
			filtered = append(filtered, tx)
		}
	}
	s := txSorts[m.sortIdx]
	m.shown = m.sorter.Sort(filtered, s.field, s.order)
	m.rebuildList()
}

func (m *TransactionsViewModel) rebuildList() {
	selected := 0
	if m.list != nil {
		selected = m.list.Selected()
	}
	m.list = listview.New(m.shown, max(m.height-txSummaryHeight, minHeight), m.renderRow)
	m.list.SetSelected(selected)
}

func (m *TransactionsViewModel) signed(tx model.Transaction) string {
	if tx.Type == model.TypeExpense {
		return "-" + m.format(tx.Amount)
	}
	return m.format(tx.Amount)
}

func (m *TransactionsViewModel) renderRow(tx model.Transaction, selected bool) string {
	row := fmt.Sprintf("%-*s  %-*s  %-*s  %*s",
		txColWidthDate, tx.Date.String(),
		txColWidthDescription, truncate(tx.Description, txColWidthDescription),
		txColWidthCategory, truncate(tx.Category, txColWidthCategory),
		txColWidthAmount, m.signed(tx),
	)
	if selected {
		return selectedStyle.Render(row)
	}
	return row
}

// View renders the current view.
func (m *TransactionsViewModel) View() string {
	switch m.state {
	case ViewStateQuitting:
		return ""
	case ViewStateLoading:
		return RenderLoading(m.loading, "Loading transactions...")
	case ViewStateError:
		return fmt.Sprintf("Error: %v\n\n[r] Retry  [q] Quit", m.err)
	case ViewStateDetail:
		if tx, ok := m.list.SelectedItem(); ok {
			return m.renderDetail(tx)
		}
		return ""
	case ViewStateList:
		return m.renderListView()
	}
	return ""
}

func (m *TransactionsViewModel) renderSummary() string {
	income, expenses := decimal.Zero, decimal.Zero
	for _, tx := range m.shown {
		if tx.Type == model.TypeIncome {
			income = income.Add(tx.Amount)
		} else {
			expenses = expenses.Add(tx.Amount)
		}
	}
	lines := []string{
		titleStyle.Render(fmt.Sprintf("TRANSACTIONS (%d)", len(m.shown))),
		fmt.Sprintf("Income: %s   Expenses: %s   Net: %s",
			m.format(income), m.format(expenses), m.format(income.Sub(expenses))),
		mutedStyle.Render("Sorted by " + txSorts[m.sortIdx].label),
	}
	if v := m.textInput.Value(); v != "" && !m.showFilter {
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("Filter: %q", v)))
	}
	return strings.Join(lines, "\n")
}

func (m *TransactionsViewModel) renderListView() string {
	header := headerStyle.Render(fmt.Sprintf("%-*s  %-*s  %-*s  %*s",
		txColWidthDate, "Date",
		txColWidthDescription, "Description",
		txColWidthCategory, "Category",
		txColWidthAmount, "Amount",
	))

	body := m.list.View()
	if len(m.shown) == 0 {
		body = mutedStyle.Render("No transactions match.")
	}

	helpText := "\n[/] Filter  [s] Sort  [r] Refresh  [↑↓/jk] Navigate  [Enter] Details  [q] Quit"
	if m.showFilter {
		return lipgloss.JoinVertical(lipgloss.Left,
			m.renderSummary(), header, body, "\nFilter: "+m.textInput.View(), helpText)
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderSummary(), header, body, helpText)
}

func (m *TransactionsViewModel) renderDetail(tx model.Transaction) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("TRANSACTION DETAIL") + "\n\n")
	fmt.Fprintf(&sb, "ID:          %s\n", tx.ID)
	fmt.Fprintf(&sb, "Date:        %s\n", tx.Date)
	fmt.Fprintf(&sb, "Type:        %s\n", tx.Type)
	fmt.Fprintf(&sb, "Amount:      %s\n", m.signed(tx))
	fmt.Fprintf(&sb, "Description: %s\n", tx.Description)
	fmt.Fprintf(&sb, "Category:    %s\n", tx.Category)
	if tx.Merchant != "" {
		fmt.Fprintf(&sb, "Merchant:    %s\n", tx.Merchant)
	}
	if !tx.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "Created:     %s\n", tx.CreatedAt.Format("2006-01-02 15:04"))
	}
	sb.WriteString("\n[Esc] Back to list  [q] Quit")
	return sb.String()
}
