// Package tui contains the Bubble Tea views behind the interactive commands.
package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ViewState is the screen a view is showing.
type ViewState int

const (
	// ViewStateLoading waits for data.
	ViewStateLoading ViewState = iota
	// ViewStateList shows the rows.
	ViewStateList
	// ViewStateDetail shows one row.
	ViewStateDetail
	// ViewStateError shows a failed load.
	ViewStateError
	// ViewStateQuitting renders nothing while the program exits.
	ViewStateQuitting
)

const (
	keyQuit  = "q"
	keyCtrlC = "ctrl+c"
	keyEnter = "enter"
	keyEsc   = "esc"
	keySlash = "/"
	keyS     = "s"
	keyR     = "r"
)

const (
	defaultWidth         = 100
	defaultHeight        = 24
	minHeight            = 3
	filterInputCharLimit = 64
	filterInputWidth     = 40
)

// LoadingState wraps the spinner shown while data loads.
type LoadingState struct {
	spinner spinner.Model
}

// NewLoadingState creates a dot spinner.
func NewLoadingState() *LoadingState {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return &LoadingState{spinner: s}
}

// Init starts the spinner.
func (l *LoadingState) Init() tea.Cmd {
	return l.spinner.Tick
}

// Update advances the spinner.
func (l *LoadingState) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	l.spinner, cmd = l.spinner.Update(msg)
	return cmd
}

// RenderLoading renders the spinner with a label.
func RenderLoading(l *LoadingState, label string) string {
	return l.spinner.View() + " " + label
}

var (
	//nolint:gochecknoglobals // Shared lipgloss styles.
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	//nolint:gochecknoglobals // Shared lipgloss styles.
	headerStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")).
			BorderBottom(true).
			Bold(true)
	//nolint:gochecknoglobals // Shared lipgloss styles.
	titleStyle = lipgloss.NewStyle().Bold(true)
	//nolint:gochecknoglobals // Shared lipgloss styles.
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// truncate shortens s to width runes, marking the cut with "...".
func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}
