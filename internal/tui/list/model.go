package listview

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// RenderFunc renders one row. selected is true for the cursor row.
type RenderFunc[T any] func(item T, selected bool) string

// Model is a scrolling list that renders only the rows inside its viewport.
type Model[T any] struct {
	items    []T
	render   RenderFunc[T]
	selected int
	offset   int
	height   int
}

// New creates a list showing height rows at a time.
func New[T any](items []T, height int, render RenderFunc[T]) *Model[T] {
	m := &Model[T]{items: items, render: render, height: max(height, 1)}
	m.scroll()
	return m
}

// Init implements tea.Model.
func (m *Model[T]) Init() tea.Cmd { return nil }

// Update moves the cursor on navigation keys.
func (m *Model[T]) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok || len(m.items) == 0 {
		return m, nil
	}

	switch key.String() {
	case "up", "k":
		m.selected--
	case "down", "j":
		m.selected++
	case "pgup":
		m.selected -= m.height
	case "pgdown":
		m.selected += m.height
	case "home", "g":
		m.selected = 0
	case "end", "G":
		m.selected = len(m.items) - 1
	default:
		return m, nil
	}
	m.SetSelected(m.selected)
	return m, nil
}

// scroll keeps the cursor inside the viewport.
func (m *Model[T]) scroll() {
	if m.selected < m.offset {
		m.offset = m.selected
	}
	if m.selected >= m.offset+m.height {
		m.offset = m.selected - m.height + 1
	}
	if maxOffset := len(m.items) - m.height; m.offset > maxOffset {
		m.offset = max(maxOffset, 0)
	}
}

// View renders the rows in the viewport.
func (m *Model[T]) View() string {
	var sb strings.Builder
	end := min(m.offset+m.height, len(m.items))
	for i := m.offset; i < end; i++ {
		if i > m.offset {
			sb.WriteByte('\n')
		}
		sb.WriteString(m.render(m.items[i], i == m.selected))
	}
	return sb.String()
}

// Len returns the number of items.
func (m *Model[T]) Len() int {
	return len(m.items)
}

// Selected returns the cursor index.
func (m *Model[T]) Selected() int {
	return m.selected
}

// SetSelected moves the cursor, clamped to the list.
func (m *Model[T]) SetSelected(index int) {
	m.selected = min(max(index, 0), max(len(m.items)-1, 0))
	m.scroll()
}

// SelectedItem returns the item under the cursor, or false for an empty list.
func (m *Model[T]) SelectedItem() (T, bool) {
	var zero T
	if len(m.items) == 0 {
		return zero, false
	}
	return m.items[m.selected], true
}

// Window returns the visible index range [from, to).
//
//nolint:nonamedreturns // Named returns improve readability for this multi-value function.
func (m *Model[T]) Window() (from, to int) {
	return m.offset, min(m.offset+m.height, len(m.items))
}
