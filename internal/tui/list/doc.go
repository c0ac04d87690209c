// Package listview provides a scrolling list component for Bubble Tea views.
// Only the rows inside the viewport are rendered, so long transaction
// histories stay responsive.
package listview
