// Package pagination provides the paging and sorting flags shared by the list
// commands, plus sorters for transactions and reminders.
package pagination
