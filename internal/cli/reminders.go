package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rshade/finsync/internal/apierr"
	"github.com/rshade/finsync/internal/app"
	"github.com/rshade/finsync/internal/cli/pagination"
	"github.com/rshade/finsync/internal/model"
	"github.com/rshade/finsync/internal/notify"
)

const defaultReminderLimit = 50

func newRemindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reminders",
		Aliases: []string{"rem"},
		Short:   "List and edit reminders",
	}
	cmd.AddCommand(
		newRemindersListCmd(),
		newRemindersAddCmd(),
		newRemindersUpdateCmd(),
		newRemindersCompleteCmd(),
		newRemindersDeleteCmd(),
		newRemindersDueCmd(),
		newRemindersNotifyCmd(),
		newRemindersSummaryCmd(),
	)
	return cmd
}

// dueLayouts are the local-time formats accepted by --due.
//
//nolint:gochecknoglobals // Read-only table.
var dueLayouts = []string{"2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"}

// parseDue accepts an offset from now ("+2h"), RFC 3339, or a local date and
// optional time interpreted in loc.
func parseDue(s string, now time.Time, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "+"); ok {
		d, err := time.ParseDuration(rest)
		if err != nil {
			return time.Time{}, apierr.Newf(apierr.KindValidation, "cli", "invalid offset %q", s)
		}
		return now.Add(d), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range dueLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apierr.Newf(apierr.KindValidation, "cli",
		"invalid due time %q, want +DURATION, RFC 3339, or YYYY-MM-DD [HH:MM]", s)
}

func newRemindersListCmd() *cobra.Command {
	var (
		all     bool
		limit   int
		refresh bool
		output  string
		sortBy  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reminders by due time, undated last",
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
				res, err := a.Query.Reminders(ctx, all, limit, refresh)
				if err = queryResult(cmd, res, err); err != nil {
					return err
				}
				rows, _, err := pagination.Apply(res.Data.Reminders, pagination.Params{Sort: sortBy},
					pagination.ReminderSorter())
				if err != nil {
					return err
				}
				if output == outputJSON {
					return writeJSON(cmd.OutOrStdout(), model.ReminderList{Reminders: rows, Count: len(rows)})
				}
				writeHeader(cmd.OutOrStdout(), "Reminders", cachedNote(res.FromCache, res.Stale, res.FetchedAt))
				return renderReminders(cmd.OutOrStdout(), sess.Location(), time.Now(), rows)
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include completed reminders")
	cmd.Flags().IntVar(&limit, "limit", defaultReminderLimit, "maximum number of reminders")
	cmd.Flags().StringVar(&sortBy, "sort", "", "sort by due, priority, title or created, e.g. priority:desc")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache")
	cmd.Flags().StringVar(&output, "output", outputTable, "Output format: table or json")

	return cmd
}

// reminderFields holds the flags shared by add and update.
type reminderFields struct {
	title       string
	description string
	due         string
	priority    string
	recurring   bool
	recurrence  string
}

func (f *reminderFields) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "title")
	cmd.Flags().StringVar(&f.description, "description", "", "longer description")
	cmd.Flags().StringVar(&f.due, "due", "", `due time: "+2h", RFC 3339, or "YYYY-MM-DD HH:MM" in your time zone`)
	cmd.Flags().StringVar(&f.priority, "priority", "", "low, medium, high, or urgent")
	cmd.Flags().BoolVar(&f.recurring, "recurring", false, "repeat the reminder")
	cmd.Flags().StringVar(&f.recurrence, "recurrence", "", "recurrence pattern, e.g. monthly")
}

func (f *reminderFields) newReminder(now time.Time, loc *time.Location) (model.NewReminder, error) {
	in := model.NewReminder{
		Title:             f.title,
		Description:       f.description,
		IsRecurring:       f.recurring,
		RecurrencePattern: f.recurrence,
	}
	var err error
	if in.Priority, err = model.ParsePriority(f.priority); err != nil {
		return in, err
	}
	if f.due != "" {
		due, dueErr := parseDue(f.due, now, loc)
		if dueErr != nil {
			return in, dueErr
		}
		in.DueAt = &due
	}
	return in, nil
}

func (f *reminderFields) patch(cmd *cobra.Command, clearDue bool, now time.Time, loc *time.Location) (model.ReminderPatch, error) {
	var p model.ReminderPatch
	changed := cmd.Flags().Changed
	if changed("title") {
		p.Title = &f.title
	}
	if changed("description") {
		p.Description = &f.description
	}
	if changed("due") {
		due, err := parseDue(f.due, now, loc)
		if err != nil {
			return p, err
		}
		p.DueAt = &due
	}
	p.ClearDue = clearDue
	if changed("priority") {
		pr, err := model.ParsePriority(f.priority)
		if err != nil {
			return p, err
		}
		p.Priority = &pr
	}
	if changed("recurring") {
		p.IsRecurring = &f.recurring
	}
	if changed("recurrence") {
		p.RecurrencePattern = &f.recurrence
	}
	return p, nil
}

func newRemindersAddCmd() *cobra.Command {
	var f reminderFields

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a reminder",
		Example: `  finsync reminders add --title "Pay rent" --due "2026-11-01 09:00" --priority high
  finsync reminders add --title "Call the bank" --due +2h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				sess, err := currentSession(a)
				if err != nil {
					return err
				}
				in, err := f.newReminder(time.Now(), sess.Location())
				if err != nil {
					return err
				}
				r, err := a.Mutate.CreateReminder(ctx, in)
				if err != nil {
					return err
				}
				cmd.Printf("Added reminder %q due %s [%s]\n", r.Title, formatDue(r, sess.Location()), r.ID)
				return nil
			})
		},
	}

	f.register(cmd)

	return cmd
}

func newRemindersUpdateCmd() *cobra.Command {
	var (
		f        reminderFields
		clearDue bool
	)

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change fields of a reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				sess, err := currentSession(a)
				if err != nil {
					return err
				}
				patch, err := f.patch(cmd, clearDue, time.Now(), sess.Location())
				if err != nil {
					return err
				}
				r, err := a.Mutate.UpdateReminder(ctx, args[0], patch)
				if err != nil {
					return err
				}
				cmd.Printf("Updated reminder %q due %s [%s]\n", r.Title, formatDue(r, sess.Location()), r.ID)
				return nil
			})
		},
	}

	f.register(cmd)
	cmd.Flags().BoolVar(&clearDue, "clear-due", false, "remove the due time")

	return cmd
}

func newRemindersCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete ID",
		Short: "Mark a reminder as done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				r, err := a.Mutate.CompleteReminder(ctx, args[0])
				if err != nil {
					return err
				}
				cmd.Printf("Completed reminder %q\n", r.Title)
				return nil
			})
		},
	}
}

func newRemindersDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes && isInteractive(cmd) {
				if res := newPrompter(cmd).Confirm("Delete reminder " + args[0] + "?"); !res.Accepted {
					cmd.Println("Aborted.")
					return nil
				}
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Mutate.DeleteReminder(ctx, args[0]); err != nil {
					return err
				}
				cmd.Printf("Deleted reminder %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	return cmd
}

func newRemindersDueCmd() *cobra.Command {
	var (
		hours   int
		refresh bool
		output  string
	)

	cmd := &cobra.Command{
		Use:   "due",
		Short: "List pending reminders due soon",
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
				res, err := a.Query.DueReminders(ctx, hours, refresh)
				if err = queryResult(cmd, res, err); err != nil {
					return err
				}
				if output == outputJSON {
					return writeJSON(cmd.OutOrStdout(), res.Data)
				}
				writeHeader(cmd.OutOrStdout(), fmt.Sprintf("Due in the next %d hours", hours),
					cachedNote(res.FromCache, res.Stale, res.FetchedAt))
				return renderReminders(cmd.OutOrStdout(), sess.Location(), time.Now(), res.Data)
			})
		},
	}

	cmd.Flags().IntVar(&hours, "hours", notify.DefaultHours, "look-ahead window in hours")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache")
	cmd.Flags().StringVar(&output, "output", outputTable, "Output format: table or json")

	return cmd
}

func newRemindersNotifyCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a notification for each reminder coming due",
		Long: `Sends one notification per due reminder. With --watch it keeps running
on notifications.interval_seconds until interrupted, announcing each
reminder once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if _, err := currentSession(a); err != nil {
					return err
				}
				if !watch {
					report, err := a.Notifier.Dispatch(ctx)
					cmd.Printf("%d due, %d sent, %d skipped, %d failed\n",
						report.Due, report.Sent, report.Skipped, report.Failed)
					return err
				}

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				cmd.PrintErrln("Watching for due reminders; press Ctrl+C to stop.")
				if err := a.Notifier.Watch(ctx, a.Config.Notifications.Interval()); err != nil &&
					!errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep running until interrupted")

	return cmd
}

func newRemindersSummaryCmd() *cobra.Command {
	var (
		days    int
		refresh bool
		output  string
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Count reminders by status and priority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if _, err := currentSession(a); err != nil {
					return err
				}
				res, err := a.Query.ReminderSummary(ctx, days, refresh)
				if err = queryResult(cmd, res, err); err != nil {
					return err
				}
				if output == outputJSON {
					return writeJSON(cmd.OutOrStdout(), res.Data)
				}
				writeHeader(cmd.OutOrStdout(), fmt.Sprintf("Reminders, last %d days", days),
					cachedNote(res.FromCache, res.Stale, res.FetchedAt))
				return renderReminderSummary(cmd.OutOrStdout(), res.Data)
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", defaultDays, "completion window in days")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache")
	cmd.Flags().StringVar(&output, "output", outputTable, "Output format: table or json")

	return cmd
}
