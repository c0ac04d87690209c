package gateway_test

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/finsync/internal/apierr"
	"github.com/rshade/finsync/internal/auth"
	"github.com/rshade/finsync/internal/gateway"
	"github.com/rshade/finsync/internal/gateway/gatewaytest"
	"github.com/rshade/finsync/internal/httpapi"
	"github.com/rshade/finsync/internal/model"
	"github.com/rshade/finsync/internal/session"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// staticCreds hands out one session and counts the calls.
type staticCreds struct {
	sess  session.Session
	err   error
	calls atomic.Int32
}

func (c *staticCreds) Credentials(context.Context) (session.Session, error) {
	c.calls.Add(1)
	return c.sess, c.err
}

//nolint:gochecknoglobals // Shared test clock.
var testNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

type harness struct {
	srv    *gatewaytest.Server
	gw     *gateway.Gateway
	creds  *staticCreds
	userID string
}

func newHarness(t *testing.T, opts ...gateway.Option) *harness {
	t.Helper()
	srv := gatewaytest.New(t, gatewaytest.WithNow(func() time.Time { return testNow }))
	userID := srv.AddUser("ana@example.com", "secret", "Ana")

	api, err := httpapi.New(srv.URL)
	require.NoError(t, err)
	tokens, err := auth.New(api).SignInWithPassword(context.Background(), "ana@example.com", "secret")
	require.NoError(t, err)

	creds := &staticCreds{sess: session.Session{
		UserID:      userID,
		Email:       "ana@example.com",
		Timezone:    "UTC",
		AccessToken: tokens.AccessToken,
		ExpiresAt:   tokens.ExpiresAt,
	}}
	opts = append([]gateway.Option{gateway.WithClock(fixedClock{now: testNow})}, opts...)
	return &harness{srv: srv, gw: gateway.New(api, creds, opts...), creds: creds, userID: userID}
}

func day(offset int) civil.Date {
	return civil.DateOf(testNow).AddDays(offset)
}

func (h *harness) seedTx(t model.TransactionType, amount string, date civil.Date, desc string) model.Transaction {
	return h.srv.SeedTransaction(model.Transaction{
		UserID:      h.userID,
		Amount:      decimal.RequireFromString(amount),
		Description: desc,
		Category:    gateway.Categorize(t, desc),
		Type:        t,
		Date:        date,
	})
}

var (
	routeListTx  = gatewaytest.Route(http.MethodGet, gateway.PathTransactions)
	routeCreate  = gatewaytest.Route(http.MethodPost, gateway.PathTransactions)
	routeGetTx   = gatewaytest.Route(http.MethodGet, gateway.PathTransactions+"/{id}")
	routeListRem = gatewaytest.Route(http.MethodGet, gateway.PathReminders)
)

func TestFetchTransactions(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.seedTx(model.TypeExpense, "12.50", day(0), "lunch")
	h.seedTx(model.TypeIncome, "3000", day(-3), "salary")
	h.seedTx(model.TypeExpense, "40", day(-7), "uber")
	h.seedTx(model.TypeExpense, "99", day(-8), "too old")
	h.srv.SeedTransaction(model.Transaction{
		UserID: "someone-else", Amount: decimal.NewFromInt(1), Type: model.TypeExpense, Date: day(0),
	})

	list, err := h.gw.FetchTransactions(context.Background(), 7, "")
	require.NoError(t, err)
	require.Equal(t, 3, list.Count)
	assert.Len(t, list.Transactions, 3)
	assert.Equal(t, "lunch", list.Transactions[0].Description)
	assert.Equal(t, "uber", list.Transactions[2].Description)

	expenses, err := h.gw.FetchTransactions(context.Background(), 7, model.TypeExpense)
	require.NoError(t, err)
	assert.Equal(t, 2, expenses.Count)
	for _, tx := range expenses.Transactions {
		assert.Equal(t, model.TypeExpense, tx.Type)
	}
}

func TestFetchTransactions_Empty(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	list, err := h.gw.FetchTransactions(context.Background(), 30, "")
	require.NoError(t, err)
	assert.Equal(t, 0, list.Count)
	assert.NotNil(t, list.Transactions)
}

func TestValidationBeforeNetwork(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	calls := []struct {
		name string
		fn   func() error
	}{
		{"zero days", func() error { _, err := h.gw.FetchTransactions(ctx, 0, ""); return err }},
		{"bad type", func() error { _, err := h.gw.FetchTransactions(ctx, 7, "transfer"); return err }},
		{"summary days", func() error { _, err := h.gw.FetchTransactionSummary(ctx, -1); return err }},
		{"reminder limit", func() error { _, err := h.gw.FetchReminders(ctx, false, 0); return err }},
		{"due hours", func() error { _, err := h.gw.ListRemindersDueWithin(ctx, 0); return err }},
		{"zero amount", func() error {
			_, err := h.gw.CreateTransaction(ctx, model.NewTransaction{
				Amount: decimal.Zero, Description: "x", Type: model.TypeExpense,
			})
			return err
		}},
		{"blank description", func() error {
			_, err := h.gw.CreateTransaction(ctx, model.NewTransaction{
				Amount: decimal.NewFromInt(1), Description: "   ", Type: model.TypeExpense,
			})
			return err
		}},
		{"blank title", func() error { _, err := h.gw.CreateReminder(ctx, model.NewReminder{Title: " "}); return err }},
		{"empty patch", func() error { _, err := h.gw.UpdateTransaction(ctx, "id", model.TransactionPatch{}); return err }},
		{"missing id", func() error { return h.gw.DeleteReminder(ctx, "") }},
	}
	for _, c := range calls {
		assert.ErrorIs(t, c.fn(), apierr.ErrValidation, c.name)
	}
	assert.Zero(t, h.srv.Calls(routeListTx))
	assert.Zero(t, h.srv.Calls(routeCreate))
	assert.Zero(t, h.srv.Calls(routeListRem))
}

func TestUnauthenticated_NoRequest(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.creds.sess = session.Session{}
	_, err := h.gw.FetchTransactions(context.Background(), 7, "")
	require.ErrorIs(t, err, apierr.ErrUnauthenticated)

	h.creds.err = errors.New("keychain locked")
	_, err = h.gw.FetchReminders(context.Background(), false, 10)
	require.ErrorIs(t, err, apierr.ErrUnauthenticated)

	h.creds.err = apierr.New(apierr.KindNetwork, "session.Credentials", "refresh failed")
	_, err = h.gw.FetchReminders(context.Background(), false, 10)
	require.ErrorIs(t, err, apierr.ErrNetwork)

	assert.Zero(t, h.srv.Calls(routeListTx))
	assert.Zero(t, h.srv.Calls(routeListRem))
}

func TestBackendErrorsClassified(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		code   string
		want   error
	}{
		{http.StatusUnauthorized, "", apierr.ErrUnauthenticated},
		{http.StatusServiceUnavailable, "", apierr.ErrNetwork},
		{http.StatusGatewayTimeout, "", apierr.ErrTimeout},
		{http.StatusInternalServerError, "", apierr.ErrInternal},
		{http.StatusBadRequest, "not_found", apierr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			h.srv.FailNext(routeListTx, tt.status, tt.code)
			_, err := h.gw.FetchTransactions(context.Background(), 7, "")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFetchTransactionSummary_MatchesList(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.seedTx(model.TypeIncome, "3000", day(-1), "salary")
	h.seedTx(model.TypeExpense, "45.90", day(-2), "grocery run")
	h.seedTx(model.TypeExpense, "22.10", day(-2), "uber home")
	h.seedTx(model.TypeExpense, "500", day(-40), "rent last quarter")

	list, err := h.gw.FetchTransactions(context.Background(), 30, "")
	require.NoError(t, err)
	sum, err := h.gw.FetchTransactionSummary(context.Background(), 30)
	require.NoError(t, err)

	assert.Equal(t, list.Count, sum.TransactionCount)
	assert.Equal(t, 2, sum.ExpenseCount)
	assert.Equal(t, "68", sum.TotalExpenses.String())
	assert.Equal(t, "2932", sum.NetAmount.String())
	assert.Equal(t, "34", sum.AverageExpense.String())
	assert.Equal(t, 2, h.srv.Calls(routeListTx))
}

func TestCreateTransaction(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	tx, err := h.gw.CreateTransaction(context.Background(), model.NewTransaction{
		Amount:      decimal.RequireFromString("23.40"),
		Description: "Uber to airport",
		Type:        model.TypeExpense,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, h.userID, tx.UserID)
	assert.Equal(t, "Transportation", tx.Category)
	assert.Equal(t, day(0), tx.Date)

	other, err := h.gw.CreateTransaction(context.Background(), model.NewTransaction{
		Amount:      decimal.NewFromInt(5),
		Description: "xyz123",
		Type:        model.TypeExpense,
		Date:        day(-2),
	})
	require.NoError(t, err)
	assert.Equal(t, gateway.CategoryOther, other.Category)
	assert.Equal(t, day(-2), other.Date)

	explicit, err := h.gw.CreateTransaction(context.Background(), model.NewTransaction{
		Amount:      decimal.NewFromInt(5),
		Description: "Uber eats",
		Category:    "Food & Dining",
		Type:        model.TypeExpense,
	})
	require.NoError(t, err)
	assert.Equal(t, "Food & Dining", explicit.Category)
}

func TestUpdateTransaction(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	seeded := h.seedTx(model.TypeExpense, "10", day(-1), "uber")

	desc := "pharmacy run"
	updated, err := h.gw.UpdateTransaction(context.Background(), seeded.ID, model.TransactionPatch{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "pharmacy run", updated.Description)
	assert.Equal(t, "Transportation", updated.Category, "explicit patch keeps the old category")

	blank := ""
	recat, err := h.gw.UpdateTransaction(context.Background(), seeded.ID, model.TransactionPatch{Category: &blank})
	require.NoError(t, err)
	assert.Equal(t, "Healthcare", recat.Category)
	assert.Equal(t, 1, h.srv.Calls(routeGetTx))
}

func TestForeignTransactionNotFound(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	foreign := h.srv.SeedTransaction(model.Transaction{
		UserID: "someone-else", Amount: decimal.NewFromInt(1), Type: model.TypeExpense, Date: day(0),
	})

	_, err := h.gw.GetTransaction(context.Background(), foreign.ID)
	require.ErrorIs(t, err, apierr.ErrNotFound)

	err = h.gw.DeleteTransaction(context.Background(), foreign.ID)
	require.ErrorIs(t, err, apierr.ErrNotFound)
	_, still := h.srv.Transaction(foreign.ID)
	assert.True(t, still)

	err = h.gw.DeleteTransaction(context.Background(), "missing")
	require.ErrorIs(t, err, apierr.ErrNotFound)
}

func TestDeleteTransaction(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	seeded := h.seedTx(model.TypeExpense, "10", day(0), "lunch")

	require.NoError(t, h.gw.DeleteTransaction(context.Background(), seeded.ID))
	_, ok := h.srv.Transaction(seeded.ID)
	assert.False(t, ok)
}

func (h *harness) seedReminder(title string, p model.Priority, due *time.Time, completed bool) model.Reminder {
	return h.srv.SeedReminder(model.Reminder{
		UserID:      h.userID,
		Title:       title,
		Priority:    p,
		DueAt:       due,
		IsCompleted: completed,
	})
}

func at(d time.Duration) *time.Time {
	v := testNow.Add(d)
	return &v
}

func TestFetchReminders_Ordering(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.seedReminder("undated urgent", model.PriorityUrgent, nil, false)
	h.seedReminder("tomorrow low", model.PriorityLow, at(24*time.Hour), false)
	h.seedReminder("tomorrow high", model.PriorityHigh, at(24*time.Hour), false)
	h.seedReminder("in an hour", model.PriorityMedium, at(time.Hour), false)
	h.seedReminder("done", model.PriorityHigh, at(-time.Hour), true)

	list, err := h.gw.FetchReminders(context.Background(), false, 10)
	require.NoError(t, err)
	titles := make([]string, 0, list.Count)
	for _, r := range list.Reminders {
		titles = append(titles, r.Title)
	}
	assert.Equal(t, []string{"in an hour", "tomorrow high", "tomorrow low", "undated urgent"}, titles)

	all, err := h.gw.FetchReminders(context.Background(), true, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, all.Count)
	assert.Equal(t, "done", all.Reminders[0].Title)

	limited, err := h.gw.FetchReminders(context.Background(), false, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, limited.Count)
	assert.Equal(t, "in an hour", limited.Reminders[0].Title)
}

func TestListRemindersDueWithin(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.seedReminder("soon", model.PriorityMedium, at(2*time.Hour), false)
	h.seedReminder("later", model.PriorityMedium, at(30*time.Hour), false)
	h.seedReminder("overdue", model.PriorityMedium, at(-time.Hour), false)
	h.seedReminder("undated", model.PriorityMedium, nil, false)
	h.seedReminder("soon but done", model.PriorityMedium, at(time.Hour), true)

	due, err := h.gw.ListRemindersDueWithin(context.Background(), 24)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "soon", due[0].Title)
}

func TestReminderLifecycle(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	r, err := h.gw.CreateReminder(ctx, model.NewReminder{Title: "Pay rent", DueAt: at(48 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, model.PriorityMedium, r.Priority)
	assert.False(t, r.IsCompleted)

	done, err := h.gw.CompleteReminder(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, done.IsCompleted)
	require.NotNil(t, done.CompletedAt)
	assert.True(t, done.CompletedAt.Equal(testNow))

	sum, err := h.gw.FetchReminderSummary(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Total)
	assert.Equal(t, 1, sum.Completed)
	assert.Equal(t, 1, sum.CompletedInPeriod)

	require.NoError(t, h.gw.DeleteReminder(ctx, r.ID))
	_, err = h.gw.CompleteReminder(ctx, r.ID)
	assert.ErrorIs(t, err, apierr.ErrNotFound)
}

func TestCheckCompatibility(t *testing.T) {
	t.Parallel()

	t.Run("supported", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		c, err := h.gw.CheckCompatibility(context.Background())
		require.NoError(t, err)
		assert.True(t, c.Compatible)
		assert.Equal(t, gatewaytest.DefaultVersion, c.Version)
		assert.Equal(t, gateway.DefaultVersionConstraint, c.Constraint)
	})

	t.Run("unsupported lenient", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.srv.SetVersion("2.1.0")
		c, err := h.gw.CheckCompatibility(context.Background())
		require.NoError(t, err)
		assert.False(t, c.Compatible)
	})

	t.Run("unsupported strict", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, gateway.WithVersionConstraint(">=1.5.0", true))
		_, err := h.gw.CheckCompatibility(context.Background())
		assert.ErrorIs(t, err, gateway.ErrIncompatibleBackend)
	})

	t.Run("invalid constraint keeps default", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, gateway.WithVersionConstraint("not a range", false))
		c, err := h.gw.CheckCompatibility(context.Background())
		require.NoError(t, err)
		assert.Equal(t, gateway.DefaultVersionConstraint, c.Constraint)
	})

	t.Run("garbage version", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		h.srv.SetVersion("banana")
		_, err := h.gw.CheckCompatibility(context.Background())
		assert.ErrorIs(t, err, apierr.ErrInternal)
	})
}
