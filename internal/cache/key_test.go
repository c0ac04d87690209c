package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		key      string
		resource string
	}{
		{"transactions all", TransactionsKey(30, ""), ResourceTransactions},
		{"transactions expense", TransactionsKey(7, "Expense"), ResourceTransactions},
		{"summary", SummaryKey(30), ResourceSummary},
		{"reminders pending", RemindersKey(false, 50), ResourceReminders},
		{"reminders all", RemindersKey(true, 10), ResourceReminders},
		{"reminders due", RemindersDueKey(24), ResourceReminders},
		{"reminder summary", ReminderSummaryKey(7), ResourceReminderSummary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.resource, ResourceOf(tt.key))
		})
	}

	assert.Equal(t, "transactions_30_all", TransactionsKey(30, ""))
	assert.Equal(t, "transactions_7_expense", TransactionsKey(7, "Expense"))
	assert.Equal(t, "summary_30", SummaryKey(30))
	assert.Equal(t, "reminders_pending_50", RemindersKey(false, 50))
	assert.Equal(t, "reminders_all_10", RemindersKey(true, 10))
	assert.Equal(t, "reminders_due_24", RemindersDueKey(24))
	assert.Equal(t, "remindersummary_7", ReminderSummaryKey(7))
	assert.Equal(t, "plain", ResourceOf("plain"))
}

func TestParseTTL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "300", want: 5 * time.Minute},
		{in: "90s", want: 90 * time.Second},
		{in: "1h30m", want: 90 * time.Minute},
		{in: "0", wantErr: true},
		{in: "25h", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTTL(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetTTLFromEnv(t *testing.T) {
	t.Setenv(EnvTTL, "2m")
	assert.Equal(t, 2*time.Minute, GetTTLFromEnv(DefaultTTL))

	t.Setenv(EnvTTL, "garbage")
	assert.Equal(t, DefaultTTL, GetTTLFromEnv(DefaultTTL))

	t.Setenv(EnvTTL, "")
	assert.Equal(t, time.Minute, GetTTLFromEnv(time.Minute))
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "5m", FormatDuration(5*time.Minute))
	assert.Equal(t, "2h", FormatDuration(2*time.Hour))
	assert.Equal(t, "1h30m", FormatDuration(90*time.Minute))
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultConfig().Validate())

	cfg := Config{TTL: time.Minute, ByResource: map[string]time.Duration{ResourceSummary: 10 * time.Minute}}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Minute, cfg.TTLFor(ResourceSummary))
	assert.Equal(t, time.Minute, cfg.TTLFor(ResourceReminders))

	assert.ErrorIs(t, Config{TTL: 0}.Validate(), ErrInvalidTTL)
	assert.ErrorIs(t, Config{TTL: time.Minute, ByResource: map[string]time.Duration{"x": 48 * time.Hour}}.Validate(), ErrInvalidTTL)
	assert.Error(t, Config{TTL: time.Minute, ByResource: map[string]time.Duration{"": time.Minute}}.Validate())
}
