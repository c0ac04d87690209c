package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/finsync/internal/apierr"
	"github.com/rshade/finsync/internal/app"
	"github.com/rshade/finsync/internal/cache"
	"github.com/rshade/finsync/internal/config"
	"github.com/rshade/finsync/internal/gateway/gatewaytest"
	"github.com/rshade/finsync/internal/notify"
	"github.com/rshade/finsync/internal/session"
)

// setupCLI points the CLI at a fresh home directory and fake backend.
func setupCLI(t *testing.T) (*gatewaytest.Server, string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.EnvHome, home)
	for _, env := range []string{
		config.EnvConfig, config.EnvProjectDir, config.EnvAPIKey,
		config.EnvStorageDriver, config.EnvStrict, config.EnvLogLevel, cache.EnvTTL,
	} {
		t.Setenv(env, "")
	}
	t.Setenv(config.EnvLogLevel, "error")

	srv := gatewaytest.New(t)
	srv.AddUser("ana@example.com", "secret", "Ana")
	t.Setenv(config.EnvAPIURL, srv.URL)
	t.Cleanup(config.ResetGlobalConfigForTest)
	return srv, home
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func login(t *testing.T) {
	t.Helper()
	out, _, err := execute(t, "secret\n", "login", "--email", "ana@example.com")
	require.NoError(t, err)
	require.Contains(t, out, "Signed in as Ana")
}

func TestLogin_PromptsForEmailAndPassword(t *testing.T) {
	setupCLI(t)

	out, stderr, err := execute(t, "ana@example.com\nsecret\n", "login")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Email: ")
	assert.Contains(t, stderr, "Password: ")
	assert.Contains(t, out, "Signed in as Ana")

	out, _, err = execute(t, "", "whoami", "--output", "json")
	require.NoError(t, err)
	var sess session.Session
	require.NoError(t, json.Unmarshal([]byte(out), &sess))
	assert.Equal(t, "ana@example.com", sess.Email)
	assert.NotContains(t, out, "access_token")
}

func TestLogin_BadPassword(t *testing.T) {
	setupCLI(t)

	_, _, err := execute(t, "wrong\n", "login", "--email", "ana@example.com")
	require.ErrorIs(t, err, apierr.ErrInvalidCredentials)
	assert.Equal(t, ExitAuth, ExitCode(err))

	_, _, err = execute(t, "", "login", "--email", "ana@example.com")
	require.Error(t, err)
}

func TestSignedOutCommandsFail(t *testing.T) {
	setupCLI(t)

	for _, args := range [][]string{
		{"whoami"},
		{"tx", "list"},
		{"summary"},
		{"reminders", "list"},
		{"reminders", "due"},
	} {
		_, _, err := execute(t, "", args...)
		require.ErrorIs(t, err, apierr.ErrUnauthenticated, "args %v", args)
	}

	out, _, err := execute(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in.")
}

func TestTransactionCommands(t *testing.T) {
	srv, _ := setupCLI(t)
	login(t)

	out, _, err := execute(t, "", "tx", "add", "--amount", "23.40", "--description", "Uber to airport")
	require.NoError(t, err)
	assert.Contains(t, out, "Added expense")
	assert.Contains(t, out, "23.40")
	assert.Contains(t, out, "(Transportation)")

	_, _, err = execute(t, "", "tx", "add", "--amount", "3200", "--description", "Monthly salary", "--type", "income")
	require.NoError(t, err)

	out, _, err = execute(t, "", "tx", "list", "--output", "json")
	require.NoError(t, err)
	var list struct {
		Transactions []struct {
			ID       string `json:"id"`
			Category string `json:"category"`
		} `json:"transactions"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Equal(t, 2, list.Count)

	out, _, err = execute(t, "", "tx", "list", "--type", "expense")
	require.NoError(t, err)
	assert.Contains(t, out, "Uber to airport")
	assert.NotContains(t, out, "Monthly salary")
	assert.Contains(t, out, "1 transaction(s)")

	out, _, err = execute(t, "", "tx", "list", "--sort", "amount:desc", "--limit", "1", "--output", "json")
	require.NoError(t, err)
	var page struct {
		Transactions []struct {
			Description string `json:"description"`
		} `json:"transactions"`
		Pagination struct {
			TotalItems int  `json:"total_items"`
			HasNext    bool `json:"has_next"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, "Monthly salary", page.Transactions[0].Description)
	assert.Equal(t, 2, page.Pagination.TotalItems)
	assert.True(t, page.Pagination.HasNext)

	_, _, err = execute(t, "", "tx", "list", "--sort", "merchant")
	require.ErrorIs(t, err, apierr.ErrValidation)

	var uberID string
	for _, tx := range list.Transactions {
		if tx.Category == "Transportation" {
			uberID = tx.ID
		}
	}
	require.NotEmpty(t, uberID)

	out, _, err = execute(t, "", "tx", "update", uberID, "--description", "Netflix subscription")
	require.NoError(t, err)
	assert.Contains(t, out, "(Entertainment)")
	stored, ok := srv.Transaction(uberID)
	require.True(t, ok)
	assert.Equal(t, "Entertainment", stored.Category)

	out, _, err = execute(t, "", "summary", "--days", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "Summary, last 7 days")
	assert.Contains(t, out, "Entertainment")

	_, _, err = execute(t, "", "tx", "delete", uberID)
	require.NoError(t, err)
	_, ok = srv.Transaction(uberID)
	assert.False(t, ok)

	_, _, err = execute(t, "", "tx", "delete", uberID)
	require.ErrorIs(t, err, apierr.ErrNotFound)
	assert.Equal(t, ExitNotFound, ExitCode(err))
}

func TestTransactionValidation(t *testing.T) {
	setupCLI(t)
	login(t)

	tests := []struct {
		name string
		args []string
	}{
		{"bad amount", []string{"tx", "add", "--amount", "ten", "--description", "x"}},
		{"zero amount", []string{"tx", "add", "--amount", "0", "--description", "x"}},
		{"missing description", []string{"tx", "add", "--amount", "5"}},
		{"bad type", []string{"tx", "add", "--amount", "5", "--description", "x", "--type", "gift"}},
		{"bad date", []string{"tx", "add", "--amount", "5", "--description", "x", "--date", "03/15/2026"}},
		{"empty update", []string{"tx", "update", "abc"}},
		{"list type", []string{"tx", "list", "--type", "gift"}},
		{"browse without terminal", []string{"tx", "browse"}},
		{"bad page", []string{"tx", "list", "--page", "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, "", tt.args...)
			require.ErrorIs(t, err, apierr.ErrValidation)
			assert.Equal(t, ExitUsage, ExitCode(err))
		})
	}

	_, _, err := execute(t, "", "tx", "list", "--output", "xml")
	require.Error(t, err)
}

type recordingSender struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (r *recordingSender) Send(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func TestReminderCommands(t *testing.T) {
	srv, _ := setupCLI(t)
	sender := &recordingSender{}
	appOptions = []app.Option{app.WithSender(sender)}
	t.Cleanup(func() { appOptions = nil })
	login(t)

	out, _, err := execute(t, "", "reminders", "add", "--title", "Pay rent", "--due", "+2h", "--priority", "high")
	require.NoError(t, err)
	assert.Contains(t, out, `Added reminder "Pay rent"`)

	_, _, err = execute(t, "", "reminders", "add", "--title", "Someday")
	require.NoError(t, err)

	out, _, err = execute(t, "", "reminders", "list", "--output", "json")
	require.NoError(t, err)
	var list struct {
		Reminders []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"reminders"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Reminders, 2)
	assert.Equal(t, "Pay rent", list.Reminders[0].Title, "dated reminders sort first")
	rentID := list.Reminders[0].ID

	out, _, err = execute(t, "", "reminders", "due", "--hours", "24")
	require.NoError(t, err)
	assert.Contains(t, out, "Pay rent")
	assert.NotContains(t, out, "Someday")

	out, _, err = execute(t, "", "reminders", "notify")
	require.NoError(t, err)
	assert.Contains(t, out, "1 due, 1 sent")
	require.Len(t, sender.got, 1)
	assert.Equal(t, rentID, sender.got[0].ReminderID)

	_, _, err = execute(t, "", "reminders", "update", rentID, "--priority", "urgent", "--clear-due")
	require.NoError(t, err)
	stored, ok := srv.Reminder(rentID)
	require.True(t, ok)
	assert.Nil(t, stored.DueAt)

	out, _, err = execute(t, "", "reminders", "complete", rentID)
	require.NoError(t, err)
	assert.Contains(t, out, `Completed reminder "Pay rent"`)

	out, _, err = execute(t, "", "reminders", "summary", "--output", "json")
	require.NoError(t, err)
	var summary struct {
		Total             int `json:"total"`
		Completed         int `json:"completed"`
		CompletedInPeriod int `json:"completed_in_period"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 1, summary.CompletedInPeriod)

	_, _, err = execute(t, "", "reminders", "delete", rentID, "--yes")
	require.NoError(t, err)
	_, ok = srv.Reminder(rentID)
	assert.False(t, ok)

	_, _, err = execute(t, "", "reminders", "add", "--title", "x", "--priority", "whenever")
	require.ErrorIs(t, err, apierr.ErrValidation)
}

func TestSettingsAndLogout(t *testing.T) {
	setupCLI(t)
	login(t)

	out, _, err := execute(t, "", "settings", "--currency", "brl", "--timezone", "America/Sao_Paulo")
	require.NoError(t, err)
	assert.Contains(t, out, "BRL")
	assert.Contains(t, out, "America/Sao_Paulo")

	out, _, err = execute(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "BRL")

	_, _, err = execute(t, "", "settings", "--currency", "XYZ")
	require.ErrorIs(t, err, apierr.ErrValidation)

	out, _, err = execute(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out.")

	_, _, err = execute(t, "", "whoami")
	require.ErrorIs(t, err, apierr.ErrUnauthenticated)

	out, _, err = execute(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "version "+gatewaytest.DefaultVersion)
	assert.Contains(t, out, "Session: signed out")
}

func TestConfigCommands(t *testing.T) {
	_, home := setupCLI(t)
	t.Setenv(config.EnvAPIKey, "super-secret")

	out, _, err := execute(t, "", "config", "init", "--global")
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(home, "config.yaml"))

	_, _, err = execute(t, "", "config", "init", "--global")
	require.ErrorContains(t, err, "already exists")

	out, _, err = execute(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "base_url:")
	assert.Contains(t, out, redacted)
	assert.NotContains(t, out, "super-secret")

	out, _, err = execute(t, "", "config", "validate", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, "Cache TTL: 5m0s")

	out, _, err = execute(t, "", "--cache-ttl", "90", "config", "validate", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "Cache TTL: 1m30s")

	project := t.TempDir()
	out, _, err = execute(t, "", "--project-dir", project, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Created .gitignore")
	assert.FileExists(t, filepath.Join(project, config.ProjectDirName, ".gitignore"))
}

func TestConfigFlag(t *testing.T) {
	setupCLI(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  ttl: 10m\n"), 0o600))

	out, _, err := execute(t, "", "--config", path, "config", "validate", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "Cache TTL: 10m0s")

	_, _, err = execute(t, "", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "config", "show")
	require.Error(t, err)
}

func TestConfigStorage_KeepsSession(t *testing.T) {
	_, home := setupCLI(t)
	login(t)

	out, _, err := execute(t, "", "config", "storage", "--driver", "sqlite")
	require.NoError(t, err)
	assert.Contains(t, out, "Copied 2 of 2 keys")
	assert.FileExists(t, filepath.Join(home, "state.db"))
	assert.FileExists(t, filepath.Join(home, "state.json"))

	out, _, err = execute(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "driver: sqlite")

	out, _, err = execute(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "ana@example.com")

	_, _, err = execute(t, "", "config", "storage", "--driver", "redis")
	require.ErrorIs(t, err, apierr.ErrValidation)

	_, _, err = execute(t, "", "config", "storage", "--driver", "sqlite")
	require.ErrorIs(t, err, apierr.ErrValidation, "already on sqlite at the default path")
}

func TestParseDue(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("BRT", -3*60*60)
	now := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"+2h", now.Add(2 * time.Hour), false},
		{"2026-03-20T10:00:00Z", time.Date(2026, time.March, 20, 10, 0, 0, 0, time.UTC), false},
		{"2026-03-20 09:30", time.Date(2026, time.March, 20, 9, 30, 0, 0, loc), false},
		{"2026-03-20", time.Date(2026, time.March, 20, 0, 0, 0, 0, loc), false},
		{"+soon", time.Time{}, true},
		{"next tuesday", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := parseDue(tt.in, now, loc)
			if tt.wantErr {
				require.ErrorIs(t, err, apierr.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestExitCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{apierr.New(apierr.KindValidation, "op", "bad"), ExitUsage},
		{apierr.New(apierr.KindUnauthenticated, "op", "no"), ExitAuth},
		{apierr.New(apierr.KindTimeout, "op", "slow"), ExitUnavailable},
		{apierr.New(apierr.KindNotFound, "op", "gone"), ExitNotFound},
		{apierr.New(apierr.KindUserCancelled, "op", "bye"), ExitCancelled},
		{assert.AnError, ExitFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(tt.err))
	}
}

func newBufReader(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestPrompter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input string
		want  PromptResult
	}{
		{"y\n", PromptResult{Accepted: true}},
		{"YES\n", PromptResult{Accepted: true}},
		{"n\n", PromptResult{}},
		{"\n", PromptResult{}},
		{"", PromptResult{}},
	}
	for _, tt := range tests {
		var w bytes.Buffer
		p := &prompter{w: &w, r: newBufReader(tt.input)}
		assert.Equal(t, tt.want, p.Confirm("Delete?"), "input %q", tt.input)
		assert.Contains(t, w.String(), "? Delete? [y/N] ")
	}

	p := &prompter{w: &bytes.Buffer{}, r: newBufReader("ana@example.com\r\nsecret\n")}
	email, err := p.Line("Email")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", email)
	password, err := p.Password()
	require.NoError(t, err)
	assert.Equal(t, "secret", password)
	_, err = p.Password()
	require.Error(t, err)
}

func TestTxFieldsPatch_Recategorize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		args         []string
		wantCategory *string
	}{
		{name: "description clears category", args: []string{"--description", "Netflix"}, wantCategory: new(string)},
		{name: "type clears category", args: []string{"--type", "income"}, wantCategory: new(string)},
		{name: "explicit category kept", args: []string{"--description", "Netflix", "--category", "Fun"},
			wantCategory: func() *string { c := "Fun"; return &c }()},
		{name: "amount only leaves category", args: []string{"--amount", "5"}, wantCategory: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var f txFields
			cmd := &cobra.Command{Use: "update"}
			f.register(cmd)
			require.NoError(t, cmd.ParseFlags(tt.args))

			p, err := f.patch(cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCategory, p.Category)
			assert.NoError(t, p.Validate())
		})
	}
}
