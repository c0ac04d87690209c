package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rshade/finsync/internal/apierr"
	"github.com/rshade/finsync/internal/app"
	"github.com/rshade/finsync/internal/session"
)

func newLoginCmd() *cobra.Command {
	var (
		email    string
		provider string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password or an OAuth provider",
		Long: `Signs in and stores the session locally so later commands reuse it.

Without --provider the password is read from the terminal without echo, or
from stdin when it is not a terminal. With --provider the provider's sign-in
page is opened and the redirect is received on the configured loopback URL.`,
		Example: `  # Email and password
  finsync login --email ana@example.com

  # Google, as configured under auth.providers
  finsync login --provider google`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return runLogin(ctx, cmd, a, email, provider)
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email (prompted when empty)")
	cmd.Flags().StringVar(&provider, "provider", "", "OAuth provider name from auth.providers")

	return cmd
}

func runLogin(ctx context.Context, cmd *cobra.Command, a *app.App, email, provider string) error {
	var (
		sess session.Session
		err  error
	)
	if provider != "" {
		sess, err = a.Sessions.SignInWithOAuth(ctx, provider)
		if apierr.IsCancelled(err) {
			cmd.PrintErrln("Sign-in cancelled.")
			return nil
		}
	} else {
		p := newPrompter(cmd)
		if strings.TrimSpace(email) == "" {
			if email, err = p.Line("Email"); err != nil {
				return err
			}
		}
		var password string
		if password, err = p.Password(); err != nil {
			return err
		}
		sess, err = a.Sessions.SignInWithPassword(ctx, email, password)
	}
	if err != nil {
		return err
	}

	name := sess.DisplayName
	if name == "" {
		name = sess.Email
	}
	cmd.Printf("Signed in as %s\n", name)
	return nil
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if _, ok := a.Sessions.Current(); !ok {
					cmd.Println("Not signed in.")
					return nil
				}
				err := a.Sessions.SignOut(ctx)
				cmd.Println("Signed out.")
				if err != nil {
					cmd.PrintErrf("Warning: the server could not be told: %v\n", err)
				}
				return nil
			})
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and their settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			return withApp(cmd, func(_ context.Context, a *app.App) error {
				sess, err := currentSession(a)
				if err != nil {
					return err
				}
				if output == outputJSON {
					return writeJSON(cmd.OutOrStdout(), sess)
				}
				return renderSession(cmd.OutOrStdout(), sess)
			})
		},
	}

	cmd.Flags().StringVar(&output, "output", outputTable, "Output format: table or json")

	return cmd
}

func newSettingsCmd() *cobra.Command {
	var (
		displayName string
		currency    string
		language    string
		timezone    string
	)

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change display name, currency, language and time zone",
		Example: `  # Show current settings
  finsync settings

  # Switch to Brazilian reais and Sao Paulo time
  finsync settings --currency BRL --language pt-BR --timezone America/Sao_Paulo`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var upd session.ProfileUpdate
			if cmd.Flags().Changed("display-name") {
				upd.DisplayName = &displayName
			}
			if cmd.Flags().Changed("currency") {
				upd.Currency = &currency
			}
			if cmd.Flags().Changed("language") {
				upd.Language = &language
			}
			if cmd.Flags().Changed("timezone") {
				upd.Timezone = &timezone
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				sess, err := currentSession(a)
				if err != nil {
					return err
				}
				if !upd.IsEmpty() {
					if sess, err = a.Sessions.UpdateProfile(ctx, upd); err != nil {
						return err
					}
				}
				return renderSession(cmd.OutOrStdout(), sess)
			})
		},
	}

	cmd.Flags().StringVar(&displayName, "display-name", "", "display name")
	cmd.Flags().StringVar(&currency, "currency", "", "ISO 4217 currency code, e.g. USD")
	cmd.Flags().StringVar(&language, "language", "", "BCP 47 language tag, e.g. en-US")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA time zone, e.g. America/New_York")

	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the backend version and the local session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				compat, err := a.Gateway.CheckCompatibility(ctx)
				if err != nil {
					cmd.Printf("Backend: %s unreachable (%v)\n", a.API.BaseURL(), err)
				} else {
					verdict := "supported"
					if !compat.Compatible {
						verdict = "unsupported, expected " + compat.Constraint
					}
					cmd.Printf("Backend: %s version %s (%s)\n", a.API.BaseURL(), compat.Version, verdict)
				}
				if sess, ok := a.Sessions.Current(); ok {
					cmd.Printf("Session: signed in as %s\n", sess.Email)
				} else {
					cmd.Println("Session: signed out")
				}
				return nil
			})
		},
	}
}
