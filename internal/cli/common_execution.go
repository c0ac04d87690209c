package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/rshade/finsync/internal/apierr"
	"github.com/rshade/finsync/internal/app"
	"github.com/rshade/finsync/internal/config"
	"github.com/rshade/finsync/internal/logging"
	"github.com/rshade/finsync/internal/session"
)

// appOptions are appended to every app.New call. Tests use it to inject
// collaborators such as a notification sender.
//
//nolint:gochecknoglobals // Test seam for the composition root.
var appOptions []app.Option

// withApp builds the client from the global config, restores the persisted
// session, runs fn, and closes the client.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	log := logging.FromContext(ctx)

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			log.Warn().Ctx(ctx).Err(closeErr).Msg("closing local store")
		}
	}()

	if _, _, err := a.Start(ctx); err != nil {
		log.Debug().Ctx(ctx).Err(err).Msg("session restore failed")
		if a.Config.API.StrictCompatibility {
			return err
		}
	}
	return fn(ctx, a)
}

// newApp builds the client from the global config.
func newApp(cmd *cobra.Command) (*app.App, error) {
	opts := append([]app.Option{
		app.WithLogger(logger),
		app.WithOutput(cmd.ErrOrStderr()),
	}, appOptions...)
	return app.New(config.GetGlobalConfig(), opts...)
}

// currentSession returns the signed-in session or an error telling the
// user to log in.
func currentSession(a *app.App) (session.Session, error) {
	sess, ok := a.Sessions.Current()
	if !ok {
		return session.Session{}, apierr.New(apierr.KindUnauthenticated, "cli", "not signed in; run 'finsync login' first")
	}
	return sess, nil
}
