package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// LoopbackAuthorizer receives the provider redirect on a local HTTP listener
// bound to the redirect URL's host and port.
type LoopbackAuthorizer struct {
	// Open presents the authorization URL, e.g. by launching a browser.
	// When nil the URL is printed to Out.
	Open func(authURL string) error
	Out  io.Writer
}

// Authorize implements Authorizer.
func (a *LoopbackAuthorizer) Authorize(ctx context.Context, authURL, redirectURL string) (Callback, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return Callback{}, fmt.Errorf("parsing redirect URL: %w", err)
	}
	if u.Scheme != "http" || (u.Hostname() != "127.0.0.1" && u.Hostname() != "localhost") {
		return Callback{}, fmt.Errorf("loopback redirect must be http://127.0.0.1 or http://localhost, got %s", redirectURL)
	}

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", u.Host)
	if err != nil {
		return Callback{}, fmt.Errorf("listening for oauth callback: %w", err)
	}

	results := make(chan Callback, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath(u), func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		cb := Callback{
			Code:             q.Get("code"),
			State:            q.Get("state"),
			Error:            q.Get("error"),
			ErrorDescription: q.Get("error_description"),
		}
		select {
		case results <- cb:
		default:
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if cb.Error != "" {
			_, _ = io.WriteString(w, "Sign-in was not completed. You can close this window.\n")
			return
		}
		_, _ = io.WriteString(w, "Signed in. You can close this window.\n")
	})

	const readHeaderTimeout = 10 * time.Second
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := a.present(authURL); err != nil {
		return Callback{}, err
	}

	select {
	case <-ctx.Done():
		return Callback{}, ctx.Err()
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return Callback{}, context.Canceled
		}
		return Callback{}, fmt.Errorf("oauth callback server: %w", err)
	case cb := <-results:
		return cb, nil
	}
}

func (a *LoopbackAuthorizer) present(authURL string) error {
	if a.Open != nil {
		if err := a.Open(authURL); err != nil {
			return fmt.Errorf("opening authorization URL: %w", err)
		}
		return nil
	}
	if a.Out != nil {
		_, _ = fmt.Fprintf(a.Out, "Open this URL in your browser to sign in:\n\n  %s\n\n", authURL)
	}
	return nil
}

func callbackPath(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}
