// Package httpapi is the JSON-over-HTTP transport shared by the auth client
// and the data gateway. It speaks the backend envelope
//
//	{"success": true, "data": ...}
//	{"success": false, "error": {"code": "not_found", "message": "..."}}
//
// and turns every failure into an *apierr.Error.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rshade/finsync/internal/apierr"
	"github.com/rshade/finsync/internal/logging"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 20 * time.Second

// Header names sent with every request.
const (
	HeaderAPIKey    = "apikey"
	HeaderRequestID = "X-Request-ID"
)

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 8 << 20

// ErrInvalidBaseURL is returned by New for a URL without scheme or host.
var ErrInvalidBaseURL = errors.New("base URL must be absolute http(s)")

// Envelope is the wire wrapper around every response body.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *EnvelopeError  `json:"error,omitempty"`
}

// EnvelopeError is the error member of a failed envelope.
type EnvelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client sends requests to one backend.
type Client struct {
	base    *url.URL
	apiKey  string
	timeout time.Duration
	http    *http.Client
	logger  zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the project key sent in the apikey header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithTimeout sets the per-request timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	c := &Client{
		base:    u,
		timeout: DefaultTimeout,
		http:    &http.Client{},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Request describes one call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Token is sent as a bearer credential when set.
	Token string
	Body  any
}

// Do sends req and decodes the envelope's data into out (which may be nil).
// op names the calling operation in returned errors.
func (c *Client) Do(ctx context.Context, op string, req Request, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, requestID, err := c.newRequest(ctx, req)
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, op, err)
	}

	log := c.logger.With().
		Str("component", "httpapi").
		Str("operation", op).
		Str("method", req.Method).
		Str("path", req.Path).
		Str("request_id", requestID).
		Logger()

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		log.Debug().Err(err).Dur("duration", time.Since(start)).Msg("request failed")
		return transportError(ctx, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return transportError(ctx, op, err)
	}
	log.Debug().Int("status", resp.StatusCode).Dur("duration", time.Since(start)).Msg("request complete")

	var env Envelope
	decodeErr := json.Unmarshal(body, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || (decodeErr == nil && !env.Success) {
		return statusError(op, resp.StatusCode, env.Error)
	}
	if decodeErr != nil {
		return apierr.Wrap(apierr.KindInternal, op, fmt.Errorf("decoding response envelope: %w", decodeErr))
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apierr.Wrap(apierr.KindInternal, op, fmt.Errorf("decoding response data: %w", err))
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, string, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, "", fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, "", fmt.Errorf("building request: %w", err)
	}

	requestID := logging.TraceIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderRequestID, requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set(HeaderAPIKey, c.apiKey)
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	return httpReq, requestID, nil
}

// transportError classifies a failure to get a response at all.
func transportError(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return apierr.Wrap(apierr.KindTimeout, op, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apierr.Wrap(apierr.KindTimeout, op, err)
	}
	return apierr.Wrap(apierr.KindNetwork, op, err)
}

// statusError classifies an error response. A known envelope code wins over
// the HTTP status.
func statusError(op string, status int, envErr *EnvelopeError) error {
	msg := http.StatusText(status)
	if envErr != nil {
		if envErr.Message != "" {
			msg = envErr.Message
		}
		if kind := apierr.FromCode(envErr.Code); kind != apierr.KindInternal {
			return apierr.New(kind, op, msg)
		}
	}
	return apierr.New(KindForStatus(status), op, msg)
}

// KindForStatus maps an HTTP status to an error kind.
func KindForStatus(status int) apierr.Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apierr.KindUnauthenticated
	case status == http.StatusNotFound:
		return apierr.KindNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return apierr.KindValidation
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return apierr.KindTimeout
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		return apierr.KindNetwork
	}
	return apierr.KindInternal
}
