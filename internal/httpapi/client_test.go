package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/finsync/internal/apierr"
	"github.com/rshade/finsync/internal/logging"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_InvalidBaseURL(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "localhost:8080", "ftp://example.com", "http://"} {
		_, err := New(raw)
		assert.ErrorIs(t, err, ErrInvalidBaseURL, raw)
	}
}

func TestDo_Success(t *testing.T) {
	t.Parallel()

	var got *http.Request
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]int{"count": 3}})
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/", WithAPIKey("anon-key"))
	require.NoError(t, err)

	ctx := logging.ContextWithTraceID(context.Background(), "trace-123")
	var out struct {
		Count int `json:"count"`
	}
	err = c.Do(ctx, "test.Do", Request{
		Method: http.MethodPost,
		Path:   "/rest/v1/things",
		Query:  url.Values{"user_id": {"u1"}},
		Token:  "tok",
		Body:   map[string]string{"name": "x"},
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, 3, out.Count)
	assert.Equal(t, "/rest/v1/things", got.URL.Path)
	assert.Equal(t, "u1", got.URL.Query().Get("user_id"))
	assert.Equal(t, "Bearer tok", got.Header.Get("Authorization"))
	assert.Equal(t, "anon-key", got.Header.Get(HeaderAPIKey))
	assert.Equal(t, "trace-123", got.Header.Get(HeaderRequestID))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "x", gotBody["name"])
}

func TestDo_GeneratesRequestID(t *testing.T) {
	t.Parallel()

	var id string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = r.Header.Get(HeaderRequestID)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	require.NoError(t, err)
	require.NoError(t, c.Do(context.Background(), "op", Request{Path: "/health"}, nil))
	assert.Len(t, id, 36)
}

func TestDo_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   any
		want   apierr.Kind
	}{
		{"envelope code wins", http.StatusBadRequest,
			map[string]any{"success": false, "error": map[string]string{"code": "invalid_credentials", "message": "bad"}},
			apierr.KindInvalidCredentials},
		{"401", http.StatusUnauthorized, map[string]any{"success": false}, apierr.KindUnauthenticated},
		{"404", http.StatusNotFound, map[string]any{"success": false}, apierr.KindNotFound},
		{"422", http.StatusUnprocessableEntity,
			map[string]any{"success": false, "error": map[string]string{"code": "weird", "message": "amount"}},
			apierr.KindValidation},
		{"400", http.StatusBadRequest, "not an envelope", apierr.KindValidation},
		{"503", http.StatusServiceUnavailable, nil, apierr.KindNetwork},
		{"500", http.StatusInternalServerError, nil, apierr.KindInternal},
		{"200 with success false", http.StatusOK,
			map[string]any{"success": false, "error": map[string]string{"code": "not_found"}},
			apierr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tt.status, tt.body)
			}))
			t.Cleanup(srv.Close)

			c, err := New(srv.URL)
			require.NoError(t, err)
			err = c.Do(context.Background(), "op", Request{Path: "/x"}, nil)
			require.Error(t, err)
			assert.Equal(t, tt.want, apierr.KindOf(err))
		})
	}
}

func TestDo_MalformedData(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":"oops"}`))
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	require.NoError(t, err)
	var out []int
	err = c.Do(context.Background(), "op", Request{Path: "/x"}, &out)
	assert.ErrorIs(t, err, apierr.ErrInternal)
}

func TestDo_Timeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c, err := New(srv.URL, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	err = c.Do(context.Background(), "op", Request{Path: "/slow"}, nil)
	assert.ErrorIs(t, err, apierr.ErrTimeout)
}

func TestDo_NetworkError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(base)
	require.NoError(t, err)
	err = c.Do(context.Background(), "op", Request{Path: "/x"}, nil)
	assert.ErrorIs(t, err, apierr.ErrNetwork)
	assert.True(t, apierr.IsTransient(err))
}
