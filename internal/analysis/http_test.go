package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/zeroecho/internal/errs"
)

func TestHTTPBackend_Call(t *testing.T) {
	var got batchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [{"article_id": "a1", "impact_events": [{"value": 2}]}]}`))
	}))
	defer server.Close()

	backend := NewHTTPBackend(server.URL, "secret", time.Second)
	items, err := backend.Call(context.Background(), []Request{{ID: "a1", Title: "T", Text: "body"}})
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.Len(t, got.Articles, 1)
	assert.Equal(t, "a1", got.Articles[0].ID)
	assert.Equal(t, "body", got.Articles[0].Text)
	assert.Equal(t, "http", backend.Name())
}

func TestHTTPBackend_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   errs.Kind
	}{
		{http.StatusTooManyRequests, errs.NetworkTransient},
		{http.StatusBadGateway, errs.NetworkTransient},
		{http.StatusServiceUnavailable, errs.NetworkTransient},
		{http.StatusUnauthorized, errs.PolicyBlocked},
		{http.StatusBadRequest, errs.PolicyBlocked},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			_, err := NewHTTPBackend(server.URL, "", time.Second).Call(context.Background(), []Request{{ID: "a"}})
			require.Error(t, err)
			assert.Equal(t, tt.want, errs.KindOf(err))
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestHTTPBackend_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer server.Close()

	_, err := NewHTTPBackend(server.URL, "", time.Second).Call(context.Background(), []Request{{ID: "a"}})
	require.Error(t, err)
	assert.Equal(t, errs.NetworkTransient, errs.KindOf(err))
	assert.True(t, errs.Retryable(err))
}

func TestHTTPBackend_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewHTTPBackend(url, "", time.Second).Call(context.Background(), []Request{{ID: "a"}})
	require.Error(t, err)
	assert.Equal(t, errs.NetworkTransient, errs.KindOf(err))
}
