package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fundingobservatory/observatory/internal/ratelimit"
)

func TestDoRetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	limiter := ratelimit.New("test", ratelimit.Config{Capacity: 5, RefillPerSec: 100})
	c := New("test", limiter, Config{MaxAttempts: 3, BaseBackoff: time.Millisecond})

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	body, status, err := c.Do(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(body), "ok")
	require.Equal(t, 2, calls)
}

func TestDoTerminatesOn4xxWithoutRetry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	limiter := ratelimit.New("test", ratelimit.Config{Capacity: 5, RefillPerSec: 100})
	c := New("test", limiter, Config{MaxAttempts: 3, BaseBackoff: time.Millisecond})

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, status, err := c.Do(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, 1, calls)
}
