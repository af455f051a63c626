package httputil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smsh73/AAA/pkg/logger"
)

func newTestClient() *Client {
	return New(logger.Nop(), 2*time.Second).WithRetry(3, 10*time.Millisecond)
}

func TestNew_Defaults(t *testing.T) {
	c := New(logger.Nop(), 5*time.Second)
	assert.Equal(t, 5*time.Second, c.httpClient.Timeout)
	assert.Equal(t, 2, c.retryConfig.MaxRetries)
	assert.True(t, c.retryConfig.Enabled)

	c.DisableRetry()
	assert.False(t, c.retryConfig.Enabled)
}

func TestGetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"status":"ok","count":3}`))
	}))
	defer server.Close()

	var out struct {
		Status string `json:"status"`
		Count  int    `json:"count"`
	}
	require.NoError(t, newTestClient().GetJSON(context.Background(), server.URL, &out))
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, 3, out.Count)
}

func TestRetryOn5xx(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`ok`))
	}))
	defer server.Close()

	body, err := newTestClient().GetBody(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestNoRetryOn4xx(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient().GetBody(context.Background(), server.URL)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.False(t, IsTemporary(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestExhaustedRetriesAreTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient().GetBody(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, IsTemporary(err))
}

func TestIsRetryableStatus(t *testing.T) {
	tests := []struct {
		statusCode int
		want       bool
	}{
		{200, false},
		{400, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.statusCode), func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableStatus(tt.statusCode))
		})
	}
}

func TestIsTemporary(t *testing.T) {
	assert.False(t, IsTemporary(nil))
	assert.True(t, IsTemporary(context.DeadlineExceeded))
	assert.True(t, IsTemporary(fmt.Errorf("wrapped: %w", &StatusError{StatusCode: 429})))
	assert.False(t, IsTemporary(errors.New("bad payload")))
}
