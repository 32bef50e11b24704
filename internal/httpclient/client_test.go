package httpclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/memberhub/roster-sync/internal/httpclient"
)

// newTestServer disables keep-alives so closing one server does not
// disturb parallel tests sharing the default transport.
func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func TestDefaultClient_Get(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer tenant-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "roster-sync/"))
		_, _ = w.Write([]byte(`{"quantidade_paginas": 2}`))
	}))
	defer server.Close()

	client := httpclient.NewDefaultClient()
	body, err := client.Get(context.Background(), server.URL, httpclient.WithBearer("tenant-token"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"quantidade_paginas": 2}`, string(body))
}

func TestDefaultClient_PostJSON(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer oauth-token", r.Header.Get("Authorization"))

		var payload map[string]int
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, 500, payload["quantidade_por_pagina"])
		_, _ = w.Write([]byte(`{"total_associados": 0, "associados": []}`))
	}))
	defer server.Close()

	client := httpclient.NewDefaultClient(httpclient.WithUserAgent("test-agent"))
	body, err := client.PostJSON(context.Background(), server.URL,
		map[string]int{"quantidade_por_pagina": 500},
		httpclient.WithToken(&oauth2.Token{AccessToken: "oauth-token"}),
	)
	require.NoError(t, err)
	assert.Contains(t, string(body), "total_associados")
}

func TestDefaultClient_NonSuccessStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		body          string
		wantRetryable bool
		wantMessage   string
	}{
		{name: "unauthorized with remote message", status: http.StatusUnauthorized, body: `{"mensagem":"Token inválido"}`, wantMessage: "Token inválido"},
		{name: "not found", status: http.StatusNotFound, body: "missing"},
		{name: "too many requests", status: http.StatusTooManyRequests, wantRetryable: true},
		{name: "bad gateway", status: http.StatusBadGateway, body: `{"error":{"message":"upstream down"}}`, wantRetryable: true, wantMessage: "upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, err := httpclient.NewDefaultClient().Get(context.Background(), server.URL)
			require.Error(t, err)

			var httpErr *httpclient.HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tt.status, httpErr.StatusCode)
			assert.Equal(t, tt.status, httpclient.StatusCode(err))
			assert.Equal(t, tt.wantMessage, httpErr.RemoteMessage())
			assert.Equal(t, tt.wantRetryable, httpclient.IsRetryable(err))
			if tt.wantMessage != "" {
				assert.Contains(t, err.Error(), tt.wantMessage)
			}
		})
	}
}

func TestDefaultClient_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := httpclient.NewDefaultClient(httpclient.WithTimeout(50 * time.Millisecond))
	_, err := client.Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, httpclient.IsRetryable(err), "timeouts are retryable: %v", err)
}

func TestDefaultClient_ConnectionRefused(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := httpclient.NewDefaultClient().Get(context.Background(), url)
	require.Error(t, err)
	assert.True(t, httpclient.IsRetryable(err))
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.False(t, httpclient.IsRetryable(nil))
	assert.False(t, httpclient.IsRetryable(context.Canceled))
	assert.True(t, httpclient.IsRetryable(context.DeadlineExceeded))
	assert.False(t, httpclient.IsRetryable(errors.New("invalid character 'x'")))
	assert.False(t, httpclient.IsRetryable(httpclient.ErrResponseTooLarge))
}

func TestRemoteMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", httpclient.RemoteMessage(nil))
	assert.Equal(t, "", httpclient.RemoteMessage([]byte("<html>oops</html>")))
	assert.Equal(t, "", httpclient.RemoteMessage([]byte(`{"code": 12}`)))
	assert.Equal(t, "sem permissão", httpclient.RemoteMessage([]byte(`{"mensagem":"sem permissão","message":"other"}`)))
	assert.Equal(t, "bad", httpclient.RemoteMessage([]byte(`{"error":"bad"}`)))
}
