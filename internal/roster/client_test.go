package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/memberhub/roster-sync/internal/config"
	"github.com/memberhub/roster-sync/internal/httpclient"
	"github.com/memberhub/roster-sync/internal/membership"
)

var testTenant = membership.Tenant{ID: "t1", Name: "Tenant One", Status: membership.StatusActive, RemotelySourced: true, RemoteToken: "tok"}

func bearer(token string) *oauth2.Token {
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
}

func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func remoteMembers(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		out[i] = map[string]any{
			"cpf_beneficiario":  fmt.Sprintf("%011d", i+1),
			"nome_beneficiario": "Member " + strconv.Itoa(i+1),
		}
	}
	return out
}

// offsetServer serves total records through the offset model.
func offsetServer(t *testing.T, total int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	all := remoteMembers(total)
	return newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req offsetRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, 1, req.StatusCode)

		start := min(req.Offset, total)
		end := min(start+req.PageSize, total)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"total_associados": total,
			"associados":       all[start:end],
		})
	}))
}

// pageServer serves total records through the page-count model.
func pageServer(t *testing.T, total, pageSize int, pageCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	all := remoteMembers(total)
	pages := (total + pageSize - 1) / pageSize
	mux := http.NewServeMux()
	mux.HandleFunc("GET /listar/beneficiario/paginacao", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"quantidade_paginas": pages,
			"total_registros":    strconv.Itoa(total),
		})
	})
	mux.HandleFunc("GET /listar/beneficiario/{page}", func(w http.ResponseWriter, r *http.Request) {
		pageCalls.Add(1)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		page, err := strconv.Atoi(r.PathValue("page"))
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		start := min((page-1)*pageSize, total)
		end := min(start+pageSize, total)
		_ = json.NewEncoder(w).Encode(all[start:end])
	})
	return newTestServer(mux)
}

func testSettings(baseURL string) Settings {
	return Settings{
		Pagination:      config.PaginationOffset,
		ListURL:         baseURL + "/listar/associado",
		PageSize:        500,
		StatusCode:      1,
		RequestTimeout:  5 * time.Second,
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestFetchFullRoster_OffsetPagination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		total     int
		wantCalls int32
	}{
		{name: "empty roster still issues one request", total: 0, wantCalls: 1},
		{name: "exactly one page", total: 500, wantCalls: 1},
		{name: "one record past a page", total: 501, wantCalls: 2},
		{name: "several pages", total: 1234, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			server := offsetServer(t, tt.total, &calls)
			defer server.Close()

			client := NewClient(httpclient.NewDefaultClient(), testSettings(server.URL))
			records, err := client.FetchFullRoster(context.Background(), testTenant, bearer("tok"))
			require.NoError(t, err)

			assert.Len(t, records, tt.total)
			assert.Equal(t, tt.wantCalls, calls.Load())
			if tt.total > 0 {
				assert.Equal(t, "00000000001", records[0].NationalID)
				assert.Equal(t, fmt.Sprintf("%011d", tt.total), records[tt.total-1].NationalID)
			}
		})
	}
}

func TestFetchFullRoster_PageCountPagination(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		total     int
		wantCalls int32
	}{
		{name: "zero pages still requests page one", total: 0, wantCalls: 1},
		{name: "exactly one page", total: 500, wantCalls: 1},
		{name: "one record past a page", total: 501, wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			server := pageServer(t, tt.total, 500, &calls)
			defer server.Close()

			settings := testSettings(server.URL)
			settings.Pagination = config.PaginationPages
			settings.ListURL = server.URL + "/listar/beneficiario"
			settings.PaginationURL = server.URL + "/listar/beneficiario/paginacao"

			client := NewClient(httpclient.NewDefaultClient(), settings)
			records, err := client.FetchFullRoster(context.Background(), testTenant, bearer("tok"))
			require.NoError(t, err)
			assert.Len(t, records, tt.total)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestFetchFullRoster_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"total_associados": 1, "associados": [{"cpf_beneficiario": 12345678909}]}`))
	}))
	defer server.Close()

	client := NewClient(httpclient.NewDefaultClient(), testSettings(server.URL))
	records, err := client.FetchFullRoster(context.Background(), testTenant, bearer("tok"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "12345678909", records[0].NationalID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchFullRoster_Failures(t *testing.T) {
	t.Parallel()

	t.Run("client error is not retried", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"mensagem": "token inválido"}`))
		}))
		defer server.Close()

		client := NewClient(httpclient.NewDefaultClient(), testSettings(server.URL))
		records, err := client.FetchFullRoster(context.Background(), testTenant, bearer("tok"))
		require.Error(t, err)
		assert.Nil(t, records)
		assert.ErrorIs(t, err, ErrRemoteFetchFailed)
		assert.Equal(t, int32(1), calls.Load())

		var fetchErr *FetchError
		require.True(t, errors.As(err, &fetchErr))
		assert.Equal(t, "t1", fetchErr.TenantID)
		assert.Equal(t, http.StatusUnauthorized, fetchErr.StatusCode)
		assert.Equal(t, "token inválido", fetchErr.RemoteMessage)
	})

	t.Run("persistent server error on a later page discards the roster", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			var req offsetRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Offset > 0 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"total_associados": 3,
				"associados":       remoteMembers(2),
			})
		}))
		defer server.Close()

		settings := testSettings(server.URL)
		settings.PageSize = 2
		client := NewClient(httpclient.NewDefaultClient(), settings)
		records, err := client.FetchFullRoster(context.Background(), testTenant, bearer("tok"))
		require.Error(t, err)
		assert.Nil(t, records)
		assert.ErrorIs(t, err, ErrRemoteFetchFailed)
		assert.Contains(t, err.Error(), "offset 2")
		assert.Equal(t, int32(1+3), calls.Load())
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`<html>maintenance</html>`))
		}))
		defer server.Close()

		client := NewClient(httpclient.NewDefaultClient(), testSettings(server.URL))
		_, err := client.FetchFullRoster(context.Background(), testTenant, bearer("tok"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRemoteFetchFailed)
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("missing total", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"associados": []}`))
		}))
		defer server.Close()

		client := NewClient(httpclient.NewDefaultClient(), testSettings(server.URL))
		_, err := client.FetchFullRoster(context.Background(), testTenant, bearer("tok"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("empty page before declared total", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			_, _ = w.Write([]byte(`{"total_associados": 10, "associados": []}`))
		}))
		defer server.Close()

		client := NewClient(httpclient.NewDefaultClient(), testSettings(server.URL))
		_, err := client.FetchFullRoster(context.Background(), testTenant, bearer("tok"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMalformedResponse)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		client := NewClient(httpclient.NewDefaultClient(), testSettings(server.URL))
		_, err := client.FetchFullRoster(ctx, testTenant, bearer("tok"))
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFetchFullRoster_PerPageTimeout(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	settings := testSettings(server.URL)
	settings.RequestTimeout = 50 * time.Millisecond
	settings.MaxAttempts = 2

	client := NewClient(httpclient.NewDefaultClient(), settings)
	_, err := client.FetchFullRoster(context.Background(), testTenant, bearer("tok"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteFetchFailed)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDecodeMemberPage(t *testing.T) {
	t.Parallel()

	members, err := decodeMemberPage([]byte(` [{"cpf_beneficiario":"1"}]`))
	require.NoError(t, err)
	assert.Len(t, members, 1)

	members, err = decodeMemberPage([]byte(`{"associados":[{"cpf_beneficiario":"1"},{"cpf_beneficiario":"2"}]}`))
	require.NoError(t, err)
	assert.Len(t, members, 2)

	_, err = decodeMemberPage([]byte(`  `))
	require.Error(t, err)

	_, err = decodeMemberPage([]byte(`"text"`))
	require.Error(t, err)
}

func TestRemoteMember_RawRecord(t *testing.T) {
	t.Parallel()

	body := `{
		"nome_beneficiario": "Ana Lima",
		"cpf_beneficiario": "123.456.789-09",
		"email_beneficiario": "ANA@EXAMPLE.COM",
		"telefone_beneficiario": 11999998888,
		"data_nascimento_beneficiario": "1990-04-21",
		"cep_beneficiario": null,
		"logradouro_beneficiario": "Rua A",
		"numero_beneficiario": 12,
		"cidade_beneficiario": "Recife",
		"estado_beneficiario": "pe",
		"cpf_associado": "98765432100"
	}`

	var m RemoteMember
	require.NoError(t, json.NewDecoder(strings.NewReader(body)).Decode(&m))
	raw := m.RawRecord()

	assert.Equal(t, "123.456.789-09", raw.NationalID)
	assert.Equal(t, "11999998888", raw.Phone)
	assert.Equal(t, "", raw.PostalCode)
	assert.Equal(t, "12", raw.Address.Number)
	assert.Equal(t, "98765432100", raw.HolderNationalID)

	rec, err := raw.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "12345678909", rec.NationalID)
	assert.Equal(t, "ana@example.com", rec.Email)
	assert.Equal(t, "PE", rec.Address.State)
}

func TestSettingsFromConfig(t *testing.T) {
	t.Parallel()

	rc := &config.RemoteConfig{
		BaseURL:        "https://api.example.com",
		ListPath:       "/listar/associado",
		PaginationPath: "/paginacao",
	}
	s := SettingsFromConfig(rc)
	assert.Equal(t, config.PaginationOffset, s.Pagination)
	assert.Equal(t, "https://api.example.com/listar/associado", s.ListURL)
	assert.Equal(t, config.DefaultPageSize, s.PageSize)
	assert.Equal(t, config.DefaultRequestTimeout, s.RequestTimeout)
	assert.Equal(t, 3, s.MaxAttempts)
}
