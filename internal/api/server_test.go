package api_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/memberhub/roster-sync/internal/api"
	"github.com/memberhub/roster-sync/internal/membership"
	"github.com/memberhub/roster-sync/internal/service"
	"github.com/memberhub/roster-sync/internal/service/mocks"
	"github.com/memberhub/roster-sync/internal/status"
)

func serve(t *testing.T, server http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	req, err := http.NewRequest(method, path, nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	server := api.NewServer(mocks.NewMockRunService(ctrl))
	rr := serve(t, server, http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "healthy", decode(t, rr)["status"])
}

func TestReadinessEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		setupMock      func(*mocks.MockRunService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "store ready",
			setupMock: func(m *mocks.MockRunService) {
				m.EXPECT().CheckReadiness(gomock.Any()).Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   "ready",
		},
		{
			name: "store unreachable",
			setupMock: func(m *mocks.MockRunService) {
				m.EXPECT().CheckReadiness(gomock.Any()).Return(fmt.Errorf("store not ready"))
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			svc := mocks.NewMockRunService(ctrl)
			tt.setupMock(svc)

			rr := serve(t, api.NewServer(svc), http.MethodGet, "/readiness")
			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, tt.expectedBody, decode(t, rr)["status"])
		})
	}
}

func TestVersionEndpoint(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	rr := serve(t, api.NewServer(mocks.NewMockRunService(ctrl)), http.MethodGet, "/version")
	assert.Equal(t, http.StatusOK, rr.Code)

	body := decode(t, rr)
	for _, key := range []string{"version", "commit", "build_date", "go_version", "platform"} {
		assert.Contains(t, body, key)
	}
}

func TestLatestRunEndpoint(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, time.March, 1, 1, 15, 0, 0, time.UTC)

	tests := []struct {
		name           string
		setupMock      func(*mocks.MockRunService)
		expectedStatus int
		check          func(t *testing.T, body map[string]any)
	}{
		{
			name: "latest run",
			setupMock: func(m *mocks.MockRunService) {
				m.EXPECT().LatestRun(gomock.Any()).Return(&status.RunStatus{
					RunID:       "run-1",
					Trigger:     status.TriggerSchedule,
					Phase:       status.RunPhaseCompleted,
					StartedAt:   started,
					Deactivated: 4,
				}, nil)
			},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				t.Helper()
				assert.Equal(t, "run-1", body["runId"])
				assert.Equal(t, "Completed", body["phase"])
				assert.InDelta(t, 4, body["deactivated"], 0)
			},
		},
		{
			name: "no runs yet",
			setupMock: func(m *mocks.MockRunService) {
				m.EXPECT().LatestRun(gomock.Any()).Return(nil, service.ErrNoRuns)
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "storage failure",
			setupMock: func(m *mocks.MockRunService) {
				m.EXPECT().LatestRun(gomock.Any()).Return(nil, errors.New("disk gone"))
			},
			expectedStatus: http.StatusInternalServerError,
			check: func(t *testing.T, body map[string]any) {
				t.Helper()
				assert.Equal(t, "failed to load latest run", body["error"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			svc := mocks.NewMockRunService(ctrl)
			tt.setupMock(svc)

			rr := serve(t, api.NewServer(svc), http.MethodGet, "/v1/runs/latest")
			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.check != nil {
				tt.check(t, decode(t, rr))
			}
		})
	}
}

func TestTriggerRunEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		triggerErr     error
		expectedStatus int
	}{
		{name: "accepted", expectedStatus: http.StatusAccepted},
		{name: "run in progress", triggerErr: service.ErrRunInProgress, expectedStatus: http.StatusConflict},
		{name: "lock failure", triggerErr: errors.New("redis down"), expectedStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			svc := mocks.NewMockRunService(ctrl)
			runID := ""
			if tt.triggerErr == nil {
				runID = "run-7"
			}
			svc.EXPECT().TriggerRun(gomock.Any()).Return(runID, tt.triggerErr)

			rr := serve(t, api.NewServer(svc), http.MethodPost, "/v1/runs")
			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.triggerErr == nil {
				assert.Equal(t, "run-7", decode(t, rr)["runId"])
				assert.Equal(t, "/v1/runs/latest", rr.Header().Get("Location"))
			}
		})
	}
}

func TestGetMemberEndpoint(t *testing.T) {
	t.Parallel()

	birth := time.Date(1990, time.April, 21, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		setupMock      func(*mocks.MockRunService)
		expectedStatus int
	}{
		{
			name: "found",
			setupMock: func(m *mocks.MockRunService) {
				m.EXPECT().GetMember(gomock.Any(), "12345678909").Return(membership.Member{
					NationalID: "12345678909",
					Name:       "Maria",
					BirthDate:  &birth,
					Address:    membership.Address{City: "Recife"},
					Status:     membership.StatusActive,
				}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "unknown",
			setupMock: func(m *mocks.MockRunService) {
				m.EXPECT().GetMember(gomock.Any(), "12345678909").Return(membership.Member{}, service.ErrMemberNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "invalid key",
			setupMock: func(m *mocks.MockRunService) {
				m.EXPECT().GetMember(gomock.Any(), "12345678909").Return(membership.Member{}, service.ErrInvalidNationalID)
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			svc := mocks.NewMockRunService(ctrl)
			tt.setupMock(svc)

			rr := serve(t, api.NewServer(svc), http.MethodGet, "/v1/members/12345678909")
			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedStatus == http.StatusOK {
				body := decode(t, rr)
				assert.Equal(t, "1990-04-21", body["birthDate"])
				assert.Equal(t, "ACTIVE", body["status"])
				assert.Equal(t, "Recife", body["address"].(map[string]any)["city"])
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockRunService(ctrl)

	rr := serve(t, api.NewServer(svc), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("roster_sync_runs 1\n"))
	})
	rr = serve(t, api.NewServer(svc, api.WithMetricsHandler(metrics)), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "roster_sync_runs")
}

func TestMiddlewares(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	server := api.NewServer(mocks.NewMockRunService(ctrl),
		api.WithMiddlewares(middleware.RequestID, api.LoggingMiddleware))

	rr := serve(t, server, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
}
