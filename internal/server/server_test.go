package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aristath/riskengine/internal/modules/limits"
	limitshandlers "github.com/aristath/riskengine/internal/modules/limits/handlers"
	"github.com/aristath/riskengine/internal/modules/stoploss"
	stophandlers "github.com/aristath/riskengine/internal/modules/stoploss/handlers"
	"github.com/aristath/riskengine/internal/scheduler"
	testingpkg "github.com/aristath/riskengine/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*Server
	book   *stoploss.Book
	limits *limits.Manager
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	log := zerolog.Nop()

	db := testingpkg.NewTestDB(t, "server_test")

	book := stoploss.NewBook(nil, log)
	manager := limits.NewManager(nil, log)
	sched := scheduler.New(log)
	require.NoError(t, sched.AddJob("@every 1h", scheduler.NewReevaluateStopsJob(book, log)))

	srv := New(Config{
		Log:     log,
		Port:    0,
		DevMode: true,
		Status: StatusSources{
			DB:        db,
			Book:      book,
			Limits:    manager,
			Scheduler: sched,
		},
		Modules: []RouteRegistrar{
			stophandlers.NewHandler(book, log),
			limitshandlers.NewHandler(manager, nil, log),
		},
	})
	return testServer{Server: srv, book: book, limits: manager}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "riskengine", body["service"])
}

func TestSystemStatus(t *testing.T) {
	srv := newTestServer(t)
	_, err := srv.book.Open(stoploss.OpenRequest{
		Symbol:          "AAPL",
		Side:            stoploss.Long,
		Kind:            stoploss.KindTrailing,
		EntryPrice:      100,
		TrailingPercent: 0.05,
	})
	require.NoError(t, err)
	require.NoError(t, srv.limits.SetLimit(limits.LevelPortfolio, limits.GlobalEntity, "var_95", decimal.NewFromInt(50000)))

	req := httptest.NewRequest(http.MethodGet, "/api/system/status", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data SystemStatusResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	status := envelope.Data
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "ok", status.Database)
	assert.Equal(t, 1, status.ActiveStops)
	assert.Equal(t, 1, status.RegisteredLimits)
	assert.Equal(t, 1, status.ScheduledJobs)
	assert.Positive(t, status.Goroutines)
}

func TestModulesMountedUnderAPI(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/stops", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/limits", nil)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/nothing-here", nil)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.Handler().ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "riskengine_http_requests_total"))
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/limits", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
}
