package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgemunganga/warehouse-backend/internal/log"
	"github.com/georgemunganga/warehouse-backend/internal/modules/auth"
)

func TestStorageDriver(t *testing.T) {
	tests := map[string]struct {
		cfg Config
		exp string
	}{
		"Without a database URL memory is used.": {cfg: Config{}, exp: storageMemory},
		"A database URL selects Postgres.":       {cfg: Config{DatabaseURL: "postgres://x"}, exp: storagePostgres},
		"An explicit driver wins.":               {cfg: Config{DatabaseURL: "postgres://x", StorageDriver: storageMemory}, exp: storageMemory},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, test.cfg.storageDriver())
		})
	}
}

func TestServerRoutes(t *testing.T) {
	cfg := Config{
		JWTSecret:                "s3cret",
		PositionCapacity:         9,
		MaintenanceInterval:      90 * 24 * time.Hour,
		MaintenanceSweepInterval: time.Hour,
		MaintenanceWarnWindow:    7 * 24 * time.Hour,
	}
	srv, err := newServer(context.Background(), cfg, log.Noop)
	require.NoError(t, err)
	defer srv.close()

	authService, err := auth.NewService(cfg.JWTSecret)
	require.NoError(t, err)
	token, err := authService.IssueToken(context.Background(), auth.Caller{ID: "op-1"}, time.Hour)
	require.NoError(t, err)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Authorization", "Bearer "+token)
		srv.http.Handler.ServeHTTP(w, r)
		return w
	}

	w := do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(http.MethodPost, "/api/v1/products", `{"name":"Widget","positions":[{"label":"A1","units":5}]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(http.MethodGet, "/api/v1/tasks", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = do(http.MethodGet, "/api/v1/forklifts/summary", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `warehouse_http_request_duration_seconds_count`)
	assert.Contains(t, string(body), `status="201"`)
}
