package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfwatch/perfwatch/pkg/config"
	"github.com/perfwatch/perfwatch/pkg/ingest"
	"github.com/perfwatch/perfwatch/pkg/store"
)

func setupTestServer(t *testing.T, cfg *config.Config) (*server, http.Handler) {
	t.Helper()

	if cfg == nil {
		cfg = &config.Config{}
	}

	cfg.Database = config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:"},
	}

	if cfg.Thresholds.TrendDepth == 0 {
		cfg.Thresholds = config.ThresholdsConfig{
			ChangeThreshold: config.DefaultChangeThreshold,
			TrendThreshold:  config.DefaultTrendThreshold,
			TrendDepth:      config.DefaultTrendDepth,
		}
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	db := store.NewStore(log, &cfg.Database)
	require.NoError(t, db.Start(context.Background()))

	t.Cleanup(func() { _ = db.Stop() })

	require.NoError(t, db.SeedAPIKeys(context.Background(), cfg.Auth.APIKeys))
	require.NoError(t, db.CreateEnvironment(
		context.Background(), &store.Environment{Name: "bench-host-1"},
	))

	s := &server{
		log:      log,
		cfg:      cfg,
		db:       db,
		ingester: ingest.New(log, db, engineConfig(cfg)),
	}

	return s, s.buildRouter()
}

func resultBody(commit string, value float64, date time.Time) map[string]any {
	return map[string]any{
		"commitid":      commit,
		"branch":        "main",
		"project":       "interpreter",
		"executable":    "cpython-default",
		"benchmark":     "float",
		"environment":   "bench-host-1",
		"result_value":  value,
		"revision_date": date.Format(time.RFC3339),
	}
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec
}

func TestHealth(t *testing.T) {
	_, router := setupTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestAddResultAndGetChanges(t *testing.T) {
	_, router := setupTestServer(t, nil)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rec := postJSON(t, router, "/api/v1/result",
		resultBody("c1", 15.0, base))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = postJSON(t, router, "/api/v1/result",
		resultBody("c2", 16.0, base.AddDate(0, 0, 1)))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/changes?rev=c2&exe=1&env=bench-host-1", nil)
	recGet := httptest.NewRecorder()
	router.ServeHTTP(recGet, req)

	require.Equal(t, http.StatusOK, recGet.Code, recGet.Body.String())

	var resp struct {
		Commit    string `json:"commitid"`
		Summary   string `json:"summary"`
		ColorCode string `json:"colorcode"`
	}
	require.NoError(t, json.Unmarshal(recGet.Body.Bytes(), &resp))

	// 15.0 -> 16.0 on a lessisbetter metric is a regression.
	assert.Equal(t, "c2", resp.Commit)
	assert.Equal(t, "red", resp.ColorCode)
	assert.Contains(t, resp.Summary, "+6.7%")
}

func TestAddResult_InvalidPayload(t *testing.T) {
	_, router := setupTestServer(t, nil)

	body := resultBody("c1", 15.0, time.Now())
	delete(body, "benchmark")

	rec := postJSON(t, router, "/api/v1/result", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddResult_UnknownEnvironment(t *testing.T) {
	_, router := setupTestServer(t, nil)

	body := resultBody("c1", 15.0, time.Now())
	body["environment"] = "nowhere"

	rec := postJSON(t, router, "/api/v1/result", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown environment")
}

func TestAddResultBulk(t *testing.T) {
	s, router := setupTestServer(t, nil)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	batch := []map[string]any{
		resultBody("c1", 15.0, base),
		resultBody("c1", 100.0, base),
	}
	batch[1]["benchmark"] = "int"

	rec := postJSON(t, router, "/api/v1/result/bulk", batch)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"count":2`)

	// One invalid entry rejects the whole batch before anything is saved.
	bad := []map[string]any{
		resultBody("c2", 15.5, base.AddDate(0, 0, 1)),
		{"commitid": "c2"},
	}

	rec = postJSON(t, router, "/api/v1/result/bulk", bad)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	_, err := s.db.FindRevisionByCommit(context.Background(), "c2")
	assert.Error(t, err)
}

func TestGetChanges_Validation(t *testing.T) {
	_, router := setupTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/changes?rev=c1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet,
		"/api/v1/changes?rev=missing&exe=1&env=bench-host-1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListReports(t *testing.T) {
	_, router := setupTestServer(t, nil)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, commit := range []string{"c1", "c2"} {
		rec := postJSON(t, router, "/api/v1/result",
			resultBody(commit, 15.0+float64(i), base.AddDate(0, 0, i)))
		require.Equal(t, http.StatusAccepted, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var items []struct {
		Commit    string `json:"commitid"`
		Summary   string `json:"summary"`
		ColorCode string `json:"colorcode"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "c2", items[0].Commit)
	assert.NotEmpty(t, items[0].Summary)
}

func TestRequireAPIKey(t *testing.T) {
	cfg := &config.Config{
		Auth: config.AuthConfig{
			APIKeys: []config.APIKeyConfig{{Name: "ci", Key: "secret-token"}},
		},
	}

	_, router := setupTestServer(t, cfg)

	body := resultBody("c1", 15.0, time.Now())

	rec := postJSON(t, router, "/api/v1/result", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/result",
		bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", "secret-token"))

	recAuth := httptest.NewRecorder()
	router.ServeHTTP(recAuth, req)
	assert.Equal(t, http.StatusAccepted, recAuth.Code, recAuth.Body.String())
}
