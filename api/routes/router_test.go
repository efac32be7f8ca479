package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"authfuzz/internal/services"
	"authfuzz/pkg/attacks"
	"authfuzz/pkg/engine"
	"authfuzz/pkg/metrics"
	"authfuzz/pkg/payloads"
	"authfuzz/pkg/report"
	"authfuzz/pkg/runner"
	"authfuzz/pkg/spray"
	"authfuzz/pkg/transport"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	collector, err := metrics.NewCollector()
	require.NoError(t, err)
	client, err := transport.New(transport.Config{})
	require.NoError(t, err)

	reg := runner.NewRegistry()
	reg.Register("lab", runner.GeneratorFunc(func(context.Context, string) error { return nil }))

	eng := engine.NewEngine(
		engine.WithTransport(client),
		engine.WithRunners(reg),
		engine.WithReportStore(report.NewFileStore(filepath.Join(dir, "reports"))),
		engine.WithCapturePath(filepath.Join(dir, "proxy_log.jsonl")),
		engine.WithMetrics(collector),
	)

	return InitRouter(Services{
		Scans:   services.NewScanService(eng, engine.NewEngineQueue(1, nil), nil, nil),
		Configs: services.NewConfigService(filepath.Join(dir, "targets"), reg, attacks.DefaultCatalog()),
		Spray: services.NewSprayService(client, report.NewRecorder(filepath.Join(dir, "results.json")),
			spray.DefaultConfig(), payloads.Roots{SecLists: dir, Payloads: dir}, collector, nil),
		Metrics: collector,
	})
}

func TestRoutes(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		method       string
		path         string
		expectedCode int
		contains     string
	}{
		{"GET", "/healthz", 200, `"ok"`},
		{"GET", "/metrics", 200, "authfuzz_scans_running"},
		{"GET", "/api/targets", 200, `"name":"lab"`},
		{"GET", "/api/strategies", 200, "jwt_replay"},
		{"GET", "/api/scans", 200, `"max_concurrent":1`},
		{"GET", "/api/scans/unknown", 404, "Scan not found"},
		{"GET", "/api/scans/unknown/report", 404, "Scan not found"},
		{"DELETE", "/api/scans/unknown", 404, "Scan not found"},
		{"GET", "/api/scans/history", 501, "database"},
		{"GET", "/api/spray/metrics", 200, `"UAR":null`},
		{"GET", "/api/spray/unknown", 404, "Spray not found"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedCode, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), tt.contains)
		})
	}
}

func TestScanLifecycleOverAPI(t *testing.T) {
	router := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/scans", strings.NewReader(`{"target":"lab","base_url":"http://lab.local","scan_id":"api-1"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code, w.Body.String())
	assert.JSONEq(t, `{"scan_id":"api-1","status":"started"}`, w.Body.String())

	assert.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/scans/api-1/report", nil)
		router.ServeHTTP(w, req)
		return w.Code == 200
	}, 3*time.Second, 10*time.Millisecond)
}
