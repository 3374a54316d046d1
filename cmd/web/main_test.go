package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mart-segments/internal/config"
	"mart-segments/internal/server"
	"mart-segments/internal/services"
	"mart-segments/internal/synth"
)

func testPipeline() config.PipelineConfig {
	p := config.DefaultPipeline()
	p.Restarts = 3
	return p
}

// Test helper to create analytics with synthetic data
func newTestAnalytics(t *testing.T) *services.Analytics {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := services.NewAnalytics(testPipeline(), "", logger)
	if err != nil {
		t.Fatal(err)
	}
	records := synth.Generate(3, synth.Options{Products: 40, Stores: 5, MissingWeight: 0.1, Coverage: 0.6})
	if err := a.SetData(context.Background(), records, nil); err != nil {
		t.Fatal(err)
	}
	return a
}

func newTestServer(t *testing.T) (*server.Server, *services.Analytics) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	analytics := newTestAnalytics(t)
	templateHandlers := &server.TemplateHandlers{Dashboard: dashboardHandler(analytics, testPipeline())}
	return server.NewServer(analytics, logger, templateHandlers), analytics
}

// Integration tests for HTTP routes
func TestServer_Routes(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		path           string
		expectedStatus int
		contentType    string
	}{
		{"/", http.StatusOK, "text/html"},
		{"/api/overview", http.StatusOK, "application/json"},
		{"/api/selection", http.StatusOK, "application/json"},
		{"/api/products", http.StatusOK, "application/json"},
		{"/api/products?item_type=All", http.StatusOK, "application/json"},
		{"/api/stores", http.StatusOK, "application/json"},
		{"/api/store-clusters", http.StatusOK, "application/json"},
		{"/api/cluster-stats", http.StatusOK, "application/json"},
		{"/api/type-distribution", http.StatusOK, "application/json"},
		{"/api/store-type-mix", http.StatusOK, "application/json"},
		{"/charts/projection", http.StatusOK, "text/html"},
		{"/charts/store-mix", http.StatusOK, "text/html"},
		{"/health", http.StatusOK, "application/json"},
		{"/admin/stats", http.StatusOK, "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest("GET", tt.path, nil)

			srv.ServeHTTP(w, r)

			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.expectedStatus)
			}

			ct := w.Header().Get("Content-Type")
			if !strings.Contains(ct, tt.contentType) {
				t.Errorf("content-type = %q, want %q", ct, tt.contentType)
			}

			// Validate JSON responses
			if tt.contentType == "application/json" {
				var result any
				if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
					t.Errorf("invalid json: %v", err)
				}
			}
		})
	}
}

// Test JSON API responses
func TestServer_JSONResponse(t *testing.T) {
	srv, _ := newTestServer(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/api/products", nil)
	srv.ServeHTTP(w, r)

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}

	if success, ok := response["success"].(bool); !ok || !success {
		t.Error("expected success=true in response")
	}

	data, ok := response["data"].([]interface{})
	if !ok || len(data) == 0 {
		t.Fatalf("expected products in response")
	}

	item, ok := data[0].(map[string]interface{})
	if !ok {
		t.Fatal("product should be an object")
	}
	if id, _ := item["item_identifier"].(string); id == "" {
		t.Error("product should have non-empty item_identifier field")
	}
	if _, ok := item["cluster"].(float64); !ok {
		t.Error("product should carry its cluster")
	}
	if projection, _ := item["projection"].([]interface{}); len(projection) != testPipeline().ProjectionDims {
		t.Errorf("product projection has %d dims, want %d", len(projection), testPipeline().ProjectionDims)
	}
}

// Test Server-Sent Events routes
func TestServer_SSERoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	sseRoutes := []string{
		"/sse/store-mix",
		"/sse/clusters",
		"/sse/refresh-all",
	}

	for _, route := range sseRoutes {
		t.Run(route, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest("GET", route, nil)

			srv.ServeHTTP(w, r)

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
			}

			// Check for SSE headers
			if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
				t.Errorf("content-type = %q, should contain 'text/event-stream'", ct)
			}
		})
	}
}

func TestServer_Recluster(t *testing.T) {
	srv, analytics := newTestServer(t)

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("POST", "/api/recluster?k=3", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("GET", "/api/stores", nil))
	var response struct {
		Data []struct {
			PctCluster []float64 `json:"pct_cluster"`
		} `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatal(err)
	}
	for _, s := range response.Data {
		if len(s.PctCluster) != 3 {
			t.Errorf("store has %d cluster shares after recluster, want 3", len(s.PctCluster))
		}
	}

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("POST", "/api/recluster?k=42", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("out of range k status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if res, _ := analytics.Result(); res.K != 3 {
		t.Errorf("rejected recluster changed k to %d", res.K)
	}
}

// Test health endpoint
func TestServer_HandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/health", nil)

	srv.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode health JSON: %v", err)
	}

	healthData, ok := response["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected health data in response")
	}

	if status, ok := healthData["status"].(string); !ok || status != "healthy" {
		t.Errorf("health status = %v, want 'healthy'", healthData["status"])
	}

	if _, ok := healthData["timestamp"]; !ok {
		t.Error("health response should include timestamp")
	}
}

// Test error handling for invalid methods and paths
func TestServer_ErrorHandling(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{"POST", "/api/overview", http.StatusMethodNotAllowed},
		{"PUT", "/", http.StatusMethodNotAllowed},
		{"DELETE", "/health", http.StatusMethodNotAllowed},
		{"GET", "/api/recluster", http.StatusMethodNotAllowed},
		{"GET", "/sse/recluster", http.StatusMethodNotAllowed},
		{"GET", "/no-such-page", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(tt.method, tt.path, nil)

			srv.ServeHTTP(w, r)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

// Test dashboard template rendering
func TestDashboardTemplate(t *testing.T) {
	analytics := newTestAnalytics(t)
	sel, _ := analytics.Selection()

	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)

	dashboardHandler(analytics, testPipeline())(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	body := w.Body.String()
	if !strings.Contains(body, pageTitle) {
		t.Error("dashboard should contain title")
	}
	if !strings.Contains(body, "(best silhouette)") {
		t.Errorf("dashboard should mark the selected k=%d", sel.K)
	}

	expectedComponents := []string{
		"/charts/projection",
		"/charts/store-mix",
		"store-mix-content",
		"clusters-content",
		"/sse/refresh-all",
	}

	for _, component := range expectedComponents {
		if !strings.Contains(body, component) {
			t.Errorf("dashboard should contain '%s'", component)
		}
	}
}
