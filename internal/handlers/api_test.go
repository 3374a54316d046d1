package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mart-segments/internal/config"
	"mart-segments/internal/services"
	"mart-segments/internal/synth"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newAnalytics(t *testing.T) *services.Analytics {
	t.Helper()
	p := config.DefaultPipeline()
	p.Restarts = 3
	a, err := services.NewAnalytics(p, "", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func createTestAnalytics(t *testing.T) *services.Analytics {
	t.Helper()
	a := newAnalytics(t)
	records := synth.Generate(11, synth.Options{Products: 50, Stores: 5, MissingWeight: 0.1, Coverage: 0.6})
	if err := a.SetData(context.Background(), records, nil); err != nil {
		t.Fatalf("SetData() error = %v", err)
	}
	return a
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	return response
}

func TestNewAPIHandlers(t *testing.T) {
	analytics := createTestAnalytics(t)
	handlers := NewAPIHandlers(analytics, testLogger())

	if handlers == nil {
		t.Fatal("NewAPIHandlers() returned nil")
	}

	if handlers.analytics != analytics {
		t.Error("NewAPIHandlers() should set analytics field")
	}
}

func TestAPIHandlers_DataEndpoints(t *testing.T) {
	analytics := createTestAnalytics(t)
	handlers := NewAPIHandlers(analytics, testLogger())

	tests := []struct {
		name    string
		handler http.HandlerFunc
		path    string
		array   bool
	}{
		{"overview", handlers.HandleOverview, "/api/overview", false},
		{"selection", handlers.HandleSelection, "/api/selection", false},
		{"products", handlers.HandleProducts, "/api/products", true},
		{"stores", handlers.HandleStores, "/api/stores", true},
		{"store-clusters", handlers.HandleStoreClusters, "/api/store-clusters", true},
		{"cluster-stats", handlers.HandleClusterStats, "/api/cluster-stats", true},
		{"type-distribution", handlers.HandleTypeDistribution, "/api/type-distribution", true},
		{"store-type-mix", handlers.HandleStoreTypeMix, "/api/store-type-mix", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()

			tt.handler(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected content-type 'application/json', got %q", ct)
			}
			if cc := w.Header().Get("Cache-Control"); cc != cacheControl {
				t.Errorf("expected cache-control %q, got %q", cacheControl, cc)
			}

			response := decodeResponse(t, w)
			if success, ok := response["success"].(bool); !ok || !success {
				t.Error("expected success=true in response")
			}
			data, ok := response["data"]
			if !ok {
				t.Fatal("expected data field in response")
			}
			if tt.array {
				if rows, ok := data.([]interface{}); !ok || len(rows) == 0 {
					t.Error("expected non-empty data array in response")
				}
			} else if _, ok := data.(map[string]interface{}); !ok {
				t.Error("expected data object in response")
			}
		})
	}
}

func TestAPIHandlers_HandleProducts_ItemType(t *testing.T) {
	analytics := createTestAnalytics(t)
	handlers := NewAPIHandlers(analytics, testLogger())

	types, err := analytics.ItemTypes()
	if err != nil || len(types) == 0 {
		t.Fatalf("ItemTypes() = %v, %v", types, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/products?item_type="+strings.ReplaceAll(types[0], " ", "+"), nil)
	w := httptest.NewRecorder()
	handlers.HandleProducts(w, req)

	response := decodeResponse(t, w)
	rows, _ := response["data"].([]interface{})
	if len(rows) == 0 {
		t.Fatal("expected products for an existing item type")
	}
	for _, row := range rows {
		if got := row.(map[string]interface{})["item_type"]; got != types[0] {
			t.Errorf("filter leaked item type %v", got)
		}
	}
}

func TestAPIHandlers_HandleStoreClusters_UnknownStore(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(t), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/store-clusters?store=NOPE", nil)
	w := httptest.NewRecorder()
	handlers.HandleStoreClusters(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestAPIHandlers_HandleRecluster(t *testing.T) {
	analytics := createTestAnalytics(t)
	handlers := NewAPIHandlers(analytics, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/recluster?k=4", nil)
	w := httptest.NewRecorder()
	handlers.HandleRecluster(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	data, _ := decodeResponse(t, w)["data"].(map[string]interface{})
	if k, _ := data["k"].(float64); k != 4 {
		t.Errorf("expected k=4 in response, got %v", data["k"])
	}

	res, _ := analytics.Result()
	if res.K != 4 {
		t.Errorf("active segmentation should switch to k=4, got %d", res.K)
	}
}

func TestAPIHandlers_HandleRecluster_BadRequest(t *testing.T) {
	analytics := createTestAnalytics(t)
	handlers := NewAPIHandlers(analytics, testLogger())
	before, _ := analytics.Result()

	tests := []struct {
		name  string
		query string
		code  string
	}{
		{"missing", "", "BAD_REQUEST"},
		{"not a number", "k=four", "BAD_REQUEST"},
		{"too small", "k=1", "INVALID_CLUSTER_COUNT"},
		{"too large", "k=11", "INVALID_CLUSTER_COUNT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/recluster?"+tt.query, nil)
			w := httptest.NewRecorder()
			handlers.HandleRecluster(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
			}
			response := decodeResponse(t, w)
			if success, _ := response["success"].(bool); success {
				t.Error("expected success=false")
			}
			errObj, _ := response["error"].(map[string]interface{})
			if errObj["code"] != tt.code {
				t.Errorf("expected error code %s, got %v", tt.code, errObj["code"])
			}
		})
	}

	if after, _ := analytics.Result(); after != before {
		t.Error("rejected requests must not change the active segmentation")
	}
}

func TestAPIHandlers_ETagFollowsRecluster(t *testing.T) {
	analytics := createTestAnalytics(t)
	handlers := NewAPIHandlers(analytics, testLogger())

	get := func(etag string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/stores", nil)
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}
		w := httptest.NewRecorder()
		handlers.HandleStores(w, req)
		return w
	}

	first := get("")
	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected an ETag on data responses")
	}
	if cc := first.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("data responses must be revalidated, got cache-control %q", cc)
	}

	if w := get(etag); w.Code != http.StatusNotModified {
		t.Errorf("matching If-None-Match: expected status %d, got %d", http.StatusNotModified, w.Code)
	}

	res, _ := analytics.Result()
	k := 2
	if res.K == 2 {
		k = 3
	}
	if _, err := analytics.Recluster(context.Background(), k); err != nil {
		t.Fatal(err)
	}

	w := get(etag)
	if w.Code != http.StatusOK {
		t.Fatalf("after recluster: expected status %d, got %d", http.StatusOK, w.Code)
	}
	if w.Header().Get("ETag") == etag {
		t.Error("ETag should change after a recluster")
	}
}

func TestAPIHandlers_NoData(t *testing.T) {
	handlers := NewAPIHandlers(newAnalytics(t), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/stores", nil)
	w := httptest.NewRecorder()
	handlers.HandleStores(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "" {
		t.Errorf("errors should not be cached, got %q", cc)
	}
}

func TestAPIHandlers_HandleHealth(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(t), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handlers.HandleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	// Health endpoint should NOT have cache-control header
	if cc := w.Header().Get("Cache-Control"); cc != "" {
		t.Errorf("health endpoint should not set cache-control, got %q", cc)
	}

	response := decodeResponse(t, w)
	data, ok := response["data"].(map[string]interface{})
	if !ok {
		t.Fatal("expected health data in response")
	}
	if status, _ := data["status"].(string); status != "healthy" {
		t.Errorf("expected status 'healthy', got %q", status)
	}
	if timestamp, _ := data["timestamp"].(string); timestamp == "" {
		t.Error("expected non-empty timestamp")
	} else if _, err := time.Parse(time.RFC3339, timestamp); err != nil {
		t.Errorf("invalid timestamp format: %v", err)
	}
}

func TestAPIHandlers_HandleHealth_Loading(t *testing.T) {
	handlers := NewAPIHandlers(newAnalytics(t), testLogger())

	w := httptest.NewRecorder()
	handlers.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	data, _ := decodeResponse(t, w)["data"].(map[string]interface{})
	if data["status"] != "loading" {
		t.Errorf("expected status 'loading' before data is set, got %v", data["status"])
	}
}

func TestAPIHandlers_HandleStats(t *testing.T) {
	handlers := NewAPIHandlers(createTestAnalytics(t), testLogger())

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	w := httptest.NewRecorder()

	handlers.HandleStats(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	data, _ := decodeResponse(t, w)["data"].(map[string]interface{})
	if loaded, _ := data["loaded"].(bool); !loaded {
		t.Error("expected loaded=true in stats")
	}
	if _, ok := data["fingerprint"]; !ok {
		t.Error("expected fingerprint in stats")
	}
}
