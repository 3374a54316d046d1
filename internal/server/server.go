package server

import (
	"log/slog"
	"net/http"

	"mart-segments/internal/handlers"
	"mart-segments/internal/services"
)

type Server struct {
	analytics     *services.Analytics
	mux           *http.ServeMux
	logger        *slog.Logger
	apiHandlers   *handlers.APIHandlers
	sseHandlers   *handlers.SSEHandlers
	chartHandlers *handlers.ChartHandlers
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

func NewServer(analytics *services.Analytics, logger *slog.Logger, templateHandlers *TemplateHandlers) *Server {
	s := &Server{
		analytics:     analytics,
		mux:           http.NewServeMux(),
		logger:        logger,
		apiHandlers:   handlers.NewAPIHandlers(analytics, logger),
		sseHandlers:   handlers.NewSSEHandlers(analytics, logger),
		chartHandlers: handlers.NewChartHandlers(analytics, logger),
	}
	s.setupRoutes(templateHandlers)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers) {
	// Dashboard routes
	s.mux.HandleFunc("GET /{$}", templateHandlers.Dashboard)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)

	// REST API endpoints
	s.mux.HandleFunc("GET /api/overview", s.apiHandlers.HandleOverview)
	s.mux.HandleFunc("GET /api/selection", s.apiHandlers.HandleSelection)
	s.mux.HandleFunc("GET /api/products", s.apiHandlers.HandleProducts)
	s.mux.HandleFunc("GET /api/stores", s.apiHandlers.HandleStores)
	s.mux.HandleFunc("GET /api/store-clusters", s.apiHandlers.HandleStoreClusters)
	s.mux.HandleFunc("GET /api/cluster-stats", s.apiHandlers.HandleClusterStats)
	s.mux.HandleFunc("GET /api/type-distribution", s.apiHandlers.HandleTypeDistribution)
	s.mux.HandleFunc("GET /api/store-type-mix", s.apiHandlers.HandleStoreTypeMix)
	s.mux.HandleFunc("POST /api/recluster", s.apiHandlers.HandleRecluster)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/store-mix", s.sseHandlers.HandleStoreMix)
	s.mux.HandleFunc("GET /sse/clusters", s.sseHandlers.HandleClusters)
	s.mux.HandleFunc("POST /sse/recluster", s.sseHandlers.HandleRecluster)
	s.mux.HandleFunc("GET /sse/refresh-all", s.sseHandlers.HandleRefreshAll)

	// Chart pages
	s.mux.HandleFunc("GET /charts/projection", s.chartHandlers.HandleProjection)
	s.mux.HandleFunc("GET /charts/store-mix", s.chartHandlers.HandleStoreMix)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
