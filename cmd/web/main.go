package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"mart-segments/internal/config"
	"mart-segments/internal/middleware"
	"mart-segments/internal/observability"
	"mart-segments/internal/server"
	"mart-segments/internal/services"
	"mart-segments/internal/ui/templates"
)

const (
	renderTimeout = 10 * time.Second
	loadTimeout   = 5 * time.Minute
	pageTitle     = "Big Mart product segments"
)

// dashboardHandler renders the page shell; data arrives over SSE.
func dashboardHandler(analytics *services.Analytics, pipeline config.PipelineConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
		defer cancel()

		page := templates.Page{
			Title: pageTitle,
			MinK:  pipeline.MinK,
			MaxK:  pipeline.MaxK,
		}
		if res, err := analytics.Result(); err == nil {
			page.K = res.K
		}
		if sel, err := analytics.Selection(); err == nil {
			page.SelectedK = sel.K
		}
		if types, err := analytics.ItemTypes(); err == nil {
			page.ItemTypes = types
		}
		if source, ok := analytics.Stats()["source"].(string); ok {
			page.Source = source
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		if err := templates.Dashboard(page).Render(ctx, w); err != nil {
			http.Error(w, "render error", http.StatusInternalServerError)
		}
	}
}

func main() {
	configPath := flag.String("config", "", "path to a config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"config", cfg,
	)

	analytics, err := services.NewAnalytics(cfg.Pipeline, cfg.Data.CacheDir, logger)
	if err != nil {
		logger.Error("failed to create analytics service", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	start := time.Now()
	if err := analytics.LoadFile(ctx, cfg.Data.InputFile); err != nil {
		logger.Error("failed to load dataset", "file", cfg.Data.InputFile, "error", err)
		os.Exit(1)
	}
	logger.Info("dataset segmented", "duration", time.Since(start))

	templateHandlers := &server.TemplateHandlers{
		Dashboard: dashboardHandler(analytics, cfg.Pipeline),
	}

	srv := server.NewServer(analytics, logger, templateHandlers)

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
	)

	handler := middlewareChain(srv)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	gracefulServer.RegisterShutdownHook(func(ctx context.Context) error {
		stats := analytics.Stats()
		logger.Info("shutting down analytics service",
			"reclusters", humanize.Comma(stats["reclusters"].(int64)),
			"memo_hits", humanize.Comma(stats["memo_hits"].(int64)),
		)
		return nil
	})

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
