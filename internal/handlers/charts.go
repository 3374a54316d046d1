package handlers

import (
	"log/slog"
	"net/http"

	"mart-segments/internal/charts"
	"mart-segments/internal/errors"
	"mart-segments/internal/observability"
	"mart-segments/internal/segmentation"
	"mart-segments/internal/services"
)

type ChartHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewChartHandlers(analytics *services.Analytics, logger *slog.Logger) *ChartHandlers {
	return &ChartHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

// HandleProjection renders the PCA scatter, optionally scoped to ?item_type=.
// The filter only affects what is drawn; clusters are fit on all products.
func (h *ChartHandlers) HandleProjection(w http.ResponseWriter, r *http.Request) {
	itemType := r.URL.Query().Get("item_type")
	res, err := h.analytics.Result()
	if err != nil {
		errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
		return
	}

	subtitle := "All item types"
	if itemType != "" && itemType != segmentation.AllItemTypes {
		subtitle = itemType
	}
	products := segmentation.FilterByItemType(res.Products, itemType)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := charts.Projection(products, res.K, subtitle).Render(w); err != nil {
		h.logger.Error("render projection chart", "error", err)
	}
}

func (h *ChartHandlers) HandleStoreMix(w http.ResponseWriter, r *http.Request) {
	res, err := h.analytics.Result()
	if err != nil {
		errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := charts.StoreMix(res.Stores, res.K).Render(w); err != nil {
		h.logger.Error("render store mix chart", "error", err)
	}
}
