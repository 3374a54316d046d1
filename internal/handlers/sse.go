package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/starfederation/datastar-go/datastar"

	"mart-segments/internal/errors"
	"mart-segments/internal/models"
	"mart-segments/internal/services"
	"mart-segments/internal/ui/templates"
)

const maxTableRows = 50

type SSEHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewSSEHandlers(analytics *services.Analytics, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

// reclusterSignals is the part of the page state the recluster action reads.
type reclusterSignals struct {
	K int `json:"k"`
}

func (h *SSEHandlers) renderStoreMix(ctx context.Context, stores []models.StoreSummary, k int) (string, error) {
	return templates.RenderString(ctx, templates.StoreMixTable(stores, k, maxTableRows))
}

func (h *SSEHandlers) clusterSignals() ([]byte, error) {
	res, err := h.analytics.Result()
	if err != nil {
		return nil, err
	}
	sel, err := h.analytics.Selection()
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"activeK":          res.K,
		"selection":        sel,
		"clusterStats":     res.ClusterStats,
		"typeDistribution": res.TypeDistribution,
	})
}

// pushStoreMix patches the store table for the active segmentation.
func (h *SSEHandlers) pushStoreMix(ctx context.Context, sse *datastar.ServerSentEventGenerator) error {
	res, err := h.analytics.Result()
	if err != nil {
		return err
	}
	html, err := h.renderStoreMix(ctx, res.Stores, res.K)
	if err != nil {
		return fmt.Errorf("render store mix: %w", err)
	}
	return sse.PatchElements(html)
}

// pushClusters patches the cluster signals and the cluster table.
func (h *SSEHandlers) pushClusters(ctx context.Context, sse *datastar.ServerSentEventGenerator) error {
	signals, err := h.clusterSignals()
	if err != nil {
		return err
	}
	if err := sse.PatchSignals(signals); err != nil {
		return err
	}
	stats, err := h.analytics.ClusterStats()
	if err != nil {
		return err
	}
	html, err := templates.RenderString(ctx, templates.ClusterTable(stats))
	if err != nil {
		return fmt.Errorf("render cluster table: %w", err)
	}
	return sse.PatchElements(html)
}

// pushStatus reports a message in the recluster status line.
func (h *SSEHandlers) pushStatus(ctx context.Context, sse *datastar.ServerSentEventGenerator, message string, failed bool) {
	html, err := templates.RenderString(ctx, templates.Status(message, failed))
	if err != nil {
		h.logger.Error("render status", "error", err)
		return
	}
	if err := sse.PatchElements(html); err != nil {
		h.logger.Warn("patch status", "error", err)
	}
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandlers) HandleStoreMix(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	if err := h.pushStoreMix(r.Context(), sse); err != nil {
		h.logger.Error("push store mix", "error", err)
		h.pushStatus(r.Context(), sse, errorMessage(err), true)
	}

	flush(w)
}

func (h *SSEHandlers) HandleClusters(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)

	if err := h.pushClusters(r.Context(), sse); err != nil {
		h.logger.Error("push clusters", "error", err)
		h.pushStatus(r.Context(), sse, errorMessage(err), true)
	}

	flush(w)
}

// HandleRecluster reads the k signal, refits and pushes the new tables and
// signals. Validation failures are reported in the status line.
func (h *SSEHandlers) HandleRecluster(w http.ResponseWriter, r *http.Request) {
	var signals reclusterSignals
	readErr := datastar.ReadSignals(r, &signals)

	sse := datastar.NewSSE(w, r)
	defer flush(w)

	if readErr != nil {
		h.logger.Warn("read recluster signals", "error", readErr)
		h.pushStatus(r.Context(), sse, "could not read the requested cluster count", true)
		return
	}

	res, err := h.analytics.Recluster(r.Context(), signals.K)
	if err != nil {
		h.logger.Warn("recluster rejected", "k", signals.K, "error", err)
		h.pushStatus(r.Context(), sse, errorMessage(err), true)
		return
	}
	h.logger.Info("reclustered", "k", res.K, "inertia", res.Inertia)

	if err := h.pushStoreMix(r.Context(), sse); err != nil {
		h.logger.Error("push store mix", "error", err)
		return
	}
	if err := h.pushClusters(r.Context(), sse); err != nil {
		h.logger.Error("push clusters", "error", err)
		return
	}
	h.pushStatus(r.Context(), sse, fmt.Sprintf("segmented %d products into %d clusters", len(res.Products), res.K), false)
}

func (h *SSEHandlers) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	defer flush(w)

	if err := h.pushStoreMix(r.Context(), sse); err != nil {
		h.logger.Error("push store mix", "error", err)
		h.pushStatus(r.Context(), sse, errorMessage(err), true)
		return
	}
	if err := h.pushClusters(r.Context(), sse); err != nil {
		h.logger.Error("push clusters", "error", err)
	}
}

// errorMessage is the user-facing text for err.
func errorMessage(err error) string {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		if appErr.Details != "" {
			return appErr.Message + ": " + appErr.Details
		}
		return appErr.Message
	}
	return "internal error"
}
