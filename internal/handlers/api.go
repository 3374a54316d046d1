package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"mart-segments/internal/errors"
	"mart-segments/internal/observability"
	"mart-segments/internal/services"
)

// Responses change on recluster, so clients revalidate with the ETag.
const cacheControl = "no-cache"

type APIHandlers struct {
	analytics *services.Analytics
	logger    *slog.Logger
}

func NewAPIHandlers(analytics *services.Analytics, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		analytics: analytics,
		logger:    logger,
	}
}

// respond writes the result of load tagged with the active segmentation's
// ETag, or 304 when the client already holds it. The tag is read before the
// data so a concurrent recluster can only make it stale, never newer.
func (h *APIHandlers) respond(w http.ResponseWriter, r *http.Request, load func() (any, error)) {
	requestID := observability.GetRequestID(r.Context())
	etag, err := h.analytics.ETag()
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}
	headers := map[string]string{
		"Cache-Control": cacheControl,
		"ETag":          etag,
	}
	if r.Header.Get("If-None-Match") == etag {
		for key, value := range headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(http.StatusNotModified)
		return
	}

	data, err := load()
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}
	errors.WriteSuccessWithHeaders(w, data, headers)
}

func (h *APIHandlers) HandleOverview(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func() (any, error) { return h.analytics.Overview() })
}

func (h *APIHandlers) HandleSelection(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func() (any, error) { return h.analytics.Selection() })
}

func (h *APIHandlers) HandleProducts(w http.ResponseWriter, r *http.Request) {
	itemType := r.URL.Query().Get("item_type")
	h.respond(w, r, func() (any, error) { return h.analytics.Products(itemType) })
}

func (h *APIHandlers) HandleStores(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func() (any, error) { return h.analytics.StoreSummaries() })
}

func (h *APIHandlers) HandleStoreClusters(w http.ResponseWriter, r *http.Request) {
	store := r.URL.Query().Get("store")
	h.respond(w, r, func() (any, error) { return h.analytics.StoreClusters(store) })
}

func (h *APIHandlers) HandleClusterStats(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func() (any, error) { return h.analytics.ClusterStats() })
}

func (h *APIHandlers) HandleTypeDistribution(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func() (any, error) { return h.analytics.TypeDistribution() })
}

func (h *APIHandlers) HandleStoreTypeMix(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, func() (any, error) { return h.analytics.StoreTypeMix() })
}

type reclusterResponse struct {
	K        int     `json:"k"`
	Inertia  float64 `json:"inertia"`
	Products int     `json:"products"`
}

// HandleRecluster switches the active segmentation to ?k=.
func (h *APIHandlers) HandleRecluster(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())
	k, err := strconv.Atoi(r.URL.Query().Get("k"))
	if err != nil {
		errors.WriteError(w, h.logger, errors.BadRequest("k must be an integer").With("got %q", r.URL.Query().Get("k")), requestID)
		return
	}

	res, err := h.analytics.Recluster(r.Context(), k)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}
	h.logger.Info("reclustered", "k", res.K, "inertia", res.Inertia, "request_id", requestID)
	errors.WriteSuccess(w, reclusterResponse{K: res.K, Inertia: res.Inertia, Products: len(res.Products)})
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !h.analytics.Ready() {
		status = "loading"
	}

	healthData := map[string]string{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.analytics.Stats()

	errors.WriteSuccess(w, stats)
}
