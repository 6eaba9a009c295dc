package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/mulegraph/internal/bus"
	"github.com/opensource-finance/mulegraph/internal/domain"
	"github.com/opensource-finance/mulegraph/internal/engine"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	engine  *engine.Engine
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, eng *engine.Engine, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		engine:  eng,
		version: version,
	}
}

// BatchResponse wraps a Report with request metadata, mirroring the
// envelope shape the teacher's handlers attach to every response.
type BatchResponse struct {
	BatchID string        `json:"batchId"`
	Report  domain.Report `json:"report"`
	Meta    struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"meta"`
}

// SubmitBatch handles POST /batches: validates the submitted transactions,
// runs the full detection pipeline synchronously, persists the batch and
// resulting report, and returns the report in the response body.
func (h *Handler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req domain.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Transactions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transactions must not be empty",
		})
		return
	}

	if req.BatchID == "" {
		req.BatchID = uuid.New().String()
	}

	report, err := h.engine.Analyze(ctx, req.Transactions)
	if err != nil {
		slog.Error("batch analysis failed", "batch_id", req.BatchID, "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveBatch(ctx, tenantID, req.BatchID, &req); err != nil {
			slog.Error("failed to save batch", "batch_id", req.BatchID, "error", err)
		}
		if err := h.repo.SaveReport(ctx, tenantID, req.BatchID, report); err != nil {
			slog.Error("failed to save report", "batch_id", req.BatchID, "error", err)
		}
	}

	if h.bus != nil {
		if err := bus.PublishReport(ctx, h.bus, tenantID, report); err != nil {
			slog.Error("failed to publish analyzed event", "batch_id", req.BatchID, "error", err)
		}
	}

	resp := BatchResponse{BatchID: req.BatchID, Report: *report}
	resp.Meta.TraceID = traceID
	resp.Meta.TotalMs = time.Since(start).Milliseconds()
	resp.Meta.Version = h.version

	slog.Info("batch analyzed",
		"batch_id", req.BatchID,
		"tenant_id", tenantID,
		"tx_count", len(req.Transactions),
		"rings_detected", report.Summary.FraudRingsDetected,
		"duration_ms", resp.Meta.TotalMs,
	)

	writeJSON(w, http.StatusOK, resp)
}

// SubmitBatchAsync handles POST /batches/async: publishes the batch to the
// event bus for worker-side processing and returns immediately.
func (h *Handler) SubmitBatchAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.Transactions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transactions must not be empty",
		})
		return
	}

	if req.BatchID == "" {
		req.BatchID = uuid.New().String()
	}

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	if err := bus.PublishBatchSubmitted(ctx, h.bus, tenantID, &req); err != nil {
		slog.Error("failed to publish batch", "batch_id", req.BatchID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to submit batch",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"batchId": req.BatchID,
		"status":  "submitted",
	})
}

// GetBatch retrieves a previously submitted batch by ID.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	batchID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	batch, err := h.repo.GetBatch(ctx, tenantID, batchID)
	if err != nil {
		slog.Error("failed to get batch", "id", batchID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "batch not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, batch)
}

// GetReport retrieves the analysis report for a previously submitted batch.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	batchID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	report, err := h.repo.GetReport(ctx, tenantID, batchID)
	if err != nil {
		slog.Error("failed to get report", "id", batchID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "report not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// ListBatches returns batch IDs submitted since an optional `since` query
// parameter (RFC3339 timestamp; defaults to 24h ago).
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	since := time.Now().Add(-24 * time.Hour)
	if s := r.URL.Query().Get("since"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "since must be an RFC3339 timestamp",
			})
			return
		}
		since = parsed
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	ids, err := h.repo.ListBatchesSince(ctx, tenantID, since)
	if err != nil {
		slog.Error("failed to list batches", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list batches",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"batchIds": ids,
		"count":    len(ids),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
