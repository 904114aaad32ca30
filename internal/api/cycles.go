package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"skywatch/indexer/internal/constants"
	"skywatch/indexer/internal/db/repositories"
	"skywatch/indexer/internal/jobs"
)

// CyclesHandler handles manual cycle triggering and cycle result queries
type CyclesHandler struct {
	syncJob     *jobs.FlightSyncJob
	historyRepo *repositories.CycleHistoryRepo
}

// NewCyclesHandler creates a new cycles handler
func NewCyclesHandler(syncJob *jobs.FlightSyncJob, historyRepo *repositories.CycleHistoryRepo) *CyclesHandler {
	return &CyclesHandler{
		syncJob:     syncJob,
		historyRepo: historyRepo,
	}
}

// TriggerCycleRequest optionally overrides cycle knobs for a manual run
type TriggerCycleRequest struct {
	MaxConcurrency int    `json:"max_concurrency,omitempty"`
	MaxRetries     *int   `json:"max_retries,omitempty"`
	PerItemTimeout string `json:"per_item_timeout,omitempty"`
}

// TriggerCycle handles POST /api/v1/cycles/run. The cycle runs
// synchronously; per-item failures come back as data in the result.
func (h *CyclesHandler) TriggerCycle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TriggerCycleRequest
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
				respondWithError(w, http.StatusBadRequest, "Invalid request body")
				return
			}
		}

		cfg := jobs.DefaultCycleConfig()
		if req.MaxConcurrency > 0 {
			cfg.MaxConcurrency = req.MaxConcurrency
		}
		if req.MaxRetries != nil && *req.MaxRetries >= 0 {
			cfg.MaxRetries = *req.MaxRetries
		}
		if req.PerItemTimeout != "" {
			d, err := time.ParseDuration(req.PerItemTimeout)
			if err != nil {
				respondWithError(w, http.StatusBadRequest, "Invalid per_item_timeout")
				return
			}
			cfg.PerItemTimeout = d
		}

		log.Printf("[CyclesHandler] Cycle manually triggered from %s", r.RemoteAddr)

		// The cycle should outlive the HTTP request if the client drops;
		// its own CycleTimeout bounds it.
		result, err := h.syncJob.RunCycle(context.Background(), cfg, constants.TriggerManual)
		if err != nil {
			respondWithError(w, http.StatusBadGateway, fmt.Sprintf("Cycle failed: %v", err))
			return
		}

		respondWithSuccess(w, http.StatusOK, result)
	}
}

// LatestCycle handles GET /api/v1/cycles/latest
func (h *CyclesHandler) LatestCycle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.historyRepo == nil {
			respondWithError(w, http.StatusNotFound, "Cycle history not configured")
			return
		}

		result, err := h.historyRepo.GetLatest(r.Context(), constants.CycleEventFlightIndex)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "Failed to load cycle history")
			return
		}
		if result == nil {
			respondWithError(w, http.StatusNotFound, "No cycles recorded yet")
			return
		}

		respondWithSuccess(w, http.StatusOK, result)
	}
}
