package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"skywatch/indexer/internal/index"
	"skywatch/indexer/internal/models"
)

// FlightLookupHandler handles GET /api/v1/flights/{flight_id}, reading the
// indexed record straight from the store
func FlightLookupHandler(writer index.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flightID := strings.ToLower(chi.URLParam(r, "flight_id"))

		ref := models.FlightRef{ID: flightID}
		if err := ref.Validate(); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid flight id")
			return
		}

		record, err := writer.Get(r.Context(), flightID)
		if err != nil {
			respondWithError(w, http.StatusBadGateway, "Index store unavailable")
			return
		}
		if record == nil {
			respondWithError(w, http.StatusNotFound, "Flight not indexed")
			return
		}

		respondWithSuccess(w, http.StatusOK, record)
	}
}
