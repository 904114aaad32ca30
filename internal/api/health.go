package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// Pinger covers anything with connectivity worth reporting in the health
// check (sqlx DB, redis client)
type Pinger interface {
	Ping() error
}

// ServiceStatus reports the reachability of one backing service
type ServiceStatus struct {
	Status  string `json:"status"`
	Details string `json:"details"`
}

// HealthCheckResponse is the GET /healthCheck payload
type HealthCheckResponse struct {
	Status   string                   `json:"status"`
	Services map[string]ServiceStatus `json:"services"`
	UpSince  time.Time                `json:"up_since"`
	Uptime   string                   `json:"uptime"`
}

// HealthCheckHandler handles GET /healthCheck
func HealthCheckHandler(cycleStore Pinger, upSince time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {

		services := make(map[string]ServiceStatus)

		status := "ok"
		details := "Cycle store connected"
		if cycleStore == nil {
			details = "Cycle store not configured"
		} else if err := cycleStore.Ping(); err != nil {
			status = "down"
			details = err.Error()
		}
		services["cycle_store"] = ServiceStatus{
			Status:  status,
			Details: details,
		}

		overallStatus := "ok"
		for _, svc := range services {
			if svc.Status != "ok" {
				overallStatus = "down"
				break
			}
		}

		now := time.Now()
		uptime := now.Sub(upSince).Round(time.Second).String()

		resp := HealthCheckResponse{
			Services: services,
			Status:   overallStatus,
			UpSince:  upSince,
			Uptime:   uptime,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
