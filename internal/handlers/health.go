package handlers

import (
	"net/http"
	"time"

	applog "larder/internal/log"
)

type healthResponse struct {
	Status   string    `json:"status"`
	Database string    `json:"database"`
	Time     time.Time `json:"time"`
}

// Health reports readiness for infrastructure probes. The catalog database
// must answer a ping for the service to be considered ready.
func Health(w http.ResponseWriter, r *http.Request) {
	applog.Debug(r.Context(), "health check requested", "method", r.Method)
	resp := healthResponse{
		Status:   "ok",
		Database: "ok",
		Time:     time.Now().UTC(),
	}
	status := http.StatusOK

	switch {
	case catalogService == nil:
		resp.Status, resp.Database = "unavailable", "unconfigured"
		status = http.StatusServiceUnavailable
	default:
		if err := catalogService.Ping(r.Context()); err != nil {
			applog.Warn(r.Context(), "database ping failed", "error", err)
			resp.Status, resp.Database = "unavailable", "unreachable"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
	applog.Debug(r.Context(), "health check responded", "status", resp.Status)
}
