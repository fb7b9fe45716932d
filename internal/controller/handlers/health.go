package handlers

import (
	"net/http"

	"pdsa/pkg/api"
)

// Healthz is a liveness probe.
// It returns 200 OK if the server is running.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Readyz is a readiness probe.
// The campaign is ready once it left INIT and, when configured, the database answers.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.status.Status().State == api.StateInit {
		h.httpError(w, "Campaign not started", http.StatusServiceUnavailable)
		return
	}
	if h.results != nil {
		if err := h.results.Ping(r.Context()); err != nil {
			h.httpError(w, "Database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	h.respondJson(w, http.StatusOK, map[string]string{"status": "ready"})
}
