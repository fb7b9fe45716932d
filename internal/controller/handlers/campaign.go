package handlers

import (
	"net/http"

	"pdsa/pkg/api"

	"github.com/google/uuid"
)

// GetStatus returns the latest campaign snapshot.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, h.status.Status())
}

// GetResults returns per-contingency aggregates from the result sink.
func (h *Handlers) GetResults(w http.ResponseWriter, r *http.Request) {
	if h.results == nil {
		h.httpError(w, "Result sink not configured", http.StatusNotImplemented)
		return
	}

	id, err := uuid.Parse(h.status.Status().CampaignID)
	if err != nil {
		h.httpError(w, "Invalid campaign id", http.StatusInternalServerError)
		return
	}

	results, err := h.results.ContingencyStats(r.Context(), id)
	if err != nil {
		h.httpError(w, "Failed to read results", http.StatusServiceUnavailable)
		return
	}
	if results == nil {
		results = []api.ContingencyResult{}
	}

	h.respondJson(w, http.StatusOK, api.ResultsResponse{
		CampaignID: id.String(),
		Results:    results,
	})
}
