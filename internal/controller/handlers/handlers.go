// Package handlers contains HTTP handlers for the campaign status API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"pdsa/pkg/api"

	"github.com/google/uuid"
)

// StatusProvider exposes the live campaign snapshot. scheduler.Master implements it.
type StatusProvider interface {
	Status() api.CampaignStatus
}

// ResultStore reads the aggregates kept by the result sink. postgres.Store implements it.
type ResultStore interface {
	ContingencyStats(ctx context.Context, campaignID uuid.UUID) ([]api.ContingencyResult, error)
	Ping(ctx context.Context) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	status  StatusProvider
	results ResultStore
}

// New creates a new Handlers instance. results may be nil when no database is configured.
func New(status StatusProvider, results ResultStore) *Handlers {
	return &Handlers{status: status, results: results}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}
