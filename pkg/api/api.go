// Package api contains shared JSON response structs.
// This package is shared between the CLI and Controller.
package api

import "time"

// Campaign states reported by the controller.
const (
	StateInit       = "init"
	StateRunning    = "running"
	StateDraining   = "draining"
	StateTerminated = "terminated"
)

// CampaignStatus is the response body of GET /status.
type CampaignStatus struct {
	CampaignID string `json:"campaign_id"`
	State      string `json:"state"`
	StopReason string `json:"stop_reason"`

	TotalRisk float64 `json:"total_risk"`
	Threshold float64 `json:"threshold"`

	Rounds        int `json:"rounds"`
	JobsCompleted int `json:"jobs_completed"`
	JobsInFlight  int `json:"jobs_in_flight"`
	QueueDepth    int `json:"queue_depth"`
	FollowUps     int `json:"follow_ups"`

	Contingencies int `json:"contingencies"`
	Waiting       int `json:"waiting"`
	Unconverged   int `json:"unconverged"`
	Converged     int `json:"converged"`
	Exhausted     int `json:"exhausted"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContingencyResult is one row of GET /results, aggregated by the result sink.
type ContingencyResult struct {
	ContingencyID string  `json:"contingency_id"`
	Jobs          int64   `json:"jobs"`
	MeanShedding  float64 `json:"mean_load_shedding"`
	Timeouts      int64   `json:"timeouts"`
}

// ResultsResponse is the response body of GET /results.
type ResultsResponse struct {
	CampaignID string              `json:"campaign_id"`
	Results    []ContingencyResult `json:"results"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
