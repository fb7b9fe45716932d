package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pdsa/pkg/api"

	"github.com/spf13/viper"
)

func statusServer(t *testing.T, resultsCode int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET method, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/status":
			json.NewEncoder(w).Encode(api.CampaignStatus{
				CampaignID:    "6f1c2e0a-campaign",
				State:         api.StateRunning,
				TotalRisk:     12.345,
				Threshold:     0.123,
				Rounds:        7,
				JobsCompleted: 420,
				JobsInFlight:  8,
				Contingencies: 19,
				Converged:     15,
				Unconverged:   3,
				Exhausted:     1,
				StartedAt:     time.Now().Add(-90 * time.Minute),
			})
		case "/results":
			if resultsCode != http.StatusOK {
				w.WriteHeader(resultsCode)
				json.NewEncoder(w).Encode(api.ErrorResponse{Error: "Result sink not configured"})
				return
			}
			json.NewEncoder(w).Encode(api.ResultsResponse{
				CampaignID: "6f1c2e0a-campaign",
				Results: []api.ContingencyResult{
					{ContingencyID: "N1_AB1_DELAYED", Jobs: 30, MeanShedding: 12.5, Timeouts: 2},
				},
			})
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func runStatus(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	resetViper()
	viper.Set("url", url)
	statusCmd.Flags().Set("results", "false")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs(append([]string{"status"}, args...))
	err := rootCmd.Execute()
	return stdout.String(), err
}

func TestStatusCommand_Success(t *testing.T) {
	server := statusServer(t, http.StatusOK)

	output, err := runStatus(t, server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"6f1c2e0a-campaign", "running", "12.345", "420 done", "15 converged", "1h ago"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "CONTINGENCY") {
		t.Errorf("expected no results table without --results, got: %s", output)
	}
}

func TestStatusCommand_WithResults(t *testing.T) {
	server := statusServer(t, http.StatusOK)

	output, err := runStatus(t, server.URL, "--results")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "N1_AB1_DELAYED") || !strings.Contains(output, "12.50") {
		t.Errorf("expected results row in output, got: %s", output)
	}
}

func TestStatusCommand_ResultsNotConfigured(t *testing.T) {
	server := statusServer(t, http.StatusNotImplemented)

	output, err := runStatus(t, server.URL, "--results")
	if err == nil {
		t.Fatal("expected error when the sink is not configured")
	}
	if !strings.Contains(output, "Result sink not configured") {
		t.Errorf("expected API error message in output, got: %s", output)
	}
}

func TestStatusCommand_ServerDown(t *testing.T) {
	output, err := runStatus(t, "http://127.0.0.1:1")
	if err == nil {
		t.Fatal("expected error when the controller is unreachable")
	}
	if !strings.Contains(output, "Failed to get status") {
		t.Errorf("expected failure message, got: %s", output)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m 30s"},
		{3*time.Hour + 5*time.Minute, "3h 5m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
