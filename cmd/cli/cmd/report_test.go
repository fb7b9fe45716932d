package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pdsa/internal/analysis"
)

func writeReport(t *testing.T, doc analysis.Document) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "analysis.json")
	if err := analysis.Write(path, doc); err != nil {
		t.Fatalf("failed to write analysis: %v", err)
	}
	return path
}

func runReport(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetViper()
	reportCmd.Flags().Set("top", "10")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs(append([]string{"report"}, args...))
	err := rootCmd.Execute()
	return stdout.String(), err
}

func sampleDocument() analysis.Document {
	return analysis.Document{
		CampaignID:      "campaign-1",
		GeneratedAt:     time.Now(),
		StopReason:      analysis.ReasonExhausted,
		Interrupted:     true,
		TotalRisk:       2.0,
		Threshold:       0.02,
		ComputationTime: 5400,
		WallTime:        600,
		Jobs:            120,
		Contingencies: []analysis.Contingency{
			{ID: "N1_BC_NORMAL", Risk: 0.5, Converged: true, StaticSamples: 50, Jobs: 60},
			{ID: "N2_BC_Ffrom_Sto", Risk: 1.5, Exhausted: true, StaticSamples: 10, Jobs: 40, Mean: 60, Max: 100},
			{ID: "BASE", Risk: 0, Converged: true, StaticSamples: 10, Jobs: 20},
		},
	}
}

func TestReportCommand(t *testing.T) {
	path := writeReport(t, sampleDocument())

	output, err := runReport(t, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"campaign-1", "exhausted", "120", "1h 30m", "10m 0s", "3 total, 2 converged, 1 exhausted"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}

	// ranked by risk, largest first
	first := strings.Index(output, "N2_BC_Ffrom_Sto")
	second := strings.Index(output, "N1_BC_NORMAL")
	if first < 0 || second < 0 || first > second {
		t.Errorf("expected contingencies ranked by risk, got: %s", output)
	}
	if !strings.Contains(output, "75.0") {
		t.Errorf("expected risk share of the top contingency, got: %s", output)
	}
}

func TestReportCommand_Top(t *testing.T) {
	path := writeReport(t, sampleDocument())

	output, err := runReport(t, path, "--top", "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "N2_BC_Ffrom_Sto") || strings.Contains(output, "N1_BC_NORMAL") {
		t.Errorf("expected only the top contingency, got: %s", output)
	}
}

func TestReportCommand_MissingFile(t *testing.T) {
	output, err := runReport(t, filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error for a missing analysis file")
	}
	if !strings.Contains(output, "Failed to read analysis") {
		t.Errorf("expected failure message, got: %s", output)
	}
}
