package analysis

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"pdsa/internal/contingency"
	"pdsa/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInput(reason string) Input {
	c1 := &contingency.Contingency{
		ID: "N1_AB_NORMAL", Kind: contingency.KindN1, Frequency: 0.1,
		Events: []contingency.Event{{Time: 1.1, Kind: contingency.EventDisconnect, Element: "AB"}},
	}
	c2 := &contingency.Contingency{ID: "N2_AB_Ffrom_Sto", Kind: contingency.KindN2, Frequency: 0.001}

	r1 := store.NewContingencyResults(c1)
	r1.Add(&store.Job{ID: 1, StaticID: "s1", Contingency: c1, Done: true, Elapsed: 2 * time.Second,
		Result: store.Result{LoadShedding: 20, Cost: 100}})
	r1.Add(&store.Job{ID: 2, StaticID: "s2", Contingency: c1, Done: true, Elapsed: 4 * time.Second,
		Result: store.Result{LoadShedding: store.LoadSheddingTimeout}})
	r1.Add(&store.Job{ID: 3, StaticID: "s3", Contingency: c1, Done: true, Elapsed: time.Second,
		Result: store.Result{Screened: true}})

	r2 := store.NewContingencyResults(c2)
	r2.Add(&store.Job{ID: 4, StaticID: "s1", Contingency: c2, Done: true, Elapsed: time.Second,
		Result: store.Result{LoadShedding: 100}})

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return Input{
		CampaignID: "c-1",
		StartedAt:  start,
		Now:        start.Add(90 * time.Second),
		StopReason: reason,
		Threshold:  0.01,
		Entries: []Entry{
			{Contingency: c1, Results: r1},
			{Contingency: c2, Results: r2},
		},
	}
}

func TestBuild(t *testing.T) {
	doc := Build(sampleInput(ReasonRunning))

	assert.Equal(t, "c-1", doc.CampaignID)
	assert.False(t, doc.Interrupted)
	assert.Equal(t, 4, doc.Jobs)
	assert.InDelta(t, 90.0, doc.WallTime, 1e-9)
	assert.InDelta(t, 8.0, doc.ComputationTime, 1e-9)
	require.Len(t, doc.Contingencies, 2)

	c1 := doc.Contingencies[0]
	assert.Equal(t, "N-1", c1.Kind)
	assert.Equal(t, 2, c1.StaticSamples, "the timed-out static id has no valid sample")
	assert.InDelta(t, 10.0, c1.Mean, 1e-9)
	assert.InDelta(t, 1.0, c1.Risk, 1e-9)
	assert.Equal(t, []string{"AB"}, c1.Disconnected)
	require.Len(t, c1.Statics, 3)
	assert.True(t, c1.Statics[1].Jobs[0].TimedOut)
	assert.True(t, c1.Statics[2].Jobs[0].Screened)

	assert.InDelta(t, 1.0+0.1, doc.TotalRisk, 1e-9)
}

func TestBuild_InterruptedFlag(t *testing.T) {
	assert.True(t, Build(sampleInput(ReasonInterrupted)).Interrupted)
	assert.False(t, Build(sampleInput(ReasonConverged)).Interrupted)

	in := sampleInput(ReasonConverged)
	in.Entries[1].Exhausted = true
	doc := Build(in)
	assert.True(t, doc.Interrupted, "an exhausted contingency makes the result incomplete")
	assert.True(t, doc.Contingencies[1].Exhausted)
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "analysis.json")
	doc := Build(sampleInput(ReasonConverged))

	require.NoError(t, Write(path, doc))
	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, doc.TotalRisk, got.TotalRisk)
	assert.Equal(t, doc.StopReason, got.StopReason)
	assert.Len(t, got.Contingencies, 2)

	// Rewriting replaces the file and leaves no temporary files behind.
	doc.StopReason = ReasonInterrupted
	require.NoError(t, Write(path, doc))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	got, err = Read(path)
	require.NoError(t, err)
	assert.Equal(t, ReasonInterrupted, got.StopReason)
}

func TestRead_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Read(path)
	assert.Error(t, err)

	_, err = Read(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
