package simulation

import (
	"strings"
	"testing"

	"pdsa/internal/config"
	"pdsa/internal/contingency"
	"pdsa/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeline(t *testing.T) {
	input := `
0.000 | SIM | simulation started
1.100 | AB | line disconnected

2.050 | G1_UVA | under-voltage armed
2.300 | G1_UVA | under-voltage disarmed
5.0 | truncated`

	events, err := ParseTimeline(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, TimelineEvent{Time: 1.1, Model: "AB", Event: "line disconnected"}, events[1])
	assert.True(t, events[1].Trip())
	assert.True(t, events[2].Armed())
	assert.False(t, events[3].Armed())
	assert.True(t, events[3].Disarmed())
}

func TestParseTimeline_BadTime(t *testing.T) {
	_, err := ParseTimeline(strings.NewReader("abc | X | tripped\n"))
	assert.Error(t, err)
}

func TestClassifyPriority(t *testing.T) {
	refs := []string{"G1", "G2"}
	blackout := []TimelineEvent{
		{Time: 2, Model: "G1", Event: "generator disconnected"},
		{Time: 3, Model: "G2", Event: "generator tripped"},
	}
	partial := blackout[:1]

	tests := []struct {
		name string
		o    Outcome
		want float64
	}{
		{"computed", Outcome{Status: RunSucceeded, FinalState: shedTenPercent}, 10},
		{"blackout overrides computation", Outcome{Status: RunSucceeded, Timeline: blackout, FinalState: shedTenPercent}, store.LoadSheddingBlackout},
		{"timeout overrides blackout", Outcome{Status: RunTimedOut, Timeline: blackout}, store.LoadSheddingTimeout},
		{"timeout", Outcome{Status: RunTimedOut, Timeline: partial, FinalState: shedTenPercent}, store.LoadSheddingTimeout},
		{"failure without final state", Outcome{Status: RunFailed, Timeline: partial}, store.LoadSheddingDiverged},
		{"failure with final state", Outcome{Status: RunFailed, FinalState: shedTenPercent}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Classify(tt.o, refs), 1e-9)
		})
	}
}

func TestBlackout(t *testing.T) {
	twice := []TimelineEvent{
		{Time: 2, Model: "G1", Event: "generator disconnected"},
		{Time: 2.5, Model: "G1", Event: "generator disconnected"},
	}
	assert.False(t, Blackout(twice, []string{"G1", "G2"}), "one machine tripping twice is not a blackout")
	assert.False(t, Blackout(twice, nil))
	assert.True(t, Blackout(twice, []string{"G1"}))
}

func TestUncertainOrdering(t *testing.T) {
	near := []TimelineEvent{
		{Time: 2.03, Model: "B", Event: "tripped"},
		{Time: 2.00, Model: "A", Event: "tripped"},
	}
	assert.False(t, UncertainOrdering(near, 0.02))
	assert.True(t, UncertainOrdering(near, 0.05))

	sameModel := []TimelineEvent{
		{Time: 2.00, Model: "A", Event: "zone 1 tripped"},
		{Time: 2.01, Model: "A", Event: "zone 2 tripped"},
	}
	assert.False(t, UncertainOrdering(sameModel, 0.05))

	armedOnly := []TimelineEvent{
		{Time: 2.00, Model: "A", Event: "armed"},
		{Time: 2.00, Model: "B", Event: "tripped"},
	}
	assert.False(t, UncertainOrdering(armedOnly, 0.05))
}

func TestMissingEvents(t *testing.T) {
	assert.False(t, MissingEvents([]TimelineEvent{
		{Time: 1, Model: "UVA", Event: "armed"},
		{Time: 2, Model: "UVA", Event: "tripped"},
	}))
	assert.False(t, MissingEvents([]TimelineEvent{
		{Time: 1, Model: "UVA", Event: "armed"},
		{Time: 2, Model: "UVA", Event: "disarmed"},
	}))
	assert.True(t, MissingEvents([]TimelineEvent{
		{Time: 1, Model: "UVA", Event: "armed"},
		{Time: 2, Model: "OTHER", Event: "tripped"},
	}))
}

func TestFinalStateLoadShedding(t *testing.T) {
	assert.InDelta(t, 10.0, shedTenPercent.LoadShedding(), 1e-9)
	assert.Zero(t, (&FinalState{}).LoadShedding())
	over := &FinalState{Loads: []LoadState{{P0: 100, P: 120}}}
	assert.Zero(t, over.LoadShedding())
	gone := &FinalState{Loads: []LoadState{{P0: 100, P: -3}}}
	assert.InDelta(t, 100.0, gone.LoadShedding(), 1e-9)
}

func TestCost(t *testing.T) {
	cfg := config.CostConfig{ValueOfLostLoad: 10000, OutageHours: 2}
	assert.InDelta(t, 0.25*800*2*10000, Cost(25, 800, cfg), 1e-6)
	assert.InDelta(t, 800*2*10000.0, Cost(store.LoadSheddingTimeout, 800, cfg), 1e-6)
}

func TestProtectionFor(t *testing.T) {
	special := lineJob(store.SpecialSeed)
	p := protectionFor(special)
	assert.True(t, p.Nominal)
	assert.Equal(t, 1.0, p.RelayDelayScale)
	assert.Equal(t, map[string]float64{"AB": 0}, p.BreakerOffsets)

	a, b := protectionFor(lineJob(42)), protectionFor(lineJob(42))
	assert.Equal(t, a, b, "same seed gives the same timings")
	assert.False(t, a.Nominal)
	assert.InDelta(t, 1.0, a.RelayDelayScale, relayScaleSpread)
	assert.GreaterOrEqual(t, a.BreakerOffsets["AB"], breakerJitterMin)
	assert.LessOrEqual(t, a.BreakerOffsets["AB"], breakerJitterMax)

	c := protectionFor(lineJob(43))
	assert.NotEqual(t, a.BreakerOffsets["AB"], c.BreakerOffsets["AB"])
}

func TestLastEventTime(t *testing.T) {
	assert.InDelta(t, 1.1, lastEventTime(lineJob(1)), 1e-12)
	base := &store.Job{Contingency: &contingency.Contingency{ID: contingency.BaseID}}
	assert.Zero(t, lastEventTime(base))
}
