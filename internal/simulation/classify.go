package simulation

import (
	"cmp"
	"slices"

	"pdsa/internal/store"
)

// RunStatus is how the simulator process ended.
type RunStatus int

const (
	RunSucceeded RunStatus = iota
	RunFailed
	RunTimedOut
)

func (s RunStatus) String() string {
	switch s {
	case RunSucceeded:
		return "succeeded"
	case RunFailed:
		return "failed"
	case RunTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// Outcome gathers everything read back from a job directory.
type Outcome struct {
	Status     RunStatus
	Timeline   []TimelineEvent
	FinalState *FinalState
}

// Blackout reports whether every synchronous machine on the shared frequency
// reference tripped.
func Blackout(timeline []TimelineEvent, referenceMachines []string) bool {
	if len(referenceMachines) == 0 {
		return false
	}
	tripped := make(map[string]bool)
	for _, e := range timeline {
		if e.Trip() && slices.Contains(referenceMachines, e.Model) {
			tripped[e.Model] = true
		}
	}
	return len(tripped) == len(referenceMachines)
}

// Classify turns an outcome into a load-shedding value. A run killed after the
// timeout is always the timeout sentinel, even when its partial timeline shows a
// blackout. Otherwise a detected blackout overrides the computed value, failures
// without a final state get the divergence sentinel, and anything else is
// computed from the final state.
func Classify(o Outcome, referenceMachines []string) float64 {
	switch {
	case o.Status == RunTimedOut:
		return store.LoadSheddingTimeout
	case Blackout(o.Timeline, referenceMachines):
		return store.LoadSheddingBlackout
	case o.FinalState == nil:
		return store.LoadSheddingDiverged
	}
	return o.FinalState.LoadShedding()
}

// UncertainOrdering reports two trips of different models within window seconds,
// whose order could flip under protection timing jitter.
func UncertainOrdering(timeline []TimelineEvent, window float64) bool {
	var trips []TimelineEvent
	for _, e := range timeline {
		if e.Trip() {
			trips = append(trips, e)
		}
	}
	slices.SortStableFunc(trips, func(a, b TimelineEvent) int {
		return cmp.Compare(a.Time, b.Time)
	})
	for i := 1; i < len(trips); i++ {
		for j := i - 1; j >= 0 && trips[i].Time-trips[j].Time <= window; j-- {
			if trips[i].Model != trips[j].Model {
				return true
			}
		}
	}
	return false
}

// MissingEvents reports a protection that armed and neither tripped nor reset
// before the end of the run.
func MissingEvents(timeline []TimelineEvent) bool {
	pending := make(map[string]bool)
	for _, e := range timeline {
		switch {
		case e.Armed():
			pending[e.Model] = true
		case e.Trip(), e.Disarmed():
			delete(pending, e.Model)
		}
	}
	return len(pending) > 0
}
