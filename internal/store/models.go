// Package store contains the campaign data model: jobs, results and the per-contingency
// accumulators owned by the master.
package store

import (
	"fmt"
	"time"

	"pdsa/internal/contingency"
)

// Reserved load-shedding values outside the physical 0-100 % range.
const (
	LoadSheddingBlackout = 100.0
	LoadSheddingDiverged = 100.1
	LoadSheddingTimeout  = 100.2
)

// SpecialSeed is the dynamic seed of the first run of a (contingency, static id) pair.
const SpecialSeed uint64 = 0

// Result is the consequence of one completed job. It is produced once and never modified.
type Result struct {
	LoadShedding float64 // percent, or one of the reserved sentinels
	Cost         float64 // monetary consequence
	// Screened is set when the screening oracle declared the job secure and no
	// simulation was run.
	Screened bool
}

// TimedOut reports whether the simulator was killed after the timeout.
func (r Result) TimedOut() bool {
	return r.LoadShedding == LoadSheddingTimeout
}

// Diverged reports whether the simulator failed to converge numerically.
func (r Result) Diverged() bool {
	return r.LoadShedding == LoadSheddingDiverged
}

// Consequence is the load shedding clamped to the physical range; sentinels count as 100 %.
func (r Result) Consequence() float64 {
	return min(max(r.LoadShedding, 0), 100)
}

// Outcome is a short label used in logs and metrics.
func (r Result) Outcome() string {
	switch {
	case r.TimedOut():
		return "timeout"
	case r.Diverged():
		return "diverged"
	case r.Screened:
		return "screened"
	case r.LoadShedding >= LoadSheddingBlackout:
		return "blackout"
	}
	return "simulated"
}

// Job is one simulation of a contingency on a static operating point with a dynamic seed.
type Job struct {
	ID          int64
	StaticID    string
	Seed        uint64
	Contingency *contingency.Contingency

	// Set by the worker on completion.
	Elapsed  time.Duration
	Done     bool
	TimedOut bool
	Result   Result

	// Special job findings: protection events close enough in time that the
	// seed could reorder them, or protections that picked up without tripping.
	UncertainOrdering bool
	MissingEvents     bool
}

// IsSpecial reports whether this is the seed-zero run of its (contingency, static id) pair.
func (j *Job) IsSpecial() bool {
	return j.Seed == SpecialSeed
}

// Uncertain reports whether the special job found the operating point sensitive
// to protection timing.
func (j *Job) Uncertain() bool {
	return j.UncertainOrdering || j.MissingEvents
}

func (j *Job) String() string {
	return fmt.Sprintf("job#%d[%s/%s/%d]", j.ID, j.Contingency.ID, j.StaticID, j.Seed)
}
