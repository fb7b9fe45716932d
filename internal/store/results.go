package store

import (
	"time"

	"pdsa/internal/contingency"
)

// StaticResults accumulates the completed jobs of one static id.
type StaticResults struct {
	ID   string
	Jobs []*Job
	// Sums over valid samples only (timeouts excluded).
	Sum   float64
	SumSq float64
	N     int
	Max   float64

	Elapsed   time.Duration
	Uncertain bool
}

// Mean of the valid samples, 0 without any.
func (s *StaticResults) Mean() float64 {
	if s.N == 0 {
		return 0
	}
	return s.Sum / float64(s.N)
}

// ContingencyResults holds everything completed for one contingency.
// Only the master mutates it.
type ContingencyResults struct {
	Contingency *contingency.Contingency

	order   []string
	byID    map[string]*StaticResults
	jobs    int
	Elapsed time.Duration
}

// NewContingencyResults returns an empty accumulator.
func NewContingencyResults(c *contingency.Contingency) *ContingencyResults {
	return &ContingencyResults{
		Contingency: c,
		byID:        make(map[string]*StaticResults),
	}
}

// Add records a completed job. Timed-out jobs are kept for accounting but do not
// enter the sums.
func (cr *ContingencyResults) Add(job *Job) {
	s, ok := cr.byID[job.StaticID]
	if !ok {
		s = &StaticResults{ID: job.StaticID}
		cr.byID[job.StaticID] = s
		cr.order = append(cr.order, job.StaticID)
	}

	s.Jobs = append(s.Jobs, job)
	s.Elapsed += job.Elapsed
	cr.Elapsed += job.Elapsed
	cr.jobs++

	if job.IsSpecial() && job.Uncertain() {
		s.Uncertain = true
	}
	if job.Result.TimedOut() {
		return
	}
	v := job.Result.Consequence()
	s.Sum += v
	s.SumSq += v * v
	s.N++
	s.Max = max(s.Max, v)
}

// StaticIDs returns the observed static ids in first-completion order.
func (cr *ContingencyResults) StaticIDs() []string {
	return cr.order
}

// Static returns the accumulator of one static id.
func (cr *ContingencyResults) Static(id string) (*StaticResults, bool) {
	s, ok := cr.byID[id]
	return s, ok
}

// JobCount is the number of completed jobs, timeouts included.
func (cr *ContingencyResults) JobCount() int {
	return cr.jobs
}

// Max is the largest valid consequence observed.
func (cr *ContingencyResults) Max() float64 {
	var m float64
	for _, s := range cr.byID {
		m = max(m, s.Max)
	}
	return m
}

// MeanElapsed is the average job duration, 0 without jobs.
func (cr *ContingencyResults) MeanElapsed() time.Duration {
	if cr.jobs == 0 {
		return 0
	}
	return cr.Elapsed / time.Duration(cr.jobs)
}

// ContingencyLaunched tracks jobs dispatched but not yet completed.
type ContingencyLaunched struct {
	perStatic map[string]int
	order     []string
	total     int
}

// NewContingencyLaunched returns an empty tracker.
func NewContingencyLaunched() *ContingencyLaunched {
	return &ContingencyLaunched{perStatic: make(map[string]int)}
}

// Launch records a dispatched job.
func (cl *ContingencyLaunched) Launch(job *Job) {
	if _, ok := cl.perStatic[job.StaticID]; !ok {
		cl.order = append(cl.order, job.StaticID)
	}
	cl.perStatic[job.StaticID]++
	cl.total++
}

// Complete removes a job from the in-flight set.
func (cl *ContingencyLaunched) Complete(job *Job) {
	n, ok := cl.perStatic[job.StaticID]
	if !ok {
		return
	}
	cl.total--
	if n <= 1 {
		delete(cl.perStatic, job.StaticID)
		for i, id := range cl.order {
			if id == job.StaticID {
				cl.order = append(cl.order[:i], cl.order[i+1:]...)
				break
			}
		}
		return
	}
	cl.perStatic[job.StaticID] = n - 1
}

// InFlight is the number of jobs not yet completed.
func (cl *ContingencyLaunched) InFlight() int {
	return cl.total
}

// InFlightStatic is the number of in-flight jobs for one static id.
func (cl *ContingencyLaunched) InFlightStatic(id string) int {
	return cl.perStatic[id]
}

// StaticIDs returns static ids with in-flight jobs, in launch order.
func (cl *ContingencyLaunched) StaticIDs() []string {
	return cl.order
}
