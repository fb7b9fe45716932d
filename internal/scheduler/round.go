package scheduler

import (
	"time"

	"pdsa/internal/allocation"
	"pdsa/internal/contingency"
	"pdsa/internal/stats"
	"pdsa/internal/store"

	"go.uber.org/zap"
)

// RoundStatus tells the run loop what a round produced.
type RoundStatus int

const (
	// RoundDispatched means new jobs were queued.
	RoundDispatched RoundStatus = iota
	// RoundFollowUps means the budget went entirely to queued follow-up seeds.
	RoundFollowUps
	// RoundBlocked means nothing can be allocated until initial samples complete.
	RoundBlocked
	// RoundIdle means every contingency is converged or exhausted.
	RoundIdle
)

// tracked is the per-contingency state owned by the master.
type tracked struct {
	c         *contingency.Contingency
	results   *store.ContingencyResults
	launched  *store.ContingencyLaunched
	pool      *staticPool
	seeds     *seedCounter
	minimum   int
	exhausted bool
	// converged as of the last round
	converged bool
}

func newTracked(c *contingency.Contingency, staticIDs []string, minimum int) *tracked {
	return &tracked{
		c:        c,
		results:  store.NewContingencyResults(c),
		launched: store.NewContingencyLaunched(),
		pool:     newStaticPool(c.ID, staticIDs),
		seeds:    newSeedCounter(),
		minimum:  minimum,
	}
}

// waiting reports whether the initial static ids have not all completed yet.
func (t *tracked) waiting() bool {
	return len(t.results.StaticIDs()) < t.minimum
}

type candidate struct {
	t        *tracked
	summary  stats.Summary
	limiting stats.Indicator
	excess   float64
}

// round spends one budget of jobs: follow-up seeds first, then the remainder
// split across unconverged contingencies by their indicator excess and, inside
// each, between new static ids and extra seeds by expected indicator reduction
// per second of simulation.
func (m *Master) round() RoundStatus {
	m.rounds++
	budget := m.cfg.JobsPerRound
	queued := 0

	for budget > 0 && m.followUps.Len() > 0 {
		m.pending.PushBack(m.followUps.PopFront())
		budget--
		queued++
	}
	if budget == 0 {
		m.log.Debug("round spent on follow-up seeds", zap.Int("round", m.rounds), zap.Int("jobs", queued))
		return RoundFollowUps
	}

	summaries := make([]stats.Summary, len(m.tracked))
	for i, t := range m.tracked {
		summaries[i] = stats.Summarize(t.results, t.launched, t.c.Frequency)
	}
	m.totalRisk = stats.TotalRisk(summaries)
	m.threshold = m.cfg.Threshold(m.totalRisk)

	var candidates []candidate
	waiting := 0
	for i, t := range m.tracked {
		switch {
		case t.exhausted:
			continue
		case t.waiting():
			waiting++
			continue
		}
		limiting, excess := summaries[i].Limiting(m.threshold)
		t.converged = excess <= 0
		if t.converged {
			continue
		}
		candidates = append(candidates, candidate{t: t, summary: summaries[i], limiting: limiting, excess: excess})
	}

	if len(candidates) == 0 {
		if queued > 0 {
			return RoundDispatched
		}
		if waiting > 0 {
			m.log.Debug("no contingency ready for allocation, waiting for initial samples",
				zap.Int("waiting", waiting), zap.Int("in_flight", m.inFlight))
			return RoundBlocked
		}
		return RoundIdle
	}

	weights := make([]float64, len(candidates))
	for i, c := range candidates {
		weights[i] = c.excess
	}
	shares := allocation.Allocate(weights, budget)
	for i, c := range candidates {
		if shares[i] > 0 {
			queued += m.allocateWithin(c, shares[i])
		}
	}

	m.log.Info("round allocated",
		zap.Int("round", m.rounds),
		zap.Float64("total_risk", m.totalRisk),
		zap.Float64("threshold", m.threshold),
		zap.Int("unconverged", len(candidates)),
		zap.Int("waiting", waiting),
		zap.Int("jobs", queued),
	)
	if queued == 0 {
		// every candidate ran dry this round; the next round sees them exhausted
		if m.inFlight > 0 {
			return RoundBlocked
		}
		return m.round()
	}
	return RoundDispatched
}

// allocateWithin splits n jobs of one contingency between a new static id and
// one more seed of each uncertain static id, and queues them.
func (m *Master) allocateWithin(c candidate, n int) int {
	static, seeds := stats.Derivatives(c.summary)

	ids := []string{""}
	weights := []float64{static.Of(c.limiting) / costSeconds(c.summary.MeanElapsed)}
	for _, ss := range c.summary.Statics {
		d, ok := seeds[ss.ID]
		if !ok {
			continue
		}
		var elapsed time.Duration
		if ss.Jobs > 0 {
			elapsed = ss.Elapsed / time.Duration(ss.Jobs)
		}
		ids = append(ids, ss.ID)
		weights = append(weights, d.Of(c.limiting)/costSeconds(elapsed))
	}

	shares := allocation.Allocate(weights, n)
	total := 0
	for _, s := range shares {
		total += s
	}
	if total == 0 {
		shares = make([]int, len(ids))
		shares[0] = n
	}

	queued := 0
	for i, id := range ids {
		if shares[i] == 0 {
			continue
		}
		if id == "" {
			queued += m.queueNewStatics(c.t, shares[i])
			continue
		}
		for range shares[i] {
			m.pending.PushBack(m.newJob(c.t, id, c.t.seeds.Next(id)))
			queued++
		}
	}
	return queued
}

func (m *Master) queueNewStatics(t *tracked, n int) int {
	ids := t.pool.Take(n)
	for _, id := range ids {
		m.pending.PushBack(m.newStaticJob(t, id))
	}
	if len(ids) < n {
		m.exhaust(t, n-len(ids))
	}
	return len(ids)
}

func costSeconds(d time.Duration) float64 {
	if d <= 0 {
		return 1
	}
	return d.Seconds()
}
