// Package stats computes per-contingency risk estimates, the two convergence
// indicators and their finite-difference derivatives.
//
// Load shedding is aggregated per static id first (mean over dynamic seeds), then
// across static ids. Timed-out jobs never enter a sum.
package stats

import (
	"math"
	"time"

	"pdsa/internal/store"
)

// Indicator identifies one of the two convergence indicators.
type Indicator int

const (
	// IndicatorSampling estimates the standard error of the risk contribution.
	IndicatorSampling Indicator = iota + 1
	// IndicatorCoverage bounds risk hidden in unobserved operating points.
	IndicatorCoverage
)

func (i Indicator) String() string {
	switch i {
	case IndicatorSampling:
		return "sampling"
	case IndicatorCoverage:
		return "coverage"
	}
	return "unknown"
}

// StaticSummary describes one static id of a contingency.
type StaticSummary struct {
	ID        string
	Mean      float64
	Variance  float64 // within-id, only for uncertain ids
	N         int     // valid samples
	Pending   int     // in-flight jobs
	Jobs      int
	Uncertain bool
	Elapsed   time.Duration
}

// Summary is a snapshot of one contingency's statistics.
type Summary struct {
	Frequency float64

	// N counts static ids with at least one valid sample; Projected adds static
	// ids that only have in-flight jobs.
	N         int
	Projected int

	Mean            float64
	Max             float64
	BetweenVariance float64
	// WithinTerm is the mean over static ids of within-variance / samples.
	WithinTerm float64

	Jobs        int
	Elapsed     time.Duration
	MeanElapsed time.Duration

	Statics []StaticSummary
}

// Variance is the unbiased sample variance from running sums, clamped at zero.
// It returns 0 for fewer than two samples.
func Variance(sum, sumSq float64, n int) float64 {
	if n < 2 {
		return 0
	}
	fn := float64(n)
	v := (sumSq - sum*sum/fn) / (fn - 1)
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

// Summarize builds the statistics of one contingency. launched may be nil; when
// given, in-flight jobs are projected into the sample counts.
func Summarize(cr *store.ContingencyResults, launched *store.ContingencyLaunched, frequency float64) Summary {
	s := Summary{
		Frequency:   frequency,
		Jobs:        cr.JobCount(),
		Elapsed:     cr.Elapsed,
		MeanElapsed: cr.MeanElapsed(),
		Max:         cr.Max(),
	}

	seen := make(map[string]bool, len(cr.StaticIDs()))
	means := make([]float64, 0, len(cr.StaticIDs()))
	var withinSum float64

	for _, id := range cr.StaticIDs() {
		sr, _ := cr.Static(id)
		seen[id] = true

		ss := StaticSummary{
			ID:        id,
			Mean:      sr.Mean(),
			N:         sr.N,
			Jobs:      len(sr.Jobs),
			Uncertain: sr.Uncertain,
			Elapsed:   sr.Elapsed,
		}
		if launched != nil {
			ss.Pending = launched.InFlightStatic(id)
		}
		if sr.Uncertain {
			ss.Variance = Variance(sr.Sum, sr.SumSq, sr.N)
		}
		s.Statics = append(s.Statics, ss)

		if sr.N == 0 {
			continue
		}
		means = append(means, ss.Mean)
		if ss.Variance > 0 {
			withinSum += ss.Variance / float64(sr.N+ss.Pending)
		}
	}

	s.N = len(means)
	s.Projected = s.N
	if launched != nil {
		for _, id := range launched.StaticIDs() {
			if !seen[id] {
				s.Projected++
			}
		}
	}
	if s.N == 0 {
		return s
	}

	var total float64
	for _, m := range means {
		total += m
	}
	s.Mean = total / float64(s.N)

	if s.N >= 2 {
		var dev float64
		for _, m := range means {
			dev += (m - s.Mean) * (m - s.Mean)
		}
		s.BetweenVariance = dev / float64(s.N-1)
	}
	s.WithinTerm = withinSum / float64(s.N)
	return s
}

// Risk is the contingency contribution to total risk.
func (s Summary) Risk() float64 {
	return s.Frequency * s.Mean
}

// Indicators returns the sampling and coverage indicators using the projected
// sample count. Without any valid sample the coverage indicator assumes a
// blackout and the sampling indicator is zero.
func (s Summary) Indicators() (sampling, coverage float64) {
	n := float64(max(s.Projected, 1))
	if s.N == 0 {
		return 0, s.Frequency * 100 / n
	}
	sampling = s.Frequency * math.Sqrt(s.BetweenVariance+s.WithinTerm) / math.Sqrt(n)
	coverage = s.Frequency * (100 - s.Mean) / n
	return sampling, coverage
}

// Limiting returns the indicator furthest above the threshold and its excess.
// A non-positive excess means the contingency has converged.
func (s Summary) Limiting(threshold float64) (Indicator, float64) {
	i1, i2 := s.Indicators()
	if i1 >= i2 {
		return IndicatorSampling, i1 - threshold
	}
	return IndicatorCoverage, i2 - threshold
}

// Converged reports whether neither indicator exceeds the threshold.
func (s Summary) Converged(threshold float64) bool {
	_, excess := s.Limiting(threshold)
	return excess <= 0
}

// Derivative holds the indicator reductions expected from one more sample.
type Derivative struct {
	Sampling float64
	Coverage float64
}

// Of returns the reduction of the given indicator.
func (d Derivative) Of(ind Indicator) float64 {
	if ind == IndicatorCoverage {
		return d.Coverage
	}
	return d.Sampling
}

// Derivatives estimates, by finite difference, how much each indicator drops
// when one more static id is sampled (static) or one more dynamic seed is run
// for each uncertain static id (seeds, keyed by static id). Variance terms are
// held at their current estimates.
func Derivatives(s Summary) (static Derivative, seeds map[string]Derivative) {
	seeds = make(map[string]Derivative)
	if s.N == 0 {
		return static, seeds
	}
	n := float64(max(s.Projected, 1))
	spread := s.BetweenVariance + s.WithinTerm

	static.Sampling = s.Frequency * math.Sqrt(spread) * (1/math.Sqrt(n) - 1/math.Sqrt(n+1))
	static.Coverage = s.Frequency * (100 - s.Mean) * (1/n - 1/(n+1))

	if s.BetweenVariance == 0 {
		return static, seeds
	}
	for _, ss := range s.Statics {
		if !ss.Uncertain || ss.Variance == 0 || ss.N == 0 {
			continue
		}
		k := float64(ss.N + ss.Pending)
		delta := (ss.Variance/k - ss.Variance/(k+1)) / float64(s.N)
		after := max(spread-delta, 0)
		seeds[ss.ID] = Derivative{
			Sampling: s.Frequency * (math.Sqrt(spread) - math.Sqrt(after)) / math.Sqrt(n),
		}
	}
	return static, seeds
}

// TotalRisk sums frequency × mean over all contingencies.
func TotalRisk(summaries []Summary) float64 {
	var total float64
	for _, s := range summaries {
		total += s.Risk()
	}
	return total
}
