// Package analysis builds, writes and reads the campaign analysis document.
// The document is rewritten after every round so an interrupted campaign
// still leaves a usable partial result.
package analysis

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"pdsa/internal/contingency"
	"pdsa/internal/stats"
	"pdsa/internal/store"

	"github.com/cockroachdb/errors"
)

// Stop reasons.
const (
	ReasonRunning     = "running"
	ReasonConverged   = "converged"
	ReasonInterrupted = "interrupted"
	ReasonExhausted   = "exhausted"
)

// Document is the analysis output.
type Document struct {
	CampaignID  string    `json:"campaign_id"`
	GeneratedAt time.Time `json:"generated_at"`
	StopReason  string    `json:"stop_reason"`
	// Interrupted distinguishes an operator or resource driven stop from convergence.
	Interrupted bool `json:"interrupted"`

	TotalRisk float64 `json:"total_risk"`
	Threshold float64 `json:"threshold"`
	// Summed simulator time over all jobs, and wall time of the campaign, seconds.
	ComputationTime float64 `json:"computation_time"`
	WallTime        float64 `json:"wall_time"`
	Jobs            int     `json:"jobs"`

	Contingencies []Contingency `json:"contingencies"`
}

// Contingency is the per-contingency record.
type Contingency struct {
	ID            string   `json:"id"`
	Kind          string   `json:"kind"`
	Frequency     float64  `json:"frequency"`
	Mean          float64  `json:"mean_load_shedding"`
	Max           float64  `json:"max_load_shedding"`
	Risk          float64  `json:"risk"`
	StaticSamples int      `json:"static_samples"`
	Jobs          int      `json:"jobs"`
	Indicator1    float64  `json:"indicator1"`
	Indicator2    float64  `json:"indicator2"`
	Converged     bool     `json:"converged"`
	Exhausted     bool     `json:"exhausted"`
	Time          float64  `json:"computation_time"`
	Disconnected  []string `json:"disconnected,omitempty"`
	Statics       []Static `json:"statics"`
}

// Static is the per operating point record.
type Static struct {
	ID        string  `json:"id"`
	Mean      float64 `json:"mean_load_shedding"`
	Variance  float64 `json:"variance"`
	Samples   int     `json:"samples"`
	Uncertain bool    `json:"uncertain"`
	Jobs      []Job   `json:"jobs"`
}

// Job is the per job record.
type Job struct {
	ID           int64   `json:"id"`
	Seed         uint64  `json:"seed"`
	Elapsed      float64 `json:"elapsed"`
	TimedOut     bool    `json:"timed_out"`
	Screened     bool    `json:"screened,omitempty"`
	LoadShedding float64 `json:"load_shedding"`
	Cost         float64 `json:"cost"`
}

// Entry is the input for one contingency.
type Entry struct {
	Contingency *contingency.Contingency
	Results     *store.ContingencyResults
	Exhausted   bool
}

// Input is everything Build needs.
type Input struct {
	CampaignID string
	StartedAt  time.Time
	Now        time.Time
	StopReason string
	Threshold  float64
	Entries    []Entry
}

// Build assembles the document from the completed results only.
func Build(in Input) Document {
	doc := Document{
		CampaignID:  in.CampaignID,
		GeneratedAt: in.Now.UTC(),
		StopReason:  in.StopReason,
		Interrupted: in.StopReason == ReasonInterrupted || in.StopReason == ReasonExhausted,
		Threshold:   in.Threshold,
		WallTime:    in.Now.Sub(in.StartedAt).Seconds(),
	}
	for _, e := range in.Entries {
		if e.Exhausted {
			doc.Interrupted = true
		}
	}

	doc.Contingencies = make([]Contingency, 0, len(in.Entries))
	for _, e := range in.Entries {
		s := stats.Summarize(e.Results, nil, e.Contingency.Frequency)
		i1, i2 := s.Indicators()

		c := Contingency{
			ID:            e.Contingency.ID,
			Kind:          e.Contingency.Kind.String(),
			Frequency:     e.Contingency.Frequency,
			Mean:          s.Mean,
			Max:           s.Max,
			Risk:          s.Risk(),
			StaticSamples: s.N,
			Jobs:          s.Jobs,
			Indicator1:    i1,
			Indicator2:    i2,
			Converged:     s.N > 0 && s.Converged(in.Threshold),
			Exhausted:     e.Exhausted,
			Time:          s.Elapsed.Seconds(),
			Disconnected:  e.Contingency.Disconnected(),
			Statics:       make([]Static, 0, len(s.Statics)),
		}
		for _, ss := range s.Statics {
			st := Static{
				ID:        ss.ID,
				Mean:      ss.Mean,
				Variance:  ss.Variance,
				Samples:   ss.N,
				Uncertain: ss.Uncertain,
			}
			sr, _ := e.Results.Static(ss.ID)
			for _, j := range sr.Jobs {
				st.Jobs = append(st.Jobs, Job{
					ID:           j.ID,
					Seed:         j.Seed,
					Elapsed:      j.Elapsed.Seconds(),
					TimedOut:     j.Result.TimedOut(),
					Screened:     j.Result.Screened,
					LoadShedding: j.Result.LoadShedding,
					Cost:         j.Result.Cost,
				})
			}
			c.Statics = append(c.Statics, st)
		}

		doc.TotalRisk += c.Risk
		doc.ComputationTime += c.Time
		doc.Jobs += c.Jobs
		doc.Contingencies = append(doc.Contingencies, c)
	}
	return doc
}

// Write stores doc at path atomically: readers see either the previous or the
// new document, never a partial one.
func Write(path string, doc Document) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create output directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".analysis-*.json")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary analysis file")
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to encode analysis")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to flush analysis")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close analysis")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "failed to replace %s", path)
	}
	return nil
}

// Read loads a document written by Write.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read analysis %s", path)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "invalid analysis document %s", path)
	}
	return &doc, nil
}
