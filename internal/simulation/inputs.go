package simulation

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"

	"pdsa/internal/store"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
)

// Files exchanged with the simulator inside a job directory.
const (
	JobFileName        = "job.toml"
	OutputDirName      = "outputs"
	TimelineFileName   = "timeline.log"
	FinalStateFileName = "final_state.json"
)

// Breaker timing spread applied to non-special jobs, seconds.
const (
	breakerJitterMin = -0.01
	breakerJitterMax = 0.02
	relayScaleSpread = 0.05
)

type jobFile struct {
	Job        jobSection        `toml:"job"`
	Events     []eventSection    `toml:"events"`
	Protection protectionSection `toml:"protection"`
}

type jobSection struct {
	ID          int64   `toml:"id"`
	Contingency string  `toml:"contingency"`
	StaticID    string  `toml:"static_id"`
	StaticDir   string  `toml:"static_dir"`
	Seed        string  `toml:"seed"` // decimal, may exceed the TOML integer range
	Solver      string  `toml:"solver"`
	StopTime    float64 `toml:"stop_time"`
	OutputDir   string  `toml:"output_dir"`
}

type eventSection struct {
	Time    float64 `toml:"time"`
	Kind    string  `toml:"kind"`
	Element string  `toml:"element"`
	Side    string  `toml:"side"`
}

type protectionSection struct {
	Nominal bool `toml:"nominal"`
	// Multiplier on every relay pickup delay.
	RelayDelayScale float64 `toml:"relay_delay_scale"`
	// Per line breaker opening offsets, seconds.
	BreakerOffsets map[string]float64 `toml:"breaker_offsets"`
}

// protectionFor derives protection timing uncertainty from the job seed. The
// special seed gives nominal settings.
func protectionFor(job *store.Job) protectionSection {
	p := protectionSection{Nominal: true, RelayDelayScale: 1, BreakerOffsets: map[string]float64{}}
	lines := job.Contingency.Disconnected()
	if job.IsSpecial() {
		for _, id := range lines {
			p.BreakerOffsets[id] = 0
		}
		return p
	}

	rng := rand.New(rand.NewPCG(job.Seed, job.Seed^0x9e3779b97f4a7c15))
	p.Nominal = false
	p.RelayDelayScale = 1 + relayScaleSpread*(2*rng.Float64()-1)
	for _, id := range lines {
		p.BreakerOffsets[id] = breakerJitterMin + (breakerJitterMax-breakerJitterMin)*rng.Float64()
	}
	return p
}

// writeJobFile renders the simulator input for one attempt.
func writeJobFile(dir string, job *store.Job, staticDir, solver string, stopTime float64) error {
	f := jobFile{
		Job: jobSection{
			ID:          job.ID,
			Contingency: job.Contingency.ID,
			StaticID:    job.StaticID,
			StaticDir:   staticDir,
			Seed:        strconv.FormatUint(job.Seed, 10),
			Solver:      solver,
			StopTime:    stopTime,
			OutputDir:   OutputDirName,
		},
		Protection: protectionFor(job),
	}
	for _, e := range job.Contingency.Events {
		f.Events = append(f.Events, eventSection{
			Time:    e.Time,
			Kind:    e.Kind.String(),
			Element: e.Element,
			Side:    e.Side.String(),
		})
	}

	out, err := os.Create(filepath.Join(dir, JobFileName))
	if err != nil {
		return errors.Wrap(err, "failed to create job file")
	}
	defer out.Close()

	if err := toml.NewEncoder(out).Encode(f); err != nil {
		return errors.Wrap(err, "failed to encode job file")
	}
	return out.Close()
}
