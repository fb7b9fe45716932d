// Package simulation runs one job against the external dynamic simulator and
// turns whatever it produced into a Result.
package simulation

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pdsa/internal/config"
	"pdsa/internal/grid"
	"pdsa/internal/screening"
	"pdsa/internal/store"
	"pdsa/internal/worker/runtime"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Seconds simulated after the last initiating event.
const settleTime = 20.0

// Simulator output lines attached to failure warnings.
const logTailLines = 20

// Runner executes jobs. It is safe for concurrent use when its runtime and
// snapshot reader are.
type Runner struct {
	cfg       *config.Config
	rt        runtime.Runtime
	snapshots grid.Reader
	oracle    *screening.Oracle
	log       *zap.Logger
}

// NewRunner creates a runner.
func NewRunner(cfg *config.Config, rt runtime.Runtime, snapshots grid.Reader, oracle *screening.Oracle, log *zap.Logger) *Runner {
	return &Runner{
		cfg:       cfg,
		rt:        rt,
		snapshots: snapshots,
		oracle:    oracle,
		log:       log.Named("runner"),
	}
}

// Execute screens the job, simulates it when needed and returns its result.
// Simulator problems never surface as errors: they are folded into the
// reserved load-shedding values. Special job findings are stored on job.
func (r *Runner) Execute(ctx context.Context, job *store.Job) store.Result {
	log := r.log.With(zap.Stringer("job", job))

	net, err := r.snapshots.Snapshot(job.StaticID)
	if err != nil {
		log.Error("failed to read static snapshot", zap.Error(err))
		return store.Result{LoadShedding: store.LoadSheddingDiverged}
	}

	if r.oracle != nil {
		verdict := r.oracle.Screen(job, net)
		if !verdict.Simulate {
			return store.Result{Screened: true}
		}
	}

	dir := filepath.Join(r.cfg.WorkDir, fmt.Sprintf("job-%07d", job.ID))
	if !r.cfg.Simulator.KeepJobDirs {
		defer func() {
			if err := os.RemoveAll(dir); err != nil {
				log.Warn("failed to remove job directory", zap.String("dir", dir), zap.Error(err))
			}
		}()
	}

	outcome, err := r.simulate(ctx, job, dir)
	if err != nil {
		log.Error("simulation could not be run", zap.Error(err))
		return store.Result{LoadShedding: store.LoadSheddingDiverged}
	}

	if job.IsSpecial() {
		job.UncertainOrdering = UncertainOrdering(outcome.Timeline, r.cfg.Scheduler.OrderingWindow)
		job.MissingEvents = MissingEvents(outcome.Timeline)
	}
	job.TimedOut = outcome.Status == RunTimedOut

	ls := Classify(outcome, net.FrequencyReferenceMachines())
	res := store.Result{
		LoadShedding: ls,
		Cost:         Cost(ls, net.TotalLoad(), r.cfg.Cost),
	}
	log.Debug("job simulated",
		zap.Stringer("status", outcome.Status),
		zap.Float64("load_shedding", ls),
		zap.Int("timeline_events", len(outcome.Timeline)),
	)
	return res
}

// simulate runs the primary solver and, after a failure or timeout, the
// alternate one, then reads back the output of the last attempt.
func (r *Runner) simulate(ctx context.Context, job *store.Job, dir string) (Outcome, error) {
	solvers := []string{r.cfg.Simulator.Solver}
	if alt := r.cfg.Simulator.AltSolver; alt != "" && alt != r.cfg.Simulator.Solver {
		solvers = append(solvers, alt)
	}

	var status RunStatus
	for attempt, solver := range solvers {
		if attempt > 0 {
			if err := os.RemoveAll(filepath.Join(dir, OutputDirName)); err != nil {
				return Outcome{}, errors.Wrap(err, "failed to delete partial output")
			}
			r.log.Info("retrying with alternate solver",
				zap.Stringer("job", job),
				zap.String("solver", solver),
				zap.Stringer("previous", status))
		}

		var err error
		status, err = r.attempt(ctx, job, dir, solver)
		if err != nil {
			return Outcome{}, err
		}
		if status == RunSucceeded || ctx.Err() != nil {
			break
		}
	}

	out := filepath.Join(dir, OutputDirName)
	timeline, err := readTimeline(filepath.Join(out, TimelineFileName))
	if err != nil {
		r.log.Warn("unreadable timeline", zap.Stringer("job", job), zap.Error(err))
	}
	final, err := readFinalState(filepath.Join(out, FinalStateFileName))
	if err != nil {
		r.log.Warn("unreadable final state", zap.Stringer("job", job), zap.Error(err))
		final = nil
	}
	return Outcome{Status: status, Timeline: timeline, FinalState: final}, nil
}

func (r *Runner) attempt(ctx context.Context, job *store.Job, dir, solver string) (RunStatus, error) {
	if err := os.MkdirAll(filepath.Join(dir, OutputDirName), 0o755); err != nil {
		return RunFailed, errors.Wrap(err, "failed to create job directory")
	}
	if err := writeJobFile(dir, job, r.cfg.StaticDir, solver, lastEventTime(job)+settleTime); err != nil {
		return RunFailed, err
	}

	command := append(append([]string{}, r.cfg.Simulator.Command...), JobFileName)
	h, err := r.rt.Start(ctx, runtime.StartOptions{
		Image:   r.cfg.Simulator.DockerImage,
		Command: command,
		Dir:     dir,
		Env: map[string]string{
			"PDSA_JOB_ID": strconv.FormatInt(job.ID, 10),
			"PDSA_SOLVER": solver,
		},
	})
	if err != nil {
		return RunFailed, errors.Wrap(err, "failed to start simulator")
	}
	defer func() {
		if err := h.Release(context.WithoutCancel(ctx)); err != nil {
			r.log.Warn("failed to release simulator", zap.Stringer("job", job), zap.Error(err))
		}
	}()

	start := time.Now()
	res, timedOut, err := runtime.Supervise(ctx, h, r.cfg.Simulator.Timeout, r.cfg.Simulator.GracePeriod)
	switch {
	case timedOut:
		r.log.Warn("simulator timed out",
			zap.Stringer("job", job),
			zap.String("solver", solver),
			zap.Duration("after", time.Since(start)),
			zap.String("log_tail", r.logTail(ctx, h)))
		return RunTimedOut, nil
	case err != nil:
		r.log.Warn("simulator supervision failed",
			zap.Stringer("job", job),
			zap.String("solver", solver),
			zap.Error(err),
			zap.String("log_tail", r.logTail(ctx, h)))
		return RunFailed, nil
	case res.ExitCode != 0:
		r.log.Warn("simulator failed",
			zap.Stringer("job", job),
			zap.String("solver", solver),
			zap.Int("exit_code", res.ExitCode),
			zap.String("log_tail", r.logTail(ctx, h)))
		return RunFailed, nil
	}
	return RunSucceeded, nil
}

// logTail returns the last lines of the simulator output, or an empty string
// when the logs cannot be read in time.
func (r *Runner) logTail(ctx context.Context, h runtime.Handle) string {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	rc, err := h.StreamLogs(ctx)
	if err != nil {
		r.log.Debug("simulator logs unavailable", zap.Error(err))
		return ""
	}
	defer rc.Close()

	var lines []string
	sc := bufio.NewScanner(rc)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if len(lines) > logTailLines {
			lines = lines[1:]
		}
	}
	return strings.Join(lines, "\n")
}

func lastEventTime(job *store.Job) float64 {
	var t float64
	for _, e := range job.Contingency.Events {
		t = max(t, e.Time)
	}
	return t
}
