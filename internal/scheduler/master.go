// Package scheduler is the campaign master: it seeds the initial samples,
// runs allocation rounds, dispatches jobs to workers, folds results into the
// statistics and decides when to stop.
//
// Only the goroutine running Master.Run touches campaign state; other
// goroutines read the published Status snapshot.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"pdsa/internal/analysis"
	"pdsa/internal/config"
	"pdsa/internal/contingency"
	"pdsa/internal/store"
	"pdsa/internal/worker"
	"pdsa/pkg/api"

	"github.com/cockroachdb/errors"
	"github.com/gammazero/deque"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInterrupted is returned by Run when the campaign was stopped before convergence.
var ErrInterrupted = errors.New("campaign interrupted")

// State is the master lifecycle state.
type State int

const (
	StateInit State = iota
	StateRunning
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return api.StateInit
	case StateRunning:
		return api.StateRunning
	case StateDraining:
		return api.StateDraining
	case StateTerminated:
		return api.StateTerminated
	}
	return "unknown"
}

// Dispatcher is the worker side of the message protocol. *worker.Pool implements it.
type Dispatcher interface {
	Inbox() <-chan worker.Message
	Assign(worker int, job *store.Job) error
	Terminate(worker int)
	Size() int
}

// Recorder receives scheduler events for metrics. It may be nil.
type Recorder interface {
	JobsDispatched(ctx context.Context, n int)
}

// Options configures a Master.
type Options struct {
	CampaignID uuid.UUID
	Scheduler  config.SchedulerConfig
	OutputFile string
	StaticIDs  []string
	// Sink receives every completed job. It may be nil.
	Sink       store.ResultSink
	Recorder   Recorder
}

// Outcome summarises a finished campaign.
type Outcome struct {
	State     State
	Reason    string
	TotalRisk float64
	Jobs      int
	Rounds    int
	Elapsed   time.Duration
	// Recorded is the sink's row count for the campaign at the end, or -1
	// without a sink or when it could not be read.
	Recorded  int64
}

// Master owns all campaign state.
type Master struct {
	opts Options
	cfg  config.SchedulerConfig
	pool Dispatcher
	log  *zap.Logger

	tracked []*tracked
	byID    map[string]*tracked

	pending   deque.Deque[*store.Job]
	followUps deque.Deque[*store.Job]
	idle      []int

	state     State
	reason    string
	nextID    int64
	inFlight  int
	completed int
	rounds    int
	threshold float64
	totalRisk float64
	started   time.Time
	recorded  int64

	status atomic.Pointer[api.CampaignStatus]
}

// New creates a master for the given catalog.
func New(catalog []*contingency.Contingency, pool Dispatcher, opts Options, log *zap.Logger) (*Master, error) {
	if len(catalog) == 0 {
		return nil, errors.New("empty contingency catalog")
	}
	if len(opts.StaticIDs) == 0 {
		return nil, errors.WithHint(errors.New("no static operating points"),
			"check static_dir: it must contain one snapshot file per operating point")
	}
	if opts.CampaignID == uuid.Nil {
		opts.CampaignID = uuid.New()
	}

	m := &Master{
		opts:     opts,
		cfg:      opts.Scheduler,
		pool:     pool,
		log:      log.Named("scheduler").With(zap.String("campaign_id", opts.CampaignID.String())),
		byID:     make(map[string]*tracked, len(catalog)),
		state:    StateInit,
		reason:   analysis.ReasonRunning,
		recorded: -1,
	}
	for _, c := range catalog {
		if _, dup := m.byID[c.ID]; dup {
			return nil, errors.Wrapf(contingency.ErrConfiguration, "duplicate contingency id %s", c.ID)
		}
		t := newTracked(c, opts.StaticIDs, m.minimumFor(c))
		m.tracked = append(m.tracked, t)
		m.byID[c.ID] = t
	}
	m.publish()
	return m, nil
}

// minimumFor returns the number of initial static ids: likely N-1 events
// (by frequency) need more than rare N-2 ones.
func (m *Master) minimumFor(c *contingency.Contingency) int {
	if c.Frequency >= m.cfg.N1FrequencyThreshold {
		return m.cfg.MinStaticN1
	}
	return m.cfg.MinStaticN2
}

// Run drives the campaign until it converges, every remaining contingency is
// exhausted, or ctx is cancelled. On cancellation a snapshot marked interrupted
// is written and ErrInterrupted returned; stopping the workers is up to the caller.
func (m *Master) Run(ctx context.Context) (Outcome, error) {
	m.started = time.Now()

	var deadline <-chan time.Time
	if m.cfg.MaxDuration > 0 {
		timer := time.NewTimer(m.cfg.MaxDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	m.seedInitial()
	m.state = StateRunning
	m.log.Info("campaign started",
		zap.Int("contingencies", len(m.tracked)),
		zap.Int("static_ids", len(m.opts.StaticIDs)),
		zap.Int("initial_jobs", m.pending.Len()),
		zap.Int("workers", m.pool.Size()),
	)
	m.snapshot()

	for {
		select {
		case <-ctx.Done():
			return m.interrupt("operator requested shutdown")
		case <-deadline:
			return m.interrupt("maximum campaign duration reached")
		case msg := <-m.pool.Inbox():
			switch msg.Tag {
			case worker.TagReady:
				m.idle = append(m.idle, msg.Worker)
			case worker.TagDone:
				m.complete(ctx, msg.Job)
			}
		}

		if m.pending.Len() == 0 && len(m.idle) > 0 {
			m.advance()
		}
		m.dispatch(ctx)

		if m.state == StateTerminated {
			return m.finish(ctx)
		}
		m.publish()
	}
}

// advance runs a round when workers are starving and moves the state machine.
func (m *Master) advance() {
	switch m.round() {
	case RoundDispatched, RoundFollowUps:
		m.state = StateRunning
		m.snapshot()
	case RoundBlocked:
		m.state = StateRunning
	case RoundIdle:
		if m.inFlight > 0 {
			if m.state != StateDraining {
				m.log.Info("all contingencies converged or exhausted, draining", zap.Int("in_flight", m.inFlight))
			}
			m.state = StateDraining
			return
		}
		m.state = StateTerminated
	}
}

func (m *Master) dispatch(ctx context.Context) {
	n := 0
	for len(m.idle) > 0 && m.pending.Len() > 0 {
		w := m.idle[len(m.idle)-1]
		m.idle = m.idle[:len(m.idle)-1]
		job := m.pending.PopFront()
		if err := m.pool.Assign(w, job); err != nil {
			m.log.Error("failed to assign job", zap.Int("worker", w), zap.Stringer("job", job), zap.Error(err))
			m.pending.PushFront(job)
			continue
		}
		n++
	}
	if n > 0 && m.opts.Recorder != nil {
		m.opts.Recorder.JobsDispatched(ctx, n)
	}
}

// complete folds a finished job into the statistics.
func (m *Master) complete(ctx context.Context, job *store.Job) {
	t, ok := m.byID[job.Contingency.ID]
	if !ok {
		m.log.Error("completed job for unknown contingency", zap.Stringer("job", job))
		return
	}
	t.launched.Complete(job)
	t.results.Add(job)
	m.inFlight--
	m.completed++

	if m.opts.Sink != nil {
		if err := m.opts.Sink.Record(ctx, m.opts.CampaignID, job); err != nil {
			m.log.Warn("failed to record job result", zap.Stringer("job", job), zap.Error(err))
		}
	}

	if job.IsSpecial() && job.Uncertain() && m.cfg.DualLoop && !t.exhausted {
		for range m.cfg.FollowUpSeeds {
			m.followUps.PushBack(m.newJob(t, job.StaticID, t.seeds.Next(job.StaticID)))
		}
		m.log.Debug("special job uncertain, follow-ups queued",
			zap.Stringer("job", job),
			zap.Bool("uncertain_ordering", job.UncertainOrdering),
			zap.Bool("missing_events", job.MissingEvents),
			zap.Int("follow_ups", m.cfg.FollowUpSeeds),
		)
	}
}

// newJob creates a job and counts it as launched.
func (m *Master) newJob(t *tracked, staticID string, seed uint64) *store.Job {
	m.nextID++
	job := &store.Job{
		ID:          m.nextID,
		StaticID:    staticID,
		Seed:        seed,
		Contingency: t.c,
	}
	t.launched.Launch(job)
	m.inFlight++
	return job
}

// newStaticJob is the first job of a fresh static id: a special job when the
// dual loop is enabled.
func (m *Master) newStaticJob(t *tracked, staticID string) *store.Job {
	if m.cfg.DualLoop {
		return m.newJob(t, staticID, store.SpecialSeed)
	}
	return m.newJob(t, staticID, t.seeds.Next(staticID))
}

// seedInitial queues the minimum number of static ids of every contingency.
func (m *Master) seedInitial() {
	for _, t := range m.tracked {
		ids := t.pool.Take(t.minimum)
		for _, id := range ids {
			m.pending.PushBack(m.newStaticJob(t, id))
		}
		if len(ids) < t.minimum {
			m.exhaust(t, t.minimum-len(ids))
		}
	}
}

func (m *Master) exhaust(t *tracked, short int) {
	t.exhausted = true
	m.log.Warn("contingency ran out of static operating points, skipping it from now on",
		zap.String("contingency", t.c.ID),
		zap.Int("static_ids", len(m.opts.StaticIDs)),
		zap.Int("missing", short),
	)
}

func (m *Master) interrupt(why string) (Outcome, error) {
	m.reason = analysis.ReasonInterrupted
	m.log.Warn("campaign interrupted, writing partial analysis",
		zap.String("reason", why),
		zap.Int("jobs_completed", m.completed),
		zap.Int("jobs_in_flight", m.inFlight),
	)
	m.snapshot()
	m.publish()
	return m.outcome(), ErrInterrupted
}

func (m *Master) finish(ctx context.Context) (Outcome, error) {
	m.reason = analysis.ReasonConverged
	for _, t := range m.tracked {
		if t.exhausted {
			m.reason = analysis.ReasonExhausted
			break
		}
	}
	for _, w := range m.idle {
		m.pool.Terminate(w)
	}
	m.idle = nil

	m.snapshot()
	m.publish()
	m.reconcile(ctx)
	m.log.Info("campaign finished",
		zap.String("stop_reason", m.reason),
		zap.Float64("total_risk", m.totalRisk),
		zap.Int("jobs", m.completed),
		zap.Int("rounds", m.rounds),
		zap.Duration("elapsed", time.Since(m.started)),
	)
	return m.outcome(), nil
}

func (m *Master) outcome() Outcome {
	return Outcome{
		State:     m.state,
		Reason:    m.reason,
		TotalRisk: m.totalRisk,
		Jobs:      m.completed,
		Rounds:    m.rounds,
		Elapsed:   time.Since(m.started),
		Recorded:  m.recorded,
	}
}

// reconcile checks that the sink holds one row per completed job.
func (m *Master) reconcile(ctx context.Context) {
	if m.opts.Sink == nil {
		return
	}
	n, err := m.opts.Sink.CountResults(ctx, m.opts.CampaignID)
	if err != nil {
		m.log.Warn("failed to count recorded job results", zap.Error(err))
		return
	}
	m.recorded = n
	if n != int64(m.completed) {
		m.log.Warn("result sink is missing jobs",
			zap.Int64("recorded", n),
			zap.Int("completed", m.completed),
		)
	}
}

// snapshot rewrites the analysis document from completed results.
func (m *Master) snapshot() {
	if m.opts.OutputFile == "" {
		return
	}
	entries := make([]analysis.Entry, 0, len(m.tracked))
	for _, t := range m.tracked {
		entries = append(entries, analysis.Entry{Contingency: t.c, Results: t.results, Exhausted: t.exhausted})
	}
	doc := analysis.Build(analysis.Input{
		CampaignID: m.opts.CampaignID.String(),
		StartedAt:  m.started,
		Now:        time.Now(),
		StopReason: m.reason,
		Threshold:  m.threshold,
		Entries:    entries,
	})
	if err := analysis.Write(m.opts.OutputFile, doc); err != nil {
		m.log.Error("failed to write analysis", zap.String("path", m.opts.OutputFile), zap.Error(err))
	}
}
