// Package worker runs jobs on a fixed set of goroutines that talk to the
// master exclusively through tagged messages.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pdsa/internal/store"

	"github.com/cockroachdb/errors"
	"github.com/shirou/gopsutil/v3/mem"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Tag identifies a message between master and workers.
type Tag int

const (
	TagReady Tag = iota + 1
	TagStart
	TagDone
	TagTerminate
)

func (t Tag) String() string {
	switch t {
	case TagReady:
		return "ready"
	case TagStart:
		return "start"
	case TagDone:
		return "done"
	case TagTerminate:
		return "terminate"
	}
	return fmt.Sprintf("Tag(%d)", int(t))
}

// Message is exchanged between the master and one worker.
type Message struct {
	Tag    Tag
	Worker int
	Job    *store.Job
}

// Executor runs one job. simulation.Runner implements it.
type Executor interface {
	Execute(ctx context.Context, job *store.Job) store.Result
}

// Recorder receives job lifecycle events for metrics.
type Recorder interface {
	JobFinished(ctx context.Context, job *store.Job)
}

// PoolConfig holds configuration for the worker pool.
type PoolConfig struct {
	Workers int
	// Expected peak memory of one simulator process; used to warn about
	// oversubscribed hosts. Zero disables the check.
	MemoryPerJob uint64
}

// Pool is a set of long-lived workers.
type Pool struct {
	exec     Executor
	config   PoolConfig
	recorder Recorder
	log      *zap.Logger

	inbox    chan Message
	outboxes []chan Message

	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
}

// NewPool creates a pool. recorder may be nil.
func NewPool(exec Executor, config PoolConfig, recorder Recorder, log *zap.Logger) *Pool {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	p := &Pool{
		exec:     exec,
		config:   config,
		recorder: recorder,
		log:      log.Named("worker"),
		// Each worker has at most one done and one ready message outstanding.
		inbox:    make(chan Message, 2*config.Workers),
		outboxes: make([]chan Message, config.Workers),
		done:     make(chan struct{}),
	}
	for i := range p.outboxes {
		p.outboxes[i] = make(chan Message, 1)
	}
	return p
}

// Size is the number of workers.
func (p *Pool) Size() int {
	return p.config.Workers
}

// Inbox delivers ready and done messages to the master.
func (p *Pool) Inbox() <-chan Message {
	return p.inbox
}

// Start launches the workers. Cancelling ctx interrupts running simulations.
func (p *Pool) Start(ctx context.Context) {
	p.checkMemory()

	ctx, p.cancel = context.WithCancel(ctx)
	for i := range p.config.Workers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx, i)
		}()
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()
	p.log.Info("worker pool started", zap.Int("workers", p.config.Workers))
}

// Assign sends a job to a worker that reported ready.
func (p *Pool) Assign(worker int, job *store.Job) error {
	select {
	case p.outboxes[worker] <- Message{Tag: TagStart, Worker: worker, Job: job}:
		return nil
	default:
		return errors.Newf("worker %d is busy", worker)
	}
}

// Terminate tells an idle worker to exit.
func (p *Pool) Terminate(worker int) {
	select {
	case p.outboxes[worker] <- Message{Tag: TagTerminate, Worker: worker}:
	default:
	}
}

// Stop cancels every worker, interrupting running simulations, and waits for
// them to exit.
func (p *Pool) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

// Done is closed once every worker has exited.
func (p *Pool) Done() <-chan struct{} {
	return p.done
}

func (p *Pool) run(ctx context.Context, id int) {
	log := p.log.With(zap.Int("worker", id))
	for {
		if !p.send(ctx, Message{Tag: TagReady, Worker: id}) {
			return
		}

		var msg Message
		select {
		case <-ctx.Done():
			return
		case msg = <-p.outboxes[id]:
		}
		if msg.Tag == TagTerminate {
			log.Debug("worker terminated")
			return
		}

		p.execute(ctx, id, msg.Job)
		if ctx.Err() != nil {
			// Interrupted: the result is incomplete and the master is gone.
			return
		}
		if !p.send(ctx, Message{Tag: TagDone, Worker: id, Job: msg.Job}) {
			return
		}
	}
}

func (p *Pool) send(ctx context.Context, msg Message) bool {
	select {
	case p.inbox <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// execute runs the job and fills its outcome fields. A panic inside the
// executor is reported as a non-converged simulation so the job is not lost.
func (p *Pool) execute(ctx context.Context, id int, job *store.Job) {
	tracer := otel.Tracer("pdsa-worker")
	ctx, span := tracer.Start(ctx, "execute_job",
		trace.WithAttributes(
			attribute.Int64("job.id", job.ID),
			attribute.String("job.contingency", job.Contingency.ID),
			attribute.String("job.static_id", job.StaticID),
			attribute.String("job.seed", fmt.Sprint(job.Seed)),
			attribute.Bool("job.special", job.IsSpecial()),
			attribute.Int("worker.id", id),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	start := time.Now()
	job.Result = p.safeExecute(ctx, id, job)
	job.Elapsed = time.Since(start)
	job.Done = true
	if job.Result.TimedOut() {
		job.TimedOut = true
	}

	span.SetAttributes(
		attribute.Float64("job.load_shedding", job.Result.LoadShedding),
		attribute.String("job.outcome", job.Result.Outcome()),
	)
	if job.Result.Diverged() {
		span.SetStatus(codes.Error, "simulation did not converge")
	}

	if p.recorder != nil {
		p.recorder.JobFinished(ctx, job)
	}
}

func (p *Pool) safeExecute(ctx context.Context, id int, job *store.Job) (res store.Result) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("job execution panicked",
				zap.Int("worker", id),
				zap.Stringer("job", job),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			res = store.Result{LoadShedding: store.LoadSheddingDiverged}
		}
	}()
	return p.exec.Execute(ctx, job)
}

func (p *Pool) checkMemory() {
	if p.config.MemoryPerJob == 0 {
		return
	}
	v, err := mem.VirtualMemory()
	if err != nil {
		p.log.Debug("memory check unavailable", zap.Error(err))
		return
	}
	need := p.config.MemoryPerJob * uint64(p.config.Workers)
	if v.Available < need {
		p.log.Warn("host memory may be insufficient for the worker pool",
			zap.Int("workers", p.config.Workers),
			zap.Uint64("available_bytes", v.Available),
			zap.Uint64("required_bytes", need),
		)
	}
}
