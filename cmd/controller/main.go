// Package main is the entry point of the pdsa master: it builds the contingency
// catalog, runs the adaptive campaign on an in-process worker pool and serves
// the status API until the campaign stops.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"pdsa/internal/config"
	"pdsa/internal/contingency"
	"pdsa/internal/controller"
	"pdsa/internal/controller/handlers"
	"pdsa/internal/grid"
	"pdsa/internal/logger"
	"pdsa/internal/observability"
	"pdsa/internal/scheduler"
	"pdsa/internal/screening"
	"pdsa/internal/simulation"
	"pdsa/internal/store"
	"pdsa/internal/store/postgres"
	"pdsa/internal/worker"
	"pdsa/internal/worker/runtime"
	"pdsa/pkg/api"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: pdsa.yaml in current directory)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %+v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	code := 0
	if err := run(cfg, log); err != nil {
		if errors.Is(err, scheduler.ErrInterrupted) {
			log.Warn("campaign interrupted, partial analysis written", zap.String("output", cfg.OutputFile))
			code = 130
		} else {
			log.Error("campaign failed", zap.Error(err), zap.Strings("hints", errors.GetAllHints(err)))
			code = 1
		}
	}
	_ = log.Sync()
	os.Exit(code)
}

func run(cfg *config.Config, log *zap.Logger) error {
	campaignID := uuid.New()
	ctx := logger.WithCampaignID(context.Background(), campaignID.String())
	log = logger.FromContext(ctx, log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Operating points and reference network
	statics := grid.Dir{Path: cfg.StaticDir}
	staticIDs, err := statics.StaticIDs()
	if err != nil {
		return err
	}
	networkFile := cfg.NetworkFile
	if networkFile == "" {
		networkFile = filepath.Join(statics.Path, staticIDs[0]+grid.SnapshotExt)
	}
	network, err := grid.ReadFile(networkFile)
	if err != nil {
		return errors.Wrap(err, "failed to read reference network")
	}

	catalog, err := contingency.Build(network, cfg.Catalog)
	if err != nil {
		return err
	}
	log.Info("contingency catalog built",
		zap.Int("contingencies", len(catalog)),
		zap.Int("static_ids", len(staticIDs)),
		zap.String("network", networkFile),
	)

	// Result sink
	var (
		sink    store.ResultSink
		results handlers.ResultStore
	)
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		sink, results = pg, pg
		log.Info("recording job results to postgres")
	}

	// Tracing
	if cfg.OTELEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(ctx, observability.TracerOptions{
			ServiceName: "pdsa-controller",
			Endpoint:    cfg.OTELEndpoint,
			CampaignID:  campaignID.String(),
			SampleRatio: cfg.OTELSampleRatio,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				log.Warn("failed to shutdown tracer", zap.Error(err))
			}
		}()
	}

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Warn("failed to shutdown metrics", zap.Error(err))
		}
	}()

	// Simulator runtime
	var rt runtime.Runtime
	switch cfg.Simulator.Runtime {
	case "docker":
		dockerRT, err := runtime.NewDockerRuntime()
		if err != nil {
			return err
		}
		rt = dockerRT
		log.Info("using docker runtime", zap.String("image", cfg.Simulator.DockerImage))
	default:
		rt = runtime.NewExecRuntime(cfg.WorkDir)
		log.Info("using exec runtime", zap.String("work_dir", cfg.WorkDir))
	}

	var oracle *screening.Oracle
	if cfg.Screening.Enabled {
		oracle = screening.New(cfg.Screening, log)
	}
	runner := simulation.NewRunner(cfg, rt, statics, oracle, log)

	// The master and the metrics reference each other: the pool reports to the
	// metrics, whose gauges read the master's status.
	var master *scheduler.Master
	metrics, err := observability.NewMetrics(func() api.CampaignStatus { return master.Status() })
	if err != nil {
		return err
	}

	pool := worker.NewPool(runner, worker.PoolConfig{
		Workers:      cfg.Scheduler.Workers,
		MemoryPerJob: uint64(cfg.Simulator.MemoryPerJobMB) << 20,
	}, metrics, log)

	master, err = scheduler.New(catalog, pool, scheduler.Options{
		CampaignID: campaignID,
		Scheduler:  cfg.Scheduler,
		OutputFile: cfg.OutputFile,
		StaticIDs:  staticIDs,
		Sink:       sink,
		Recorder:   metrics,
	}, log)
	if err != nil {
		return err
	}

	// Status server
	if cfg.HTTPPort > 0 {
		srv := controller.New(controller.Options{
			Addr:      fmt.Sprintf(":%d", cfg.HTTPPort),
			Metrics:   metricsHandler,
			RateLimit: cfg.HTTPRateLimit,
			RateBurst: cfg.HTTPRateBurst,
		}, master, results)

		srvCtx, cancelSrv := context.WithCancel(context.Background())
		defer cancelSrv()
		go func() {
			log.Info("status server starting", zap.Int("port", cfg.HTTPPort))
			if err := srv.Run(srvCtx); err != nil {
				log.Error("status server stopped", zap.Error(err))
			}
		}()
	}

	// Workers outlive the signal context: the master decides when they stop.
	pool.Start(context.Background())
	defer func() {
		stopped := make(chan struct{})
		go func() {
			pool.Stop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(cfg.Simulator.GracePeriod + 5*time.Second):
			log.Warn("workers did not stop in time")
		}
	}()

	outcome, err := master.Run(ctx)
	log.Info("campaign stopped",
		zap.String("state", outcome.State.String()),
		zap.String("stop_reason", outcome.Reason),
		zap.Float64("total_risk", outcome.TotalRisk),
		zap.Int("jobs", outcome.Jobs),
		zap.Int("rounds", outcome.Rounds),
		zap.Duration("elapsed", outcome.Elapsed),
		zap.Int64("recorded", outcome.Recorded),
		zap.String("output", cfg.OutputFile),
	)
	return err
}
