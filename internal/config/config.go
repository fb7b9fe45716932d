// Package config loads the campaign configuration from a YAML file and PDSA_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Config holds every tunable of a campaign. It is built once at startup by Load
// and handed to component constructors; nothing mutates it afterwards.
type Config struct {
	// Reference network used to enumerate contingencies (YAML snapshot).
	NetworkFile string

	// Directory of static operating points, one *.yaml snapshot per static id.
	StaticDir string

	// Path of the analysis document rewritten after every round.
	OutputFile string

	// Root under which per-job simulator directories are created.
	WorkDir string

	// Optional PostgreSQL connection string for the job result sink.
	DatabaseURL string

	// HTTP port of the status server (0 disables it).
	HTTPPort int

	// Per-client request rate of the status API, requests per second (0 = unlimited).
	HTTPRateLimit float64
	HTTPRateBurst int

	// OTLP/gRPC collector address; tracing is disabled when empty.
	OTELEndpoint    string
	// Fraction of job traces kept, in (0,1]; campaigns run thousands of jobs.
	OTELSampleRatio float64

	LogJSON bool

	Simulator SimulatorConfig
	Catalog   CatalogConfig
	Screening ScreeningConfig
	Scheduler SchedulerConfig
	Cost      CostConfig
}

// SimulatorConfig configures how the external dynamic simulator is launched.
type SimulatorConfig struct {
	Runtime     string // "exec" or "docker"
	Command     []string
	DockerImage string
	Timeout     time.Duration
	GracePeriod time.Duration
	Solver      string
	AltSolver   string
	KeepJobDirs bool
	// Expected peak memory of one simulator process, MiB.
	MemoryPerJobMB int
}

// CatalogConfig controls contingency enumeration.
type CatalogConfig struct {
	MinVoltageKV               float64
	FaultRatePerKm             float64 // faults per km per year
	DelayedClearingProbability float64
	StuckBreakerProbability    float64
	NormalClearingTime         float64 // seconds
	DelayedClearingTime        float64
	BackupClearingTime         float64
	FaultTime                  float64
	BaseFrequency              float64
	EnableN2                   bool
}

// ScreeningConfig holds the thresholds of the analytical pre-checks.
type ScreeningConfig struct {
	Enabled          bool
	ForceSimulation  bool
	MinSCR           float64
	CCTMargin        float64
	MaxRoCoF         float64 // Hz/s
	NominalFrequency float64 // Hz
}

// SchedulerConfig drives the adaptive allocation.
type SchedulerConfig struct {
	Workers              int
	JobsPerRound         int
	MinStaticN1          int
	MinStaticN2          int
	N1FrequencyThreshold float64
	RelativeTolerance    float64
	AbsoluteTolerance    float64
	DualLoop             bool
	FollowUpSeeds        int
	OrderingWindow       float64 // seconds
	MaxDuration          time.Duration
}

// CostConfig converts load shedding into a monetary consequence.
type CostConfig struct {
	ValueOfLostLoad float64 // per MWh
	OutageHours     float64
}

// Load reads configuration from the given file (or ./pdsa.yaml when path is empty)
// and the environment. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PDSA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	} else {
		v.SetConfigName("pdsa")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.Wrap(err, "failed to read config file")
			}
		}
	}

	cfg := &Config{
		NetworkFile:     v.GetString("network_file"),
		StaticDir:       v.GetString("static_dir"),
		OutputFile:      v.GetString("output_file"),
		WorkDir:         v.GetString("work_dir"),
		DatabaseURL:     v.GetString("database_url"),
		HTTPPort:        v.GetInt("http_port"),
		HTTPRateLimit:   v.GetFloat64("http_rate_limit"),
		HTTPRateBurst:   v.GetInt("http_rate_burst"),
		OTELEndpoint:    v.GetString("otel_endpoint"),
		OTELSampleRatio: v.GetFloat64("otel_sample_ratio"),
		LogJSON:         v.GetBool("log_json"),
		Simulator: SimulatorConfig{
			Runtime:        v.GetString("simulator.runtime"),
			Command:        v.GetStringSlice("simulator.command"),
			DockerImage:    v.GetString("simulator.docker_image"),
			Timeout:        v.GetDuration("simulator.timeout"),
			GracePeriod:    v.GetDuration("simulator.grace_period"),
			Solver:         v.GetString("simulator.solver"),
			AltSolver:      v.GetString("simulator.alt_solver"),
			KeepJobDirs:    v.GetBool("simulator.keep_job_dirs"),
			MemoryPerJobMB: v.GetInt("simulator.memory_per_job_mb"),
		},
		Catalog: catalogFrom(v),
		Screening: ScreeningConfig{
			Enabled:          v.GetBool("screening.enabled"),
			ForceSimulation:  v.GetBool("screening.force_simulation"),
			MinSCR:           v.GetFloat64("screening.min_scr"),
			CCTMargin:        v.GetFloat64("screening.cct_margin"),
			MaxRoCoF:         v.GetFloat64("screening.max_rocof"),
			NominalFrequency: v.GetFloat64("screening.nominal_frequency"),
		},
		Scheduler: SchedulerConfig{
			Workers:              v.GetInt("scheduler.workers"),
			JobsPerRound:         v.GetInt("scheduler.jobs_per_round"),
			MinStaticN1:          v.GetInt("scheduler.min_static_n1"),
			MinStaticN2:          v.GetInt("scheduler.min_static_n2"),
			N1FrequencyThreshold: v.GetFloat64("scheduler.n1_frequency_threshold"),
			RelativeTolerance:    v.GetFloat64("scheduler.relative_tolerance"),
			AbsoluteTolerance:    v.GetFloat64("scheduler.absolute_tolerance"),
			DualLoop:             v.GetBool("scheduler.dual_loop"),
			FollowUpSeeds:        v.GetInt("scheduler.follow_up_seeds"),
			OrderingWindow:       v.GetFloat64("scheduler.ordering_window"),
			MaxDuration:          v.GetDuration("scheduler.max_duration"),
		},
		Cost: CostConfig{
			ValueOfLostLoad: v.GetFloat64("cost.value_of_lost_load"),
			OutageHours:     v.GetFloat64("cost.outage_hours"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultCatalog returns the catalog settings used when no file overrides them.
func DefaultCatalog() CatalogConfig {
	v := viper.New()
	setDefaults(v)
	return catalogFrom(v)
}

func catalogFrom(v *viper.Viper) CatalogConfig {
	return CatalogConfig{
		MinVoltageKV:               v.GetFloat64("catalog.min_voltage_kv"),
		FaultRatePerKm:             v.GetFloat64("catalog.fault_rate_per_km"),
		DelayedClearingProbability: v.GetFloat64("catalog.delayed_clearing_probability"),
		StuckBreakerProbability:    v.GetFloat64("catalog.stuck_breaker_probability"),
		NormalClearingTime:         v.GetFloat64("catalog.normal_clearing_time"),
		DelayedClearingTime:        v.GetFloat64("catalog.delayed_clearing_time"),
		BackupClearingTime:         v.GetFloat64("catalog.backup_clearing_time"),
		FaultTime:                  v.GetFloat64("catalog.fault_time"),
		BaseFrequency:              v.GetFloat64("catalog.base_frequency"),
		EnableN2:                   v.GetBool("catalog.enable_n2"),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output_file", "analysis.json")
	v.SetDefault("work_dir", "jobs")
	v.SetDefault("http_port", 6161)
	v.SetDefault("http_rate_limit", 20.0)
	v.SetDefault("http_rate_burst", 40)
	v.SetDefault("otel_sample_ratio", 1.0)
	v.SetDefault("log_json", false)

	v.SetDefault("simulator.runtime", "exec")
	v.SetDefault("simulator.command", []string{"dynawo", "jobs"})
	v.SetDefault("simulator.timeout", 10*time.Minute)
	v.SetDefault("simulator.grace_period", 10*time.Second)
	v.SetDefault("simulator.solver", "SIM")
	v.SetDefault("simulator.alt_solver", "IDA")
	v.SetDefault("simulator.keep_job_dirs", false)
	v.SetDefault("simulator.memory_per_job_mb", 2048)

	v.SetDefault("catalog.min_voltage_kv", 300.0)
	v.SetDefault("catalog.fault_rate_per_km", 0.002)
	v.SetDefault("catalog.delayed_clearing_probability", 0.01)
	v.SetDefault("catalog.stuck_breaker_probability", 0.001)
	v.SetDefault("catalog.normal_clearing_time", 0.1)
	v.SetDefault("catalog.delayed_clearing_time", 0.2)
	v.SetDefault("catalog.backup_clearing_time", 0.25)
	v.SetDefault("catalog.fault_time", 1.0)
	v.SetDefault("catalog.base_frequency", 1e-6)
	v.SetDefault("catalog.enable_n2", true)

	v.SetDefault("screening.enabled", true)
	v.SetDefault("screening.force_simulation", false)
	v.SetDefault("screening.min_scr", 3.0)
	v.SetDefault("screening.cct_margin", 1.2)
	v.SetDefault("screening.max_rocof", 1.0)
	v.SetDefault("screening.nominal_frequency", 50.0)

	v.SetDefault("scheduler.workers", 4)
	v.SetDefault("scheduler.jobs_per_round", 40)
	v.SetDefault("scheduler.min_static_n1", 50)
	v.SetDefault("scheduler.min_static_n2", 10)
	v.SetDefault("scheduler.n1_frequency_threshold", 1e-3)
	v.SetDefault("scheduler.relative_tolerance", 0.01)
	v.SetDefault("scheduler.absolute_tolerance", 0.0)
	v.SetDefault("scheduler.dual_loop", true)
	v.SetDefault("scheduler.follow_up_seeds", 3)
	v.SetDefault("scheduler.ordering_window", 0.02)
	v.SetDefault("scheduler.max_duration", time.Duration(0))

	v.SetDefault("cost.value_of_lost_load", 15000.0)
	v.SetDefault("cost.outage_hours", 1.0)
}

// Validate rejects configurations the campaign cannot run with.
func (c *Config) Validate() error {
	if c.StaticDir == "" {
		return errors.WithHint(errors.New("static_dir is required (env: PDSA_STATIC_DIR)"),
			"point it at the directory of pre-computed operating point snapshots")
	}
	if c.Scheduler.Workers <= 0 {
		return errors.Newf("scheduler.workers must be positive, got %d", c.Scheduler.Workers)
	}
	if c.Scheduler.JobsPerRound <= 0 {
		return errors.Newf("scheduler.jobs_per_round must be positive, got %d", c.Scheduler.JobsPerRound)
	}
	if c.Scheduler.MinStaticN1 < 1 || c.Scheduler.MinStaticN2 < 1 {
		return errors.New("scheduler minimum static ids must be at least 1")
	}
	if c.Scheduler.RelativeTolerance <= 0 || c.Scheduler.RelativeTolerance >= 1 {
		return errors.Newf("scheduler.relative_tolerance must be in (0,1), got %g", c.Scheduler.RelativeTolerance)
	}
	if c.Scheduler.FollowUpSeeds < 0 {
		return errors.New("scheduler.follow_up_seeds must not be negative")
	}
	if c.Simulator.Timeout <= 0 {
		return errors.New("simulator.timeout must be positive")
	}
	switch c.Simulator.Runtime {
	case "exec":
		if len(c.Simulator.Command) == 0 {
			return errors.New("simulator.command is required for the exec runtime")
		}
	case "docker":
		if c.Simulator.DockerImage == "" {
			return errors.New("simulator.docker_image is required for the docker runtime")
		}
	default:
		return errors.WithHint(errors.Newf("unknown simulator.runtime %q", c.Simulator.Runtime),
			"use exec or docker")
	}
	if c.OTELSampleRatio <= 0 || c.OTELSampleRatio > 1 {
		return errors.Newf("otel_sample_ratio must be in (0,1], got %g", c.OTELSampleRatio)
	}
	if c.Catalog.BaseFrequency <= 0 {
		return errors.New("catalog.base_frequency must be positive")
	}
	return nil
}

// Threshold returns the convergence threshold for a given total risk estimate.
func (s SchedulerConfig) Threshold(totalRisk float64) float64 {
	return max(s.RelativeTolerance*totalRisk, s.AbsoluteTolerance)
}
