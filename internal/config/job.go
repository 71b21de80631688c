package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"greenwave/internal/models"
)

// JobConfig represents the parsed job.yaml configuration: which controller to
// evaluate, how many repeated runs to execute, and where results go.
type JobConfig struct {
	Name       *string `yaml:"name,omitempty" json:"name,omitempty"`
	ResultsDir string  `yaml:"results_dir" json:"results_dir"`
	Scenario   string  `yaml:"scenario" json:"scenario"`
	Controller string  `yaml:"controller" json:"controller"`

	// Runs is the number of repeated executions; each run gets Seed+index.
	Runs    int    `yaml:"runs" json:"runs"`
	Workers int    `yaml:"workers" json:"workers"`
	Ticks   int64  `yaml:"ticks" json:"ticks"`
	Seed    uint64 `yaml:"seed" json:"seed"`

	LogLevel string     `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	MARL     MARLConfig `yaml:"marl,omitempty" json:"marl,omitempty"`
}

// MARLConfig tunes the learning agents. Zero values take defaults from
// DefaultJobConfig; Training defaults to true.
type MARLConfig struct {
	// Checkpoint is a path for persisting policy state across runs. Empty
	// means policies start fresh every run and are discarded at run end.
	Checkpoint string `yaml:"checkpoint,omitempty" json:"checkpoint,omitempty"`
	Training   *bool  `yaml:"training,omitempty" json:"training,omitempty"`

	Gamma        float64 `yaml:"gamma" json:"gamma"`
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate"`
	EpsilonStart float64 `yaml:"epsilon_start" json:"epsilon_start"`
	EpsilonMin   float64 `yaml:"epsilon_min" json:"epsilon_min"`
	EpsilonDecay float64 `yaml:"epsilon_decay" json:"epsilon_decay"`
	ReplaySize   int     `yaml:"replay_size" json:"replay_size"`
	BatchSize    int     `yaml:"batch_size" json:"batch_size"`
	TargetSync   int     `yaml:"target_sync" json:"target_sync"`
}

// TrainingEnabled reports whether agents learn during runs.
func (m MARLConfig) TrainingEnabled() bool {
	return m.Training == nil || *m.Training
}

// DefaultJobConfig returns a JobConfig with default values.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		ResultsDir: "results",
		Controller: string(models.ControllerFixed),
		Runs:       1,
		Workers:    1,
		// 10 simulated minutes at one tick per second.
		Ticks: 600,
		Seed:  1,
		MARL: MARLConfig{
			Gamma:        0.99,
			LearningRate: 1e-3,
			EpsilonStart: 1.0,
			EpsilonMin:   0.05,
			EpsilonDecay: 1e-4,
			ReplaySize:   10000,
			BatchSize:    64,
			TargetSync:   100,
		},
	}
}

// LoadJobConfig loads and parses a job.yaml file, overlaying it on defaults
// and validating the result. Any invalid value fails with a ConfigError
// before simulation starts.
func LoadJobConfig(path string) (JobConfig, error) {
	cfg := DefaultJobConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading job config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing job config: %w", err)
	}

	// Re-apply defaults for values the file zeroed out.
	def := DefaultJobConfig()
	if cfg.ResultsDir == "" {
		cfg.ResultsDir = def.ResultsDir
	}
	if cfg.Runs == 0 {
		cfg.Runs = def.Runs
	}
	if cfg.Workers == 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Ticks == 0 {
		cfg.Ticks = def.Ticks
	}
	if cfg.MARL.Gamma == 0 {
		cfg.MARL.Gamma = def.MARL.Gamma
	}
	if cfg.MARL.LearningRate == 0 {
		cfg.MARL.LearningRate = def.MARL.LearningRate
	}
	if cfg.MARL.EpsilonStart == 0 {
		cfg.MARL.EpsilonStart = def.MARL.EpsilonStart
	}
	if cfg.MARL.EpsilonMin == 0 {
		cfg.MARL.EpsilonMin = def.MARL.EpsilonMin
	}
	if cfg.MARL.EpsilonDecay == 0 {
		cfg.MARL.EpsilonDecay = def.MARL.EpsilonDecay
	}
	if cfg.MARL.ReplaySize == 0 {
		cfg.MARL.ReplaySize = def.MARL.ReplaySize
	}
	if cfg.MARL.BatchSize == 0 {
		cfg.MARL.BatchSize = def.MARL.BatchSize
	}
	if cfg.MARL.TargetSync == 0 {
		cfg.MARL.TargetSync = def.MARL.TargetSync
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the job configuration; it returns a *models.ConfigError on
// the first invalid field.
func (c JobConfig) Validate() error {
	if _, err := models.ParseControllerKind(c.Controller); err != nil {
		return err
	}
	if c.Scenario == "" {
		return &models.ConfigError{Field: "scenario", Detail: "a scenario path or builtin name is required"}
	}
	if c.Runs < 1 {
		return &models.ConfigError{Field: "runs", Detail: fmt.Sprintf("must be at least 1, got %d", c.Runs)}
	}
	if c.Workers < 1 {
		return &models.ConfigError{Field: "workers", Detail: fmt.Sprintf("must be at least 1, got %d", c.Workers)}
	}
	if c.Ticks < 1 {
		return &models.ConfigError{Field: "ticks", Detail: fmt.Sprintf("must be at least 1, got %d", c.Ticks)}
	}
	m := c.MARL
	if m.Gamma <= 0 || m.Gamma > 1 {
		return &models.ConfigError{Field: "marl.gamma", Detail: fmt.Sprintf("must be in (0, 1], got %v", m.Gamma)}
	}
	if m.LearningRate <= 0 {
		return &models.ConfigError{Field: "marl.learning_rate", Detail: fmt.Sprintf("must be positive, got %v", m.LearningRate)}
	}
	if m.EpsilonStart < 0 || m.EpsilonStart > 1 {
		return &models.ConfigError{Field: "marl.epsilon_start", Detail: fmt.Sprintf("must be in [0, 1], got %v", m.EpsilonStart)}
	}
	if m.EpsilonMin < 0 || m.EpsilonMin > m.EpsilonStart {
		return &models.ConfigError{Field: "marl.epsilon_min", Detail: fmt.Sprintf("must be in [0, epsilon_start], got %v", m.EpsilonMin)}
	}
	if m.EpsilonDecay < 0 {
		return &models.ConfigError{Field: "marl.epsilon_decay", Detail: fmt.Sprintf("must be non-negative, got %v", m.EpsilonDecay)}
	}
	if m.BatchSize < 1 {
		return &models.ConfigError{Field: "marl.batch_size", Detail: fmt.Sprintf("must be at least 1, got %d", m.BatchSize)}
	}
	if m.ReplaySize < m.BatchSize {
		return &models.ConfigError{Field: "marl.replay_size", Detail: fmt.Sprintf("must hold at least one batch (%d), got %d", m.BatchSize, m.ReplaySize)}
	}
	if m.TargetSync < 1 {
		return &models.ConfigError{Field: "marl.target_sync", Detail: fmt.Sprintf("must be at least 1, got %d", m.TargetSync)}
	}
	if c.LogLevel != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return &models.ConfigError{Field: "log_level", Detail: fmt.Sprintf("unknown level %q", c.LogLevel)}
		}
	}
	return nil
}

// Level returns the configured log level, defaulting to info.
func (c JobConfig) Level() slog.Level {
	if c.LogLevel == "" {
		return slog.LevelInfo
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// ControllerKind returns the validated controller selection.
func (c JobConfig) ControllerKind() models.ControllerKind {
	kind, err := models.ParseControllerKind(c.Controller)
	if err != nil {
		// Validate() runs before any use; reaching here is a programming error.
		return models.ControllerFixed
	}
	return kind
}

// JobName returns the configured name or a fallback derived from controller.
func (c JobConfig) JobName() string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	return fmt.Sprintf("%s-job", c.Controller)
}
