// Package runner executes jobs: repeated simulation runs of one scenario
// under one controller, bounded by a worker pool, with every run's metrics
// persisted for later comparison.
package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"greenwave/internal/config"
	"greenwave/internal/models"
	"greenwave/internal/results"
)

// Runner executes the runs of one job: same scenario, same controller type,
// per-run seeds offset from the job seed.
type Runner struct {
	cfg      config.JobConfig
	scenario config.Scenario
	store    *results.Store
	logger   *slog.Logger
}

// New validates the configuration and prepares a runner. The store is
// optional; without one results only go to per-run JSON files.
func New(cfg config.JobConfig, sc config.Scenario, store *results.Store, logger *slog.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, scenario: sc, store: store, logger: logger}, nil
}

// RunFromConfig loads the scenario the job names, opens the shared results
// store under the results directory, and executes the whole job.
func RunFromConfig(ctx context.Context, cfg config.JobConfig, logger *slog.Logger) (*models.JobResult, error) {
	sc, err := config.LoadScenarioFile(cfg.Scenario)
	if err != nil {
		return nil, err
	}
	store, err := results.Open(results.DBPath(cfg.ResultsDir))
	if err != nil {
		return nil, err
	}
	defer store.Close()

	r, err := New(cfg, sc, store, logger)
	if err != nil {
		return nil, err
	}
	return r.RunMany(ctx)
}

// RunMany executes every run of the job through a bounded worker pool and
// aggregates the summaries. Runs cancelled mid-flight finalize with partial
// data; runs that never started count as skipped. Setup failures are the
// only errors; per-run failures are recorded in the result.
func (r *Runner) RunMany(ctx context.Context) (*models.JobResult, error) {
	startedAt := time.Now()
	jobName := r.cfg.JobName()

	jobDir, err := results.PrepareJobDir(r.cfg.ResultsDir, jobName)
	if err != nil {
		return nil, err
	}
	if err := results.WriteJobConfig(jobDir, r.cfg); err != nil {
		return nil, err
	}

	workers := r.cfg.Workers
	if r.cfg.ControllerKind() == models.ControllerMARL && r.cfg.MARL.Checkpoint != "" && workers > 1 {
		// Runs sharing a checkpoint learn from each other in sequence;
		// racing them would overwrite each other's policy updates.
		r.logger.Warn("serializing runs that share a policy checkpoint", "workers", r.cfg.Workers)
		workers = 1
	}
	if workers > r.cfg.Runs {
		workers = r.cfg.Runs
	}

	r.logger.Info("starting job",
		"job", jobName,
		"controller", r.cfg.Controller,
		"runs", r.cfg.Runs,
		"workers", workers,
		"ticks", r.cfg.Ticks,
	)

	summaries := make([]*models.RunSummary, r.cfg.Runs)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range r.cfg.Runs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil // never started, counted as skipped
			}
			spec := RunSpec{ID: uuid.New().String(), Index: i, Seed: r.cfg.Seed + uint64(i)}
			summary, records, err := r.Execute(gctx, spec)
			if err != nil {
				r.logger.Error("run failed", "run_id", spec.ID, "run_index", i, "err", err)
				summary = r.failedSummary(spec, err)
			}
			if err := results.WriteRun(jobDir, summary, records); err != nil {
				r.logger.Warn("writing run files", "run_id", spec.ID, "err", err)
			}
			if r.store != nil {
				// Persisting must outlive cancellation or partial results
				// would be lost right when they matter.
				if err := r.store.SaveRun(context.Background(), summary, records); err != nil {
					r.logger.Warn("saving run to store", "run_id", spec.ID, "err", err)
				}
			}
			summaries[i] = &summary
			return nil
		})
	}
	// Workers never return errors; failures become failed summaries.
	_ = g.Wait()

	result := r.aggregate(jobName, summaries, startedAt)
	if err := results.WriteJobResult(jobDir, result); err != nil {
		r.logger.Warn("writing job result", "job", jobName, "err", err)
	}

	r.logger.Info("job finished",
		"job", jobName,
		"completed", result.CompletedRuns,
		"failed", result.FailedRuns,
		"skipped", result.SkippedRuns,
		"cancelled", result.Cancelled,
		"duration_sec", result.TotalDurationSec,
	)
	return result, nil
}

func (r *Runner) failedSummary(spec RunSpec, err error) models.RunSummary {
	errType := models.ErrTypeInternal
	if models.IsConfigError(err) {
		errType = models.ErrTypeConfig
	}
	now := time.Now()
	return models.RunSummary{
		RunID:      spec.ID,
		Job:        r.cfg.JobName(),
		Controller: r.cfg.ControllerKind(),
		RunIndex:   spec.Index,
		Seed:       spec.Seed,
		StartedAt:  now,
		EndedAt:    now,
		Error:      &models.RunError{Type: errType, Message: err.Error()},
	}
}

func (r *Runner) aggregate(jobName string, summaries []*models.RunSummary, startedAt time.Time) *models.JobResult {
	result := &models.JobResult{
		JobName:    jobName,
		Controller: r.cfg.ControllerKind(),
		TotalRuns:  len(summaries),
		StartedAt:  startedAt,
		EndedAt:    time.Now(),
	}
	result.TotalDurationSec = result.EndedAt.Sub(result.StartedAt).Seconds()

	var waits, vehicles []float64
	for _, s := range summaries {
		if s == nil {
			result.SkippedRuns++
			result.Cancelled = true
			continue
		}
		result.Runs = append(result.Runs, *s)
		if s.Error != nil {
			result.FailedRuns++
			continue
		}
		result.CompletedRuns++
		if s.Partial {
			result.Cancelled = true
		}
		waits = append(waits, s.MeanWait)
		vehicles = append(vehicles, float64(s.VehiclesPassed))
	}
	if len(waits) > 0 {
		result.MeanWait = stat.Mean(waits, nil)
		result.MeanVehicles = stat.Mean(vehicles, nil)
	}
	return result
}
