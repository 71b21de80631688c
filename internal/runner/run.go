package runner

import (
	"context"
	"fmt"

	"greenwave/internal/control"
	"greenwave/internal/control/fixed"
	"greenwave/internal/control/marl"
	"greenwave/internal/metrics"
	"greenwave/internal/models"
	"greenwave/internal/sim"
)

// agentSeedSalt decorrelates agent exploration from the arrival stream,
// which draws from the same run seed.
const agentSeedSalt = 0x9E3779B97F4A7C15

// RunSpec identifies one run within a job.
type RunSpec struct {
	ID    string
	Index int
	Seed  uint64
}

// Execute performs one complete simulation run: build a fresh network, step
// the world tick by tick, let the controller decide after each tick, and
// record metrics last so queue snapshots line up with decisions. Cancelling
// the context ends the run early with a partial summary; that is not an
// error. Errors are reserved for invalid setup.
func (r *Runner) Execute(ctx context.Context, spec RunSpec) (models.RunSummary, []models.MetricRecord, error) {
	network, err := sim.BuildNetwork(r.scenario)
	if err != nil {
		return models.RunSummary{}, nil, err
	}
	ctrl, err := r.newController(network, spec.Seed)
	if err != nil {
		return models.RunSummary{}, nil, err
	}

	world := sim.NewWorld(network, spec.Seed, r.logger)
	rec := metrics.NewRecorder(metrics.RunInfo{
		ID:         spec.ID,
		Job:        r.cfg.JobName(),
		Controller: ctrl.Kind(),
		Index:      spec.Index,
		Seed:       spec.Seed,
	})

	partial := false
loop:
	for world.Tick() < r.cfg.Ticks {
		select {
		case <-ctx.Done():
			partial = true
			break loop
		default:
		}
		stats := world.Step()
		if err := ctrl.Decide(stats.Tick, stats); err != nil {
			return models.RunSummary{}, nil, fmt.Errorf("controller decision at tick %d: %w", stats.Tick, err)
		}
		rec.Record(stats)
	}

	if err := ctrl.Close(); err != nil {
		r.logger.Warn("closing controller", "run_id", spec.ID, "err", err)
	}
	if partial {
		r.logger.Info("run cancelled, finalizing partial results",
			"error_type", string(models.ErrTypeEarlyTermination),
			"run_id", spec.ID,
			"ticks", world.Tick(),
		)
	}

	summary := rec.Finalize(partial, ctrl.Faults())
	r.logger.Debug("run complete",
		"run_id", spec.ID,
		"run_index", spec.Index,
		"controller", string(ctrl.Kind()),
		"ticks", summary.Ticks,
		"vehicles_passed", summary.VehiclesPassed,
		"total_wait", summary.TotalWait,
		"dropped", summary.DroppedVehicles,
	)
	return summary, rec.Records(), nil
}

// newController builds the configured strategy for one run's network. The
// set of strategies is closed; selection happens here, from configuration
// validated before any run starts.
func (r *Runner) newController(n *sim.Network, seed uint64) (control.Controller, error) {
	switch r.cfg.ControllerKind() {
	case models.ControllerFixed:
		return fixed.NewController(n, r.scenario.Fixed.NSGreen, r.scenario.Fixed.EWGreen), nil
	case models.ControllerMARL:
		return marl.NewController(n, r.cfg.MARL, seed^agentSeedSalt, r.logger)
	default:
		return nil, &models.ConfigError{Field: "controller", Detail: fmt.Sprintf("unknown controller type %q", r.cfg.Controller)}
	}
}
