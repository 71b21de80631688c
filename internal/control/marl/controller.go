package marl

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/exp/rand"

	"greenwave/internal/config"
	"greenwave/internal/control"
	"greenwave/internal/models"
	"greenwave/internal/sim"
)

// Controller drives one learning agent per intersection. Each agent observes
// only its own approaches and picks extend or switch every tick; wider
// coordination emerges through the traffic intersections pass to each other,
// never through shared state.
type Controller struct {
	network *sim.Network
	agents  []*Agent
	pending []pendingStep

	training       bool
	checkpointPath string
	faults         int64
	logger         *slog.Logger
}

var _ control.Controller = (*Controller)(nil)

// pendingStep holds the observation and action an agent took, waiting for
// the following tick's outcome to complete the transition.
type pendingStep struct {
	obs    control.Observation
	action control.Action
	valid  bool
}

// queuePenalty prices one queued vehicle-tick against a stop-line crossing
// in the reward; stopPenalty charges extra for vehicles held behind a phase
// that is not serving them.
const (
	queuePenalty = 0.1
	stopPenalty  = 0.2
)

// NewController builds one agent per intersection, restoring policies from
// the configured checkpoint when one exists.
func NewController(n *sim.Network, cfg config.MARLConfig, seed uint64, logger *slog.Logger) (*Controller, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		network:        n,
		training:       cfg.TrainingEnabled(),
		checkpointPath: cfg.Checkpoint,
		logger:         logger,
	}

	var cp *Checkpoint
	if cfg.Checkpoint != "" {
		loaded, err := LoadCheckpoint(cfg.Checkpoint)
		if err != nil {
			return nil, err
		}
		cp = loaded
	}

	rng := rand.New(rand.NewSource(seed))
	for _, ix := range n.Intersections() {
		agent := NewAgent(ix.ID(), cfg, rng)
		if cp != nil {
			if st, ok := cp.Agents[ix.ID()]; ok {
				if err := agent.RestoreState(st); err != nil {
					return nil, fmt.Errorf("restoring agent %s: %w", ix.ID(), err)
				}
			}
		}
		c.agents = append(c.agents, agent)
	}
	c.pending = make([]pendingStep, len(c.agents))
	return c, nil
}

// Kind returns models.ControllerMARL.
func (c *Controller) Kind() models.ControllerKind { return models.ControllerMARL }

// Decide completes each agent's previous transition with this tick's reward,
// then acts on the fresh observation. A switch request that the intersection
// is not yet allowed to honor is simply dropped there; the agent still
// learns from having chosen it.
func (c *Controller) Decide(tick int64, stats sim.TickStats) error {
	for i, ix := range c.network.Intersections() {
		obs := control.Observe(ix, tick)

		if c.training && c.pending[i].valid {
			r := reward(ix, stats.Intersections[i].Departed)
			if fault := c.agents[i].Learn(c.pending[i].obs, c.pending[i].action, r, obs); fault {
				c.faults++
				c.logger.Warn("discarded unstable policy update",
					"error_type", string(models.ErrTypeLearningInstability),
					"intersection", ix.ID(),
					"tick", tick,
					"faults", c.faults,
				)
			}
		}

		action := c.agents[i].Act(obs, c.training)
		if action == control.ActionSwitch {
			ix.RequestSwitch()
		}
		c.pending[i] = pendingStep{obs: obs, action: action, valid: true}
	}
	return nil
}

// reward scores the tick one agent just caused: each stop-line crossing is
// worth one, every queued vehicle charges a holding cost, and vehicles the
// current phase leaves stopped charge a steeper one. During yellow nothing
// is served, so the whole queue counts as stopped.
func reward(ix *sim.Intersection, departed int) float64 {
	var queued, stopped int
	for _, d := range models.Directions {
		n := ix.Lane(d).Len()
		queued += n
		if !ix.Phase().Serves(d) {
			stopped += n
		}
	}
	return float64(departed) - queuePenalty*float64(queued) - stopPenalty*float64(stopped)
}

// Faults returns how many non-finite updates were rolled back.
func (c *Controller) Faults() int64 { return c.faults }

// Agents returns the per-intersection learners in network order.
func (c *Controller) Agents() []*Agent { return c.agents }

// Close saves the agents' policies when training with a checkpoint path
// configured; evaluation runs never overwrite a checkpoint.
func (c *Controller) Close() error {
	if !c.training || c.checkpointPath == "" {
		return nil
	}
	cp := &Checkpoint{
		SavedAt: time.Now().UTC(),
		Agents:  make(map[string]AgentState, len(c.agents)),
	}
	for _, a := range c.agents {
		cp.Agents[a.ID()] = a.State()
	}
	return cp.Save(c.checkpointPath)
}
