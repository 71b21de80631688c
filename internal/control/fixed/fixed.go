package fixed

import (
	"greenwave/internal/control"
	"greenwave/internal/models"
	"greenwave/internal/sim"
)

// Controller runs every signal on a fixed timetable: hold the north-south
// green for its planned duration, switch, hold the east-west green, repeat.
// It ignores traffic entirely, which makes it the reproducible baseline the
// learning controller is compared against.
type Controller struct {
	network *sim.Network
	nsGreen int64
	ewGreen int64
}

var _ control.Controller = (*Controller)(nil)

// NewController builds a fixed-time controller with the given green
// durations in ticks. The durations must lie within the network's dwell
// bounds; scenario validation guarantees that for configured plans.
func NewController(n *sim.Network, nsGreen, ewGreen int64) *Controller {
	return &Controller{network: n, nsGreen: nsGreen, ewGreen: ewGreen}
}

// Kind returns models.ControllerFixed.
func (c *Controller) Kind() models.ControllerKind { return models.ControllerFixed }

// Decide requests a switch at every intersection whose green has served its
// planned duration. Yellows run on the intersection's own timer.
func (c *Controller) Decide(tick int64, stats sim.TickStats) error {
	for _, ix := range c.network.Intersections() {
		phase := ix.Phase()
		if !phase.IsGreen() {
			continue
		}
		plan := c.nsGreen
		if phase == models.PhaseEWGreen {
			plan = c.ewGreen
		}
		if ix.Elapsed() >= plan {
			ix.RequestSwitch()
		}
	}
	return nil
}

// Faults always returns 0; a timetable cannot fault.
func (c *Controller) Faults() int64 { return 0 }

// Close is a no-op.
func (c *Controller) Close() error { return nil }
