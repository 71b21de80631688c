package control

import (
	"math"

	"greenwave/internal/models"
	"greenwave/internal/sim"
)

// Controller decides signal switching for a whole network. One controller
// instance drives one run.
type Controller interface {
	// Kind identifies the strategy for reporting.
	Kind() models.ControllerKind

	// Decide inspects the world after a tick and requests the phase switches
	// that should take effect on the next tick.
	Decide(tick int64, stats sim.TickStats) error

	// Faults returns how many recoverable learning faults occurred so far.
	// Strategies that do not learn always return 0.
	Faults() int64

	// Close releases the controller and persists any state it keeps across
	// runs.
	Close() error
}

// Action is an agent's per-tick choice for its signal.
type Action int

const (
	// ActionExtend holds the current phase.
	ActionExtend Action = iota
	// ActionSwitch asks to end the current green.
	ActionSwitch
)

// ActionCount is the size of the action space.
const ActionCount = 2

func (a Action) String() string {
	switch a {
	case ActionExtend:
		return "extend"
	case ActionSwitch:
		return "switch"
	default:
		return "unknown"
	}
}

// Observation is the feature vector one agent sees: its own intersection
// only, nothing network-wide.
type Observation []float64

// ObservationSize is the length of every observation: four queue occupancies,
// four head-of-queue waits, the phase one-hot, and the phase age.
const ObservationSize = 12

// Observe builds the local feature vector for one intersection. All features
// are scaled into [0, 1]: queue lengths by lane capacity, waits and phase age
// by the forced-switch bound, saturating at 1.
func Observe(ix *sim.Intersection, tick int64) Observation {
	obs := make(Observation, 0, ObservationSize)
	maxGreen := float64(ix.MaxGreen())

	for _, d := range models.Directions {
		lane := ix.Lane(d)
		obs = append(obs, float64(lane.Len())/float64(lane.Capacity()))
	}
	for _, d := range models.Directions {
		wait := float64(ix.Lane(d).HeadWait(tick)) / maxGreen
		obs = append(obs, math.Min(wait, 1))
	}
	for _, p := range []models.SignalPhase{models.PhaseNSGreen, models.PhaseEWGreen, models.PhaseYellow} {
		if ix.Phase() == p {
			obs = append(obs, 1)
		} else {
			obs = append(obs, 0)
		}
	}
	obs = append(obs, math.Min(float64(ix.Elapsed())/maxGreen, 1))
	return obs
}
