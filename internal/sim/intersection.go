package sim

import (
	"greenwave/internal/models"
)

// Intersection is one signalized junction with four approach lanes. Its
// signal cycles NSGreen -> Yellow -> EWGreen -> Yellow -> NSGreen; yellow
// always separates the two greens and no approach flows during yellow.
type Intersection struct {
	id    string
	lanes [4]*Lane
	// out maps each heading to the downstream approach lane, nil when the
	// vehicle leaves the network after crossing.
	out [4]*Lane

	phase     models.SignalPhase
	nextGreen models.SignalPhase
	// elapsed counts the ticks the current phase has served, including the
	// tick most recently advanced.
	elapsed int64

	minGreen   int64
	yellow     int64
	maxGreen   int64
	saturation int

	switchRequested bool
}

// IntersectionTiming bounds the phase durations of one intersection.
type IntersectionTiming struct {
	MinGreen int64
	Yellow   int64
	MaxGreen int64
}

// NewIntersection creates an intersection resting in the north-south green
// phase with empty lanes.
func NewIntersection(id string, timing IntersectionTiming, laneCapacity, saturationFlow int) *Intersection {
	ix := &Intersection{
		id:         id,
		phase:      models.PhaseNSGreen,
		nextGreen:  models.PhaseEWGreen,
		minGreen:   timing.MinGreen,
		yellow:     timing.Yellow,
		maxGreen:   timing.MaxGreen,
		saturation: saturationFlow,
	}
	for _, d := range models.Directions {
		ix.lanes[d] = NewLane(id, d, laneCapacity)
	}
	return ix
}

// ID returns the intersection identifier.
func (ix *Intersection) ID() string { return ix.id }

// Phase returns the current signal phase.
func (ix *Intersection) Phase() models.SignalPhase { return ix.phase }

// Elapsed returns how many ticks the current phase has served.
func (ix *Intersection) Elapsed() int64 { return ix.elapsed }

// MaxGreen returns the forced-switch bound for green phases, in ticks.
func (ix *Intersection) MaxGreen() int64 { return ix.maxGreen }

// MinGreen returns the minimum green dwell, in ticks.
func (ix *Intersection) MinGreen() int64 { return ix.minGreen }

// Lane returns the approach lane carrying traffic with the given heading.
func (ix *Intersection) Lane(d models.Direction) *Lane { return ix.lanes[d] }

// QueueLen returns the total number of vehicles queued across all approaches.
func (ix *Intersection) QueueLen() int {
	total := 0
	for _, l := range ix.lanes {
		total += l.Len()
	}
	return total
}

// connect routes vehicles with the given heading into a downstream lane
// after they cross this intersection.
func (ix *Intersection) connect(d models.Direction, downstream *Lane) {
	ix.out[d] = downstream
}

// RequestSwitch asks the signal to end the current green at the next
// Advance. The request is consumed by that Advance and honored only if the
// phase is green and has served at least the minimum green time; a request
// made during yellow, or before the dwell is satisfied, is dropped.
func (ix *Intersection) RequestSwitch() {
	ix.switchRequested = true
}

// StepStats summarizes what one Advance did at one intersection.
type StepStats struct {
	// Departed counts vehicles that crossed the stop line, whether they
	// exited the network or joined a downstream lane.
	Departed int
	// Exited counts vehicles that left the network at this intersection.
	Exited int
	// Blocked counts lanes whose discharge was cut short by a full
	// downstream lane.
	Blocked int
	// Switched reports whether the signal changed phase during this tick.
	Switched bool
}

// Advance moves the intersection one tick forward: the phase timer runs, due
// transitions fire, and if a green is showing, served lanes discharge up to
// the saturation flow. A green never serves fewer than minGreen or more than
// maxGreen ticks, and a vehicle that joined a lane this tick crosses no
// earlier than the next tick.
func (ix *Intersection) Advance(tick int64) StepStats {
	var stats StepStats
	ix.elapsed++

	switch {
	case ix.phase == models.PhaseYellow:
		if ix.elapsed > ix.yellow {
			ix.phase = ix.nextGreen
			ix.elapsed = 1
			stats.Switched = true
		}
	case ix.phase.IsGreen():
		forced := ix.elapsed > ix.maxGreen
		requested := ix.switchRequested && ix.elapsed > ix.minGreen
		if forced || requested {
			ix.nextGreen = ix.phase.NextGreen()
			ix.phase = models.PhaseYellow
			ix.elapsed = 1
			stats.Switched = true
		}
	}
	ix.switchRequested = false

	if !ix.phase.IsGreen() {
		return stats
	}

	for _, d := range models.Directions {
		if !ix.phase.Serves(d) {
			continue
		}
		lane := ix.lanes[d]
		for moved := 0; moved < ix.saturation && lane.Len() > 0; moved++ {
			// A vehicle spends at least one full tick in a lane, so traffic
			// admitted this tick holds until the next one. This keeps flow
			// independent of the order intersections advance in.
			if lane.Head().EnqueuedAt >= tick {
				break
			}
			dest := ix.out[d]
			if dest != nil && dest.Full() {
				// Spillback: the downstream queue has no room, so the
				// vehicle holds at the stop line.
				stats.Blocked++
				break
			}
			v := lane.Dequeue()
			stats.Departed++
			if dest == nil {
				stats.Exited++
				continue
			}
			dest.push(v, tick)
		}
	}
	return stats
}
