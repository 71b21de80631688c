package sim

import "greenwave/internal/models"

// Vehicle is a single queued unit of traffic. Vehicles keep the heading they
// spawned with and travel straight through every intersection on their path.
type Vehicle struct {
	ID      uint64
	Heading models.Direction

	// SpawnedAt is the tick the vehicle entered the network; EnqueuedAt is
	// the tick it joined its current lane. Both are measured in simulated
	// seconds (one tick is one second).
	SpawnedAt  int64
	EnqueuedAt int64
}

// Wait reports how many ticks the vehicle has been held in its current lane.
func (v *Vehicle) Wait(tick int64) int64 {
	if tick < v.EnqueuedAt {
		return 0
	}
	return tick - v.EnqueuedAt
}
