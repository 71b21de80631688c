package sim

import (
	"log/slog"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"greenwave/internal/models"
)

// Arrivals spawns vehicles at the network's entry points. Each entry draws an
// independent Poisson count per tick; all entries share one seeded source, so
// arrivals are reproducible for a given seed and scenario.
type Arrivals struct {
	sources []arrivalSource
	nextID  uint64
	spawned int64
	dropped int64
	logger  *slog.Logger
}

type arrivalSource struct {
	lane *Lane
	dist distuv.Poisson
}

// NewArrivals attaches a seeded arrival process to every entry point with a
// positive rate.
func NewArrivals(n *Network, seed uint64, logger *slog.Logger) *Arrivals {
	if logger == nil {
		logger = slog.Default()
	}
	src := rand.NewSource(seed)
	a := &Arrivals{logger: logger}
	for _, e := range n.Entries() {
		if e.Rate <= 0 {
			continue
		}
		a.sources = append(a.sources, arrivalSource{
			lane: e.Lane,
			dist: distuv.Poisson{Lambda: e.Rate, Src: src},
		})
	}
	return a
}

// Step draws this tick's arrivals for every entry. A vehicle arriving at a
// full lane is dropped and counted; the run carries on.
func (a *Arrivals) Step(tick int64) (spawned, dropped int) {
	for i := range a.sources {
		s := &a.sources[i]
		count := int(s.dist.Rand())
		for range count {
			v := &Vehicle{
				ID:        a.nextID + 1,
				Heading:   s.lane.Heading(),
				SpawnedAt: tick,
			}
			if err := s.lane.Enqueue(v, tick); err != nil {
				dropped++
				a.logger.Debug("arrival dropped",
					"error_type", string(models.ErrTypeCapacityExceeded),
					"lane", s.lane.ID(),
					"tick", tick,
					"err", err,
				)
				continue
			}
			a.nextID++
			spawned++
		}
	}
	a.spawned += int64(spawned)
	a.dropped += int64(dropped)
	return spawned, dropped
}

// Spawned returns the total number of vehicles admitted so far.
func (a *Arrivals) Spawned() int64 { return a.spawned }

// Dropped returns the total number of arrivals rejected by full lanes.
func (a *Arrivals) Dropped() int64 { return a.dropped }
