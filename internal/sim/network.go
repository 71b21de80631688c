package sim

import (
	"greenwave/internal/config"
	"greenwave/internal/models"
)

// Network is a built road network: intersections in scenario declaration
// order, their downstream wiring, and the entry points where traffic arrives.
type Network struct {
	intersections []*Intersection
	byID          map[string]*Intersection
	entries       []EntryPoint
}

// EntryPoint is one approach lane fed from outside the network at the given
// expected vehicles per tick.
type EntryPoint struct {
	Lane *Lane
	Rate float64
}

// BuildNetwork constructs the network a scenario describes. The scenario is
// validated first, so a network that builds successfully has unique
// intersections, resolvable links, an acyclic link graph, and sane timing.
func BuildNetwork(sc config.Scenario) (*Network, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	n := &Network{byID: make(map[string]*Intersection, len(sc.Intersections))}
	for _, ic := range sc.Intersections {
		minGreen, yellow, maxGreen := ic.Timing(sc.Timing)
		ix := NewIntersection(ic.ID, IntersectionTiming{
			MinGreen: minGreen,
			Yellow:   yellow,
			MaxGreen: maxGreen,
		}, sc.Lanes.Capacity, sc.Lanes.SaturationFlow)
		n.intersections = append(n.intersections, ix)
		n.byID[ic.ID] = ix
	}

	for _, l := range sc.Links {
		dir, err := models.ParseDirection(l.Direction)
		if err != nil {
			return nil, err
		}
		n.byID[l.From].connect(dir, n.byID[l.To].Lane(dir))
	}

	for _, e := range sc.Entries {
		dir, err := models.ParseDirection(e.Direction)
		if err != nil {
			return nil, err
		}
		n.entries = append(n.entries, EntryPoint{
			Lane: n.byID[e.Intersection].Lane(dir),
			Rate: e.Rate,
		})
	}
	return n, nil
}

// Intersections returns all intersections in declaration order.
func (n *Network) Intersections() []*Intersection { return n.intersections }

// Intersection looks an intersection up by id.
func (n *Network) Intersection(id string) (*Intersection, bool) {
	ix, ok := n.byID[id]
	return ix, ok
}

// Entries returns the entry points in declaration order.
func (n *Network) Entries() []EntryPoint { return n.entries }

// QueueTotal returns the number of vehicles currently queued anywhere in the
// network.
func (n *Network) QueueTotal() int {
	total := 0
	for _, ix := range n.intersections {
		total += ix.QueueLen()
	}
	return total
}
