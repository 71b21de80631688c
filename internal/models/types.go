package models

import "fmt"

// ControllerKind identifies a signal-control strategy. The set is closed:
// controllers are selected at construction time from validated configuration.
type ControllerKind string

const (
	ControllerFixed ControllerKind = "fixed"
	ControllerMARL  ControllerKind = "marl"
)

// ParseControllerKind validates a configured controller name.
func ParseControllerKind(s string) (ControllerKind, error) {
	switch ControllerKind(s) {
	case ControllerFixed, ControllerMARL:
		return ControllerKind(s), nil
	case "":
		return ControllerFixed, nil
	default:
		return "", &ConfigError{Field: "controller", Detail: fmt.Sprintf("unknown controller type %q (want %q or %q)", s, ControllerFixed, ControllerMARL)}
	}
}

// Direction is the heading of traffic on an approach lane. A lane keyed by
// North carries vehicles traveling northbound toward the intersection.
type Direction int

const (
	North Direction = iota
	South
	East
	West
)

// Directions lists all headings in the fixed iteration order used everywhere
// in the simulation. Stable ordering keeps runs reproducible.
var Directions = [4]Direction{North, South, East, West}

func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case South:
		return "south"
	case East:
		return "east"
	case West:
		return "west"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// ParseDirection converts a configured heading name.
func ParseDirection(s string) (Direction, error) {
	for _, d := range Directions {
		if d.String() == s {
			return d, nil
		}
	}
	return 0, &ConfigError{Field: "direction", Detail: fmt.Sprintf("unknown direction %q", s)}
}

// SignalPhase is a signal configuration granting right-of-way to a subset of
// an intersection's approaches. Yellow is the mandated transitional phase
// between the two greens; no approach flows during yellow.
type SignalPhase int

const (
	PhaseNSGreen SignalPhase = iota
	PhaseEWGreen
	PhaseYellow
)

func (p SignalPhase) String() string {
	switch p {
	case PhaseNSGreen:
		return "ns_green"
	case PhaseEWGreen:
		return "ew_green"
	case PhaseYellow:
		return "yellow"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Serves reports whether approaches heading d have right-of-way under p.
func (p SignalPhase) Serves(d Direction) bool {
	switch p {
	case PhaseNSGreen:
		return d == North || d == South
	case PhaseEWGreen:
		return d == East || d == West
	}
	return false
}

// NextGreen returns the green phase that follows p in the two-phase cycle.
func (p SignalPhase) NextGreen() SignalPhase {
	if p == PhaseNSGreen {
		return PhaseEWGreen
	}
	return PhaseNSGreen
}

// IsGreen reports whether p grants right-of-way to any approach.
func (p SignalPhase) IsGreen() bool {
	return p == PhaseNSGreen || p == PhaseEWGreen
}
