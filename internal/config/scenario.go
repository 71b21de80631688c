package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/samber/lo"

	"greenwave/internal/models"
)

// Scenario describes a road network: intersections, the directed links
// between them, entry points where traffic arrives, and signal timing.
type Scenario struct {
	Version string `toml:"version"`
	Name    string `toml:"name"`

	Timing        TimingConfig         `toml:"timing"`
	Lanes         LanesConfig          `toml:"lanes"`
	Fixed         FixedPlanConfig      `toml:"fixed"`
	Intersections []IntersectionConfig `toml:"intersections"`
	Links         []LinkConfig         `toml:"links"`
	Entries       []EntryConfig        `toml:"entries"`
}

// TimingConfig bounds how long a green phase may hold, in ticks.
type TimingConfig struct {
	MinGreen int64 `toml:"min_green"`
	Yellow   int64 `toml:"yellow"`
	MaxGreen int64 `toml:"max_green"`
}

// LanesConfig sets per-lane geometry shared by every approach.
type LanesConfig struct {
	Capacity int `toml:"capacity"`
	// SaturationFlow is the number of vehicles a green approach discharges
	// per tick.
	SaturationFlow int `toml:"saturation_flow"`
}

// FixedPlanConfig is the cycle used by the fixed-time controller.
type FixedPlanConfig struct {
	NSGreen int64 `toml:"ns_green"`
	EWGreen int64 `toml:"ew_green"`
}

// IntersectionConfig declares one signalized intersection. Zero timing
// fields inherit the scenario-wide [timing] table.
type IntersectionConfig struct {
	ID       string `toml:"id"`
	MinGreen int64  `toml:"min_green"`
	Yellow   int64  `toml:"yellow"`
	MaxGreen int64  `toml:"max_green"`
}

// LinkConfig routes vehicles leaving From through the Direction approach of
// To. A vehicle departing an intersection continues straight, so the link's
// direction is the direction the vehicle was already travelling.
type LinkConfig struct {
	From      string `toml:"from"`
	Direction string `toml:"direction"`
	To        string `toml:"to"`
}

// EntryConfig attaches an arrival process to one approach lane. Rate is the
// expected number of vehicles per tick.
type EntryConfig struct {
	Intersection string  `toml:"intersection"`
	Direction    string  `toml:"direction"`
	Rate         float64 `toml:"rate"`
}

// DefaultScenario returns scenario-wide defaults applied before decoding.
func DefaultScenario() Scenario {
	return Scenario{
		Version: "1",
		Timing: TimingConfig{
			MinGreen: 1,
			Yellow:   2,
			MaxGreen: 10,
		},
		Lanes: LanesConfig{
			Capacity:       20,
			SaturationFlow: 1,
		},
		Fixed: FixedPlanConfig{
			NSGreen: 5,
			EWGreen: 5,
		},
	}
}

// LoadScenario loads and parses a scenario TOML file from the given
// filesystem, overlaying it on defaults and validating the result.
func LoadScenario(fsys fs.FS, name string) (Scenario, error) {
	sc := DefaultScenario()

	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return sc, fmt.Errorf("reading scenario: %w", err)
	}

	if err := toml.Unmarshal(data, &sc); err != nil {
		return sc, fmt.Errorf("parsing scenario: %w", err)
	}

	def := DefaultScenario()
	if sc.Timing.MinGreen == 0 {
		sc.Timing.MinGreen = def.Timing.MinGreen
	}
	if sc.Timing.Yellow == 0 {
		sc.Timing.Yellow = def.Timing.Yellow
	}
	if sc.Timing.MaxGreen == 0 {
		sc.Timing.MaxGreen = def.Timing.MaxGreen
	}
	if sc.Lanes.Capacity == 0 {
		sc.Lanes.Capacity = def.Lanes.Capacity
	}
	if sc.Lanes.SaturationFlow == 0 {
		sc.Lanes.SaturationFlow = def.Lanes.SaturationFlow
	}
	if sc.Fixed.NSGreen == 0 {
		sc.Fixed.NSGreen = def.Fixed.NSGreen
	}
	if sc.Fixed.EWGreen == 0 {
		sc.Fixed.EWGreen = def.Fixed.EWGreen
	}
	if sc.Name == "" {
		sc.Name = trimExt(name)
	}

	if err := sc.Validate(); err != nil {
		return sc, err
	}
	return sc, nil
}

// LoadScenarioFile loads a scenario from a path on the host filesystem.
func LoadScenarioFile(path string) (Scenario, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("resolving scenario path: %w", err)
	}
	dir, name := filepath.Split(abs)
	return LoadScenario(os.DirFS(dir), name)
}

func trimExt(name string) string {
	base := filepath.Base(name)
	return base[:len(base)-len(filepath.Ext(base))]
}

// Validate checks field-level constraints and reference integrity. Signal
// timing must leave room for at least one feasible green, every link and
// entry must name a declared intersection, and no approach may be fed twice.
func (s Scenario) Validate() error {
	t := s.Timing
	if t.MinGreen < 1 {
		return &models.ConfigError{Field: "timing.min_green", Detail: fmt.Sprintf("must be at least 1 tick, got %d", t.MinGreen)}
	}
	if t.Yellow < 1 {
		return &models.ConfigError{Field: "timing.yellow", Detail: fmt.Sprintf("must be at least 1 tick, got %d", t.Yellow)}
	}
	if t.MaxGreen < t.MinGreen {
		return &models.ConfigError{Field: "timing.max_green", Detail: fmt.Sprintf("must be at least min_green (%d), got %d", t.MinGreen, t.MaxGreen)}
	}
	if s.Lanes.Capacity < 1 {
		return &models.ConfigError{Field: "lanes.capacity", Detail: fmt.Sprintf("must be at least 1, got %d", s.Lanes.Capacity)}
	}
	if s.Lanes.SaturationFlow < 1 {
		return &models.ConfigError{Field: "lanes.saturation_flow", Detail: fmt.Sprintf("must be at least 1, got %d", s.Lanes.SaturationFlow)}
	}
	if s.Fixed.NSGreen < t.MinGreen || s.Fixed.NSGreen > t.MaxGreen {
		return &models.ConfigError{Field: "fixed.ns_green", Detail: fmt.Sprintf("must be within [min_green, max_green] = [%d, %d], got %d", t.MinGreen, t.MaxGreen, s.Fixed.NSGreen)}
	}
	if s.Fixed.EWGreen < t.MinGreen || s.Fixed.EWGreen > t.MaxGreen {
		return &models.ConfigError{Field: "fixed.ew_green", Detail: fmt.Sprintf("must be within [min_green, max_green] = [%d, %d], got %d", t.MinGreen, t.MaxGreen, s.Fixed.EWGreen)}
	}

	if len(s.Intersections) == 0 {
		return &models.ConfigError{Field: "intersections", Detail: "at least one intersection is required"}
	}
	ids := make(map[string]bool, len(s.Intersections))
	for i, ix := range s.Intersections {
		field := fmt.Sprintf("intersections[%d]", i)
		if ix.ID == "" {
			return &models.ConfigError{Field: field + ".id", Detail: "must not be empty"}
		}
		if ids[ix.ID] {
			return &models.ConfigError{Field: field + ".id", Detail: fmt.Sprintf("duplicate intersection %q", ix.ID)}
		}
		ids[ix.ID] = true
		min, yellow, max := ix.Timing(t)
		if min < 1 || yellow < 1 || max < min {
			return &models.ConfigError{Field: field, Detail: fmt.Sprintf("invalid timing override for %q", ix.ID)}
		}
	}

	type approach struct {
		id  string
		dir models.Direction
	}
	fed := make(map[approach]string)
	for i, l := range s.Links {
		field := fmt.Sprintf("links[%d]", i)
		if !ids[l.From] {
			return &models.ConfigError{Field: field + ".from", Detail: fmt.Sprintf("unknown intersection %q", l.From)}
		}
		if !ids[l.To] {
			return &models.ConfigError{Field: field + ".to", Detail: fmt.Sprintf("unknown intersection %q", l.To)}
		}
		if l.From == l.To {
			return &models.ConfigError{Field: field, Detail: fmt.Sprintf("link from %q to itself", l.From)}
		}
		dir, err := models.ParseDirection(l.Direction)
		if err != nil {
			return &models.ConfigError{Field: field + ".direction", Detail: err.Error()}
		}
		a := approach{id: l.To, dir: dir}
		if src, ok := fed[a]; ok {
			return &models.ConfigError{Field: field, Detail: fmt.Sprintf("approach %s of %q already fed by link from %q", dir, l.To, src)}
		}
		fed[a] = "link:" + l.From
	}

	if len(s.Entries) == 0 {
		return &models.ConfigError{Field: "entries", Detail: "at least one entry is required"}
	}
	for i, e := range s.Entries {
		field := fmt.Sprintf("entries[%d]", i)
		if !ids[e.Intersection] {
			return &models.ConfigError{Field: field + ".intersection", Detail: fmt.Sprintf("unknown intersection %q", e.Intersection)}
		}
		dir, err := models.ParseDirection(e.Direction)
		if err != nil {
			return &models.ConfigError{Field: field + ".direction", Detail: err.Error()}
		}
		if e.Rate < 0 {
			return &models.ConfigError{Field: field + ".rate", Detail: fmt.Sprintf("must be non-negative, got %v", e.Rate)}
		}
		a := approach{id: e.Intersection, dir: dir}
		if src, ok := fed[a]; ok {
			return &models.ConfigError{Field: field, Detail: fmt.Sprintf("approach %s of %q already fed by %s", dir, e.Intersection, src)}
		}
		fed[a] = "entry"
	}

	if cycle := s.findLinkCycle(); len(cycle) > 0 {
		return &models.ConfigError{Field: "links", Detail: fmt.Sprintf("links form a cycle: %v", cycle)}
	}
	return nil
}

// Timing resolves per-intersection overrides against scenario defaults.
func (ix IntersectionConfig) Timing(def TimingConfig) (minGreen, yellow, maxGreen int64) {
	minGreen, yellow, maxGreen = def.MinGreen, def.Yellow, def.MaxGreen
	if ix.MinGreen != 0 {
		minGreen = ix.MinGreen
	}
	if ix.Yellow != 0 {
		yellow = ix.Yellow
	}
	if ix.MaxGreen != 0 {
		maxGreen = ix.MaxGreen
	}
	return minGreen, yellow, maxGreen
}

// findLinkCycle reports a cycle in the straight-through link graph, if any.
// Vehicles never turn, so a cycle would trap them forever; the network must
// be a DAG per direction of travel.
func (s Scenario) findLinkCycle() []string {
	// A lane's direction is the direction its traffic travels, so two links
	// chain only when the second continues the first vehicle's heading.
	next := make(map[string][]string, len(s.Links))
	for _, l := range s.Links {
		key := l.From + "/" + l.Direction
		next[key] = append(next[key], l.To+"/"+l.Direction)
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(next))
	var stack []string

	var visit func(node string) bool
	visit = func(node string) bool {
		state[node] = visiting
		stack = append(stack, node)
		for _, n := range next[node] {
			switch state[n] {
			case visiting:
				stack = append(stack, n)
				return true
			case unvisited:
				if visit(n) {
					return true
				}
			}
		}
		state[node] = done
		stack = stack[:len(stack)-1]
		return false
	}

	keys := lo.Keys(next)
	sort.Strings(keys)
	for _, k := range keys {
		if state[k] == unvisited {
			stack = stack[:0]
			if visit(k) {
				return stack
			}
		}
	}
	return nil
}
