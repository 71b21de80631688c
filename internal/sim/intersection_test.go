package sim

import (
	"errors"
	"testing"

	"greenwave/internal/models"
)

func TestLaneFIFO(t *testing.T) {
	lane := NewLane("x", models.North, 2)

	if lane.Len() != 0 || lane.Head() != nil {
		t.Fatal("new lane should be empty")
	}

	first := &Vehicle{ID: 1, Heading: models.North, SpawnedAt: 1}
	second := &Vehicle{ID: 2, Heading: models.North, SpawnedAt: 2}

	if err := lane.Enqueue(first, 1); err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	if err := lane.Enqueue(second, 2); err != nil {
		t.Fatalf("enqueue second: %v", err)
	}

	if !lane.Full() {
		t.Error("lane at capacity should report full")
	}

	third := &Vehicle{ID: 3, Heading: models.North, SpawnedAt: 3}
	err := lane.Enqueue(third, 3)
	if err == nil {
		t.Fatal("expected capacity error, got nil")
	}
	if !errors.Is(err, models.ErrCapacityExceeded) {
		t.Errorf("expected ErrCapacityExceeded, got %v", err)
	}
	if lane.Len() != 2 {
		t.Errorf("rejected vehicle must not be admitted, len %d", lane.Len())
	}

	if got := lane.HeadWait(5); got != 4 {
		t.Errorf("expected head wait 4 at tick 5, got %d", got)
	}

	if v := lane.Dequeue(); v == nil || v.ID != 1 {
		t.Errorf("expected vehicle 1 first, got %+v", v)
	}
	if v := lane.Dequeue(); v == nil || v.ID != 2 {
		t.Errorf("expected vehicle 2 second, got %+v", v)
	}
	if v := lane.Dequeue(); v != nil {
		t.Errorf("expected nil from empty lane, got %+v", v)
	}
}

func TestIntersectionForcedCycle(t *testing.T) {
	timing := IntersectionTiming{MinGreen: 2, Yellow: 2, MaxGreen: 4}
	ix := NewIntersection("x", timing, 10, 1)

	if ix.Phase() != models.PhaseNSGreen {
		t.Fatalf("expected initial phase ns_green, got %s", ix.Phase())
	}

	var phases []models.SignalPhase
	for tick := int64(1); tick <= 24; tick++ {
		ix.Advance(tick)
		phases = append(phases, ix.Phase())
	}

	// With no switch requests, greens run to max_green and yellows separate
	// them: 4 ns, 2 yellow, 4 ew, 2 yellow, repeating.
	want := []models.SignalPhase{
		models.PhaseNSGreen, models.PhaseNSGreen, models.PhaseNSGreen, models.PhaseNSGreen,
		models.PhaseYellow, models.PhaseYellow,
		models.PhaseEWGreen, models.PhaseEWGreen, models.PhaseEWGreen, models.PhaseEWGreen,
		models.PhaseYellow, models.PhaseYellow,
		models.PhaseNSGreen, models.PhaseNSGreen, models.PhaseNSGreen, models.PhaseNSGreen,
		models.PhaseYellow, models.PhaseYellow,
		models.PhaseEWGreen, models.PhaseEWGreen, models.PhaseEWGreen, models.PhaseEWGreen,
		models.PhaseYellow, models.PhaseYellow,
	}
	for i, p := range want {
		if phases[i] != p {
			t.Fatalf("tick %d: expected %s, got %s (full trace %v)", i+1, p, phases[i], phases)
		}
	}
}

func TestIntersectionMinGreen(t *testing.T) {
	timing := IntersectionTiming{MinGreen: 2, Yellow: 2, MaxGreen: 10}
	ix := NewIntersection("x", timing, 10, 1)

	// Requesting a switch on every tick drives greens down to min_green but
	// never below it.
	greenRun := 0
	for tick := int64(1); tick <= 40; tick++ {
		ix.RequestSwitch()
		stats := ix.Advance(tick)
		if ix.Phase().IsGreen() {
			greenRun++
			continue
		}
		if stats.Switched && greenRun > 0 {
			if greenRun != 2 {
				t.Fatalf("tick %d: green ran %d ticks, want exactly min_green 2", tick, greenRun)
			}
			greenRun = 0
		}
	}
}

func TestIntersectionRequestDroppedDuringYellow(t *testing.T) {
	timing := IntersectionTiming{MinGreen: 1, Yellow: 2, MaxGreen: 5}
	ix := NewIntersection("x", timing, 10, 1)

	// Force the first switch so a yellow is showing.
	tick := int64(1)
	for ; ix.Phase() != models.PhaseYellow; tick++ {
		ix.RequestSwitch()
		ix.Advance(tick)
	}

	// A request made during yellow must not shorten the following green.
	ix.RequestSwitch()
	greenTicks := 0
	for ; greenTicks < 20; tick++ {
		ix.Advance(tick)
		if ix.Phase() == models.PhaseYellow && greenTicks > 0 {
			break
		}
		if ix.Phase().IsGreen() {
			greenTicks++
		}
	}
	if greenTicks != 5 {
		t.Errorf("green after yellow ran %d ticks, want max_green 5", greenTicks)
	}
}

func TestIntersectionDischarge(t *testing.T) {
	timing := IntersectionTiming{MinGreen: 1, Yellow: 2, MaxGreen: 10}
	ix := NewIntersection("x", timing, 10, 2)

	for i := range 3 {
		v := &Vehicle{ID: uint64(i + 1), Heading: models.North}
		if err := ix.Lane(models.North).Enqueue(v, 0); err != nil {
			t.Fatalf("enqueue north: %v", err)
		}
	}
	if err := ix.Lane(models.East).Enqueue(&Vehicle{ID: 9, Heading: models.East}, 0); err != nil {
		t.Fatalf("enqueue east: %v", err)
	}

	stats := ix.Advance(1)

	// ns_green discharges north up to the saturation flow of 2 and leaves
	// east untouched.
	if stats.Departed != 2 || stats.Exited != 2 {
		t.Errorf("expected 2 departed and exited, got %+v", stats)
	}
	if ix.Lane(models.North).Len() != 1 {
		t.Errorf("expected 1 vehicle left north, got %d", ix.Lane(models.North).Len())
	}
	if ix.Lane(models.East).Len() != 1 {
		t.Errorf("east must not be served during ns_green, len %d", ix.Lane(models.East).Len())
	}

	stats = ix.Advance(2)
	if stats.Departed != 1 {
		t.Errorf("expected 1 departed on second tick, got %+v", stats)
	}
}

func TestIntersectionSpillback(t *testing.T) {
	timing := IntersectionTiming{MinGreen: 1, Yellow: 1, MaxGreen: 100}
	up := NewIntersection("up", timing, 5, 2)
	down := NewIntersection("down", timing, 2, 1)
	up.connect(models.North, down.Lane(models.North))

	for i := range 2 {
		if err := down.Lane(models.North).Enqueue(&Vehicle{ID: uint64(100 + i), Heading: models.North}, 0); err != nil {
			t.Fatalf("fill downstream: %v", err)
		}
	}
	for i := range 3 {
		if err := up.Lane(models.North).Enqueue(&Vehicle{ID: uint64(i + 1), Heading: models.North}, 0); err != nil {
			t.Fatalf("fill upstream: %v", err)
		}
	}

	stats := up.Advance(1)
	if stats.Departed != 0 {
		t.Errorf("expected no departures into a full lane, got %+v", stats)
	}
	if stats.Blocked == 0 {
		t.Error("expected blocked discharge to be counted")
	}
	if up.Lane(models.North).Len() != 3 {
		t.Errorf("blocked vehicles must stay queued, len %d", up.Lane(models.North).Len())
	}
	if down.Lane(models.North).Len() != 2 {
		t.Errorf("downstream lane must stay at capacity, len %d", down.Lane(models.North).Len())
	}

	// Once downstream drains a slot, the head vehicle moves.
	down.Advance(1)
	stats = up.Advance(2)
	if stats.Departed == 0 {
		t.Errorf("expected departure after downstream drained, got %+v", stats)
	}
	if got := down.Lane(models.North).Len(); got > 2 {
		t.Errorf("downstream lane over capacity: %d", got)
	}
}
