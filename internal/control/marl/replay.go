package marl

import (
	"math"

	"golang.org/x/exp/rand"

	"greenwave/internal/control"
)

// transition is one completed step: the observation the agent acted from,
// the action, the reward observed on the following tick, and the observation
// that followed.
type transition struct {
	state  control.Observation
	action control.Action
	reward float64
	next   control.Observation
}

// finite reports whether the transition is safe to learn from. A NaN or Inf
// anywhere would poison the replay buffer and every batch drawn from it.
func (t transition) finite() bool {
	if math.IsNaN(t.reward) || math.IsInf(t.reward, 0) {
		return false
	}
	for _, v := range t.state {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	for _, v := range t.next {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// replayBuffer is a bounded ring of recent transitions. Once full, new
// transitions overwrite the oldest.
type replayBuffer struct {
	buf  []transition
	next int
	full bool
}

func newReplayBuffer(size int) *replayBuffer {
	return &replayBuffer{buf: make([]transition, size)}
}

func (b *replayBuffer) add(t transition) {
	b.buf[b.next] = t
	b.next++
	if b.next == len(b.buf) {
		b.next = 0
		b.full = true
	}
}

func (b *replayBuffer) len() int {
	if b.full {
		return len(b.buf)
	}
	return b.next
}

// sample draws n distinct transitions uniformly without replacement. The
// caller guarantees n <= len().
func (b *replayBuffer) sample(rng *rand.Rand, n int) []transition {
	out := make([]transition, n)
	for i, j := range rng.Perm(b.len())[:n] {
		out[i] = b.buf[j]
	}
	return out
}
