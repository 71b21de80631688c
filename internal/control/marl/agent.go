package marl

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"

	"greenwave/internal/config"
	"greenwave/internal/control"
)

// Agent is one intersection's learner: a linear action-value function over
// the local observation, trained from a replay buffer against a slowly
// synchronized target copy, acting epsilon-greedily.
type Agent struct {
	id string

	// weights holds one vector per action; the last element is the bias.
	// target is the frozen copy bootstrap targets are computed from, and
	// lastGood is the most recent update known to be finite.
	weights  [][]float64
	target   [][]float64
	lastGood [][]float64

	epsilon float64
	steps   int64

	gamma        float64
	learningRate float64
	epsilonMin   float64
	epsilonDecay float64
	batchSize    int
	targetSync   int64

	replay *replayBuffer
	rng    *rand.Rand
}

// NewAgent creates a fresh agent for one intersection. Weights start at
// zero, which ties every action; ties resolve to extend.
func NewAgent(id string, cfg config.MARLConfig, rng *rand.Rand) *Agent {
	dim := control.ObservationSize + 1
	a := &Agent{
		id:           id,
		epsilon:      cfg.EpsilonStart,
		gamma:        cfg.Gamma,
		learningRate: cfg.LearningRate,
		epsilonMin:   cfg.EpsilonMin,
		epsilonDecay: cfg.EpsilonDecay,
		batchSize:    cfg.BatchSize,
		targetSync:   int64(cfg.TargetSync),
		replay:       newReplayBuffer(cfg.ReplaySize),
		rng:          rng,
	}
	a.weights = zeros(control.ActionCount, dim)
	a.target = zeros(control.ActionCount, dim)
	a.lastGood = zeros(control.ActionCount, dim)
	return a
}

// ID returns the intersection this agent controls.
func (a *Agent) ID() string { return a.id }

// Epsilon returns the current exploration rate.
func (a *Agent) Epsilon() float64 { return a.epsilon }

// Steps returns the number of minibatch updates applied.
func (a *Agent) Steps() int64 { return a.steps }

// Act picks an action for the observation. With explore set it follows the
// epsilon-greedy policy; otherwise it is purely greedy.
func (a *Agent) Act(obs control.Observation, explore bool) control.Action {
	if explore && a.rng.Float64() < a.epsilon {
		return control.Action(a.rng.Intn(control.ActionCount))
	}
	return a.greedy(a.weights, obs)
}

// Learn records a completed transition and, once the buffer holds a batch,
// applies one minibatch update. It reports true when the transition or the
// resulting weights were non-finite and had to be discarded; the policy then
// stays at the last good update.
func (a *Agent) Learn(prev control.Observation, action control.Action, reward float64, next control.Observation) bool {
	tr := transition{state: prev, action: action, reward: reward, next: next}
	if !tr.finite() {
		return true
	}
	a.replay.add(tr)
	if a.replay.len() < a.batchSize {
		return false
	}

	for _, tr := range a.replay.sample(a.rng, a.batchSize) {
		best := math.Inf(-1)
		for act := range control.ActionCount {
			if q := a.q(a.target[act], tr.next); q > best {
				best = q
			}
		}
		bootstrap := tr.reward + a.gamma*best
		tdErr := bootstrap - a.q(a.weights[tr.action], tr.state)

		w := a.weights[tr.action]
		floats.AddScaled(w[:len(tr.state)], a.learningRate*tdErr, tr.state)
		w[len(w)-1] += a.learningRate * tdErr
	}

	if !a.finite() {
		a.restore()
		return true
	}

	a.steps++
	a.epsilon = math.Max(a.epsilonMin, a.epsilon-a.epsilonDecay)
	copyWeights(a.lastGood, a.weights)
	if a.steps%a.targetSync == 0 {
		copyWeights(a.target, a.weights)
	}
	return false
}

// q evaluates one action's value for an observation.
func (a *Agent) q(w []float64, obs control.Observation) float64 {
	return floats.Dot(w[:len(obs)], obs) + w[len(w)-1]
}

func (a *Agent) greedy(weights [][]float64, obs control.Observation) control.Action {
	best := control.ActionExtend
	bestQ := math.Inf(-1)
	for act := range control.ActionCount {
		if q := a.q(weights[act], obs); q > bestQ {
			best = control.Action(act)
			bestQ = q
		}
	}
	return best
}

func (a *Agent) finite() bool {
	for _, w := range a.weights {
		for _, v := range w {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

func (a *Agent) restore() {
	copyWeights(a.weights, a.lastGood)
}

// State snapshots the agent for checkpointing.
func (a *Agent) State() AgentState {
	st := AgentState{
		Weights: zeros(len(a.weights), len(a.weights[0])),
		Epsilon: a.epsilon,
		Steps:   a.steps,
	}
	copyWeights(st.Weights, a.weights)
	return st
}

// RestoreState loads a checkpointed policy into the agent. The checkpoint
// must have been written for the same observation and action layout.
func (a *Agent) RestoreState(st AgentState) error {
	if len(st.Weights) != control.ActionCount {
		return fmt.Errorf("checkpoint has %d actions, want %d", len(st.Weights), control.ActionCount)
	}
	for i, w := range st.Weights {
		if len(w) != control.ObservationSize+1 {
			return fmt.Errorf("checkpoint action %d has %d weights, want %d", i, len(w), control.ObservationSize+1)
		}
	}
	copyWeights(a.weights, st.Weights)
	copyWeights(a.target, st.Weights)
	copyWeights(a.lastGood, st.Weights)
	a.epsilon = st.Epsilon
	a.steps = st.Steps
	return nil
}

func zeros(rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
	}
	return out
}

func copyWeights(dst, src [][]float64) {
	for i := range src {
		copy(dst[i], src[i])
	}
}
