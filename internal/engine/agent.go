package engine

// Rand is the randomness a Trainer draws from. *math/rand.Rand satisfies it.
type Rand interface {
	Float32() float32
	Intn(n int) int
}

type epsilonGreedyAgent struct {
	rng     Rand
	qvalues *QTable
	epsilon float32
}

func newEpsilonGreedyAgent(rng Rand, qvalues *QTable, epsilon float32) *epsilonGreedyAgent {
	return &epsilonGreedyAgent{rng: rng, qvalues: qvalues, epsilon: epsilon}
}

// act always draws the exploration sample, even when epsilon is zero, so a
// scripted Rand sees the same sequence whatever the epsilon schedule.
func (a *epsilonGreedyAgent) act(state int) Action {
	if a.rng.Float32() < a.epsilon {
		return Action(a.rng.Intn(a.qvalues.NumActions()))
	}
	return a.qvalues.BestAction(state)
}

// decay applies one step of the per-episode schedule. Once epsilon falls
// below min it is left unchanged.
func (a *epsilonGreedyAgent) decay(rate, min float32) {
	if a.epsilon >= min {
		a.epsilon *= rate
	}
}
