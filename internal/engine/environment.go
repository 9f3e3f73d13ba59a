package engine

// NoState marks a move that has no destination, such as stepping off the board.
const NoState = -1

// Rewards returned by environments. Episodes end exactly when a step yields
// RewardBlocked or RewardGoal, so environments must keep these values.
const (
	RewardBlocked float32 = -1
	RewardGoal    float32 = 100
	RewardStep    float32 = 0
)

// Environment is the world a Trainer learns from. States are the indices
// [0, NumStates()).
type Environment interface {
	NumStates() int
	NumActions() int
	// Neighbors returns one entry per action in enumeration order, NoState
	// where the move is illegal.
	Neighbors(state int) []int
	// Reward scores arriving at next, which may be NoState.
	Reward(next int) float32
}

// IsTerminal reports whether reward ends an episode.
func IsTerminal(reward float32) bool {
	return reward == RewardBlocked || reward == RewardGoal
}
