package reinforcement

import (
	"math/rand"

	. "miner/mine_world"
)

// ChooseAction is the epsilon-greedy policy. The state's row is created if it is new.
// With probability epsilon a uniformly random action is returned, otherwise the
// greedy action with the canonical-order tie-break.
func ChooseAction(rng *rand.Rand, table *ValueTable, state State, epsilon float64) Action {
	row := table.Row(state)
	if rng.Float64() < epsilon {
		// Exploration: do something random
		return Actions[rng.Intn(NUM_ACTIONS)]
	}
	return row.Argmax()
}
