package runner

import (
	"math/rand"

	"miner/mine_world"
	"miner/reinforcement"
)

// Step advances the agent one greedy move. The action is read from the table without
// inserting; states never seen in training get zero values, so the first action in
// canonical order wins. A nil table is allowed.
func Step(table *reinforcement.ValueTable, state mine_world.State, working *mine_world.Grid) (next mine_world.State, reward float64, mined bool) {
	return mine_world.Step(state, table.Greedy(state), working)
}

// Snapshot is a point-in-time copy of a run, safe to hand to views.
type Snapshot struct {
	Grid   mine_world.Grid
	Agent  mine_world.Position
	Steps  int
	Mined  int
	Target int
	Reward float64
	Done   bool
	// Last is the last action taken, or -1 before the first step.
	Last mine_world.Action
}

// Runner replays a value table on a map, one step at a time. The initial grid is kept
// aside so the run can be reset; only the working grid is mined.
type Runner struct {
	table   *reinforcement.ValueTable
	initial mine_world.Grid
	working mine_world.Grid
	state   mine_world.State
	last    mine_world.Action

	Steps  int
	Mined  int
	Target int
	Reward float64
	Done   bool
}

// NewRunner starts a run at the given position on a copy of the initial grid.
// The run is done once every resource of the initial grid has been mined.
func NewRunner(table *reinforcement.ValueTable, initial mine_world.Grid, start mine_world.Position) *Runner {
	r := &Runner{
		table:   table,
		initial: initial,
		Target:  initial.Resources(),
	}
	r.ResetAt(start)
	return r
}

// Step takes the greedy action. It is a no-op once the run is done.
func (r *Runner) Step() (reward float64, mined bool) {
	if r.Done {
		return
	}
	return r.StepWith(r.table.Greedy(r.state))
}

// StepWith takes the given action instead of the greedy one. It is a no-op once the run is done.
func (r *Runner) StepWith(action mine_world.Action) (reward float64, mined bool) {
	if r.Done {
		return
	}
	r.state, reward, mined = mine_world.Step(r.state, action, &r.working)
	r.last = action
	r.Steps++
	r.Reward += reward
	if mined {
		r.Mined++
	}
	r.Done = r.Target > 0 && r.Mined == r.Target
	return
}

// Reset restores the working grid, zeroes the counters and starts at a random cell.
func (r *Runner) Reset(rng *rand.Rand) {
	r.ResetAt(mine_world.Position{
		X: rng.Intn(r.initial.Size),
		Y: rng.Intn(r.initial.Size),
	})
}

// ResetAt restores the working grid, zeroes the counters and starts at pos.
func (r *Runner) ResetAt(pos mine_world.Position) {
	r.working = r.initial
	r.state = mine_world.NewState(pos.X, pos.Y, &r.working)
	r.last = -1
	r.Steps = 0
	r.Mined = 0
	r.Reward = 0
	r.Done = false
}

// SetTable swaps the table used for greedy steps, e.g. after retraining.
func (r *Runner) SetTable(table *reinforcement.ValueTable) {
	r.table = table
}

// Table returns the table used for greedy steps.
func (r *Runner) Table() *reinforcement.ValueTable {
	return r.table
}

// Initial returns the grid the run resets to.
func (r *Runner) Initial() mine_world.Grid {
	return r.initial
}

// State returns the current state.
func (r *Runner) State() mine_world.State {
	return r.state
}

func (r *Runner) Snapshot() Snapshot {
	return Snapshot{
		Grid:   r.working,
		Agent:  r.state.Position(),
		Steps:  r.Steps,
		Mined:  r.Mined,
		Target: r.Target,
		Reward: r.Reward,
		Done:   r.Done,
		Last:   r.last,
	}
}
