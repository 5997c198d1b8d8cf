package reinforcement

import (
	"math"

	. "miner/mine_world"
)

// ActionValues holds the Q-value estimate of each action, indexed by Action.
type ActionValues [NUM_ACTIONS]float64

// Max returns the largest action value.
func (av *ActionValues) Max() float64 {
	max := av[0]
	for _, v := range av[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// Argmax returns the first action in canonical order whose value is maximal.
func (av *ActionValues) Argmax() Action {
	best := Actions[0]
	for _, action := range Actions[1:] {
		if av[action] > av[best] {
			best = action
		}
	}
	return best
}

// ValueTable maps states to per-action value estimates. Rows are created lazily,
// zeroed, the first time a state is seen; the state space is far too large to
// allocate up front. The table is keyed by the full grid snapshot, so a table
// trained on one map says nothing about another.
// ValueTable is not safe for concurrent use.
type ValueTable struct {
	rows map[State]*ActionValues
}

func NewValueTable() *ValueTable {
	return &ValueTable{
		rows: map[State]*ActionValues{},
	}
}

// Row returns the mutable row for the state, inserting a zeroed one if the state is new.
func (vt *ValueTable) Row(state State) *ActionValues {
	row, ok := vt.rows[state]
	if !ok {
		row = &ActionValues{}
		vt.rows[state] = row
	}
	return row
}

// Lookup returns a copy of the state's row, and whether the state has been seen.
// Lookup never inserts.
func (vt *ValueTable) Lookup(state State) (values ActionValues, ok bool) {
	var row *ActionValues
	if row, ok = vt.rows[state]; ok {
		values = *row
	}
	return
}

// Values returns the state's row, or all zeros for an unseen state. A nil table
// behaves as an empty one.
func (vt *ValueTable) Values(state State) (values ActionValues) {
	if vt == nil {
		return
	}
	values, _ = vt.Lookup(state)
	return
}

// Greedy returns the best known action for the state without modifying the table.
func (vt *ValueTable) Greedy(state State) Action {
	values := vt.Values(state)
	return values.Argmax()
}

// Len returns the number of discovered states.
func (vt *ValueTable) Len() int {
	if vt == nil {
		return 0
	}
	return len(vt.rows)
}

// Visit calls fn for every discovered state, in no particular order.
func (vt *ValueTable) Visit(fn func(State, ActionValues)) {
	if vt == nil {
		return
	}
	for state, row := range vt.rows {
		fn(state, *row)
	}
}

// Equal reports whether both tables hold the same states with bit-identical values.
func (vt *ValueTable) Equal(other *ValueTable) bool {
	if vt.Len() != other.Len() {
		return false
	}
	for state, row := range vt.rows {
		theirs, ok := other.rows[state]
		if !ok {
			return false
		}
		for i := range row {
			if math.Float64bits(row[i]) != math.Float64bits(theirs[i]) {
				return false
			}
		}
	}
	return true
}
