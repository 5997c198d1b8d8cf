package mine_world

// CellKind is the code of whatever occupies a grid cell. Mined cells become ROCK.
type CellKind uint8

const (
	// Cell kinds, ordered by rarity.
	ROCK CellKind = iota
	IRON
	REDSTONE
	GOLD
	DIAMOND

	NUM_KINDS = 5
)

const (
	// Grid dimension bounds. Grids are square.
	MIN_SIZE  = 3
	MAX_SIZE  = 10
	MAX_CELLS = MAX_SIZE * MAX_SIZE

	// Reward for bumping into the edge of the map. The agent stays put.
	BOUNDARY_REWARD = -5
)

// Rewards maps each cell kind to the reward for stepping onto it.
// Stepping onto rock costs a step; resources pay more the rarer they are.
var Rewards = [NUM_KINDS]float64{
	ROCK:     -1,
	IRON:     10,
	REDSTONE: 20,
	GOLD:     30,
	DIAMOND:  60,
}

// Relative frequencies used by GenerateMap, indexed by CellKind.
var kindWeights = [NUM_KINDS]float64{
	ROCK:     0.60,
	IRON:     0.20,
	REDSTONE: 0.10,
	GOLD:     0.07,
	DIAMOND:  0.03,
}

var kindNames = [NUM_KINDS]string{
	ROCK:     "rock",
	IRON:     "iron",
	REDSTONE: "redstone",
	GOLD:     "gold",
	DIAMOND:  "diamond",
}

// Single letter codes, used for parsing fixture maps and for console output.
var kindLetters = [NUM_KINDS]rune{
	ROCK:     '.',
	IRON:     'i',
	REDSTONE: 'r',
	GOLD:     'g',
	DIAMOND:  'd',
}

func (k CellKind) String() string {
	if int(k) < NUM_KINDS {
		return kindNames[k]
	}
	return "unknown"
}

// Reward returns the reward for stepping onto a cell of this kind.
func (k CellKind) Reward() float64 {
	return Rewards[k]
}

// IsResource reports whether stepping onto this kind mines something.
func (k CellKind) IsResource() bool {
	return k != ROCK
}

// Action is one of the four unit moves. There is no no-op.
type Action int

const (
	UP Action = iota
	DOWN
	LEFT
	RIGHT

	NUM_ACTIONS = 4
)

// Actions is the canonical enumeration order. Greedy tie-breaks pick the first
// maximal action in this order.
var Actions = [NUM_ACTIONS]Action{UP, DOWN, LEFT, RIGHT}

// Delta returns the unit displacement of the action. Y grows downward, so UP is y-1.
func (a Action) Delta() (dx, dy int) {
	switch a {
	case UP:
		dy = -1
	case DOWN:
		dy = 1
	case LEFT:
		dx = -1
	case RIGHT:
		dx = 1
	}
	return
}

func (a Action) String() string {
	switch a {
	case UP:
		return "up"
	case DOWN:
		return "down"
	case LEFT:
		return "left"
	case RIGHT:
		return "right"
	}
	return "unknown"
}

// Arrow returns a single rune for console display of the action.
func (a Action) Arrow() rune {
	switch a {
	case UP:
		return '^'
	case DOWN:
		return 'v'
	case LEFT:
		return '<'
	case RIGHT:
		return '>'
	}
	return '?'
}

// Position is an x/y coordinate on the grid.
type Position struct {
	X, Y int
}

// NoAgent is passed to the printers when no agent should be drawn.
var NoAgent = Position{X: -1, Y: -1}

// State is the agent position plus the full remaining layout of the map.
// What remains determines the best next move, so mining is part of the state.
// State is comparable: two states are equal iff position and layout match,
// which makes it usable directly as a map key.
type State struct {
	X, Y int
	Grid Grid
}

// NewState returns the state at (x, y) over a snapshot of the grid.
func NewState(x, y int, grid *Grid) State {
	return State{X: x, Y: y, Grid: *grid}
}

// Position returns the agent position of the state.
func (s State) Position() Position {
	return Position{X: s.X, Y: s.Y}
}

// Step is the transition function. It applies the action to the state, reading and
// mutating the working grid, and returns the successor, the reward for the move, and
// whether a resource was collected. Moves off the map leave the agent in place and
// pay BOUNDARY_REWARD. A mined cell is set to ROCK in the working grid.
// The successor always carries a fresh snapshot of the working grid.
func Step(state State, action Action, working *Grid) (next State, reward float64, mined bool) {
	dx, dy := action.Delta()
	x, y := state.X+dx, state.Y+dy

	if !working.InBounds(x, y) {
		x, y = state.X, state.Y
		reward = BOUNDARY_REWARD
	} else {
		kind := working.At(x, y)
		reward = kind.Reward()
		mined = kind.IsResource()
		if mined {
			working.Set(x, y, ROCK)
		}
	}

	next = NewState(x, y, working)
	return
}
