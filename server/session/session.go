// session holds the per-browser state of the web server: a map, its training and a
// replay of the learned policy, plus the subscribers watching it.
package session

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"miner/mine_world"
	"miner/reinforcement"
	"miner/runner"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound error = errors.New("session not found")

// ErrNotTrained is returned when an operation needs a training the session does not have.
var ErrNotTrained error = errors.New("session not trained")

// SUBSCRIBER_BUFFER is the number of frames a slow subscriber may lag before frames are dropped.
const SUBSCRIBER_BUFFER = 8

// Frame is an immutable point-in-time view of a session, published to subscribers.
type Frame struct {
	Id string
	runner.Snapshot
	// Values and Visited are indexed [y][x] and hold the table entries for the
	// agent standing at each cell of the current layout.
	Values  [][]reinforcement.ActionValues
	Visited [][]bool

	Trained  bool
	Episodes int
	States   int
	Cached   bool
}

// Session is one map with its training and replay. All methods are safe for concurrent use.
type Session struct {
	Id      string
	Created time.Time

	mu       sync.Mutex
	rng      *rand.Rand
	runner   *runner.Runner
	training *reinforcement.Training
	episodes int
	cached   bool
	subs     map[chan Frame]struct{}
}

func newSession(grid mine_world.Grid, rng *rand.Rand) *Session {
	sess := &Session{
		Id:      uuid.NewString(),
		Created: time.Now(),
		rng:     rng,
		subs:    map[chan Frame]struct{}{},
	}
	sess.runner = runner.NewRunner(nil, grid, mine_world.Position{})
	sess.runner.Reset(rng)
	return sess
}

// Initial returns the map the session trains and replays on.
func (sess *Session) Initial() mine_world.Grid {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.runner.Initial()
}

// Training returns the session's training, or nil before the first train call.
func (sess *Session) Training() *reinforcement.Training {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.training
}

// Frame returns the current frame.
func (sess *Session) Frame() Frame {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.frame()
}

// frame must be called with the lock held.
func (sess *Session) frame() Frame {
	snap := sess.runner.Snapshot()
	table := sess.runner.Table()
	frame := Frame{
		Id:       sess.Id,
		Snapshot: snap,
		Values:   make([][]reinforcement.ActionValues, snap.Grid.Size),
		Visited:  make([][]bool, snap.Grid.Size),
		Trained:  sess.training != nil,
		Episodes: sess.episodes,
		States:   table.Len(),
		Cached:   sess.cached,
	}
	for y := 0; y < snap.Grid.Size; y++ {
		frame.Values[y] = make([]reinforcement.ActionValues, snap.Grid.Size)
		frame.Visited[y] = make([]bool, snap.Grid.Size)
		if table == nil {
			continue
		}
		for x := 0; x < snap.Grid.Size; x++ {
			frame.Values[y][x], frame.Visited[y][x] = table.Lookup(mine_world.NewState(x, y, &snap.Grid))
		}
	}
	return frame
}

// Step advances the replay one greedy move.
func (sess *Session) Step() Frame {
	return sess.update(func() {
		sess.runner.Step()
	})
}

// StepWith advances the replay with the given action.
func (sess *Session) StepWith(action mine_world.Action) Frame {
	return sess.update(func() {
		sess.runner.StepWith(action)
	})
}

// Reset restores the map and starts the replay at a random cell.
func (sess *Session) Reset() Frame {
	return sess.update(func() {
		sess.runner.Reset(sess.rng)
	})
}

// ResetAt restores the map and starts the replay at pos.
func (sess *Session) ResetAt(pos mine_world.Position) (Frame, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	grid := sess.runner.Initial()
	if !grid.InBounds(pos.X, pos.Y) {
		return Frame{}, fmt.Errorf("%w: start (%d,%d) is off the map", mine_world.ErrInvalidGrid, pos.X, pos.Y)
	}
	sess.runner.ResetAt(pos)
	frame := sess.frame()
	sess.publish(frame)
	return frame, nil
}

// SetMap replaces the map. The training is dropped and the replay restarts at a random cell.
func (sess *Session) SetMap(grid mine_world.Grid) Frame {
	return sess.update(func() {
		sess.training = nil
		sess.episodes = 0
		sess.cached = false
		sess.runner = runner.NewRunner(nil, grid, mine_world.Position{})
		sess.runner.Reset(sess.rng)
	})
}

// GenerateMap replaces the map by a random one of the given size.
func (sess *Session) GenerateMap(size int) (Frame, error) {
	sess.mu.Lock()
	grid, err := mine_world.GenerateMap(sess.rng, size)
	sess.mu.Unlock()
	if err != nil {
		return Frame{}, err
	}
	return sess.SetMap(grid), nil
}

// ApplyTraining installs a training made for the given map and restarts the replay.
// It reports false, changing nothing, if the session's map has changed since.
func (sess *Session) ApplyTraining(grid mine_world.Grid, training *reinforcement.Training, episodes int, cached bool) (Frame, bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.runner.Initial() != grid {
		return sess.frame(), false
	}

	sess.training = training
	sess.episodes = episodes
	sess.cached = cached
	sess.runner.SetTable(training.Table)
	sess.runner.Reset(sess.rng)
	frame := sess.frame()
	sess.publish(frame)
	return frame, true
}

// update applies fn under the lock and publishes the resulting frame.
func (sess *Session) update(fn func()) Frame {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	fn()
	frame := sess.frame()
	sess.publish(frame)
	return frame
}

// Subscribe returns a channel of frames, starting with the current one, and a func to
// unsubscribe. Frames are dropped for subscribers that fall behind.
func (sess *Session) Subscribe() (<-chan Frame, func()) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	frames := make(chan Frame, SUBSCRIBER_BUFFER)
	frames <- sess.frame()
	sess.subs[frames] = struct{}{}

	var once sync.Once
	return frames, func() {
		once.Do(func() {
			sess.mu.Lock()
			defer sess.mu.Unlock()
			delete(sess.subs, frames)
			close(frames)
		})
	}
}

// Subscribers returns the number of live subscribers.
func (sess *Session) Subscribers() int {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return len(sess.subs)
}

// publish must be called with the lock held.
func (sess *Session) publish(frame Frame) {
	for sub := range sess.subs {
		select {
		case sub <- frame:
		default:
		}
	}
}
