package reinforcement

/*
Tabular Q-learning for the miner. The agent is dropped at a random cell of a fresh copy
of the map and acts epsilon-greedily until it has mined every resource; each transition
is folded into the table by the one-step Bellman update

	Q[s][a] += alpha * (r + gamma * max_a' Q[s'][a'] - Q[s][a])

Exploration anneals multiplicatively per episode. Since the remaining layout is part of
the state the table grows with the number of reachable layouts, not with the grid area.
Everything runs on the caller's goroutine; determinism comes from the injected rng.
*/

import (
	"math"
	"math/rand"
	"time"

	. "miner/mine_world"

	"github.com/sirupsen/logrus"
)

// How often, in episodes, the trainer logs progress at debug level.
const LOG_INTERVAL = 10000

// EpisodeStats are the counters of one training episode.
type EpisodeStats struct {
	Steps     int
	Mined     int
	Reward    float64
	Epsilon   float64
	Truncated bool
}

// TrainingReport summarizes a training run.
type TrainingReport struct {
	Episodes  []EpisodeStats
	States    int
	Truncated int
	Elapsed   time.Duration
}

// Training is a finished training run: the learned table and how it got there.
type Training struct {
	Table  *ValueTable
	Report *TrainingReport
}

// Trainer runs episodic Q-learning. A Trainer is not safe for concurrent use, since
// it owns its random stream; use one Trainer per goroutine.
type Trainer struct {
	// Alpha: the learning rate
	Alpha float64
	// Gamma: the look-ahead parameter, or how much to value future state values.
	Gamma float64
	// Epsilon: the initial exploration rate.
	Epsilon float64
	// EpsilonDecay multiplies epsilon after each episode.
	EpsilonDecay float64
	// EpsilonFloor bounds the decayed epsilon from below. Zero keeps the plain
	// exponential decay, which approaches but never reaches pure greed.
	EpsilonFloor float64
	// MaxEpisodeSteps ends an episode after this many steps; zero means no cap.
	// Without a cap a map with nothing to mine never ends an episode.
	MaxEpisodeSteps int

	rng *rand.Rand
	log logrus.FieldLogger
}

// NewTrainer builds a trainer from the config's hyperparameters. A nil config uses the defaults.
func NewTrainer(config *TrainingConfig, rng *rand.Rand, log logrus.FieldLogger) *Trainer {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Trainer{
		Alpha:           config.GetHyperParamOrDefault("alpha", DEFAULT_ALPHA),
		Gamma:           config.GetHyperParamOrDefault("gamma", DEFAULT_GAMMA),
		Epsilon:         config.GetHyperParamOrDefault("epsilon", DEFAULT_EPSILON),
		EpsilonDecay:    config.GetHyperParamOrDefault("epsilonDecay", DEFAULT_EPSILON_DECAY),
		EpsilonFloor:    config.GetHyperParamOrDefault("epsilonFloor", DEFAULT_EPSILON_FLOOR),
		MaxEpisodeSteps: config.GetMaxEpisodeSteps(),
		rng:             rng,
		log:             log,
	}
}

// Train learns a value table for the initial grid over the given number of episodes.
// An episode ends once target resources have been mined. With target zero only the
// step cap ends an episode. The initial grid is never modified.
func (t *Trainer) Train(initial Grid, episodes, target int) *ValueTable {
	return t.TrainWithReport(initial, episodes, target).Table
}

// TrainWithReport is Train, also returning per-episode statistics.
func (t *Trainer) TrainWithReport(initial Grid, episodes, target int) *Training {
	start := time.Now()
	log := t.log.WithFields(logrus.Fields{
		"size":     initial.Size,
		"episodes": episodes,
		"target":   target,
	})
	log.Info("training started")

	table := NewValueTable()
	report := &TrainingReport{
		Episodes: make([]EpisodeStats, 0, episodes),
	}

	epsilon := t.Epsilon
	for episode := 1; episode <= episodes; episode++ {
		stats := t.runEpisode(table, initial, target, epsilon)
		report.Episodes = append(report.Episodes, stats)
		if stats.Truncated {
			report.Truncated++
		}

		epsilon = math.Max(t.EpsilonFloor, epsilon*t.EpsilonDecay)

		if episode%LOG_INTERVAL == 0 {
			log.WithFields(logrus.Fields{
				"episode": episode,
				"epsilon": epsilon,
				"states":  table.Len(),
				"steps":   stats.Steps,
			}).Debug("training progress")
		}
	}

	report.States = table.Len()
	report.Elapsed = time.Since(start)
	log.WithFields(logrus.Fields{
		"states":    report.States,
		"truncated": report.Truncated,
		"elapsed":   report.Elapsed,
	}).Info("training finished")

	return &Training{Table: table, Report: report}
}

// runEpisode plays one episode from a random start on a fresh copy of the map,
// updating the table after every transition.
func (t *Trainer) runEpisode(table *ValueTable, initial Grid, target int, epsilon float64) (stats EpisodeStats) {
	stats.Epsilon = epsilon
	working := initial
	x := t.rng.Intn(initial.Size)
	y := t.rng.Intn(initial.Size)
	state := NewState(x, y, &working)

	for {
		action := ChooseAction(t.rng, table, state, epsilon)
		successor, reward, mined := Step(state, action, &working)
		if mined {
			stats.Mined++
		}
		stats.Steps++
		stats.Reward += reward

		row := table.Row(state)
		maxNext := table.Row(successor).Max()
		row[action] += t.Alpha * (reward + t.Gamma*maxNext - row[action])

		state = successor

		if target > 0 && stats.Mined == target {
			return
		}
		if t.MaxEpisodeSteps > 0 && stats.Steps >= t.MaxEpisodeSteps {
			stats.Truncated = true
			return
		}
	}
}
