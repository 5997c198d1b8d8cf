/*
Miner trains a single agent, by tabular Q-learning, to collect every resource on a small
square map: rock costs a step, iron, redstone, gold and diamond pay more the rarer they are,
and walking into the edge of the map is penalized. The remaining layout is part of the state,
so the agent learns an ordering of resources, not just the nearest one.

In console mode a map is generated, trained on, and the learned greedy route is replayed
and printed. Otherwise a small web server serves sessions, each with its own map, training
and a live view of the replay.
*/

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"miner/mine_world"
	"miner/reinforcement"
	"miner/runner"
	"miner/server"

	"github.com/logrusorgru/aurora"
	"github.com/sirupsen/logrus"
)

// Replays stop after this many steps per resource if the policy never finishes.
const REPLAY_STEPS_PER_RESOURCE = 100

type options struct {
	configPath string
	host       string
	port       string
	console    bool
	size       int
	episodes   int
	seed       int64
	logLevel   string
	color      bool
	dumpConfig bool
}

func parseFlags(args []string) (opts options, err error) {
	fs := flag.NewFlagSet("miner", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "./config.yaml", "training config file, defaults are used if it does not exist")
	fs.StringVar(&opts.host, "host", "", "The host ip")
	fs.StringVar(&opts.port, "port", "8080", "The host port")
	fs.BoolVar(&opts.console, "console", false, "train once and print the result instead of serving")
	fs.IntVar(&opts.size, "size", 0, "map size, overrides the config")
	fs.IntVar(&opts.episodes, "episodes", 0, "training episodes, overrides the config")
	fs.Int64Var(&opts.seed, "seed", 0, "random seed, overrides the config")
	fs.StringVar(&opts.logLevel, "log-level", "info", "log level")
	fs.BoolVar(&opts.color, "color", true, "colorize console output")
	fs.BoolVar(&opts.dumpConfig, "dump-config", false, "print the resolved config as yaml and exit")
	err = fs.Parse(args)
	return
}

// resolveConfig loads the config file if it exists and applies the flag overrides.
func resolveConfig(opts options) (cfg *reinforcement.TrainingConfig, err error) {
	if _, statErr := os.Stat(opts.configPath); statErr == nil {
		if cfg, err = reinforcement.FromYaml(opts.configPath); err != nil {
			return
		}
	} else if errors.Is(statErr, os.ErrNotExist) {
		cfg = reinforcement.DefaultConfig()
	} else {
		err = fmt.Errorf("config %s: %w", opts.configPath, statErr)
		return
	}

	if opts.size != 0 {
		cfg.GridSize = opts.size
		// An explicit size replaces any fixed map.
		cfg.Map = nil
	}
	if opts.episodes != 0 {
		cfg.Episodes = opts.episodes
	}
	if opts.seed != 0 {
		cfg.Seed = opts.seed
	}

	err = cfg.Validate()
	return
}

// dumpConfig writes cfg in the config file format, so it can be edited and passed back via -config.
func dumpConfig(w io.Writer, cfg *reinforcement.TrainingConfig) error {
	out, err := cfg.ToYaml()
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func newLogger(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log, nil
}

// runConsole trains on one map and prints the map, the policy, the max values and the
// greedy replay from the top left corner.
func runConsole(w io.Writer, au aurora.Aurora, cfg *reinforcement.TrainingConfig, log logrus.FieldLogger) (err error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	grid, ok, err := cfg.FixedMap()
	if err != nil {
		return
	}
	if !ok {
		if grid, err = mine_world.GenerateMap(rng, cfg.GridSize); err != nil {
			return
		}
	}
	target := grid.Resources()
	if target == 0 {
		fmt.Fprintln(w, au.Yellow("nothing to mine"))
		mine_world.ShowGrid(w, au, &grid, mine_world.NoAgent)
		return
	}

	fmt.Fprintf(w, "%s (seed %d)\n", au.Bold("Map"), seed)
	mine_world.ShowGrid(w, au, &grid, mine_world.NoAgent)

	trainer := reinforcement.NewTrainer(cfg, rng, log)
	training := trainer.TrainWithReport(grid, cfg.Episodes, target)

	fmt.Fprintln(w, au.Bold("Policy"))
	reinforcement.ShowPolicy(w, au, training.Table, &grid)
	reinforcement.ShowMaxValues(w, au, training.Table, &grid)

	replay(w, au, training.Table, grid)
	return
}

// replay walks the greedy policy from (0,0), printing every step.
func replay(w io.Writer, au aurora.Aurora, table *reinforcement.ValueTable, grid mine_world.Grid) {
	r := runner.NewRunner(table, grid, mine_world.Position{X: 0, Y: 0})
	limit := REPLAY_STEPS_PER_RESOURCE * r.Target

	fmt.Fprintln(w, au.Bold("Replay"))
	fmt.Fprint(w, mine_world.Render(&grid, r.State().Position()))
	for !r.Done && r.Steps < limit {
		reward, mined := r.Step()
		snap := r.Snapshot()
		fmt.Fprintf(w, "step %d: %s reward %.0f", snap.Steps, snap.Last, reward)
		if mined {
			fmt.Fprint(w, au.Yellow(" mined"))
		}
		fmt.Fprintln(w)
		fmt.Fprint(w, mine_world.Render(&snap.Grid, snap.Agent))
	}

	if r.Done {
		fmt.Fprintf(w, "%s in %d steps, reward %.0f\n", au.Green("done"), r.Steps, r.Reward)
	} else {
		fmt.Fprintf(w, "%s after %d steps, mined %d/%d\n", au.Red("stuck"), r.Steps, r.Mined, r.Target)
	}
}

func runApp(args []string) (err error) {
	var opts options
	if opts, err = parseFlags(args); err != nil {
		return
	}
	var log *logrus.Logger
	if log, err = newLogger(opts.logLevel); err != nil {
		return
	}
	var cfg *reinforcement.TrainingConfig
	if cfg, err = resolveConfig(opts); err != nil {
		return
	}

	if opts.dumpConfig {
		return dumpConfig(os.Stdout, cfg)
	}
	log.WithFields(logrus.Fields{
		"episodes": cfg.Episodes,
		"gridSize": cfg.GridSize,
		"seed":     cfg.Seed,
	}).Debug("config resolved")

	if opts.console {
		return runConsole(os.Stdout, aurora.NewAurora(opts.color), cfg, log)
	}

	appCtx, appCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer appCancel()

	srv := server.NewServer(opts.host+":"+opts.port, cfg, log)
	err = srv.Serve(appCtx)
	return
}

func main() {
	if err := runApp(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
