package reinforcement

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "miner/mine_world"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Fixed defaults for the trainer. Config files may override them by name.
const (
	DEFAULT_ALPHA             = 0.1
	DEFAULT_GAMMA             = 0.9
	DEFAULT_EPSILON           = 1.0
	DEFAULT_EPSILON_DECAY     = 0.9999
	DEFAULT_EPSILON_FLOOR     = 0.0
	DEFAULT_MAX_EPISODE_STEPS = 100000
	DEFAULT_EPISODES          = 50000
	DEFAULT_GRID_SIZE         = 5

	MIN_EPISODES = 1000
	MAX_EPISODES = 200000
)

// CONFIG_KIND is the kind of a training config envelope.
const CONFIG_KIND = "training"

// ErrInvalidConfig is returned when a config value is out of range.
var ErrInvalidConfig error = errors.New("invalid training config")

// OuterConfig is the envelope of a config file: a kind and its definition.
type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// TrainingConfig holds the training parameters kept outside of code: hyperparameters,
// episode budget, map size, an optional fixed map and the training deadline.
type TrainingConfig struct {
	// HyperParams is a key-val pair of param names and their value.
	HyperParams []HyperParameter `yaml:"hyperParams,omitempty" mapstructure:"hyperParams"`
	// Episodes is the number of training episodes per train call.
	Episodes int `yaml:"episodes" mapstructure:"episodes"`
	// GridSize is the side length of generated maps.
	GridSize int `yaml:"gridSize" mapstructure:"gridSize"`
	// Seed seeds map generation and training. Zero means seed from the clock.
	Seed int64 `yaml:"seed" mapstructure:"seed"`
	// MaxEpisodeSteps caps the length of one episode; zero means no cap.
	MaxEpisodeSteps *int `yaml:"maxEpisodeSteps,omitempty" mapstructure:"maxEpisodeSteps"`
	// Map optionally fixes the map, as rows of cell letters.
	Map []string `yaml:"map,omitempty" mapstructure:"map"`
	// TrainingDeadline is a fixed duration describing how long callers wait on training.
	TrainingDeadline map[string]string `yaml:"trainingDeadline,omitempty" mapstructure:"trainingDeadline"`
}

type HyperParameter struct {
	Key string  `yaml:"key" mapstructure:"key"`
	Val float64 `yaml:"val" mapstructure:"val"`
}

// DefaultConfig returns the config used when no file is given.
func DefaultConfig() *TrainingConfig {
	return &TrainingConfig{
		Episodes: DEFAULT_EPISODES,
		GridSize: DEFAULT_GRID_SIZE,
	}
}

func (cfg *TrainingConfig) GetHyperParamOrDefault(param string, defaultVal float64) float64 {
	for _, kvp := range cfg.HyperParams {
		if kvp.Key == param {
			return kvp.Val
		}
	}
	return defaultVal
}

// GetMaxEpisodeSteps returns the configured step cap, or the default cap when unset.
func (cfg *TrainingConfig) GetMaxEpisodeSteps() int {
	if cfg.MaxEpisodeSteps == nil {
		return DEFAULT_MAX_EPISODE_STEPS
	}
	return *cfg.MaxEpisodeSteps
}

// FixedMap parses the configured map, if any.
func (cfg *TrainingConfig) FixedMap() (grid Grid, ok bool, err error) {
	if len(cfg.Map) == 0 {
		return
	}
	if grid, err = ParseGrid(cfg.Map); err != nil {
		err = fmt.Errorf("%w: map: %v", ErrInvalidConfig, err)
		return
	}
	ok = true
	return
}

// Validate checks the config values against their allowed ranges.
func (cfg *TrainingConfig) Validate() error {
	if cfg.Episodes < MIN_EPISODES || cfg.Episodes > MAX_EPISODES {
		return fmt.Errorf("%w: episodes %d not in [%d,%d]", ErrInvalidConfig, cfg.Episodes, MIN_EPISODES, MAX_EPISODES)
	}
	if cfg.GridSize < MIN_SIZE || cfg.GridSize > MAX_SIZE {
		return fmt.Errorf("%w: gridSize %d not in [%d,%d]", ErrInvalidConfig, cfg.GridSize, MIN_SIZE, MAX_SIZE)
	}
	if cfg.GetMaxEpisodeSteps() < 0 {
		return fmt.Errorf("%w: maxEpisodeSteps must not be negative", ErrInvalidConfig)
	}

	unit := func(key string, def float64) error {
		if v := cfg.GetHyperParamOrDefault(key, def); v < 0 || v > 1 {
			return fmt.Errorf("%w: %s %v not in [0,1]", ErrInvalidConfig, key, v)
		}
		return nil
	}
	for key, def := range map[string]float64{
		"alpha":        DEFAULT_ALPHA,
		"gamma":        DEFAULT_GAMMA,
		"epsilon":      DEFAULT_EPSILON,
		"epsilonDecay": DEFAULT_EPSILON_DECAY,
		"epsilonFloor": DEFAULT_EPSILON_FLOOR,
	} {
		if err := unit(key, def); err != nil {
			return err
		}
	}

	if _, _, err := cfg.FixedMap(); err != nil {
		return err
	}
	if _, err := cfg.trainingDuration(); err != nil {
		return err
	}
	return nil
}

func (cfg *TrainingConfig) trainingDuration() (time.Duration, error) {
	val, ok := cfg.TrainingDeadline["duration"]
	if !ok {
		return 0, nil
	}
	duration, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%w: trainingDeadline: %v", ErrInvalidConfig, err)
	}
	return duration, nil
}

// WithTrainingDeadline returns a context extended by the training deadline, if one is specified.
// Training itself is not cancellable; the deadline bounds how long a caller waits on it.
func (cfg *TrainingConfig) WithTrainingDeadline(
	ctx context.Context,
) (context.Context, context.CancelFunc, error) {
	duration, err := cfg.trainingDuration()
	if err != nil {
		return nil, nil, err
	}
	if duration > 0 {
		innerCtx, cancel := context.WithTimeout(ctx, duration)
		return innerCtx, cancel, nil
	}
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}

// FromYaml reads a training config. The file holds a kind/def envelope, for example:
//
//	kind: training
//	def:
//	  episodes: 50000
//	  hyperParams:
//	    - key: alpha
//	      val: 0.1
//
// Viper folds key case, so the def is decoded by mapstructure, which matches
// field names case-insensitively. Fields missing from the file keep their
// DefaultConfig values.
func FromYaml(path string) (*TrainingConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	var err error
	if err = vp.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	outerConfig := &OuterConfig{}
	if err = vp.Unmarshal(outerConfig); err != nil {
		return nil, err
	}
	if outerConfig.Kind != CONFIG_KIND {
		return nil, fmt.Errorf("%w: kind %q, want %q", ErrInvalidConfig, outerConfig.Kind, CONFIG_KIND)
	}

	innerConfig := DefaultConfig()
	if err = vp.UnmarshalKey("def", innerConfig); err != nil {
		return nil, err
	}

	return innerConfig, nil
}

// ToYaml writes the config in the envelope format read by FromYaml.
func (cfg *TrainingConfig) ToYaml() ([]byte, error) {
	return yaml.Marshal(&struct {
		Kind string          `yaml:"kind"`
		Def  *TrainingConfig `yaml:"def"`
	}{
		Kind: CONFIG_KIND,
		Def:  cfg,
	})
}
