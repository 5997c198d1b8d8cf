package reinforcement

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func writeConfig(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const testConfig = `kind: training
def:
  episodes: 2000
  gridSize: 4
  seed: 42
  maxEpisodeSteps: 500
  hyperParams:
    - key: alpha
      val: 0.2
    - key: epsilonDecay
      val: 0.999
  map:
    - "..i."
    - "...."
    - ".r.."
    - "...d"
  trainingDeadline:
    duration: 2s
`

func TestFromYaml(t *testing.T) {
	Convey("When reading a full config", t, func() {
		cfg, err := FromYaml(writeConfig(t, testConfig))
		So(err, ShouldBeNil)

		Convey("Every field is decoded", func() {
			So(cfg.Episodes, ShouldEqual, 2000)
			So(cfg.GridSize, ShouldEqual, 4)
			So(cfg.Seed, ShouldEqual, 42)
			So(cfg.GetMaxEpisodeSteps(), ShouldEqual, 500)
			So(cfg.GetHyperParamOrDefault("alpha", DEFAULT_ALPHA), ShouldEqual, 0.2)
			So(cfg.GetHyperParamOrDefault("epsilonDecay", DEFAULT_EPSILON_DECAY), ShouldEqual, 0.999)
			So(cfg.GetHyperParamOrDefault("gamma", DEFAULT_GAMMA), ShouldEqual, DEFAULT_GAMMA)
			So(cfg.TrainingDeadline["duration"], ShouldEqual, "2s")
			So(cfg.Validate(), ShouldBeNil)
		})

		Convey("The fixed map parses", func() {
			grid, ok, err := cfg.FixedMap()
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(grid.Size, ShouldEqual, 4)
			So(grid.Resources(), ShouldEqual, 3)
		})

		Convey("The trainer picks up the hyperparameters", func() {
			trainer := NewTrainer(cfg, nil, quietLogger())
			So(trainer.Alpha, ShouldEqual, 0.2)
			So(trainer.Gamma, ShouldEqual, DEFAULT_GAMMA)
			So(trainer.EpsilonDecay, ShouldEqual, 0.999)
			So(trainer.MaxEpisodeSteps, ShouldEqual, 500)
		})

		Convey("Writing it back reads the same config", func() {
			out, err := cfg.ToYaml()
			So(err, ShouldBeNil)
			again, err := FromYaml(writeConfig(t, string(out)))
			So(err, ShouldBeNil)
			So(again, ShouldResemble, cfg)
		})
	})

	Convey("When reading a partial config", t, func() {
		cfg, err := FromYaml(writeConfig(t, "kind: training\ndef:\n  episodes: 3000\n"))
		So(err, ShouldBeNil)

		Convey("Missing fields keep their defaults", func() {
			So(cfg.Episodes, ShouldEqual, 3000)
			So(cfg.GridSize, ShouldEqual, DEFAULT_GRID_SIZE)
			So(cfg.GetMaxEpisodeSteps(), ShouldEqual, DEFAULT_MAX_EPISODE_STEPS)
			_, ok, err := cfg.FixedMap()
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)
		})
	})

	Convey("When the kind does not match", t, func() {
		_, err := FromYaml(writeConfig(t, "kind: other\ndef:\n  episodes: 3000\n"))
		So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
	})

	Convey("When the file is missing", t, func() {
		_, err := FromYaml(filepath.Join(t.TempDir(), "nope.yaml"))
		So(err, ShouldNotBeNil)
	})
}

func TestValidate(t *testing.T) {
	Convey("The default config is valid", t, func() {
		So(DefaultConfig().Validate(), ShouldBeNil)
	})

	Convey("Out of range values are rejected", t, func() {
		negative := -1
		for _, mutate := range []func(*TrainingConfig){
			func(cfg *TrainingConfig) { cfg.Episodes = MIN_EPISODES - 1 },
			func(cfg *TrainingConfig) { cfg.Episodes = MAX_EPISODES + 1 },
			func(cfg *TrainingConfig) { cfg.GridSize = 2 },
			func(cfg *TrainingConfig) { cfg.GridSize = 11 },
			func(cfg *TrainingConfig) { cfg.MaxEpisodeSteps = &negative },
			func(cfg *TrainingConfig) { cfg.HyperParams = []HyperParameter{{Key: "alpha", Val: 1.5}} },
			func(cfg *TrainingConfig) { cfg.HyperParams = []HyperParameter{{Key: "epsilonFloor", Val: -0.1}} },
			func(cfg *TrainingConfig) { cfg.Map = []string{"..", ".."} },
			func(cfg *TrainingConfig) { cfg.Map = []string{"...", ".x.", "..."} },
			func(cfg *TrainingConfig) { cfg.TrainingDeadline = map[string]string{"duration": "soon"} },
		} {
			cfg := DefaultConfig()
			mutate(cfg)
			So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)
		}
	})
}

func TestWithTrainingDeadline(t *testing.T) {
	Convey("When a deadline is configured", t, func() {
		cfg := DefaultConfig()
		cfg.TrainingDeadline = map[string]string{"duration": "50ms"}
		ctx, cancel, err := cfg.WithTrainingDeadline(context.Background())
		So(err, ShouldBeNil)
		defer cancel()

		deadline, ok := ctx.Deadline()
		So(ok, ShouldBeTrue)
		So(time.Until(deadline), ShouldBeLessThanOrEqualTo, 50*time.Millisecond)
		<-ctx.Done()
		So(errors.Is(ctx.Err(), context.DeadlineExceeded), ShouldBeTrue)
	})

	Convey("When no deadline is configured", t, func() {
		ctx, cancel, err := DefaultConfig().WithTrainingDeadline(context.Background())
		So(err, ShouldBeNil)
		_, ok := ctx.Deadline()
		So(ok, ShouldBeFalse)
		cancel()
		So(errors.Is(ctx.Err(), context.Canceled), ShouldBeTrue)
	})

	Convey("When the deadline does not parse", t, func() {
		cfg := DefaultConfig()
		cfg.TrainingDeadline = map[string]string{"duration": "later"}
		_, _, err := cfg.WithTrainingDeadline(context.Background())
		So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
	})
}
