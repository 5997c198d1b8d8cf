package session

import (
	"errors"
	"testing"

	"miner/mine_world"
	"miner/reinforcement"

	. "github.com/smartystreets/goconvey/convey"
)

func mustParse(lines ...string) mine_world.Grid {
	grid, err := mine_world.ParseGrid(lines)
	if err != nil {
		panic(err)
	}
	return grid
}

func TestStore(t *testing.T) {
	Convey("When creating sessions", t, func() {
		store := NewStore(1)
		sess, err := store.Create(4)
		So(err, ShouldBeNil)

		Convey("They are found by id", func() {
			found, err := store.Get(sess.Id)
			So(err, ShouldBeNil)
			So(found, ShouldEqual, sess)
			So(store.Len(), ShouldEqual, 1)
			So(sess.Initial().Size, ShouldEqual, 4)
		})

		Convey("Unknown ids are not found", func() {
			_, err := store.Get("nope")
			So(errors.Is(err, ErrSessionNotFound), ShouldBeTrue)
			So(errors.Is(store.Delete("nope"), ErrSessionNotFound), ShouldBeTrue)
		})

		Convey("Deleted sessions are gone", func() {
			So(store.Delete(sess.Id), ShouldBeNil)
			_, err := store.Get(sess.Id)
			So(errors.Is(err, ErrSessionNotFound), ShouldBeTrue)
		})

		Convey("Invalid sizes are rejected", func() {
			_, err := store.Create(11)
			So(errors.Is(err, mine_world.ErrInvalidSize), ShouldBeTrue)
		})

		Convey("The same seed generates the same maps", func() {
			again, err := NewStore(1).Create(4)
			So(err, ShouldBeNil)
			So(again.Initial(), ShouldResemble, sess.Initial())
			So(again.Id, ShouldNotEqual, sess.Id)
		})
	})
}

func TestSession(t *testing.T) {
	grid := mustParse(
		"..i",
		"...",
		"...",
	)

	Convey("When subscribed to a session", t, func() {
		sess := NewStore(2).CreateWithMap(grid)
		frames, unsubscribe := sess.Subscribe()
		defer unsubscribe()

		Convey("The current frame arrives first", func() {
			frame := <-frames
			So(frame.Id, ShouldEqual, sess.Id)
			So(frame.Grid, ShouldResemble, grid)
			So(frame.Trained, ShouldBeFalse)
			So(frame.Values, ShouldHaveLength, 3)
		})

		Convey("Every change is published", func() {
			<-frames
			_, err := sess.ResetAt(mine_world.Position{X: 1, Y: 0})
			So(err, ShouldBeNil)
			sess.StepWith(mine_world.RIGHT)
			<-frames
			frame := <-frames
			So(frame.Steps, ShouldEqual, 1)
			So(frame.Mined, ShouldEqual, 1)
			So(frame.Done, ShouldBeTrue)
			So(frame.Agent, ShouldResemble, mine_world.Position{X: 2, Y: 0})
		})

		Convey("Slow subscribers drop frames instead of blocking", func() {
			for i := 0; i < 3*SUBSCRIBER_BUFFER; i++ {
				sess.Step()
			}
			So(len(frames), ShouldEqual, SUBSCRIBER_BUFFER)
		})

		Convey("Unsubscribing closes the channel once", func() {
			unsubscribe()
			unsubscribe()
			So(sess.Subscribers(), ShouldEqual, 0)
			for range frames {
			}
		})
	})

	Convey("When a training is applied", t, func() {
		sess := NewStore(3).CreateWithMap(grid)
		training := &reinforcement.Training{
			Table:  reinforcement.NewValueTable(),
			Report: &reinforcement.TrainingReport{},
		}
		at := mine_world.NewState(1, 0, &grid)
		training.Table.Row(at)[mine_world.RIGHT] = 10

		frame, ok := sess.ApplyTraining(grid, training, 1000, true)

		Convey("The replay uses the new table", func() {
			So(ok, ShouldBeTrue)
			So(frame.Trained, ShouldBeTrue)
			So(frame.Episodes, ShouldEqual, 1000)
			So(frame.Cached, ShouldBeTrue)
			So(frame.States, ShouldEqual, 1)
			So(frame.Visited[0][1], ShouldBeTrue)
			So(frame.Values[0][1][mine_world.RIGHT], ShouldEqual, 10)
			So(sess.Training(), ShouldEqual, training)

			_, err := sess.ResetAt(mine_world.Position{X: 1, Y: 0})
			So(err, ShouldBeNil)
			stepped := sess.Step()
			So(stepped.Reward, ShouldEqual, 10)
			So(stepped.Done, ShouldBeTrue)
		})

		Convey("A new map drops the training", func() {
			frame := sess.SetMap(mustParse("...", "...", "d.."))
			So(frame.Trained, ShouldBeFalse)
			So(frame.States, ShouldEqual, 0)
			So(sess.Training(), ShouldBeNil)
		})

		Convey("A training for a stale map is refused", func() {
			sess.SetMap(mustParse("...", "...", "d.."))
			_, ok := sess.ApplyTraining(grid, training, 1000, false)
			So(ok, ShouldBeFalse)
			So(sess.Training(), ShouldBeNil)
		})

		Convey("Starts off the map are rejected", func() {
			_, err := sess.ResetAt(mine_world.Position{X: 3, Y: 0})
			So(errors.Is(err, mine_world.ErrInvalidGrid), ShouldBeTrue)
		})
	})
}
