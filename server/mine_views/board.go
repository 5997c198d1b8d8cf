// mine_views contains the views of a mining session, all derived from the Board view-model.
package mine_views

import (
	"fmt"

	"miner/mine_world"
	"miner/server/session"
)

// Cell is the view-model of one grid cell. Fields are immediately usable as view
// parameters; [y][x] of Board.Cells is the cell printed at row y, column x.
type Cell struct {
	X, Y    int
	Glyph   string
	Fill    string
	Arrow   string
	Max     string
	Visited bool
}

// Board is the view-model of a session frame.
type Board struct {
	Id       string
	Size     int
	Cells    [][]Cell
	AgentX   int
	AgentY   int
	Steps    int
	Mined    int
	Target   int
	Reward   string
	Status   string
	Episodes int
	States   int
	Cached   bool
}

// CELL_DIM is the side of a rendered cell in pixels.
const CELL_DIM = 64

var kindFills = [mine_world.NUM_KINDS]string{
	mine_world.ROCK:     "lightgray",
	mine_world.IRON:     "silver",
	mine_world.REDSTONE: "salmon",
	mine_world.GOLD:     "gold",
	mine_world.DIAMOND:  "lightblue",
}

// Convert transforms a session frame into a Board for consumption by the views.
func Convert(frame session.Frame) (board Board) {
	size := frame.Grid.Size
	board = Board{
		Id:       frame.Id,
		Size:     size,
		Cells:    make([][]Cell, size),
		AgentX:   frame.Agent.X,
		AgentY:   frame.Agent.Y,
		Steps:    frame.Steps,
		Mined:    frame.Mined,
		Target:   frame.Target,
		Reward:   fmt.Sprintf("%.0f", frame.Reward),
		Status:   status(frame),
		Episodes: frame.Episodes,
		States:   frame.States,
		Cached:   frame.Cached,
	}

	for y := 0; y < size; y++ {
		board.Cells[y] = make([]Cell, size)
		for x := 0; x < size; x++ {
			kind := frame.Grid.At(x, y)
			cell := Cell{
				X:     x,
				Y:     y,
				Glyph: kind.Emoji(),
				Fill:  kindFills[kind],
			}
			if frame.Visited[y][x] {
				values := frame.Values[y][x]
				cell.Visited = true
				cell.Arrow = string(values.Argmax().Arrow())
				cell.Max = fmt.Sprintf("%.1f", values.Max())
			}
			board.Cells[y][x] = cell
		}
	}
	return
}

func status(frame session.Frame) string {
	switch {
	case frame.Done:
		return "done"
	case !frame.Trained:
		return "untrained"
	case frame.Steps == 0:
		return "ready"
	default:
		return "mining"
	}
}
