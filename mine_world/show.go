package mine_world

import (
	"fmt"
	"io"
	"strings"

	"github.com/logrusorgru/aurora"
)

const AGENT_EMOJI = "🤠"

var kindEmoji = [NUM_KINDS]string{
	ROCK:     "⚫",
	IRON:     "⚪",
	REDSTONE: "🔴",
	GOLD:     "🟡",
	DIAMOND:  "💎",
}

// Emoji returns the display glyph for the kind.
func (k CellKind) Emoji() string {
	if int(k) < NUM_KINDS {
		return kindEmoji[k]
	}
	return "?"
}

// Render returns the grid as emoji rows, one line per y, with the agent drawn at
// its position. Pass NoAgent to draw the map alone.
func Render(grid *Grid, agent Position) string {
	var sb strings.Builder
	for y := 0; y < grid.Size; y++ {
		for x := 0; x < grid.Size; x++ {
			if x == agent.X && y == agent.Y {
				sb.WriteString(AGENT_EMOJI)
			} else {
				sb.WriteString(grid.At(x, y).Emoji())
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// ShowGrid prints the grid with colored letters, for visual reference in a console.
// The agent is drawn as a bold '@'.
func ShowGrid(w io.Writer, au aurora.Aurora, grid *Grid, agent Position) {
	for y := 0; y < grid.Size; y++ {
		for x := 0; x < grid.Size; x++ {
			if x == agent.X && y == agent.Y {
				fmt.Fprintf(w, "%s ", au.Bold(au.Cyan("@")))
				continue
			}
			fmt.Fprintf(w, "%s ", colorize(au, grid.At(x, y)))
		}
		fmt.Fprintln(w)
	}
}

func colorize(au aurora.Aurora, kind CellKind) aurora.Value {
	letter := string(kindLetters[kind])
	switch kind {
	case IRON:
		return au.White(letter)
	case REDSTONE:
		return au.Red(letter)
	case GOLD:
		return au.Yellow(letter)
	case DIAMOND:
		return au.Bold(au.Blue(letter))
	}
	return au.Gray(8, letter)
}
