package reinforcement

import (
	"fmt"
	"io"
	"math"

	. "miner/mine_world"

	"github.com/logrusorgru/aurora"
)

// ShowPolicy prints the greedy action at every cell for the given layout, as arrows.
// Cells whose state was never visited during training print as '.'.
// Since the layout is part of the state this is the policy for one remaining-resource
// configuration only, e.g. the untouched map.
func ShowPolicy(w io.Writer, au aurora.Aurora, table *ValueTable, grid *Grid) {
	for y := 0; y < grid.Size; y++ {
		for x := 0; x < grid.Size; x++ {
			values, ok := table.Lookup(NewState(x, y, grid))
			if !ok {
				fmt.Fprintf(w, "%s ", au.Gray(8, "."))
				continue
			}
			arrow := string(values.Argmax().Arrow())
			if grid.At(x, y).IsResource() {
				fmt.Fprintf(w, "%s ", au.Yellow(arrow))
			} else {
				fmt.Fprintf(w, "%s ", au.Green(arrow))
			}
		}
		fmt.Fprintln(w)
	}
}

// ShowMaxValues prints the max action value at every cell for the given layout.
func ShowMaxValues(w io.Writer, au aurora.Aurora, table *ValueTable, grid *Grid) {
	fmt.Fprintln(w, "Max vals:")
	total := 0.0
	for y := 0; y < grid.Size; y++ {
		fmt.Fprint(w, " ")
		for x := 0; x < grid.Size; x++ {
			values := table.Values(NewState(x, y, grid))
			max := values.Max()
			total += max
			fmt.Fprintf(w, "%s ", au.Blue(fmt.Sprintf("%7.2f", max)))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Total: %.2f\n", total)

	// Over every discovered layout, not only the one shown.
	states, best := 0, math.Inf(-1)
	table.Visit(func(_ State, values ActionValues) {
		states++
		best = math.Max(best, values.Max())
	})
	if states == 0 {
		fmt.Fprintln(w, "States: 0")
		return
	}
	fmt.Fprintf(w, "States: %d, best: %.2f\n", states, best)
}
