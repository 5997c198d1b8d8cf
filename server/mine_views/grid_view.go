package mine_views

import (
	"fmt"
	"html/template"
	"strconv"

	"miner/mine_world"
	"miner/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// GridView draws the map as an svg grid: one tile per cell with its resource, the
// greedy policy arrow and max value for the current layout, and the agent on top.
type GridView struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

func NewGridView(
	done <-chan struct{},
	boards <-chan Board,
) (gv *GridView) {
	gv = &GridView{id: "minegrid"}
	gv.updates = channerics.Convert(done, boards, gv.onUpdate)
	return
}

func (gv *GridView) Updates() <-chan []fastview.EleUpdate {
	return gv.updates
}

// Parse adds the grid template to the parent. The parent's func-map must define add, sub, mult and div.
func (gv *GridView) Parse(parent *template.Template) (name string, err error) {
	name = gv.id
	cellDim := strconv.Itoa(CELL_DIM)
	_, err = parent.Parse(`{{ define "` + name + `" }}
	<div id="` + gv.id + `">
		{{ $dim := ` + cellDim + ` }}
		{{ $half := div $dim 2 }}
		{{ $side := mult $dim .Size }}
		<svg width="{{ add $side 1 }}px" height="{{ add $side 1 }}px" style="shape-rendering: crispEdges;">
			{{ range $row := .Cells }}
				{{ range $cell := $row }}
				<g>
					<rect id="cell-{{$cell.X}}-{{$cell.Y}}-tile"
						x="{{ mult $cell.X $dim }}"
						y="{{ mult $cell.Y $dim }}"
						width="{{ $dim }}"
						height="{{ $dim }}"
						fill="{{ $cell.Fill }}"
						stroke="black"
						stroke-width="1"/>
					<text id="cell-{{$cell.X}}-{{$cell.Y}}-glyph"
						x="{{ add (mult $cell.X $dim) $half }}"
						y="{{ add (mult $cell.Y $dim) $half }}"
						font-size="24"
						dominant-baseline="central" text-anchor="middle"
						>{{ $cell.Glyph }}</text>
					<text id="cell-{{$cell.X}}-{{$cell.Y}}-arrow"
						x="{{ add (mult $cell.X $dim) 10 }}"
						y="{{ add (mult $cell.Y $dim) 14 }}"
						fill="darkgreen"
						text-anchor="middle"
						>{{ $cell.Arrow }}</text>
					<text id="cell-{{$cell.X}}-{{$cell.Y}}-max"
						x="{{ add (mult $cell.X $dim) (sub $dim 4) }}"
						y="{{ add (mult $cell.Y $dim) (sub $dim 6) }}"
						font-size="10"
						fill="blue"
						text-anchor="end"
						>{{ $cell.Max }}</text>
				</g>
				{{ end }}
			{{ end }}
			<text id="` + gv.id + `-agent"
				x="{{ add (mult .AgentX $dim) $half }}"
				y="{{ add (mult .AgentY $dim) $half }}"
				font-size="32"
				dominant-baseline="central" text-anchor="middle"
				>` + mine_world.AGENT_EMOJI + `</text>
		</svg>
	</div>
	{{ end }}`)
	return
}

// onUpdate returns the set of ele-updates needed for the view to reflect the board.
func (gv *GridView) onUpdate(board Board) (ops []fastview.EleUpdate) {
	for _, row := range board.Cells {
		for _, cell := range row {
			prefix := fmt.Sprintf("cell-%d-%d", cell.X, cell.Y)
			ops = append(ops,
				fastview.EleUpdate{
					EleId: prefix + "-tile",
					Ops:   []fastview.Op{{Key: "fill", Value: cell.Fill}},
				},
				fastview.Text(prefix+"-glyph", cell.Glyph),
				fastview.Text(prefix+"-arrow", cell.Arrow),
				fastview.Text(prefix+"-max", cell.Max),
			)
		}
	}

	half := CELL_DIM / 2
	ops = append(ops, fastview.EleUpdate{
		EleId: gv.id + "-agent",
		Ops: []fastview.Op{
			{Key: "x", Value: strconv.Itoa(board.AgentX*CELL_DIM + half)},
			{Key: "y", Value: strconv.Itoa(board.AgentY*CELL_DIM + half)},
		},
	})
	return
}
