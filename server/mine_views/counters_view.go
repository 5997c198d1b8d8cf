package mine_views

import (
	"html/template"
	"strconv"

	"miner/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// CountersView shows the replay and training counters as a small table.
type CountersView struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

func NewCountersView(
	done <-chan struct{},
	boards <-chan Board,
) (cv *CountersView) {
	cv = &CountersView{id: "counters"}
	cv.updates = channerics.Convert(done, boards, cv.onUpdate)
	return
}

func (cv *CountersView) Updates() <-chan []fastview.EleUpdate {
	return cv.updates
}

func (cv *CountersView) Parse(parent *template.Template) (name string, err error) {
	name = cv.id
	_, err = parent.Parse(`{{ define "` + name + `" }}
	<table id="` + cv.id + `">
		<tr><td>status</td><td id="` + cv.id + `-status">{{ .Status }}</td></tr>
		<tr><td>steps</td><td id="` + cv.id + `-steps">{{ .Steps }}</td></tr>
		<tr><td>mined</td><td id="` + cv.id + `-mined">{{ .Mined }}/{{ .Target }}</td></tr>
		<tr><td>reward</td><td id="` + cv.id + `-reward">{{ .Reward }}</td></tr>
		<tr><td>episodes</td><td id="` + cv.id + `-episodes">{{ .Episodes }}</td></tr>
		<tr><td>states</td><td id="` + cv.id + `-states">{{ .States }}</td></tr>
		<tr><td>cached</td><td id="` + cv.id + `-cached">{{ .Cached }}</td></tr>
	</table>
	{{ end }}`)
	return
}

func (cv *CountersView) onUpdate(board Board) []fastview.EleUpdate {
	return []fastview.EleUpdate{
		fastview.Text(cv.id+"-status", board.Status),
		fastview.Text(cv.id+"-steps", strconv.Itoa(board.Steps)),
		fastview.Text(cv.id+"-mined", strconv.Itoa(board.Mined)+"/"+strconv.Itoa(board.Target)),
		fastview.Text(cv.id+"-reward", board.Reward),
		fastview.Text(cv.id+"-episodes", strconv.Itoa(board.Episodes)),
		fastview.Text(cv.id+"-states", strconv.Itoa(board.States)),
		fastview.Text(cv.id+"-cached", strconv.FormatBool(board.Cached)),
	}
}
