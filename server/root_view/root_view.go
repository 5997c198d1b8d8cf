package root_view

import (
	"context"
	"html/template"
	"time"

	"miner/server/fastview"
	"miner/server/mine_views"
	"miner/server/session"

	channerics "github.com/niceyeti/channerics/channels"
)

// How long ele-updates are batched before being sent downstream.
const BATCH_RATE = time.Millisecond * 20

// RootView is the session page, which is the container for all the
// view components, the wiring for their channels, etc.
type RootView struct {
	views   []fastview.ViewComponent
	updates <-chan []fastview.EleUpdate
}

// NewRootView creates the session page and the views it contains. The views live
// until ctx is cancelled or frames is closed.
func NewRootView(
	ctx context.Context,
	frames <-chan session.Frame,
) (*RootView, error) {
	views, err := fastview.NewViewBuilder[session.Frame, mine_views.Board]().
		WithContext(ctx).
		WithModel(frames, mine_views.Convert).
		WithView(func(
			done <-chan struct{},
			boards <-chan mine_views.Board) fastview.ViewComponent {
			return mine_views.NewGridView(done, boards)
		}).
		WithView(func(
			done <-chan struct{},
			boards <-chan mine_views.Board) fastview.ViewComponent {
			return mine_views.NewCountersView(done, boards)
		}).
		Build()
	if err != nil {
		return nil, err
	}

	return &RootView{
		views:   views,
		updates: fanIn(ctx.Done(), views),
	}, nil
}

// Updates returns the main ele-update channel for all the views.
func (rv *RootView) Updates() <-chan []fastview.EleUpdate {
	return rv.updates
}

// Parse builds the page template, with websocket bootstrap code and the session
// controls, and returns its name. It also sets up the func-map the child components depend on.
func (rv *RootView) Parse(
	parent *template.Template,
) (name string, err error) {
	rt := parent.Funcs(
		template.FuncMap{
			"add":  func(i, j int) int { return i + j },
			"sub":  func(i, j int) int { return i - j },
			"mult": func(i, j int) int { return i * j },
			"div":  func(i, j int) int { return i / j },
		})

	viewTemplates := []string{}
	for _, vc := range rv.views {
		tname, parseErr := vc.Parse(rt)
		if parseErr != nil {
			err = parseErr
			return
		}
		viewTemplates = append(viewTemplates, tname)
	}

	var bodySpec string
	for _, tname := range viewTemplates {
		bodySpec += `{{ template "` + tname + `" . }}`
	}

	// The main template bootstraps the rest: sets up client websocket and updates, aggregates views.
	name = "mainpage"
	indexTemplate := `
	{{ define "` + name + `" }}
	<!DOCTYPE html>
	<html>
		<head>
			<link rel="icon" href="data:,">
			<title>miner</title>
			<script>
				const sessionId = {{ .Id }};
				const base = "/sessions/" + sessionId;
				const scheme = location.protocol === "https:" ? "wss://" : "ws://";
				const ws = new WebSocket(scheme + location.host + base + "/ws");
				ws.onopen = function (event) {
					console.log("Web socket opened")
				};

				ws.onerror = function (event) {
					console.log('WebSocket error: ', event);
				};

				// When the server pushes view updates, find these eles and update them.
				ws.onmessage = function (event) {
					const items = JSON.parse(event.data)
					for (const update of items) {
						const ele = document.getElementById(update.EleId)
						if (!ele) {
							continue
						}
						for (const op of update.Ops) {
							if (op.Key === "textContent") {
								ele.textContent = op.Value;
							} else {
								ele.setAttribute(op.Key, op.Value)
							}
						}
					}
				}

				async function post(path, body) {
					const resp = await fetch(base + path, {
						method: "POST",
						headers: {"Content-Type": "application/json"},
						body: JSON.stringify(body || {}),
					});
					document.getElementById("message").textContent = resp.ok ? "" : await resp.text();
					return resp;
				}

				let runner = null;
				function run() {
					if (runner) {
						clearInterval(runner);
						runner = null;
						return;
					}
					runner = setInterval(async function () {
						const resp = await post("/step");
						const state = resp.ok ? await resp.json() : {done: true};
						if (state.done && runner) {
							clearInterval(runner);
							runner = null;
						}
					}, 200);
				}

				function train() {
					const episodes = parseInt(document.getElementById("episodes").value, 10);
					document.getElementById("message").textContent = "training...";
					post("/train", {episodes: episodes});
				}

				async function newMap() {
					const size = parseInt(document.getElementById("size").value, 10);
					const resp = await post("/map", {size: size});
					if (resp.ok) {
						location.reload();
					}
				}
			</script>
		</head>
		<body>
		<div id="controls">
			<button onclick="post('/step')">step</button>
			<button onclick="run()">run</button>
			<button onclick="post('/reset')">reset</button>
			<input id="episodes" type="number" value="50000" min="1000" max="200000">
			<button onclick="train()">train</button>
			<input id="size" type="number" value="{{ .Size }}" min="3" max="10">
			<button onclick="newMap()">new map</button>
			<a href="/sessions/{{ .Id }}/chart">learning curve</a>
			<span id="message"></span>
		</div>
		` + bodySpec + `
		</body></html>
	{{ end }}
	`

	_, err = rt.Parse(indexTemplate)
	return
}

// fanIn aggregates the views' ele-update channels into a single channel,
// and throttles its output.
func fanIn(
	done <-chan struct{},
	views []fastview.ViewComponent,
) <-chan []fastview.EleUpdate {
	inputs := make([]<-chan []fastview.EleUpdate, len(views))
	for i, view := range views {
		inputs[i] = view.Updates()
	}
	return batchify(
		done,
		channerics.Merge(done, inputs...),
		BATCH_RATE)
}

// batchify batches within the passed time frame before sending, over-writing previously
// received values for the same ele-id. This ensures that redundant updates for the
// same ele-id are not sent, and only the latest values are sent. Pending updates are
// flushed on the next tick, or when the source closes.
func batchify(
	done <-chan struct{},
	source <-chan []fastview.EleUpdate,
	rate time.Duration,
) <-chan []fastview.EleUpdate {
	output := make(chan []fastview.EleUpdate)

	go func() {
		defer close(output)

		data := map[string]fastview.EleUpdate{}
		order := []string{}
		flush := func() bool {
			if len(order) == 0 {
				return true
			}
			batch := make([]fastview.EleUpdate, 0, len(order))
			for _, id := range order {
				batch = append(batch, data[id])
			}
			select {
			case output <- batch:
				data = map[string]fastview.EleUpdate{}
				order = order[:0]
				return true
			case <-done:
				return false
			}
		}

		ticker := channerics.NewTicker(done, rate)
		input := channerics.OrDone(done, source)
		for {
			select {
			case updates, ok := <-input:
				if !ok {
					flush()
					return
				}
				// Intentionally overwrites pre-exisiting values for an ele-id within this batch's time frame.
				for _, update := range updates {
					if _, seen := data[update.EleId]; !seen {
						order = append(order, update.EleId)
					}
					data[update.EleId] = update
				}
			case <-ticker:
				if !flush() {
					return
				}
			}
		}
	}()

	return output
}
