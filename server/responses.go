package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"miner/mine_world"
	"miner/reinforcement"
	"miner/server/session"

	"github.com/sirupsen/logrus"
)

// StateView is the JSON form of a session frame.
type StateView struct {
	Id       string    `json:"id"`
	Size     int       `json:"size"`
	Map      []string  `json:"map"`
	Render   string    `json:"render"`
	Agent    pointView `json:"agent"`
	Steps    int       `json:"steps"`
	Mined    int       `json:"mined"`
	Target   int       `json:"target"`
	Reward   float64   `json:"reward"`
	Done     bool      `json:"done"`
	Trained  bool      `json:"trained"`
	Episodes int       `json:"episodes"`
	States   int       `json:"states"`
	Cached   bool      `json:"cached"`
	// Policy holds the greedy arrow per cell for the current layout, '.' where unvisited.
	Policy []string `json:"policy"`
}

type pointView struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func newStateView(frame session.Frame) StateView {
	view := StateView{
		Id:       frame.Id,
		Size:     frame.Grid.Size,
		Map:      frame.Grid.Lines(),
		Render:   mine_world.Render(&frame.Grid, frame.Agent),
		Agent:    pointView{X: frame.Agent.X, Y: frame.Agent.Y},
		Steps:    frame.Steps,
		Mined:    frame.Mined,
		Target:   frame.Target,
		Reward:   frame.Reward,
		Done:     frame.Done,
		Trained:  frame.Trained,
		Episodes: frame.Episodes,
		States:   frame.States,
		Cached:   frame.Cached,
		Policy:   make([]string, frame.Grid.Size),
	}
	for y := range frame.Values {
		row := make([]rune, len(frame.Values[y]))
		for x, values := range frame.Values[y] {
			row[x] = '.'
			if frame.Visited[y][x] {
				row[x] = values.Argmax().Arrow()
			}
		}
		view.Policy[y] = string(row)
	}
	return view
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf maps errors to http statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, mine_world.ErrInvalidSize),
		errors.Is(err, mine_world.ErrInvalidGrid),
		errors.Is(err, reinforcement.ErrInvalidConfig),
		errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNotTrained),
		errors.Is(err, ErrStaleTraining):
		return http.StatusConflict
	case errors.Is(err, ErrTrainingDeadline):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (server *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	log := server.log.WithFields(logrus.Fields{
		"path":   r.URL.Path,
		"status": status,
	}).WithError(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Debug("request rejected")
	}
	http.Error(w, err.Error(), status)
}
