package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"miner/reinforcement"
	"miner/server/fastview"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg *reinforcement.TrainingConfig) *Server {
	t.Helper()
	if cfg == nil {
		cfg = reinforcement.DefaultConfig()
	}
	cfg.Seed = 1
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewServer("localhost:0", cfg, log)
}

func do(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) StateView {
	t.Helper()
	var view StateView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view), rec.Body.String())
	return view
}

var ironMap = map[string]interface{}{
	"map": []string{"..i", "...", "..."},
}

func TestSessionFlow(t *testing.T) {
	server := newTestServer(t, nil)

	rec := do(t, server, http.MethodPost, "/sessions", ironMap)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeState(t, rec)
	require.NotEmpty(t, created.Id)
	assert.Equal(t, 3, created.Size)
	assert.Equal(t, []string{"..i", "...", "..."}, created.Map)
	assert.Equal(t, 1, created.Target)
	assert.False(t, created.Trained)
	base := "/sessions/" + created.Id

	rec = do(t, server, http.MethodGet, base+"/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.Id, decodeState(t, rec).Id)

	rec = do(t, server, http.MethodGet, base+"/chart", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, server, http.MethodPost, base+"/train", map[string]int{"episodes": 10000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	trained := decodeState(t, rec)
	assert.True(t, trained.Trained)
	assert.False(t, trained.Cached)
	assert.Equal(t, 10000, trained.Episodes)
	assert.Greater(t, trained.States, 0)

	rec = do(t, server, http.MethodPost, base+"/reset", map[string]int{"x": 0, "y": 0})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reset := decodeState(t, rec)
	assert.Equal(t, pointView{X: 0, Y: 0}, reset.Agent)
	assert.Equal(t, ">>", reset.Policy[0][:2])

	var state StateView
	for i := 0; i < 2; i++ {
		rec = do(t, server, http.MethodPost, base+"/step", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		state = decodeState(t, rec)
	}
	assert.True(t, state.Done)
	assert.Equal(t, 2, state.Steps)
	assert.Equal(t, 1, state.Mined)
	assert.Equal(t, 9.0, state.Reward)
	assert.Equal(t, pointView{X: 2, Y: 0}, state.Agent)
	assert.Equal(t, []string{"...", "...", "..."}, state.Map)

	// Stepping a finished run changes nothing.
	rec = do(t, server, http.MethodPost, base+"/step", nil)
	assert.Equal(t, 2, decodeState(t, rec).Steps)

	rec = do(t, server, http.MethodGet, base+"/chart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "echarts")

	rec = do(t, server, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "minegrid")
	assert.Contains(t, rec.Body.String(), "counters-steps")
	assert.Contains(t, rec.Body.String(), created.Id)

	rec = do(t, server, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, server, http.MethodGet, base+"/state", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrainingIsShared(t *testing.T) {
	server := newTestServer(t, nil)

	first := decodeState(t, do(t, server, http.MethodPost, "/sessions", ironMap))
	second := decodeState(t, do(t, server, http.MethodPost, "/sessions", ironMap))
	require.NotEqual(t, first.Id, second.Id)

	rec := do(t, server, http.MethodPost, "/sessions/"+first.Id+"/train", map[string]int{"episodes": 2000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decodeState(t, rec).Cached)

	rec = do(t, server, http.MethodPost, "/sessions/"+second.Id+"/train", map[string]int{"episodes": 2000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeState(t, rec).Cached)

	var stats reinforcement.CacheStats
	rec = do(t, server, http.MethodGet, "/cache", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, reinforcement.CacheStats{Hits: 1, Misses: 1, Entries: 1}, stats)
}

func TestErrors(t *testing.T) {
	server := newTestServer(t, nil)
	sess := decodeState(t, do(t, server, http.MethodPost, "/sessions", nil))
	base := "/sessions/" + sess.Id

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"unknown session", http.MethodGet, "/sessions/nope/state", nil, http.StatusNotFound},
		{"size too small", http.MethodPost, "/sessions", map[string]int{"size": 2}, http.StatusBadRequest},
		{"size too large", http.MethodPost, "/sessions", map[string]int{"size": 11}, http.StatusBadRequest},
		{"ragged map", http.MethodPost, base + "/map", map[string][]string{"map": {"...", ".."}}, http.StatusBadRequest},
		{"too few episodes", http.MethodPost, base + "/train", map[string]int{"episodes": 10}, http.StatusBadRequest},
		{"nothing to mine", http.MethodPost, base + "/map", map[string][]string{"map": {"...", "...", "..."}}, http.StatusOK},
		{"training without resources", http.MethodPost, base + "/train", nil, http.StatusBadRequest},
		{"unknown action", http.MethodPost, base + "/step", map[string]string{"action": "jump"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, base + "/step", map[string]string{"speed": "fast"}, http.StatusBadRequest},
		{"start off the map", http.MethodPost, base + "/reset", map[string]int{"x": 5, "y": 0}, http.StatusBadRequest},
		{"wrong method", http.MethodGet, base + "/step", nil, http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, server, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestTrainingDeadline(t *testing.T) {
	cfg := reinforcement.DefaultConfig()
	cfg.TrainingDeadline = map[string]string{"duration": "1ns"}
	server := newTestServer(t, cfg)

	sess := decodeState(t, do(t, server, http.MethodPost, "/sessions", ironMap))
	rec := do(t, server, http.MethodPost, "/sessions/"+sess.Id+"/train", map[string]int{"episodes": 5000})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
}

func TestIndexRedirects(t *testing.T) {
	server := newTestServer(t, nil)
	rec := do(t, server, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/sessions/"))
	assert.Equal(t, 1, server.store.Len())
}

func TestWebsocket(t *testing.T) {
	server := newTestServer(t, nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	sess := decodeState(t, do(t, server, http.MethodPost, "/sessions", ironMap))
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sessions/" + sess.Id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// readUntil reads update batches until the element has the wanted text.
	readUntil := func(eleId, want string) bool {
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			require.NoError(t, conn.SetReadDeadline(deadline))
			var updates []fastview.EleUpdate
			if err := conn.ReadJSON(&updates); err != nil {
				return false
			}
			for _, update := range updates {
				if update.EleId != eleId {
					continue
				}
				for _, op := range update.Ops {
					if op.Key == fastview.TEXT_CONTENT && op.Value == want {
						return true
					}
				}
			}
		}
		return false
	}

	require.True(t, readUntil("counters-steps", "0"))

	rec := do(t, server, http.MethodPost, "/sessions/"+sess.Id+"/step", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, readUntil("counters-steps", "1"))
}
