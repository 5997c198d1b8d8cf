package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"math/rand"
	"net/http"
	"time"

	"miner/mine_world"
	"miner/reinforcement"
	"miner/server/curves"
	"miner/server/fastview"
	"miner/server/mine_views"
	"miner/server/root_view"
	"miner/server/session"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed for in-flight requests to finish on shutdown.
	shutdownGrace = 5 * time.Second
	// Time allowed to read request headers.
	readHeaderTimeout = 10 * time.Second
	// Maximum accepted request body.
	maxBodySize = 1 << 16
)

// ErrTrainingDeadline is returned when a training run outlasts the configured deadline.
// The run itself continues and lands in the cache.
var ErrTrainingDeadline error = errors.New("training deadline exceeded")

// ErrBadRequest is returned for malformed request bodies.
var ErrBadRequest error = errors.New("bad request")

// ErrStaleTraining is returned when the session map changed while its training ran.
var ErrStaleTraining error = errors.New("map changed during training")

// Server serves mining sessions: each session is a map the user can train on and
// watch the greedy policy replay, with views pushed over a websocket.
// Trainings are shared between sessions through a content-addressed cache.
type Server struct {
	addr   string
	cfg    *reinforcement.TrainingConfig
	log    logrus.FieldLogger
	store  *session.Store
	cache  *reinforcement.TrainingCache
	router *mux.Router
}

// NewServer returns a server for the given address and training config.
// A zero config seed seeds sessions and trainings from the clock.
func NewServer(
	addr string,
	cfg *reinforcement.TrainingConfig,
	log logrus.FieldLogger,
) *Server {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	server := &Server{
		addr:  addr,
		cfg:   cfg,
		log:   log,
		store: session.NewStore(seed),
		cache: reinforcement.NewTrainingCache(),
	}
	server.router = server.routes()
	return server
}

func (server *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(server.logRequests)

	router.HandleFunc("/", server.serveIndex).Methods(http.MethodGet)
	router.HandleFunc("/cache", server.serveCacheStats).Methods(http.MethodGet)
	router.HandleFunc("/sessions", server.createSession).Methods(http.MethodPost)

	router.HandleFunc("/sessions/{id}", server.servePage).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}", server.deleteSession).Methods(http.MethodDelete)
	router.HandleFunc("/sessions/{id}/state", server.serveState).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}/map", server.setMap).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}/train", server.train).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}/step", server.step).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}/reset", server.reset).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{id}/chart", server.serveChart).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{id}/ws", server.serveWebsocket).Methods(http.MethodGet)
	return router
}

// Handler returns the http handler of all routes.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (server *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              server.addr,
		Handler:           server.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		server.log.WithField("addr", server.addr).Info("serving")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		server.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

// serveIndex creates a session and redirects to its page.
func (server *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	sess, err := server.newSession(createRequest{})
	if err != nil {
		server.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, "/sessions/"+sess.Id, http.StatusSeeOther)
}

type createRequest struct {
	Size int      `json:"size"`
	Map  []string `json:"map"`
}

func (server *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(r, &req); err != nil {
		server.writeError(w, r, err)
		return
	}
	sess, err := server.newSession(req)
	if err != nil {
		server.writeError(w, r, err)
		return
	}
	server.log.WithFields(logrus.Fields{
		"session": sess.Id,
		"size":    sess.Initial().Size,
	}).Info("session created")
	writeJSON(w, http.StatusCreated, newStateView(sess.Frame()))
}

// newSession creates a session over the requested map. Without one it falls back
// to the configured fixed map, then to a random map of the requested or configured size.
func (server *Server) newSession(req createRequest) (*session.Session, error) {
	if len(req.Map) > 0 {
		grid, err := mine_world.ParseGrid(req.Map)
		if err != nil {
			return nil, err
		}
		return server.store.CreateWithMap(grid), nil
	}
	if req.Size == 0 {
		grid, ok, err := server.cfg.FixedMap()
		if err != nil {
			return nil, err
		}
		if ok {
			return server.store.CreateWithMap(grid), nil
		}
		req.Size = server.cfg.GridSize
	}
	return server.store.Create(req.Size)
}

func (server *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := server.store.Delete(mux.Vars(r)["id"]); err != nil {
		server.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (server *Server) session(r *http.Request) (*session.Session, error) {
	return server.store.Get(mux.Vars(r)["id"])
}

// servePage renders the session page with the current frame.
func (server *Server) servePage(w http.ResponseWriter, r *http.Request) {
	sess, err := server.session(r)
	if err != nil {
		server.writeError(w, r, err)
		return
	}

	// The page only needs the view templates; their update chans die with ctx.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	rootView, err := root_view.NewRootView(ctx, nil)
	if err != nil {
		server.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err = renderTemplate(&buf, rootView, mine_views.Convert(sess.Frame())); err != nil {
		server.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (server *Server) serveState(w http.ResponseWriter, r *http.Request) {
	sess, err := server.session(r)
	if err != nil {
		server.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateView(sess.Frame()))
}

// setMap replaces the session map from rows, or by a random map of the given size.
func (server *Server) setMap(w http.ResponseWriter, r *http.Request) {
	sess, err := server.session(r)
	if err != nil {
		server.writeError(w, r, err)
		return
	}
	var req createRequest
	if err = decodeBody(r, &req); err != nil {
		server.writeError(w, r, err)
		return
	}

	var frame session.Frame
	if len(req.Map) > 0 {
		var grid mine_world.Grid
		if grid, err = mine_world.ParseGrid(req.Map); err != nil {
			server.writeError(w, r, err)
			return
		}
		frame = sess.SetMap(grid)
	} else {
		size := req.Size
		if size == 0 {
			size = sess.Initial().Size
		}
		if frame, err = sess.GenerateMap(size); err != nil {
			server.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, newStateView(frame))
}

type trainRequest struct {
	Episodes int `json:"episodes"`
}

// train trains on the session map, waiting up to the configured training deadline.
func (server *Server) train(w http.ResponseWriter, r *http.Request) {
	sess, err := server.session(r)
	if err != nil {
		server.writeError(w, r, err)
		return
	}
	var req trainRequest
	if err = decodeBody(r, &req); err != nil {
		server.writeError(w, r, err)
		return
	}
	episodes := req.Episodes
	if episodes == 0 {
		episodes = server.cfg.Episodes
	}
	if episodes < reinforcement.MIN_EPISODES || episodes > reinforcement.MAX_EPISODES {
		server.writeError(w, r, fmt.Errorf("%w: episodes %d not in [%d,%d]",
			reinforcement.ErrInvalidConfig, episodes, reinforcement.MIN_EPISODES, reinforcement.MAX_EPISODES))
		return
	}

	grid := sess.Initial()
	if grid.Resources() == 0 {
		server.writeError(w, r, fmt.Errorf("%w: nothing to mine", mine_world.ErrInvalidGrid))
		return
	}

	ctx, cancel, err := server.cfg.WithTrainingDeadline(r.Context())
	if err != nil {
		server.writeError(w, r, err)
		return
	}
	defer cancel()

	training, cached, err := server.trainOn(ctx, grid, episodes)
	if err != nil {
		server.writeError(w, r, err)
		return
	}
	frame, ok := sess.ApplyTraining(grid, training, episodes, cached)
	if !ok {
		server.writeError(w, r, ErrStaleTraining)
		return
	}
	server.log.WithFields(logrus.Fields{
		"session": sess.Id,
		"states":  frame.States,
		"cached":  cached,
	}).Info("session trained")
	writeJSON(w, http.StatusOK, newStateView(frame))
}

// trainOn returns the cached training for the map or runs one on its own goroutine.
// A cancelled ctx stops the wait, not the run.
func (server *Server) trainOn(
	ctx context.Context,
	grid mine_world.Grid,
	episodes int,
) (*reinforcement.Training, bool, error) {
	key := reinforcement.CacheKey{
		Grid:     grid,
		Episodes: episodes,
		Target:   grid.Resources(),
	}

	type result struct {
		training *reinforcement.Training
		cached   bool
	}
	results := make(chan result, 1)
	go func() {
		training, cached := server.cache.GetOrTrain(key, func() *reinforcement.Training {
			// The seed follows the map so a cached run is the run that would have happened.
			rng := rand.New(rand.NewSource(server.cfg.Seed ^ int64(key.Digest())))
			trainer := reinforcement.NewTrainer(server.cfg, rng, server.log)
			return trainer.TrainWithReport(grid, episodes, key.Target)
		})
		results <- result{training, cached}
	}()

	select {
	case res := <-results:
		return res.training, res.cached, nil
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%w: %v", ErrTrainingDeadline, ctx.Err())
	}
}

type stepRequest struct {
	Action string `json:"action"`
}

// step advances the replay greedily, or by the requested action.
func (server *Server) step(w http.ResponseWriter, r *http.Request) {
	sess, err := server.session(r)
	if err != nil {
		server.writeError(w, r, err)
		return
	}
	var req stepRequest
	if err = decodeBody(r, &req); err != nil {
		server.writeError(w, r, err)
		return
	}

	if req.Action == "" {
		writeJSON(w, http.StatusOK, newStateView(sess.Step()))
		return
	}
	action, err := parseAction(req.Action)
	if err != nil {
		server.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateView(sess.StepWith(action)))
}

func parseAction(name string) (mine_world.Action, error) {
	for _, action := range mine_world.Actions {
		if action.String() == name {
			return action, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown action %q", ErrBadRequest, name)
}

type resetRequest struct {
	X *int `json:"x"`
	Y *int `json:"y"`
}

// reset restarts the replay, at the requested cell or a random one.
func (server *Server) reset(w http.ResponseWriter, r *http.Request) {
	sess, err := server.session(r)
	if err != nil {
		server.writeError(w, r, err)
		return
	}
	var req resetRequest
	if err = decodeBody(r, &req); err != nil {
		server.writeError(w, r, err)
		return
	}

	if req.X == nil || req.Y == nil {
		writeJSON(w, http.StatusOK, newStateView(sess.Reset()))
		return
	}
	frame, err := sess.ResetAt(mine_world.Position{X: *req.X, Y: *req.Y})
	if err != nil {
		server.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateView(frame))
}

// serveChart renders the learning curve of the session training.
func (server *Server) serveChart(w http.ResponseWriter, r *http.Request) {
	sess, err := server.session(r)
	if err != nil {
		server.writeError(w, r, err)
		return
	}
	training := sess.Training()
	if training == nil {
		server.writeError(w, r, fmt.Errorf("%w: %s", session.ErrNotTrained, sess.Id))
		return
	}

	var buf bytes.Buffer
	if err = curves.Render(&buf, training.Report); err != nil {
		server.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (server *Server) serveCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, server.cache.Stats())
}

// serveWebsocket publishes the session's view updates to the client until it disconnects.
func (server *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	sess, err := server.session(r)
	if err != nil {
		server.writeError(w, r, err)
		return
	}
	log := server.log.WithField("session", sess.Id)

	frames, unsubscribe := sess.Subscribe()
	defer unsubscribe()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	rootView, err := root_view.NewRootView(ctx, frames)
	if err != nil {
		server.writeError(w, r, err)
		return
	}
	cli, err := fastview.NewClient(rootView.Updates(), w, r)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	log.Debug("websocket opened")
	if err = cli.Sync(); err != nil {
		log.WithError(err).Warn("websocket closed")
		return
	}
	log.Debug("websocket closed")
}

func renderTemplate(
	w io.Writer,
	vc fastview.ViewComponent,
	data interface{},
) (err error) {
	t := template.New("index.html")
	var tname string
	if tname, err = vc.Parse(t); err != nil {
		return
	}
	if _, err = t.Parse(`{{ template "` + tname + `" . }}`); err != nil {
		return
	}

	err = t.Execute(w, data)
	return
}
