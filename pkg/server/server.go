// Package server exposes the topology engine over HTTP: JSON and GeoJSON
// endpoints for the map frontend, a websocket push channel for fresh
// results, and the service metrics.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/meshwatch/mesh-topo/pkg/sources"
	"github.com/meshwatch/mesh-topo/pkg/topoengine"
)

// Config carries the initial serving state. Zero-value fields select the
// stock defaults.
type Config struct {
	Thresholds topoengine.Thresholds
	Overlay    topoengine.OverlayOptions
	Lookback   sources.Lookback
}

// Observation is a traceroute stamped with the time it was seen. Replayed
// history keeps its original times, so it ages out of the lookback window
// on the same schedule as live arrivals.
type Observation struct {
	Traceroute topoengine.Traceroute
	At         time.Time
}

// Server holds the latest inputs and result and serves them. Every feed
// update or settled threshold change triggers a full recompute whose result
// replaces the previous one outright and is pushed to subscribers.
type Server struct {
	logger    *zap.Logger
	collector *Collector
	hub       *Hub
	started   time.Time
	lookback  sources.Lookback

	mu            sync.Mutex
	nodes         []topoengine.Node
	nodePos       map[uint32]int
	traceroutes   []Observation
	thresholds    topoengine.Thresholds
	overlay       topoengine.OverlayOptions
	result        topoengine.TopologyResult
	computedAt    time.Time
	nodesUpdated  time.Time
	routesUpdated time.Time
	listenerStats func() sources.ListenerStats

	popDebounce    *topoengine.Debouncer
	radiusDebounce *topoengine.Debouncer
}

func New(logger *zap.Logger, collector *Collector, cfg Config) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Thresholds == (topoengine.Thresholds{}) {
		cfg.Thresholds = topoengine.DefaultThresholds()
	}
	if cfg.Overlay == (topoengine.OverlayOptions{}) {
		cfg.Overlay = topoengine.DefaultOverlayOptions()
	}
	if cfg.Lookback == 0 {
		cfg.Lookback = sources.DefaultLookback
	}

	s := &Server{
		logger:     logger,
		collector:  collector,
		started:    time.Now(),
		lookback:   cfg.Lookback,
		nodePos:    make(map[uint32]int),
		thresholds: cfg.Thresholds,
		overlay:    cfg.Overlay,
	}
	s.hub = newHub(logger, collector, func(p thresholdsPatch) {
		if err := s.applyThresholdsPatch(p); err != nil {
			s.logger.Warn("rejected thresholds from subscriber", zap.Error(err))
		}
	})
	s.popDebounce = topoengine.NewDebouncer(topoengine.DefaultDebounce, s.applyMinPopularity)
	s.radiusDebounce = topoengine.NewDebouncer(topoengine.DefaultDebounce, s.applyClusterRadius)
	// Prime the debouncers so the startup values count as the immediate
	// first observation and every later slider move settles properly.
	s.popDebounce.Set(cfg.Thresholds.MinPopularity)
	s.radiusDebounce.Set(cfg.Thresholds.ClusterRadiusMiles)
	return s
}

// Close stops the debounce timers. Pending slider values are abandoned.
func (s *Server) Close() {
	s.popDebounce.Stop()
	s.radiusDebounce.Stop()
}

// SetListenerStats wires a live-stream stats provider into /api/status.
// Safe to call while requests are already being served.
func (s *Server) SetListenerStats(fn func() sources.ListenerStats) {
	s.mu.Lock()
	s.listenerStats = fn
	s.mu.Unlock()
}

// SetFeeds replaces both inputs wholesale, the poll path. Every traceroute
// is stamped with the current time.
func (s *Server) SetFeeds(nodes []topoengine.Node, traceroutes []topoengine.Traceroute) {
	now := time.Now()
	observations := make([]Observation, len(traceroutes))
	for i, tr := range traceroutes {
		observations[i] = Observation{Traceroute: tr, At: now}
	}
	s.setFeeds(nodes, observations)
}

// WarmFeeds replaces both inputs with observations carrying their own
// times, the capture replay path.
func (s *Server) WarmFeeds(nodes []topoengine.Node, observations []Observation) {
	s.setFeeds(nodes, observations)
}

func (s *Server) setFeeds(nodes []topoengine.Node, observations []Observation) {
	s.mu.Lock()
	s.nodes = nodes
	s.nodePos = make(map[uint32]int, len(nodes))
	for i, n := range nodes {
		s.nodePos[n.Num] = i
	}
	s.traceroutes = observations
	now := time.Now()
	s.nodesUpdated = now
	s.routesUpdated = now
	s.mu.Unlock()
	s.Recompute()
}

// ApplyNode upserts one node from the live stream.
func (s *Server) ApplyNode(n topoengine.Node) {
	s.mu.Lock()
	if i, ok := s.nodePos[n.Num]; ok {
		s.nodes[i] = n
	} else {
		s.nodePos[n.Num] = len(s.nodes)
		s.nodes = append(s.nodes, n)
	}
	s.nodesUpdated = time.Now()
	s.mu.Unlock()
	s.collector.CountFeedEvent("node")
	s.Recompute()
}

// ApplyTraceroute appends one observation from the live stream.
func (s *Server) ApplyTraceroute(tr topoengine.Traceroute) {
	now := time.Now()
	s.mu.Lock()
	s.traceroutes = append(s.traceroutes, Observation{Traceroute: tr, At: now})
	s.routesUpdated = now
	s.mu.Unlock()
	s.collector.CountFeedEvent("traceroute")
	s.Recompute()
}

// Result returns the latest topology result.
func (s *Server) Result() topoengine.TopologyResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Thresholds returns the currently applied controls.
func (s *Server) Thresholds() topoengine.Thresholds {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thresholds
}

// pruneTraceroutes drops observations older than the lookback window.
// Callers hold s.mu.
func (s *Server) pruneTraceroutes() {
	cutoff := time.Now().Add(-s.lookback.Duration())
	keep := s.traceroutes[:0]
	for _, o := range s.traceroutes {
		if !o.At.Before(cutoff) {
			keep = append(keep, o)
		}
	}
	// Release the dropped tail.
	for i := len(keep); i < len(s.traceroutes); i++ {
		s.traceroutes[i] = Observation{}
	}
	s.traceroutes = keep
}

// tracerouteSlice returns the retained traceroutes for the engine. Callers
// hold s.mu.
func (s *Server) tracerouteSlice() []topoengine.Traceroute {
	trs := make([]topoengine.Traceroute, len(s.traceroutes))
	for i, o := range s.traceroutes {
		trs[i] = o.Traceroute
	}
	return trs
}

type resultEnvelope struct {
	Type       string                    `json:"type"`
	ComputedAt time.Time                 `json:"computed_at"`
	Data       topoengine.TopologyResult `json:"data"`
}

// Recompute runs the engine over the in-window inputs and publishes the
// fresh result.
func (s *Server) Recompute() {
	start := time.Now()
	s.mu.Lock()
	s.pruneTraceroutes()
	result := topoengine.Compute(s.tracerouteSlice(), s.nodes, s.thresholds)
	s.result = result
	s.computedAt = time.Now()
	computedAt := s.computedAt
	s.mu.Unlock()
	elapsed := time.Since(start)

	s.collector.ObserveRecompute(elapsed, result.Summary)
	s.logger.Debug("recomputed topology",
		zap.Duration("elapsed", elapsed),
		zap.Int("edges", result.Summary.TotalEdges),
		zap.Int("trunk_lines", result.Summary.TrunkLines),
		zap.Int("clusters", result.Summary.Clusters),
	)

	payload, err := json.Marshal(resultEnvelope{Type: "topology", ComputedAt: computedAt, Data: result})
	if err != nil {
		s.logger.Error("marshal result", zap.Error(err))
		return
	}
	s.hub.Broadcast(payload)
}

type thresholdsPatch struct {
	MinPopularity         *int `json:"min_popularity"`
	MinClusterConnections *int `json:"min_cluster_connections"`
	ClusterRadiusMiles    *int `json:"cluster_radius_miles"`
}

type configPatch struct {
	thresholdsPatch
	ShowTrunkLines *bool `json:"show_trunk_lines"`
	ShowClusters   *bool `json:"show_clusters"`
}

// applyThresholdsPatch validates the merged controls, then routes each
// changed one down its path: the two slider values settle through their
// debouncers, the connection floor applies immediately.
func (s *Server) applyThresholdsPatch(p thresholdsPatch) error {
	s.mu.Lock()
	th := s.thresholds
	s.mu.Unlock()
	if p.MinPopularity != nil {
		th.MinPopularity = *p.MinPopularity
	}
	if p.MinClusterConnections != nil {
		th.MinClusterConnections = *p.MinClusterConnections
	}
	if p.ClusterRadiusMiles != nil {
		th.ClusterRadiusMiles = *p.ClusterRadiusMiles
	}
	if err := th.Validate(); err != nil {
		return err
	}

	if p.MinClusterConnections != nil {
		s.mu.Lock()
		changed := s.thresholds.MinClusterConnections != *p.MinClusterConnections
		s.thresholds.MinClusterConnections = *p.MinClusterConnections
		s.mu.Unlock()
		if changed {
			s.Recompute()
		}
	}
	if p.MinPopularity != nil {
		s.popDebounce.Set(*p.MinPopularity)
	}
	if p.ClusterRadiusMiles != nil {
		s.radiusDebounce.Set(*p.ClusterRadiusMiles)
	}
	return nil
}

func (s *Server) applyMinPopularity(v int) {
	s.mu.Lock()
	changed := s.thresholds.MinPopularity != v
	s.thresholds.MinPopularity = v
	s.mu.Unlock()
	if changed {
		s.Recompute()
	}
}

func (s *Server) applyClusterRadius(v int) {
	s.mu.Lock()
	changed := s.thresholds.ClusterRadiusMiles != v
	s.thresholds.ClusterRadiusMiles = v
	s.mu.Unlock()
	if changed {
		s.Recompute()
	}
}

// Routes assembles the full HTTP surface.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogger(s.logger))
	r.Use(Metrics(s.collector))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", s.collector.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/topology", s.handleTopology)
		r.Get("/topology/overlay", s.handleOverlay)
		r.Get("/routes/overlay", s.handleRoutesOverlay)
		r.Get("/config", s.handleGetConfig)
		r.Patch("/config", s.handlePatchConfig)
		r.Get("/status", s.handleStatus)
		r.Get("/ws", s.handleWS)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// handleTopology serves the current result, or a one-shot recompute when
// threshold query parameters override the applied ones. Overrides never
// touch the serving state.
func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	th := s.thresholds
	s.mu.Unlock()

	q := r.URL.Query()
	override := false
	for name, dst := range map[string]*int{
		"min_popularity":          &th.MinPopularity,
		"min_cluster_connections": &th.MinClusterConnections,
		"cluster_radius_miles":    &th.ClusterRadiusMiles,
	} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: not an integer", name))
			return
		}
		*dst = n
		override = true
	}

	if !override {
		s.mu.Lock()
		result := s.result
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, result)
		return
	}

	if err := th.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	s.pruneTraceroutes()
	result := topoengine.Compute(s.tracerouteSlice(), s.nodes, th)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	opts := s.overlay
	result := s.result
	s.mu.Unlock()

	q := r.URL.Query()
	if raw := q.Get("trunk_lines"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "trunk_lines: not a boolean")
			return
		}
		opts.ShowTrunkLines = v
	}
	if raw := q.Get("clusters"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "clusters: not a boolean")
			return
		}
		opts.ShowClusters = v
	}

	writeJSON(w, http.StatusOK, topoengine.Overlay(result, opts))
}

func (s *Server) handleRoutesOverlay(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.pruneTraceroutes()
	fc := topoengine.RoutePaths(s.tracerouteSlice(), topoengine.NewNodeIndex(s.nodes))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, fc)
}

type configResponse struct {
	Thresholds    topoengine.Thresholds     `json:"thresholds"`
	Overlay       topoengine.OverlayOptions `json:"overlay"`
	LookbackHours int                       `json:"lookback_hours"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := configResponse{
		Thresholds:    s.thresholds,
		Overlay:       s.overlay,
		LookbackHours: s.lookback.Hours(),
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

// handlePatchConfig adjusts controls. Slider values settle through the
// debouncers, so the response reflects the applied state, which may trail
// the request by the quiescence window.
func (s *Server) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	var patch configPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.applyThresholdsPatch(patch.thresholdsPatch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	if patch.ShowTrunkLines != nil {
		s.overlay.ShowTrunkLines = *patch.ShowTrunkLines
	}
	if patch.ShowClusters != nil {
		s.overlay.ShowClusters = *patch.ShowClusters
	}
	resp := configResponse{
		Thresholds:    s.thresholds,
		Overlay:       s.overlay,
		LookbackHours: s.lookback.Hours(),
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

type statusResponse struct {
	Status          string                 `json:"status"`
	UptimeSeconds   int64                  `json:"uptime_seconds"`
	ComputedAt      time.Time              `json:"computed_at"`
	NodesUpdatedAt  time.Time              `json:"nodes_updated_at"`
	RoutesUpdatedAt time.Time              `json:"traceroutes_updated_at"`
	Nodes           int                    `json:"nodes"`
	Traceroutes     int                    `json:"traceroutes"`
	LookbackHours   int                    `json:"lookback_hours"`
	WSClients       int                    `json:"ws_clients"`
	Summary         topoengine.Summary     `json:"summary"`
	Listener        *sources.ListenerStats `json:"listener,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.pruneTraceroutes()
	resp := statusResponse{
		Status:          "ok",
		UptimeSeconds:   int64(time.Since(s.started).Seconds()),
		ComputedAt:      s.computedAt,
		NodesUpdatedAt:  s.nodesUpdated,
		RoutesUpdatedAt: s.routesUpdated,
		Nodes:           len(s.nodes),
		Traceroutes:     len(s.traceroutes),
		LookbackHours:   s.lookback.Hours(),
		Summary:         s.result.Summary,
	}
	listenerStats := s.listenerStats
	s.mu.Unlock()

	resp.WSClients = s.hub.ClientCount()
	if listenerStats != nil {
		stats := listenerStats()
		resp.Listener = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The map frontend is served from another origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	envelope := resultEnvelope{Type: "topology", ComputedAt: s.computedAt, Data: s.result}
	s.mu.Unlock()
	initial, err := json.Marshal(envelope)
	if err != nil {
		initial = nil
	}
	s.hub.serve(conn, initial)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
