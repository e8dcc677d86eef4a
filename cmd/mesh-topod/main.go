package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/meshwatch/mesh-topo/pkg/server"
	"github.com/meshwatch/mesh-topo/pkg/sources"
	"github.com/meshwatch/mesh-topo/pkg/topoengine"
	"github.com/meshwatch/mesh-topo/pkg/utils"
)

var cli struct {
	Config       string           `help:"TOML config file." short:"c" type:"path"`
	Upstream     string           `help:"Base URL of the mesh dashboard API."`
	Listen       string           `help:"HTTP listen address."`
	DataDir      string           `help:"Directory for the capture log." name:"data-dir"`
	Lookback     sources.Lookback `help:"Traceroute lookback window in hours: 24, 72, 168, 336 or 720."`
	Live         bool             `help:"Follow the live event stream instead of polling."`
	PollInterval time.Duration    `help:"Feed polling interval in poll mode."`
	NoCapture    bool             `help:"Disable the on-disk capture log."`
	Debug        bool             `help:"Enable debug logging."`
}

// fileConfig mirrors the flags for the optional TOML config file. Flags win
// over file values, file values win over the built-in defaults.
type fileConfig struct {
	Upstream      string                `toml:"upstream"`
	Listen        string                `toml:"listen"`
	DataDir       string                `toml:"data_dir"`
	LookbackHours int                   `toml:"lookback_hours"`
	Live          bool                  `toml:"live"`
	PollInterval  string                `toml:"poll_interval"`
	Thresholds    topoengine.Thresholds `toml:"thresholds"`
}

type settings struct {
	upstream   string
	listen     string
	dataDir    string
	lookback   sources.Lookback
	live       bool
	poll       time.Duration
	thresholds topoengine.Thresholds
}

func main() {
	kong.Parse(&cli,
		kong.Name("mesh-topod"),
		kong.Description("Mesh topology daemon: ingests node and traceroute feeds, infers trunk lines and geographic clusters, and serves the result over HTTP and websocket."),
		kong.UsageOnError(),
	)

	logger, err := buildLogger(cli.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	st, err := resolve()
	if err != nil {
		logger.Fatal("configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector, err := server.NewCollector(nil)
	if err != nil {
		logger.Fatal("metrics", zap.Error(err))
	}

	srv := server.New(logger, collector, server.Config{
		Thresholds: st.thresholds,
		Lookback:   st.lookback,
	})
	defer srv.Close()

	var clog *utils.CaptureLog
	warmNodes := 0
	if !cli.NoCapture {
		clog, err = utils.OpenCaptureLog(filepath.Join(st.dataDir, "capture"), utils.DefaultCaptureTTL)
		if err != nil {
			logger.Fatal("open capture log", zap.Error(err))
		}
		defer clog.Close()
		warmNodes = warmFromCapture(logger, srv, clog, st.lookback)
	}

	httpSrv := &http.Server{
		Addr:              st.listen,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", st.listen))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", zap.Error(err))
			stop()
		}
	}()

	if st.live {
		runLive(ctx, logger, srv, clog, st, warmNodes)
	} else {
		runPoll(ctx, logger, srv, clog, st)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func resolve() (settings, error) {
	st := settings{
		upstream:   "http://localhost:8080",
		listen:     ":8780",
		dataDir:    "data",
		lookback:   sources.DefaultLookback,
		poll:       5 * time.Minute,
		thresholds: topoengine.DefaultThresholds(),
	}

	if cli.Config != "" {
		fc := fileConfig{Thresholds: st.thresholds}
		if _, err := toml.DecodeFile(cli.Config, &fc); err != nil {
			return st, fmt.Errorf("read %s: %w", cli.Config, err)
		}
		if fc.Upstream != "" {
			st.upstream = fc.Upstream
		}
		if fc.Listen != "" {
			st.listen = fc.Listen
		}
		if fc.DataDir != "" {
			st.dataDir = fc.DataDir
		}
		if fc.LookbackHours != 0 {
			st.lookback = sources.Lookback(fc.LookbackHours)
		}
		if fc.PollInterval != "" {
			d, err := time.ParseDuration(fc.PollInterval)
			if err != nil {
				return st, fmt.Errorf("poll_interval: %w", err)
			}
			st.poll = d
		}
		st.live = fc.Live
		st.thresholds = fc.Thresholds
	}

	if cli.Upstream != "" {
		st.upstream = cli.Upstream
	}
	if cli.Listen != "" {
		st.listen = cli.Listen
	}
	if cli.DataDir != "" {
		st.dataDir = cli.DataDir
	}
	if cli.Lookback != 0 {
		st.lookback = cli.Lookback
	}
	if cli.Live {
		st.live = true
	}
	if cli.PollInterval != 0 {
		st.poll = cli.PollInterval
	}

	if !st.lookback.Valid() {
		return st, fmt.Errorf("lookback %d hours: must be one of 24, 72, 168, 336, 720", st.lookback)
	}
	if err := st.thresholds.Validate(); err != nil {
		return st, err
	}
	if st.poll <= 0 {
		return st, fmt.Errorf("poll interval %s: must be positive", st.poll)
	}
	return st, nil
}

// runPoll fetches both feeds on a fixed interval until the context ends.
func runPoll(ctx context.Context, logger *zap.Logger, srv *server.Server, clog *utils.CaptureLog, st settings) {
	client := sources.NewClient(st.upstream, sources.WithLogger(logger))

	poll := func() {
		nodes, err := client.Nodes(ctx)
		if err != nil {
			logger.Warn("fetch nodes", zap.Error(err))
			return
		}
		traceroutes, err := client.Traceroutes(ctx, st.lookback)
		if err != nil {
			logger.Warn("fetch traceroutes", zap.Error(err))
			return
		}
		srv.SetFeeds(nodes, traceroutes)
		snapshotNodes(logger, clog, nodes)
		logger.Info("feeds refreshed",
			zap.Int("nodes", len(nodes)),
			zap.Int("traceroutes", len(traceroutes)),
		)
	}

	poll()
	ticker := time.NewTicker(st.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}

// runLive follows the event stream, capturing each event before applying it.
// A cold start with an empty capture fetches both feeds once for a baseline.
func runLive(ctx context.Context, logger *zap.Logger, srv *server.Server, clog *utils.CaptureLog, st settings, warmNodes int) {
	onNode := func(n topoengine.Node) {
		captureAppend(logger, clog, "node", n)
		srv.ApplyNode(n)
	}
	onTraceroute := func(tr topoengine.Traceroute) {
		captureAppend(logger, clog, "traceroute", tr)
		srv.ApplyTraceroute(tr)
	}

	listener := sources.NewListener(st.upstream, logger, onNode, onTraceroute)
	srv.SetListenerStats(listener.Stats)

	if warmNodes == 0 {
		client := sources.NewClient(st.upstream, sources.WithLogger(logger))
		nodes, err := client.Nodes(ctx)
		if err != nil {
			logger.Warn("initial node fetch", zap.Error(err))
		} else {
			traceroutes, err := client.Traceroutes(ctx, st.lookback)
			if err != nil {
				logger.Warn("initial traceroute fetch", zap.Error(err))
			}
			srv.SetFeeds(nodes, traceroutes)
			snapshotNodes(logger, clog, nodes)
		}
	}

	// Window expiry has to land even when the stream goes quiet.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.Recompute()
			}
		}
	}()

	if err := listener.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("event stream", zap.Error(err))
	}
}

// warmFromCapture rebuilds the serving state from the on-disk capture so a
// restart renders without waiting on the upstream. Returns the node count.
func warmFromCapture(logger *zap.Logger, srv *server.Server, clog *utils.CaptureLog, lookback sources.Lookback) int {
	var nodes []topoengine.Node
	if payload, err := clog.Snapshot("nodes"); err != nil {
		logger.Warn("read node snapshot", zap.Error(err))
	} else if payload != nil {
		if err := json.Unmarshal(payload, &nodes); err != nil {
			logger.Warn("decode node snapshot", zap.Error(err))
			nodes = nil
		}
	}
	byNum := make(map[uint32]int, len(nodes))
	for i, n := range nodes {
		byNum[n.Num] = i
	}

	// Node events replay in order, so the fold ends at the latest state
	// even when the snapshot predates some of them.
	err := clog.ReplaySince("node", time.Time{}, func(ts time.Time, payload []byte) error {
		var n topoengine.Node
		if err := json.Unmarshal(payload, &n); err != nil {
			return nil
		}
		if i, ok := byNum[n.Num]; ok {
			nodes[i] = n
		} else {
			byNum[n.Num] = len(nodes)
			nodes = append(nodes, n)
		}
		return nil
	})
	if err != nil {
		logger.Warn("replay node stream", zap.Error(err))
	}

	// Replayed observations keep their capture times, so anything close to
	// the edge of the window still expires on schedule.
	cutoff := time.Now().Add(-lookback.Duration())
	var observations []server.Observation
	err = clog.ReplaySince("traceroute", cutoff, func(ts time.Time, payload []byte) error {
		var tr topoengine.Traceroute
		if err := json.Unmarshal(payload, &tr); err != nil {
			return nil
		}
		observations = append(observations, server.Observation{Traceroute: tr, At: ts})
		return nil
	})
	if err != nil {
		logger.Warn("replay traceroute stream", zap.Error(err))
	}

	if len(nodes) == 0 && len(observations) == 0 {
		return 0
	}
	srv.WarmFeeds(nodes, observations)
	logger.Info("warmed from capture",
		zap.Int("nodes", len(nodes)),
		zap.Int("traceroutes", len(observations)),
	)
	return len(nodes)
}

func captureAppend(logger *zap.Logger, clog *utils.CaptureLog, stream string, v interface{}) {
	if clog == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := clog.Append(stream, payload); err != nil {
		logger.Warn("capture append", zap.String("stream", stream), zap.Error(err))
	}
}

func snapshotNodes(logger *zap.Logger, clog *utils.CaptureLog, nodes []topoengine.Node) {
	if clog == nil {
		return
	}
	payload, err := json.Marshal(nodes)
	if err != nil {
		return
	}
	if err := clog.PutSnapshot("nodes", payload); err != nil {
		logger.Warn("write node snapshot", zap.Error(err))
	}
}
