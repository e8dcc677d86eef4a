package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/meshwatch/mesh-topo/pkg/sources"
	"github.com/meshwatch/mesh-topo/pkg/topoengine"
)

var cli struct {
	Node     string        `arg:"" help:"Node to watch: decimal number or !hex form."`
	Upstream string        `help:"Base URL of the mesh dashboard API." default:"http://localhost:8080"`
	Timeout  time.Duration `help:"How long to run before exiting (0 for forever)."`
}

var (
	heading = color.New(color.FgHiGreen, color.Bold)
	subtle  = color.New(color.FgHiBlack)
)

// watchStats accumulates everything seen on the event stream, with edge
// counts over the whole mesh so per-edge popularity is meaningful.
type watchStats struct {
	mu     sync.Mutex
	target uint32
	start  time.Time

	nodes       map[uint32]topoengine.Node
	set         *topoengine.EdgeSet
	nodeEvents  int
	traceroutes int
	involving   int
	broadcast   int
	lastSeen    time.Time
}

func (s *watchStats) recordNode(n topoengine.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.Num] = n
	s.nodeEvents++
}

func (s *watchStats) recordTraceroute(tr topoengine.Traceroute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traceroutes++

	involved := false
	hasBroadcast := false
	for _, path := range [][]uint32{tr.Route, tr.RouteBack} {
		for i, hop := range path {
			if hop == s.target {
				involved = true
			}
			if hop == topoengine.BroadcastAddr {
				hasBroadcast = true
			}
			if i+1 < len(path) {
				s.set.Add(path[i], path[i+1])
			}
		}
	}
	if involved {
		s.involving++
		s.lastSeen = time.Now()
	}
	if hasBroadcast {
		s.broadcast++
	}
}

func (s *watchStats) report(stream sources.ListenerStats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := time.Since(s.start).Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}

	fmt.Printf("\033[H\033[2J") // Clear screen
	name := fmt.Sprintf("!%x", s.target)
	node, known := s.nodes[s.target]
	if known {
		name = node.DisplayName()
	}

	heading.Printf("Node Monitor: %s (%d)\n", name, s.target)
	if known && node.Latitude != nil && node.Longitude != nil {
		subtle.Printf("Position: %.4f, %.4f\n", *node.Latitude, *node.Longitude)
	}
	fmt.Printf("--------------------------------------------------\n")
	fmt.Printf("Node events:    %d\n", s.nodeEvents)
	fmt.Printf("Traceroutes:    %d (%.2f/s)\n", s.traceroutes, float64(s.traceroutes)/elapsed)
	fmt.Printf("Involving node: %d\n", s.involving)
	fmt.Printf("With broadcast: %d\n", s.broadcast)
	if !s.lastSeen.IsZero() {
		fmt.Printf("Last involved:  %s ago\n", time.Since(s.lastSeen).Round(time.Second))
	}
	fmt.Printf("Stream:         %d reconnects, %d malformed\n", stream.Reconnects, stream.Malformed)
	fmt.Printf("--------------------------------------------------\n")

	type row struct {
		neighbor uint32
		count    int
	}
	var rows []row
	for _, e := range s.set.Edges() {
		switch s.target {
		case e.A:
			rows = append(rows, row{e.B, e.Count})
		case e.B:
			rows = append(rows, row{e.A, e.Count})
		}
	}
	if len(rows) == 0 {
		subtle.Println("No edges through this node yet.")
		return
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].count > rows[j].count })

	maxCount := s.set.MaxCount()
	fmt.Printf("EDGES (%d neighbors, busiest mesh edge count %d):\n", len(rows), maxCount)
	fmt.Printf("  %6s  %6s  %-24s %s\n", "COUNT", "POP%", "NEIGHBOR", "DISTANCE")
	for _, r := range rows {
		pop := 0.0
		if maxCount > 0 {
			pop = float64(r.count) / float64(maxCount) * 100.0
		}
		fmt.Printf("  %6d  %5.1f%%  %-24s %s\n",
			r.count, pop, clip(s.neighborName(r.neighbor), 24), s.distanceTo(node, known, r.neighbor))
	}
}

func (s *watchStats) neighborName(num uint32) string {
	if num == topoengine.BroadcastAddr {
		return "(broadcast)"
	}
	if n, ok := s.nodes[num]; ok {
		return n.DisplayName()
	}
	return fmt.Sprintf("!%x", num)
}

func (s *watchStats) distanceTo(target topoengine.Node, known bool, num uint32) string {
	if !known || target.Latitude == nil || target.Longitude == nil {
		return "--"
	}
	n, ok := s.nodes[num]
	if !ok || n.Latitude == nil || n.Longitude == nil {
		return "--"
	}
	miles := topoengine.DistanceMiles(*target.Latitude, *target.Longitude, *n.Latitude, *n.Longitude)
	return fmt.Sprintf("%.1f mi", miles)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// parseNodeArg accepts a decimal node number or the !hex display form.
func parseNodeArg(s string) (uint32, error) {
	if strings.HasPrefix(s, "!") {
		n, err := strconv.ParseUint(strings.TrimPrefix(s, "!"), 16, 32)
		if err != nil {
			return 0, fmt.Errorf("node %q: %w", s, err)
		}
		return uint32(n), nil
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("node %q: %w", s, err)
	}
	return uint32(n), nil
}

func main() {
	kong.Parse(&cli,
		kong.Name("debug-node"),
		kong.Description("Live edge inspector for a single mesh node."),
		kong.UsageOnError(),
	)

	target, err := parseNodeArg(cli.Node)
	if err != nil {
		fmt.Fprintln(os.Stderr, "debug-node:", err)
		os.Exit(1)
	}

	// Warnings only, so dial noise shows up but the report owns the screen.
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "debug-node:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cli.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cli.Timeout)
		defer cancel()
	}

	s := &watchStats{
		target: target,
		start:  time.Now(),
		nodes:  make(map[uint32]topoengine.Node),
		set:    topoengine.NewEdgeSet(),
	}

	listener := sources.NewListener(cli.Upstream, logger, s.recordNode, s.recordTraceroute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		listener.Listen(ctx)
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			s.report(listener.Stats())
			return
		case <-ctx.Done():
			s.report(listener.Stats())
			return
		case <-ticker.C:
			s.report(listener.Stats())
		}
	}
}
