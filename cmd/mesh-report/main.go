package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/meshwatch/mesh-topo/pkg/sources"
	"github.com/meshwatch/mesh-topo/pkg/topoengine"
)

var cli struct {
	Nodes       string           `help:"Node feed file (JSON array, envelope, or NDJSON)." type:"existingfile"`
	Traceroutes string           `help:"Traceroute feed file (JSON array, envelope, or NDJSON)." type:"existingfile"`
	Upstream    string           `help:"Fetch both feeds once from this mesh dashboard API instead of files."`
	Lookback    sources.Lookback `help:"Traceroute lookback window in hours for API fetches." default:"168"`
	Cache       bool             `help:"Cache API responses under data/cache."`

	MinPopularity         int `help:"Trunk line popularity threshold (percent)." default:"25"`
	MinClusterConnections int `help:"Cluster connection floor." default:"3"`
	ClusterRadiusMiles    int `help:"Cluster radius in miles." default:"5"`

	JSON    bool   `help:"Dump the raw result as JSON instead of the report."`
	Overlay string `help:"Write the GeoJSON overlay to this path." type:"path"`
}

var (
	heading = color.New(color.FgHiGreen, color.Bold)
	strong  = color.New(color.Bold)
	subtle  = color.New(color.FgHiBlack)
)

func main() {
	kong.Parse(&cli,
		kong.Name("mesh-report"),
		kong.Description("One-shot mesh topology analysis: trunk lines and geographic clusters from node and traceroute feeds."),
		kong.UsageOnError(),
	)

	th := topoengine.Thresholds{
		MinPopularity:         cli.MinPopularity,
		MinClusterConnections: cli.MinClusterConnections,
		ClusterRadiusMiles:    cli.ClusterRadiusMiles,
	}
	if err := th.Validate(); err != nil {
		fatal(err)
	}

	nodes, traceroutes, err := loadFeeds()
	if err != nil {
		fatal(err)
	}

	result := topoengine.Compute(traceroutes, nodes, th)

	if cli.Overlay != "" {
		if err := writeOverlay(result); err != nil {
			fatal(err)
		}
		subtle.Fprintf(os.Stderr, "wrote %s\n", cli.Overlay)
	}

	if cli.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fatal(err)
		}
		return
	}

	printReport(result, th, len(nodes), len(traceroutes))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "mesh-report:", err)
	os.Exit(1)
}

func loadFeeds() ([]topoengine.Node, []topoengine.Traceroute, error) {
	if cli.Upstream != "" {
		var opts []sources.ClientOption
		if cli.Cache {
			opts = append(opts, sources.WithCache())
		}
		client := sources.NewClient(cli.Upstream, opts...)

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		nodes, err := client.Nodes(ctx)
		if err != nil {
			return nil, nil, err
		}
		traceroutes, err := client.Traceroutes(ctx, cli.Lookback)
		if err != nil {
			return nil, nil, err
		}
		return nodes, traceroutes, nil
	}

	if cli.Nodes == "" || cli.Traceroutes == "" {
		return nil, nil, fmt.Errorf("either --upstream or both --nodes and --traceroutes are required")
	}

	nf, err := os.Open(cli.Nodes)
	if err != nil {
		return nil, nil, err
	}
	defer nf.Close()
	nodes, err := sources.ParseNodes(nf)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", cli.Nodes, err)
	}

	tf, err := os.Open(cli.Traceroutes)
	if err != nil {
		return nil, nil, err
	}
	defer tf.Close()
	traceroutes, err := sources.ParseTraceroutes(tf)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", cli.Traceroutes, err)
	}
	return nodes, traceroutes, nil
}

func writeOverlay(result topoengine.TopologyResult) error {
	fc := topoengine.Overlay(result, topoengine.DefaultOverlayOptions())
	payload, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(cli.Overlay, payload, 0o644)
}

func printReport(result topoengine.TopologyResult, th topoengine.Thresholds, nodes, traceroutes int) {
	s := result.Summary

	heading.Println("Mesh Topology Report")
	subtle.Printf("  %d nodes, %d traceroutes\n\n", nodes, traceroutes)

	strong.Println("Summary")
	fmt.Printf("  Edges:       %d (max count %d)\n", s.TotalEdges, s.MaxEdgeCount)
	fmt.Printf("  Trunk lines: %d (%d renderable)\n", s.TrunkLines, s.RenderableTrunkLines)
	fmt.Printf("  Clusters:    %d (%d renderable)\n", s.Clusters, s.RenderableClusters)
	fmt.Printf("  Map center:  %.4f, %.4f\n\n", result.MapCenter[0], result.MapCenter[1])

	strong.Printf("Trunk lines (popularity >= %d%%)\n", th.MinPopularity)
	if len(result.TrunkLines) == 0 {
		subtle.Println("  none")
	} else {
		fmt.Printf("  %4s  %6s  %6s  %-24s %-24s\n", "#", "COUNT", "POP%", "A", "B")
		for i, tl := range result.TrunkLines {
			fmt.Printf("  %4d  %6d  %5.1f%%  %-24s %-24s\n",
				i+1, tl.Count, tl.Popularity, clip(tl.AName, 24), clip(tl.BName, 24))
		}
	}
	fmt.Println()

	strong.Printf("Clusters (%d+ connections within %d mi)\n", th.MinClusterConnections, th.ClusterRadiusMiles)
	if len(result.Clusters) == 0 {
		subtle.Println("  none")
		return
	}
	fmt.Printf("  %4s  %6s  %-24s %s\n", "#", "CONNS", "HUB", "POSITION")
	for i, cl := range result.Clusters {
		fmt.Printf("  %4d  %6d  %-24s %.4f, %.4f\n",
			i+1, cl.ConnectionCount, clip(cl.HubName, 24),
			cl.Position.Latitude, cl.Position.Longitude)
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
