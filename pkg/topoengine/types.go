// Package topoengine infers routing topology from observed mesh traceroutes
// and node positions: trunk lines (frequently-traversed backbone links) and
// geographic clusters (hub nodes with many tightly co-located neighbors).
package topoengine

import "fmt"

// BroadcastAddr is the mesh's reserved all-nodes address. Edge counting does
// not treat it specially; the route-path rendering in overlay.go drops it.
const BroadcastAddr uint32 = 0xFFFFFFFF

// Node is a read-only input record from the node feed. Identity is Num;
// position and names are optional.
type Node struct {
	Num       uint32   `json:"node_num"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
}

// DisplayName falls back long name, short name, then the bang-hex form of
// the node number.
func (n Node) DisplayName() string {
	if n.LongName != "" {
		return n.LongName
	}
	if n.ShortName != "" {
		return n.ShortName
	}
	return fmt.Sprintf("!%x", n.Num)
}

// Traceroute is a read-only input record. Route runs requester to responder;
// RouteBack is nil when no response came back. A direction with fewer than
// two hops contributes no edges.
type Traceroute struct {
	Route     []uint32 `json:"route"`
	RouteBack []uint32 `json:"route_back"`
}

// Position is a resolved latitude/longitude in degrees.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Thresholds are the tunable controls of the inference pipeline.
type Thresholds struct {
	MinPopularity         int `json:"min_popularity" toml:"min_popularity"`
	MinClusterConnections int `json:"min_cluster_connections" toml:"min_cluster_connections"`
	ClusterRadiusMiles    int `json:"cluster_radius_miles" toml:"cluster_radius_miles"`
}

// DefaultThresholds returns the stock control values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinPopularity:         25,
		MinClusterConnections: 3,
		ClusterRadiusMiles:    5,
	}
}

// Validate checks each control against its allowed range.
func (t Thresholds) Validate() error {
	if t.MinPopularity < 0 || t.MinPopularity > 100 {
		return fmt.Errorf("min_popularity %d out of range [0, 100]", t.MinPopularity)
	}
	if t.MinClusterConnections < 2 || t.MinClusterConnections > 50 {
		return fmt.Errorf("min_cluster_connections %d out of range [2, 50]", t.MinClusterConnections)
	}
	if t.ClusterRadiusMiles < 1 || t.ClusterRadiusMiles > 50 {
		return fmt.Errorf("cluster_radius_miles %d out of range [1, 50]", t.ClusterRadiusMiles)
	}
	return nil
}

// Summary carries the counters shown in dashboard tables. Renderable counts
// are entries whose positions resolved, i.e. the ones a map can draw.
type Summary struct {
	TotalEdges           int `json:"total_edges"`
	MaxEdgeCount         int `json:"max_edge_count"`
	TrunkLines           int `json:"trunk_lines"`
	RenderableTrunkLines int `json:"renderable_trunk_lines"`
	Clusters             int `json:"clusters"`
	RenderableClusters   int `json:"renderable_clusters"`
}

// TopologyResult is one full output of the pipeline. Every recompute
// produces a fresh result that replaces the previous one outright.
type TopologyResult struct {
	TrunkLines []TrunkLine `json:"trunk_lines"`
	Clusters   []Cluster   `json:"clusters"`
	MapCenter  [2]float64  `json:"map_center"`
	Summary    Summary     `json:"summary"`
}
