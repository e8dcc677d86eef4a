package topoengine

import "sort"

// Cluster is a hub node with a known position and enough non-trunk
// neighbors inside the radius. Neighbors holds only the within-radius ones,
// in the order the adjacency walk first met them.
type Cluster struct {
	Hub             uint32   `json:"hub"`
	HubName         string   `json:"hub_name"`
	Position        Position `json:"position"`
	Neighbors       []uint32 `json:"neighbors"`
	ConnectionCount int      `json:"connection_count"`
}

// adjacency is a neighbor-set table over the non-trunk edges. Both the hub
// list and each hub's neighbor list preserve insertion order so repeated
// runs over the same input emit identical results.
type adjacency struct {
	neighbors map[uint32]map[uint32]struct{}
	order     map[uint32][]uint32
	hubs      []uint32
}

func newAdjacency() *adjacency {
	return &adjacency{
		neighbors: make(map[uint32]map[uint32]struct{}),
		order:     make(map[uint32][]uint32),
	}
}

func (adj *adjacency) link(a, b uint32) {
	adj.add(a, b)
	adj.add(b, a)
}

func (adj *adjacency) add(node, neighbor uint32) {
	set, ok := adj.neighbors[node]
	if !ok {
		set = make(map[uint32]struct{})
		adj.neighbors[node] = set
		adj.hubs = append(adj.hubs, node)
	}
	if _, dup := set[neighbor]; dup {
		return
	}
	set[neighbor] = struct{}{}
	adj.order[node] = append(adj.order[node], neighbor)
}

// DetectClusters finds hub nodes whose geographically-proximate, non-trunk
// neighbor count meets minConnections.
//
// The adjacency uses only edges whose popularity falls strictly below
// minPopularity, i.e. the complement of the trunk-line set, and an edge
// contributes one neighbor relation regardless of its count. A candidate hub
// must have a known position and at least minConnections raw neighbors;
// its neighbors are then distance-filtered to radiusMiles, and the candidate
// is dropped outright if the filtered count no longer clears the bar. Many
// far-away neighbors never qualify a hub.
func DetectClusters(set *EdgeSet, index *NodeIndex, minPopularity, minConnections, radiusMiles int) []Cluster {
	maxCount := set.MaxCount()
	adj := newAdjacency()
	for _, e := range set.Edges() {
		if popularity(e.Count, maxCount) >= float64(minPopularity) {
			continue
		}
		adj.link(e.A, e.B)
	}

	clusters := make([]Cluster, 0)
	for _, hub := range adj.hubs {
		if len(adj.neighbors[hub]) < minConnections {
			continue
		}
		hubPos := index.Position(hub)
		if hubPos == nil {
			continue
		}

		var nearby []uint32
		for _, neighbor := range adj.order[hub] {
			pos := index.Position(neighbor)
			if pos == nil {
				continue
			}
			d := DistanceMiles(hubPos.Latitude, hubPos.Longitude, pos.Latitude, pos.Longitude)
			if d <= float64(radiusMiles) {
				nearby = append(nearby, neighbor)
			}
		}
		if len(nearby) < minConnections {
			continue
		}

		clusters = append(clusters, Cluster{
			Hub:             hub,
			HubName:         index.Name(hub),
			Position:        *hubPos,
			Neighbors:       nearby,
			ConnectionCount: len(nearby),
		})
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].ConnectionCount > clusters[j].ConnectionCount
	})
	return clusters
}
