package topoengine

// Edge is an undirected link between two nodes with its observed traversal
// count. A and B are in canonical order, A < B.
type Edge struct {
	A     uint32 `json:"a"`
	B     uint32 `json:"b"`
	Count int    `json:"count"`
}

// pairKey packs both node numbers into one uint64, smaller number in the
// high half. This keeps edge lookups allocation-free instead of building a
// string key per hop.
func pairKey(a, b uint32) uint64 {
	if a > b {
		a, b = b, a
	}
	return uint64(a)<<32 | uint64(b)
}

// EdgeSet is the weighted undirected edge multiset derived from traceroute
// hops. It remembers first-encounter order so downstream sorts can break
// count ties deterministically.
type EdgeSet struct {
	index map[uint64]int
	edges []Edge
}

func NewEdgeSet() *EdgeSet {
	return &EdgeSet{index: make(map[uint64]int)}
}

// Add records one traversal of the hop pair (x, y) in either direction.
func (s *EdgeSet) Add(x, y uint32) {
	key := pairKey(x, y)
	if i, ok := s.index[key]; ok {
		s.edges[i].Count++
		return
	}
	a, b := x, y
	if a > b {
		a, b = b, a
	}
	s.index[key] = len(s.edges)
	s.edges = append(s.edges, Edge{A: a, B: b, Count: 1})
}

// Edges returns the edge list in first-encounter order.
func (s *EdgeSet) Edges() []Edge { return s.edges }

// Len is the number of distinct edges.
func (s *EdgeSet) Len() int { return len(s.edges) }

// MaxCount is the highest traversal count across all edges, 0 when empty.
func (s *EdgeSet) MaxCount() int {
	max := 0
	for _, e := range s.edges {
		if e.Count > max {
			max = e.Count
		}
	}
	return max
}

// CountEdges walks every traceroute's forward and return paths and counts
// consecutive hop pairs into one undirected edge set. A round trip over the
// same physical hop increments that edge twice, once per direction observed:
// the counts measure traversal frequency, not distinct paths. No hop value
// is filtered here, including BroadcastAddr; see the overlay route-path
// encoder for the rendering-side contrast.
func CountEdges(traceroutes []Traceroute) *EdgeSet {
	set := NewEdgeSet()
	for _, tr := range traceroutes {
		countPath(set, tr.Route)
		countPath(set, tr.RouteBack)
	}
	return set
}

func countPath(set *EdgeSet, path []uint32) {
	if len(path) < 2 {
		return
	}
	for i := 0; i < len(path)-1; i++ {
		set.Add(path[i], path[i+1])
	}
}

// popularity normalizes a count against the busiest edge, as a percentage.
// With no edges at all every popularity is 0.
func popularity(count, maxCount int) float64 {
	if maxCount <= 0 {
		return 0
	}
	return float64(count) / float64(maxCount) * 100.0
}
