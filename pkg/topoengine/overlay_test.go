package topoengine

import (
	"testing"
)

func overlayResult() TopologyResult {
	pos := func(lat, lng float64) *Position { return &Position{Latitude: lat, Longitude: lng} }
	return TopologyResult{
		TrunkLines: []TrunkLine{
			{
				Edge:       Edge{A: 2, B: 3, Count: 4},
				Popularity: 100,
				AName:      "Ridge Repeater",
				BName:      "Valley",
				APosition:  pos(45.5, -122.6),
				BPosition:  pos(45.6, -122.7),
			},
			{
				Edge:       Edge{A: 1, B: 2, Count: 2},
				Popularity: 50,
				AName:      "!1",
				BName:      "Ridge Repeater",
				APosition:  nil, // not drawable
				BPosition:  pos(45.5, -122.6),
			},
		},
		Clusters: []Cluster{
			{
				Hub:             100,
				HubName:         "Downtown Hub",
				Position:        Position{Latitude: 45.52, Longitude: -122.68},
				Neighbors:       []uint32{1, 2, 3},
				ConnectionCount: 3,
			},
		},
		Summary: Summary{TotalEdges: 2, MaxEdgeCount: 4, TrunkLines: 2, RenderableTrunkLines: 1, Clusters: 1, RenderableClusters: 1},
	}
}

func TestOverlay(t *testing.T) {
	fc := Overlay(overlayResult(), DefaultOverlayOptions())

	// One drawable trunk line plus one cluster; the unpositioned trunk
	// line stays out of the feature collection.
	if len(fc.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(fc.Features))
	}

	trunk := fc.Features[0]
	if !trunk.Geometry.IsLineString() {
		t.Fatalf("trunk feature geometry is %v, want LineString", trunk.Geometry.Type)
	}
	// GeoJSON positions are [longitude, latitude].
	start := trunk.Geometry.LineString[0]
	if start[0] != -122.6 || start[1] != 45.5 {
		t.Errorf("trunk start = %v, want [-122.6 45.5]", start)
	}
	if kind := trunk.Properties["kind"]; kind != "trunk_line" {
		t.Errorf("trunk kind = %v", kind)
	}
	if name := trunk.Properties["a_name"]; name != "Ridge Repeater" {
		t.Errorf("a_name = %v", name)
	}
	// Count 4 of max 4 renders at the hot end of the ramp.
	if stroke := trunk.Properties["stroke"]; stroke != "#ff0000" {
		t.Errorf("stroke = %v, want #ff0000", stroke)
	}
	if w := trunk.Properties["stroke-width"]; w != 8.0 {
		t.Errorf("stroke-width = %v, want 8", w)
	}

	cluster := fc.Features[1]
	if !cluster.Geometry.IsPoint() {
		t.Fatalf("cluster feature geometry is %v, want Point", cluster.Geometry.Type)
	}
	if p := cluster.Geometry.Point; p[0] != -122.68 || p[1] != 45.52 {
		t.Errorf("cluster point = %v, want [-122.68 45.52]", p)
	}
	if name := cluster.Properties["hub_name"]; name != "Downtown Hub" {
		t.Errorf("hub_name = %v", name)
	}
	if n := cluster.Properties["connection_count"]; n != 3 {
		t.Errorf("connection_count = %v, want 3", n)
	}
}

func TestOverlayToggles(t *testing.T) {
	result := overlayResult()

	tests := []struct {
		name string
		opts OverlayOptions
		want int
	}{
		{"both on", OverlayOptions{ShowTrunkLines: true, ShowClusters: true}, 2},
		{"trunk lines only", OverlayOptions{ShowTrunkLines: true}, 1},
		{"clusters only", OverlayOptions{ShowClusters: true}, 1},
		{"both off", OverlayOptions{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := Overlay(result, tt.opts)
			if fc == nil {
				t.Fatal("nil feature collection")
			}
			if len(fc.Features) != tt.want {
				t.Errorf("got %d features, want %d", len(fc.Features), tt.want)
			}
		})
	}
}

func TestRoutePaths(t *testing.T) {
	nodes := []Node{
		{Num: 1, Latitude: ptr(45.0), Longitude: ptr(-122.0)},
		{Num: 2, Latitude: ptr(45.1), Longitude: ptr(-122.1)},
		{Num: 3, Latitude: ptr(45.2), Longitude: ptr(-122.2)},
		{Num: 9}, // known but unlocatable
	}
	index := NewNodeIndex(nodes)

	traceroutes := []Traceroute{
		{Route: []uint32{1, 9, 2, 3}, RouteBack: []uint32{3, 2, 1}},
		{Route: []uint32{1, 9}}, // only one locatable hop, nothing to draw
	}

	fc := RoutePaths(traceroutes, index)
	if len(fc.Features) != 2 {
		t.Fatalf("expected 2 features, got %d", len(fc.Features))
	}

	forward := fc.Features[0]
	if dir := forward.Properties["direction"]; dir != "route" {
		t.Errorf("first feature direction = %v, want route", dir)
	}
	// Hop 9 has no position and is skipped, leaving 1 -> 2 -> 3.
	if got := len(forward.Geometry.LineString); got != 3 {
		t.Errorf("forward path has %d coordinates, want 3", got)
	}

	back := fc.Features[1]
	if dir := back.Properties["direction"]; dir != "route_back" {
		t.Errorf("second feature direction = %v, want route_back", dir)
	}
}

func TestRoutePathsDropBroadcastHops(t *testing.T) {
	// The mirror of TestCountEdgesKeepsBroadcastHops: rendering skips the
	// broadcast placeholder while edge counting keeps it.
	nodes := []Node{
		{Num: 1, Latitude: ptr(45.0), Longitude: ptr(-122.0)},
		{Num: 2, Latitude: ptr(45.1), Longitude: ptr(-122.1)},
	}
	traceroutes := []Traceroute{
		{Route: []uint32{1, BroadcastAddr, 2}},
	}

	fc := RoutePaths(traceroutes, NewNodeIndex(nodes))
	if len(fc.Features) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(fc.Features))
	}
	coords := fc.Features[0].Geometry.LineString
	if len(coords) != 2 {
		t.Fatalf("path has %d coordinates, want 2 with the broadcast hop dropped", len(coords))
	}
	for _, c := range coords {
		if c[1] != 45.0 && c[1] != 45.1 {
			t.Errorf("unexpected coordinate %v", c)
		}
	}
}
