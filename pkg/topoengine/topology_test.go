package topoengine

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestComputeEmpty(t *testing.T) {
	result := Compute(nil, nil, DefaultThresholds())

	if len(result.TrunkLines) != 0 || len(result.Clusters) != 0 {
		t.Errorf("empty inputs produced %d trunk lines, %d clusters", len(result.TrunkLines), len(result.Clusters))
	}
	if result.Summary != (Summary{}) {
		t.Errorf("empty inputs produced non-zero summary %+v", result.Summary)
	}
	if result.MapCenter != [2]float64{0, 0} {
		t.Errorf("empty inputs map center = %v, want origin", result.MapCenter)
	}
}

func TestComputeSummary(t *testing.T) {
	traceroutes := clusterFixture(100, 1, 2, 3)
	nodes := []Node{
		{Num: 100, Latitude: ptr(0), Longitude: ptr(0)},
		{Num: 1, Latitude: ptr(0.01), Longitude: ptr(0)},
		{Num: 2, Latitude: ptr(0.02), Longitude: ptr(0)},
		{Num: 3, Latitude: ptr(0.03), Longitude: ptr(0)},
		{Num: 200, Latitude: ptr(1.0), Longitude: ptr(1.0)},
		// 201 has no position, so the one trunk line cannot be drawn.
	}

	result := Compute(traceroutes, nodes, DefaultThresholds())

	want := Summary{
		TotalEdges:           4,
		MaxEdgeCount:         10,
		TrunkLines:           1,
		RenderableTrunkLines: 0,
		Clusters:             1,
		RenderableClusters:   1,
	}
	if result.Summary != want {
		t.Errorf("summary = %+v, want %+v", result.Summary, want)
	}
}

func TestComputeMapCenter(t *testing.T) {
	nodes := []Node{
		{Num: 1, Latitude: ptr(10.0), Longitude: ptr(20.0)},
		{Num: 2, Latitude: ptr(30.0), Longitude: ptr(40.0)},
		{Num: 3}, // no position, must not drag the mean toward origin
	}
	result := Compute(nil, nodes, DefaultThresholds())
	if result.MapCenter != [2]float64{20, 30} {
		t.Errorf("map center = %v, want [20 30]", result.MapCenter)
	}
}

func TestComputeDeterministic(t *testing.T) {
	// A busy enough mesh that map iteration order would show through if
	// anything depended on it.
	traceroutes := []Traceroute{
		{Route: []uint32{1, 2, 3, 4}, RouteBack: []uint32{4, 3, 2, 1}},
		{Route: []uint32{5, 2, 6}},
		{Route: []uint32{7, 2}},
		{Route: []uint32{8, 2}},
		{Route: []uint32{1, 2, 3}},
		{Route: []uint32{9, 4, 10}},
	}
	var nodes []Node
	for num := uint32(1); num <= 10; num++ {
		nodes = append(nodes, Node{
			Num:       num,
			Latitude:  ptr(float64(num) * 0.01),
			Longitude: ptr(float64(num) * -0.01),
		})
	}

	th := Thresholds{MinPopularity: 60, MinClusterConnections: 2, ClusterRadiusMiles: 50}

	first, err := json.Marshal(Compute(traceroutes, nodes, th))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		again, err := json.Marshal(Compute(traceroutes, nodes, th))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("run %d diverged:\n%s\nvs\n%s", i, first, again)
		}
	}
}

func TestThresholdsValidate(t *testing.T) {
	tests := []struct {
		name    string
		th      Thresholds
		wantErr bool
	}{
		{"defaults", DefaultThresholds(), false},
		{"low bounds", Thresholds{0, 2, 1}, false},
		{"high bounds", Thresholds{100, 50, 50}, false},
		{"popularity under", Thresholds{-1, 3, 5}, true},
		{"popularity over", Thresholds{101, 3, 5}, true},
		{"connections under", Thresholds{25, 1, 5}, true},
		{"connections over", Thresholds{25, 51, 5}, true},
		{"radius under", Thresholds{25, 3, 0}, true},
		{"radius over", Thresholds{25, 3, 51}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.th.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%+v) error = %v, wantErr %v", tt.th, err, tt.wantErr)
			}
		})
	}
}

func TestNodeDisplayName(t *testing.T) {
	tests := []struct {
		node Node
		want string
	}{
		{Node{Num: 0xDA639E0C, LongName: "Mount Vista", ShortName: "MTVW"}, "Mount Vista"},
		{Node{Num: 0xDA639E0C, ShortName: "MTVW"}, "MTVW"},
		{Node{Num: 0xDA639E0C}, "!da639e0c"},
		{Node{Num: 7}, "!7"},
	}
	for _, tt := range tests {
		if got := tt.node.DisplayName(); got != tt.want {
			t.Errorf("DisplayName(%+v) = %q, want %q", tt.node, got, tt.want)
		}
	}
}
