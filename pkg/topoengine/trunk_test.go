package topoengine

import (
	"math"
	"testing"
)

func ptr(v float64) *float64 { return &v }

func TestClassifyTrunkLines(t *testing.T) {
	// Two busy runs of the same path plus one round trip further out:
	// (1,2)=2, (2,3)=4 (forward three times, return once), (3,4)=2.
	traceroutes := []Traceroute{
		{Route: []uint32{1, 2, 3}},
		{Route: []uint32{1, 2, 3}},
		{Route: []uint32{2, 3, 4}, RouteBack: []uint32{4, 3, 2}},
	}
	nodes := []Node{
		{Num: 1, Latitude: ptr(45.0), Longitude: ptr(-122.0)},
		{Num: 2, LongName: "Ridge Repeater"},
		{Num: 3, ShortName: "RV3"},
	}

	set := CountEdges(traceroutes)
	lines := ClassifyTrunkLines(set, NewNodeIndex(nodes), 50)

	if len(lines) != 3 {
		t.Fatalf("expected 3 trunk lines, got %d", len(lines))
	}

	// Busiest first, then the count-2 tie in encounter order.
	wantOrder := []Edge{{2, 3, 4}, {1, 2, 2}, {3, 4, 2}}
	for i, want := range wantOrder {
		if lines[i].Edge != want {
			t.Errorf("lines[%d].Edge = %+v, want %+v", i, lines[i].Edge, want)
		}
	}

	if lines[0].Popularity != 100 {
		t.Errorf("busiest edge popularity = %f, want 100", lines[0].Popularity)
	}
	// Count 2 of max 4 sits exactly on the inclusive threshold.
	if lines[1].Popularity != 50 {
		t.Errorf("threshold-edge popularity = %f, want exactly 50", lines[1].Popularity)
	}

	if lines[0].AName != "Ridge Repeater" || lines[0].BName != "RV3" {
		t.Errorf("name resolution = (%q, %q), want (Ridge Repeater, RV3)", lines[0].AName, lines[0].BName)
	}
	if lines[1].AName != "!1" {
		t.Errorf("unnamed node display = %q, want !1", lines[1].AName)
	}
	if lines[2].BName != "!4" {
		t.Errorf("unknown node display = %q, want !4", lines[2].BName)
	}

	if lines[1].APosition == nil || lines[1].APosition.Latitude != 45.0 {
		t.Errorf("positioned endpoint not resolved: %+v", lines[1].APosition)
	}
	if lines[0].APosition != nil || lines[0].BPosition != nil {
		t.Error("endpoints without coordinates must resolve to nil positions")
	}
}

func TestClassifyTrunkLinesThreshold(t *testing.T) {
	traceroutes := []Traceroute{
		{Route: []uint32{1, 2}},
		{Route: []uint32{1, 2}},
		{Route: []uint32{1, 2}},
		{Route: []uint32{1, 2}},
		{Route: []uint32{3, 4}},
	}
	set := CountEdges(traceroutes)
	index := NewNodeIndex(nil)

	tests := []struct {
		minPopularity int
		want          int
	}{
		{0, 2},   // everything qualifies, 0 >= 0
		{25, 2},  // (3,4) sits exactly at 25
		{26, 1},  // just above drops it
		{100, 1}, // only the busiest edge itself
	}
	for _, tt := range tests {
		if got := len(ClassifyTrunkLines(set, index, tt.minPopularity)); got != tt.want {
			t.Errorf("minPopularity=%d: got %d trunk lines, want %d", tt.minPopularity, got, tt.want)
		}
	}
}

func TestClassifyTrunkLinesEmpty(t *testing.T) {
	lines := ClassifyTrunkLines(NewEdgeSet(), NewNodeIndex(nil), 0)
	if len(lines) != 0 {
		t.Errorf("empty edge set produced %d trunk lines", len(lines))
	}
}

func TestPopularityBounds(t *testing.T) {
	traceroutes := []Traceroute{
		{Route: []uint32{1, 2, 3, 4, 5}, RouteBack: []uint32{5, 4, 3, 2, 1}},
		{Route: []uint32{2, 3, 4}},
		{Route: []uint32{9, 2, 9, 2}},
	}
	set := CountEdges(traceroutes)
	for _, line := range ClassifyTrunkLines(set, NewNodeIndex(nil), 0) {
		if line.Popularity < 0 || line.Popularity > 100 || math.IsNaN(line.Popularity) {
			t.Errorf("edge (%d, %d) popularity %f out of [0, 100]", line.A, line.B, line.Popularity)
		}
	}
}
