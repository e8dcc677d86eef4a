package topoengine

import (
	"fmt"
	"image/color"

	geojson "github.com/paulmach/go.geojson"
)

// OverlayOptions are the display toggles for the map overlay.
type OverlayOptions struct {
	ShowTrunkLines bool `json:"show_trunk_lines"`
	ShowClusters   bool `json:"show_clusters"`
}

func DefaultOverlayOptions() OverlayOptions {
	return OverlayOptions{ShowTrunkLines: true, ShowClusters: true}
}

// Overlay encodes a topology result as a GeoJSON feature collection for the
// map renderer: trunk lines as LineStrings styled by traversal count
// (simplestyle stroke properties), clusters as Points. Trunk lines missing
// an endpoint position are left out here; they remain in the result itself.
func Overlay(result TopologyResult, opts OverlayOptions) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	if opts.ShowTrunkLines {
		maxCount := result.Summary.MaxEdgeCount
		for _, tl := range result.TrunkLines {
			if tl.APosition == nil || tl.BPosition == nil {
				continue
			}
			f := geojson.NewLineStringFeature([][]float64{
				{tl.APosition.Longitude, tl.APosition.Latitude},
				{tl.BPosition.Longitude, tl.BPosition.Latitude},
			})
			f.SetProperty("kind", "trunk_line")
			f.SetProperty("a_name", tl.AName)
			f.SetProperty("b_name", tl.BName)
			f.SetProperty("count", tl.Count)
			f.SetProperty("popularity", tl.Popularity)
			f.SetProperty("stroke", hexColor(ColorForCount(tl.Count, maxCount)))
			f.SetProperty("stroke-width", WidthForCount(tl.Count, maxCount))
			fc.AddFeature(f)
		}
	}

	if opts.ShowClusters {
		for _, c := range result.Clusters {
			f := geojson.NewPointFeature([]float64{c.Position.Longitude, c.Position.Latitude})
			f.SetProperty("kind", "cluster")
			f.SetProperty("hub_name", c.HubName)
			f.SetProperty("connection_count", c.ConnectionCount)
			fc.AddFeature(f)
		}
	}

	return fc
}

// RoutePaths draws individual traceroute paths as LineStrings through the
// hops that have known positions. Unlike edge counting, this rendering path
// drops BroadcastAddr hops: a broadcast entry is a placeholder, not a place.
func RoutePaths(traceroutes []Traceroute, index *NodeIndex) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, tr := range traceroutes {
		addPathFeature(fc, tr.Route, "route", index)
		addPathFeature(fc, tr.RouteBack, "route_back", index)
	}
	return fc
}

func addPathFeature(fc *geojson.FeatureCollection, path []uint32, direction string, index *NodeIndex) {
	if len(path) < 2 {
		return
	}
	coords := make([][]float64, 0, len(path))
	for _, hop := range path {
		if hop == BroadcastAddr {
			continue
		}
		pos := index.Position(hop)
		if pos == nil {
			continue
		}
		coords = append(coords, []float64{pos.Longitude, pos.Latitude})
	}
	if len(coords) < 2 {
		return
	}
	f := geojson.NewLineStringFeature(coords)
	f.SetProperty("kind", "route_path")
	f.SetProperty("direction", direction)
	fc.AddFeature(f)
}

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
