package topoengine

// Compute runs the whole pipeline over one snapshot of inputs. It is a
// total, side-effect-free function: same traceroutes, nodes and thresholds
// always produce the same result, and each call builds everything from
// scratch rather than patching a previous run.
func Compute(traceroutes []Traceroute, nodes []Node, th Thresholds) TopologyResult {
	index := NewNodeIndex(nodes)
	set := CountEdges(traceroutes)

	trunkLines := ClassifyTrunkLines(set, index, th.MinPopularity)
	clusters := DetectClusters(set, index, th.MinPopularity, th.MinClusterConnections, th.ClusterRadiusMiles)

	renderableTrunks := 0
	for _, tl := range trunkLines {
		if tl.APosition != nil && tl.BPosition != nil {
			renderableTrunks++
		}
	}

	return TopologyResult{
		TrunkLines: trunkLines,
		Clusters:   clusters,
		MapCenter:  mapCenter(nodes),
		Summary: Summary{
			TotalEdges:           set.Len(),
			MaxEdgeCount:         set.MaxCount(),
			TrunkLines:           len(trunkLines),
			RenderableTrunkLines: renderableTrunks,
			Clusters:             len(clusters),
			// Cluster hubs are required to have a position, so every
			// cluster is renderable.
			RenderableClusters: len(clusters),
		},
	}
}

// mapCenter is the arithmetic mean of all known node positions, or the
// world origin when no node has one.
func mapCenter(nodes []Node) [2]float64 {
	var latSum, lngSum float64
	known := 0
	for _, n := range nodes {
		if n.Latitude == nil || n.Longitude == nil {
			continue
		}
		latSum += *n.Latitude
		lngSum += *n.Longitude
		known++
	}
	if known == 0 {
		return [2]float64{0, 0}
	}
	return [2]float64{latSum / float64(known), lngSum / float64(known)}
}
