package topoengine

import "sort"

// TrunkLine is an edge whose normalized popularity clears the threshold,
// annotated for display. Positions are nil when an endpoint has no known
// location; such lines stay in the result but map consumers skip them.
type TrunkLine struct {
	Edge
	Popularity float64   `json:"popularity"`
	AName      string    `json:"a_name"`
	BName      string    `json:"b_name"`
	APosition  *Position `json:"a_position"`
	BPosition  *Position `json:"b_position"`
}

// ClassifyTrunkLines selects edges with popularity at or above minPopularity
// (inclusive) and resolves endpoint names and positions. The result is
// sorted by raw count descending, ties kept in encounter order, so the
// busiest links lead summary tables no matter how coarse the threshold is.
func ClassifyTrunkLines(set *EdgeSet, index *NodeIndex, minPopularity int) []TrunkLine {
	maxCount := set.MaxCount()
	lines := make([]TrunkLine, 0, set.Len())
	for _, e := range set.Edges() {
		pop := popularity(e.Count, maxCount)
		if pop < float64(minPopularity) {
			continue
		}
		lines = append(lines, TrunkLine{
			Edge:       e,
			Popularity: pop,
			AName:      index.Name(e.A),
			BName:      index.Name(e.B),
			APosition:  index.Position(e.A),
			BPosition:  index.Position(e.B),
		})
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Count > lines[j].Count })
	return lines
}
