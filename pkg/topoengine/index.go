package topoengine

import "fmt"

// NodeIndex resolves node numbers to display names and positions. Nodes the
// feed never reported still resolve to a bang-hex name and a nil position.
type NodeIndex struct {
	byNum map[uint32]Node
}

func NewNodeIndex(nodes []Node) *NodeIndex {
	ix := &NodeIndex{byNum: make(map[uint32]Node, len(nodes))}
	for _, n := range nodes {
		ix.byNum[n.Num] = n
	}
	return ix
}

// Node returns the feed record for num, if one exists.
func (ix *NodeIndex) Node(num uint32) (Node, bool) {
	n, ok := ix.byNum[num]
	return n, ok
}

// Name returns the display name for num, falling back through long name,
// short name, and the bang-hex rendering of the number itself.
func (ix *NodeIndex) Name(num uint32) string {
	if n, ok := ix.byNum[num]; ok {
		return n.DisplayName()
	}
	return fmt.Sprintf("!%x", num)
}

// Position returns the node's position, or nil when unknown. A node missing
// either coordinate counts as unpositioned.
func (ix *NodeIndex) Position(num uint32) *Position {
	n, ok := ix.byNum[num]
	if !ok || n.Latitude == nil || n.Longitude == nil {
		return nil
	}
	return &Position{Latitude: *n.Latitude, Longitude: *n.Longitude}
}
