package graph

import (
	"gonum.org/v1/gonum/graph/simple"

	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
)

// attrGraph is an in-memory directed view of one relation's edge set.
// Edges point from the more specific attribute (inbound) to the more
// general one (outbound), the direction expansion walks.
type attrGraph struct {
	g     *simple.DirectedGraph
	ids   map[models.Attribute]int64
	attrs map[int64]models.Attribute

	// Self-referential edges cannot live in a simple graph; they are
	// collected here and reported as single-member cycles.
	loops []models.Attribute
}

// build constructs the graph from edge records.
func build(edges []models.Edge) *attrGraph {
	ag := &attrGraph{
		g:     simple.NewDirectedGraph(),
		ids:   make(map[models.Attribute]int64),
		attrs: make(map[int64]models.Attribute),
	}

	nodeIDCounter := int64(0)

	// Helper to get or create the node ID for an attribute
	getNodeID := func(attr models.Attribute) int64 {
		if nodeID, exists := ag.ids[attr]; exists {
			return nodeID
		}
		nodeID := nodeIDCounter
		nodeIDCounter++
		ag.ids[attr] = nodeID
		ag.attrs[nodeID] = attr
		ag.g.AddNode(simple.Node(nodeID))
		return nodeID
	}

	for _, edge := range edges {
		inbound := getNodeID(edge.Inbound())
		outbound := getNodeID(edge.Outbound())

		if inbound == outbound {
			ag.loops = append(ag.loops, edge.Inbound())
			continue
		}
		// The composite key makes duplicates impossible in storage, but
		// callers may hand us arbitrary slices.
		if !ag.g.HasEdgeFromTo(inbound, outbound) {
			ag.g.SetEdge(simple.Edge{F: simple.Node(inbound), T: simple.Node(outbound)})
		}
	}

	return ag
}
