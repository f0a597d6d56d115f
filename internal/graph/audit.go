package graph

import (
	"sort"

	"gonum.org/v1/gonum/graph/topo"

	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
)

// Report summarizes the health of one relation's edge set.
type Report struct {
	Relation models.Relation `json:"relation"`
	Nodes    int             `json:"nodes"`
	Edges    int             `json:"edges"`

	// Cycles lists strongly connected attribute groups. Expanding any
	// member revisits the rest until the depth cap cuts the walk short.
	Cycles []Cycle `json:"cycles"`

	// Unanchored lists attributes with no outbound path into the IAM
	// namespace. Policies are written against the IAM vocabulary, so
	// these attributes cannot contribute to an allow decision.
	Unanchored []models.Attribute `json:"unanchored"`
}

// Cycle is a strongly connected set of attributes. A single-member cycle
// is a self-referential edge.
type Cycle struct {
	Members []models.Attribute `json:"members"`
}

// Audit builds the relation's directed graph and inspects it. Read-only;
// ordering of every slice in the report is deterministic.
func Audit(rel models.Relation, edges []models.Edge, iamNamespaceID string) Report {
	ag := build(edges)

	return Report{
		Relation:   rel,
		Nodes:      len(ag.ids),
		Edges:      len(edges),
		Cycles:     findCycles(ag),
		Unanchored: findUnanchored(ag, iamNamespaceID),
	}
}

// findCycles returns every strongly connected component with more than
// one member, plus self-referential edges as single-member cycles.
func findCycles(ag *attrGraph) []Cycle {
	cycles := make([]Cycle, 0, len(ag.loops))

	for _, component := range topo.TarjanSCC(ag.g) {
		if len(component) < 2 {
			continue
		}
		members := make([]models.Attribute, 0, len(component))
		for _, node := range component {
			members = append(members, ag.attrs[node.ID()])
		}
		sortAttributes(members)
		cycles = append(cycles, Cycle{Members: members})
	}

	for _, attr := range ag.loops {
		cycles = append(cycles, Cycle{Members: []models.Attribute{attr}})
	}

	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i].Members[0].String() < cycles[j].Members[0].String()
	})
	return cycles
}

// findUnanchored walks the graph backwards from every IAM-namespace
// attribute; whatever the walk never reaches has no path into the
// vocabulary.
func findUnanchored(ag *attrGraph, iamNamespaceID string) []models.Attribute {
	anchored := make(map[int64]bool)

	queue := make([]int64, 0)
	for attr, nodeID := range ag.ids {
		if attr.NamespaceID == iamNamespaceID {
			anchored[nodeID] = true
			queue = append(queue, nodeID)
		}
	}

	for len(queue) > 0 {
		nodeID := queue[0]
		queue = queue[1:]

		preds := ag.g.To(nodeID)
		for preds.Next() {
			predID := preds.Node().ID()
			if !anchored[predID] {
				anchored[predID] = true
				queue = append(queue, predID)
			}
		}
	}

	unanchored := make([]models.Attribute, 0)
	for attr, nodeID := range ag.ids {
		if !anchored[nodeID] {
			unanchored = append(unanchored, attr)
		}
	}
	sortAttributes(unanchored)
	return unanchored
}

func sortAttributes(attrs []models.Attribute) {
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].String() < attrs[j].String()
	})
}
