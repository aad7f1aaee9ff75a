// Package neighbors builds the weighted k-nearest-neighbour graph used for
// over-clustering: gene filtering, highly variable genes, scaling, PCA, a
// brute-force kNN search and UMAP-style fuzzy connectivities.
package neighbors

import (
	"sort"

	"gonum.org/v1/gonum/graph/simple"

	"github.com/YuminosukeSato/celltypist/pkg/errors"
)

// Edge is an undirected weighted edge with From < To.
type Edge struct {
	From   int
	To     int
	Weight float64
}

// Graph is a symmetric connectivity graph over cells 0..Nodes-1.
type Graph struct {
	Nodes int
	Edges []Edge
}

// NewGraph returns a graph from an edge list. Edges are normalised so that
// From < To, duplicates are merged by keeping the larger weight, and the list
// is sorted.
func NewGraph(nodes int, edges []Edge) (*Graph, error) {
	merged := make(map[[2]int]float64, len(edges))
	for _, e := range edges {
		if e.From < 0 || e.To < 0 || e.From >= nodes || e.To >= nodes {
			return nil, errors.NewValidationError("edge", "node index out of range", e)
		}
		if e.From == e.To {
			return nil, errors.NewValidationError("edge", "self loops are not allowed", e)
		}
		if e.Weight < 0 {
			return nil, errors.NewValidationError("edge", "weight must be non-negative", e)
		}
		key := [2]int{e.From, e.To}
		if key[0] > key[1] {
			key[0], key[1] = key[1], key[0]
		}
		if w, ok := merged[key]; !ok || e.Weight > w {
			merged[key] = e.Weight
		}
	}

	g := &Graph{Nodes: nodes, Edges: make([]Edge, 0, len(merged))}
	for k, w := range merged {
		g.Edges = append(g.Edges, Edge{From: k[0], To: k[1], Weight: w})
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].From != g.Edges[j].From {
			return g.Edges[i].From < g.Edges[j].From
		}
		return g.Edges[i].To < g.Edges[j].To
	})
	return g, nil
}

// Weighted converts the graph to a gonum weighted undirected graph. Every
// cell becomes a node, including isolated ones; zero-weight edges are dropped.
func (g *Graph) Weighted() *simple.WeightedUndirectedGraph {
	wg := simple.NewWeightedUndirectedGraph(0, 0)
	for i := 0; i < g.Nodes; i++ {
		wg.AddNode(simple.Node(i))
	}
	for _, e := range g.Edges {
		if e.Weight == 0 {
			continue
		}
		wg.SetWeightedEdge(wg.NewWeightedEdge(simple.Node(e.From), simple.Node(e.To), e.Weight))
	}
	return wg
}

// Degrees returns the weighted degree of every node.
func (g *Graph) Degrees() []float64 {
	deg := make([]float64, g.Nodes)
	for _, e := range g.Edges {
		deg[e.From] += e.Weight
		deg[e.To] += e.Weight
	}
	return deg
}
