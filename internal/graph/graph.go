package graph

import (
	"fmt"

	"github.com/miradorstack/mirador-chaos/internal/models"
)

// Graph is the trace-derived service dependency topology. There is exactly
// one node/edge set for both evaluation modes; AsyncEdges is a derived
// subset of Edges, never a second topology. The exported fields match the
// persisted graph.json artifact.
type Graph struct {
	Services    []string `json:"services"`
	Edges       [][2]int `json:"edges"`
	AsyncEdges  [][2]int `json:"async_edges,omitempty"`
	Entrypoints []int    `json:"entrypoints,omitempty"`
	Source      string   `json:"source,omitempty"`

	nameIdx  map[string]int
	adjAll   [][]int
	adjSync  [][]int
	asyncSet map[[2]int]struct{}
}

// Sources recorded on persisted graphs, distinguishing trace-derived
// topologies from the explicit dependency-summary fallback.
const (
	SourceTraces       = "traces"
	SourceDependencies = "dependencies"
)

// Prepare builds the adjacency and lookup indexes. Build calls it; callers
// that unmarshal a persisted graph must call it before use.
func (g *Graph) Prepare() error {
	g.nameIdx = make(map[string]int, len(g.Services))
	for idx, name := range g.Services {
		g.nameIdx[name] = idx
	}

	g.asyncSet = make(map[[2]int]struct{}, len(g.AsyncEdges))
	edgeSet := make(map[[2]int]struct{}, len(g.Edges))
	g.adjAll = make([][]int, len(g.Services))
	for _, edge := range g.Edges {
		if edge[0] < 0 || edge[0] >= len(g.Services) || edge[1] < 0 || edge[1] >= len(g.Services) {
			return fmt.Errorf("edge %v references a node outside the service set", edge)
		}
		edgeSet[edge] = struct{}{}
		g.adjAll[edge[0]] = append(g.adjAll[edge[0]], edge[1])
	}
	for _, edge := range g.AsyncEdges {
		if _, ok := edgeSet[edge]; !ok {
			return fmt.Errorf("async edge %v is not part of the base edge set", edge)
		}
		g.asyncSet[edge] = struct{}{}
	}

	g.adjSync = make([][]int, len(g.Services))
	for u, neighbors := range g.adjAll {
		for _, v := range neighbors {
			if _, async := g.asyncSet[[2]int{u, v}]; !async {
				g.adjSync[u] = append(g.adjSync[u], v)
			}
		}
	}

	for _, entry := range g.Entrypoints {
		if entry < 0 || entry >= len(g.Services) {
			return fmt.Errorf("entrypoint index %d outside the service set", entry)
		}
	}
	return nil
}

// Index resolves a normalized service name to its node index.
func (g *Graph) Index(name string) (int, bool) {
	idx, ok := g.nameIdx[name]
	return idx, ok
}

// IsAsync reports whether the directed edge (u,v) crosses an asynchronous
// transport boundary.
func (g *Graph) IsAsync(u, v int) bool {
	_, ok := g.asyncSet[[2]int{u, v}]
	return ok
}

// Adjacency returns the adjacency lists effective under the given mode:
// non-blocking evaluation discards async-tagged edges, blocking keeps all.
func (g *Graph) Adjacency(mode models.Mode) [][]int {
	if mode == models.ModeNonBlocking {
		return g.adjSync
	}
	return g.adjAll
}

// Reachable walks the graph from entry over the supplied adjacency,
// skipping dead nodes, and returns the reachable set. alive == nil means
// every node is alive (structural reachability). An entry that is itself
// dead reaches nothing.
func Reachable(adj [][]int, entry int, alive []bool) []bool {
	seen := make([]bool, len(adj))
	if entry < 0 || entry >= len(adj) {
		return seen
	}
	if alive != nil && !alive[entry] {
		return seen
	}
	seen[entry] = true
	queue := []int{entry}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range adj[u] {
			if seen[v] {
				continue
			}
			if alive != nil && !alive[v] {
				continue
			}
			seen[v] = true
			queue = append(queue, v)
		}
	}
	return seen
}
