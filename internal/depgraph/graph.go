// Package depgraph tracks which entries reference which.
//
// An edge A -> B means the rendered content of A references B, so B must be
// compiled before A and a change to B recompiles A.
package depgraph

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	graphlib "github.com/dominikbraun/graph"

	"github.com/conneroisu/mixpaths/internal/entry"
	mixerrors "github.com/conneroisu/mixpaths/internal/errors"
)

type node struct {
	id    string
	entry entry.Entry
}

func nodeHash(n node) string { return n.id }

// Graph is a directed dependency graph keyed by public id with the entry as
// payload. It is safe for concurrent use.
type Graph struct {
	mutex sync.RWMutex
	g     graphlib.Graph[string, node]
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{g: graphlib.New(nodeHash, graphlib.Directed())}
}

// AddNode inserts a node. Adding an existing id keeps the original payload.
func (g *Graph) AddNode(id string, e entry.Entry) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	// ErrVertexAlreadyExists is the only possible error for the in-memory store.
	_ = g.g.AddVertex(node{id: id, entry: e})
}

// HasNode reports whether id is a node.
func (g *Graph) HasNode(id string) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	_, err := g.g.Vertex(id)
	return err == nil
}

// NodeData returns the entry stored for id.
func (g *Graph) NodeData(id string) (entry.Entry, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, err := g.g.Vertex(id)
	if err != nil {
		return entry.Entry{}, mixerrors.ErrUnknownNode(id)
	}

	return n.entry, nil
}

// Size returns the number of nodes.
func (g *Graph) Size() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	order, _ := g.g.Order()
	return order
}

// Nodes returns every id in ascending order.
func (g *Graph) Nodes() []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	adjacency, _ := g.g.AdjacencyMap()
	return sortedKeys(adjacency)
}

// ReplaceOutgoingEdges drops every edge leaving id and adds one edge per
// known target. Unknown targets are skipped and repeated targets collapse to
// a single edge.
func (g *Graph) ReplaceOutgoingEdges(id string, targets []string) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	adjacency, err := g.g.AdjacencyMap()
	if err != nil {
		return fmt.Errorf("adjacency of %s: %w", id, err)
	}

	outgoing, ok := adjacency[id]
	if !ok {
		return mixerrors.ErrUnknownNode(id)
	}

	for target := range outgoing {
		if err := g.g.RemoveEdge(id, target); err != nil {
			return fmt.Errorf("remove edge %s -> %s: %w", id, target, err)
		}
	}

	for _, target := range targets {
		if _, known := adjacency[target]; !known {
			continue
		}

		err := g.g.AddEdge(id, target)
		if err != nil && !errors.Is(err, graphlib.ErrEdgeAlreadyExists) {
			return fmt.Errorf("add edge %s -> %s: %w", id, target, err)
		}
	}

	return nil
}

// DirectDependenciesOf returns the ids id references, sorted.
func (g *Graph) DirectDependenciesOf(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	adjacency, err := g.g.AdjacencyMap()
	if err != nil {
		return nil, err
	}

	outgoing, ok := adjacency[id]
	if !ok {
		return nil, mixerrors.ErrUnknownNode(id)
	}

	return sortedKeys(outgoing), nil
}

// DependantsOf returns every node that transitively references id, sorted.
// The node itself is excluded.
func (g *Graph) DependantsOf(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	predecessors, err := g.g.PredecessorMap()
	if err != nil {
		return nil, err
	}

	if _, ok := predecessors[id]; !ok {
		return nil, mixerrors.ErrUnknownNode(id)
	}

	seen := map[string]struct{}{id: {}}
	queue := []string{id}
	var dependants []string

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for dependant := range predecessors[current] {
			if _, ok := seen[dependant]; ok {
				continue
			}
			seen[dependant] = struct{}{}
			dependants = append(dependants, dependant)
			queue = append(queue, dependant)
		}
	}

	sort.Strings(dependants)

	return dependants, nil
}

// OverallOrder returns every id with dependencies before their dependants.
// Ties are broken by id so the order is deterministic. A cycle, including a
// self reference, fails with a cycle error naming the offending nodes.
func (g *Graph) OverallOrder() ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// Sorting dependants first with descending ids and reversing yields
	// dependencies first with ascending ids among independent nodes.
	order, err := graphlib.StableTopologicalSort(g.g, func(a, b string) bool { return a > b })
	if err != nil {
		cycles, cycleErr := g.cycles()
		if cycleErr != nil {
			return nil, cycleErr
		}
		if len(cycles) > 0 {
			return nil, mixerrors.ErrCycleDetected(cycles)
		}

		return nil, fmt.Errorf("topological order: %w", err)
	}

	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}

	return order, nil
}

// cycles lists the strongly connected components that contain a cycle,
// each sorted, ordered by their first id. Callers hold the read lock.
func (g *Graph) cycles() ([][]string, error) {
	components, err := graphlib.StronglyConnectedComponents(g.g)
	if err != nil {
		return nil, err
	}

	adjacency, err := g.g.AdjacencyMap()
	if err != nil {
		return nil, err
	}

	var cycles [][]string
	for _, component := range components {
		if len(component) == 1 {
			if _, selfLoop := adjacency[component[0]][component[0]]; !selfLoop {
				continue
			}
		}

		sorted := append([]string(nil), component...)
		sort.Strings(sorted)
		cycles = append(cycles, sorted)
	}

	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })

	return cycles, nil
}

// Edges returns every edge as a [source, target] pair, sorted.
func (g *Graph) Edges() [][2]string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	adjacency, _ := g.g.AdjacencyMap()

	var edges [][2]string
	for _, source := range sortedKeys(adjacency) {
		for _, target := range sortedKeys(adjacency[source]) {
			edges = append(edges, [2]string{source, target})
		}
	}

	return edges
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
