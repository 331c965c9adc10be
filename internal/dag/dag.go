// SPDX-License-Identifier: MPL-2.0

// Package dag provides the reference graph used to lint a command catalog
// ahead of execution: composite commands are nodes, and an edge from A to B
// means "A expands B". The engine itself never consults this graph; it
// detects cycles while it walks.
package dag

import (
	"fmt"
	"slices"
	"strings"
)

type (
	// CycleError indicates that the graph contains a cycle, preventing topological ordering.
	CycleError struct {
		// Path lists the nodes of one cycle, with the first node repeated at the end
		// (e.g. ["A", "B", "A"]).
		Path []string
	}

	// Graph is a directed graph keyed by node name.
	Graph struct {
		adjacency map[string][]string
		// nodes keeps insertion order so traversals are deterministic.
		nodes   []string
		nodeSet map[string]bool
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Path, " -> "))
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		adjacency: make(map[string][]string),
		nodeSet:   make(map[string]bool),
	}
}

// AddNode adds a node to the graph. If the node already exists, this is a no-op.
func (g *Graph) AddNode(name string) {
	if g.nodeSet[name] {
		return
	}
	g.nodeSet[name] = true
	g.nodes = append(g.nodes, name)
}

// AddEdge adds a directed edge from -> to. Both nodes are added if missing.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	g.adjacency[from] = append(g.adjacency[from], to)
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []string {
	return slices.Clone(g.nodes)
}

// TopologicalSort returns an order in which every node appears before the
// nodes it points to (Kahn's algorithm). Nodes at the same level keep
// insertion order. A cyclic graph yields a *CycleError naming one cycle.
func (g *Graph) TopologicalSort() ([]string, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(g.nodes))
	for _, neighbors := range g.adjacency {
		for _, neighbor := range neighbors {
			inDegree[neighbor]++
		}
	}

	queue := make([]string, 0, len(g.nodes))
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, neighbor := range g.adjacency[node] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	if len(result) != len(g.nodes) {
		cycles := g.Cycles()
		if len(cycles) > 0 {
			return nil, &CycleError{Path: cycles[0]}
		}
		return nil, &CycleError{}
	}
	return result, nil
}

// Cycles returns every elementary cycle reachable by a depth-first walk from
// the nodes in insertion order. Each cycle is reported once, starting from
// the node where the walk first entered it.
func (g *Graph) Cycles() [][]string {
	const (
		unvisited = iota
		onPath
		done
	)

	state := make(map[string]int, len(g.nodes))
	var (
		path   []string
		cycles [][]string
		seen   = make(map[string]bool)
	)

	var visit func(node string)
	visit = func(node string) {
		state[node] = onPath
		path = append(path, node)

		for _, next := range g.adjacency[node] {
			switch state[next] {
			case onPath:
				start := slices.Index(path, next)
				cycle := append(slices.Clone(path[start:]), next)
				key := canonicalKey(cycle[:len(cycle)-1])
				if !seen[key] {
					seen[key] = true
					cycles = append(cycles, cycle)
				}
			case unvisited:
				visit(next)
			}
		}

		path = path[:len(path)-1]
		state[node] = done
	}

	for _, node := range g.nodes {
		if state[node] == unvisited {
			visit(node)
		}
	}
	return cycles
}

// canonicalKey identifies a cycle independently of its starting node.
func canonicalKey(members []string) string {
	if len(members) == 0 {
		return ""
	}
	minIdx := 0
	for i, m := range members {
		if m < members[minIdx] {
			minIdx = i
		}
	}
	rotated := append(slices.Clone(members[minIdx:]), members[:minIdx]...)
	return strings.Join(rotated, "\x00")
}
