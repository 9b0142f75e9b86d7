package schema

import (
	"fmt"
	"sort"
	"strings"
)

// RelationshipGraph is the foreign-key dependency graph between entities.
// An edge A -> B means A stores B's primary key and B's table must exist first.
type RelationshipGraph struct {
	nodes map[string]*Entity
	edges map[string][]string
}

// NewRelationshipGraph creates a new relationship graph
func NewRelationshipGraph(entities map[string]*Entity) *RelationshipGraph {
	graph := &RelationshipGraph{
		nodes: entities,
		edges: make(map[string][]string),
	}

	for _, name := range sortedNames(entities) {
		e := entities[name]
		for _, rel := range e.Relationships {
			switch {
			case rel.Cardinality == One && rel.Target != name:
				graph.edges[name] = append(graph.edges[name], rel.Target)
			case rel.Cardinality == Many && rel.JoinTable == "" && rel.Target != name:
				// the target holds our key
				graph.edges[rel.Target] = append(graph.edges[rel.Target], name)
			}
		}
	}

	return graph
}

// DetectCycles detects circular dependencies in the relationship graph
func (g *RelationshipGraph) DetectCycles() [][]string {
	var cycles [][]string
	visited := make(map[string]bool)
	recursionStack := make(map[string]bool)

	var dfs func(node string, path []string) bool
	dfs = func(node string, path []string) bool {
		visited[node] = true
		recursionStack[node] = true
		path = append(path, node)

		for _, neighbor := range g.edges[node] {
			if !visited[neighbor] {
				if dfs(neighbor, path) {
					return true
				}
			} else if recursionStack[neighbor] {
				for i, n := range path {
					if n == neighbor {
						cycle := make([]string, len(path)-i)
						copy(cycle, path[i:])
						cycles = append(cycles, cycle)
						break
					}
				}
				return true
			}
		}

		recursionStack[node] = false
		return false
	}

	for _, node := range sortedNames(g.nodes) {
		if !visited[node] {
			dfs(node, []string{})
		}
	}

	return cycles
}

// TopologicalSort returns entities in dependency order (dependencies first).
// Ties are broken alphabetically so the order is stable.
func (g *RelationshipGraph) TopologicalSort() ([]string, error) {
	outDegree := make(map[string]int)
	reverseEdges := make(map[string][]string)
	for node := range g.nodes {
		seen := make(map[string]bool)
		for _, target := range g.edges[node] {
			if seen[target] {
				continue
			}
			seen[target] = true
			outDegree[node]++
			reverseEdges[target] = append(reverseEdges[target], node)
		}
	}

	var queue []string
	for _, node := range sortedNames(g.nodes) {
		if outDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	var result []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		dependents := reverseEdges[node]
		sort.Strings(dependents)
		for _, dependent := range dependents {
			outDegree[dependent]--
			if outDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(g.nodes) {
		if cycles := g.DetectCycles(); len(cycles) > 0 {
			return nil, fmt.Errorf("circular dependency detected:\n%s", formatCycles(cycles))
		}
		return nil, fmt.Errorf("circular dependency detected")
	}

	return result, nil
}

func formatCycles(cycles [][]string) string {
	var b strings.Builder
	for i, cycle := range cycles {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("  Cycle %d: %s -> %s",
			i+1,
			strings.Join(cycle, " -> "),
			cycle[0]))
	}
	return b.String()
}
