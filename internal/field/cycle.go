package field

import (
	"fmt"
	"slices"
	"strings"
)

// CycleWarning describes computed fields that feed each other.
// The fields involved keep their stored values but are not recomputed.
type CycleWarning struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
}

// dependencyGraph maps a field id to the fields computed from it.
type dependencyGraph map[string][]string

// analyzeCycles reports every strongly connected component of size > 1
// and every self-loop.
func analyzeCycles(graph dependencyGraph) []CycleWarning {
	var warnings []CycleWarning
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && slices.Contains(graph[scc[0]], scc[0])) {
			path := append(slices.Clone(scc), scc[0])
			warnings = append(warnings, CycleWarning{
				Path:    scc,
				Message: fmt.Sprintf("fields form a dependency cycle: %s", strings.Join(path, " -> ")),
			})
		}
	}
	return warnings
}

// tarjanSCC finds strongly connected components. Nodes are visited in sorted
// order so the output is stable across runs.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}
