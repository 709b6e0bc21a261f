package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/agenda/internal/ir"
)

// AnalyzeRequires performs static cycle analysis on REQUIRES/ALL
// correlations.
//
// A cycle (A requires B, B requires A) is not an error: auto-propagation
// walks chains with a visited set and stops. It is still a catalog
// integrity problem worth surfacing, so each cycle becomes a warning.
//
// The algorithm:
//  1. Build the activity → required activity graph
//  2. Find strongly connected components with Tarjan's algorithm
//  3. Report each SCC with more than one node, or a self-loop
//
// Role-level correlations and EXCLUDES rules are ignored. Callers filter
// by role beforehand when they want a per-role answer. Output order is
// deterministic.
func AnalyzeRequires(correlations []ir.Correlation) []ir.RuleWarning {
	graph := buildRequiresGraph(correlations)
	if len(graph.nodes) == 0 {
		return nil
	}

	var warnings []ir.RuleWarning
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}

	slices.SortFunc(warnings, func(a, b ir.RuleWarning) int {
		return strings.Compare(strings.Join(a.Path, "\x00"), strings.Join(b.Path, "\x00"))
	})
	return warnings
}

// requiresGraph keeps nodes in first-seen order so traversal is stable.
type requiresGraph struct {
	nodes []string
	edges map[string][]string
}

func buildRequiresGraph(correlations []ir.Correlation) requiresGraph {
	g := requiresGraph{edges: make(map[string][]string)}

	addNode := func(id string) {
		if _, ok := g.edges[id]; !ok {
			g.edges[id] = []string{}
			g.nodes = append(g.nodes, id)
		}
	}

	for _, c := range correlations {
		if !c.Rule.Implies() || c.IsRoleLevel() {
			continue
		}
		addNode(c.SourceActivityID)
		addNode(c.TargetActivityID)
		if !slices.Contains(g.edges[c.SourceActivityID], c.TargetActivityID) {
			g.edges[c.SourceActivityID] = append(g.edges[c.SourceActivityID], c.TargetActivityID)
		}
	}

	return g
}

func hasSelfLoop(node string, g requiresGraph) bool {
	return slices.Contains(g.edges[node], node)
}

// tarjanSCC finds strongly connected components.
// Single-node SCCs without self-loops are not cycles.
func tarjanSCC(g requiresGraph) [][]string {
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

		for _, w := range g.edges[v] {
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
			sccs = append(sccs, scc)
		}
	}

	for _, node := range g.nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a warning whose path starts and
// ends at the smallest activity id of the cycle.
func cycleSCCToWarning(scc []string, g requiresGraph) ir.RuleWarning {
	if len(scc) == 1 {
		id := scc[0]
		return ir.RuleWarning{
			Code:       ir.WarnRequiresCycle,
			ActivityID: id,
			Path:       []string{id, id},
			Message:    fmt.Sprintf("Activity requires itself: %s → %s", id, id),
		}
	}

	path := reconstructCyclePath(scc, g)
	return ir.RuleWarning{
		Code:       ir.WarnRequiresCycle,
		ActivityID: path[0],
		Path:       path,
		Message:    fmt.Sprintf("REQUIRES cycle detected: %s", strings.Join(path, " → ")),
	}
}

// reconstructCyclePath follows edges inside the SCC from its smallest
// member until it returns to the start.
func reconstructCyclePath(scc []string, g requiresGraph) []string {
	inSCC := make(map[string]bool, len(scc))
	for _, node := range scc {
		inSCC[node] = true
	}

	start := slices.Min(scc)
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range g.edges[current] {
			if inSCC[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
