package trigger

import (
	"sort"

	"github.com/cohortgen/cohortgen/internal/spec"
)

// node is one vertex of the trigger graph: an event type in a product.
type node struct {
	product   string
	eventType string
}

func (n node) String() string { return n.product + "/" + n.eventType }

// detectCycle walks the (product, event_type) graph induced by the trigger
// specs and returns a CyclicSpecError for the first cycle found.
//
// Triggers are loaded up front and never mutated at runtime, so one DFS at
// construction is sufficient: if the graph is acyclic here, chained firings
// cannot loop no matter what probability draws happen later. Roots are
// visited in deterministic order so the reported cycle is stable.
func detectCycle(specs []spec.TriggerSpec) error {
	edges := make(map[node][]node)
	for _, ts := range specs {
		src := node{ts.SourceProduct, ts.SourceEventType}
		dst := node{ts.TargetProduct, ts.TargetEventType}
		edges[src] = append(edges[src], dst)
	}

	roots := make([]node, 0, len(edges))
	for n := range edges {
		roots = append(roots, n)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].String() < roots[j].String() })

	const (
		unvisited = 0
		onStack   = 1
		finished  = 2
	)
	state := make(map[node]int)

	var path []node
	var visit func(n node) *CyclicSpecError
	visit = func(n node) *CyclicSpecError {
		state[n] = onStack
		path = append(path, n)
		for _, next := range edges[n] {
			switch state[next] {
			case onStack:
				return cycleFrom(path, next)
			case unvisited:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		state[n] = finished
		return nil
	}

	for _, root := range roots {
		if state[root] == unvisited {
			if err := visit(root); err != nil {
				return err
			}
		}
	}
	return nil
}

// cycleFrom extracts the cycle portion of the DFS path, closing it with the
// repeated node.
func cycleFrom(path []node, repeat node) *CyclicSpecError {
	start := 0
	for i, n := range path {
		if n == repeat {
			start = i
			break
		}
	}
	cycle := make([]string, 0, len(path)-start+1)
	for _, n := range path[start:] {
		cycle = append(cycle, n.String())
	}
	cycle = append(cycle, repeat.String())
	return &CyclicSpecError{Cycle: cycle}
}
