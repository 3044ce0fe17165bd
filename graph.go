package pipeflow

import (
	"container/heap"
	"sort"
)

// Graph is the read-only dependency view of a descriptor set: for each job,
// its direct predecessors and successors, plus a cached topological order.
//
// A Graph is never mutated after BuildGraph returns and is safe to share
// across goroutines without locking.
type Graph struct {
	set   *DescriptorSet
	preds map[string][]string
	succs map[string][]string
	topo  []string
}

// BuildGraph validates the descriptor set's dependency structure and derives
// the graph. It fails with UnknownDependencyError if a descriptor references
// an identifier absent from the set, and with CycleError if the dependencies
// are not acyclic.
//
// Determinism: adjacency lists are sorted ascending, and the cached
// topological order breaks ties among independent jobs by ascending
// identifier, so scheduling order is reproducible.
func BuildGraph(set *DescriptorSet) (*Graph, error) {
	g := &Graph{
		set:   set,
		preds: make(map[string][]string, set.Len()),
		succs: make(map[string][]string, set.Len()),
	}

	for _, id := range set.ids {
		d := set.jobs[id]
		for _, dep := range d.DependsOn {
			if _, ok := set.jobs[dep]; !ok {
				return nil, &UnknownDependencyError{JobID: id, DependsOn: dep}
			}
			g.preds[id] = append(g.preds[id], dep)
			g.succs[dep] = append(g.succs[dep], id)
		}
	}
	for id := range g.preds {
		sort.Strings(g.preds[id])
	}
	for id := range g.succs {
		sort.Strings(g.succs[id])
	}

	order := g.topoOrder()
	if len(order) != set.Len() {
		return nil, &CycleError{Members: g.findCycle()}
	}
	g.topo = order
	return g, nil
}

// Predecessors returns the direct dependencies of id, ascending.
func (g *Graph) Predecessors(id string) []string {
	return append([]string(nil), g.preds[id]...)
}

// Successors returns the direct dependents of id, ascending.
func (g *Graph) Successors(id string) []string {
	return append([]string(nil), g.succs[id]...)
}

// TopoOrder returns the cached topological order of all job identifiers.
func (g *Graph) TopoOrder() []string {
	return append([]string(nil), g.topo...)
}

// Roots returns the jobs with no dependencies, ascending.
func (g *Graph) Roots() []string {
	roots := make([]string, 0)
	for _, id := range g.set.ids {
		if len(g.preds[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// Descendants returns every direct and transitive successor of id, in
// deterministic breadth-first order (min-heap by identifier).
func (g *Graph) Descendants(id string) []string {
	visited := map[string]bool{id: true}
	hq := &stringMinHeap{}
	heap.Init(hq)
	for _, s := range g.succs[id] {
		heap.Push(hq, s)
	}

	out := make([]string, 0)
	for hq.Len() > 0 {
		u := heap.Pop(hq).(string)
		if visited[u] {
			continue
		}
		visited[u] = true
		out = append(out, u)
		for _, v := range g.succs[u] {
			if !visited[v] {
				heap.Push(hq, v)
			}
		}
	}
	return out
}

type stringMinHeap []string

func (h stringMinHeap) Len() int           { return len(h) }
func (h stringMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h stringMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *stringMinHeap) Push(x any)        { *h = append(*h, x.(string)) }
func (h *stringMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrder runs Kahn's algorithm with a min-heap ready queue. A short result
// (fewer entries than jobs) means a cycle exists.
func (g *Graph) topoOrder() []string {
	indeg := make(map[string]int, g.set.Len())
	for _, id := range g.set.ids {
		indeg[id] = len(g.preds[id])
	}

	ready := &stringMinHeap{}
	heap.Init(ready)
	for _, id := range g.set.ids {
		if indeg[id] == 0 {
			heap.Push(ready, id)
		}
	}

	out := make([]string, 0, g.set.Len())
	for ready.Len() > 0 {
		id := heap.Pop(ready).(string)
		out = append(out, id)
		for _, s := range g.succs[id] {
			indeg[s]--
			if indeg[s] == 0 {
				heap.Push(ready, s)
			}
		}
	}
	return out
}

// findCycle performs a deterministic DFS over ascending identifiers to
// extract one cycle path as a stable witness. It does not attempt to list
// all cycles.
func (g *Graph) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, g.set.Len())
	parent := make(map[string]string, g.set.Len())

	var cycle []string

	var dfs func(u string) bool
	dfs = func(u string) bool {
		color[u] = gray
		for _, v := range g.succs[u] { // already sorted
			switch color[v] {
			case white:
				parent[v] = u
				if dfs(v) {
					return true
				}
			case gray:
				// Back-edge u -> v. Walk parents from u back to v.
				rev := []string{u}
				for cur := u; cur != v; {
					cur = parent[cur]
					rev = append(rev, cur)
				}
				for i := len(rev) - 1; i >= 0; i-- {
					cycle = append(cycle, rev[i])
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	for _, id := range g.set.ids {
		if color[id] != white {
			continue
		}
		if dfs(id) {
			break
		}
	}
	return cycle
}
