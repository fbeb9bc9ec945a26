// Package merge implements the three-way merge driver used when the
// history DAG has more than one tip: common-ancestor discovery, the
// per-element three-way decision table, and an external conflict
// resolver seam (spec §4.5).
package merge

import (
	"github.com/pippin-db/pippin/internal/dag"
	"github.com/pippin-db/pippin/internal/sum"
)

// CommonAncestor performs a breadth-first walk back through parents from
// both a and b, returning the first state sum reached by both walks --
// the nearest common ancestor by combined distance. ok is false if the
// two sums share no ancestor reachable in d (e.g. two independent root
// states).
func CommonAncestor(d *dag.Dag, a, b sum.Sum) (ancestor sum.Sum, ok bool) {
	if a == b {
		return a, true
	}

	distA := ancestorDistances(d, a)
	distB := ancestorDistances(d, b)

	best, found := sum.Sum{}, false
	bestDist := -1
	for s, da := range distA {
		db, inB := distB[s]
		if !inB {
			continue
		}
		total := da + db
		if !found || total < bestDist {
			best, bestDist, found = s, total, true
		}
	}
	return best, found
}

// ancestorDistances returns every ancestor of s reachable through d
// (including s itself, at distance 0), mapped to its BFS distance from
// s following the first-listed-parent-agnostic full parent set.
func ancestorDistances(d *dag.Dag, s sum.Sum) map[sum.Sum]int {
	dist := map[sum.Sum]int{s: 0}
	queue := []sum.Sum{s}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		state, ok := d.Get(cur)
		if !ok {
			continue
		}
		for _, p := range state.Parents {
			if _, seen := dist[p]; seen {
				continue
			}
			dist[p] = dist[cur] + 1
			queue = append(queue, p)
		}
	}
	return dist
}
