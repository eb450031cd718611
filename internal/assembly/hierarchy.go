package assembly

import (
	"context"
)

// ValidateComposition decides whether child may become a component of parent,
// either as a sub-assembly item inside parent or by setting child's parent link
// to parent.
//
// The composition graph has an edge P -> C for every item of P that
// instantiates C and for every assembly C whose parent link is P. The
// candidate is rejected with CYCLE when the two ids are equal or when parent
// is already reachable from child. The search visits each assembly at most
// once, so it terminates even on a graph that already holds a cycle.
//
// It reads through the Repository's binding only; run it inside the same
// transaction as the write it guards.
func (r *Repository) ValidateComposition(ctx context.Context, parent, child int64) error {
	if parent == child {
		return NewCycleError(parent, child, nil)
	}

	path, found, err := r.findPath(ctx, child, parent)
	if err != nil {
		return err
	}
	if found {
		return NewCycleError(parent, child, path)
	}
	return nil
}

// compositionEdges returns the assemblies directly composed into id, from both
// sub-assembly items and parent links, in the order they were created.
func (r *Repository) compositionEdges(ctx context.Context, id int64) ([]int64, error) {
	items, err := r.rec.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	children, err := r.rec.ListChildAssemblies(ctx, id)
	if err != nil {
		return nil, err
	}

	next := make([]int64, 0, len(items)+len(children))
	for _, it := range items {
		if it.SubAssemblyID != nil {
			next = append(next, *it.SubAssemblyID)
		}
	}
	for _, c := range children {
		next = append(next, c.ID)
	}
	return next, nil
}

// findPath runs a breadth-first search from -> to over composition edges and
// returns the shortest path (inclusive of both ends) when one exists.
func (r *Repository) findPath(ctx context.Context, from, to int64) ([]int64, bool, error) {
	visited := map[int64]bool{from: true}
	pred := make(map[int64]int64)
	queue := []int64{from}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		next, err := r.compositionEdges(ctx, current)
		if err != nil {
			return nil, false, err
		}
		for _, n := range next {
			if visited[n] {
				continue
			}
			visited[n] = true
			pred[n] = current
			if n == to {
				return reconstructPath(pred, from, to), true, nil
			}
			queue = append(queue, n)
		}
	}
	return nil, false, nil
}

func reconstructPath(pred map[int64]int64, from, to int64) []int64 {
	path := []int64{to}
	for at := to; at != from; {
		at = pred[at]
		path = append(path, at)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
