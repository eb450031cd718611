package assembly

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// AuditReport collects integrity findings over the whole store.
type AuditReport struct {
	Cycles             []CycleFinding      `json:"cycles"`
	DuplicateInstances []DuplicateInstance `json:"duplicate_instances"`
	StaleConnectors    []StaleConnector    `json:"stale_connectors"`
}

// CycleFinding is one strongly connected component of the composition graph.
type CycleFinding struct {
	Assemblies []int64 `json:"assemblies"` // SCC members, ascending
	Path       []int64 `json:"path"`       // One cycle through them: [a, b, a]
	Message    string  `json:"message"`
}

// DuplicateInstance is an instance name used by more than one item of an assembly.
type DuplicateInstance struct {
	AssemblyID   int64   `json:"assembly_id"`
	InstanceName string  `json:"instance_name"`
	ItemIDs      []int64 `json:"item_ids"`
}

// StaleConnector is a connector whose ends no longer satisfy the connector rules.
type StaleConnector struct {
	ConnectorID int64     `json:"connector_id"`
	Kind        ErrorKind `json:"kind"`
	Reason      string    `json:"reason"`
}

// Clean reports whether the audit found nothing.
func (a *AuditReport) Clean() bool {
	return len(a.Cycles) == 0 && len(a.DuplicateInstances) == 0 && len(a.StaleConnectors) == 0
}

// Issues returns the total number of findings.
func (a *AuditReport) Issues() int {
	return len(a.Cycles) + len(a.DuplicateInstances) + len(a.StaleConnectors)
}

// compositionGraph maps assembly id -> assemblies composed into it.
type compositionGraph map[int64][]int64

// Audit scans the store for states the write path is supposed to prevent
// (cycles, stale connectors) and for data-quality issues it tolerates
// (duplicate instance names). Findings are reported, never repaired.
func (r *Repository) Audit(ctx context.Context) (*AuditReport, error) {
	report := &AuditReport{
		Cycles:             []CycleFinding{},
		DuplicateInstances: []DuplicateInstance{},
		StaleConnectors:    []StaleConnector{},
	}

	graph, err := r.loadCompositionGraph(ctx)
	if err != nil {
		return nil, err
	}
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			report.Cycles = append(report.Cycles, sccToFinding(scc, graph))
		}
	}

	if report.DuplicateInstances, err = r.findDuplicateInstances(ctx); err != nil {
		return nil, err
	}
	if report.StaleConnectors, err = r.findStaleConnectors(ctx); err != nil {
		return nil, err
	}
	return report, nil
}

func (r *Repository) loadCompositionGraph(ctx context.Context) (compositionGraph, error) {
	assemblies, err := r.rec.ListAssemblies(ctx, nil)
	if err != nil {
		return nil, err
	}
	items, err := r.rec.ListAllItems(ctx)
	if err != nil {
		return nil, err
	}

	graph := make(compositionGraph, len(assemblies))
	for _, a := range assemblies {
		if graph[a.ID] == nil {
			graph[a.ID] = []int64{}
		}
		if a.ParentAssemblyID != nil {
			graph[*a.ParentAssemblyID] = append(graph[*a.ParentAssemblyID], a.ID)
		}
	}
	for _, it := range items {
		if it.SubAssemblyID != nil {
			graph[it.AssemblyID] = append(graph[it.AssemblyID], *it.SubAssemblyID)
		}
	}
	return graph, nil
}

func hasSelfLoop(node int64, graph compositionGraph) bool {
	for _, n := range graph[node] {
		if n == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in ascending id order so the output is deterministic.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph compositionGraph) [][]int64 {
	var (
		index   = 0
		stack   []int64
		indices = make(map[int64]int)
		lowlink = make(map[int64]int)
		onStack = make(map[int64]bool)
		sccs    [][]int64
	)

	var strongConnect func(int64)
	strongConnect = func(v int64) {
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

		// v is a root node: pop the stack into an SCC
		if lowlink[v] == indices[v] {
			var scc []int64
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sort.Slice(scc, func(i, j int) bool { return scc[i] < scc[j] })
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]int64, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}

	sort.Slice(sccs, func(i, j int) bool { return sccs[i][0] < sccs[j][0] })
	return sccs
}

func sccToFinding(scc []int64, graph compositionGraph) CycleFinding {
	if len(scc) == 1 {
		return CycleFinding{
			Assemblies: scc,
			Path:       []int64{scc[0], scc[0]},
			Message:    fmt.Sprintf("assembly %d contains itself", scc[0]),
		}
	}
	path := reconstructCyclePath(scc, graph)
	return CycleFinding{
		Assemblies: scc,
		Path:       path,
		Message:    fmt.Sprintf("composition cycle: %s", formatPath(path)),
	}
}

// reconstructCyclePath starts at the smallest SCC member and follows edges
// inside the SCC until it returns to the start.
func reconstructCyclePath(scc []int64, graph compositionGraph) []int64 {
	inSCC := make(map[int64]bool, len(scc))
	for _, n := range scc {
		inSCC[n] = true
	}

	start := scc[0]
	current := start
	path := []int64{current}
	visited := make(map[int64]bool)

	for {
		visited[current] = true

		next, ok := int64(0), false
		for _, n := range graph[current] {
			if inSCC[n] && (!visited[n] || n == start) {
				next, ok = n, true
				break
			}
		}
		if !ok {
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

func (r *Repository) findDuplicateInstances(ctx context.Context) ([]DuplicateInstance, error) {
	items, err := r.rec.ListAllItems(ctx)
	if err != nil {
		return nil, err
	}

	type key struct {
		assembly int64
		name     string
	}
	groups := make(map[key][]int64)
	var order []key
	for _, it := range items {
		k := key{it.AssemblyID, norm.NFC.String(it.InstanceName)}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], it.ID)
	}

	dups := []DuplicateInstance{}
	for _, k := range order {
		if ids := groups[k]; len(ids) > 1 {
			dups = append(dups, DuplicateInstance{AssemblyID: k.assembly, InstanceName: k.name, ItemIDs: ids})
		}
	}
	return dups, nil
}

func (r *Repository) findStaleConnectors(ctx context.Context) ([]StaleConnector, error) {
	connectors, err := r.rec.ListConnectors(ctx)
	if err != nil {
		return nil, err
	}

	stale := []StaleConnector{}
	for _, c := range connectors {
		err := r.ValidateConnector(ctx, c.Feature1ID, c.AssemblyItem1ID, c.Feature2ID, c.AssemblyItem2ID)
		if err == nil {
			continue
		}
		kind := KindOf(err)
		if kind == "" {
			return nil, err
		}
		stale = append(stale, StaleConnector{ConnectorID: c.ID, Kind: kind, Reason: err.Error()})
	}
	return stale, nil
}
