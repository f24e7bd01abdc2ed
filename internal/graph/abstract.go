package graph

// AbstractGraph is the DAG of granularity kinds and their refinement edges
// (spec §3 "Abstract"): coarse -> fine.
type AbstractGraph struct {
	dag *DAG
}

// NewAbstractGraph returns an empty abstract graph.
func NewAbstractGraph() *AbstractGraph {
	return &AbstractGraph{dag: NewDAG()}
}

// HasPath reports whether src can be refined (or coarsened) into dest by
// following edges in that direction.
func (g *AbstractGraph) HasPath(src, dest string) bool { return g.dag.HasPath(src, dest) }

// ShortestPath returns the shortest directed path src -> dest.
func (g *AbstractGraph) ShortestPath(src, dest string) ([]string, bool) {
	return g.dag.ShortestPath(src, dest)
}

// Successors returns the direct finer-grained kinds below kind.
func (g *AbstractGraph) Successors(kind string) []string { return g.dag.Successors(kind) }

// HasKind reports whether kind is a node of the abstract graph.
func (g *AbstractGraph) HasKind(kind string) bool { return g.dag.HasNode(kind) }

// EdgeFuncs returns the per-variable aggregator/disaggregator overrides
// declared on the edge from -> to, if any.
func (g *AbstractGraph) EdgeFuncs(from, to string) AbstractEdgeAttrs {
	a, ok := g.dag.EdgeAttrs(from, to)
	if !ok {
		return AbstractEdgeAttrs{}
	}
	return a.(AbstractEdgeAttrs)
}

// NodeDefaults returns the per-node default aggregator/disaggregator names,
// if the graph file declared any (spec §3 "(optional) default aggregator").
func (g *AbstractGraph) NodeDefaults(kind string) AbstractAttrs {
	a, ok := g.dag.Attrs(kind)
	if !ok {
		return AbstractAttrs{}
	}
	return a.(AbstractAttrs)
}
