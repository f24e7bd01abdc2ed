package graph

// InstanceGraph is the DAG of concrete regions and their geographic
// containment edges (spec §3 "Instance"): parent -> child.
type InstanceGraph struct {
	dag *DAG
}

// NewInstanceGraph returns an empty instance graph.
func NewInstanceGraph() *InstanceGraph {
	return &InstanceGraph{dag: NewDAG()}
}

// HasNode reports whether id is a node of the instance graph.
func (g *InstanceGraph) HasNode(id string) bool { return g.dag.HasNode(id) }

// Kind returns the granularity kind of instance id.
func (g *InstanceGraph) Kind(id string) string { return g.dag.Kind(id) }

// Area returns the area (square kilometers) of instance id.
func (g *InstanceGraph) Area(id string) float64 {
	a, ok := g.dag.Attrs(id)
	if !ok {
		return 0
	}
	return a.(InstanceAttrs).Area
}

// SetArea overrides the area of an existing instance node — used to patch
// in a country-level area that isn't itself derived from a shapefile
// (mirrors the original wrapper's override of the national root node's
// area after graph load).
func (g *InstanceGraph) SetArea(id string, area float64) {
	a, ok := g.dag.Attrs(id)
	shape := InstanceAttrs{}
	if ok {
		shape = a.(InstanceAttrs)
	}
	shape.Area = area
	g.dag.AddNode(id, g.dag.Kind(id), shape)
}

// ChildrenOfKind returns the direct children of instance id whose kind
// equals childKind.
func (g *InstanceGraph) ChildrenOfKind(id, childKind string) []string {
	var out []string
	for _, c := range g.dag.Successors(id) {
		if g.dag.Kind(c) == childKind {
			out = append(out, c)
		}
	}
	return out
}

// ParentOfKind returns the unique direct parent of instance id whose kind
// equals kind; ancestors further up are not searched. unique is false if no such parent exists; ambiguous is true if more
// than one does (an invariant violation, spec §3).
func (g *InstanceGraph) ParentOfKind(id, kind string) (parent string, unique bool, ambiguous bool) {
	return g.dag.ParentOfKind(id, kind)
}
