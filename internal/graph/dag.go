package graph

import (
	"fmt"
	"sort"
	"sync"
)

// canonicalKinds is the fixed set of plain granularity kind names.
var canonicalKinds = map[string]bool{
	"country": true, "state": true, "county": true,
	"nerc": true, "huc8": true, "latlon": true,
}

// ValidKind reports whether name is a canonical granularity kind: either a
// plain kind name from canonicalKinds, or a wedge "a^b" of two such names
// with a < b lexicographically.
func ValidKind(name string) bool {
	if canonicalKinds[name] {
		return true
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '^' {
			a, b := name[:i], name[i+1:]
			return canonicalKinds[a] && canonicalKinds[b] && a < b
		}
	}
	return false
}

// Meet returns the canonical wedge name for two kinds: "min^max".
func Meet(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%s^%s", a, b)
}

// node is one arena slot. Attrs is opaque payload set by AbstractGraph or
// InstanceGraph (edge/node metadata specific to each graph's role).
type node struct {
	id       string
	kind     string
	attrs    interface{}
	children []int // dense ids, edge attrs kept in edgeAttrs
	parents  []int
}

type edgeKey struct{ from, to int }

// DAG is a dense-arena directed acyclic graph with a kind-indexed secondary
// index, shared by the abstract and instance granularity graphs.
type DAG struct {
	mu        sync.RWMutex
	byID      map[string]int
	nodes     []node
	byKind    map[string][]int
	edgeAttrs map[edgeKey]interface{}
}

// NewDAG constructs an empty graph.
func NewDAG() *DAG {
	return &DAG{
		byID:      make(map[string]int),
		byKind:    make(map[string][]int),
		edgeAttrs: make(map[edgeKey]interface{}),
	}
}

// AddNode inserts a node with the given id and kind, idempotently updating
// attrs if the node already exists.
func (g *DAG) AddNode(id, kind string, attrs interface{}) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if idx, ok := g.byID[id]; ok {
		g.nodes[idx].kind = kind
		g.nodes[idx].attrs = attrs
		return
	}
	idx := len(g.nodes)
	g.nodes = append(g.nodes, node{id: id, kind: kind, attrs: attrs})
	g.byID[id] = idx
	g.byKind[kind] = append(g.byKind[kind], idx)
}

// AddEdge inserts a directed edge from -> to, creating either endpoint's
// node (with an empty kind) if it is not already present.
func (g *DAG) AddEdge(from, to string, attrs interface{}) {
	g.mu.Lock()
	defer g.mu.Unlock()

	fi, ok := g.byID[from]
	if !ok {
		fi = len(g.nodes)
		g.nodes = append(g.nodes, node{id: from})
		g.byID[from] = fi
	}
	ti, ok := g.byID[to]
	if !ok {
		ti = len(g.nodes)
		g.nodes = append(g.nodes, node{id: to})
		g.byID[to] = ti
	}
	g.nodes[fi].children = append(g.nodes[fi].children, ti)
	g.nodes[ti].parents = append(g.nodes[ti].parents, fi)
	g.edgeAttrs[edgeKey{fi, ti}] = attrs
}

// HasNode reports whether id exists in the graph.
func (g *DAG) HasNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.byID[id]
	return ok
}

// Kind returns the kind of node id, or "" if absent.
func (g *DAG) Kind(id string) string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if idx, ok := g.byID[id]; ok {
		return g.nodes[idx].kind
	}
	return ""
}

// Attrs returns the opaque attrs stored for node id.
func (g *DAG) Attrs(id string) (interface{}, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.byID[id]
	if !ok {
		return nil, false
	}
	return g.nodes[idx].attrs, true
}

// EdgeAttrs returns the opaque attrs stored for edge from->to.
func (g *DAG) EdgeAttrs(from, to string) (interface{}, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fi, ok := g.byID[from]
	if !ok {
		return nil, false
	}
	ti, ok := g.byID[to]
	if !ok {
		return nil, false
	}
	a, ok := g.edgeAttrs[edgeKey{fi, ti}]
	return a, ok
}

// Successors returns the direct children of id, in insertion order.
func (g *DAG) Successors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.byID[id]
	if !ok {
		return nil
	}
	out := make([]string, len(g.nodes[idx].children))
	for i, c := range g.nodes[idx].children {
		out[i] = g.nodes[c].id
	}
	return out
}

// Predecessors returns the direct parents of id, in insertion order.
func (g *DAG) Predecessors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.byID[id]
	if !ok {
		return nil
	}
	out := make([]string, len(g.nodes[idx].parents))
	for i, p := range g.nodes[idx].parents {
		out[i] = g.nodes[p].id
	}
	return out
}

// ParentOfKind returns the unique direct parent of id whose kind equals
// kind, with unique true if exactly one such parent exists. If more than
// one parent of that kind exists, unique is false, ambiguous is true, and
// the lexicographically first match is returned; the caller decides how to
// report the violation (spec §3 invariant: "every instance node has
// exactly one parent per ancestor kind").
func (g *DAG) ParentOfKind(id, kind string) (parent string, unique bool, ambiguous bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.byID[id]
	if !ok {
		return "", false, false
	}
	var matches []string
	for _, p := range g.nodes[idx].parents {
		if g.nodes[p].kind == kind {
			matches = append(matches, g.nodes[p].id)
		}
	}
	switch len(matches) {
	case 0:
		return "", false, false
	case 1:
		return matches[0], true, false
	default:
		sort.Strings(matches)
		return matches[0], false, true
	}
}

// NodesOfKind returns all node ids with the given kind.
func (g *DAG) NodesOfKind(kind string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idxs := g.byKind[kind]
	out := make([]string, len(idxs))
	for i, idx := range idxs {
		out[i] = g.nodes[idx].id
	}
	return out
}

// HasPath reports whether a directed path exists from -> to (BFS).
func (g *DAG) HasPath(from, to string) bool {
	_, ok := g.ShortestPath(from, to)
	return ok
}

// ShortestPath returns the shortest directed path from -> to (BFS, since
// the abstract graph is unweighted), inclusive of both endpoints.
func (g *DAG) ShortestPath(from, to string) ([]string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	start, ok := g.byID[from]
	if !ok {
		return nil, false
	}
	end, ok := g.byID[to]
	if !ok {
		return nil, false
	}
	if start == end {
		return []string{from}, true
	}

	prev := make(map[int]int)
	visited := make(map[int]bool)
	queue := []int{start}
	visited[start] = true
	found := false
	for len(queue) > 0 && !found {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.nodes[cur].children {
			if visited[next] {
				continue
			}
			visited[next] = true
			prev[next] = cur
			if next == end {
				found = true
				break
			}
			queue = append(queue, next)
		}
	}
	if !visited[end] {
		return nil, false
	}

	var path []int
	for at := end; ; {
		path = append([]int{at}, path...)
		if at == start {
			break
		}
		at = prev[at]
	}
	out := make([]string, len(path))
	for i, idx := range path {
		out[i] = g.nodes[idx].id
	}
	return out, true
}

// Ancestors returns every node reachable by following parent edges
// transitively from id (not including id itself).
func (g *DAG) Ancestors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	start, ok := g.byID[id]
	if !ok {
		return nil
	}
	visited := map[int]bool{start: true}
	queue := []int{start}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, p := range g.nodes[cur].parents {
			if visited[p] {
				continue
			}
			visited[p] = true
			out = append(out, g.nodes[p].id)
			queue = append(queue, p)
		}
	}
	return out
}
