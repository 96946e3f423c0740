package hierarchy

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	// ErrUnknownRole is returned when an identifier has no node in the graph.
	ErrUnknownRole = errors.New("unknown role")
	// ErrSelfParent is returned when an edge would make a role its own parent.
	ErrSelfParent = errors.New("role cannot parent itself")
	// ErrCycle is returned when an edge would close a cycle in the hierarchy.
	ErrCycle = errors.New("cycle detected")
	// ErrEmptyName is returned when an identifier is the empty string.
	ErrEmptyName = errors.New("empty role name")
)

type node struct {
	parents  map[string]struct{}
	children map[string]struct{}
}

// Node is the flat form of a graph entry, used to rebuild a graph from a
// storage snapshot. Parents lists direct ascendant identifiers.
type Node struct {
	Name    string
	Parents []string
}

// Graph is a cycle-free hierarchy over role identifiers. The zero value is
// not usable; construct with [New]. Safe for concurrent use: lookups take a
// shared lock, mutations an exclusive one.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*node
	gen   atomic.Uint64

	cacheMu   sync.Mutex
	ascCache  map[string]map[string]struct{}
	descCache map[string]map[string]struct{}
	cacheGen  uint64
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes:     make(map[string]*node),
		ascCache:  make(map[string]map[string]struct{}),
		descCache: make(map[string]map[string]struct{}),
	}
}

// AddRole inserts a node with no edges. Inserting an existing role is a
// no-op so storage reloads can be replayed.
func (g *Graph) AddRole(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[name]; ok {
		return nil
	}
	g.nodes[name] = &node{
		parents:  make(map[string]struct{}),
		children: make(map[string]struct{}),
	}
	g.bumpLocked()
	return nil
}

// RemoveRole deletes a node and detaches every edge touching it.
func (g *Graph) RemoveRole(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[name]
	if !ok {
		return ErrUnknownRole
	}
	for p := range n.parents {
		delete(g.nodes[p].children, name)
	}
	for c := range n.children {
		delete(g.nodes[c].parents, name)
	}
	delete(g.nodes, name)
	g.bumpLocked()
	return nil
}

// Contains reports whether the identifier has a node in the graph.
func (g *Graph) Contains(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[name]
	return ok
}

// Roles returns every identifier in the graph, sorted for determinism.
func (g *Graph) Roles() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// AddEdge links parent above child. Both endpoints must exist. Adding an
// edge that is already present is a no-op. The edge is rejected with
// [ErrSelfParent] or [ErrCycle] when it would break the strict partial
// order; the graph is unchanged on any error.
func (g *Graph) AddEdge(parent, child string) error {
	if parent == child {
		return ErrSelfParent
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	pn, ok := g.nodes[parent]
	if !ok {
		return ErrUnknownRole
	}
	cn, ok := g.nodes[child]
	if !ok {
		return ErrUnknownRole
	}
	if _, dup := cn.parents[parent]; dup {
		return nil
	}
	// parent -> child closes a cycle iff parent is already reachable
	// below child.
	if g.reachableLocked(child, parent, false) {
		return ErrCycle
	}

	cn.parents[parent] = struct{}{}
	pn.children[child] = struct{}{}
	g.bumpLocked()
	return nil
}

// RemoveEdge unlinks parent from child. Removing an absent edge is a
// no-op; unknown endpoints are an error.
func (g *Graph) RemoveEdge(parent, child string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	pn, ok := g.nodes[parent]
	if !ok {
		return ErrUnknownRole
	}
	cn, ok := g.nodes[child]
	if !ok {
		return ErrUnknownRole
	}
	if _, present := cn.parents[parent]; !present {
		return nil
	}
	delete(cn.parents, parent)
	delete(pn.children, child)
	g.bumpLocked()
	return nil
}

// Parents returns the direct ascendants of a role.
func (g *Graph) Parents(name string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[name]
	if !ok {
		return nil, ErrUnknownRole
	}
	return setToSorted(n.parents), nil
}

// Children returns the direct descendants of a role.
func (g *Graph) Children(name string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[name]
	if !ok {
		return nil, ErrUnknownRole
	}
	return setToSorted(n.children), nil
}

// Ascendants returns every role reachable by following parent edges
// transitively: the seniors that inherit this role's permissions. The
// result set excludes the role itself and is safe for the caller to
// mutate.
func (g *Graph) Ascendants(name string) (map[string]struct{}, error) {
	return g.closure(name, true)
}

// Descendants returns every role reachable by following child edges
// transitively: the juniors whose permissions this role inherits.
func (g *Graph) Descendants(name string) (map[string]struct{}, error) {
	return g.closure(name, false)
}

// IsAscendant reports whether senior sits above junior in the transitive
// closure of the hierarchy.
func (g *Graph) IsAscendant(senior, junior string) (bool, error) {
	asc, err := g.Ascendants(junior)
	if err != nil {
		return false, err
	}
	_, ok := asc[senior]
	return ok, nil
}

// Rebuild atomically replaces the whole graph with the supplied snapshot.
// Every parent reference must resolve within the snapshot and the result
// must be acyclic; on error the previous graph is kept.
func (g *Graph) Rebuild(nodes []Node) error {
	fresh := make(map[string]*node, len(nodes))
	for _, n := range nodes {
		if n.Name == "" {
			return ErrEmptyName
		}
		if _, dup := fresh[n.Name]; !dup {
			fresh[n.Name] = &node{
				parents:  make(map[string]struct{}),
				children: make(map[string]struct{}),
			}
		}
	}
	for _, n := range nodes {
		for _, p := range n.Parents {
			if p == n.Name {
				return ErrSelfParent
			}
			pn, ok := fresh[p]
			if !ok {
				return ErrUnknownRole
			}
			fresh[n.Name].parents[p] = struct{}{}
			pn.children[n.Name] = struct{}{}
		}
	}
	if cyclic(fresh) {
		return ErrCycle
	}

	g.mu.Lock()
	g.nodes = fresh
	g.bumpLocked()
	g.mu.Unlock()
	return nil
}

// Generation returns the mutation counter. Two equal readings bracket a
// window with no structural change.
func (g *Graph) Generation() uint64 {
	return g.gen.Load()
}

func (g *Graph) bumpLocked() {
	g.gen.Add(1)
}

// closure walks the graph in one direction with memoization. If a mutation
// lands while the walk runs, the stale result is thrown away and the walk
// is retried once against the new snapshot.
func (g *Graph) closure(name string, up bool) (map[string]struct{}, error) {
	for attempt := 0; ; attempt++ {
		gen := g.gen.Load()

		if cached, ok := g.cacheLookup(name, up, gen); ok {
			return copySet(cached), nil
		}

		result, err := g.walk(name, up)
		if err != nil {
			return nil, err
		}

		if g.gen.Load() == gen {
			g.cacheStore(name, up, gen, result)
			return copySet(result), nil
		}
		if attempt == 1 {
			// Second concurrent mutation; the uncached result is
			// still a consistent snapshot of some state we read.
			return result, nil
		}
	}
}

func (g *Graph) walk(name string, up bool) (map[string]struct{}, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	start, ok := g.nodes[name]
	if !ok {
		return nil, ErrUnknownRole
	}

	result := make(map[string]struct{})
	queue := make([]string, 0, len(start.parents)+len(start.children))
	queue = append(queue, edgeSet(start, up)...)

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if _, seen := result[cur]; seen {
			continue
		}
		result[cur] = struct{}{}
		if n, ok := g.nodes[cur]; ok {
			queue = append(queue, edgeSet(n, up)...)
		}
	}
	return result, nil
}

func (g *Graph) cacheLookup(name string, up bool, gen uint64) (map[string]struct{}, bool) {
	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()
	if g.cacheGen != gen {
		return nil, false
	}
	cache := g.descCache
	if up {
		cache = g.ascCache
	}
	s, ok := cache[name]
	return s, ok
}

func (g *Graph) cacheStore(name string, up bool, gen uint64, set map[string]struct{}) {
	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()
	if g.cacheGen != gen {
		g.ascCache = make(map[string]map[string]struct{})
		g.descCache = make(map[string]map[string]struct{})
		g.cacheGen = gen
	}
	if up {
		g.ascCache[name] = set
	} else {
		g.descCache[name] = set
	}
}

func edgeSet(n *node, up bool) []string {
	src := n.children
	if up {
		src = n.parents
	}
	out := make([]string, 0, len(src))
	for name := range src {
		out = append(out, name)
	}
	return out
}

func cyclic(nodes map[string]*node) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(nodes))

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		for child := range nodes[name].children {
			switch color[child] {
			case gray:
				return true
			case white:
				if visit(child) {
					return true
				}
			}
		}
		color[name] = black
		return false
	}

	for name := range nodes {
		if color[name] == white && visit(name) {
			return true
		}
	}
	return false
}

func reachable(nodes map[string]*node, from, to string, up bool) bool {
	queue := []string{from}
	seen := map[string]struct{}{from: {}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			return true
		}
		n, ok := nodes[cur]
		if !ok {
			continue
		}
		for _, next := range edgeSet(n, up) {
			if _, dup := seen[next]; !dup {
				seen[next] = struct{}{}
				queue = append(queue, next)
			}
		}
	}
	return false
}

func (g *Graph) reachableLocked(from, to string, up bool) bool {
	return reachable(g.nodes, from, to, up)
}

func setToSorted(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func copySet(s map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}
