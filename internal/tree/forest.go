// Package tree implements the nested-set arena behind the folder hierarchy.
//
// A Forest is loaded from persisted rows, mutated in memory, renumbered in a
// single depth-first pass, and the rows whose bounds changed are written back
// by the caller inside the same transaction. Ancestor/descendant queries use
// the Left/Right ranges and never recurse through parent pointers.
package tree

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrCyclicMove is returned when a node would be moved under itself or
	// one of its own descendants.
	ErrCyclicMove = errors.New("cannot move a folder under itself or its descendant")

	// ErrUnknownNode is returned for IDs that are not part of the forest.
	ErrUnknownNode = errors.New("unknown node")

	// ErrDuplicateNode is returned when adding an ID that already exists.
	ErrDuplicateNode = errors.New("duplicate node")
)

// Row is the persisted shape of a node.
type Row struct {
	ID       string
	ParentID *string
	Left     int64
	Right    int64
	Depth    int64
}

// Bounds are the nested-set columns of a node.
type Bounds struct {
	Left  int64
	Right int64
	Depth int64
}

type node struct {
	id       string
	parent   string // "" for roots
	children []string
	bounds   Bounds
	stored   Bounds // as loaded; zero for nodes added in memory
	loaded   bool
}

// Forest is an arena of folder nodes addressed by stable ID.
// It is not safe for concurrent use.
type Forest struct {
	nodes  map[string]*node
	roots  []string
	byLeft []*node // every node, ordered by bounds.Left
}

// New builds a forest from persisted rows. Siblings keep their stored
// left-to-right order. Rows pointing at a missing parent are rejected.
func New(rows []Row) (*Forest, error) {
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Left < sorted[j].Left })

	f := &Forest{nodes: make(map[string]*node, len(rows)), byLeft: make([]*node, 0, len(rows))}
	for _, r := range sorted {
		if _, ok := f.nodes[r.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, r.ID)
		}
		b := Bounds{Left: r.Left, Right: r.Right, Depth: r.Depth}
		n := &node{id: r.ID, bounds: b, stored: b, loaded: true}
		if r.ParentID != nil {
			n.parent = *r.ParentID
		}
		f.nodes[r.ID] = n
		f.byLeft = append(f.byLeft, n)
	}

	for _, r := range sorted {
		n := f.nodes[r.ID]
		if n.parent == "" {
			f.roots = append(f.roots, n.id)
			continue
		}
		p, ok := f.nodes[n.parent]
		if !ok {
			return nil, fmt.Errorf("%w: parent %s of %s", ErrUnknownNode, n.parent, n.id)
		}
		p.children = append(p.children, n.id)
	}

	return f, nil
}

// Len returns the number of nodes.
func (f *Forest) Len() int { return len(f.nodes) }

// Has reports whether id is in the forest.
func (f *Forest) Has(id string) bool {
	_, ok := f.nodes[id]
	return ok
}

// Bounds returns the current bounds of a node.
func (f *Forest) Bounds(id string) (Bounds, bool) {
	n, ok := f.nodes[id]
	if !ok {
		return Bounds{}, false
	}
	return n.bounds, true
}

// Parent returns the parent ID, or "" for a root.
func (f *Forest) Parent(id string) (string, bool) {
	n, ok := f.nodes[id]
	if !ok {
		return "", false
	}
	return n.parent, true
}

// Children returns the direct children of id in left-to-right order.
// An empty id lists the roots.
func (f *Forest) Children(id string) []string {
	if id == "" {
		return append([]string(nil), f.roots...)
	}
	n, ok := f.nodes[id]
	if !ok {
		return nil
	}
	return append([]string(nil), n.children...)
}

// Add appends id as the last child of parent ("" adds a root) and renumbers.
func (f *Forest) Add(id, parent string) error {
	if _, ok := f.nodes[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
	}
	n := &node{id: id, parent: parent}
	if parent == "" {
		f.roots = append(f.roots, id)
	} else {
		p, ok := f.nodes[parent]
		if !ok {
			return fmt.Errorf("%w: parent %s", ErrUnknownNode, parent)
		}
		p.children = append(p.children, id)
	}
	f.nodes[id] = n
	f.Renumber()
	return nil
}

// Move re-attaches id as the last child of newParent ("" makes it a root)
// and renumbers. Moving a node under itself or a descendant fails with
// ErrCyclicMove and leaves the forest untouched.
func (f *Forest) Move(id, newParent string) error {
	n, ok := f.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	if newParent != "" {
		if _, ok := f.nodes[newParent]; !ok {
			return fmt.Errorf("%w: parent %s", ErrUnknownNode, newParent)
		}
		if newParent == id || f.IsDescendant(newParent, id) {
			return ErrCyclicMove
		}
	}
	if n.parent == newParent {
		return nil
	}

	f.detach(n)
	n.parent = newParent
	if newParent == "" {
		f.roots = append(f.roots, id)
	} else {
		p := f.nodes[newParent]
		p.children = append(p.children, id)
	}
	f.Renumber()
	return nil
}

// Remove deletes id and its whole subtree, renumbers, and returns the removed
// IDs in pre-order (id first).
func (f *Forest) Remove(id string) ([]string, error) {
	n, ok := f.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	removed := append([]string{id}, f.Descendants(id)...)
	f.detach(n)
	for _, rid := range removed {
		delete(f.nodes, rid)
	}
	f.Renumber()
	return removed, nil
}

func (f *Forest) detach(n *node) {
	if n.parent == "" {
		f.roots = without(f.roots, n.id)
		return
	}
	p := f.nodes[n.parent]
	p.children = without(p.children, n.id)
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

// Renumber assigns fresh Left/Right/Depth values in one depth-first pass.
// Roots share a single numbering so top-level ranges are disjoint.
func (f *Forest) Renumber() {
	counter := int64(1)
	f.byLeft = f.byLeft[:0]
	var walk func(id string, depth int64)
	walk = func(id string, depth int64) {
		n := f.nodes[id]
		f.byLeft = append(f.byLeft, n)
		n.bounds.Left = counter
		n.bounds.Depth = depth
		counter++
		for _, c := range n.children {
			walk(c, depth+1)
		}
		n.bounds.Right = counter
		counter++
	}
	for _, r := range f.roots {
		walk(r, 0)
	}
}

// IsDescendant reports whether a lies strictly inside b's range.
func (f *Forest) IsDescendant(a, b string) bool {
	na, ok := f.nodes[a]
	if !ok {
		return false
	}
	nb, ok := f.nodes[b]
	if !ok {
		return false
	}
	return nb.bounds.Left < na.bounds.Left && na.bounds.Right < nb.bounds.Right
}

// Descendants returns every node below id in pre-order: the nodes whose Left
// falls inside id's range.
func (f *Forest) Descendants(id string) []string {
	n, ok := f.nodes[id]
	if !ok {
		return nil
	}
	var out []string
	for i := f.after(n.bounds.Left); i < len(f.byLeft) && f.byLeft[i].bounds.Left < n.bounds.Right; i++ {
		out = append(out, f.byLeft[i].id)
	}
	return out
}

// Ancestors returns the chain from the root down to id's parent: the nodes
// whose range encloses id's.
func (f *Forest) Ancestors(id string) []string {
	n, ok := f.nodes[id]
	if !ok {
		return nil
	}
	var chain []string
	for _, x := range f.byLeft[:f.after(n.bounds.Left-1)] {
		if x.bounds.Right > n.bounds.Right {
			chain = append(chain, x.id)
		}
	}
	return chain
}

// after returns the index of the first node whose Left is above left.
func (f *Forest) after(left int64) int {
	return sort.Search(len(f.byLeft), func(i int) bool { return f.byLeft[i].bounds.Left > left })
}

// IDs returns all node IDs in pre-order.
func (f *Forest) IDs() []string {
	out := make([]string, len(f.byLeft))
	for i, n := range f.byLeft {
		out[i] = n.id
	}
	return out
}

// Changed returns the nodes whose bounds differ from what was loaded,
// including nodes added in memory.
func (f *Forest) Changed() map[string]Bounds {
	out := make(map[string]Bounds)
	for id, n := range f.nodes {
		if !n.loaded || n.bounds != n.stored {
			out[id] = n.bounds
		}
	}
	return out
}

// Validate checks the nested-set invariants on the current bounds: each
// range is well formed, children lie strictly inside their parent in order
// without overlapping, depths follow the parent chain, and roots are disjoint.
func (f *Forest) Validate() error {
	check := func(siblings []string, lo, hi, depth int64) error {
		prevRight := lo
		for _, id := range siblings {
			b := f.nodes[id].bounds
			if b.Left >= b.Right {
				return fmt.Errorf("node %s: left %d not below right %d", id, b.Left, b.Right)
			}
			if b.Left <= prevRight {
				return fmt.Errorf("node %s: range [%d,%d] overlaps a sibling or parent bound %d", id, b.Left, b.Right, prevRight)
			}
			if hi > 0 && b.Right >= hi {
				return fmt.Errorf("node %s: range [%d,%d] escapes parent bound %d", id, b.Left, b.Right, hi)
			}
			if b.Depth != depth {
				return fmt.Errorf("node %s: depth %d, want %d", id, b.Depth, depth)
			}
			prevRight = b.Right
		}
		return nil
	}

	if err := check(f.roots, 0, 0, 0); err != nil {
		return err
	}
	for id, n := range f.nodes {
		if err := check(n.children, n.bounds.Left, n.bounds.Right, n.bounds.Depth+1); err != nil {
			return fmt.Errorf("under %s: %w", id, err)
		}
	}
	return nil
}
