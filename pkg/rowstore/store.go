// Package rowstore is the canonical registry of row nodes. Nodes live in an
// arena keyed by id; the parent's Children slice is the only ownership edge
// and Parent is a back-reference, so the tree can be walked both ways without
// shared ownership.
package rowstore

import (
	"errors"
	"fmt"
	"sort"

	"github.com/vanderheijden86/gridrows/pkg/model"
)

var (
	// ErrCycle indicates that an attach would make a node its own ancestor.
	ErrCycle = errors.New("attach would create a cycle")

	// ErrAttached indicates that the node already has a parent.
	ErrAttached = errors.New("node is already attached")

	// ErrUnknownNode indicates that the node is not registered in the store.
	ErrUnknownNode = errors.New("node not in store")
)

// Store holds every live node, including the synthetic root.
type Store struct {
	root  *model.RowNode
	nodes map[string]*model.RowNode
}

// New returns an empty store with a fresh root.
func New() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Reset drops every node and installs a fresh root.
func (s *Store) Reset() {
	s.root = model.NewRoot()
	s.nodes = map[string]*model.RowNode{model.RootID: s.root}
}

// Root returns the synthetic root.
func (s *Store) Root() *model.RowNode {
	return s.root
}

// Get returns the node registered under id.
func (s *Store) Get(id string) (*model.RowNode, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Has reports whether id is registered.
func (s *Store) Has(id string) bool {
	_, ok := s.nodes[id]
	return ok
}

// Put registers n. An existing node with the same id is replaced.
func (s *Store) Put(n *model.RowNode) {
	s.nodes[n.ID] = n
}

// Delete unregisters id. It does not detach the node.
func (s *Store) Delete(id string) {
	if id == model.RootID {
		return
	}
	delete(s.nodes, id)
}

// Len returns the number of registered nodes, excluding the root.
func (s *Store) Len() int {
	return len(s.nodes) - 1
}

// IsAncestor reports whether anc is n itself or one of its ancestors. The walk
// carries a visited set so a corrupted parent chain cannot loop forever.
func (s *Store) IsAncestor(anc, n *model.RowNode) bool {
	visited := make(map[*model.RowNode]bool)
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == anc {
			return true
		}
		if visited[cur] {
			return false
		}
		visited[cur] = true
	}
	return false
}

// Attach makes child a child of parent, inserting it in SourceIndex order and
// updating the levels of the moved subtree.
func (s *Store) Attach(child, parent *model.RowNode) error {
	if child == nil || parent == nil {
		return ErrUnknownNode
	}
	if child.Parent != nil {
		return fmt.Errorf("attach %s: %w", child.ID, ErrAttached)
	}
	if s.IsAncestor(child, parent) {
		return fmt.Errorf("attach %s under %s: %w", child.ID, parent.ID, ErrCycle)
	}

	i := sort.Search(len(parent.Children), func(i int) bool {
		return parent.Children[i].SourceIndex > child.SourceIndex
	})
	parent.Children = append(parent.Children, nil)
	copy(parent.Children[i+1:], parent.Children[i:])
	parent.Children[i] = child
	child.Parent = parent
	if !parent.IsRoot() {
		parent.Group = true
	}
	setLevel(child, parent.Level+1)
	return nil
}

// Detach removes n from its parent's children. The node stays registered.
func (s *Store) Detach(n *model.RowNode) {
	p := n.Parent
	if p == nil {
		return
	}
	for i, c := range p.Children {
		if c == n {
			p.Children = append(p.Children[:i], p.Children[i+1:]...)
			break
		}
	}
	n.Parent = nil
	if len(p.Children) == 0 && !p.IsRoot() && !p.Filler {
		// A data node that lost its last child is a leaf again.
		p.Group = false
	}
}

// Lineage returns n and every ancestor up to and including the root.
func (s *Store) Lineage(n *model.RowNode) []*model.RowNode {
	var out []*model.RowNode
	for cur := n; cur != nil; cur = cur.Parent {
		out = append(out, cur)
	}
	return out
}

// Walk visits every node reachable from the root, depth first, parents
// before children. Returning false from fn skips the node's subtree.
func (s *Store) Walk(fn func(n *model.RowNode) bool) {
	var walk func(n *model.RowNode)
	walk = func(n *model.RowNode) {
		if !fn(n) {
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(s.root)
}

// Nodes returns every registered node except the root, in no particular order.
func (s *Store) Nodes() []*model.RowNode {
	out := make([]*model.RowNode, 0, len(s.nodes))
	for id, n := range s.nodes {
		if id != model.RootID {
			out = append(out, n)
		}
	}
	return out
}

func setLevel(n *model.RowNode, level int) {
	n.Level = level
	for _, c := range n.Children {
		setLevel(c, level+1)
	}
}
