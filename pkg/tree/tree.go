// copyright 2021 - 2023 matrix origin
//
// licensed under the apache license, version 2.0 (the "license");
// you may not use this file except in compliance with the license.
// you may obtain a copy of the license at
//
//      http://www.apache.org/licenses/license-2.0
//
// unless required by applicable law or agreed to in writing, software
// distributed under the license is distributed on an "as is" basis,
// without warranties or conditions of any kind, either express or implied.
// see the license for the specific language governing permissions and
// limitations under the license.

// Package tree implements a hierarchy in which parents own their children
// through strong handles and children point back at their parent through
// weak ones.
//
// Removing a child from its parent does not destroy it if somebody else
// still holds a strong handle to it: the child is then detached, reports
// no parent and no tree, and keeps its own subtree until the last handle
// is dropped.
package tree

import (
	"errors"
	"fmt"
	"strings"

	"ownership_experiment/pkg/rc"
)

// ErrChildIndex is returned by Child for an index out of range.
var ErrChildIndex = errors.New("tree: child index out of range")

// Tree owns a root node named "root".
type Tree struct {
	root   *rc.Strong[Node]
	closed bool
}

// Node is the payload of a tree cell. Nodes are only ever created by
// NewIn and CreateChild.
type Node struct {
	heap     *rc.Heap
	self     rc.Weak[Node]
	tree     *Tree
	parent   rc.Weak[Node]
	children []*rc.Strong[Node]
	name     string
}

func New() *Tree {
	return NewIn(rc.Default())
}

// NewIn creates a tree whose nodes live in h.
func NewIn(h *rc.Heap) *Tree {
	t := &Tree{}
	t.root = newNode(h, t, rc.Weak[Node]{}, "root")
	return t
}

func newNode(h *rc.Heap, t *Tree, parent rc.Weak[Node], name string) *rc.Strong[Node] {
	s := rc.NewIn(h, Node{heap: h, tree: t, parent: parent, name: name})
	s.Get().self = s.Weak()
	return s
}

// Root returns a new strong handle to the root, or nil once the tree is
// closed. The handle keeps the root and its subtree alive after Close.
func (t *Tree) Root() *rc.Strong[Node] {
	if t.closed {
		return nil
	}
	return t.root.Clone()
}

// RootWeak returns a weak handle to the root.
func (t *Tree) RootWeak() rc.Weak[Node] {
	if t.closed {
		return rc.Weak[Node]{}
	}
	return t.root.Weak()
}

// Close gives up the tree's ownership of its root. Nodes no longer report
// a tree afterwards. Calling Close more than once is a no-op.
func (t *Tree) Close() {
	if t.closed {
		return
	}
	t.closed = true
	root := t.root
	t.root = nil
	root.Drop()
}

func (n *Node) Name() string {
	return n.name
}

func (n *Node) SetName(name string) {
	n.name = name
}

// Self returns a weak handle to n.
func (n *Node) Self() rc.Weak[Node] {
	return n.self
}

// Tree returns the tree n belongs to, or nil if n was detached or its
// tree closed.
func (n *Node) Tree() *Tree {
	if n.tree == nil || n.tree.closed {
		return nil
	}
	return n.tree
}

// Parent returns the parent of n, or false for a root or a detached node.
func (n *Node) Parent() (rc.Weak[Node], bool) {
	if n.parent.Expired() {
		return rc.Weak[Node]{}, false
	}
	return n.parent, true
}

func (n *Node) NumChildren() int {
	return len(n.children)
}

// Child returns a weak handle to the i-th child.
func (n *Node) Child(i int) (rc.Weak[Node], error) {
	if i < 0 || i >= len(n.children) {
		return rc.Weak[Node]{}, fmt.Errorf("%w: %d (have %d)", ErrChildIndex, i, len(n.children))
	}
	return n.children[i].Weak(), nil
}

func (n *Node) Children() []rc.Weak[Node] {
	out := make([]rc.Weak[Node], len(n.children))
	for i, c := range n.children {
		out[i] = c.Weak()
	}
	return out
}

// CreateChild appends a child named name. The parent keeps its own strong
// handle; the returned one belongs to the caller, who must drop it. While
// the caller holds it the child survives ClearChildren.
func (n *Node) CreateChild(name string) *rc.Strong[Node] {
	child := newNode(n.heap, n.Tree(), n.self, name)
	n.children = append(n.children, child.Clone())
	return child
}

// ClearChildren detaches every child at once, then drops the parent's
// handles. Children nobody else holds are destroyed along with their
// subtrees.
func (n *Node) ClearChildren() {
	children := n.release()
	stack := make([]*Node, 0, len(children))
	for _, c := range children {
		stack = append(stack, c.Get())
	}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node.tree = nil
		for _, c := range node.children {
			stack = append(stack, c.Get())
		}
	}
	for _, c := range children {
		c.Drop()
	}
}

// release empties n.children and unlinks each child from n.
func (n *Node) release() []*rc.Strong[Node] {
	children := n.children
	n.children = nil
	for _, c := range children {
		c.Get().parent = rc.Weak[Node]{}
	}
	return children
}

// Dispose runs when the node's cell is destroyed. Its subtree can only
// still belong to a tree if that tree is closed, so tree links are left
// alone.
func (n *Node) Dispose() error {
	for _, c := range n.release() {
		c.Drop()
	}
	return nil
}

// Path returns the names from the topmost reachable ancestor down to n,
// joined by "/".
func (n *Node) Path() string {
	names := []string{n.name}
	for p := n.parent; ; {
		pn, err := p.Get()
		if err != nil {
			break
		}
		names = append(names, pn.name)
		p = pn.parent
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, "/")
}

// Walk calls fn for n and its descendants, depth first, parents before
// children.
func (n *Node) Walk(fn func(depth int, node *Node)) {
	type entry struct {
		depth int
		node  *Node
	}
	stack := []entry{{0, n}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(e.depth, e.node)
		for i := len(e.node.children) - 1; i >= 0; i-- {
			stack = append(stack, entry{e.depth + 1, e.node.children[i].Get()})
		}
	}
}
