// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package scopetree

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/specialistvlad/formulagrid/internal/ctxlog"
	"github.com/specialistvlad/formulagrid/internal/engine"
)

var (
	// ErrNotContainer is returned when a child is added below an item.
	ErrNotContainer = errors.New("parent is not a container")

	// ErrUnknownNode is returned for nodes that belong to another tree.
	ErrUnknownNode = errors.New("node not found in tree")

	// ErrCycle is returned when a move would put a node below itself.
	ErrCycle = errors.New("move would create a cycle")
)

// Kind distinguishes containers from leaf items.
type Kind int

const (
	Container Kind = iota
	Item
)

func (k Kind) String() string {
	if k == Item {
		return "item"
	}
	return "container"
}

// Node is a container or item. It implements engine.Scope.
type Node struct {
	tree *Tree
	id   uuid.UUID
	name string
	kind Kind
}

// ID returns the node's unique identity.
func (n *Node) ID() uuid.UUID { return n.id }

// Name returns the display name.
func (n *Node) Name() string { return n.name }

// Kind returns whether the node is a container or an item.
func (n *Node) Kind() Kind { return n.kind }

// Parent returns the containing node, or nil for the root and detached nodes.
func (n *Node) Parent() engine.Scope {
	n.tree.mu.RLock()
	defer n.tree.mu.RUnlock()
	if p := n.tree.parents[n.id]; p != nil {
		return p
	}
	return nil
}

func (n *Node) String() string { return n.tree.Path(n) }

// Tree stores nodes and their parent links using maps and a mutex for
// thread-safe concurrent access.
type Tree struct {
	mu       sync.RWMutex
	root     *Node
	nodes    map[uuid.UUID]*Node
	parents  map[uuid.UUID]*Node
	children map[uuid.UUID]map[uuid.UUID]struct{}
}

// New creates a tree holding only a root container.
func New(rootName string) *Tree {
	t := &Tree{
		nodes:    make(map[uuid.UUID]*Node),
		parents:  make(map[uuid.UUID]*Node),
		children: make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
	t.root = &Node{tree: t, id: uuid.New(), name: rootName, kind: Container}
	t.nodes[t.root.id] = t.root
	return t
}

// Root returns the root container.
func (t *Tree) Root() *Node { return t.root }

// AddContainer creates a container below parent.
func (t *Tree) AddContainer(ctx context.Context, parent *Node, name string) (*Node, error) {
	return t.add(ctx, parent, name, Container)
}

// AddItem creates an item below parent.
func (t *Tree) AddItem(ctx context.Context, parent *Node, name string) (*Node, error) {
	return t.add(ctx, parent, name, Item)
}

func (t *Tree) add(ctx context.Context, parent *Node, name string, kind Kind) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkParent(parent); err != nil {
		return nil, err
	}
	n := &Node{tree: t, id: uuid.New(), name: name, kind: kind}
	t.nodes[n.id] = n
	t.link(n, parent)

	ctxlog.FromContext(ctx).Debug("Node added to tree.", "name", name, "kind", kind, "parent", parent.name)
	return n, nil
}

// checkParent must be called with t.mu held.
func (t *Tree) checkParent(parent *Node) error {
	if parent == nil || t.nodes[parent.id] != parent {
		return ErrUnknownNode
	}
	if parent.kind != Container {
		return fmt.Errorf("%w: %q", ErrNotContainer, parent.name)
	}
	return nil
}

func (t *Tree) link(n, parent *Node) {
	t.parents[n.id] = parent
	if t.children[parent.id] == nil {
		t.children[parent.id] = make(map[uuid.UUID]struct{})
	}
	t.children[parent.id][n.id] = struct{}{}
}

func (t *Tree) unlink(n *Node) {
	if p := t.parents[n.id]; p != nil {
		delete(t.children[p.id], n.id)
		if len(t.children[p.id]) == 0 {
			delete(t.children, p.id)
		}
	}
	delete(t.parents, n.id)
}

// Remove detaches n and its subtree from its parent. The subtree keeps its
// internal links so it can be moved back later.
func (t *Tree) Remove(ctx context.Context, n *Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n == nil || t.nodes[n.id] != n {
		return ErrUnknownNode
	}
	if n == t.root {
		return errors.New("the root cannot be removed")
	}
	t.unlink(n)
	ctxlog.FromContext(ctx).Debug("Node removed from tree.", "name", n.name)
	return nil
}

// Move re-parents n below parent.
func (t *Tree) Move(ctx context.Context, n, parent *Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n == nil || t.nodes[n.id] != n {
		return ErrUnknownNode
	}
	if err := t.checkParent(parent); err != nil {
		return err
	}
	for p := parent; p != nil; p = t.parents[p.id] {
		if p == n {
			return fmt.Errorf("%w: %q below %q", ErrCycle, n.name, parent.name)
		}
	}
	t.unlink(n)
	t.link(n, parent)
	ctxlog.FromContext(ctx).Debug("Node moved.", "name", n.name, "parent", parent.name)
	return nil
}

// Children returns the direct children of n sorted by name.
func (t *Tree) Children(n *Node) []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Node, 0, len(t.children[n.id]))
	for id := range t.children[n.id] {
		out = append(out, t.nodes[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].name != out[j].name {
			return out[i].name < out[j].name
		}
		return out[i].id.String() < out[j].id.String()
	})
	return out
}

// Get retrieves a node by id.
func (t *Tree) Get(id uuid.UUID) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	return n, ok
}

// Path renders the names from the topmost ancestor down to n, joined by "/".
func (t *Tree) Path(n *Node) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var parts []string
	for p := n; p != nil; p = t.parents[p.id] {
		parts = append(parts, p.name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// ReachableFromRoot implements engine.Host.
func (t *Tree) ReachableFromRoot(s engine.Scope) bool {
	n, ok := s.(*Node)
	if !ok || n.tree != t {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for p := n; p != nil; p = t.parents[p.id] {
		if p == t.root {
			return true
		}
	}
	return false
}
