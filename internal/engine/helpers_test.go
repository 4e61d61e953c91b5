// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/formulagrid/internal/extdata"
	"github.com/specialistvlad/formulagrid/internal/testutil"
)

// testTree is a minimal host: nodes with parent pointers under one root.
type testTree struct {
	mu   sync.Mutex
	root *testNode
}

type testNode struct {
	tree   *testTree
	name   string
	parent *testNode
}

func newTestTree() *testTree {
	t := &testTree{}
	t.root = &testNode{tree: t, name: "Root"}
	return t
}

func (t *testTree) add(parent *testNode, name string) *testNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &testNode{tree: t, name: name, parent: parent}
}

func (t *testTree) remove(n *testNode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n.parent = nil
}

func (t *testTree) move(n, parent *testNode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n.parent = parent
}

func (t *testTree) ReachableFromRoot(s Scope) bool {
	n, ok := s.(*testNode)
	if !ok {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for ; n != nil; n = n.parent {
		if n == t.root {
			return true
		}
	}
	return false
}

func (n *testNode) Parent() Scope {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	if n.parent == nil {
		return nil
	}
	return n.parent
}

func (n *testNode) Name() string { return n.name }

type fixture struct {
	ctx      context.Context
	logs     *testutil.SafeBuffer
	tree     *testTree
	engine   *Engine
	ns       *extdata.Namespace
	warnings []string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx, logs := testutil.NewContext(t)
	f := &fixture{ctx: ctx, logs: logs, tree: newTestTree(), ns: extdata.New()}

	opts = append([]Option{
		WithNamespace(f.ns),
		WithWarningFunc(func(_ context.Context, msg string) {
			f.warnings = append(f.warnings, msg)
		}),
	}, opts...)
	f.engine = New(f.tree, opts...)
	t.Cleanup(f.engine.Close)
	return f
}

func (f *fixture) symbol(t *testing.T, owner *testNode, id string, kind Kind, def string) *Symbol {
	t.Helper()
	s, err := f.engine.NewSymbol(f.ctx, owner, id, kind, def)
	require.NoError(t, err)
	return s
}

func (f *fixture) formula(t *testing.T, owner *testNode, def string, opts ...ExpressionOption) *Expression {
	t.Helper()
	x, err := f.engine.NewExpression(f.ctx, owner, def, opts...)
	require.NoError(t, err)
	return x
}

// assertConsumerInvariant checks that consumer sets and resolutions mirror
// each other across the whole engine.
func assertConsumerInvariant(t *testing.T, e *Engine) {
	t.Helper()
	release, err := e.acquire(context.Background(), "invariant")
	require.NoError(t, err)
	defer release()

	var symbols []*Symbol
	for _, tbl := range e.tables {
		for _, s := range tbl.symbols {
			symbols = append(symbols, s)
		}
	}
	for _, s := range e.global.symbols {
		symbols = append(symbols, s)
	}
	for x := range e.exprs {
		if x.symbol != nil {
			symbols = append(symbols, x.symbol)
		}
	}

	for _, s := range symbols {
		for x := range s.consumers {
			found := false
			for _, r := range x.resolved {
				if r == s {
					found = true
				}
			}
			require.Truef(t, found, "consumer of %q does not resolve it", s.identifier)
		}
	}
	for x := range e.exprs {
		for ref, s := range x.resolved {
			if s == nil {
				continue
			}
			_, ok := s.consumers[x]
			require.Truef(t, ok, "resolution of %q is missing its consumer edge", ref)
		}
	}
}

// withinDeadline fails the test if fn does not return in time.
func withinDeadline(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("operation did not finish in time")
	}
}
