// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package engine

// Scope is a node of the host's container tree. Implementations must be
// comparable, since scopes key the symbol tables.
type Scope interface {
	Parent() Scope
	Name() string
}

// Host answers structural questions about the tree the engine's scopes live in.
type Host interface {
	ReachableFromRoot(Scope) bool
}

type globalScope struct{}

func (globalScope) Parent() Scope { return nil }
func (globalScope) Name() string  { return "Global" }

// GlobalScope is the pseudo-scope of the global table.
var GlobalScope Scope = globalScope{}

// HostFunc adapts a function to the Host interface.
type HostFunc func(Scope) bool

func (f HostFunc) ReachableFromRoot(s Scope) bool { return f(s) }

func scopeName(s Scope) string {
	if s == nil {
		return "<detached>"
	}
	return s.Name()
}
