// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package engine

import (
	"context"
	"sort"
)

// table maps identifiers to the symbols registered in one scope.
type table struct {
	scope   Scope
	symbols map[string]*Symbol
}

func newTable(scope Scope) *table {
	return &table{scope: scope, symbols: make(map[string]*Symbol)}
}

func (t *table) identifiers() []string {
	out := make([]string, 0, len(t.symbols))
	for id := range t.symbols {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// tableFor must be called with the engine lock held.
func (e *Engine) tableFor(scope Scope, create bool) *table {
	if scope == GlobalScope {
		return e.global
	}
	t := e.tables[scope]
	if t == nil && create {
		t = newTable(scope)
		e.tables[scope] = t
	}
	return t
}

// reachable reports whether scope is attached to the host's root. The global
// pseudo-scope is always reachable.
func (e *Engine) reachable(scope Scope) bool {
	if scope == nil {
		return false
	}
	if scope == GlobalScope {
		return true
	}
	return e.host.ReachableFromRoot(scope)
}

// registerLocked inserts s into the table of its scope. A reachable holder of
// the identifier blocks the registration; an orphaned one is superseded.
func (e *Engine) registerLocked(ctx context.Context, s *Symbol) error {
	scope := s.scope()
	t := e.tableFor(scope, true)

	if existing, ok := t.symbols[s.identifier]; ok && existing != s {
		if e.reachable(existing.owner) {
			s.setRegistration(nil, true)
			e.addPending(s)
			e.metrics.DuplicateSymbols.Inc()
			err := &DuplicateIdentifierError{Identifier: s.identifier, Scope: scopeName(scope)}
			e.warn(ctx, err.Error())
			return err
		}
		e.logger(ctx).Debug("Superseding orphaned symbol.", "identifier", s.identifier, "scope", scopeName(scope))
		e.unregisterLocked(ctx, existing, false)
	}

	t.symbols[s.identifier] = s
	s.setRegistration(t, false)
	e.removePending(s)
	e.logger(ctx).Debug("Symbol registered.", "identifier", s.identifier, "kind", s.kind, "scope", scopeName(scope))

	// A new symbol may shadow whatever the identifier resolved to before.
	e.invalidateTokenLocked(ctx, s.identifier)
	return nil
}

// unregisterLocked removes s from its table and marks its consumers dirty.
// When promote is set, the oldest pending duplicate of the same key takes
// the freed slot.
func (e *Engine) unregisterLocked(ctx context.Context, s *Symbol, promote bool) {
	t := s.registeredIn
	if t == nil {
		e.removePending(s)
		return
	}
	if t.symbols[s.identifier] == s {
		delete(t.symbols, s.identifier)
	}
	s.setRegistration(nil, false)
	if len(t.symbols) == 0 && t != e.global {
		delete(e.tables, t.scope)
	}
	e.logger(ctx).Debug("Symbol unregistered.", "identifier", s.identifier, "scope", scopeName(t.scope))

	e.markDirtyLocked(ctx, s)
	e.invalidateTokenLocked(ctx, s.identifier)

	if promote {
		e.promoteLocked(ctx, t.scope, s.identifier)
	}
}

func (e *Engine) addPending(s *Symbol) {
	for _, p := range e.pending {
		if p == s {
			return
		}
	}
	e.pending = append(e.pending, s)
}

func (e *Engine) removePending(s *Symbol) {
	for i, p := range e.pending {
		if p == s {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return
		}
	}
}

// promoteLocked registers the first pending duplicate waiting for the
// identifier in scope.
func (e *Engine) promoteLocked(ctx context.Context, scope Scope, identifier string) {
	for _, p := range e.pending {
		if p.identifier != identifier || p.scope() != scope {
			continue
		}
		if !e.reachable(p.owner) {
			continue
		}
		if err := e.registerLocked(ctx, p); err == nil {
			e.logger(ctx).Info("Duplicate symbol promoted.", "identifier", identifier, "scope", scopeName(scope))
			e.markDirtyLocked(ctx, p)
		}
		return
	}
}

// pruneGlobalsLocked drops global symbols whose owner left the tree.
func (e *Engine) pruneGlobalsLocked(ctx context.Context) {
	for _, id := range e.global.identifiers() {
		s := e.global.symbols[id]
		if e.reachable(s.owner) {
			continue
		}
		e.logger(ctx).Debug("Pruning orphaned global symbol.", "identifier", id)
		e.unregisterLocked(ctx, s, true)
	}
}

// findLocked resolves identifier starting at scope start.
func (e *Engine) findLocked(ctx context.Context, identifier string, start Scope) *Symbol {
	for sc := start; sc != nil && sc != GlobalScope; sc = sc.Parent() {
		t := e.tables[sc]
		if t == nil {
			continue
		}
		if s, ok := t.symbols[identifier]; ok && e.reachable(s.owner) {
			return s
		}
	}
	e.pruneGlobalsLocked(ctx)
	if s, ok := e.global.symbols[identifier]; ok {
		return s
	}
	return nil
}
