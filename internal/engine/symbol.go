// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/formulagrid/internal/formula"
)

// ErrInvalidIdentifier is returned for identifiers formulas could not reference.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// Kind is the flavour of a Symbol.
type Kind int

const (
	Variable Kind = iota
	Constant
	GlobalVariable
	GlobalConstant
)

func (k Kind) String() string {
	switch k {
	case Constant:
		return "Constant"
	case GlobalVariable:
		return "Global Variable"
	case GlobalConstant:
		return "Global Constant"
	default:
		return "Variable"
	}
}

// IsGlobal reports whether symbols of this kind live in the global table.
func (k Kind) IsGlobal() bool {
	return k == GlobalVariable || k == GlobalConstant
}

// IsConstant reports whether symbols of this kind refuse runtime assignment.
func (k Kind) IsConstant() bool {
	return k == Constant || k == GlobalConstant
}

// Symbol is a named value authored by a host entity. It owns one Expression.
type Symbol struct {
	engine *Engine
	owner  Scope
	kind   Kind
	expr   *Expression

	// Guarded by the evaluation lock.
	consumers map[*Expression]struct{}
	released  bool

	// Written with both the evaluation lock and mu held.
	mu           sync.RWMutex
	identifier   string
	registeredIn *table
	duplicate    bool
}

// NewSymbol creates a symbol authored by owner and registers it. A
// *DuplicateIdentifierError is returned together with the symbol when the
// identifier is taken; the symbol then reports IsDuplicate until promoted.
func (e *Engine) NewSymbol(ctx context.Context, owner Scope, identifier string, kind Kind, definition string, opts ...ExpressionOption) (*Symbol, error) {
	if owner == nil {
		return nil, errors.New("symbol owner cannot be nil")
	}
	if !formula.ValidName(identifier) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentifier, identifier)
	}

	release, err := e.acquire(ctx, "new symbol")
	if err != nil {
		return nil, err
	}
	defer release()

	s := &Symbol{
		engine:     e,
		owner:      owner,
		kind:       kind,
		identifier: identifier,
		consumers:  make(map[*Expression]struct{}),
	}
	s.expr = e.newExpressionLocked(owner, opts...)
	s.expr.symbol = s

	var regErr error
	if kind.IsGlobal() || e.reachable(owner) {
		regErr = e.registerLocked(ctx, s)
	}
	e.setDefinitionLocked(ctx, s.expr, definition, true)
	return s, regErr
}

// scope is the scope whose table s belongs in.
func (s *Symbol) scope() Scope {
	if s.kind.IsGlobal() {
		return GlobalScope
	}
	if p := s.owner.Parent(); p != nil {
		return p
	}
	return s.owner
}

func (s *Symbol) setRegistration(t *table, duplicate bool) {
	s.mu.Lock()
	s.registeredIn = t
	s.duplicate = duplicate
	s.mu.Unlock()
}

// Identifier returns the symbol's current name.
func (s *Symbol) Identifier() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identifier
}

// Kind returns the symbol's kind.
func (s *Symbol) Kind() Kind { return s.kind }

// Owner returns the authoring entity.
func (s *Symbol) Owner() Scope { return s.owner }

// Expression returns the symbol's expression.
func (s *Symbol) Expression() *Expression { return s.expr }

// IsDuplicate reports whether the last registration attempt was rejected.
func (s *Symbol) IsDuplicate() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.duplicate
}

// IsRegistered reports whether the symbol currently resolves from its scope.
func (s *Symbol) IsRegistered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registeredIn != nil
}

// Attach re-registers the symbol after the host moved its owner. Moving the
// owner out of the tree counts as deletion.
func (s *Symbol) Attach(ctx context.Context) error {
	e := s.engine
	release, err := e.acquire(ctx, "attach")
	if err != nil {
		return err
	}
	defer release()

	if s.released {
		return fmt.Errorf("attach %q: %w", s.identifier, ErrReleased)
	}

	if !s.kind.IsGlobal() && !e.reachable(s.owner) {
		e.unregisterLocked(ctx, s, true)
		e.removePending(s)
		s.setRegistration(nil, false)
		e.markDirtyLocked(ctx, s)
		return nil
	}

	scope := s.scope()
	if s.registeredIn != nil && s.registeredIn.scope == scope {
		e.rebindLocked(ctx, s.expr)
		return nil
	}
	if s.registeredIn != nil {
		e.unregisterLocked(ctx, s, true)
	}
	regErr := e.registerLocked(ctx, s)
	e.rebindLocked(ctx, s.expr)
	return regErr
}

// Detach removes the symbol from its table and marks its consumers dirty.
func (s *Symbol) Detach(ctx context.Context) error {
	e := s.engine
	release, err := e.acquire(ctx, "detach")
	if err != nil {
		return err
	}
	defer release()

	e.unregisterLocked(ctx, s, true)
	e.removePending(s)
	s.setRegistration(nil, false)
	return nil
}

// Rename changes the identifier, moving the table entry in one step. A
// collision under the new name follows the duplicate policy.
func (s *Symbol) Rename(ctx context.Context, identifier string) error {
	if !formula.ValidName(identifier) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, identifier)
	}

	e := s.engine
	release, err := e.acquire(ctx, "rename")
	if err != nil {
		return err
	}
	defer release()

	if s.released {
		return fmt.Errorf("rename %q: %w", s.identifier, ErrReleased)
	}
	if s.identifier == identifier {
		return nil
	}

	e.unregisterLocked(ctx, s, true)
	e.removePending(s)

	s.mu.Lock()
	s.identifier = identifier
	s.duplicate = false
	s.mu.Unlock()

	if !s.kind.IsGlobal() && !e.reachable(s.owner) {
		return nil
	}
	return e.registerLocked(ctx, s)
}

// Clone creates a copy of the symbol authored by owner. The copy's expression
// is bound afresh since resolution depends on position.
func (s *Symbol) Clone(ctx context.Context, owner Scope) (*Symbol, error) {
	e := s.engine
	release, err := e.acquire(ctx, "clone")
	if err != nil {
		return nil, err
	}
	identifier, definition, opts := s.identifier, s.expr.definition, s.expr.cloneOptions()
	release()

	return e.NewSymbol(ctx, owner, identifier, s.kind, definition, opts...)
}

// Assign pins a variable to v, as when an automation step sets it at runtime.
func (s *Symbol) Assign(ctx context.Context, v float64) error {
	if s.kind.IsConstant() {
		return fmt.Errorf("assign %q: %w", s.Identifier(), ErrConstantAssignment)
	}
	return s.expr.SetDefinition(ctx, formatValue(v))
}

// Release unregisters the symbol and destroys its expression.
func (s *Symbol) Release(ctx context.Context) error {
	e := s.engine
	release, err := e.acquire(ctx, "release symbol")
	if err != nil {
		return err
	}
	defer release()

	if s.released {
		return nil
	}
	e.unregisterLocked(ctx, s, true)
	e.removePending(s)
	s.setRegistration(nil, false)
	e.releaseExpressionLocked(s.expr)
	s.released = true
	return nil
}
