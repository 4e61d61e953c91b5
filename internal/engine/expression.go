// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package engine

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/specialistvlad/formulagrid/internal/metrics"
)

// Range bounds a successfully evaluated value. Advisory ranges report a
// warning instead of an error when violated.
type Range struct {
	Min, Max     float64
	MinExclusive bool
	MaxExclusive bool
	Advisory     bool
}

func (r Range) contains(v float64) bool {
	if v < r.Min || (r.MinExclusive && v == r.Min) {
		return false
	}
	if v > r.Max || (r.MaxExclusive && v == r.Max) {
		return false
	}
	return true
}

func (r Range) String() string {
	lo, hi := "[", "]"
	if r.MinExclusive {
		lo = "("
	}
	if r.MaxExclusive {
		hi = ")"
	}
	return fmt.Sprintf("%s%s, %s%s", lo, formatValue(r.Min), formatValue(r.Max), hi)
}

// check returns the message for v, empty when v is in range.
func (r Range) check(v float64) string {
	if r.contains(v) {
		return ""
	}
	if r.Advisory {
		return fmt.Sprintf("%s%s is outside %s", msgAdvisory, formatValue(v), r)
	}
	return fmt.Sprintf("Out of range: %s is outside %s", formatValue(v), r)
}

// ExpressionOption configures a new Expression.
type ExpressionOption func(*Expression)

// WithDefault sets the value used while the definition is empty.
func WithDefault(v float64) ExpressionOption {
	return func(x *Expression) {
		x.hasDefault = true
		x.def = v
	}
}

// WithRange validates evaluated values against r.
func WithRange(r Range) ExpressionOption {
	return func(x *Expression) {
		rc := r
		x.rng = &rc
	}
}

// WithLabel names the expression in validation messages.
func WithLabel(label string) ExpressionOption {
	return func(x *Expression) { x.label = label }
}

// snapshot is the last published state, readable without the evaluation lock.
type snapshot struct {
	definition string
	isFormula  bool
	dirty      bool
	value      float64
	err        string
	references []string
}

// Expression is a reactive formula. Expressions owned by a Symbol feed its
// consumers; the others are leaf consumers such as a step's condition.
type Expression struct {
	engine *Engine
	owner  Scope
	symbol *Symbol
	label  string
	seq    uint64

	hasDefault bool
	def        float64
	rng        *Range

	// Guarded by the evaluation lock.
	definition   string
	isFormula    bool
	syntaxErr    bool
	value        float64
	err          string
	dirty        bool
	references   []string
	resolved     map[string]*Symbol // nil value: resolved to external data
	params       map[string]float64
	undefined    []string
	lostExternal map[string]struct{}
	surfaced     bool
	evaluating   bool
	released     bool

	snap atomic.Pointer[snapshot]
}

var exprSeq atomic.Uint64

// NewExpression creates a leaf formula authored by owner.
func (e *Engine) NewExpression(ctx context.Context, owner Scope, definition string, opts ...ExpressionOption) (*Expression, error) {
	release, err := e.acquire(ctx, "new expression")
	if err != nil {
		return nil, err
	}
	defer release()

	x := e.newExpressionLocked(owner, opts...)
	e.setDefinitionLocked(ctx, x, definition, true)
	return x, nil
}

func (e *Engine) newExpressionLocked(owner Scope, opts ...ExpressionOption) *Expression {
	x := &Expression{
		engine:       e,
		owner:        owner,
		seq:          exprSeq.Add(1),
		value:        math.NaN(),
		resolved:     make(map[string]*Symbol),
		lostExternal: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(x)
	}
	e.exprs[x] = struct{}{}
	return x
}

func (x *Expression) cloneOptions() []ExpressionOption {
	var opts []ExpressionOption
	if x.hasDefault {
		opts = append(opts, WithDefault(x.def))
	}
	if x.rng != nil {
		opts = append(opts, WithRange(*x.rng))
	}
	if x.label != "" {
		opts = append(opts, WithLabel(x.label))
	}
	return opts
}

// publish must be called with the evaluation lock held.
func (x *Expression) publish() {
	refs := make([]string, len(x.references))
	copy(refs, x.references)
	x.snap.Store(&snapshot{
		definition: x.definition,
		isFormula:  x.isFormula,
		dirty:      x.dirty,
		value:      x.valueLocked(),
		err:        x.engine.currentErrorLocked(x),
		references: refs,
	})
}

func (x *Expression) snapshot() snapshot {
	if s := x.snap.Load(); s != nil {
		return *s
	}
	return snapshot{value: math.NaN()}
}

// Owner returns the authoring entity.
func (x *Expression) Owner() Scope { return x.owner }

// Symbol returns the owning symbol, or nil for leaf expressions.
func (x *Expression) Symbol() *Symbol { return x.symbol }

// Label returns the name given with WithLabel.
func (x *Expression) Label() string { return x.label }

// Definition returns the raw formula text.
func (x *Expression) Definition() string { return x.snapshot().definition }

// IsFormula reports whether the definition is a formula rather than empty or
// a plain number.
func (x *Expression) IsFormula() bool { return x.snapshot().isFormula }

// IsDirty reports whether the expression waits for re-evaluation.
func (x *Expression) IsDirty() bool { return x.snapshot().dirty }

// References returns the free identifiers of the formula, sorted.
func (x *Expression) References() []string { return x.snapshot().references }

// SetDefinition replaces the formula text. Setting the current text again
// does nothing.
func (x *Expression) SetDefinition(ctx context.Context, text string) error {
	e := x.engine
	release, err := e.acquire(ctx, "set definition")
	if err != nil {
		return err
	}
	defer release()

	if x.released {
		return fmt.Errorf("set definition: %w", ErrReleased)
	}
	e.setDefinitionLocked(ctx, x, text, false)
	return nil
}

func (e *Engine) setDefinitionLocked(ctx context.Context, x *Expression, text string, force bool) {
	if !force && x.definition == text {
		return
	}
	defer x.publish()

	e.dropBindingsLocked(x)
	e.unindexLocked(x)
	x.definition = text
	x.references = nil
	x.err = ""
	x.syntaxErr = false
	x.surfaced = false
	x.lostExternal = make(map[string]struct{})

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		x.isFormula = false
		x.dirty = false
		x.value = math.NaN()
		if x.hasDefault {
			x.value = x.def
		}
		e.propagateLocked(ctx, x)
		return
	}

	if v, ok := parseNumber(trimmed); ok {
		x.isFormula = false
		x.dirty = false
		x.value = v
		if x.rng != nil {
			x.err = x.rng.check(v)
		}
		e.propagateLocked(ctx, x)
		return
	}

	x.isFormula = true
	x.dirty = true
	x.value = math.NaN()
	e.propagateLocked(ctx, x)

	refs, err := e.eval.FreeIdentifiers(trimmed)
	if err != nil {
		x.syntaxErr = true
		x.err = msgSyntaxError
		e.countOutcome(metrics.OutcomeSyntax)
		return
	}
	x.references = refs
	e.indexLocked(x)
	e.evaluateLocked(ctx, x, false)
}

// propagateLocked marks the consumers of x's symbol dirty.
func (e *Engine) propagateLocked(ctx context.Context, x *Expression) {
	if x.symbol != nil {
		e.markDirtyLocked(ctx, x.symbol)
	}
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Evaluate resolves the references and runs the formula. Failures are stored
// on the expression; the returned error only reports lock problems. With
// validateOnly set, references that stay undefined are reported by Error.
func (x *Expression) Evaluate(ctx context.Context, validateOnly bool) error {
	e := x.engine
	release, err := e.acquire(ctx, "evaluate")
	if err != nil {
		return err
	}
	defer release()

	e.evaluateLocked(ctx, x, validateOnly)
	return nil
}

// Value returns the current value, evaluating first when dirty. If the lock
// cannot be acquired the last published value is returned.
func (x *Expression) Value(ctx context.Context) float64 {
	e := x.engine
	release, err := e.acquire(ctx, "value")
	if err != nil {
		return x.snapshot().value
	}
	defer release()

	if x.dirty {
		e.evaluateLocked(ctx, x, false)
	}
	return x.valueLocked()
}

func (x *Expression) valueLocked() float64 {
	return x.value
}

// Error returns the current error message, empty when valid. Several
// problems are joined with "; ".
func (x *Expression) Error(ctx context.Context) string {
	e := x.engine
	release, err := e.acquire(ctx, "error")
	if err != nil {
		return x.snapshot().err
	}
	defer release()

	if x.dirty {
		e.evaluateLocked(ctx, x, false)
	}
	return e.currentErrorLocked(x)
}

// Severity classifies Error.
func (x *Expression) Severity(ctx context.Context) Severity {
	return Classify(x.Error(ctx))
}

// IsTrue applies the truthiness convention of conditions: no error, a
// defined value, and a value that does not render as "0".
func (x *Expression) IsTrue(ctx context.Context) bool {
	e := x.engine
	release, err := e.acquire(ctx, "is true")
	if err != nil {
		s := x.snapshot()
		return s.err == "" && truthy(s.value)
	}
	defer release()

	if x.dirty {
		e.evaluateLocked(ctx, x, false)
	}
	return e.currentErrorLocked(x) == "" && len(x.undefined) == 0 && truthy(x.value)
}

func truthy(v float64) bool {
	return !math.IsNaN(v) && formatValue(v) != "0"
}

// Attach re-binds the expression after the host moved its owner.
func (x *Expression) Attach(ctx context.Context) error {
	e := x.engine
	release, err := e.acquire(ctx, "attach expression")
	if err != nil {
		return err
	}
	defer release()

	if x.released {
		return fmt.Errorf("attach expression: %w", ErrReleased)
	}
	e.rebindLocked(ctx, x)
	return nil
}

func (e *Engine) rebindLocked(ctx context.Context, x *Expression) {
	e.dropBindingsLocked(x)
	if x.isFormula && !x.syntaxErr {
		x.dirty = true
		e.evaluateLocked(ctx, x, false)
	}
	x.publish()
}

// Clone copies the expression for a new owner.
func (x *Expression) Clone(ctx context.Context, owner Scope) (*Expression, error) {
	e := x.engine
	release, err := e.acquire(ctx, "clone expression")
	if err != nil {
		return nil, err
	}
	definition, opts := x.definition, x.cloneOptions()
	release()

	return e.NewExpression(ctx, owner, definition, opts...)
}

// Release detaches the expression from every symbol it consumes.
func (x *Expression) Release(ctx context.Context) error {
	if x.symbol != nil {
		return x.symbol.Release(ctx)
	}
	e := x.engine
	release, err := e.acquire(ctx, "release expression")
	if err != nil {
		return err
	}
	defer release()

	e.releaseExpressionLocked(x)
	return nil
}

func (e *Engine) releaseExpressionLocked(x *Expression) {
	if x.released {
		return
	}
	e.dropBindingsLocked(x)
	e.unindexLocked(x)
	delete(e.exprs, x)
	x.released = true
	x.dirty = false
	x.publish()
}

// dropBindingsLocked removes every resolution of x together with the
// matching consumer edges.
func (e *Engine) dropBindingsLocked(x *Expression) {
	for _, s := range x.resolved {
		if s != nil {
			delete(s.consumers, x)
		}
	}
	x.resolved = make(map[string]*Symbol)
	x.params = nil
	x.undefined = nil
}

func (e *Engine) indexLocked(x *Expression) {
	for _, ref := range x.references {
		set := e.refIndex[ref]
		if set == nil {
			set = make(map[*Expression]struct{})
			e.refIndex[ref] = set
		}
		set[x] = struct{}{}
	}
}

func (e *Engine) unindexLocked(x *Expression) {
	for _, ref := range x.references {
		if set := e.refIndex[ref]; set != nil {
			delete(set, x)
			if len(set) == 0 {
				delete(e.refIndex, ref)
			}
		}
	}
}

func (e *Engine) sortedExpressions() []*Expression {
	out := make([]*Expression, 0, len(e.exprs))
	for x := range e.exprs {
		out = append(out, x)
	}
	slices.SortFunc(out, bySeq)
	return out
}

func formatValue(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
