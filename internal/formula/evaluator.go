// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package formula

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
)

// Result is the outcome of a successful evaluation.
type Result struct {
	Value  float64
	IsBool bool
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithFunctions adds (or replaces) functions in the evaluator's function table.
func WithFunctions(funcs map[string]function.Function) Option {
	return func(e *Evaluator) {
		for name, fn := range funcs {
			e.functions[name] = fn
		}
	}
}

// WithClock overrides the time source used by `now()`.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// WithLocation sets the location used by the time decomposition functions.
func WithLocation(loc *time.Location) Option {
	return func(e *Evaluator) { e.loc = loc }
}

// Evaluator parses and evaluates formulas. Parsed expressions are cached by
// their source text.
type Evaluator struct {
	mu     sync.RWMutex
	parsed map[string]hclsyntax.Expression

	functions map[string]function.Function
	now       func() time.Time
	loc       *time.Location
}

// New creates an Evaluator with the built-in function table.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		parsed:    make(map[string]hclsyntax.Expression),
		functions: make(map[string]function.Function),
		now:       time.Now,
		loc:       time.Local,
	}

	// Clock and location must be known before the builtins close over them.
	for _, opt := range opts {
		opt(e)
	}
	builtins := builtinFunctions(e.now, e.loc)
	for name, fn := range builtins {
		if _, overridden := e.functions[name]; !overridden {
			e.functions[name] = fn
		}
	}
	return e
}

// parse returns the cached syntax tree for text, parsing it on first use.
func (e *Evaluator) parse(text string) (hclsyntax.Expression, error) {
	e.mu.RLock()
	expr, ok := e.parsed[text]
	e.mu.RUnlock()
	if ok {
		return expr, nil
	}

	expr, diags := hclsyntax.ParseExpression([]byte(spaceHyphens(text)), "formula", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrSyntax, diags.Error())
	}

	e.mu.Lock()
	e.parsed[text] = expr
	e.mu.Unlock()
	return expr, nil
}

// FreeIdentifiers parses text and returns the sorted root names it references.
func (e *Evaluator) FreeIdentifiers(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	expr, err := e.parse(text)
	if err != nil {
		return nil, err
	}
	return rootNames(expr), nil
}

// CalledFunctions returns the sorted names of the functions text calls.
func (e *Evaluator) CalledFunctions(text string) ([]string, error) {
	expr, err := e.parse(text)
	if err != nil {
		return nil, err
	}
	return calledFunctions(expr), nil
}

// Evaluate computes text with the given parameters. Every free identifier must
// be present in params, otherwise an *UndefinedParameterError is returned.
func (e *Evaluator) Evaluate(text string, params map[string]float64) (res Result, err error) {
	expr, err := e.parse(text)
	if err != nil {
		return Result{}, err
	}

	for _, name := range rootNames(expr) {
		if _, ok := params[name]; !ok {
			return Result{}, &UndefinedParameterError{Name: name}
		}
	}

	// Function implementations are third-party code; a panic must not take
	// the caller's goroutine down with it.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("formula: evaluator panicked on %q: %v", text, r)
		}
	}()

	vars := make(map[string]cty.Value, len(params))
	for name, v := range params {
		vars[name] = cty.NumberFloatVal(v)
	}
	evalCtx := &hcl.EvalContext{
		Variables: vars,
		Functions: e.functions,
	}

	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return Result{}, fmt.Errorf("%w: %s", ErrEvaluation, diags.Error())
	}
	return toResult(val)
}

// toResult converts a cty value into a numeric Result.
func toResult(val cty.Value) (Result, error) {
	if val.IsNull() || !val.IsWhollyKnown() {
		return Result{}, fmt.Errorf("formula: result is null or unknown")
	}

	switch {
	case val.Type() == cty.Bool:
		if val.True() {
			return Result{Value: 1, IsBool: true}, nil
		}
		return Result{Value: 0, IsBool: true}, nil
	case val.Type() == cty.Number:
		f, _ := val.AsBigFloat().Float64()
		return Result{Value: f}, nil
	}

	num, err := convert.Convert(val, cty.Number)
	if err != nil {
		return Result{}, fmt.Errorf("formula: result of type %s is not numeric", val.Type().FriendlyName())
	}
	f, _ := num.AsBigFloat().Float64()
	if math.IsNaN(f) {
		return Result{}, fmt.Errorf("formula: result is not a number")
	}
	return Result{Value: f}, nil
}
