// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/specialistvlad/formulagrid/internal/extdata"
	"github.com/specialistvlad/formulagrid/internal/formula"
	"github.com/specialistvlad/formulagrid/internal/metrics"
	"github.com/specialistvlad/formulagrid/internal/tracing/traceattrs"
)

// evaluateLocked runs one evaluation of x. Dirty symbols x references are
// pulled first. The evaluating flag stops reference cycles from recursing.
func (e *Engine) evaluateLocked(ctx context.Context, x *Expression, validateOnly bool) {
	if x.released || !x.isFormula || x.syntaxErr || strings.TrimSpace(x.definition) == "" {
		return
	}
	if validateOnly {
		x.surfaced = true
	}
	if !e.reachable(x.owner) || x.evaluating {
		x.publish()
		return
	}
	x.evaluating = true
	defer func() {
		x.evaluating = false
		x.publish()
	}()

	for _, ref := range x.references {
		if s := e.findLocked(ctx, ref, x.owner); s != nil && s.expr.dirty {
			e.evaluateLocked(ctx, s.expr, validateOnly)
		}
	}

	params := make(map[string]float64, len(x.references))
	var undefined, ambiguous []string
	for _, ref := range x.references {
		s, bound := x.resolved[ref]
		if !bound {
			if s = e.findLocked(ctx, ref, x.owner); s != nil {
				x.resolved[ref] = s
				s.consumers[x] = struct{}{}
			}
		}
		if s != nil {
			if s.expr.err == "" && !math.IsNaN(s.expr.value) {
				params[ref] = s.expr.value
			} else {
				undefined = append(undefined, ref)
			}
			continue
		}

		res := e.ns.Lookup(ref)
		switch res.Status {
		case extdata.Found:
			v, ok := res.Entry.Float()
			if !ok {
				undefined = append(undefined, ref)
				continue
			}
			x.resolved[ref] = nil
			delete(x.lostExternal, ref)
			params[ref] = v
		case extdata.Ambiguous:
			delete(x.resolved, ref)
			ambiguous = append(ambiguous, fmt.Sprintf("%s%s (%s)", msgAmbiguous, ref, strings.Join(res.Candidates, ", ")))
		default:
			if bound {
				delete(x.resolved, ref)
				x.lostExternal[ref] = struct{}{}
			}
			undefined = append(undefined, ref)
		}
	}
	x.params = params

	if len(ambiguous) > 0 {
		x.undefined = nil
		x.err = joinMessages(ambiguous)
		e.countOutcome(metrics.OutcomeAmbiguous)
		return
	}
	if len(params) != len(x.references) {
		x.undefined = undefined
		x.err = ""
		e.countOutcome(metrics.OutcomeDeferred)
		return
	}
	x.undefined = nil

	attrs := []trace.SpanStartOption{trace.WithAttributes(
		traceattrs.FormulaDefinition(x.definition),
		traceattrs.ScopeName(scopeName(x.owner)),
		traceattrs.ValidateOnly(validateOnly),
	)}
	if x.symbol != nil {
		attrs = append(attrs, trace.WithAttributes(traceattrs.SymbolIdentifier(x.symbol.identifier)))
	}
	ctx, span := e.tracer.Start(ctx, "engine.evaluate", attrs...)
	defer span.End()

	start := time.Now()
	res, err := e.eval.Evaluate(x.definition, params)
	e.metrics.EvaluationDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		var undef *formula.UndefinedParameterError
		outcome := metrics.OutcomeSyntax
		switch {
		case errors.As(err, &undef):
			x.err = msgUndefined + undef.Name
			outcome = metrics.OutcomeUndefined
		case errors.Is(err, formula.ErrSyntax), errors.Is(err, formula.ErrEvaluation):
			x.err = msgSyntaxError
		default:
			x.err = msgUnknownError
			outcome = metrics.OutcomeUnknown
			e.logger(ctx).Error("Formula evaluation failed unexpectedly.", "definition", x.definition, "error", err)
		}
		span.SetStatus(codes.Error, x.err)
		span.SetAttributes(traceattrs.EvaluationOutcome(outcome))
		e.countOutcome(outcome)
		return
	}

	old := x.value
	x.value = res.Value
	x.err = ""
	outcome := metrics.OutcomeOK
	if x.rng != nil {
		if x.err = x.rng.check(res.Value); x.err != "" {
			outcome = metrics.OutcomeRange
		}
	}
	x.dirty = false
	span.SetAttributes(traceattrs.EvaluationOutcome(outcome))
	e.countOutcome(outcome)

	if x.symbol != nil && !sameFloat(old, x.value) {
		e.markDirtyLocked(ctx, x.symbol)
	}
}

// currentErrorLocked builds the user-facing error of x. Undefined references
// are reported only after validation was requested, except for external data
// that disappeared.
func (e *Engine) currentErrorLocked(x *Expression) string {
	if x.err != "" {
		return x.err
	}
	if x.released || !x.isFormula {
		return ""
	}
	if math.IsNaN(x.value) && !e.reachable(x.owner) {
		return msgNotEvaluated
	}
	var parts []string
	for _, ref := range x.undefined {
		if _, lost := x.lostExternal[ref]; lost {
			parts = append(parts, msgExternalMissing+ref)
			continue
		}
		if x.surfaced {
			parts = append(parts, msgUndefined+ref)
		}
	}
	return joinMessages(parts)
}

func (e *Engine) countOutcome(outcome string) {
	e.metrics.Evaluations.WithLabelValues(outcome).Inc()
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b
}
