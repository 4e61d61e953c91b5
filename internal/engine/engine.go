// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/specialistvlad/formulagrid/internal/ctxlog"
	"github.com/specialistvlad/formulagrid/internal/extdata"
	"github.com/specialistvlad/formulagrid/internal/formula"
	"github.com/specialistvlad/formulagrid/internal/metrics"
	"github.com/specialistvlad/formulagrid/internal/tracing"
)

// DefaultLockTimeout bounds how long an operation waits for the evaluation lock.
const DefaultLockTimeout = time.Second

// WarningFunc receives user-facing warnings such as duplicate identifiers. It
// is called with the evaluation lock held and must not call back into the
// engine.
type WarningFunc func(ctx context.Context, message string)

// Engine owns every symbol table, the external data namespace binding and
// the evaluation lock.
type Engine struct {
	host        Host
	ns          *extdata.Namespace
	eval        *formula.Evaluator
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	lockTimeout time.Duration
	onWarning   WarningFunc

	sem *semaphore.Weighted

	// Guarded by sem.
	tables   map[Scope]*table
	global   *table
	pending  []*Symbol
	exprs    map[*Expression]struct{}
	refIndex map[string]map[*Expression]struct{}

	changesMu sync.Mutex
	changes   []extdata.Change

	unsubscribe func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithNamespace binds the engine to an existing external data namespace.
func WithNamespace(ns *extdata.Namespace) Option {
	return func(e *Engine) { e.ns = ns }
}

// WithEvaluator replaces the default formula evaluator.
func WithEvaluator(ev *formula.Evaluator) Option {
	return func(e *Engine) { e.eval = ev }
}

// WithMetrics makes the engine report into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLockTimeout sets the bounded wait of the evaluation lock.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) { e.lockTimeout = d }
}

// WithWarningFunc routes user-facing warnings to fn instead of the log.
func WithWarningFunc(fn WarningFunc) Option {
	return func(e *Engine) { e.onWarning = fn }
}

// New creates an engine for the scopes of host.
func New(host Host, opts ...Option) *Engine {
	if host == nil {
		panic("engine: host must not be nil")
	}
	e := &Engine{
		host:        host,
		lockTimeout: DefaultLockTimeout,
		sem:         semaphore.NewWeighted(1),
		tables:      make(map[Scope]*table),
		global:      newTable(GlobalScope),
		exprs:       make(map[*Expression]struct{}),
		refIndex:    make(map[string]map[*Expression]struct{}),
		tracer:      tracing.Tracer(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ns == nil {
		e.ns = extdata.New()
	}
	if e.eval == nil {
		e.eval = formula.New()
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	if e.lockTimeout <= 0 {
		e.lockTimeout = DefaultLockTimeout
	}
	e.unsubscribe = e.ns.Subscribe(e.queueChange)
	return e
}

// Namespace returns the external data namespace formulas resolve against.
func (e *Engine) Namespace() *extdata.Namespace {
	return e.ns
}

// Metrics returns the engine's collectors.
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

// Close stops listening to the external data namespace.
func (e *Engine) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}

func (e *Engine) logger(ctx context.Context) *slog.Logger {
	return ctxlog.FromContext(ctx)
}

func (e *Engine) warn(ctx context.Context, message string) {
	if e.onWarning != nil {
		e.onWarning(ctx, message)
		return
	}
	e.logger(ctx).Warn(message)
}

// acquire takes the evaluation lock, waiting at most the lock timeout.
// Queued external data changes are applied before it returns.
func (e *Engine) acquire(ctx context.Context, op string) (release func(), err error) {
	waitCtx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()

	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.metrics.LockTimeouts.Inc()
		e.logger(ctx).Warn("Evaluation lock not acquired, operation abandoned.", "operation", op, "timeout", e.lockTimeout)
		return nil, fmt.Errorf("%s: %w", op, ErrLockTimeout)
	}
	e.applyChangesLocked(ctx)
	return func() { e.sem.Release(1) }, nil
}

// Find resolves identifier the way a formula authored at start would, without
// falling back to external data.
func (e *Engine) Find(ctx context.Context, identifier string, start Scope) (*Symbol, error) {
	release, err := e.acquire(ctx, "find")
	if err != nil {
		return nil, err
	}
	defer release()

	if s := e.findLocked(ctx, identifier, start); s != nil {
		return s, nil
	}
	return nil, fmt.Errorf("%q: %w", identifier, ErrUnknownSymbol)
}

// MarkDirty marks every transitive consumer of s dirty.
func (e *Engine) MarkDirty(ctx context.Context, s *Symbol) error {
	release, err := e.acquire(ctx, "mark dirty")
	if err != nil {
		return err
	}
	defer release()

	e.markDirtyLocked(ctx, s)
	return nil
}

// Refresh evaluates every dirty expression and returns how many were
// evaluated. Pollers call it after publishing new telemetry.
func (e *Engine) Refresh(ctx context.Context) (int, error) {
	release, err := e.acquire(ctx, "refresh")
	if err != nil {
		return 0, err
	}
	defer release()

	n := 0
	for _, x := range e.sortedExpressions() {
		if x.dirty && x.isFormula {
			e.evaluateLocked(ctx, x, false)
			n++
		}
	}
	e.metrics.ExternalEntries.Set(float64(len(e.ns.Entries(true))))
	return n, nil
}

// Symbols lists the identifiers registered in scope, sorted. Pass GlobalScope
// for the global table.
func (e *Engine) Symbols(ctx context.Context, scope Scope) ([]string, error) {
	release, err := e.acquire(ctx, "list symbols")
	if err != nil {
		return nil, err
	}
	defer release()

	if scope == GlobalScope {
		e.pruneGlobalsLocked(ctx)
	}
	t := e.tableFor(scope, false)
	if t == nil {
		return []string{}, nil
	}
	return t.identifiers(), nil
}

// IsLockTimeout reports whether err was caused by a lock timeout.
func IsLockTimeout(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
