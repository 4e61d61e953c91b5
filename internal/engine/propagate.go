// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package engine

import (
	"cmp"
	"context"
	"slices"
)

// markDirtyLocked marks every transitive consumer of root dirty and unbinds
// it from the symbol it consumed, so the next evaluation resolves again. The
// visited list ends the walk on reference cycles.
func (e *Engine) markDirtyLocked(ctx context.Context, root *Symbol) {
	if root == nil {
		return
	}
	visited := []*Symbol{root}
	queue := []*Symbol{root}
	marked := 0

	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]

		consumers := make([]*Expression, 0, len(s.consumers))
		for x := range s.consumers {
			consumers = append(consumers, x)
		}
		slices.SortFunc(consumers, bySeq)

		for _, x := range consumers {
			for ref, r := range x.resolved {
				if r == s {
					delete(x.resolved, ref)
				}
			}
			delete(s.consumers, x)
			x.dirty = true
			x.publish()
			marked++

			if x.symbol != nil && !slices.Contains(visited, x.symbol) {
				visited = append(visited, x.symbol)
				queue = append(queue, x.symbol)
			}
		}
	}

	if marked > 0 {
		e.metrics.DirtyMarks.Add(float64(marked))
		e.logger(ctx).Debug("Marked consumers dirty.", "symbol", root.identifier, "expressions", marked, "symbols", len(visited))
	}
}

// invalidateTokenLocked unbinds every expression referencing token, e.g. when
// a symbol of that name appears and may shadow the previous resolution.
func (e *Engine) invalidateTokenLocked(ctx context.Context, token string) {
	for _, x := range e.referencing(token) {
		if s, ok := x.resolved[token]; ok {
			if s != nil {
				delete(s.consumers, x)
			}
			delete(x.resolved, token)
		}
		e.dirtyLocked(ctx, x)
	}
}

// dirtyLocked marks x dirty and propagates to its symbol's consumers.
func (e *Engine) dirtyLocked(ctx context.Context, x *Expression) {
	if !x.isFormula || x.released {
		return
	}
	x.dirty = true
	x.publish()
	if x.symbol != nil {
		e.markDirtyLocked(ctx, x.symbol)
	}
}

// referencing lists the live expressions whose formula mentions token.
func (e *Engine) referencing(token string) []*Expression {
	set := e.refIndex[token]
	out := make([]*Expression, 0, len(set))
	for x := range set {
		out = append(out, x)
	}
	slices.SortFunc(out, bySeq)
	return out
}

func bySeq(a, b *Expression) int {
	return cmp.Compare(a.seq, b.seq)
}
