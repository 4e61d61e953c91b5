// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package engine

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/specialistvlad/formulagrid/internal/extdata"
)

// Explain describes every reference of the expression: where it resolved and
// its current value or error, one reference per line.
func (x *Expression) Explain(ctx context.Context) (string, error) {
	e := x.engine
	release, err := e.acquire(ctx, "explain")
	if err != nil {
		return "", err
	}
	defer release()

	if x.dirty {
		e.evaluateLocked(ctx, x, false)
	}

	lines := make([]string, 0, len(x.references))
	for _, ref := range x.references {
		lines = append(lines, e.explainRefLocked(x, ref))
	}
	return strings.Join(lines, "\n"), nil
}

func (e *Engine) explainRefLocked(x *Expression, ref string) string {
	if s, ok := x.resolved[ref]; ok && s != nil {
		where := fmt.Sprintf("%s in %s", s.kind, scopeName(s.scope()))
		switch {
		case s.expr.err != "":
			return fmt.Sprintf("%s: %s (%s)", ref, s.expr.err, where)
		case math.IsNaN(s.expr.value):
			return fmt.Sprintf("%s: Undefined (%s)", ref, where)
		default:
			return fmt.Sprintf("%s = %s (%s)", ref, formatValue(s.expr.value), where)
		}
	}

	res := e.ns.Lookup(ref)
	switch res.Status {
	case extdata.Found:
		return fmt.Sprintf("%s = %s (%s)", ref, res.Entry.Display(), res.Entry.Source)
	case extdata.Ambiguous:
		return fmt.Sprintf("%s: Ambiguous (%s)", ref, strings.Join(res.Candidates, ", "))
	}
	if _, lost := x.lostExternal[ref]; lost {
		return fmt.Sprintf("%s: External data unavailable", ref)
	}
	return fmt.Sprintf("%s: Undefined", ref)
}
