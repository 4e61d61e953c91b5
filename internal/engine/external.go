// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package engine

import (
	"context"

	"github.com/specialistvlad/formulagrid/internal/extdata"
)

// queueChange records a namespace change. Providers publish from their own
// goroutines, so changes are applied the next time the lock is taken rather
// than blocking the provider.
func (e *Engine) queueChange(c extdata.Change) {
	e.changesMu.Lock()
	e.changes = append(e.changes, c)
	e.changesMu.Unlock()
}

// applyChangesLocked invalidates the expressions bound to changed external
// entries. Expressions that resolved the token to a symbol are not affected.
func (e *Engine) applyChangesLocked(ctx context.Context) {
	e.changesMu.Lock()
	changes := e.changes
	e.changes = nil
	e.changesMu.Unlock()

	for _, c := range changes {
		for _, token := range []string{c.Token, c.Source + "_" + c.Token} {
			for _, x := range e.referencing(token) {
				s, bound := x.resolved[token]
				if bound && s != nil {
					continue
				}
				if bound {
					delete(x.resolved, token)
					if c.Removed {
						x.lostExternal[token] = struct{}{}
					}
				}
				e.dirtyLocked(ctx, x)
			}
		}
	}
	if len(changes) > 0 {
		e.logger(ctx).Debug("Applied external data changes.", "changes", len(changes))
	}
}
