// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package engine is the reactive evaluation core. It keeps one symbol table per
// scope of the host tree plus a single global table, binds formula expressions
// to the symbols and external data entries they reference, and re-evaluates
// them lazily after upstream changes.
//
// # Scoping
//
// A Symbol registers into the table of its owner's parent scope. Lookups start
// at the requesting expression's owner, walk the ancestor chain and fall back
// to the global table, and finally to the external data namespace. Global
// symbols register into the global table wherever they are authored, but only
// resolve while their owner is reachable from the host's root.
//
// # Duplicates
//
// Registering an identifier that is already taken in the same scope by a
// reachable symbol is rejected with a warning. The rejected symbol reports
// IsDuplicate and is promoted automatically once the blocking symbol leaves
// the table. An entry whose owner is no longer reachable is superseded
// silently.
//
// # Propagation
//
// When a symbol's value changes, MarkDirty walks its consumers with a visited
// list and marks them dirty. Nothing is evaluated during the walk; dirty
// expressions re-evaluate the next time their value is read.
//
// # Locking
//
// Every evaluation and every mutation that can propagate runs under a single
// engine-wide lock. Acquisition waits at most the configured lock timeout and
// fails with ErrLockTimeout instead of blocking the caller indefinitely.
package engine
