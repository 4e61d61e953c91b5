// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package extdata implements the external data namespace: a flat registry of
// values published by named telemetry providers and resolvable by formulas
// next to user-defined symbols.
//
// # Keys
//
// Entries are stored under their bare token (e.g. "Temperature"). When only
// one source publishes a token, the bare token resolves directly. When two or
// more sources publish the same token, a bare lookup is Ambiguous and the
// caller must use the source-prefixed key "<source>_<token>", for example
// "Weather_Temperature".
//
// # Hidden entries
//
// Providers may mark entries hidden. Hidden entries are left out of listings
// meant for users but still resolve in formulas.
//
// # Change notifications
//
// Every publish or withdraw that changes the namespace is reported to the
// subscribers registered with Subscribe. Notifications are delivered
// synchronously, after the namespace lock has been released.
package extdata
