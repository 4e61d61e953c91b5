// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package formula wraps the HCL expression language as the formula evaluator
// used by symbols and formula fields.
//
// A formula is a single HCL expression such as `Exposure * 2` or
// `Altitude > 30 && Weather_Humidity < 80`. Every root variable traversal in
// the expression is a free identifier that the caller must supply as a
// numeric parameter. Results are always reported as float64; boolean results
// map to 1 and 0.
//
// The evaluator is stateless apart from a cache of parsed expressions and is
// safe for concurrent use.
package formula
