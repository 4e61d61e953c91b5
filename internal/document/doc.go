// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package document loads sequence documents written in HCL into a scope tree
// and registers their symbols and formulas with the evaluation engine.
//
// A document nests container blocks. Each container may hold constant,
// variable, global_constant, global_variable and formula blocks, each of
// which becomes one item of the container:
//
//	container "Imaging" {
//	  constant "MinAltitude" {
//	    value = 30
//	  }
//	  formula "ready" {
//	    value = Altitude > MinAltitude
//	    min   = 0
//	    max   = 1
//	  }
//	}
//
// Values are formulas and are taken verbatim from the source text.
package document
