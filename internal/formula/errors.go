// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package formula

import (
	"errors"
	"fmt"
)

var (
	// ErrSyntax is returned when the formula text cannot be parsed.
	ErrSyntax = errors.New("syntax error")

	// ErrEvaluation is returned when a parsed formula fails during evaluation,
	// for example because of an operand type mismatch.
	ErrEvaluation = errors.New("evaluation error")
)

// UndefinedParameterError reports a free identifier that had no value in the
// parameter map handed to Evaluate.
type UndefinedParameterError struct {
	Name string
}

// Error implements the error interface.
func (e *UndefinedParameterError) Error() string {
	return fmt.Sprintf("parameter %q is not defined", e.Name)
}
