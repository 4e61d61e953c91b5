// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateIdentifier is wrapped by DuplicateIdentifierError.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")

	// ErrLockTimeout is returned when the evaluation lock was not acquired in time.
	ErrLockTimeout = errors.New("evaluation lock timeout")

	// ErrNotRegistered is returned by operations that need a registered symbol.
	ErrNotRegistered = errors.New("symbol is not registered")

	// ErrUnknownSymbol is returned by Find when nothing matches.
	ErrUnknownSymbol = errors.New("unknown symbol")

	// ErrReleased is returned when a released symbol or expression is used.
	ErrReleased = errors.New("released")

	// ErrConstantAssignment is returned when a constant is assigned at runtime.
	ErrConstantAssignment = errors.New("constants cannot be assigned")
)

// DuplicateIdentifierError reports a registration collision within a scope.
type DuplicateIdentifierError struct {
	Identifier string
	Scope      string
}

func (e *DuplicateIdentifierError) Error() string {
	return fmt.Sprintf("identifier %q is already defined in %s", e.Identifier, e.Scope)
}

func (e *DuplicateIdentifierError) Unwrap() error {
	return ErrDuplicateIdentifier
}

// Messages stored on expressions. They are shown to users verbatim.
const (
	msgSyntaxError     = "Syntax Error"
	msgUnknownError    = "Unknown Error"
	msgUndefined       = "Undefined: "
	msgNotEvaluated    = "Not evaluated"
	msgExternalMissing = "External data unavailable: "
	msgAmbiguous       = "Ambiguous: "
	msgAdvisory        = "Advisory: "
)

// warningMarkers are the substrings that make a message a warning rather
// than a hard error.
var warningMarkers = []string{msgNotEvaluated, "External", "Advisory"}

// Severity classifies an expression's error string.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "none"
	}
}

// Classify derives the severity of a possibly "; "-joined error string. The
// result is a warning only when every part carries a warning marker.
func Classify(message string) Severity {
	if strings.TrimSpace(message) == "" {
		return SeverityNone
	}
	for _, part := range strings.Split(message, errorSeparator) {
		if !isWarning(part) {
			return SeverityError
		}
	}
	return SeverityWarning
}

func isWarning(part string) bool {
	for _, m := range warningMarkers {
		if strings.Contains(part, m) {
			return true
		}
	}
	return false
}

const errorSeparator = "; "

func joinMessages(parts []string) string {
	return strings.Join(parts, errorSeparator)
}
