// Package traceattrs holds the span attribute names used across the
// codebase. It imports nothing from this module to stay cycle free.
package traceattrs

import (
	"go.opentelemetry.io/otel/attribute"
)

// FormulaDefinition is the raw text of the formula being evaluated.
func FormulaDefinition(text string) attribute.KeyValue {
	return attribute.String("formulagrid.formula.definition", text)
}

// SymbolIdentifier names the symbol that owns the expression, if any.
func SymbolIdentifier(id string) attribute.KeyValue {
	return attribute.String("formulagrid.symbol.identifier", id)
}

// ScopeName names the scope a span operates in.
func ScopeName(name string) attribute.KeyValue {
	return attribute.String("formulagrid.scope.name", name)
}

// ProviderSource names the telemetry source of a poll span.
func ProviderSource(name string) attribute.KeyValue {
	return attribute.String("formulagrid.provider.source", name)
}

// EvaluationOutcome is one of the outcome labels also used for metrics.
func EvaluationOutcome(outcome string) attribute.KeyValue {
	return attribute.String("formulagrid.evaluation.outcome", outcome)
}

// ValidateOnly reports whether an evaluation was a validation request.
func ValidateOnly(v bool) attribute.KeyValue {
	return attribute.Bool("formulagrid.evaluation.validate_only", v)
}
