// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// ValidationError is one expression's problem found by Validate.
type ValidationError struct {
	Label    string
	Message  string
	Severity Severity
}

func (v *ValidationError) Error() string {
	if v.Label == "" {
		return v.Message
	}
	return v.Label + ": " + v.Message
}

// Validate evaluates every expression as a validation request and collects
// their errors. The result is nil when all expressions are valid.
func (e *Engine) Validate(ctx context.Context, exprs ...*Expression) error {
	release, err := e.acquire(ctx, "validate")
	if err != nil {
		return err
	}
	defer release()

	var result *multierror.Error
	for _, x := range exprs {
		if x == nil || x.released {
			continue
		}
		e.evaluateLocked(ctx, x, true)
		x.publish()
		if msg := e.currentErrorLocked(x); msg != "" {
			result = multierror.Append(result, &ValidationError{
				Label:    x.label,
				Message:  msg,
				Severity: Classify(msg),
			})
		}
	}
	if result == nil {
		return nil
	}
	result.ErrorFormat = joinErrors
	return result
}

// HasHardErrors reports whether err, as returned by Validate, contains
// anything worse than a warning.
func HasHardErrors(err error) bool {
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		return err != nil
	}
	for _, item := range merr.Errors {
		var v *ValidationError
		if !errors.As(item, &v) || v.Severity == SeverityError {
			return true
		}
	}
	return false
}

func joinErrors(errs []error) string {
	parts := make([]string, len(errs))
	for i, err := range errs {
		parts[i] = err.Error()
	}
	return strings.Join(parts, errorSeparator)
}
