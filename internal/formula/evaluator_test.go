// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package formula_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/formulagrid/internal/formula"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

func TestEvaluator_FreeIdentifiers(t *testing.T) {
	e := formula.New()

	testCases := []struct {
		name     string
		text     string
		expected []string
	}{
		{name: "single reference", text: "A * 2", expected: []string{"A"}},
		{name: "sorted and unique", text: "b + a + b", expected: []string{"a", "b"}},
		{name: "function args", text: "max(Exposure, Minimum) + 1", expected: []string{"Exposure", "Minimum"}},
		{name: "traversal root only", text: "Camera.Temperature > 0", expected: []string{"Camera"}},
		{name: "literal only", text: "42", expected: []string{}},
		{name: "keywords are not identifiers", text: "true && A > 1", expected: []string{"A"}},
		{name: "empty text", text: "   ", expected: nil},
		{name: "unspaced subtraction", text: "Altitude-10", expected: []string{"Altitude"}},
		{name: "unspaced difference of names", text: "Ra-Dec", expected: []string{"Dec", "Ra"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ids, err := e.FreeIdentifiers(tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, ids)
		})
	}
}

func TestEvaluator_FreeIdentifiers_SyntaxError(t *testing.T) {
	e := formula.New()
	_, err := e.FreeIdentifiers("A * * 2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, formula.ErrSyntax))
}

func TestEvaluator_Evaluate(t *testing.T) {
	e := formula.New()

	testCases := []struct {
		name     string
		text     string
		params   map[string]float64
		expected float64
		isBool   bool
	}{
		{name: "arithmetic", text: "A * 2", params: map[string]float64{"A": 5}, expected: 10},
		{name: "precedence", text: "1 + 2 * 3", expected: 7},
		{name: "true maps to one", text: "A > 3", params: map[string]float64{"A": 5}, expected: 1, isBool: true},
		{name: "false maps to zero", text: "A > 3", params: map[string]float64{"A": 1}, expected: 0, isBool: true},
		{name: "conditional", text: "A > 3 ? 10 : 20", params: map[string]float64{"A": 1}, expected: 20},
		{name: "builtin function", text: "max(A, 7, 3)", params: map[string]float64{"A": 5}, expected: 7},
		{name: "unit conversion", text: "c2f(100)", expected: 212},
		{name: "numeric string result", text: "\"12.5\"", expected: 12.5},
		{name: "unspaced subtraction", text: "A-1", params: map[string]float64{"A": 5}, expected: 4},
		{name: "subtracting a negative", text: "A--1", params: map[string]float64{"A": 5}, expected: 6},
		{name: "unspaced names", text: "A-B-1", params: map[string]float64{"A": 5, "B": 2}, expected: 2},
		{name: "exponent literal", text: "1e-3 * 1000", expected: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := e.Evaluate(tc.text, tc.params)
			require.NoError(t, err)
			assert.InDelta(t, tc.expected, res.Value, 1e-9)
			assert.Equal(t, tc.isBool, res.IsBool)
		})
	}
}

func TestEvaluator_Builtins(t *testing.T) {
	e := formula.New()

	testCases := map[string]float64{
		"abs(-2)":              2,
		"ceil(1.2)":            2,
		"floor(1.8)":           1,
		"int(2.7)":             2,
		"log(8, 2)":            3,
		"max(1, 4, 2)":         4,
		"min(3, 1)":            1,
		"pow(2, 3)":            8,
		"signum(-5)":           -1,
		"parseint(\"ff\", 16)": 255,
	}

	for text, expected := range testCases {
		t.Run(text, func(t *testing.T) {
			res, err := e.Evaluate(text, nil)
			require.NoError(t, err)
			assert.InDelta(t, expected, res.Value, 1e-9)
		})
	}
}

func TestValidName(t *testing.T) {
	assert.True(t, formula.ValidName("Altitude"))
	assert.True(t, formula.ValidName("camera_1"))
	assert.False(t, formula.ValidName("my-var"))
	assert.False(t, formula.ValidName("1abc"))
	assert.False(t, formula.ValidName(""))
}

func TestEvaluator_Evaluate_Errors(t *testing.T) {
	e := formula.New()

	t.Run("undefined parameter", func(t *testing.T) {
		_, err := e.Evaluate("A + B", map[string]float64{"A": 1})
		var undefined *formula.UndefinedParameterError
		require.True(t, errors.As(err, &undefined))
		assert.Equal(t, "B", undefined.Name)
	})

	t.Run("syntax", func(t *testing.T) {
		_, err := e.Evaluate("(A + ", map[string]float64{"A": 1})
		assert.True(t, errors.Is(err, formula.ErrSyntax))
	})

	t.Run("evaluation", func(t *testing.T) {
		_, err := e.Evaluate("\"abc\" * 2", nil)
		assert.True(t, errors.Is(err, formula.ErrEvaluation))
	})

	t.Run("non numeric result is neither syntax nor evaluation", func(t *testing.T) {
		_, err := e.Evaluate("\"abc\"", nil)
		require.Error(t, err)
		assert.False(t, errors.Is(err, formula.ErrSyntax))
		assert.False(t, errors.Is(err, formula.ErrEvaluation))
	})
}

func TestEvaluator_TimeFunctions(t *testing.T) {
	fixed := time.Date(2024, time.March, 5, 22, 15, 30, 0, time.UTC)
	e := formula.New(formula.WithClock(func() time.Time { return fixed }), formula.WithLocation(time.UTC))

	res, err := e.Evaluate("hour(now())", nil)
	require.NoError(t, err)
	assert.Equal(t, float64(22), res.Value)

	res, err = e.Evaluate("dayofyear(now())", nil)
	require.NoError(t, err)
	assert.Equal(t, float64(65), res.Value)
}

func TestEvaluator_WithFunctions(t *testing.T) {
	double := function.New(&function.Spec{
		Params: []function.Parameter{{Name: "v", Type: cty.Number}},
		Type:   function.StaticReturnType(cty.Number),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			return args[0].Multiply(cty.NumberIntVal(2)), nil
		},
	})
	e := formula.New(formula.WithFunctions(map[string]function.Function{"double": double}))

	res, err := e.Evaluate("double(A)", map[string]float64{"A": 21})
	require.NoError(t, err)
	assert.Equal(t, float64(42), res.Value)

	funcs, err := e.CalledFunctions("double(max(A, 1))")
	require.NoError(t, err)
	assert.Equal(t, []string{"double", "max"}, funcs)
}

func TestEvaluator_ConcurrentAccess(t *testing.T) {
	e := formula.New()

	var wg sync.WaitGroup
	numGoroutines := 50
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			res, err := e.Evaluate("A + 1", map[string]float64{"A": float64(i)})
			assert.NoError(t, err)
			assert.Equal(t, float64(i+1), res.Value)
		}()
	}
	wg.Wait()
}
