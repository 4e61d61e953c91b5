// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package formula

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// builtinFunctions returns the default function table. Time functions take
// and return Unix seconds and decompose them in the given location.
func builtinFunctions(now func() time.Time, loc *time.Location) map[string]function.Function {
	return map[string]function.Function{
		"abs":      stdlib.AbsoluteFunc,
		"ceil":     stdlib.CeilFunc,
		"floor":    stdlib.FloorFunc,
		"int":      stdlib.IntFunc,
		"log":      stdlib.LogFunc,
		"max":      stdlib.MaxFunc,
		"min":      stdlib.MinFunc,
		"pow":      stdlib.PowFunc,
		"signum":   stdlib.SignumFunc,
		"parseint": stdlib.ParseIntFunc,

		"deg2rad": unaryNumberFunction("degrees", func(v float64) float64 { return v * math.Pi / 180 }),
		"rad2deg": unaryNumberFunction("radians", func(v float64) float64 { return v * 180 / math.Pi }),
		"c2f":     unaryNumberFunction("celsius", func(v float64) float64 { return v*9/5 + 32 }),
		"f2c":     unaryNumberFunction("fahrenheit", func(v float64) float64 { return (v - 32) * 5 / 9 }),
		"sqrt":    unaryNumberFunction("value", math.Sqrt),

		"now": function.New(&function.Spec{
			Type: function.StaticReturnType(cty.Number),
			Impl: func(_ []cty.Value, _ cty.Type) (cty.Value, error) {
				return cty.NumberIntVal(now().Unix()), nil
			},
		}),
		"random": function.New(&function.Spec{
			Type: function.StaticReturnType(cty.Number),
			Impl: func(_ []cty.Value, _ cty.Type) (cty.Value, error) {
				return cty.NumberFloatVal(rand.Float64()), nil
			},
		}),

		"hour":      timePartFunction(loc, func(t time.Time) int { return t.Hour() }),
		"minute":    timePartFunction(loc, func(t time.Time) int { return t.Minute() }),
		"second":    timePartFunction(loc, func(t time.Time) int { return t.Second() }),
		"dayofweek": timePartFunction(loc, func(t time.Time) int { return int(t.Weekday()) }),
		"dayofyear": timePartFunction(loc, func(t time.Time) int { return t.YearDay() }),
		"month":     timePartFunction(loc, func(t time.Time) int { return int(t.Month()) }),
		"year":      timePartFunction(loc, func(t time.Time) int { return t.Year() }),
	}
}

func unaryNumberFunction(param string, fn func(float64) float64) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{{Name: param, Type: cty.Number}},
		Type:   function.StaticReturnType(cty.Number),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			v, _ := args[0].AsBigFloat().Float64()
			result := fn(v)
			if math.IsNaN(result) || math.IsInf(result, 0) {
				return cty.NilVal, function.NewArgErrorf(0, "result is not a finite number")
			}
			return cty.NumberFloatVal(result), nil
		},
	})
}

func timePartFunction(loc *time.Location, part func(time.Time) int) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{{Name: "unix_seconds", Type: cty.Number}},
		Type:   function.StaticReturnType(cty.Number),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			secs, _ := args[0].AsBigFloat().Int64()
			return cty.NumberIntVal(int64(part(time.Unix(secs, 0).In(loc)))), nil
		},
	})
}
