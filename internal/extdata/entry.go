// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package extdata

import (
	"fmt"
	"strconv"
)

// Entry is a single published value.
type Entry struct {
	Source string
	Token  string
	Value  any
	Hidden bool

	// Constants maps coded integer values to display names for entries that
	// represent a finite enumeration, such as a device state.
	Constants map[int]string

	// constant marks an entry published as the name of an enumeration code.
	constant bool
}

// Key returns the source-prefixed key that always resolves to this entry.
func (e Entry) Key() string {
	return e.Source + "_" + e.Token
}

// Float returns the entry's value as a float64 if it is numeric. Booleans
// map to 1 and 0.
func (e Entry) Float() (float64, bool) {
	return toFloat(e.Value)
}

// Display renders the value for humans, using the constant name when the
// entry is a coded enumeration.
func (e Entry) Display() string {
	if len(e.Constants) > 0 {
		if f, ok := e.Float(); ok {
			if name, ok := e.Constants[int(f)]; ok {
				return name
			}
		}
	}
	if f, ok := e.Float(); ok {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return fmt.Sprint(e.Value)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// sameValue reports whether republishing b over a changes nothing.
func sameValue(a, b *Entry) bool {
	if a.Hidden != b.Hidden || a.constant != b.constant || len(a.Constants) != len(b.Constants) {
		return false
	}
	for k, v := range a.Constants {
		if b.Constants[k] != v {
			return false
		}
	}
	af, aok := a.Float()
	bf, bok := b.Float()
	if aok && bok {
		return af == bf
	}
	if aok != bok {
		return false
	}
	return fmt.Sprint(a.Value) == fmt.Sprint(b.Value)
}
