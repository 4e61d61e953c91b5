// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package formula

import (
	"bytes"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// ValidName reports whether s can name a symbol or an external entry. Names
// are HCL identifiers without '-', so `A-1` always reads as a subtraction.
func ValidName(s string) bool {
	return hclsyntax.ValidIdentifier(s) && !strings.Contains(s, "-")
}

// spaceHyphens rewrites every identifier token containing '-' as a
// subtraction of its parts. HCL lexes `Altitude-10` as a single identifier.
func spaceHyphens(text string) string {
	src := []byte(text)
	tokens, diags := hclsyntax.LexExpression(src, "formula", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return text
	}

	var b strings.Builder
	last := 0
	for _, tok := range tokens {
		if tok.Type != hclsyntax.TokenIdent || !bytes.ContainsRune(tok.Bytes, '-') {
			continue
		}
		b.Write(src[last:tok.Range.Start.Byte])
		b.WriteString(strings.Join(strings.Split(string(tok.Bytes), "-"), " - "))
		last = tok.Range.End.Byte
	}
	if last == 0 {
		return text
	}
	b.Write(src[last:])
	return b.String()
}
