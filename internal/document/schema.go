// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package document

import (
	"github.com/hashicorp/hcl/v2"
)

// contents is the body of a file or a container block.
type contents struct {
	Containers      []*containerBlock `hcl:"container,block"`
	Constants       []*symbolBlock    `hcl:"constant,block"`
	Variables       []*symbolBlock    `hcl:"variable,block"`
	GlobalConstants []*symbolBlock    `hcl:"global_constant,block"`
	GlobalVariables []*symbolBlock    `hcl:"global_variable,block"`
	Formulas        []*formulaBlock   `hcl:"formula,block"`
}

type containerBlock struct {
	Name      string    `hcl:"name,label"`
	Remain    hcl.Body  `hcl:",remain"`
	DeclRange hcl.Range `hcl:",def_range"`
}

type symbolBlock struct {
	Name      string         `hcl:"name,label"`
	Value     hcl.Expression `hcl:"value"`
	DeclRange hcl.Range      `hcl:",def_range"`
}

type formulaBlock struct {
	Name         string         `hcl:"name,label"`
	Value        hcl.Expression `hcl:"value"`
	Default      *float64       `hcl:"default,optional"`
	Min          *float64       `hcl:"min,optional"`
	Max          *float64       `hcl:"max,optional"`
	MinExclusive bool           `hcl:"min_exclusive,optional"`
	MaxExclusive bool           `hcl:"max_exclusive,optional"`
	Advisory     bool           `hcl:"advisory,optional"`
	DeclRange    hcl.Range      `hcl:",def_range"`
}
