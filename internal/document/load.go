// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package document

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/specialistvlad/formulagrid/internal/ctxlog"
	"github.com/specialistvlad/formulagrid/internal/engine"
	"github.com/specialistvlad/formulagrid/internal/scopetree"
)

// Formula is a named leaf expression declared by a formula block.
type Formula struct {
	Name       string
	Path       string
	Node       *scopetree.Node
	Expression *engine.Expression
}

// Document is the result of loading one or more HCL files.
type Document struct {
	Files    []string
	Symbols  []*engine.Symbol
	Formulas []*Formula

	// Warnings lists non-fatal problems such as duplicate identifiers.
	Warnings []string
}

// Expressions returns the expressions of every formula in declaration order.
func (d *Document) Expressions() []*engine.Expression {
	out := make([]*engine.Expression, 0, len(d.Formulas))
	for _, f := range d.Formulas {
		out = append(out, f.Expression)
	}
	return out
}

// Load finds, parses and loads every HCL file at path into tree, registering
// all declarations with eng. Files are attached below the tree's root in
// lexical order.
func Load(ctx context.Context, path string, tree *scopetree.Tree, eng *engine.Engine) (*Document, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Load started.", "path", path)

	files, err := ResolvePath(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve document path '%s': %w", path, err)
	}
	if len(files) == 0 {
		logger.Warn("No .hcl files found at the specified path.", "path", path)
	}

	doc := &Document{Files: files}
	parser := hclparse.NewParser()
	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		l := &loader{ctx: ctx, tree: tree, engine: eng, src: f.Bytes, doc: doc}
		if err := l.body(f.Body, tree.Root()); err != nil {
			return nil, fmt.Errorf("failed to load document file '%s': %w", file, err)
		}
		logger.Debug("Loaded document file.", "path", file)
	}

	logger.Info("Document loaded.", "files", len(files), "symbols", len(doc.Symbols), "formulas", len(doc.Formulas))
	return doc, nil
}

type loader struct {
	ctx    context.Context
	tree   *scopetree.Tree
	engine *engine.Engine
	src    []byte
	doc    *Document
}

type declaration struct {
	at    hcl.Range
	apply func() error
}

// body decodes one container body and applies its blocks in source order.
func (l *loader) body(body hcl.Body, parent *scopetree.Node) error {
	var c contents
	if diags := gohcl.DecodeBody(body, nil, &c); diags.HasErrors() {
		return diags
	}

	var decls []declaration
	for _, cb := range c.Containers {
		decls = append(decls, declaration{at: cb.DeclRange, apply: func() error {
			node, err := l.tree.AddContainer(l.ctx, parent, cb.Name)
			if err != nil {
				return err
			}
			return l.body(cb.Remain, node)
		}})
	}
	symbolKinds := []struct {
		blocks []*symbolBlock
		kind   engine.Kind
	}{
		{c.Constants, engine.Constant},
		{c.Variables, engine.Variable},
		{c.GlobalConstants, engine.GlobalConstant},
		{c.GlobalVariables, engine.GlobalVariable},
	}
	for _, sk := range symbolKinds {
		for _, sb := range sk.blocks {
			decls = append(decls, declaration{at: sb.DeclRange, apply: func() error {
				return l.symbol(parent, sb, sk.kind)
			}})
		}
	}
	for _, fb := range c.Formulas {
		decls = append(decls, declaration{at: fb.DeclRange, apply: func() error {
			return l.formula(parent, fb)
		}})
	}

	sort.SliceStable(decls, func(i, j int) bool { return decls[i].at.Start.Byte < decls[j].at.Start.Byte })
	for _, d := range decls {
		if err := d.apply(); err != nil {
			return err
		}
	}
	return nil
}

func (l *loader) symbol(parent *scopetree.Node, sb *symbolBlock, kind engine.Kind) error {
	item, err := l.tree.AddItem(l.ctx, parent, sb.Name)
	if err != nil {
		return err
	}
	s, err := l.engine.NewSymbol(l.ctx, item, sb.Name, kind, formulaText(sb.Value, l.src))
	if errors.Is(err, engine.ErrDuplicateIdentifier) {
		l.doc.Warnings = append(l.doc.Warnings, fmt.Sprintf("%s: %s", sb.DeclRange, err))
		err = nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", sb.DeclRange, err)
	}
	l.doc.Symbols = append(l.doc.Symbols, s)
	return nil
}

func (l *loader) formula(parent *scopetree.Node, fb *formulaBlock) error {
	item, err := l.tree.AddItem(l.ctx, parent, fb.Name)
	if err != nil {
		return err
	}
	path := l.tree.Path(item)

	opts := []engine.ExpressionOption{engine.WithLabel(path)}
	if fb.Default != nil {
		opts = append(opts, engine.WithDefault(*fb.Default))
	}
	if fb.Min != nil || fb.Max != nil {
		r := engine.Range{
			Min:          math.Inf(-1),
			Max:          math.Inf(1),
			MinExclusive: fb.MinExclusive,
			MaxExclusive: fb.MaxExclusive,
			Advisory:     fb.Advisory,
		}
		if fb.Min != nil {
			r.Min = *fb.Min
		}
		if fb.Max != nil {
			r.Max = *fb.Max
		}
		opts = append(opts, engine.WithRange(r))
	}

	x, err := l.engine.NewExpression(l.ctx, item, formulaText(fb.Value, l.src), opts...)
	if err != nil {
		return fmt.Errorf("%s: %w", fb.DeclRange, err)
	}
	l.doc.Formulas = append(l.doc.Formulas, &Formula{Name: fb.Name, Path: path, Node: item, Expression: x})
	return nil
}

// formulaText returns the source text of expr. A constant string is taken
// as the formula itself, so `value = "A + 1"` and `value = A + 1` agree.
func formulaText(expr hcl.Expression, src []byte) string {
	if len(expr.Variables()) == 0 {
		if v, diags := expr.Value(nil); !diags.HasErrors() && v.Type() == cty.String && v.IsKnown() && !v.IsNull() {
			return v.AsString()
		}
	}
	return strings.TrimSpace(string(expr.Range().SliceBytes(src)))
}
