package app

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/specialistvlad/formulagrid/internal/document"
	"github.com/specialistvlad/formulagrid/internal/engine"
	"github.com/specialistvlad/formulagrid/internal/style"
)

// Summary counts the outcome of one report.
type Summary struct {
	Formulas int
	Errors   int
	Warnings int
}

// report validates every formula of doc and prints one line per formula:
// its value, followed by its message styled by severity.
func report(ctx context.Context, w io.Writer, eng *engine.Engine, doc *document.Document) (Summary, error) {
	if err := eng.Validate(ctx, doc.Expressions()...); engine.IsLockTimeout(err) {
		return Summary{}, err
	}

	sum := Summary{Formulas: len(doc.Formulas)}
	for _, f := range doc.Formulas {
		x := f.Expression
		msg := x.Error(ctx)
		switch engine.Classify(msg) {
		case engine.SeverityError:
			sum.Errors++
		case engine.SeverityWarning:
			sum.Warnings++
		}

		line := fmt.Sprintf("%s = %s", style.Label.Render(f.Path), renderValue(x.Value(ctx)))
		if msg != "" {
			line += "  " + style.Message(msg)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return sum, err
		}
	}

	_, err := fmt.Fprintln(w, style.Dim.Render(fmt.Sprintf("%d formulas, %d errors, %d warnings", sum.Formulas, sum.Errors, sum.Warnings)))
	return sum, err
}

func renderValue(v float64) string {
	if math.IsNaN(v) {
		return style.Dim.Render("-")
	}
	return style.Value.Render(strconv.FormatFloat(v, 'g', -1, 64))
}
