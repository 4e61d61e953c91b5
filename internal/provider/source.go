package provider

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by Field.Read when a value is temporarily
// missing. Only that field is withdrawn.
var ErrUnavailable = errors.New("value unavailable")

// Field is one published value of a source.
type Field struct {
	Token  string
	Hidden bool

	// Constants turns the field into a coded enumeration. Read must then
	// return an integer code.
	Constants map[int]string

	Read func(ctx context.Context) (any, error)
}

// Source is a named producer of fields.
type Source interface {
	Name() string
	Fields() []Field
}

// Checker is implemented by sources that can fail as a whole, e.g. when the
// device behind them disconnects.
type Checker interface {
	Check(ctx context.Context) error
}

// Runner is implemented by sources that keep a background connection. Run
// blocks until ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// staticField returns a field reading a fixed value.
func staticField(token string, v any) Field {
	return Field{Token: token, Read: func(context.Context) (any, error) { return v, nil }}
}
