package provider

import (
	"os"
	"sort"
	"strconv"
	"strings"
)

// Env publishes numeric environment variables carrying a prefix. The token
// is the variable name without the prefix, so FG_Latitude becomes Latitude.
type Env struct {
	name    string
	prefix  string
	environ func() []string
}

// NewEnv creates an environment source named name.
func NewEnv(name, prefix string) *Env {
	return &Env{name: name, prefix: prefix, environ: os.Environ}
}

func (e *Env) Name() string { return e.name }

// Fields reads the environment on every call. Variables whose values are not
// numbers are skipped.
func (e *Env) Fields() []Field {
	var fields []Field
	for _, kv := range e.environ() {
		pair := strings.SplitN(kv, "=", 2)
		if len(pair) != 2 || !strings.HasPrefix(pair[0], e.prefix) {
			continue
		}
		token := strings.TrimPrefix(pair[0], e.prefix)
		if token == "" {
			continue
		}
		if b, err := strconv.ParseBool(pair[1]); err == nil && !isDigits(pair[1]) {
			fields = append(fields, staticField(token, b))
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(pair[1]), 64)
		if err != nil {
			continue
		}
		fields = append(fields, staticField(token, v))
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Token < fields[j].Token })
	return fields
}

func isDigits(s string) bool {
	return strings.Trim(s, "0123456789") == ""
}
