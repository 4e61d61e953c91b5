// Package tracing hands out OpenTelemetry tracers named after the calling
// package. Without a configured provider the global no-op tracer is used.
package tracing

import (
	"runtime"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a tracer named after the import path of its caller.
func Tracer() trace.Tracer {
	name := "unknown"
	if pc, _, _, ok := runtime.Caller(1); ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			name = extractImportPath(fn.Name())
		}
	}
	return otel.Tracer(name)
}

// extractImportPath strips the function part from a fully qualified function
// name, e.g. "example.com/pkg/sub.(*T).Method" becomes "example.com/pkg/sub".
func extractImportPath(fullName string) string {
	lastSlash := strings.LastIndex(fullName, "/")
	dot := strings.Index(fullName[lastSlash+1:], ".")
	if dot < 0 {
		return "unknown"
	}
	return fullName[:lastSlash+1+dot]
}
