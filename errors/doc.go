// Package errors provides structured error types for the so-runtime library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the foreign module, symbol, path and address involved,
// plus a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseResolve, errors.KindUnresolved).
//		Module("libFahrenheit").
//		Symbol("glShaderSource").
//		Detail("no host implementation").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotFound(errors.PhaseRuntime, "symbol", "dlsym")
//	err := errors.MissingPrerequisite("kubridge", paths...)
//
// Errors from the loading phases are fatal; IsFatal reports that class.
// All errors implement the standard error interface and support errors.Is/As.
package errors
