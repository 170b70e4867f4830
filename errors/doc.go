// Package errors provides structured error types for the script-modules library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: the module specifier, the offending value,
// and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseResolve, errors.KindInvalidSpecifier).
//		Specifier("./relative").
//		Detail("relative specifier with no referrer").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotFound("file:///app/missing.js")
//	err := errors.CircularDependency("file:///app/a.js")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
