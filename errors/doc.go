// Package errors provides structured error types for the ffiobject library.
//
// Errors are categorized by Phase (which protocol operation failed) and Kind
// (error category). The Error type carries the object kind involved, the
// expected and actual values, a path into nested containers and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLift, errors.KindForeign).
//		Path("items", "3").
//		Object(0x01).
//		Expected("release 1").
//		Actual("release 7").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Foreign(errors.PhaseLift, path, 0x01, "7")
//	err := errors.OutOfBounds(errors.PhaseLift, path, 4096, 65536)
//
// Contract violations are not returned; they are raised with Violation, which
// panics with an *Error so callers and tests can recover and inspect it.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
