package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which protocol operation produced the error
type Phase string

const (
	PhaseAccess  Phase = "access"  // reading or writing a payload
	PhaseRelease Phase = "release" // tearing a container down
	PhaseResolve Phase = "resolve" // result arm extraction
	PhaseLower   Phase = "lower"   // Go to guest memory
	PhaseLift    Phase = "lift"    // guest memory to Go
	PhaseHost    Phase = "host"    // host function calls
	PhaseLoad    Phase = "load"    // guest module loading
	PhaseConfig  Phase = "config"  // configuration parsing
)

// Kind categorizes the error
type Kind string

const (
	KindKindMismatch        Kind = "kind_mismatch"
	KindForeign             Kind = "foreign"
	KindEmpty               Kind = "empty"
	KindNotOwned            Kind = "not_owned"
	KindNilPointer          Kind = "nil_pointer"
	KindWrongArm            Kind = "wrong_arm"
	KindInvalidDiscriminant Kind = "invalid_discriminant"
	KindOutOfBounds         Kind = "out_of_bounds"
	KindAllocation          Kind = "allocation"
	KindInvalidData         Kind = "invalid_data"
	KindUnsupported         Kind = "unsupported"
	KindNotFound            Kind = "not_found"
	KindInvalidInput        Kind = "invalid_input"
	KindInstantiation       Kind = "instantiation"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Expected string
	Actual   string
	Detail   string
	Path     []string
	Object   uint64
	HasKind  bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.HasKind {
		fmt.Fprintf(&b, " (object kind 0x%x)", e.Object)
	}

	if e.Expected != "" || e.Actual != "" {
		b.WriteString(": ")
		switch {
		case e.Expected != "" && e.Actual != "":
			b.WriteString("expected ")
			b.WriteString(e.Expected)
			b.WriteString(", got ")
			b.WriteString(e.Actual)
		case e.Expected != "":
			b.WriteString("expected ")
			b.WriteString(e.Expected)
		default:
			b.WriteString("got ")
			b.WriteString(e.Actual)
		}
	}

	if e.Detail != "" {
		if e.Expected != "" || e.Actual != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the container path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Object records the object kind involved
func (b *Builder) Object(kind uint64) *Builder {
	b.err.Object = kind
	b.err.HasKind = true
	return b
}

// Expected sets what the operation required
func (b *Builder) Expected(s string) *Builder {
	b.err.Expected = s
	return b
}

// Actual sets what the operation found
func (b *Builder) Actual(s string) *Builder {
	b.err.Actual = s
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Violation panics with e. Contract violations signal a programming or
// linkage defect; continuing would risk memory corruption.
func Violation(e *Error) {
	panic(e)
}

// AsViolation extracts the *Error from a recovered panic value.
func AsViolation(r any) (*Error, bool) {
	e, ok := r.(*Error)
	return e, ok
}

// Convenience constructors for common error patterns

// KindMismatch creates an object kind mismatch error
func KindMismatch(phase Phase, path []string, expected, actual uint64) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindKindMismatch,
		Path:     path,
		Object:   actual,
		HasKind:  true,
		Expected: fmt.Sprintf("kind 0x%x", expected),
		Actual:   fmt.Sprintf("kind 0x%x", actual),
		Detail:   "invalid object kind",
	}
}

// Foreign creates a capability rejection error: the object kind matches but
// the payload was produced by a different implementation.
func Foreign(phase Phase, path []string, kind uint64, release string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindForeign,
		Path:    path,
		Object:  kind,
		HasKind: true,
		Actual:  release,
		Detail:  "not allocated by this implementation",
	}
}

// Empty creates an error for an access to a released or never-filled object
func Empty(phase Phase, path []string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindEmpty,
		Path:   path,
		Detail: "object is empty",
	}
}

// NotOwned creates an error for treating a borrowed object as owning
func NotOwned(phase Phase, path []string, kind uint64) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindNotOwned,
		Path:    path,
		Object:  kind,
		HasKind: true,
		Detail:  "object does not own its payload",
	}
}

// NilPointer creates a nil pointer error
func NilPointer(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Detail: fmt.Sprintf("unexpected nil %s", what),
	}
}

// WrongArm creates an error for extracting the arm a result does not hold
func WrongArm(want, have string) *Error {
	return &Error{
		Phase:    PhaseResolve,
		Kind:     KindWrongArm,
		Expected: want,
		Actual:   have,
		Detail:   fmt.Sprintf("unexpected %s value in result", have),
	}
}

// InvalidDiscriminant creates an error for an is_ok value outside {0, 1}
func InvalidDiscriminant(phase Phase, value uint8) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidDiscriminant,
		Value:  value,
		Detail: fmt.Sprintf("is_ok returned an invalid value (%d)", value),
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
	}
}

// OutOfBounds creates a guest memory bounds error
func OutOfBounds(phase Phase, path []string, offset, limit uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Value:  offset,
		Detail: fmt.Sprintf("offset %d out of bounds (limit %d)", offset, limit),
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate guest module",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Index renders a container index as a path segment.
func Index(i int) string {
	return fmt.Sprintf("[%d]", i)
}
