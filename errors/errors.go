package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseBuild    Phase = "build"    // bundle and registry construction
	PhaseResolve  Phase = "resolve"  // specifier resolution
	PhaseCompile  Phase = "compile"  // source compilation
	PhaseLink     Phase = "link"     // module graph instantiation
	PhaseEvaluate Phase = "evaluate" // module evaluation
	PhaseRequire  Phase = "require"  // synchronous require
)

// Kind categorizes the error
type Kind string

const (
	KindNotFound              Kind = "not_found"
	KindInvalidSpecifier      Kind = "invalid_specifier"
	KindConfiguration         Kind = "configuration"
	KindDuplicateRegistration Kind = "duplicate_registration"
	KindAliasCycle            Kind = "alias_cycle"
	KindRedirectLoop          Kind = "redirect_loop"
	KindCircularDependency    Kind = "circular_dependency"
	KindTopLevelAwait         Kind = "top_level_await"
	KindUnsupportedAttributes Kind = "unsupported_attributes"
	KindEvaluationFailed      Kind = "evaluation_failed"
	KindUndeclaredExport      Kind = "undeclared_export"
	KindInstantiation         Kind = "instantiation"
	KindEngine                Kind = "engine"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value     any
	Cause     error
	Phase     Phase
	Kind      Kind
	Specifier string
	Detail    string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Specifier != "" {
		b.WriteString(" at ")
		b.WriteString(e.Specifier)
	}

	if e.Detail != "" {
		b.WriteString(": ")
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

// IsKind reports whether err is an *Error of the given kind, in any
// phase.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// IsNotFound reports whether err represents a failed module lookup
func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound)
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

// Specifier sets the module specifier the error refers to
func (b *Builder) Specifier(s string) *Builder {
	b.err.Specifier = s
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

// Convenience constructors for common error patterns

// NotFound creates a module-not-found error
func NotFound(specifier string) *Error {
	return &Error{
		Phase:     PhaseResolve,
		Kind:      KindNotFound,
		Specifier: specifier,
		Detail:    "module not found",
	}
}

// InvalidSpecifier creates an error for a specifier that does not parse
// as a URL or resolves outside the allowed space
func InvalidSpecifier(specifier string, cause error) *Error {
	return &Error{
		Phase:     PhaseResolve,
		Kind:      KindInvalidSpecifier,
		Specifier: specifier,
		Detail:    "invalid module specifier",
		Cause:     cause,
	}
}

// DuplicateRegistration creates a build-time error for a specifier or
// alias registered twice in one bundle
func DuplicateRegistration(specifier string) *Error {
	return &Error{
		Phase:     PhaseBuild,
		Kind:      KindDuplicateRegistration,
		Specifier: specifier,
		Detail:    "module or alias already registered",
	}
}

// AliasCycle creates a build-time error for an alias chain that cycles
// inside one bundle
func AliasCycle(specifier string) *Error {
	return &Error{
		Phase:     PhaseBuild,
		Kind:      KindAliasCycle,
		Specifier: specifier,
		Detail:    "alias chain forms a cycle",
	}
}

// RedirectLoop creates an error for redirect chains that revisit a
// specifier or exceed the hop bound during one resolution
func RedirectLoop(specifier string) *Error {
	return &Error{
		Phase:     PhaseResolve,
		Kind:      KindRedirectLoop,
		Specifier: specifier,
		Detail:    "redirect chain forms a loop",
	}
}

// CircularDependency creates an error for a require of a module that is
// currently evaluating
func CircularDependency(specifier string) *Error {
	return &Error{
		Phase:     PhaseRequire,
		Kind:      KindCircularDependency,
		Specifier: specifier,
		Detail:    "circular module dependency",
	}
}

// TopLevelAwait creates an error for a require of a module that does
// not complete evaluation synchronously
func TopLevelAwait(specifier string) *Error {
	return &Error{
		Phase:     PhaseRequire,
		Kind:      KindTopLevelAwait,
		Specifier: specifier,
		Detail:    "module does not evaluate synchronously (top-level await)",
	}
}

// UnsupportedAttributes creates an error for an import request carrying
// import attributes
func UnsupportedAttributes(phase Phase, specifier string) *Error {
	return &Error{
		Phase:     phase,
		Kind:      KindUnsupportedAttributes,
		Specifier: specifier,
		Detail:    "import attributes are not supported",
	}
}

// Evaluation creates an error carrying a module's evaluation failure.
// reason is the engine-side rejection value; when it is an error it is
// also recorded as the cause
func Evaluation(specifier string, reason any) *Error {
	e := &Error{
		Phase:     PhaseEvaluate,
		Kind:      KindEvaluationFailed,
		Specifier: specifier,
		Detail:    "module evaluation failed",
		Value:     reason,
	}
	if cause, ok := reason.(error); ok {
		e.Cause = cause
	} else if reason != nil {
		e.Detail = fmt.Sprintf("module evaluation failed: %v", reason)
	}
	return e
}

// Instantiation creates a module graph instantiation error
func Instantiation(specifier string, cause error) *Error {
	return &Error{
		Phase:     PhaseLink,
		Kind:      KindInstantiation,
		Specifier: specifier,
		Detail:    "instantiate module",
		Cause:     cause,
	}
}

// Engine wraps an engine-level fault
func Engine(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindEngine,
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
