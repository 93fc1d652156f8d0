package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseStartup  Phase = "startup"  // prerequisite checks
	PhaseLoad     Phase = "load"     // image mapping
	PhaseRelocate Phase = "relocate" // relocation processing
	PhaseResolve  Phase = "resolve"  // import binding
	PhasePatch    Phase = "patch"    // behavioural patching
	PhaseInit     Phase = "init"     // static initializers and entry point
	PhaseRuntime  Phase = "runtime"  // calls made by the foreign module
	PhaseShim     Phase = "shim"     // threading and libc emulation
	PhaseEmulator Phase = "emulator" // fake embedding-runtime objects
	PhaseCache    Phase = "cache"    // shader cache
	PhaseConfig   Phase = "config"   // configuration
)

// Kind categorizes the error
type Kind string

const (
	KindMissingPrerequisite Kind = "missing_prerequisite"
	KindNotFound            Kind = "not_found"
	KindUnresolved          Kind = "unresolved"
	KindAllocation          Kind = "allocation"
	KindOutOfBounds         Kind = "out_of_bounds"
	KindInvalidInput        Kind = "invalid_input"
	KindInvalidData         Kind = "invalid_data"
	KindUnsupported         Kind = "unsupported"
	KindDuplicate           Kind = "duplicate"
	KindFault               Kind = "fault"
	KindIO                  Kind = "io"
	KindClosed              Kind = "closed"
)

// Error is the structured error type used throughout the library
type Error struct {
	Cause   error
	Phase   Phase
	Kind    Kind
	Module  string
	Symbol  string
	Path    string
	Detail  string
	Address uint32
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Module != "" {
		b.WriteString(" in ")
		b.WriteString(e.Module)
	}

	if e.Symbol != "" {
		b.WriteString(" symbol ")
		b.WriteString(e.Symbol)
	}

	if e.Path != "" {
		b.WriteString(" path ")
		b.WriteString(e.Path)
	}

	if e.Address != 0 {
		fmt.Fprintf(&b, " at 0x%08x", e.Address)
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

// Module sets the foreign module name
func (b *Builder) Module(name string) *Builder {
	b.err.Module = name
	return b
}

// Symbol sets the symbol name
func (b *Builder) Symbol(name string) *Builder {
	b.err.Symbol = name
	return b
}

// Path sets the file path
func (b *Builder) Path(p string) *Builder {
	b.err.Path = p
	return b
}

// Address sets the foreign address
func (b *Builder) Address(addr uint32) *Builder {
	b.err.Address = addr
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

// NotFound creates a not-found error for a named entity
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Symbol: name,
		Detail: what + " not found",
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

// OutOfBounds creates an out of bounds access error
func OutOfBounds(phase Phase, addr, length uint32) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindOutOfBounds,
		Address: addr,
		Detail:  fmt.Sprintf("access of %d bytes out of bounds", length),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// MissingPrerequisite creates the startup error for an absent installation marker
func MissingPrerequisite(name string, paths ...string) *Error {
	return &Error{
		Phase:  PhaseStartup,
		Kind:   KindMissingPrerequisite,
		Detail: fmt.Sprintf("%s is not installed (looked in %s)", name, strings.Join(paths, ", ")),
	}
}

// Fault creates a deliberate fatal fault raised on behalf of the foreign module
func Fault(symbol, detail string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindFault,
		Symbol: symbol,
		Detail: detail,
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

// IsFatal reports whether err belongs to the fatal startup class:
// missing prerequisites and any load, relocate, resolve, patch or init failure.
func IsFatal(err error) bool {
	var u *UnresolvedImportsError
	if stderrors.As(err, &u) {
		return true
	}
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	switch e.Phase {
	case PhaseStartup, PhaseLoad, PhaseRelocate, PhaseResolve, PhasePatch, PhaseInit:
		return true
	}
	return e.Kind == KindFault
}

// UnresolvedImport represents a single import with no host implementation
type UnresolvedImport struct {
	Module string
	Symbol string
}

// UnresolvedImportsError is returned when import binding leaves references unbound
type UnresolvedImportsError struct {
	Imports []UnresolvedImport
}

// NewUnresolvedImportsError creates an error from a list of symbol names of one module
func NewUnresolvedImportsError(module string, symbols []string) *UnresolvedImportsError {
	result := &UnresolvedImportsError{
		Imports: make([]UnresolvedImport, 0, len(symbols)),
	}
	for _, s := range symbols {
		result.Imports = append(result.Imports, UnresolvedImport{Module: module, Symbol: s})
	}
	return result
}

func (e *UnresolvedImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[resolve] unresolved: no imports specified"
	}

	if len(e.Imports) == 1 {
		imp := e.Imports[0]
		return fmt.Sprintf("[resolve] unresolved: %s imports %s", imp.Module, imp.Symbol)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[resolve] unresolved: %d imports\n", len(e.Imports))
	for _, imp := range e.Imports {
		b.WriteString("  ")
		b.WriteString(imp.Module)
		b.WriteString(": ")
		b.WriteString(imp.Symbol)
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Is matches any resolve-phase unresolved error
func (e *UnresolvedImportsError) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return t.Phase == PhaseResolve && t.Kind == KindUnresolved
	}
	return false
}
