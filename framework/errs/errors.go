package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ── Error codes ───────────────────────────────────────────────────────────────

// Code identifies the kind of failure carried by an *Error.
type Code string

const (
	CodeMalformedExpression     Code = "MALFORMED_EXPRESSION"
	CodeClassNotFound           Code = "CLASS_NOT_FOUND"
	CodeMethodNotFound          Code = "METHOD_NOT_FOUND"
	CodePrivateClass            Code = "PRIVATE_CLASS"
	CodeFactoryNotFound         Code = "FACTORY_NOT_FOUND"
	CodeCyclicDependency        Code = "CYCLIC_DEPENDENCY"
	CodeDuplicateScope          Code = "DUPLICATE_SCOPE"
	CodeScopeNotFound           Code = "SCOPE_NOT_FOUND"
	CodeScopeReferred           Code = "SCOPE_REFERRED"
	CodeDuplicateInitializer    Code = "DUPLICATE_INITIALIZER"
	CodeDuplicateUninitializer  Code = "DUPLICATE_UNINITIALIZER"
	CodeMalformedUninitializer  Code = "MALFORMED_UNINITIALIZER"
	CodeLackOfParameterMetadata Code = "LACK_OF_PARAMETER_METADATA"
	CodeDuplicateClass          Code = "DUPLICATE_CLASS"
	CodeInvalidInjection        Code = "INVALID_INJECTION"
	CodeMalformedProduct        Code = "MALFORMED_PRODUCT"
	CodeScopeDestroyed          Code = "SCOPE_DESTROYED"
	CodeConstructionFailed      Code = "CONSTRUCTION_FAILED"
)

// ── Error ─────────────────────────────────────────────────────────────────────

// Error is the structured failure returned by every package of the module.
//
// Two errors match under errors.Is when their codes are equal, so callers
// can test against the sentinels below:
//
//	if errors.Is(err, errs.ErrFactoryNotFound) { ... }
type Error struct {
	Code    Code
	Message string

	// Path is the chain of expressions being resolved when the error occurred.
	Path []string

	// Candidates lists the classes considered when ambiguity was the cause.
	Candidates []string

	Metadata map[string]any
	Cause    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Candidates) > 0 {
		b.WriteString(" (candidates: ")
		b.WriteString(strings.Join(e.Candidates, ","))
		b.WriteString(")")
	}
	if len(e.Path) > 0 {
		b.WriteString(" [path: ")
		b.WriteString(strings.Join(e.Path, " -> "))
		b.WriteString("]")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithPath returns a copy of e carrying the given build path.
func (e *Error) WithPath(path []string) *Error {
	cp := *e
	cp.Path = append([]string(nil), path...)
	return &cp
}

// WithMeta returns a copy of e with an extra metadata entry.
func (e *Error) WithMeta(key string, value any) *Error {
	cp := *e
	cp.Metadata = make(map[string]any, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		cp.Metadata[k] = v
	}
	cp.Metadata[key] = value
	return &cp
}

// New creates an *Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an *Error that wraps cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or "" when none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Has reports whether err carries the given code anywhere in its chain.
func Has(err error, code Code) bool {
	return errors.Is(err, &Error{Code: code})
}

// ── Sentinels ─────────────────────────────────────────────────────────────────

var (
	ErrMalformedExpression     = New(CodeMalformedExpression, "malformed expression")
	ErrClassNotFound           = New(CodeClassNotFound, "class not found")
	ErrMethodNotFound          = New(CodeMethodNotFound, "method not found")
	ErrPrivateClass            = New(CodePrivateClass, "private class")
	ErrFactoryNotFound         = New(CodeFactoryNotFound, "factory not found")
	ErrCyclicDependency        = New(CodeCyclicDependency, "cyclic dependency")
	ErrDuplicateScope          = New(CodeDuplicateScope, "duplicate scope")
	ErrScopeNotFound           = New(CodeScopeNotFound, "scope not found")
	ErrScopeReferred           = New(CodeScopeReferred, "scope is still referred")
	ErrDuplicateInitializer    = New(CodeDuplicateInitializer, "duplicate initializer")
	ErrDuplicateUninitializer  = New(CodeDuplicateUninitializer, "duplicate uninitializer")
	ErrMalformedUninitializer  = New(CodeMalformedUninitializer, "malformed uninitializer")
	ErrLackOfParameterMetadata = New(CodeLackOfParameterMetadata, "lack of parameter metadata")
	ErrDuplicateClass          = New(CodeDuplicateClass, "duplicate class")
	ErrInvalidInjection        = New(CodeInvalidInjection, "invalid injection")
	ErrMalformedProduct        = New(CodeMalformedProduct, "malformed product")
	ErrScopeDestroyed          = New(CodeScopeDestroyed, "scope destroyed")
	ErrConstructionFailed      = New(CodeConstructionFailed, "construction failed")
)

// ── Constructors ──────────────────────────────────────────────────────────────

func MalformedExpression(text, reason string) *Error {
	return New(CodeMalformedExpression, fmt.Sprintf("%q: %s", text, reason)).
		WithMeta("expression", text)
}

func ClassNotFound(name string) *Error {
	return New(CodeClassNotFound, fmt.Sprintf("class %q is not registered", name)).
		WithMeta("class", name)
}

func MethodNotFound(class, method string) *Error {
	return New(CodeMethodNotFound, fmt.Sprintf("method %q not found on class %q", method, class)).
		WithMeta("class", class).WithMeta("method", method)
}

func PrivateClass(name string) *Error {
	return New(CodePrivateClass, fmt.Sprintf("class %q is private and can only be produced by a factory", name)).
		WithMeta("class", name)
}

// FactoryNotFound reports an unresolvable request. Candidates are sorted so
// the message is stable.
func FactoryNotFound(expr string, candidates ...string) *Error {
	msg := fmt.Sprintf("no class or factory resolves %q", expr)
	if len(candidates) > 1 {
		msg = fmt.Sprintf("%q is ambiguous", expr)
	}
	e := New(CodeFactoryNotFound, msg).WithMeta("expression", expr)
	if len(candidates) > 0 {
		e.Candidates = append([]string(nil), candidates...)
		sort.Strings(e.Candidates)
	}
	return e
}

func CyclicDependency(expr string, path []string) *Error {
	p := append(append([]string(nil), path...), expr)
	return New(CodeCyclicDependency, fmt.Sprintf("%q depends on itself", expr)).WithPath(p)
}

func DuplicateScope(name string) *Error {
	return New(CodeDuplicateScope, fmt.Sprintf("scope %q already exists", name)).WithMeta("scope", name)
}

func ScopeNotFound(name string) *Error {
	return New(CodeScopeNotFound, fmt.Sprintf("scope %q does not exist", name)).WithMeta("scope", name)
}

func ScopeReferred(name string, refs int) *Error {
	return New(CodeScopeReferred, fmt.Sprintf("scope %q is referred by %d child scope(s)", name, refs)).
		WithMeta("scope", name).WithMeta("refs", refs)
}

func ScopeDestroyed(name string) *Error {
	return New(CodeScopeDestroyed, fmt.Sprintf("scope %q has been destroyed", name)).WithMeta("scope", name)
}

func DuplicateInitializer(class string) *Error {
	return New(CodeDuplicateInitializer, fmt.Sprintf("class %q declares more than one initializer", class)).
		WithMeta("class", class)
}

func DuplicateUninitializer(class string) *Error {
	return New(CodeDuplicateUninitializer, fmt.Sprintf("class %q declares more than one uninitializer", class)).
		WithMeta("class", class)
}

func MalformedUninitializer(class, method string) *Error {
	return New(CodeMalformedUninitializer, fmt.Sprintf("uninitializer %s.%s must not take injected arguments", class, method)).
		WithMeta("class", class).WithMeta("method", method)
}

func LackOfParameterMetadata(class, method string, want, got int) *Error {
	target := class
	if method != "" {
		target = class + "::" + method
	}
	return New(CodeLackOfParameterMetadata,
		fmt.Sprintf("%s takes %d parameter(s) but %d injection(s) were declared", target, want, got)).
		WithMeta("class", class)
}

func DuplicateClass(name string) *Error {
	return New(CodeDuplicateClass, fmt.Sprintf("class %q is already registered", name)).WithMeta("class", name)
}

func InvalidInjection(target, reason string) *Error {
	return New(CodeInvalidInjection, fmt.Sprintf("%s: %s", target, reason)).WithMeta("target", target)
}

func MalformedProduct(class, method, product string) *Error {
	return New(CodeMalformedProduct, fmt.Sprintf("%s::%s declares malformed product %q", class, method, product)).
		WithMeta("class", class).WithMeta("product", product)
}

func ConstructionFailed(target string, cause error) *Error {
	return Wrap(CodeConstructionFailed, target, cause)
}
