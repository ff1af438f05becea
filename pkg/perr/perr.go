// Package perr defines the closed error taxonomy shared by every stage of
// the execution pipeline, the session manager, and the registries.
package perr

import "fmt"

// Kind is a closed enum of error categories. Stages and services only ever
// return errors tagged with one of these; nothing downstream needs to
// string-match error text to decide how to react.
type Kind string

const (
	Validation  Kind = "validation"
	Resolution  Kind = "resolution"
	Reference   Kind = "reference"
	Script      Kind = "script"
	Sandbox     Kind = "sandbox"
	Gate        Kind = "gate"
	Session     Kind = "session"
	Persistence Kind = "persistence"
	Conflict    Kind = "conflict"
)

// Error is the single error type propagated across package boundaries.
// Hint and RetryCommand are optional, user-facing aids: Hint explains the
// minimal fix, RetryCommand is a ready-to-paste re-invocation.
type Error struct {
	Kind         Kind
	Message      string
	Hint         string
	RetryCommand string
	Cause        error
}

func (e *Error) Error() string {
	// Validation messages already carry their own user-facing title (e.g.
	// "Argument Validation Failed: ..."); prefixing the kind here would
	// just repeat it, so validation is the one kind that prints bare.
	if e.Kind == Validation {
		if e.Hint != "" {
			return fmt.Sprintf("%s (%s)", e.Message, e.Hint)
		}
		return e.Message
	}
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no hint or retry command.
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an existing error, preserving it as Cause.
func Wrap(k Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithHint returns a copy of e with Hint set.
func (e *Error) WithHint(hint string) *Error {
	out := *e
	out.Hint = hint
	return &out
}

// WithRetry returns a copy of e with RetryCommand set.
func (e *Error) WithRetry(cmd string) *Error {
	out := *e
	out.RetryCommand = cmd
	return &out
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if ok := asError(err, &pe); ok {
		return pe.Kind, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if pe, ok := err.(*Error); ok {
			*target = pe
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

// Recoverable reports whether this Kind's propagation policy is local
// recovery (skip + diagnostic) rather than a surfaced tool error.
func (k Kind) Recoverable() bool {
	switch k {
	case Sandbox:
		return true
	default:
		return false
	}
}
