package tristore

import "fmt"

// Kind categorizes an Error so callers can branch on category rather
// than on a specific sentinel, generalizing the teacher's flat
// ErrNotFound/ErrDBFull sentinel pair into the taxonomy this store's
// surface area needs.
type Kind string

const (
	KindParse        Kind = "parse"
	KindInvalidInput Kind = "invalid_input"
	KindResource     Kind = "resource" // timeout | max_iterations_exceeded | memory_limit
	KindNotFound     Kind = "not_found"
	KindClosed       Kind = "closed"
	KindIO           Kind = "io"
	KindCorrupted    Kind = "corrupted"
	KindInternal     Kind = "internal"
)

// Error is the tagged error type every exported operation returns.
// Code is a short machine-readable sub-category ("timeout",
// "max_iterations_exceeded", "traversal", ...); Safe is a message fit
// for end-user display, distinct from Error() which also carries the
// wrapped cause for logs.
type Error struct {
	Kind  Kind
	Code  string
	Safe  string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("tristore: %s (%s): %v", e.Kind, e.Code, e.cause)
	}
	return fmt.Sprintf("tristore: %s (%s): %s", e.Kind, e.Code, e.Safe)
}

func (e *Error) Unwrap() error { return e.cause }

// newErr builds an Error wrapping cause under kind/code, with safe as
// the end-user-displayable message.
func newErr(kind Kind, code, safe string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Safe: safe, cause: cause}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, k Kind) bool {
	var e *Error
	if !asError(err, &e) {
		return false
	}
	return e.Kind == k
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
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
