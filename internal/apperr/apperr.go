// Package apperr defines the small set of error kinds the core distinguishes
// on, so callers can branch with errors.Is against a Kind while still
// getting a human-readable message from the wrapped error chain.
package apperr

import "errors"

// Kind identifies one of the error categories named by the design.
type Kind string

const (
	// BufferOverflow: frame parser exceeded its cap. Recovered locally.
	BufferOverflow Kind = "buffer_overflow"
	// InvalidMessage: malformed JSON or bad JSON-RPC schema on a line.
	InvalidMessage Kind = "invalid_message"
	// ChildSpawnFailure: the child process could not be started.
	ChildSpawnFailure Kind = "child_spawn_failure"
	// ChildUnexpectedExit: the child process exited unexpectedly.
	ChildUnexpectedExit Kind = "child_unexpected_exit"
	// ApprovalFailure: the human-approval callback panicked or errored.
	ApprovalFailure Kind = "approval_failure"
	// IOError: a best-effort audit file operation failed.
	IOError Kind = "io_error"
	// PatternRejected: a user-supplied regex was rejected as unsafe or invalid.
	PatternRejected Kind = "pattern_rejected"
)

// kindError pairs a Kind with an underlying error for errors.Is/As matching.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return string(e.kind) + ": " + e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// Is reports whether target is the same Kind wrapped in a kindError.
func (e *kindError) Is(target error) bool {
	var k *kindError
	if errors.As(target, &k) {
		return k.kind == e.kind
	}
	return false
}

// New wraps err with the given Kind. A nil err still yields a non-nil error
// carrying only the Kind's message, so New can be used to construct an error
// from scratch with fmt.Errorf-style detail baked into msg.
func New(kind Kind, msg string) error {
	return &kindError{kind: kind, err: errors.New(msg)}
}

// Wrap attaches a Kind to an existing error.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// Of reports whether err carries the given Kind anywhere in its chain.
func Of(err error, kind Kind) bool {
	return errors.Is(err, &kindError{kind: kind, err: errors.New("")})
}
