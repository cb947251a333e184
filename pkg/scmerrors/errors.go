// Package scmerrors is the discriminated error taxonomy shared by
// every state manager. Every error a state manager returns carries a
// Kind; only the fatal kinds (Internal, MetadataError, Corruption) are ever
// allowed to terminate the process — everything else propagates to
// the RPC layer as a typed response code.
package scmerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind discriminates the error taxonomy.
type Kind int

const (
	// Unknown is the zero value; it should never appear on a returned
	// error built through New/Wrap.
	Unknown Kind = iota
	NotFound
	AlreadyExists
	InvalidStateTransition
	InsufficientDatanodes
	NotLeader
	Timeout
	Conflict
	Internal
	MetadataError
	SecurityInitFailed
	Corruption
	IoFailed
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case InvalidStateTransition:
		return "InvalidStateTransition"
	case InsufficientDatanodes:
		return "InsufficientDatanodes"
	case NotLeader:
		return "NotLeader"
	case Timeout:
		return "Timeout"
	case Conflict:
		return "Conflict"
	case Internal:
		return "INTERNAL_ERROR"
	case MetadataError:
		return "METADATA_ERROR"
	case SecurityInitFailed:
		return "SecurityInitFailed"
	case Corruption:
		return "Corruption"
	case IoFailed:
		return "IoFailed"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a discriminated Kind and, for
// NotLeader, the hint of who the caller should retry against.
type Error struct {
	kind       Kind
	leaderHint string
	cause      error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.kind.String()
	}
	return fmt.Sprintf("%s: %v", e.kind.String(), e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf returns the discriminated kind of err, or Unknown if err was not
// built by this package.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.kind
	}
	return Unknown
}

// LeaderHint returns the suggested leader id carried by a NotLeader
// error, if any.
func LeaderHint(err error) (string, bool) {
	var se *Error
	if errors.As(err, &se) && se.kind == NotLeader {
		return se.leaderHint, true
	}
	return "", false
}

// New builds a new error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{kind: kind, cause: errors.New(msg)}
}

// Wrap attaches a kind to an existing error, preserving it as the cause.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, cause: errors.Wrap(err, msg)}
}

// NotLeaderErr builds a NotLeader error carrying the current leader hint
// (may be empty if the replica doesn't know who the leader is).
func NotLeaderErr(hint string) error {
	return &Error{kind: NotLeader, leaderHint: hint, cause: errors.New("not the raft leader")}
}

// Fatal reports whether a Kind is one of the three apply-time fatal
// kinds: the apply goroutine must log, flush, and exit the process
// rather than continue applying after one of these.
func (k Kind) Fatal() bool {
	return k == Internal || k == MetadataError || k == Corruption
}

// Is implements errors.Is support by kind, so callers can write
// errors.Is(err, scmerrors.New(scmerrors.NotFound, "")) sparingly, but
// normally should use KindOf(err) == scmerrors.NotFound instead.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == t.kind
}
