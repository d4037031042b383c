package ptask

import "fmt"

// Kind classifies an error surfaced by the engine. It is a closed sum: no
// other values are ever produced by this package.
type Kind int

const (
	// KindCancelled is returned by the caller-supplied cancel predicate.
	// It surfaces unchanged, wrapped only for context.
	KindCancelled Kind = iota
	// KindProcess wraps a non-cancellation error returned by a process
	// function. It is attached to the offending task's results record and
	// surfaced during drain, in drain order.
	KindProcess
	// KindOutput wraps an error returned by an output function. It
	// surfaces immediately from the drainer.
	KindOutput
	// KindInvariant marks a violation of one of the engine's structural
	// invariants (first-ready consistency, sub-task index ordering, and
	// so on). Code that detects one of these should call
	// panic, not return an *Error of this kind — see invariantf below.
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindCancelled:
		return "cancelled"
	case KindProcess:
		return "process"
	case KindOutput:
		return "output"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Error is the closed error type returned by Run and surfaced through the
// engine. Every error that crosses a package boundary is one of these.
type Error struct {
	Kind Kind
	// TaskIndex identifies the task that produced the error, if any. It is
	// the sub-task index relative to its parent; -1 for the root task or
	// when no single task is implicated.
	TaskIndex int
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ptask: %s", e.Kind)
	}
	return fmt.Sprintf("ptask: %s: %v", e.Kind, e.Err)
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsCancelled reports whether err is, or wraps, a cancellation error.
func IsCancelled(err error) bool {
	var pe *Error
	return asError(err, &pe) && pe.Kind == KindCancelled
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

func cancelledErr(cause error) *Error {
	return &Error{Kind: KindCancelled, TaskIndex: -1, Err: cause}
}

// CheckCancel polls cancel, if non-nil, and wraps a non-nil result as a
// KindCancelled error. Process and output functions call this as their own
// cancellation check; the engine itself never polls cancel on their behalf,
// so any other error they return is attributed to the task or the fragment
// being processed instead.
func CheckCancel(cancel CancelFunc, baton interface{}) error {
	if cancel == nil {
		return nil
	}
	if err := cancel(baton); err != nil {
		return cancelledErr(err)
	}
	return nil
}

// wrapProcessError attaches taskIdx to err for the results record, unless
// err is already one of our own *Error values (typically produced by
// CheckCancel), in which case its Kind is preserved unchanged.
func wrapProcessError(taskIdx int, err error) *Error {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*Error); ok {
		return pe
	}
	return processErr(taskIdx, err)
}

// wrapOutputError is wrapProcessError's counterpart for errors returned by
// output functions.
func wrapOutputError(taskIdx int, err error) *Error {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*Error); ok {
		return pe
	}
	return outputErr(taskIdx, err)
}

func processErr(taskIdx int, cause error) *Error {
	return &Error{Kind: KindProcess, TaskIndex: taskIdx, Err: cause}
}

func outputErr(taskIdx int, cause error) *Error {
	return &Error{Kind: KindOutput, TaskIndex: taskIdx, Err: cause}
}

// invariantf panics with a KindInvariant error. Invariant violations are
// reserved for assertions the engine itself would otherwise never trigger;
// they abort rather than recover.
func invariantf(format string, args ...interface{}) {
	panic(&Error{Kind: KindInvariant, TaskIndex: -1, Err: fmt.Errorf(format, args...)})
}
