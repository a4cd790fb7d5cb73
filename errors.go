package kernel

import "fmt"

// Kind is the flat result-code taxonomy surfaced by every public kernel
// operation. The numeric encoding is fixed so that it can be
// embedded in a stable binary interface; callers should match on Kind via
// errors.Is/errors.As rather than depending on the exact integer value.
type Kind int32

const (
	// OK is never returned as an error; it exists so Kind's zero value is
	// meaningful in diagnostics.
	OK Kind = 0

	// BadContext: current execution context does not permit this call.
	BadContext Kind = -1
	// NotOwner: caller does not own the referenced resource.
	NotOwner Kind = -2
	// WouldDeadlock: operation would self-deadlock.
	WouldDeadlock Kind = -3
	// BadObjectState: target is not in a compatible state.
	BadObjectState Kind = -4
	// QueueOverflow: per-object capacity limit reached.
	QueueOverflow Kind = -5
	// Abandoned: mutex was held by a task that exited.
	Abandoned Kind = -6
	// Interrupted: wait was ended by InterruptTask.
	Interrupted Kind = -7
	// Timeout: wait ended at its registered deadline.
	Timeout Kind = -8
	// BadParam: numeric argument out of range or protocol-invalid.
	BadParam Kind = -9
	// NotSupported: Port does not implement this operation.
	NotSupported Kind = -10
	// NoAccess: object-identity failure (invalid handle). An object-safety
	// violation; may also be escalated to a panic instead of returned.
	NoAccess Kind = -11
)

var kindNames = map[Kind]string{
	OK:             "OK",
	BadContext:     "BadContext",
	NotOwner:       "NotOwner",
	WouldDeadlock:  "WouldDeadlock",
	BadObjectState: "BadObjectState",
	QueueOverflow:  "QueueOverflow",
	Abandoned:      "Abandoned",
	Interrupted:    "Interrupted",
	Timeout:        "Timeout",
	BadParam:       "BadParam",
	NotSupported:   "NotSupported",
	NoAccess:       "NoAccess",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int32(k))
}

// Result is the error type returned by every kernel primitive. It is
// comparable, so sentinel values (e.g. ErrTimeout) can be compared with
// errors.Is, and Kind() lets callers switch on the category without an
// errors.As type assertion for the common case.
type Result struct {
	kind Kind
	op   string
}

func (r *Result) Error() string {
	if r.op == "" {
		return r.kind.String()
	}
	return r.op + ": " + r.kind.String()
}

// Kind returns the result code category.
func (r *Result) Kind() Kind { return r.kind }

// Code returns the fixed negative numeric encoding for this result.
func (r *Result) Code() int32 { return int32(r.kind) }

// Is makes Result compatible with errors.Is against the package-level
// Err* sentinels and against other *Result values sharing a Kind.
func (r *Result) Is(target error) bool {
	other, ok := target.(*Result)
	if !ok {
		return false
	}
	return r.kind == other.kind
}

func newErr(op string, kind Kind) error {
	return &Result{kind: kind, op: op}
}

// Package-level sentinels for errors.Is comparisons, e.g.
// errors.Is(err, kernel.ErrTimeout).
var (
	ErrBadContext     = &Result{kind: BadContext}
	ErrNotOwner       = &Result{kind: NotOwner}
	ErrWouldDeadlock  = &Result{kind: WouldDeadlock}
	ErrBadObjectState = &Result{kind: BadObjectState}
	ErrQueueOverflow  = &Result{kind: QueueOverflow}
	ErrAbandoned      = &Result{kind: Abandoned}
	ErrInterrupted    = &Result{kind: Interrupted}
	ErrTimeout        = &Result{kind: Timeout}
	ErrBadParam       = &Result{kind: BadParam}
	ErrNotSupported   = &Result{kind: NotSupported}
	ErrNoAccess       = &Result{kind: NoAccess}
)

// KindOf extracts the Kind from an error returned by this package, or OK
// if err is nil, or a zero Kind if err did not originate here.
func KindOf(err error) Kind {
	if err == nil {
		return OK
	}
	if r, ok := err.(*Result); ok {
		return r.kind
	}
	return Kind(0)
}

// panicf escalates a violated kernel invariant to process termination: an
// assertion failure inside the scheduler or mutex chain indicates Port or
// configuration corruption, not a recoverable error.
func panicf(format string, args ...any) {
	panic(fmt.Sprintf(format, args...))
}
