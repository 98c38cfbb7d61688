package sps

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller.
type Kind uint8

const (
	// KindInternal is anything that is not the caller's fault.
	KindInternal Kind = iota
	// KindNotFound means the addressed entity does not exist.
	KindNotFound
	// KindValidation means the input was rejected.
	KindValidation
	// KindConflict means the request clashes with current state.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a user-facing error with a Kind. Op names the operation that
// failed; Err, when set, is the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return "sps: " + e.Op + ": " + msg
	}
	return "sps: " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound returns a KindNotFound error for op.
func NotFound(op, msg string) error {
	return &Error{Kind: KindNotFound, Op: op, Msg: msg}
}

// Invalid returns a KindValidation error for op wrapping cause.
func Invalid(op string, cause error) error {
	return &Error{Kind: KindValidation, Op: op, Err: cause}
}

// Invalidf returns a KindValidation error with a formatted message.
func Invalidf(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Conflict returns a KindConflict error for op.
func Conflict(op, msg string) error {
	return &Error{Kind: KindConflict, Op: op, Msg: msg}
}

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsNotFound reports whether err is a KindNotFound error.
func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }

// IsValidation reports whether err is a KindValidation error.
func IsValidation(err error) bool { return err != nil && KindOf(err) == KindValidation }

var (
	// Store errors.
	ErrNoStore         = errors.New("sps: no store configured")
	ErrStoreClosed     = errors.New("sps: store closed")
	ErrMigrationFailed = errors.New("sps: migration failed")

	// Workflow and scheduling errors.
	ErrRunNotFound      = &Error{Kind: KindNotFound, Msg: "run not found"}
	ErrRunExists        = &Error{Kind: KindConflict, Msg: "run already exists"}
	ErrWorkflowNotFound = &Error{Kind: KindNotFound, Msg: "workflow not registered"}
	ErrCronNotFound     = &Error{Kind: KindNotFound, Msg: "cron entry not found"}
	ErrDuplicateCron    = &Error{Kind: KindConflict, Msg: "duplicate cron entry"}
	ErrWorkerNotFound   = &Error{Kind: KindNotFound, Msg: "worker not found"}
	ErrInvalidState     = &Error{Kind: KindConflict, Msg: "invalid state transition"}

	// Actor errors.
	ErrEventNotFound = &Error{Kind: KindNotFound, Msg: "Event not found"}
	ErrGuestNotFound = &Error{Kind: KindNotFound, Msg: "Guest not found"}
	ErrEmailNotFound = &Error{Kind: KindNotFound, Msg: "Email not found"}
	ErrUnsubscribed  = &Error{Kind: KindValidation, Msg: "You're unsubscribed from our email list"}
	ErrBreakOverlap  = &Error{Kind: KindConflict, Msg: "Break period overlaps with existing break"}
	ErrInBreak       = &Error{Kind: KindConflict, Msg: "Cannot reschedule event during a break period"}
	ErrNotCanceled   = &Error{Kind: KindConflict, Msg: "Event is not canceled"}
	ErrEventEnded    = &Error{Kind: KindConflict, Msg: "Event has already ended"}

	// Door errors.
	ErrDoorLocked = &Error{Kind: KindConflict, Msg: "Door is locked"}
)
