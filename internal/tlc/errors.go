package tlc

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the failures the core can report. The HTTP surface
// collapses these kinds onto its five wire error codes.
type ErrorKind int

const (
	// KindInvalidArgument marks a setter rejection; state is unchanged.
	KindInvalidArgument ErrorKind = iota
	// KindPreconditionUnsatisfied marks a stage whose inputs are missing.
	KindPreconditionUnsatisfied
	// KindNotReady marks a query for a datum that has not been computed yet.
	KindNotReady
	// KindDecodeFailed marks an unrecoverable video decode error.
	KindDecodeFailed
	// KindDaqParseFailed marks an unrecoverable DAQ parse error.
	KindDaqParseFailed
	// KindInterpolationInvalid marks an admit-time interpolation rejection.
	KindInterpolationInvalid
	// KindCanceled marks a worker that observed its stage's cancel flag and quit.
	KindCanceled
	// KindStageFailed marks a stage whose last run ended in an error.
	KindStageFailed
	// KindInternal marks an unreachable-state bug.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindPreconditionUnsatisfied:
		return "PreconditionUnsatisfied"
	case KindNotReady:
		return "NotReady"
	case KindDecodeFailed:
		return "DecodeFailed"
	case KindDaqParseFailed:
		return "DaqParseFailed"
	case KindInterpolationInvalid:
		return "InterpolationInvalid"
	case KindCanceled:
		return "Canceled"
	case KindStageFailed:
		return "StageFailed"
	case KindInternal:
		return "Internal"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the typed error value propagated through the core. It carries the
// kind for dispatch and an optional wrapped cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches two Errors by kind so errors.Is(err, &Error{Kind: k}) works
// against sentinel values.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// Errf builds an Error with a formatted message.
func Errf(kind ErrorKind, format string, v ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, v...)}
}

// Wrapf builds an Error wrapping a cause.
func Wrapf(kind ErrorKind, cause error, format string, v ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, v...), Cause: cause}
}

// Sentinels for errors.Is matching by kind.
var (
	ErrNotReady = &Error{Kind: KindNotReady, Message: "not ready"}
	ErrCanceled = &Error{Kind: KindCanceled, Message: "canceled"}
)

// KindOf extracts the ErrorKind of err, defaulting to KindInternal for
// untyped errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
