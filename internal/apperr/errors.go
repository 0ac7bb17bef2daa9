// Package apperr classifies failures into the categories the UI reports
// differently: backend unavailable, bad input, authentication, network and
// storage. Every error crossing a service boundary is one of these kinds.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the category of a failure
type Kind int

const (
	KindUnknown Kind = iota
	KindUnavailable
	KindValidation
	KindAuth
	KindNetwork
	KindStorage
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNetwork:
		return "network"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Sentinel errors
var (
	ErrUnavailable     = New(KindUnavailable, "backend is not available")
	ErrNotLoggedIn     = New(KindAuth, "not logged in")
	ErrInvalidVideoRef = New(KindValidation, "invalid video reference")
)

// Error is a classified error
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "get_video_info"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Op != "" && e.Msg != "":
		return e.Op + ": " + e.Msg
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String() + " error"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an error of the given kind
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf returns an error of the given kind with a formatted message
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err as kind for operation op. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindUnknown && e.Err != nil {
			return KindOf(e.Err)
		}
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// UserMessage renders err for display. Authentication failures point the
// user at logging in; everything else carries the underlying message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindUnavailable:
		return "Backend is not available: " + err.Error()
	case KindValidation:
		return "Invalid input: " + err.Error()
	case KindAuth:
		return "Please log in again: " + err.Error()
	case KindStorage:
		return "Storage error: " + err.Error()
	default:
		return err.Error()
	}
}
