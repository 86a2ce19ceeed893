package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced to the host.
type Kind int

const (
	KindUnknown Kind = iota
	KindMalformedLocator
	KindConnectionExhausted
	KindConnectionFailed
	KindAuthenticationFailed
	KindCollectionNotFound
	KindConversionFailed
)

func (k Kind) String() string {
	switch k {
	case KindMalformedLocator:
		return "MalformedLocator"
	case KindConnectionExhausted:
		return "ConnectionExhausted"
	case KindConnectionFailed:
		return "ConnectionFailed"
	case KindAuthenticationFailed:
		return "AuthenticationFailed"
	case KindCollectionNotFound:
		return "CollectionNotFound"
	case KindConversionFailed:
		return "ConversionFailed"
	default:
		return "Unknown"
	}
}

// Sentinels for errors.Is checks. An *Error matches the sentinel of its Kind.
var (
	ErrMalformedLocator     = &Error{Kind: KindMalformedLocator, Message: "malformed locator"}
	ErrConnectionExhausted  = &Error{Kind: KindConnectionExhausted, Message: "connection pool exhausted"}
	ErrConnectionFailed     = &Error{Kind: KindConnectionFailed, Message: "connection failed"}
	ErrAuthenticationFailed = &Error{Kind: KindAuthenticationFailed, Message: "authentication failed"}
	ErrCollectionNotFound   = &Error{Kind: KindCollectionNotFound, Message: "collection not found"}
	ErrConversionFailed     = &Error{Kind: KindConversionFailed, Message: "conversion failed"}
)

// Error carries a Kind, the operation that failed and an optional cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so wrapped errors match the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf builds an error of the given kind with a formatted message.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: kind.String(), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retryable reports whether the caller may retry the operation later.
// Only pool exhaustion qualifies; transport failures are not retried by the core.
func Retryable(err error) bool {
	return KindOf(err) == KindConnectionExhausted
}
