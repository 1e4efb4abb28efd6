package errors

import "fmt"

// ErrorType classifies failures by how the caller should react to them.
type ErrorType string

const (
	// ErrorTypeTransport covers connection errors and timeouts. These are
	// the only failures the requester layer retries.
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeAuth covers missing or invalid credentials. Resolved only
	// by the token lifecycle, never by retrying the same request.
	ErrorTypeAuth ErrorType = "auth"
	// ErrorTypeSemantic covers well-formed responses the caller must
	// interpret: unexpected status, missing result object. Retrying an
	// identical request will not succeed.
	ErrorTypeSemantic ErrorType = "semantic"
	// ErrorTypePersistence covers local storage read/write failures.
	ErrorTypePersistence ErrorType = "persistence"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error is a failure with type information and, for HTTP-originated
// errors, the status code that produced it.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// New creates an Error of the given type.
func New(t ErrorType, code int, format string, args ...interface{}) *Error {
	return &Error{Type: t, Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether an error type should be retried.
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeTransport:
		return true
	default:
		return false
	}
}
