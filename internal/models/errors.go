package models

// Error is a structured domain error with a machine-readable code. Callers
// match on Code via errors.As; the message is for humans.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

const (
	CodeValidation      = "validation"
	CodeTransition      = "invalid_transition"
	CodeNotFound        = "not_found"
	CodeImmutable       = "immutable"
	CodeRetryNotAllowed = "retry_not_allowed"
)

func ValidationError(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

func TransitionError(msg string) *Error {
	return &Error{Code: CodeTransition, Message: msg}
}

func NotFoundError(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

func ImmutableError(msg string) *Error {
	return &Error{Code: CodeImmutable, Message: msg}
}

func RetryNotAllowedError(msg string) *Error {
	return &Error{Code: CodeRetryNotAllowed, Message: msg}
}
