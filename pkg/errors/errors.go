package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code classifies an error for the HTTP layer and for logs.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeInsufficientStock     Code = "INSUFFICIENT_STOCK"
	CodeInsufficientFunds     Code = "INSUFFICIENT_FUNDS"
	CodeExpired               Code = "EXPIRED"
	CodeMemberLimitReached    Code = "MEMBER_LIMIT_REACHED"
	CodeInsufficientMembers   Code = "INSUFFICIENT_MEMBERS"
	CodeMinimumQuantityNotMet Code = "MINIMUM_QUANTITY_NOT_MET"
	CodeLeaderCannotLeave     Code = "LEADER_CANNOT_LEAVE"
)

// Metadata is how a code surfaces over HTTP. DetailsAllowed controls whether
// Details reach the client; domain rejections expose them so callers can show
// e.g. the available stock.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

func meta(status int, public string, details, retryable bool) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: public, DetailsAllowed: details, Retryable: retryable}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, "validation failed", true, false),
	CodeUnauthorized:  meta(http.StatusUnauthorized, "authentication required", false, false),
	CodeForbidden:     meta(http.StatusForbidden, "access denied", false, false),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found", false, false),
	CodeConflict:      meta(http.StatusConflict, "conflict detected", false, false),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, "state transition disallowed", true, false),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused", true, false),
	CodeRateLimit:     meta(http.StatusTooManyRequests, "rate limit exceeded", false, false),
	CodeInternal:      meta(http.StatusInternalServerError, "internal server error", false, true),
	CodeDependency:    meta(http.StatusServiceUnavailable, "dependency unavailable", true, true),

	// marketplace rejections
	CodeInsufficientStock:     meta(http.StatusConflict, "insufficient stock", true, false),
	CodeInsufficientFunds:     meta(http.StatusPaymentRequired, "insufficient funds", true, false),
	CodeExpired:               meta(http.StatusGone, "deadline passed", true, false),
	CodeMemberLimitReached:    meta(http.StatusConflict, "member limit reached", true, false),
	CodeInsufficientMembers:   meta(http.StatusUnprocessableEntity, "not enough members", true, false),
	CodeMinimumQuantityNotMet: meta(http.StatusUnprocessableEntity, "minimum quantity not met", true, false),
	CodeLeaderCannotLeave:     meta(http.StatusForbidden, "group leader cannot leave", false, false),
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error every service returns. Message is display-ready;
// cause stays internal and only shows up in logs.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf builds an error with a formatted, display-ready message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// HasCode reports whether err carries the provided code anywhere in its chain.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
