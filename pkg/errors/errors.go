package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code is the stable machine-readable identifier returned in API error bodies.
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

	// Workflow codes.
	CodeInvalidTransition      Code = "INVALID_TRANSITION"
	CodeInsufficientAllocation Code = "INSUFFICIENT_ALLOCATION"
	CodeDisbursementConflict   Code = "CONCURRENT_DISBURSEMENT_CONFLICT"
	CodeAuditRejected          Code = "AUDIT_REJECTED"
	CodePhaseFailed            Code = "PHASE_FAILED"
	CodeUnrecognizedStatus     Code = "UNRECOGNIZED_STATUS"
	CodeStaleWrite             Code = "STALE_WRITE"
	CodeInvariantViolation     Code = "INVARIANT_VIOLATION"
)

// Metadata describes how a code is surfaced over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

type flag uint8

const (
	retryable flag = 1 << iota
	withDetails
)

func describe(status int, public string, flags flag) Metadata {
	return Metadata{
		HTTPStatus:     status,
		Retryable:      flags&retryable != 0,
		PublicMessage:  public,
		DetailsAllowed: flags&withDetails != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    describe(http.StatusBadRequest, "validation failed", withDetails),
	CodeUnauthorized:  describe(http.StatusUnauthorized, "authentication required", 0),
	CodeForbidden:     describe(http.StatusForbidden, "access denied", 0),
	CodeNotFound:      describe(http.StatusNotFound, "resource not found", 0),
	CodeConflict:      describe(http.StatusConflict, "conflict detected", 0),
	CodeStateConflict: describe(http.StatusUnprocessableEntity, "state transition disallowed", withDetails),
	CodeIdempotency:   describe(http.StatusConflict, "idempotency key reused", withDetails),
	CodeRateLimit:     describe(http.StatusTooManyRequests, "rate limit exceeded", 0),
	CodeInternal:      describe(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    describe(http.StatusServiceUnavailable, "dependency unavailable", retryable|withDetails),

	CodeInvalidTransition:      describe(http.StatusUnprocessableEntity, "transition not allowed from current state", withDetails),
	CodeInsufficientAllocation: describe(http.StatusUnprocessableEntity, "amount exceeds remaining allocation", withDetails),
	CodeDisbursementConflict:   describe(http.StatusConflict, "disbursement already in flight", retryable|withDetails),
	CodeAuditRejected:          describe(http.StatusUnprocessableEntity, "expense proof rejected", withDetails),
	CodePhaseFailed:            describe(http.StatusUnprocessableEntity, "phase failed", withDetails),
	CodeUnrecognizedStatus:     describe(http.StatusConflict, "status undetermined", withDetails),
	CodeStaleWrite:             describe(http.StatusConflict, "resource changed since last read", retryable|withDetails),
	CodeInvariantViolation:     describe(http.StatusInternalServerError, "internal server error", 0),
}

// MetadataFor falls back to the internal error metadata for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error carrying an optional cause and client-safe details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
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

// As returns the outermost typed error in err's chain.
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

// IsCode reports whether err carries the provided typed code anywhere in its chain.
func IsCode(err error, code Code) bool {
	for err != nil {
		var typed *Error
		if !stdErrors.As(err, &typed) {
			return false
		}
		if typed.code == code {
			return true
		}
		err = typed.cause
	}
	return false
}

// IsRetryable reports whether the caller may retry the operation that produced err.
// Untyped errors are treated as internal failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if typed := As(err); typed != nil {
		return MetadataFor(typed.code).Retryable
	}
	return MetadataFor(CodeInternal).Retryable
}
