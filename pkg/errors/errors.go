// Package errors defines the coded error type shared by the backend and the
// storefront engine. A code fixes the HTTP status, the public message and
// the user-facing Kind of every error that carries it.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodePrecondition  Code = "FAILED_PRECONDITION"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeProcessor     Code = "PAYMENT_PROCESSOR_ERROR"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata is what a code means on the wire.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	Kind           Kind
}

// registry lists every code once. Statuses are unique except 422 and 409,
// where the first row wins in CodeForStatus.
var registry = []struct {
	code Code
	meta Metadata
}{
	{CodeValidation, Metadata{HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true, Kind: KindValidation}},
	{CodeUnauthorized, Metadata{HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required", Kind: KindAuthRequired}},
	{CodeForbidden, Metadata{HTTPStatus: http.StatusForbidden, PublicMessage: "access denied", Kind: KindAuthRequired}},
	{CodeNotFound, Metadata{HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found", Kind: KindServerLogic}},
	{CodeConflict, Metadata{HTTPStatus: http.StatusConflict, PublicMessage: "conflict detected", DetailsAllowed: true, Kind: KindServerLogic}},
	{CodeStateConflict, Metadata{HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true, Kind: KindServerLogic}},
	{CodePrecondition, Metadata{HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "operation preconditions not met", DetailsAllowed: true, Kind: KindServerLogic}},
	{CodeIdempotency, Metadata{HTTPStatus: http.StatusConflict, PublicMessage: "idempotency key reused", DetailsAllowed: true, Kind: KindServerLogic}},
	{CodeRateLimit, Metadata{HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded", Kind: KindServerLogic}},
	{CodeProcessor, Metadata{HTTPStatus: http.StatusPaymentRequired, PublicMessage: "payment processor declined the request", DetailsAllowed: true, Kind: KindProcessor}},
	{CodeInternal, Metadata{HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error", Kind: KindServerLogic}},
	{CodeDependency, Metadata{HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true, Kind: KindNetwork}},
}

var (
	metaByCode   = make(map[Code]Metadata, len(registry))
	codeByStatus = make(map[int]Code, len(registry))
)

func init() {
	for _, row := range registry {
		metaByCode[row.code] = row.meta
		if _, taken := codeByStatus[row.meta.HTTPStatus]; !taken {
			codeByStatus[row.meta.HTTPStatus] = row.code
		}
	}
}

// MetadataFor returns the wire metadata of code; unknown codes are internal.
func MetadataFor(code Code) Metadata {
	if meta, ok := metaByCode[code]; ok {
		return meta
	}
	return metaByCode[CodeInternal]
}

// CodeForStatus maps a collaborator's HTTP status back onto a code. Unknown
// 4xx statuses collapse to validation and any 5xx to dependency.
func CodeForStatus(status int) Code {
	switch {
	case status >= http.StatusInternalServerError:
		return CodeDependency
	case status < http.StatusBadRequest:
		return CodeInternal
	}
	if code, ok := codeByStatus[status]; ok {
		return code
	}
	return CodeValidation
}

// Error is a coded error. The zero cause means the error originates here.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
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

// WithDetails sets the client-visible details and returns e.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost coded error in err's chain has code.
func IsCode(err error, code Code) bool {
	return As(err).codeOr("") == code
}

func (e *Error) codeOr(fallback Code) Code {
	if e == nil {
		return fallback
	}
	return e.code
}
