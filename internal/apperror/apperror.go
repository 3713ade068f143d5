// Package apperror defines the error type carried from services to the HTTP
// layer together with the numeric error codes exposed in every response.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the numeric errorCode field of the response envelope.
type Code int

const (
	CodeSuccess          Code = 0
	CodeUnknown          Code = 1
	CodeInvalidRequest   Code = 2
	CodeMissingParameter Code = 3
	CodeInvalidParameter Code = 4

	CodeAuthRequired       Code = 100
	CodeInvalidToken       Code = 101
	CodeTokenExpired       Code = 102
	CodeTokenRevoked       Code = 103
	CodeInvalidCredentials Code = 104
	CodeAccountDisabled    Code = 105
	CodeAccountLocked      Code = 106
	CodePermissionDenied   Code = 107

	CodeBadRequest        Code = 200
	CodeValidationError   Code = 201
	CodeRateLimitExceeded Code = 202
	CodeInvalidInput      Code = 203

	CodeNotFound      Code = 300
	CodeAlreadyExists Code = 301
	CodeConflict      Code = 302

	CodeInternal        Code = 500
	CodeDatabase        Code = 501
	CodeExternalService Code = 502
	CodeTimeout         Code = 503

	CodeBusiness        Code = 600
	CodeOperationFailed Code = 601
	CodeInvalidState    Code = 602
)

var statusCodes = map[int]Code{
	http.StatusBadRequest:          CodeBadRequest,
	http.StatusUnauthorized:        CodeAuthRequired,
	http.StatusForbidden:           CodePermissionDenied,
	http.StatusNotFound:            CodeNotFound,
	http.StatusConflict:            CodeConflict,
	http.StatusUnprocessableEntity: CodeOperationFailed,
	http.StatusTooManyRequests:     CodeRateLimitExceeded,
	http.StatusInternalServerError: CodeInternal,
	http.StatusBadGateway:          CodeExternalService,
	http.StatusGatewayTimeout:      CodeTimeout,
}

// CodeForStatus returns the default error code for an HTTP status.
func CodeForStatus(status int) Code {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	if status >= 500 {
		return CodeInternal
	}
	return CodeUnknown
}

// AppError is an error that knows how it should be rendered to a client.
type AppError struct {
	Code    Code
	Status  int
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New builds an AppError with an explicit code and status.
func New(code Code, status int, message string) *AppError {
	return &AppError{Code: code, Status: status, Message: message}
}

// Wrap attaches a cause to a new AppError.
func Wrap(err error, code Code, status int, message string) *AppError {
	return &AppError{Code: code, Status: status, Message: message, Cause: err}
}

func NotFound(message string) *AppError {
	return New(CodeNotFound, http.StatusNotFound, message)
}

func BadRequest(message string) *AppError {
	return New(CodeBadRequest, http.StatusBadRequest, message)
}

func InvalidParameter(message string) *AppError {
	return New(CodeInvalidParameter, http.StatusBadRequest, message)
}

func Unauthorized(code Code, message string) *AppError {
	return New(code, http.StatusUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return New(CodePermissionDenied, http.StatusForbidden, message)
}

func Conflict(message string) *AppError {
	return New(CodeAlreadyExists, http.StatusConflict, message)
}

func Unprocessable(message string, cause error) *AppError {
	return Wrap(cause, CodeOperationFailed, http.StatusUnprocessableEntity, message)
}

func TooManyRequests(message string) *AppError {
	return New(CodeRateLimitExceeded, http.StatusTooManyRequests, message)
}

func Internal(err error) *AppError {
	return Wrap(err, CodeInternal, http.StatusInternalServerError, "internal server error")
}

// FromError converts any error into an AppError. Errors that are not already
// AppErrors become 500s.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
