// Package errors provides coded error types for the auth gateway.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code represents an application error code.
type Code string

// Error codes for the gateway.
const (
	CodeInternal     Code = "INTERNAL"
	CodeInvalidInput Code = "INVALID_INPUT"
	CodeNotFound     Code = "NOT_FOUND"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeRateLimited  Code = "RATE_LIMITED"

	CodeTokenExpired        Code = "TOKEN_EXPIRED"
	CodeTokenInvalid        Code = "TOKEN_INVALID"
	CodeInvalidRefreshToken Code = "INVALID_REFRESH_TOKEN"
	CodeOAuthExchange       Code = "OAUTH_EXCHANGE_FAILED"
	CodeIdentityResolution  Code = "IDENTITY_RESOLUTION_FAILED"
)

// Error is the gateway's custom error type with a code and optional cause.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if the target error has the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Wrap wraps an underlying error.
func (e *Error) Wrap(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Err: err}
}

// New creates a new Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeInternal for plain errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus maps an error to an HTTP status code.
func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized, CodeTokenExpired, CodeTokenInvalid, CodeInvalidRefreshToken:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Common error constructors

// Internal creates an internal error.
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// InternalWrap creates an internal error wrapping another error.
func InternalWrap(message string, err error) *Error {
	return Wrap(CodeInternal, message, err)
}

// InvalidInput creates an invalid input error.
func InvalidInput(message string) *Error {
	return New(CodeInvalidInput, message)
}

// NotFound creates a not found error.
func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *Error {
	return New(CodeUnauthorized, message)
}

// RateLimited creates a rate limited error.
func RateLimited(message string) *Error {
	return New(CodeRateLimited, message)
}

// TokenExpired creates a token expired error.
func TokenExpired(message string) *Error {
	return New(CodeTokenExpired, message)
}

// TokenInvalid creates a token invalid error.
func TokenInvalid(message string) *Error {
	return New(CodeTokenInvalid, message)
}

// InvalidRefreshToken creates an invalid refresh token error.
func InvalidRefreshToken(message string) *Error {
	return New(CodeInvalidRefreshToken, message)
}

// OAuthExchange creates a provider exchange error.
func OAuthExchange(message string) *Error {
	return New(CodeOAuthExchange, message)
}

// OAuthExchangeWrap creates a provider exchange error wrapping another error.
func OAuthExchangeWrap(message string, err error) *Error {
	return Wrap(CodeOAuthExchange, message, err)
}

// IdentityResolution creates an identity resolution error.
func IdentityResolution(message string) *Error {
	return New(CodeIdentityResolution, message)
}

// IdentityResolutionWrap creates an identity resolution error wrapping another error.
func IdentityResolutionWrap(message string, err error) *Error {
	return Wrap(CodeIdentityResolution, message, err)
}
