package services

import (
	"errors"
	"fmt"
)

// Error codes carried by ServiceError.
const (
	CodeOrderNotFound   = "ORDER_NOT_FOUND"
	CodeVendorNotFound  = "VENDOR_NOT_FOUND"
	CodeValidation      = "VALIDATION_ERROR"
	CodeFetch           = "FETCH_ERROR"
	CodeStore           = "STORE_ERROR"
	CodeUpstream        = "UPSTREAM_ERROR"
	CodeInvalidDocument = "INVALID_DOCUMENT"
)

// ServiceError is returned by every service in this package.
type ServiceError struct {
	Code    string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is matches any ServiceError with the same code.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrOrderNotFound  = &ServiceError{Code: CodeOrderNotFound, Message: "order not found"}
	ErrVendorNotFound = &ServiceError{Code: CodeVendorNotFound, Message: "no vendor found for restaurant"}
	ErrValidation     = &ServiceError{Code: CodeValidation, Message: "invalid input"}
	ErrFetch          = &ServiceError{Code: CodeFetch, Message: "failed to fetch orders"}
	ErrStore          = &ServiceError{Code: CodeStore, Message: "order store failure"}
	ErrUpstream       = &ServiceError{Code: CodeUpstream, Message: "upstream request failed"}
)

func newError(code, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, Err: err}
}

func validationError(format string, args ...interface{}) *ServiceError {
	return &ServiceError{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ErrorCode returns the ServiceError code of err, or "" when err is not one.
func ErrorCode(err error) string {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
