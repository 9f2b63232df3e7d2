package customdomain

import (
	"errors"
	"fmt"
)

// Code identifies a custom domain failure. Codes are stable strings so they
// serialize naturally into API responses.
type Code string

const (
	CodeDomainAlreadyUsed      Code = "DOMAIN_ALREADY_USED"
	CodeInvalidDomainFormat    Code = "INVALID_DOMAIN_FORMAT"
	CodeDomainNotFound         Code = "DOMAIN_NOT_FOUND"
	CodeDNSVerificationFailed  Code = "DNS_VERIFICATION_FAILED"
	CodeVerificationInProgress Code = "VERIFICATION_IN_PROGRESS"
	CodeSSLNotReady            Code = "SSL_NOT_READY"
	CodeSSLProvisionFailed     Code = "SSL_PROVISION_FAILED"
	CodeTenantMismatch         Code = "TENANT_MISMATCH"
	CodeDatabaseError          Code = "DATABASE_ERROR"
)

// Error is the typed error returned by the domain registry. Message is safe
// to show to end users; Details carries machine-readable context such as the
// expected and found CNAME values.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so callers can write
// errors.Is(err, customdomain.ErrDomainNotFound).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError builds an Error with optional details.
func NewError(code Code, message string, details map[string]any) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

// Wrap builds an Error that wraps a cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code carried by err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Sentinels for errors.Is comparisons.
var (
	ErrDomainAlreadyUsed      = &Error{Code: CodeDomainAlreadyUsed}
	ErrInvalidDomainFormat    = &Error{Code: CodeInvalidDomainFormat}
	ErrDomainNotFound         = &Error{Code: CodeDomainNotFound}
	ErrDNSVerificationFailed  = &Error{Code: CodeDNSVerificationFailed}
	ErrVerificationInProgress = &Error{Code: CodeVerificationInProgress}
	ErrSSLNotReady            = &Error{Code: CodeSSLNotReady}
	ErrSSLProvisionFailed     = &Error{Code: CodeSSLProvisionFailed}
	ErrTenantMismatch         = &Error{Code: CodeTenantMismatch}
	ErrDatabase               = &Error{Code: CodeDatabaseError}
)
