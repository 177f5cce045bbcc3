// Package apperrors defines the error taxonomy shared by the control plane,
// the permission engine and the tenant data gateway.
//
// Every error that crosses a package boundary and needs an HTTP status is an
// *Error carrying a Kind. Denials produced by the permission resolver are NOT
// errors; they are returned as decisions. Only conditions a caller has to act
// on (bad input, a violated precondition, an unreachable store) are errors.
package apperrors

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies an error for propagation and status mapping
type Kind string

const (
	KindAuthentication      Kind = "authentication"
	KindAuthorizationDenied Kind = "authorization_denied"
	KindValidation          Kind = "validation"
	KindBusinessRule        Kind = "business_rule"
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindProvisioning        Kind = "provisioning"
	KindStoreUnavailable    Kind = "store_unavailable"
	KindInternal            Kind = "internal"
)

// Well-known codes attached to business rule and conflict errors.
const (
	CodeDuplicateModule               = "DuplicateModule"
	CodeModuleInUse                   = "ModuleInUse"
	CodeModuleInactive                = "ModuleInactive"
	CodeDeleteBlockedByActiveChildren = "DeleteBlockedByActiveChildren"
	CodeTimeSlotConflict              = "TimeSlotConflict"
	CodeInvalidSlug                   = "InvalidSlug"
	CodeDuplicateOrganization         = "DuplicateOrganization"
	CodeDuplicatePage                 = "DuplicatePage"
	CodeDuplicateEmail                = "DuplicateEmail"
	CodeDuplicateCourt                = "DuplicateCourt"
	CodeCourtInactive                 = "CourtInactive"
)

// Error is a classified application error
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(err error, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

func Unauthenticated(message string) *Error {
	return New(KindAuthentication, "", message)
}

// Denied builds an authorization error carrying the resolver reason as Code
func Denied(reason, message string) *Error {
	return New(KindAuthorizationDenied, reason, message)
}

func Validation(message string) *Error {
	return New(KindValidation, "", message)
}

func InvalidField(field, problem string) *Error {
	return New(KindValidation, "", fmt.Sprintf("%s %s", field, problem))
}

func BusinessRule(code, message string) *Error {
	return New(KindBusinessRule, code, message)
}

func NotFound(resource, id string) *Error {
	return New(KindNotFound, "", fmt.Sprintf("%s not found: %s", resource, id))
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

func Provisioning(message string, err error) *Error {
	return &Error{Kind: KindProvisioning, Message: message, Err: err}
}

// KindOf returns the kind of err. Unclassified errors are inspected for
// connection failures, everything else is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if isUnavailable(err) {
		return KindStoreUnavailable
	}
	return KindInternal
}

// CodeOf returns the machine-readable code of err, if any
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Classify wraps unclassified store errors so callers can map them.
// Errors that are already classified are returned unchanged.
func Classify(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	if isUnavailable(err) {
		return &Error{Kind: KindStoreUnavailable, Message: message, Err: err}
	}
	return fmt.Errorf("%s: %w", message, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}

func is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func IsAuthentication(err error) bool      { return is(err, KindAuthentication) }
func IsAuthorizationDenied(err error) bool { return is(err, KindAuthorizationDenied) }
func IsValidation(err error) bool          { return is(err, KindValidation) }
func IsBusinessRule(err error) bool        { return is(err, KindBusinessRule) }
func IsNotFound(err error) bool            { return is(err, KindNotFound) }
func IsConflict(err error) bool            { return is(err, KindConflict) }
func IsProvisioning(err error) bool        { return is(err, KindProvisioning) }
func IsStoreUnavailable(err error) bool    { return is(err, KindStoreUnavailable) }

// HasCode reports whether err carries the given code
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}

// HTTPStatus maps an error to the response status code
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorizationDenied:
		return http.StatusForbidden
	case KindValidation, KindBusinessRule:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	}
}
