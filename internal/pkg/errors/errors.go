package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound           = errors.New("resource not found")
	ErrAlreadyExists      = errors.New("resource already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrDatabaseError      = errors.New("database error")
	ErrCacheError         = errors.New("cache error")
	ErrInvalidCredentials = errors.New("invalid or inactive credential")
)

// Kind classifies a request failure. Every Kind maps to exactly one wire status
// except KindUpstream, which carries the provider's own status.
type Kind string

const (
	KindUnauthenticated    Kind = "UNAUTHENTICATED"
	KindDeploymentNotFound Kind = "DEPLOYMENT_NOT_FOUND"
	KindRouteNotFound      Kind = "NOT_FOUND"
	KindMethodNotAllowed   Kind = "METHOD_NOT_ALLOWED"
	KindQuotaExceeded      Kind = "QUOTA_EXCEEDED"
	KindRateLimited        Kind = "RATE_LIMITED"
	KindInvalidRequest     Kind = "INVALID_REQUEST"
	KindUpstream           Kind = "UPSTREAM_FAILURE"
	KindNoContent          Kind = "NO_CONTENT"
	KindInternal           Kind = "INTERNAL_ERROR"
)

type Error struct {
	Err     error
	Message string
	Code    string
	Kind    Kind
	// Status is only consulted for KindUpstream.
	Status int
	// Body holds the provider's raw error body when it is passed through unchanged.
	Body []byte
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Wrap(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
		Code:    string(KindInternal),
		Kind:    KindInternal,
	}
}

func Unauthenticated() *Error {
	return &Error{
		Err:     ErrInvalidCredentials,
		Message: "Access denied due to invalid or inactive credential.",
		Code:    string(KindUnauthenticated),
		Kind:    KindUnauthenticated,
	}
}

func DeploymentNotFound(name string) *Error {
	return &Error{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("The API deployment '%s' does not exist for this event.", name),
		Code:    string(KindDeploymentNotFound),
		Kind:    KindDeploymentNotFound,
	}
}

func RouteNotFound() *Error {
	return &Error{
		Err:     ErrNotFound,
		Message: "The requested path does not exist.",
		Code:    string(KindRouteNotFound),
		Kind:    KindRouteNotFound,
	}
}

func MethodNotAllowed(method string) *Error {
	return &Error{
		Message: fmt.Sprintf("The method '%s' is not allowed for this path.", method),
		Code:    string(KindMethodNotAllowed),
		Kind:    KindMethodNotAllowed,
	}
}

func QuotaExceeded() *Error {
	return &Error{
		Message: "The event has exhausted its token allotment.",
		Code:    string(KindQuotaExceeded),
		Kind:    KindQuotaExceeded,
	}
}

func RateLimited() *Error {
	return &Error{
		Message: "Too many requests for this event. Please retry shortly.",
		Code:    string(KindRateLimited),
		Kind:    KindRateLimited,
	}
}

func InvalidRequest(complaint string) *Error {
	return &Error{
		Err:     ErrInvalidInput,
		Message: complaint,
		Code:    string(KindInvalidRequest),
		Kind:    KindInvalidRequest,
	}
}

// Upstream records a provider failure. status 0 means the provider was never reached.
func Upstream(status int, message string, err error) *Error {
	if status == 0 {
		status = http.StatusBadGateway
	}
	return &Error{
		Err:     err,
		Message: message,
		Code:    string(KindUpstream),
		Kind:    KindUpstream,
		Status:  status,
	}
}

// UpstreamPassthrough keeps the provider's JSON error body as the response body.
func UpstreamPassthrough(status int, body []byte) *Error {
	return &Error{
		Message: "upstream returned an error",
		Code:    string(KindUpstream),
		Kind:    KindUpstream,
		Status:  status,
		Body:    body,
	}
}

func NoContent() *Error {
	return &Error{
		Message: "no content",
		Code:    string(KindNoContent),
		Kind:    KindNoContent,
	}
}

// KindOf reports the Kind of err, KindInternal for anything untyped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}
