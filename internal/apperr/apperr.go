// Package apperr is the error taxonomy shared by the REST layer and the
// real-time gateway. Services return *Error values; transports translate the
// Kind into an HTTP status or an "error" event on the offending connection.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindAuthentication      Kind = "authentication"
	KindAuthorization       Kind = "authorization"
	KindConflict            Kind = "conflict"
	KindBlocked             Kind = "blocked"
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindOperationNotAllowed Kind = "operation_not_allowed"
)

// Codes refine a Kind for clients that branch on the exact failure.
const (
	CodeNotMember            = "NOT_MEMBER"
	CodeNotAdmin             = "NOT_ADMIN"
	CodeNotSender            = "NOT_SENDER"
	CodeNotParticipant       = "NOT_PARTICIPANT"
	CodeSelfRemovalForbidden = "SELF_REMOVAL_FORBIDDEN"
	CodeBlocked              = "BLOCKED"
	CodeEditWindowExpired    = "EDIT_WINDOW_EXPIRED"
	CodeNotEditable          = "NOT_EDITABLE"
	CodeInvalidCallType      = "INVALID_CALL_TYPE"
	CodeSelfCall             = "SELF_CALL"
	CodeCallNotLive          = "CALL_NOT_LIVE"
	CodeCallerBusy           = "CALLER_BUSY"
	CodeNotGroup             = "NOT_GROUP"
	CodeInvalidPayload       = "INVALID_PAYLOAD"
	CodeNotFound             = "NOT_FOUND"
	CodeUnauthenticated      = "UNAUTHENTICATED"
	CodeRateLimited          = "RATE_LIMITED"
	CodeInternal             = "INTERNAL"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on Kind and Code so sentinel-style comparisons work:
// errors.Is(err, apperr.NotMember()).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func NotMember() *Error {
	return New(KindAuthorization, CodeNotMember, "user is not an active member of this chat")
}

func NotAdmin() *Error {
	return New(KindAuthorization, CodeNotAdmin, "only the group admin can do this")
}

func NotSender() *Error {
	return New(KindAuthorization, CodeNotSender, "only the sender can modify this message")
}

func SelfRemovalForbidden() *Error {
	return New(KindAuthorization, CodeSelfRemovalForbidden, "use leave instead of removing yourself")
}

func Blocked() *Error {
	return New(KindBlocked, CodeBlocked, "messaging between these users is blocked")
}

func NotGroup() *Error {
	return New(KindOperationNotAllowed, CodeNotGroup, "operation is only allowed on group chats")
}

func NotFound(what string) *Error {
	return New(KindNotFound, CodeNotFound, what+" not found")
}

func Validation(code, msg string) *Error {
	return New(KindValidation, code, msg)
}

// KindOf returns the Kind of the first *Error in err's chain, or "" for
// errors outside the taxonomy (infrastructure failures).
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error to the status the REST layer should answer with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization, KindBlocked:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindOperationNotAllowed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
