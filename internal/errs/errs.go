// Package errs provides the error taxonomy shared by the audit core.
//
// Every error the core returns to a caller is either an *Error carrying a
// Kind and a machine-readable Code, or an infrastructure error (storage,
// encoding) that callers treat as internal.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for callers that need to react to it.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindConcurrency   Kind = "concurrency"
)

// Code is a machine-readable error code.
type Code string

const (
	// Item workflow errors
	CodeInvalidTransition  Code = "ITEM_INVALID_TRANSITION"
	CodeResponseRequired   Code = "ITEM_RESPONSE_REQUIRED"
	CodeNoteRequired       Code = "ITEM_NOTE_REQUIRED"
	CodeActionPlanRequired Code = "ITEM_ACTION_PLAN_REQUIRED"
	CodeActionPlanLocked   Code = "ITEM_ACTION_PLAN_ALREADY_SET"
	CodeActionPlanNotFinal Code = "ITEM_NOT_FINAL"
	CodeInvalidAnswer      Code = "ITEM_INVALID_ANSWER"
	CodeScoreOutOfRange    Code = "ITEM_SCORE_OUT_OF_RANGE"
	CodeItemNotEditable    Code = "ITEM_NOT_EDITABLE"
	CodeStaleWrite         Code = "ITEM_STALE_WRITE"

	// Access errors
	CodeWrongRole      Code = "ACCESS_WRONG_ROLE"
	CodeNotAssigned    Code = "ACCESS_NOT_ASSIGNED"
	CodeNotLeader      Code = "ACCESS_NOT_GROUP_LEADER"
	CodeExamLocked     Code = "EXAM_LOCKED"
	CodeNotScheduled   Code = "EXAM_NOT_YET_SCHEDULED"
	CodeNotParticipant Code = "EXAM_NOT_PARTICIPANT"
	CodeBadCredentials Code = "AUTH_INVALID_CREDENTIALS"

	// Audit / exam errors
	CodeInvalidAuditType  Code = "AUDIT_INVALID_TYPE"
	CodeInvalidAudit      Code = "AUDIT_INVALID"
	CodeNotExam           Code = "AUDIT_NOT_EXAM"
	CodeNotGroupPractice  Code = "AUDIT_NOT_GROUP_PRACTICE"
	CodeExamNotStarted    Code = "EXAM_NOT_STARTED"
	CodeInvalidTimeLimit  Code = "EXAM_INVALID_TIME_LIMIT"
	CodeEmptyPool         Code = "DISTRIBUTION_EMPTY_POOL"
	CodeSampleExceedsPool Code = "DISTRIBUTION_SAMPLE_EXCEEDS_POOL"
	CodeNoParticipants    Code = "DISTRIBUTION_NO_PARTICIPANTS"
	CodeDuplicateUser     Code = "DISTRIBUTION_DUPLICATE_PARTICIPANT"
	CodeNotMasterTemplate Code = "DISTRIBUTION_NOT_MASTER_TEMPLATE"

	// Request / storage errors
	CodeBadRequest Code = "BAD_REQUEST"
	CodeNotFound   Code = "NOT_FOUND"
)

// Error is a classified, user-presentable error.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newf(kind Kind, code Code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation reports a missing or malformed input.
func Validation(code Code, format string, args ...any) error {
	return newf(KindValidation, code, format, args...)
}

// Authorization reports a caller that may not perform the operation right now.
func Authorization(code Code, format string, args ...any) error {
	return newf(KindAuthorization, code, format, args...)
}

// NotFound reports an unresolved id.
func NotFound(what, id string) error {
	return newf(KindNotFound, CodeNotFound, "%s %q not found", what, id)
}

// Concurrency reports a stale write.
func Concurrency(format string, args ...any) error {
	return newf(KindConcurrency, CodeStaleWrite, format, args...)
}

// KindOf returns the Kind of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the Code of err, or "" for unclassified errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsValidation(err error) bool    { return KindOf(err) == KindValidation }
func IsAuthorization(err error) bool { return KindOf(err) == KindAuthorization }
func IsNotFound(err error) bool      { return KindOf(err) == KindNotFound }
func IsConcurrency(err error) bool   { return KindOf(err) == KindConcurrency }

// HTTPStatus maps an error to the status code an HTTP layer should answer with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConcurrency:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
