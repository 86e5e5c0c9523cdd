// Package errors provides structured error handling for the calendar service.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Event validation errors
	CodeEventTitleEmpty          Code = "EVENT_TITLE_EMPTY"
	CodeEventStartTimeMissing    Code = "EVENT_START_TIME_MISSING"
	CodeEventEndTimeMissing      Code = "EVENT_END_TIME_MISSING"
	CodeEventTimeRangeInvalid    Code = "EVENT_TIME_RANGE_INVALID"
	CodeEventRecurrenceRuleEmpty Code = "EVENT_RECURRENCE_RULE_EMPTY"
	CodeEventRecurrenceRuleBad   Code = "EVENT_RECURRENCE_RULE_INVALID"

	// Sharing errors
	CodeShareInvalidRole   Code = "SHARE_INVALID_ROLE"
	CodeShareTargetIsOwner Code = "SHARE_TARGET_IS_OWNER"
	CodeShareAlreadyExists Code = "SHARE_ALREADY_EXISTS"

	// Authorization errors
	CodePermissionDenied Code = "PERMISSION_DENIED"

	// Auth token errors
	CodeTokenInvalid Code = "TOKEN_INVALID"
	CodeTokenExpired Code = "TOKEN_EXPIRED"

	// Storage errors
	CodeNotFound        Code = "NOT_FOUND"
	CodeVersionConflict Code = "VERSION_CONFLICT"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeEventTitleEmpty,
		CodeEventStartTimeMissing,
		CodeEventEndTimeMissing,
		CodeEventTimeRangeInvalid,
		CodeEventRecurrenceRuleEmpty,
		CodeEventRecurrenceRuleBad,
		CodeShareInvalidRole,
		CodeShareTargetIsOwner:
		return codes.InvalidArgument

	// AlreadyExists - duplicate grant for the same event and user
	case CodeShareAlreadyExists:
		return codes.AlreadyExists

	// PermissionDenied - resolved role lacks the capability
	case CodePermissionDenied:
		return codes.PermissionDenied

	// Unauthenticated - token verification failures
	case CodeTokenInvalid, CodeTokenExpired:
		return codes.Unauthenticated

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return codes.NotFound

	// Aborted - concurrent version append race, retryable
	case CodeVersionConflict:
		return codes.Aborted

	default:
		return codes.Internal
	}
}
