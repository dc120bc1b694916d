package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeUnavailable     ErrorCode = "UNAVAILABLE"
	CodeFailedPrecond   ErrorCode = "FAILED_PRECONDITION"
	CodePaymentRequired ErrorCode = "PAYMENT_REQUIRED"
	CodeInternal        ErrorCode = "INTERNAL"
)

var (
	// ErrToolNotFound reports that no portal in the current snapshot matches
	// an incoming tool name.
	ErrToolNotFound = errors.New("tool not found")
	// ErrEmptyWhitelist reports a refresh attempted with no configured portals.
	ErrEmptyWhitelist = errors.New("portal whitelist is empty")
	// ErrNoDescription reports that a portal publishes no usable API
	// description. Soft: the portal still gets a synthesized tool.
	ErrNoDescription = errors.New("no api description available")
	// ErrPortalUnreachable reports that a whitelisted portal could not be
	// fetched during refresh. Soft: the portal is dropped from the snapshot
	// unless a cached entry exists.
	ErrPortalUnreachable = errors.New("portal unreachable")
)

type Error struct {
	Code       ErrorCode
	Op         string
	Message    string
	Cause      error
	Retryable  bool
	Violations []string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Code)
		}
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:    code,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

// NewValidationError reports argument-schema violations. Every violation is
// carried so callers can self-correct malformed calls in one round trip.
func NewValidationError(op string, violations []string) *Error {
	return &Error{
		Code:       CodeInvalidArgument,
		Op:         op,
		Message:    fmt.Sprintf("arguments failed schema validation: %d violation(s)", len(violations)),
		Violations: violations,
	}
}

func CodeFrom(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		return domainErr.Code, true
	}
	switch {
	case errors.Is(err, ErrToolNotFound):
		return CodeNotFound, true
	case errors.Is(err, ErrEmptyWhitelist):
		return CodeFailedPrecond, true
	case errors.Is(err, ErrPortalUnreachable), errors.Is(err, ErrNoDescription):
		return CodeUnavailable, true
	default:
		return "", false
	}
}
