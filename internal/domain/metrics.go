package domain

import "time"

// CallOutcome labels the terminal result of one tool invocation.
type CallOutcome string

const (
	CallOutcomeSuccess         CallOutcome = "success"
	CallOutcomeNotFound        CallOutcome = "not_found"
	CallOutcomeInvalidArgument CallOutcome = "invalid_argument"
	CallOutcomePaymentRequired CallOutcome = "payment_required"
	CallOutcomeError           CallOutcome = "error"
)

// Metrics records operational metrics for refreshes and invocations.
type Metrics interface {
	ObserveRefresh(duration time.Duration, portals, tools int, err error)
	ObservePortalRefreshFailure(portalID string)
	ObserveToolCall(outcome CallOutcome, duration time.Duration)
	SetSnapshotTools(count int)
}
