package billing

import "errors"

var (
	// ErrPlanNotFound is returned when a plan does not exist.
	ErrPlanNotFound = errors.New("plan not found")
	// ErrPlanNotActive is returned when a plan is no longer offered.
	ErrPlanNotActive = errors.New("plan not active")
	// ErrSubscriptionNotFound is returned when a user has no subscription.
	ErrSubscriptionNotFound = errors.New("subscription not found")
)
