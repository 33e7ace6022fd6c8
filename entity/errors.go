package entity

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrMissingTenantContext aborts a mutation before any remote call when
	// no business id has been resolved for the caller.
	ErrMissingTenantContext = errors.New("missing tenant context")

	// ErrCheckoutSessionFailed deliberately hides the underlying cause from
	// callers of the payment coordinator.
	ErrCheckoutSessionFailed = errors.New("failed to create payment session")
)
