package datapoint

import "errors"

// Sentinel errors for datapoint operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrRateLimited indicates the outbound command quota is exhausted.
	// Callers must retry later; no retry is scheduled internally.
	ErrRateLimited = errors.New("datapoint: rate limit exceeded")

	// ErrDispatchFailed indicates the transport rejected an outbound command.
	ErrDispatchFailed = errors.New("datapoint: dispatch failed")

	// ErrMissingCapability indicates a descriptor without a capability identifier.
	ErrMissingCapability = errors.New("datapoint: descriptor capability is required")

	// ErrInvalidDP indicates a datapoint identifier outside the valid range.
	ErrInvalidDP = errors.New("datapoint: invalid datapoint identifier")

	// ErrNotCustom indicates an attempt to remove a built-in descriptor.
	// Only descriptors added at runtime can be removed.
	ErrNotCustom = errors.New("datapoint: descriptor is not custom")
)
