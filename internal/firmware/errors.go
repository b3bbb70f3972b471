package firmware

import "errors"

// Sentinel errors for firmware repository operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrFetchFailed indicates a manifest fetch failed. During a
	// multi-source search this is swallowed per source; the loop continues.
	ErrFetchFailed = errors.New("firmware: manifest fetch failed")

	// ErrParseFailed indicates a manifest was not valid JSON. Treated
	// like a fetch failure for control flow (source skipped).
	ErrParseFailed = errors.New("firmware: manifest parse failed")

	// ErrDownloadFailed indicates an image download failed. Unlike
	// manifest errors this is fatal to the caller's update attempt.
	ErrDownloadFailed = errors.New("firmware: image download failed")
)
