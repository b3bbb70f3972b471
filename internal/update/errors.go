package update

import "errors"

// Sentinel errors for update orchestration.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrUpdateInProgress indicates the device already has a live update.
	ErrUpdateInProgress = errors.New("update: update already in progress")

	// ErrNoOTAInfo indicates the device did not expose OTA metadata.
	ErrNoOTAInfo = errors.New("update: no OTA info available")

	// ErrNoUpdateAvailable indicates no source offers a newer image.
	ErrNoUpdateAvailable = errors.New("update: no update available")

	// ErrNotUpdating indicates a cancel was requested for a device with
	// no live update.
	ErrNotUpdating = errors.New("update: device is not updating")

	// ErrTransferFailed indicates the firmware transfer to the device
	// could not be started.
	ErrTransferFailed = errors.New("update: transfer failed")
)
