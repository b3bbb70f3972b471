package update

import "context"

// OTAInfo is the OTA cluster metadata a device reports.
type OTAInfo struct {
	ManufacturerCode int    `json:"manufacturer_code"`
	ImageType        int    `json:"image_type"`
	FileVersion      uint32 `json:"file_version"`
	ModelID          string `json:"model_id,omitempty"`
}

// TransferEventType classifies events emitted during a firmware transfer.
type TransferEventType string

const (
	TransferProgress TransferEventType = "progress"
	TransferComplete TransferEventType = "complete"
	TransferError    TransferEventType = "error"
)

// TransferEvent is one event from a running firmware transfer.
type TransferEvent struct {
	Type TransferEventType

	// Progress is the transfer completion in percent, set for
	// TransferProgress events.
	Progress float64

	// Err carries the failure for TransferError events.
	Err error
}

// Subscription is a live event stream for one firmware transfer.
//
// The channel returned by Events is closed by the transport when the
// transfer ends. Callers must Close the subscription when they stop
// consuming, whether or not the transfer finished.
type Subscription interface {
	Events() <-chan TransferEvent
	Close() error
}

// DeviceTransport is the radio-side dependency of the orchestrator.
// Implementations talk to the Zigbee coordinator; tests substitute fakes.
type DeviceTransport interface {
	// ReadOTAInfo queries the device's OTA cluster attributes.
	//
	// Returns:
	//   - *OTAInfo: The device's OTA identity and running file version
	//   - error: Device unreachable or OTA cluster absent
	ReadOTAInfo(ctx context.Context, deviceID string) (*OTAInfo, error)

	// BeginTransfer starts pushing an image to the device and returns a
	// subscription for the transfer's event stream.
	BeginTransfer(ctx context.Context, deviceID string, image []byte) (Subscription, error)
}
