package update

import "time"

// Status is the lifecycle state of a firmware update.
type Status string

// Update lifecycle states. An update moves starting -> updating and ends
// in exactly one of the terminal states.
const (
	StatusStarting  Status = "starting"
	StatusUpdating  Status = "updating"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status ends an update's lifecycle.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusComplete, StatusError, StatusCancelled:
		return true
	}
	return false
}

// UpdateState is the full record of one firmware update attempt.
type UpdateState struct {
	// ID uniquely identifies this attempt across restarts.
	ID string `json:"id"`

	// DeviceID is the device being updated.
	DeviceID string `json:"device_id"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// Progress is the transfer completion in percent (0-100).
	Progress float64 `json:"progress"`

	// FromVersion and ToVersion are the file versions involved.
	FromVersion uint32 `json:"from_version"`
	ToVersion   uint32 `json:"to_version"`

	// Error holds the failure message when Status is "error".
	Error string `json:"error,omitempty"`

	// StartedAt and FinishedAt bound the attempt (UTC). FinishedAt is
	// zero while the update is live.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// CheckResult is the outcome of a non-mutating update check.
type CheckResult struct {
	// Available reports whether an applicable newer image exists.
	Available bool `json:"available"`

	// Reason explains a negative result ("No OTA info", "No update
	// found", "Already up to date"). Empty when Available is true.
	Reason string `json:"reason,omitempty"`

	// CurrentVersion is the file version the device reported.
	CurrentVersion uint32 `json:"current_version,omitempty"`

	// AvailableVersion is the offered file version when Available.
	AvailableVersion uint32 `json:"available_version,omitempty"`

	// Size is the image size in bytes when Available.
	Size int64 `json:"size,omitempty"`

	// URL is the image download location when Available.
	URL string `json:"url,omitempty"`

	// Changelog describes the offered release, when the source
	// provides one.
	Changelog string `json:"changelog,omitempty"`
}

// Check reasons for a negative CheckResult.
const (
	ReasonNoOTAInfo      = "No OTA info"
	ReasonNoUpdateFound  = "No update found"
	ReasonAlreadyCurrent = "Already up to date"
)
