package update

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zigmesh/tuya-core/internal/firmware"
)

// Logger is the minimal logging interface the orchestrator needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Recorder receives update duration measurements for telemetry.
// The orchestrator tolerates a nil Recorder.
type Recorder interface {
	WriteUpdateDuration(deviceID, status string, seconds float64)
}

// ImageSource resolves and downloads firmware images. Satisfied by
// *firmware.Repository; tests substitute fakes.
type ImageSource interface {
	FindImage(ctx context.Context, manufacturerCode, imageType int, currentVersion uint32) (*firmware.Image, bool)
	LatestImage(ctx context.Context, manufacturerCode, imageType int) (*firmware.Image, bool)
	DownloadImage(ctx context.Context, img *firmware.Image) ([]byte, error)
}

// Orchestrator drives firmware updates end to end: check, download,
// transfer, and bookkeeping.
//
// Invariants:
//   - At most one live update per device at any time.
//   - Every started update ends in exactly one terminal transition
//     (complete, error, or cancelled); later events are ignored.
//   - The transfer subscription is always closed, on every exit path.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Orchestrator struct {
	mu     sync.Mutex
	active map[string]*UpdateState

	source      ImageSource
	transport   DeviceTransport
	history     *History
	archiver    Archiver
	publisher   Publisher
	broadcaster *Broadcaster
	recorder    Recorder
	logger      Logger

	// now is replaceable for tests.
	now func() time.Time
}

// OrchestratorOptions configures an Orchestrator.
type OrchestratorOptions struct {
	// Source resolves and downloads firmware images. Required.
	Source ImageSource

	// Transport talks to devices over the radio. Required.
	Transport DeviceTransport

	// HistorySize caps the in-memory history ring buffer.
	HistorySize int

	// Archiver persists finished attempts. Optional.
	Archiver Archiver

	// Publisher pushes lifecycle events to MQTT. Optional.
	Publisher Publisher

	// Recorder receives update durations for telemetry. Optional.
	Recorder Recorder

	// Logger for lifecycle and failure logging. Optional.
	Logger Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	return &Orchestrator{
		active:      make(map[string]*UpdateState),
		source:      opts.Source,
		transport:   opts.Transport,
		history:     NewHistory(opts.HistorySize),
		archiver:    opts.Archiver,
		publisher:   opts.Publisher,
		broadcaster: NewBroadcaster(),
		recorder:    opts.Recorder,
		logger:      opts.Logger,
		now:         time.Now,
	}
}

// CheckUpdate reports whether a newer firmware image exists for a
// device. It never mutates update state.
//
// Parameters:
//   - ctx: Cancels the OTA read and manifest fetches
//   - deviceID: Device to check
//
// Returns:
//   - *CheckResult: Availability and, when negative, the reason
//   - error: Reserved for internal failures; a device without OTA info
//     yields a negative result, not an error
func (o *Orchestrator) CheckUpdate(ctx context.Context, deviceID string) (*CheckResult, error) {
	info, err := o.transport.ReadOTAInfo(ctx, deviceID)
	if err != nil {
		o.logDebug("OTA info unavailable", "device_id", deviceID, "error", err)
		return &CheckResult{Reason: ReasonNoOTAInfo}, nil
	}

	if img, ok := o.source.FindImage(ctx, info.ManufacturerCode, info.ImageType, info.FileVersion); ok {
		return &CheckResult{
			Available:        true,
			CurrentVersion:   info.FileVersion,
			AvailableVersion: img.FileVersion,
			Size:             img.Size,
			URL:              img.URL,
			Changelog:        img.Changelog,
		}, nil
	}

	if _, ok := o.source.LatestImage(ctx, info.ManufacturerCode, info.ImageType); ok {
		return &CheckResult{
			Reason:         ReasonAlreadyCurrent,
			CurrentVersion: info.FileVersion,
		}, nil
	}

	return &CheckResult{
		Reason:         ReasonNoUpdateFound,
		CurrentVersion: info.FileVersion,
	}, nil
}

// PerformUpdate starts a firmware update for a device.
//
// The device slot is reserved up front, so a second call for the same
// device fails with ErrUpdateInProgress even while the image is still
// downloading. Pre-transfer failures release the slot without leaving a
// history record; once the transfer has been attempted, the outcome is
// recorded.
//
// Parameters:
//   - ctx: Cancels the OTA read, download, and transfer start
//   - deviceID: Device to update
//
// Returns:
//   - *UpdateState: Snapshot of the freshly started update
//   - error: ErrUpdateInProgress, ErrNoOTAInfo, ErrNoUpdateAvailable,
//     firmware.ErrDownloadFailed, or ErrTransferFailed
func (o *Orchestrator) PerformUpdate(ctx context.Context, deviceID string) (*UpdateState, error) {
	state := &UpdateState{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Status:    StatusStarting,
		StartedAt: o.now().UTC(),
	}

	o.mu.Lock()
	if _, live := o.active[deviceID]; live {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: device %s", ErrUpdateInProgress, deviceID)
	}
	o.active[deviceID] = state
	o.mu.Unlock()

	info, err := o.transport.ReadOTAInfo(ctx, deviceID)
	if err != nil {
		o.abandon(deviceID)
		return nil, fmt.Errorf("%w: %v", ErrNoOTAInfo, err)
	}

	img, ok := o.source.FindImage(ctx, info.ManufacturerCode, info.ImageType, info.FileVersion)
	if !ok {
		o.abandon(deviceID)
		return nil, fmt.Errorf("%w: device %s on version %d", ErrNoUpdateAvailable, deviceID, info.FileVersion)
	}

	payload, err := o.source.DownloadImage(ctx, img)
	if err != nil {
		o.abandon(deviceID)
		o.notify(deviceID, fmt.Sprintf("Firmware update failed: %v", err))
		return nil, err
	}

	o.mu.Lock()
	state.FromVersion = info.FileVersion
	state.ToVersion = img.FileVersion
	snapshot := *state
	o.mu.Unlock()

	o.publishState(snapshot)
	o.notify(deviceID, fmt.Sprintf("Firmware update started (v%d -> v%d)", info.FileVersion, img.FileVersion))
	o.logInfo("firmware update started",
		"device_id", deviceID,
		"update_id", snapshot.ID,
		"from_version", info.FileVersion,
		"to_version", img.FileVersion)

	sub, err := o.transport.BeginTransfer(ctx, deviceID, payload)
	if err != nil {
		o.finalize(deviceID, StatusError, fmt.Sprintf("transfer start: %v", err))
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	go o.consume(deviceID, sub)

	return &snapshot, nil
}

// CancelUpdate marks a live update as cancelled.
//
// Cancellation is bookkeeping only: the device may keep transferring,
// but all further events for this attempt are ignored and the record is
// closed as cancelled.
//
// Returns:
//   - *UpdateState: The terminal cancelled record
//   - error: ErrNotUpdating when the device has no live update
func (o *Orchestrator) CancelUpdate(_ context.Context, deviceID string) (*UpdateState, error) {
	state := o.finalize(deviceID, StatusCancelled, "")
	if state == nil {
		return nil, fmt.Errorf("%w: device %s", ErrNotUpdating, deviceID)
	}
	return state, nil
}

// ActiveUpdates returns snapshots of all live updates, ordered by
// device ID.
func (o *Orchestrator) ActiveUpdates() []UpdateState {
	o.mu.Lock()
	out := make([]UpdateState, 0, len(o.active))
	for _, st := range o.active {
		out = append(out, *st)
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// UpdateHistory returns up to limit finished attempts from the
// in-memory ring buffer, newest first.
func (o *Orchestrator) UpdateHistory(limit int) []UpdateState {
	return o.history.Recent(limit)
}

// Subscribe attaches an in-process listener for progress and lifecycle
// events. The returned cancel function must be called when done.
func (o *Orchestrator) Subscribe() (<-chan ProgressEvent, func()) {
	return o.broadcaster.Subscribe()
}

// consume drains one transfer's event stream until a terminal event or
// channel close. The subscription is closed on every exit path.
func (o *Orchestrator) consume(deviceID string, sub Subscription) {
	defer sub.Close()

	for ev := range sub.Events() {
		switch ev.Type {
		case TransferProgress:
			o.progress(deviceID, ev.Progress)
		case TransferComplete:
			o.finalize(deviceID, StatusComplete, "")
			return
		case TransferError:
			msg := "transfer failed"
			if ev.Err != nil {
				msg = ev.Err.Error()
			}
			o.finalize(deviceID, StatusError, msg)
			return
		}
	}

	// Stream ended without a terminal event. A no-op when the update
	// was already cancelled.
	o.finalize(deviceID, StatusError, "transfer stream closed")
}

// progress records transfer progress and fans it out. Ignored when the
// update has already reached a terminal state.
func (o *Orchestrator) progress(deviceID string, percent float64) {
	o.mu.Lock()
	state, ok := o.active[deviceID]
	if !ok {
		o.mu.Unlock()
		return
	}
	state.Status = StatusUpdating
	state.Progress = percent
	snapshot := *state
	o.mu.Unlock()

	if o.publisher != nil {
		if err := o.publisher.PublishProgress(deviceID, percent); err != nil {
			o.logWarn("progress publish failed", "device_id", deviceID, "error", err)
		}
	}
	o.broadcaster.Publish(ProgressEvent{
		DeviceID: deviceID,
		Status:   snapshot.Status,
		Progress: percent,
	})
	o.logDebug("transfer progress", "device_id", deviceID, "progress", percent)
}

// finalize applies the single terminal transition for a device's live
// update. Returns nil when there is no live update, which makes stale
// events after cancellation harmless.
func (o *Orchestrator) finalize(deviceID string, status Status, errMsg string) *UpdateState {
	o.mu.Lock()
	state, ok := o.active[deviceID]
	if !ok {
		o.mu.Unlock()
		return nil
	}
	delete(o.active, deviceID)

	state.Status = status
	state.Error = errMsg
	if status == StatusComplete {
		state.Progress = 100
	}
	state.FinishedAt = o.now().UTC()
	snapshot := *state
	o.mu.Unlock()

	o.history.Add(snapshot)
	if o.archiver != nil {
		if err := o.archiver.RecordUpdate(context.Background(), snapshot); err != nil {
			o.logWarn("history archive failed", "update_id", snapshot.ID, "error", err)
		}
	}

	o.publishState(snapshot)
	o.broadcaster.Publish(ProgressEvent{
		DeviceID: deviceID,
		Status:   status,
		Progress: snapshot.Progress,
	})
	if o.recorder != nil {
		o.recorder.WriteUpdateDuration(deviceID, string(status),
			snapshot.FinishedAt.Sub(snapshot.StartedAt).Seconds())
	}

	switch status {
	case StatusComplete:
		o.notify(deviceID, fmt.Sprintf("Firmware update complete (v%d)", snapshot.ToVersion))
	case StatusError:
		o.notify(deviceID, fmt.Sprintf("Firmware update failed: %s", errMsg))
	case StatusCancelled:
		o.notify(deviceID, "Firmware update cancelled")
	}

	o.logInfo("firmware update finished",
		"device_id", deviceID,
		"update_id", snapshot.ID,
		"status", status,
		"duration", snapshot.FinishedAt.Sub(snapshot.StartedAt))

	return &snapshot
}

// abandon releases a reserved device slot without recording history.
// Used for failures before any transfer was attempted.
func (o *Orchestrator) abandon(deviceID string) {
	o.mu.Lock()
	delete(o.active, deviceID)
	o.mu.Unlock()
}

func (o *Orchestrator) publishState(state UpdateState) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishState(state); err != nil {
		o.logWarn("state publish failed", "device_id", state.DeviceID, "error", err)
	}
}

func (o *Orchestrator) notify(deviceID, message string) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Notify(deviceID, message); err != nil {
		o.logWarn("notification failed", "device_id", deviceID, "error", err)
	}
}

func (o *Orchestrator) logDebug(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Debug(msg, args...)
	}
}

func (o *Orchestrator) logInfo(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Info(msg, args...)
	}
}

func (o *Orchestrator) logWarn(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}
