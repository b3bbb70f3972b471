package datapoint

import (
	"context"
	"fmt"
)

// CommandSender is the device-transport collaborator for outbound
// datapoint commands. Implementations deliver the already-encoded wire
// value to the device.
type CommandSender interface {
	SendDatapoint(ctx context.Context, deviceID string, dp int, kind ValueKind, wireValue any) error
}

// Dispatcher issues outbound datapoint commands through the shared rate
// limiter and the mapper's encode step.
//
// Thread Safety:
//   - Safe for concurrent use; the limiter serialises admissions.
type Dispatcher struct {
	mapper  *Mapper
	limiter *Limiter
	sender  CommandSender
	logger  Logger
}

// DispatcherOptions contains the collaborators for NewDispatcher.
type DispatcherOptions struct {
	// Mapper encodes capability values into wire values. Required.
	Mapper *Mapper

	// Limiter guards admissions. Required; shared process-wide.
	Limiter *Limiter

	// Sender delivers commands to the device transport. Required.
	Sender CommandSender

	// Logger receives dispatch diagnostics. Optional.
	Logger Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	return &Dispatcher{
		mapper:  opts.Mapper,
		limiter: opts.Limiter,
		sender:  opts.Sender,
		logger:  opts.Logger,
	}
}

// Dispatch sends one capability value to a device datapoint.
//
// The shared limiter is consulted first: quota exhaustion fails fast with
// ErrRateLimited (no queuing), and the minimum inter-command spacing is
// enforced by sleeping. Only after admission is the value encoded and
// handed to the transport.
//
// Parameters:
//   - ctx: Cancels the spacing delay and the transport call
//   - deviceID: Target device
//   - dp: Target datapoint
//   - kind: Wire encoding of the datapoint
//   - value: Capability-level value to send
//
// Returns:
//   - error: ErrRateLimited, ctx.Err(), or a wrapped transport error
func (d *Dispatcher) Dispatch(ctx context.Context, deviceID string, dp int, kind ValueKind, value any) error {
	if err := d.limiter.Acquire(ctx); err != nil {
		d.logWarn("dispatch rejected", "device_id", deviceID, "dp", dp, "error", err)
		return err
	}

	wireValue := d.mapper.Encode(value, dp)

	if err := d.sender.SendDatapoint(ctx, deviceID, dp, kind, wireValue); err != nil {
		return fmt.Errorf("%w: device %s dp %d: %w", ErrDispatchFailed, deviceID, dp, err)
	}

	d.logDebug("dispatched command",
		"device_id", deviceID, "dp", dp, "kind", kind.String(), "value", wireValue)

	return nil
}

// logDebug logs at debug level if a logger is configured.
func (d *Dispatcher) logDebug(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, args...)
	}
}

// logWarn logs at warn level if a logger is configured.
func (d *Dispatcher) logWarn(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, args...)
	}
}
