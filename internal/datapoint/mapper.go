package datapoint

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// Logger is the minimal logging interface the mapper needs.
// Compatible with logging.Logger and slog.Logger. A nil logger is valid.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Recorder receives successfully decoded numeric values for telemetry.
// Implementations must not block; a nil recorder disables the hook.
type Recorder interface {
	WriteDatapoint(deviceID string, dp int, capability string, value float64)
}

// Mapper translates between wire-level Tuya datapoints and generic
// capability values.
//
// Decoding is fail-soft: a malformed or implausible report yields a nil
// result, never a panic or error, so a single bad report cannot
// destabilise the caller's state machine.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Mapper struct {
	mu     sync.RWMutex
	custom map[int]Descriptor

	logger   Logger
	recorder Recorder
}

// MapperOptions contains optional collaborators for NewMapper.
type MapperOptions struct {
	// Logger receives diagnostics for dropped reports. Optional.
	Logger Logger

	// Recorder receives decoded numeric values for telemetry. Optional.
	Recorder Recorder
}

// NewMapper creates a Mapper seeded with the built-in descriptor table.
func NewMapper(opts MapperOptions) *Mapper {
	return &Mapper{
		custom:   make(map[int]Descriptor),
		logger:   opts.Logger,
		recorder: opts.Recorder,
	}
}

// Descriptor returns the descriptor registered for a datapoint.
// Custom descriptors take precedence over built-ins.
//
// Returns:
//   - Descriptor: The registered descriptor
//   - bool: false if the datapoint is unknown
func (m *Mapper) Descriptor(dp int) (Descriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if d, ok := m.custom[dp]; ok {
		return d, true
	}
	d, ok := builtinTable[dp]
	return d, ok
}

// AddDescriptor registers a runtime descriptor for a datapoint.
//
// The entry is marked custom so it can later be removed and so built-in
// knowledge is never silently shadowed: lookups prefer the custom entry,
// but RemoveDescriptor restores the built-in.
//
// Parameters:
//   - d: Descriptor to register; Capability is required
//
// Returns:
//   - error: ErrMissingCapability or ErrInvalidDP on invalid input
func (m *Mapper) AddDescriptor(d Descriptor) error {
	if d.Capability == "" {
		return ErrMissingCapability
	}
	if d.DP < 1 || d.DP > 255 {
		return fmt.Errorf("%w: %d", ErrInvalidDP, d.DP)
	}

	d.Custom = true

	m.mu.Lock()
	m.custom[d.DP] = d
	m.mu.Unlock()

	return nil
}

// RemoveDescriptor removes a custom descriptor.
//
// Only descriptors added via AddDescriptor can be removed; the built-in
// table is protected from deletion.
//
// Returns:
//   - error: ErrNotCustom if the datapoint has no custom descriptor
func (m *Mapper) RemoveDescriptor(dp int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.custom[dp]; !ok {
		return fmt.Errorf("%w: dp %d", ErrNotCustom, dp)
	}
	delete(m.custom, dp)
	return nil
}

// Decode translates one inbound datapoint report into a capability value.
//
// Lookup order: custom descriptor, built-in table, inference pass. The
// raw value is converted per the descriptor (boolean coercion, divisor or
// linear rescale, enum labelling) and validated against the capability's
// plausibility bounds.
//
// Decode never panics and never returns an error: any failure yields nil
// and a debug log entry, and the caller drops the report.
//
// Parameters:
//   - dp: Tuya datapoint identifier
//   - kind: Wire encoding of the raw value
//   - raw: The reported value (bool, integer, float or string)
//   - ctx: Device context for inference and telemetry
//
// Returns:
//   - *DecodedValue: The decoded report, or nil if it must be dropped
func (m *Mapper) Decode(dp int, kind ValueKind, raw any, ctx DeviceContext) *DecodedValue {
	desc, known := m.Descriptor(dp)
	if !known {
		num, hasNum := toFloat(raw)
		desc = inferDescriptor(dp, kind, num, hasNum, ctx)
	}

	value, ok := m.convert(desc, kind, raw)
	if !ok {
		m.logDebug("dropping undecodable report",
			"dp", dp, "kind", kind.String(), "raw", raw, "capability", desc.Capability)
		return nil
	}

	if num, isNum := value.(float64); isNum {
		if !ValidateCapabilityValue(desc.Capability, num) {
			m.logWarn("dropping implausible value",
				"dp", dp, "capability", desc.Capability, "value", num)
			return nil
		}
		if m.recorder != nil && ctx.DeviceID != "" {
			m.recorder.WriteDatapoint(ctx.DeviceID, dp, desc.Capability, num)
		}
	}

	return &DecodedValue{
		DP:            dp,
		Capability:    desc.Capability,
		Value:         value,
		OriginalValue: raw,
		Descriptor:    desc,
	}
}

// convert transforms a raw wire value per the descriptor.
func (m *Mapper) convert(desc Descriptor, kind ValueKind, raw any) (any, bool) {
	switch desc.Kind {
	case KindBool:
		return toBool(raw)

	case KindEnum:
		return enumLabel(desc, raw)

	default:
		v, ok := toFloat(raw)
		if !ok {
			return nil, false
		}

		switch {
		case desc.Divisor > 0:
			v /= desc.Divisor
		default:
			if scale, ok := capabilityScales[desc.Capability]; ok {
				v = scale.toCapability(v)
			}
		}

		// Tenths correction: some firmwares report temperature and
		// humidity in tenths on datapoints declared as plain values.
		// One-way: encode never multiplies back.
		if isTenthsCapability(desc.Capability) && math.Abs(v) > 1000 {
			v /= 10
		}

		return v, true
	}
}

// Encode converts a capability value into its wire representation for
// outbound control.
//
// Only capabilities with a declared rescale (brightness, colour, position)
// are transformed; the tenths correction is one-way, and unknown
// datapoints pass the value through unchanged.
//
// Parameters:
//   - value: Capability-level value
//   - dp: Target datapoint
//
// Returns:
//   - any: The wire-level value to transmit
func (m *Mapper) Encode(value any, dp int) any {
	desc, known := m.Descriptor(dp)
	if !known {
		return value
	}

	switch desc.Kind {
	case KindBool:
		if b, ok := toBool(value); ok {
			return b
		}
		return value

	case KindEnum:
		return enumOrdinal(desc, value)

	default:
		v, ok := toFloat(value)
		if !ok {
			return value
		}
		if scale, ok := capabilityScales[desc.Capability]; ok {
			return math.Round(scale.toWire(v))
		}
		return value
	}
}

// isTenthsCapability reports whether the tenths correction applies.
func isTenthsCapability(capability string) bool {
	switch capability {
	case CapTemperature, CapTargetTemp, CapHumidity:
		return true
	}
	return false
}

// toBool coerces a wire value to a boolean.
func toBool(raw any) (bool, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case int:
		return v != 0, true
	case int64:
		return v != 0, true
	case float64:
		return v != 0, true
	case string:
		switch strings.ToLower(v) {
		case "true", "1", "on":
			return true, true
		case "false", "0", "off":
			return false, true
		}
	}
	return false, false
}

// toFloat coerces a wire value to a float64.
func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// enumLabel stringifies an enum ordinal using the descriptor's mapping.
func enumLabel(desc Descriptor, raw any) (any, bool) {
	if s, ok := raw.(string); ok {
		return s, true
	}
	v, ok := toFloat(raw)
	if !ok {
		return nil, false
	}
	ordinal := int(v)
	if label, ok := desc.EnumValues[ordinal]; ok {
		return label, true
	}
	return strconv.Itoa(ordinal), true
}

// enumOrdinal maps an enum label back to its wire ordinal.
func enumOrdinal(desc Descriptor, value any) any {
	label, ok := value.(string)
	if !ok {
		return value
	}
	for ordinal, l := range desc.EnumValues {
		if l == label {
			return ordinal
		}
	}
	return value
}

// logDebug logs at debug level if a logger is configured.
func (m *Mapper) logDebug(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}

// logWarn logs at warn level if a logger is configured.
func (m *Mapper) logWarn(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Warn(msg, args...)
	}
}
