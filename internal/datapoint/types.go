package datapoint

import "strings"

// ValueKind identifies the wire-level encoding of a datapoint value.
type ValueKind int

// Datapoint value kinds as reported by the Tuya cluster.
const (
	KindBool ValueKind = iota
	KindNumeric
	KindEnum
)

// String returns the human-readable name of the value kind.
func (k ValueKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumeric:
		return "numeric"
	case KindEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// Range describes the wire-level value range of a numeric datapoint.
type Range struct {
	Min float64
	Max float64
}

// Descriptor holds static knowledge of one Tuya datapoint: which generic
// capability it maps to and how its wire value is interpreted.
//
// Descriptors are immutable once registered. Built-in descriptors come from
// the consolidated community registry; custom descriptors can be added and
// removed at runtime (Custom is set by AddDescriptor, never by callers).
type Descriptor struct {
	// DP is the Tuya datapoint identifier (1-255).
	DP int

	// Capability is the generic capability this datapoint maps to,
	// e.g. "onoff", "measure_temperature".
	Capability string

	// Kind is the expected wire encoding.
	Kind ValueKind

	// Range is the wire-level value range, if declared.
	Range *Range

	// Divisor scales raw integer readings into engineering units
	// (e.g. 10 for temperature reported in tenths of a degree).
	Divisor float64

	// Unit is the engineering unit after conversion, informational only.
	Unit string

	// EnumValues maps wire enum ordinals to their string labels.
	EnumValues map[int]string

	// Writable marks datapoints that accept outbound commands.
	Writable bool

	// Custom marks descriptors registered at runtime. Built-in entries
	// always have Custom false and cannot be removed.
	Custom bool

	// Inferred marks descriptors produced by the inference pass rather
	// than the registry.
	Inferred bool
}

// DecodedValue is the result of translating one inbound datapoint report.
// It is created per report and not stored.
type DecodedValue struct {
	DP            int
	Capability    string
	Value         any
	OriginalValue any
	Descriptor    Descriptor
}

// DeviceContext carries the per-device information available to decode
// and the inference pass. All fields are optional.
type DeviceContext struct {
	// DeviceID identifies the reporting device.
	DeviceID string

	// Name is the user-visible device name.
	Name string

	// ProductHints are free-text clues about the device's purpose,
	// typically the product name, model identifier and driver class.
	ProductHints []string

	// Capabilities lists the generic capabilities the device exposes.
	Capabilities []string
}

// hintText returns the lowercased concatenation of all textual hints.
func (c DeviceContext) hintText() string {
	parts := make([]string, 0, len(c.ProductHints)+1)
	if c.Name != "" {
		parts = append(parts, c.Name)
	}
	parts = append(parts, c.ProductHints...)
	return strings.ToLower(strings.Join(parts, " "))
}

// hasCapability reports whether the device exposes the given capability.
func (c DeviceContext) hasCapability(capability string) bool {
	for _, have := range c.Capabilities {
		if have == capability {
			return true
		}
	}
	return false
}
