package datapoint

import (
	"math"
	"testing"
)

func TestDecode_BuiltinTable(t *testing.T) {
	m := NewMapper(MapperOptions{})

	tests := []struct {
		name       string
		dp         int
		kind       ValueKind
		raw        any
		capability string
		want       any
	}{
		{
			name:       "onoff true",
			dp:         1,
			kind:       KindBool,
			raw:        true,
			capability: "onoff",
			want:       true,
		},
		{
			name:       "onoff from integer",
			dp:         1,
			kind:       KindBool,
			raw:        1,
			capability: "onoff",
			want:       true,
		},
		{
			name:       "battery percentage",
			dp:         2,
			kind:       KindNumeric,
			raw:        87,
			capability: "measure_battery",
			want:       87.0,
		},
		{
			name:       "brightness rescaled to fraction",
			dp:         3,
			kind:       KindNumeric,
			raw:        500,
			capability: "dim",
			want:       0.5,
		},
		{
			name:       "temperature in tenths",
			dp:         4,
			kind:       KindNumeric,
			raw:        215,
			capability: "measure_temperature",
			want:       21.5,
		},
		{
			name:       "humidity passthrough",
			dp:         5,
			kind:       KindNumeric,
			raw:        65,
			capability: "measure_humidity",
			want:       65.0,
		},
		{
			name:       "hue rescaled to degrees",
			dp:         21,
			kind:       KindNumeric,
			raw:        500,
			capability: "light_hue",
			want:       180.0,
		},
		{
			name:       "saturation rescaled to percent",
			dp:         22,
			kind:       KindNumeric,
			raw:        250,
			capability: "light_saturation",
			want:       25.0,
		},
		{
			name:       "cover position rescaled to percent",
			dp:         25,
			kind:       KindNumeric,
			raw:        1000,
			capability: "windowcoverings_set",
			want:       100.0,
		},
		{
			name:       "power divided by ten",
			dp:         19,
			kind:       KindNumeric,
			raw:        235,
			capability: "measure_power",
			want:       23.5,
		},
		{
			name:       "current in milliamps",
			dp:         18,
			kind:       KindNumeric,
			raw:        1500,
			capability: "measure_current",
			want:       1.5,
		},
		{
			name:       "battery state enum label",
			dp:         15,
			kind:       KindEnum,
			raw:        2,
			capability: "measure_battery",
			want:       "high",
		},
		{
			name:       "thermostat mode enum label",
			dp:         111,
			kind:       KindEnum,
			raw:        1,
			capability: "thermostat_mode",
			want:       "heat",
		},
		{
			name:       "unmapped enum ordinal stringified",
			dp:         111,
			kind:       KindEnum,
			raw:        9,
			capability: "thermostat_mode",
			want:       "9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Decode(tt.dp, tt.kind, tt.raw, DeviceContext{})
			if got == nil {
				t.Fatalf("Decode(%d, %v, %v) = nil, want value", tt.dp, tt.kind, tt.raw)
			}
			if got.Capability != tt.capability {
				t.Errorf("capability = %q, want %q", got.Capability, tt.capability)
			}
			if got.Value != tt.want {
				t.Errorf("value = %v, want %v", got.Value, tt.want)
			}
			if got.OriginalValue != tt.raw {
				t.Errorf("original = %v, want %v", got.OriginalValue, tt.raw)
			}
		})
	}
}

func TestDecode_DropsImplausibleValues(t *testing.T) {
	m := NewMapper(MapperOptions{})

	tests := []struct {
		name string
		dp   int
		kind ValueKind
		raw  any
	}{
		{name: "battery over 100", dp: 2, kind: KindNumeric, raw: 150},
		{name: "brightness over wire max", dp: 3, kind: KindNumeric, raw: 1500},
		{name: "negative humidity", dp: 5, kind: KindNumeric, raw: -5},
		{name: "temperature below absolute bound", dp: 4, kind: KindNumeric, raw: -600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Decode(tt.dp, tt.kind, tt.raw, DeviceContext{}); got != nil {
				t.Errorf("Decode(%d, %v, %v) = %v, want nil", tt.dp, tt.kind, tt.raw, got.Value)
			}
		})
	}
}

func TestDecode_NeverPanics(t *testing.T) {
	m := NewMapper(MapperOptions{})

	// Garbage inputs of every shape must yield nil or a value, never a panic.
	inputs := []any{
		nil,
		struct{}{},
		[]byte{0xff, 0x00},
		map[string]int{"a": 1},
		"not-a-number",
		math.NaN(),
		math.Inf(1),
		complex(1, 2),
	}

	for _, raw := range inputs {
		for _, kind := range []ValueKind{KindBool, KindNumeric, KindEnum} {
			for _, dp := range []int{1, 4, 99, 0, -1, 300} {
				m.Decode(dp, kind, raw, DeviceContext{})
			}
		}
	}
}

func TestDecode_Inference(t *testing.T) {
	m := NewMapper(MapperOptions{})

	tests := []struct {
		name       string
		dp         int
		kind       ValueKind
		raw        any
		ctx        DeviceContext
		capability string
		inferred   bool
	}{
		{
			name:       "boolean with motion hint",
			dp:         50,
			kind:       KindBool,
			raw:        true,
			ctx:        DeviceContext{ProductHints: []string{"PIR Motion Sensor"}},
			capability: "alarm_motion",
			inferred:   true,
		},
		{
			name:       "boolean with contact hint",
			dp:         50,
			kind:       KindBool,
			raw:        false,
			ctx:        DeviceContext{ProductHints: []string{"Door/Window Sensor"}},
			capability: "alarm_contact",
			inferred:   true,
		},
		{
			name:       "numeric with temperature hint",
			dp:         60,
			kind:       KindNumeric,
			raw:        22,
			ctx:        DeviceContext{Name: "Greenhouse temp probe"},
			capability: "measure_temperature",
			inferred:   true,
		},
		{
			name:       "numeric magnitude heuristic for temperature",
			dp:         60,
			kind:       KindNumeric,
			raw:        215,
			ctx:        DeviceContext{Capabilities: []string{"measure_temperature"}},
			capability: "measure_temperature",
			inferred:   true,
		},
		{
			name:       "numeric magnitude heuristic for battery",
			dp:         12,
			kind:       KindNumeric,
			raw:        80,
			ctx:        DeviceContext{Capabilities: []string{"measure_battery"}},
			capability: "measure_battery",
			inferred:   true,
		},
		{
			name:       "enum with fan hint",
			dp:         70,
			kind:       KindEnum,
			raw:        1,
			ctx:        DeviceContext{ProductHints: []string{"ceiling fan controller"}},
			capability: "fan_mode",
			inferred:   true,
		},
		{
			name:       "no hints falls back to generic setting",
			dp:         200,
			kind:       KindNumeric,
			raw:        42,
			ctx:        DeviceContext{},
			capability: "setting",
			inferred:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Decode(tt.dp, tt.kind, tt.raw, tt.ctx)
			if got == nil {
				t.Fatalf("Decode() = nil, want inferred value")
			}
			if got.Capability != tt.capability {
				t.Errorf("capability = %q, want %q", got.Capability, tt.capability)
			}
			if got.Descriptor.Inferred != tt.inferred {
				t.Errorf("Inferred = %v, want %v", got.Descriptor.Inferred, tt.inferred)
			}
		})
	}
}

func TestDecode_MagnitudeHeuristicDividesTenths(t *testing.T) {
	m := NewMapper(MapperOptions{})

	ctx := DeviceContext{Capabilities: []string{"measure_temperature"}}
	got := m.Decode(60, KindNumeric, 215, ctx)
	if got == nil {
		t.Fatal("Decode() = nil, want value")
	}
	if got.Value != 21.5 {
		t.Errorf("value = %v, want 21.5", got.Value)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	m := NewMapper(MapperOptions{})

	// For capabilities with a declared rescale, encode(decode(x)) must
	// return to the original wire value within rounding tolerance.
	tests := []struct {
		name string
		dp   int
		wire float64
	}{
		{name: "dim", dp: 3, wire: 500},
		{name: "dim low", dp: 3, wire: 1},
		{name: "dim max", dp: 3, wire: 1000},
		{name: "hue", dp: 21, wire: 333},
		{name: "saturation", dp: 22, wire: 750},
		{name: "light temperature", dp: 23, wire: 420},
		{name: "cover position", dp: 25, wire: 640},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded := m.Decode(tt.dp, KindNumeric, tt.wire, DeviceContext{})
			if decoded == nil {
				t.Fatalf("Decode(%d, %v) = nil", tt.dp, tt.wire)
			}

			wire := m.Encode(decoded.Value, tt.dp)
			back, ok := wire.(float64)
			if !ok {
				t.Fatalf("Encode returned %T, want float64", wire)
			}
			if math.Abs(back-tt.wire) > 1 {
				t.Errorf("round trip = %v, want %v ± 1", back, tt.wire)
			}
		})
	}
}

func TestEncode_TenthsCorrectionIsOneWay(t *testing.T) {
	m := NewMapper(MapperOptions{})

	// Temperature decode divides; encode must NOT multiply back.
	decoded := m.Decode(4, KindNumeric, 215, DeviceContext{})
	if decoded == nil {
		t.Fatal("Decode() = nil")
	}
	if decoded.Value != 21.5 {
		t.Fatalf("decoded = %v, want 21.5", decoded.Value)
	}

	wire := m.Encode(decoded.Value, 4)
	if wire != 21.5 {
		t.Errorf("Encode(21.5, dp4) = %v, want passthrough 21.5", wire)
	}
}

func TestEncode_UnknownDPPassthrough(t *testing.T) {
	m := NewMapper(MapperOptions{})

	if got := m.Encode(0.75, 199); got != 0.75 {
		t.Errorf("Encode(0.75, unknown dp) = %v, want 0.75", got)
	}
}

func TestEncode_EnumLabelToOrdinal(t *testing.T) {
	m := NewMapper(MapperOptions{})

	if got := m.Encode("heat", 111); got != 1 {
		t.Errorf("Encode(heat) = %v, want 1", got)
	}
	if got := m.Encode("nonexistent", 111); got != "nonexistent" {
		t.Errorf("Encode(nonexistent) = %v, want passthrough", got)
	}
}

func TestValidateCapabilityValue(t *testing.T) {
	tests := []struct {
		name       string
		capability string
		value      float64
		want       bool
	}{
		{name: "battery in range", capability: "measure_battery", value: 50, want: true},
		{name: "battery over max", capability: "measure_battery", value: 150, want: false},
		{name: "dim valid fraction", capability: "dim", value: 0.5, want: true},
		{name: "dim over one", capability: "dim", value: 1.5, want: false},
		{name: "temperature in range", capability: "measure_temperature", value: 21.5, want: true},
		{name: "temperature too cold", capability: "measure_temperature", value: -80, want: false},
		{name: "temperature too hot", capability: "measure_temperature", value: 150, want: false},
		{name: "hue in range", capability: "light_hue", value: 359, want: true},
		{name: "hue over max", capability: "light_hue", value: 400, want: false},
		{name: "unlisted capability generic bound", capability: "setting", value: 1e12, want: false},
		{name: "unlisted capability sane value", capability: "setting", value: 42, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateCapabilityValue(tt.capability, tt.value); got != tt.want {
				t.Errorf("ValidateCapabilityValue(%q, %v) = %v, want %v",
					tt.capability, tt.value, got, tt.want)
			}
		})
	}
}

func TestAddDescriptor(t *testing.T) {
	m := NewMapper(MapperOptions{})

	err := m.AddDescriptor(Descriptor{
		DP:         150,
		Capability: "measure_pm25",
		Kind:       KindNumeric,
	})
	if err != nil {
		t.Fatalf("AddDescriptor() error = %v", err)
	}

	d, ok := m.Descriptor(150)
	if !ok {
		t.Fatal("Descriptor(150) not found after add")
	}
	if !d.Custom {
		t.Error("added descriptor should be marked custom")
	}
	if d.Capability != "measure_pm25" {
		t.Errorf("capability = %q, want measure_pm25", d.Capability)
	}
}

func TestAddDescriptor_Validation(t *testing.T) {
	m := NewMapper(MapperOptions{})

	if err := m.AddDescriptor(Descriptor{DP: 150}); err == nil {
		t.Error("AddDescriptor without capability should fail")
	}

	if err := m.AddDescriptor(Descriptor{DP: 0, Capability: "onoff"}); err == nil {
		t.Error("AddDescriptor with dp 0 should fail")
	}

	if err := m.AddDescriptor(Descriptor{DP: 300, Capability: "onoff"}); err == nil {
		t.Error("AddDescriptor with dp 300 should fail")
	}
}

func TestAddDescriptor_ShadowsBuiltinReversibly(t *testing.T) {
	m := NewMapper(MapperOptions{})

	err := m.AddDescriptor(Descriptor{
		DP:         4,
		Capability: "measure_pressure",
		Kind:       KindNumeric,
	})
	if err != nil {
		t.Fatalf("AddDescriptor() error = %v", err)
	}

	d, _ := m.Descriptor(4)
	if d.Capability != "measure_pressure" {
		t.Errorf("custom descriptor should take precedence, got %q", d.Capability)
	}

	if err := m.RemoveDescriptor(4); err != nil {
		t.Fatalf("RemoveDescriptor() error = %v", err)
	}

	d, ok := m.Descriptor(4)
	if !ok || d.Capability != "measure_temperature" {
		t.Errorf("builtin should be restored after removal, got %q", d.Capability)
	}
}

func TestRemoveDescriptor_ProtectsBuiltins(t *testing.T) {
	m := NewMapper(MapperOptions{})

	if err := m.RemoveDescriptor(1); err == nil {
		t.Error("RemoveDescriptor(builtin) should fail")
	}

	if _, ok := m.Descriptor(1); !ok {
		t.Error("builtin descriptor must survive removal attempt")
	}
}

type recordedPoint struct {
	deviceID   string
	dp         int
	capability string
	value      float64
}

type fakeRecorder struct {
	points []recordedPoint
}

func (r *fakeRecorder) WriteDatapoint(deviceID string, dp int, capability string, value float64) {
	r.points = append(r.points, recordedPoint{deviceID, dp, capability, value})
}

func TestDecode_RecordsTelemetry(t *testing.T) {
	rec := &fakeRecorder{}
	m := NewMapper(MapperOptions{Recorder: rec})

	ctx := DeviceContext{DeviceID: "sensor-01"}

	m.Decode(4, KindNumeric, 215, ctx)   // valid -> recorded
	m.Decode(2, KindNumeric, 150, ctx)   // implausible -> dropped, not recorded
	m.Decode(1, KindBool, true, ctx)     // boolean -> not recorded
	m.Decode(4, KindNumeric, 215, DeviceContext{}) // no device id -> not recorded

	if len(rec.points) != 1 {
		t.Fatalf("recorded %d points, want 1", len(rec.points))
	}
	p := rec.points[0]
	if p.deviceID != "sensor-01" || p.dp != 4 || p.capability != "measure_temperature" || p.value != 21.5 {
		t.Errorf("recorded point = %+v", p)
	}
}
