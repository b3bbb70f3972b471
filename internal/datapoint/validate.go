package datapoint

// Plausibility bounds per capability, in capability units (after conversion).
// A decoded value outside its capability's bounds is dropped, never clamped:
// a malformed report must not leak a distorted value into device state.
var capabilityBounds = map[string]Range{
	CapDim:           {Min: 0, Max: 1},
	CapLightTemp:     {Min: 0, Max: 1},
	CapBattery:       {Min: 0, Max: 100},
	CapHumidity:      {Min: 0, Max: 100},
	CapSaturation:    {Min: 0, Max: 100},
	CapCoverPosition: {Min: 0, Max: 100},
	CapHue:           {Min: 0, Max: 360},
	CapTemperature:   {Min: -50, Max: 100},
	CapTargetTemp:    {Min: -50, Max: 100},
	CapLuminance:     {Min: 0, Max: 200000},
	CapCO2:           {Min: 0, Max: 50000},
	CapVOC:           {Min: 0, Max: 50000},
	CapVoltage:       {Min: 0, Max: 1000},
	CapCurrent:       {Min: 0, Max: 1000},
	CapPower:         {Min: 0, Max: 100000},
}

// genericNumericBound is the sanity limit for numeric capabilities without
// documented bounds. Anything beyond it is certainly a malformed report.
const genericNumericBound = 1e9

// ValidateCapabilityValue checks a converted numeric value against the
// capability's documented plausibility bounds.
//
// Returns:
//   - bool: true if the value is plausible for the capability
func ValidateCapabilityValue(capability string, value float64) bool {
	if bounds, ok := capabilityBounds[capability]; ok {
		return value >= bounds.Min && value <= bounds.Max
	}
	return value >= -genericNumericBound && value <= genericNumericBound
}
