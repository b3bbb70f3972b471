package datapoint

import "strings"

// hintRule maps a textual clue from the device context to a capability.
// Rules are evaluated in order; the first match wins.
type hintRule struct {
	keywords   []string
	capability string
}

// Boolean datapoints: alarm-style sensors first, then locks.
var boolHintRules = []hintRule{
	{[]string{"motion", "presence", "pir", "occupancy", "radar"}, CapAlarmMotion},
	{[]string{"contact", "door", "window"}, CapAlarmContact},
	{[]string{"smoke"}, CapAlarmSmoke},
	{[]string{"leak", "water"}, CapAlarmWater},
	{[]string{"gas", "co detector", "carbon"}, CapAlarmCO},
	{[]string{"tamper"}, CapAlarmTamper},
	{[]string{"lock"}, CapLocked},
	{[]string{"switch", "plug", "socket", "relay"}, CapOnOff},
}

// Numeric datapoints: measurement hints.
var numericHintRules = []hintRule{
	{[]string{"temp", "thermo"}, CapTemperature},
	{[]string{"humid"}, CapHumidity},
	{[]string{"batt"}, CapBattery},
	{[]string{"lux", "illumin", "luminance"}, CapLuminance},
	{[]string{"watt", "power"}, CapPower},
	{[]string{"volt"}, CapVoltage},
	{[]string{"current", "amp"}, CapCurrent},
	{[]string{"co2", "carbon dioxide"}, CapCO2},
	{[]string{"voc"}, CapVOC},
	{[]string{"dim", "bright"}, CapDim},
	{[]string{"curtain", "blind", "cover", "position"}, CapCoverPosition},
}

// Enum datapoints: mode-style settings.
var enumHintRules = []hintRule{
	{[]string{"thermostat", "heat"}, CapThermostatMode},
	{[]string{"fan"}, CapFanMode},
	{[]string{"volume", "siren"}, CapVolume},
	{[]string{"sensitiv"}, CapSensitivity},
}

// inferDescriptor builds a descriptor for a datapoint absent from the
// table, using the wire kind, textual hints from the device context and
// value-magnitude heuristics. It always succeeds; the fallback is a
// generic setting descriptor.
func inferDescriptor(dp int, kind ValueKind, raw float64, hasRaw bool, ctx DeviceContext) Descriptor {
	hints := ctx.hintText()

	if capability := matchHints(hintRulesFor(kind), hints); capability != "" {
		return inferred(dp, kind, capability)
	}

	// Value-magnitude heuristics for numeric reports: only applied when the
	// device is known to expose the capability, since raw magnitudes alone
	// are ambiguous across sensor families.
	if kind == KindNumeric && hasRaw {
		switch {
		case raw >= -400 && raw <= 1000 && ctx.hasCapability(CapTemperature):
			d := inferred(dp, kind, CapTemperature)
			d.Divisor = 10
			return d
		case raw >= 0 && raw <= 100 && ctx.hasCapability(CapHumidity):
			return inferred(dp, kind, CapHumidity)
		case raw >= 0 && raw <= 100 && dp >= 10 && ctx.hasCapability(CapBattery):
			return inferred(dp, kind, CapBattery)
		}
	}

	return inferred(dp, kind, CapSetting)
}

// hintRulesFor selects the rule set for a wire kind.
func hintRulesFor(kind ValueKind) []hintRule {
	switch kind {
	case KindBool:
		return boolHintRules
	case KindEnum:
		return enumHintRules
	default:
		return numericHintRules
	}
}

// matchHints returns the capability of the first rule with a keyword
// present in the hint text, or "".
func matchHints(rules []hintRule, hints string) string {
	if hints == "" {
		return ""
	}
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(hints, kw) {
				return rule.capability
			}
		}
	}
	return ""
}

// inferred builds a minimal descriptor flagged as produced by inference.
func inferred(dp int, kind ValueKind, capability string) Descriptor {
	return Descriptor{
		DP:         dp,
		Capability: capability,
		Kind:       kind,
		Inferred:   true,
	}
}
