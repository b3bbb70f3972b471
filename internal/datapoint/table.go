package datapoint

// Generic capability identifiers used by the built-in table and the
// inference pass.
const (
	CapOnOff          = "onoff"
	CapBattery        = "measure_battery"
	CapDim            = "dim"
	CapTemperature    = "measure_temperature"
	CapTargetTemp     = "target_temperature"
	CapHumidity       = "measure_humidity"
	CapLuminance      = "measure_luminance"
	CapLocked         = "locked"
	CapAlarmBattery   = "alarm_battery"
	CapAlarmMotion    = "alarm_motion"
	CapAlarmContact   = "alarm_contact"
	CapAlarmSmoke     = "alarm_smoke"
	CapAlarmWater     = "alarm_water"
	CapAlarmCO        = "alarm_co"
	CapAlarmTamper    = "alarm_tamper"
	CapMeterPower     = "meter_power"
	CapCurrent        = "measure_current"
	CapPower          = "measure_power"
	CapVoltage        = "measure_voltage"
	CapCO2            = "measure_co2"
	CapVOC            = "measure_voc"
	CapHue            = "light_hue"
	CapSaturation     = "light_saturation"
	CapLightTemp      = "light_temperature"
	CapCoverPosition  = "windowcoverings_set"
	CapThermostatMode = "thermostat_mode"
	CapFanMode        = "fan_mode"
	CapVolume         = "volume_set"
	CapAlarmDuration  = "alarm_duration"
	CapMotionTimeout  = "motion_timeout"
	CapSensitivity    = "sensitivity"

	// CapSetting is the generic fallback for datapoints nothing else matched.
	CapSetting = "setting"
)

// builtinTable is the consolidated community datapoint registry.
//
// Datapoint numbers are only meaningful by convention; where community
// sources disagree (the same DP means different things on different device
// families) the most widely reported meaning wins and device families that
// deviate register custom descriptors at runtime.
var builtinTable = map[int]Descriptor{
	1: {
		DP: 1, Capability: CapOnOff, Kind: KindBool, Writable: true,
	},
	2: {
		DP: 2, Capability: CapBattery, Kind: KindNumeric, Unit: "%",
		Range: &Range{Min: 0, Max: 100},
	},
	3: {
		DP: 3, Capability: CapDim, Kind: KindNumeric, Writable: true,
		Range: &Range{Min: 0, Max: 1000},
	},
	4: {
		DP: 4, Capability: CapTemperature, Kind: KindNumeric, Unit: "°C",
		Divisor: 10,
	},
	5: {
		DP: 5, Capability: CapHumidity, Kind: KindNumeric, Unit: "%",
		Range: &Range{Min: 0, Max: 100},
	},
	7: {
		DP: 7, Capability: CapAlarmDuration, Kind: KindNumeric, Unit: "s",
		Writable: true,
	},
	9: {
		DP: 9, Capability: CapLuminance, Kind: KindNumeric, Unit: "lux",
	},
	13: {
		DP: 13, Capability: CapLocked, Kind: KindBool, Writable: true,
	},
	14: {
		DP: 14, Capability: CapAlarmBattery, Kind: KindBool,
	},
	15: {
		DP: 15, Capability: CapBattery, Kind: KindEnum,
		EnumValues: map[int]string{0: "low", 1: "medium", 2: "high"},
	},
	16: {
		DP: 16, Capability: CapMeterPower, Kind: KindNumeric, Unit: "kWh",
		Divisor: 100,
	},
	18: {
		DP: 18, Capability: CapCurrent, Kind: KindNumeric, Unit: "A",
		Divisor: 1000,
	},
	19: {
		DP: 19, Capability: CapPower, Kind: KindNumeric, Unit: "W",
		Divisor: 10,
	},
	20: {
		DP: 20, Capability: CapVoltage, Kind: KindNumeric, Unit: "V",
		Divisor: 10,
	},
	21: {
		DP: 21, Capability: CapHue, Kind: KindNumeric, Writable: true,
		Range: &Range{Min: 0, Max: 1000},
	},
	22: {
		DP: 22, Capability: CapSaturation, Kind: KindNumeric, Writable: true,
		Range: &Range{Min: 0, Max: 1000},
	},
	23: {
		DP: 23, Capability: CapLightTemp, Kind: KindNumeric, Writable: true,
		Range: &Range{Min: 0, Max: 1000},
	},
	25: {
		DP: 25, Capability: CapCoverPosition, Kind: KindNumeric, Writable: true,
		Range: &Range{Min: 0, Max: 1000},
	},
	101: {
		DP: 101, Capability: CapMotionTimeout, Kind: KindNumeric, Unit: "s",
		Writable: true,
	},
	102: {
		DP: 102, Capability: CapSensitivity, Kind: KindEnum, Writable: true,
		EnumValues: map[int]string{0: "low", 1: "medium", 2: "high"},
	},
	104: {
		DP: 104, Capability: CapAlarmTamper, Kind: KindBool,
	},
	105: {
		DP: 105, Capability: CapCO2, Kind: KindNumeric, Unit: "ppm",
	},
	106: {
		DP: 106, Capability: CapVOC, Kind: KindNumeric, Unit: "ppb",
	},
	110: {
		DP: 110, Capability: CapTargetTemp, Kind: KindNumeric, Unit: "°C",
		Divisor: 10, Writable: true,
	},
	111: {
		DP: 111, Capability: CapThermostatMode, Kind: KindEnum, Writable: true,
		EnumValues: map[int]string{
			0: "off", 1: "heat", 2: "cool", 3: "auto", 4: "dry", 5: "fan_only",
		},
	},
	112: {
		DP: 112, Capability: CapFanMode, Kind: KindEnum, Writable: true,
		EnumValues: map[int]string{0: "auto", 1: "low", 2: "medium", 3: "high"},
	},
	113: {
		DP: 113, Capability: CapVolume, Kind: KindEnum, Writable: true,
		EnumValues: map[int]string{0: "low", 1: "medium", 2: "high"},
	},
}

// capabilityScale is the linear rescale applied to numeric wire values of
// capabilities with a declared conversion. Wire range maps to target range;
// encode applies the inverse.
type capabilityScale struct {
	wireMin, wireMax     float64
	targetMin, targetMax float64
}

// capabilityScales: wire -> capability unit conversions.
//
//	dim                  0-1000 -> 0-1
//	light_temperature    0-1000 -> 0-1
//	light_hue            0-1000 -> 0-360
//	light_saturation     0-1000 -> 0-100
//	windowcoverings_set  0-1000 -> 0-100
var capabilityScales = map[string]capabilityScale{
	CapDim:           {0, 1000, 0, 1},
	CapLightTemp:     {0, 1000, 0, 1},
	CapHue:           {0, 1000, 0, 360},
	CapSaturation:    {0, 1000, 0, 100},
	CapCoverPosition: {0, 1000, 0, 100},
}

// toCapability converts a wire value into capability units.
func (s capabilityScale) toCapability(v float64) float64 {
	return s.targetMin + (v-s.wireMin)*(s.targetMax-s.targetMin)/(s.wireMax-s.wireMin)
}

// toWire converts a capability value back into wire units.
func (s capabilityScale) toWire(v float64) float64 {
	return s.wireMin + (v-s.targetMin)*(s.wireMax-s.wireMin)/(s.targetMax-s.targetMin)
}
