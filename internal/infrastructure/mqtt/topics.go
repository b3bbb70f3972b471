package mqtt

import "fmt"

// Topic prefixes for the Tuya Core MQTT scheme.
//
// All topics use the flat scheme: tuyacore/{category}/{...}
const (
	// TopicPrefix is the base for all Tuya Core topics.
	TopicPrefix = "tuyacore"

	// TopicPrefixOTA is the base for firmware update topics.
	TopicPrefixOTA = "tuyacore/ota"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "tuyacore/system"

	// TopicPrefixBridge is the base for coordinator sidecar topics.
	TopicPrefixBridge = "tuyacore/bridge"
)

// Topics provides builders for Tuya Core MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	progressTopic := topics.OTAProgress("device-01")
//	// Returns: "tuyacore/ota/progress/device-01"
type Topics struct{}

// DatapointState returns the topic for decoded datapoint values.
//
// Example: tuyacore/state/device-01/onoff
func (Topics) DatapointState(deviceID, capability string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, deviceID, capability)
}

// DatapointCommand returns the topic for outbound datapoint commands.
//
// Example: tuyacore/command/device-01/4
func (Topics) DatapointCommand(deviceID string, dp int) string {
	return fmt.Sprintf("%s/command/%s/%d", TopicPrefix, deviceID, dp)
}

// OTAProgress returns the topic for firmware transfer progress events.
//
// Example: tuyacore/ota/progress/device-01
func (Topics) OTAProgress(deviceID string) string {
	return fmt.Sprintf("%s/progress/%s", TopicPrefixOTA, deviceID)
}

// OTAState returns the topic for firmware update lifecycle events.
//
// Example: tuyacore/ota/state/device-01
func (Topics) OTAState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefixOTA, deviceID)
}

// Notification returns the topic for user-facing notifications.
//
// Example: tuyacore/notify/device-01
func (Topics) Notification(deviceID string) string {
	return fmt.Sprintf("%s/notify/%s", TopicPrefix, deviceID)
}

// SystemStatus returns the gateway status topic.
//
// Example: tuyacore/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// BridgeReport returns the topic the coordinator sidecar publishes raw
// datapoint reports to.
//
// Example: tuyacore/bridge/report/device-01
func (Topics) BridgeReport(deviceID string) string {
	return fmt.Sprintf("%s/report/%s", TopicPrefixBridge, deviceID)
}

// AllBridgeReports returns a pattern matching raw reports for all devices.
//
// Pattern: tuyacore/bridge/report/+
func (Topics) AllBridgeReports() string {
	return fmt.Sprintf("%s/report/+", TopicPrefixBridge)
}

// BridgeSet returns the topic carrying wire-level datapoint writes to
// the coordinator sidecar.
//
// Example: tuyacore/bridge/set/device-01/4
func (Topics) BridgeSet(deviceID string, dp int) string {
	return fmt.Sprintf("%s/set/%s/%d", TopicPrefixBridge, deviceID, dp)
}

// AllDatapointCommands returns a pattern matching inbound commands for
// all devices and datapoints.
//
// Pattern: tuyacore/command/+/+
func (Topics) AllDatapointCommands() string {
	return fmt.Sprintf("%s/command/+/+", TopicPrefix)
}

// BridgeOTARead returns the request topic for reading a device's OTA
// cluster attributes.
//
// Example: tuyacore/bridge/ota/read/device-01
func (Topics) BridgeOTARead(deviceID string) string {
	return fmt.Sprintf("%s/ota/read/%s", TopicPrefixBridge, deviceID)
}

// BridgeOTAInfo returns the topic the sidecar answers OTA reads on.
//
// Example: tuyacore/bridge/ota/info/device-01
func (Topics) BridgeOTAInfo(deviceID string) string {
	return fmt.Sprintf("%s/ota/info/%s", TopicPrefixBridge, deviceID)
}

// BridgeOTATransfer returns the topic that starts a firmware transfer.
//
// Example: tuyacore/bridge/ota/transfer/device-01
func (Topics) BridgeOTATransfer(deviceID string) string {
	return fmt.Sprintf("%s/ota/transfer/%s", TopicPrefixBridge, deviceID)
}

// BridgeOTAEvents returns the topic the sidecar reports transfer events on.
//
// Example: tuyacore/bridge/ota/events/device-01
func (Topics) BridgeOTAEvents(deviceID string) string {
	return fmt.Sprintf("%s/ota/events/%s", TopicPrefixBridge, deviceID)
}

// AllOTAProgress returns a pattern matching progress events for all devices.
//
// Pattern: tuyacore/ota/progress/+
func (Topics) AllOTAProgress() string {
	return fmt.Sprintf("%s/progress/+", TopicPrefixOTA)
}

// AllOTAStates returns a pattern matching update lifecycle events for all devices.
//
// Pattern: tuyacore/ota/state/+
func (Topics) AllOTAStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefixOTA)
}

// AllDatapointStates returns a pattern matching all decoded datapoint values.
//
// Pattern: tuyacore/state/+/+
func (Topics) AllDatapointStates() string {
	return fmt.Sprintf("%s/state/+/+", TopicPrefix)
}

// AllTopics returns a pattern matching all Tuya Core topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: tuyacore/#
func (Topics) AllTopics() string {
	return "tuyacore/#"
}
