package telemetry

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDatapoint records a decoded datapoint value as a time-series point.
//
// This is the primary method for recording device telemetry. The write is
// non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Unique identifier for the device (e.g., "plug-kitchen-01")
//   - dp: The Tuya datapoint identifier
//   - capability: The mapped capability name (e.g., "measure_temperature")
//   - value: The decoded numeric value
//
// Example:
//
//	client.WriteDatapoint("sensor-01", 1, "measure_temperature", 21.5)
func (c *Client) WriteDatapoint(deviceID string, dp int, capability string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"datapoint",
		map[string]string{
			"device_id":  deviceID,
			"dp":         strconv.Itoa(dp),
			"capability": capability,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteUpdateDuration records how long a firmware update took, tagged by outcome.
//
// Parameters:
//   - deviceID: Device identifier
//   - status: Terminal update status ("complete", "error", "cancelled")
//   - seconds: Wall-clock duration of the update
func (c *Client) WriteUpdateDuration(deviceID string, status string, seconds float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"ota_update",
		map[string]string{
			"device_id": deviceID,
			"status":    status,
		},
		map[string]interface{}{
			"duration_seconds": seconds,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
