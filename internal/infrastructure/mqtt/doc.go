// Package mqtt provides the MQTT transport for Tuya Core.
//
// This package wraps eclipse/paho.mqtt.golang with:
//   - Connection management and automatic reconnection
//   - Subscription tracking (restored after reconnect)
//   - Panic-recovering message handlers
//   - Payload size limits on publish
//   - Last Will and Testament for offline detection
//   - Topic builders for the tuyacore/... scheme
//
// Firmware update progress and lifecycle events are published here so
// dashboards and other services can follow ongoing updates without
// polling the HTTP API.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.OTAProgress("device-01")
//	client.Publish(topic, payload, 1, false)
package mqtt
