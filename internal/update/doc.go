// Package update orchestrates device firmware updates.
//
// The Orchestrator owns the full lifecycle of an update attempt:
// checking a device's OTA metadata against the firmware repository,
// downloading the image, driving the transfer through a DeviceTransport
// subscription, and recording the outcome in both an in-memory ring
// buffer and an optional SQLite archive. Progress fans out over MQTT
// and to in-process subscribers via a Broadcaster.
package update
