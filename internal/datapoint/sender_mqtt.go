package datapoint

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zigmesh/tuya-core/internal/infrastructure/mqtt"
)

// Publisher is the MQTT surface the sender needs. Satisfied by
// *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTSender implements CommandSender by publishing wire-level writes
// to the sidecar set topics, where the coordinator picks them up.
type MQTTSender struct {
	publisher Publisher
	topics    mqtt.Topics
}

// NewMQTTSender creates an MQTTSender.
func NewMQTTSender(publisher Publisher) (*MQTTSender, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	return &MQTTSender{publisher: publisher}, nil
}

// SendDatapoint publishes one wire-level write to
// tuyacore/bridge/set/{deviceID}/{dp}.
func (s *MQTTSender) SendDatapoint(_ context.Context, deviceID string, dp int, kind ValueKind, wireValue any) error {
	payload, err := json.Marshal(map[string]any{
		"dp":    dp,
		"kind":  kind.String(),
		"value": wireValue,
	})
	if err != nil {
		return fmt.Errorf("marshalling command: %w", err)
	}
	return s.publisher.Publish(s.topics.BridgeSet(deviceID, dp), payload, 1, false)
}
