package datapoint

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zigmesh/tuya-core/internal/infrastructure/mqtt"
)

// Broker is the MQTT surface the stream needs. Satisfied by
// *mqtt.Client.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// ContextResolver supplies the device context used by the inference
// pass. A nil resolver yields an empty context with only the device ID.
type ContextResolver func(deviceID string) DeviceContext

// Stream bridges the coordinator sidecar and external MQTT consumers:
// raw datapoint reports become decoded capability states, and inbound
// capability commands become rate-limited wire-level writes.
//
// Reports that fail to decode are dropped; the stream never stops on a
// malformed or implausible report. Rejected commands (rate limit,
// validation) are logged and dropped.
type Stream struct {
	broker     Broker
	mapper     *Mapper
	dispatcher *Dispatcher
	resolver   ContextResolver
	logger     Logger
	topics     mqtt.Topics
}

// StreamOptions configures a Stream.
type StreamOptions struct {
	// Broker is the MQTT client. Required.
	Broker Broker

	// Mapper decodes raw reports. Required.
	Mapper *Mapper

	// Dispatcher sends inbound commands to devices. Optional; without
	// it the stream only handles reports.
	Dispatcher *Dispatcher

	// Resolver supplies per-device context for inference. Optional.
	Resolver ContextResolver

	// Logger for dropped reports. Optional.
	Logger Logger
}

// NewStream creates a Stream.
func NewStream(opts StreamOptions) (*Stream, error) {
	if opts.Broker == nil {
		return nil, fmt.Errorf("broker is required")
	}
	if opts.Mapper == nil {
		return nil, fmt.Errorf("mapper is required")
	}
	return &Stream{
		broker:     opts.Broker,
		mapper:     opts.Mapper,
		dispatcher: opts.Dispatcher,
		resolver:   opts.Resolver,
		logger:     opts.Logger,
	}, nil
}

// Start subscribes to the sidecar report topics and, when a dispatcher
// is configured, the external command topics.
func (s *Stream) Start() error {
	if err := s.broker.Subscribe(s.topics.AllBridgeReports(), 1, s.handleReport); err != nil {
		return fmt.Errorf("subscribing to reports: %w", err)
	}
	if s.dispatcher != nil {
		if err := s.broker.Subscribe(s.topics.AllDatapointCommands(), 1, s.handleCommand); err != nil {
			return fmt.Errorf("subscribing to commands: %w", err)
		}
	}
	return nil
}

// Close unsubscribes from all stream topics.
func (s *Stream) Close() error {
	err := s.broker.Unsubscribe(s.topics.AllBridgeReports())
	if s.dispatcher != nil {
		if cmdErr := s.broker.Unsubscribe(s.topics.AllDatapointCommands()); err == nil {
			err = cmdErr
		}
	}
	return err
}

// report is the wire format of one raw sidecar datapoint report.
type report struct {
	DP    int             `json:"dp"`
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// handleReport decodes one raw report and republishes it as capability
// state. Undecodable reports are logged and dropped.
func (s *Stream) handleReport(topic string, payload []byte) error {
	deviceID := deviceIDFromTopic(topic)
	if deviceID == "" {
		return fmt.Errorf("report topic %q has no device ID", topic)
	}

	var rep report
	if err := json.Unmarshal(payload, &rep); err != nil {
		s.logWarn("dropping malformed report", "device_id", deviceID, "error", err)
		return nil
	}

	kind, ok := parseValueKind(rep.Kind)
	if !ok {
		s.logWarn("dropping report with unknown kind", "device_id", deviceID, "kind", rep.Kind)
		return nil
	}

	var raw any
	if err := json.Unmarshal(rep.Value, &raw); err != nil {
		s.logWarn("dropping report with unreadable value", "device_id", deviceID, "dp", rep.DP)
		return nil
	}

	ctx := DeviceContext{DeviceID: deviceID}
	if s.resolver != nil {
		ctx = s.resolver(deviceID)
		ctx.DeviceID = deviceID
	}

	decoded := s.mapper.Decode(rep.DP, kind, raw, ctx)
	if decoded == nil {
		return nil
	}

	out, err := json.Marshal(map[string]any{
		"dp":    decoded.DP,
		"value": decoded.Value,
	})
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}
	return s.broker.Publish(s.topics.DatapointState(deviceID, decoded.Capability), out, 1, true)
}

// command is the wire format of one inbound capability command.
type command struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// commandDispatchTimeout bounds the rate limiter's spacing wait for one
// inbound command.
const commandDispatchTimeout = 5 * time.Second

// handleCommand dispatches one inbound command through the rate limiter
// and encoder. Rejected commands are logged and dropped.
func (s *Stream) handleCommand(topic string, payload []byte) error {
	deviceID, dp, ok := commandTarget(topic)
	if !ok {
		return fmt.Errorf("command topic %q has no device and datapoint", topic)
	}

	var cmd command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		s.logWarn("dropping malformed command", "device_id", deviceID, "error", err)
		return nil
	}

	kind, ok := parseValueKind(cmd.Kind)
	if !ok {
		s.logWarn("dropping command with unknown kind", "device_id", deviceID, "kind", cmd.Kind)
		return nil
	}

	var value any
	if err := json.Unmarshal(cmd.Value, &value); err != nil {
		s.logWarn("dropping command with unreadable value", "device_id", deviceID, "dp", dp)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandDispatchTimeout)
	defer cancel()

	if err := s.dispatcher.Dispatch(ctx, deviceID, dp, kind, value); err != nil {
		s.logWarn("command rejected", "device_id", deviceID, "dp", dp, "error", err)
	}
	return nil
}

// commandTarget extracts the device ID and datapoint from a command
// topic of the form tuyacore/command/{deviceID}/{dp}.
func commandTarget(topic string) (string, int, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 {
		return "", 0, false
	}
	dp, err := strconv.Atoi(parts[3])
	if err != nil {
		return "", 0, false
	}
	return parts[2], dp, true
}

// deviceIDFromTopic extracts the device ID from a report topic.
func deviceIDFromTopic(topic string) string {
	idx := strings.LastIndex(topic, "/")
	if idx < 0 || idx == len(topic)-1 {
		return ""
	}
	return topic[idx+1:]
}

func (s *Stream) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

// parseValueKind maps a wire kind string to a ValueKind.
func parseValueKind(kind string) (ValueKind, bool) {
	switch kind {
	case "bool":
		return KindBool, true
	case "numeric", "value":
		return KindNumeric, true
	case "enum":
		return KindEnum, true
	}
	return 0, false
}
