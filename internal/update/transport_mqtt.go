package update

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/zigmesh/tuya-core/internal/infrastructure/mqtt"
)

// MQTTClient is the interface for MQTT operations the bridge transport
// needs. Satisfied by *mqtt.Client.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// defaultReadTimeout bounds how long an OTA attribute read may take.
// Zigbee end devices can sleep for many seconds between poll intervals.
const defaultReadTimeout = 30 * time.Second

// BridgeTransport implements DeviceTransport against the Zigbee
// coordinator sidecar over MQTT.
//
// Reads are request/response: a read request is published and the
// answer awaited on the matching info topic. Transfers publish the
// image payload once and then stream events from the sidecar.
type BridgeTransport struct {
	client      MQTTClient
	topics      mqtt.Topics
	readTimeout time.Duration
	logger      Logger
}

// BridgeTransportOptions configures a BridgeTransport.
type BridgeTransportOptions struct {
	// Client is the MQTT client. Required.
	Client MQTTClient

	// ReadTimeout overrides the 30s OTA read timeout.
	ReadTimeout time.Duration

	// Logger for transfer diagnostics. Optional.
	Logger Logger
}

// NewBridgeTransport creates a BridgeTransport.
func NewBridgeTransport(opts BridgeTransportOptions) (*BridgeTransport, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("mqtt client is required")
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	return &BridgeTransport{
		client:      opts.Client,
		readTimeout: opts.ReadTimeout,
		logger:      opts.Logger,
	}, nil
}

// ReadOTAInfo publishes a read request and waits for the sidecar's
// answer on the info topic.
func (t *BridgeTransport) ReadOTAInfo(ctx context.Context, deviceID string) (*OTAInfo, error) {
	infoTopic := t.topics.BridgeOTAInfo(deviceID)
	replies := make(chan OTAInfo, 1)

	err := t.client.Subscribe(infoTopic, 1, func(_ string, payload []byte) error {
		var info OTAInfo
		if err := json.Unmarshal(payload, &info); err != nil {
			return fmt.Errorf("parsing OTA info: %w", err)
		}
		select {
		case replies <- info:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to OTA info: %w", err)
	}
	defer t.client.Unsubscribe(infoTopic) //nolint:errcheck // Best-effort cleanup

	if err := t.client.Publish(t.topics.BridgeOTARead(deviceID), []byte("{}"), 1, false); err != nil {
		return nil, fmt.Errorf("requesting OTA read: %w", err)
	}

	timer := time.NewTimer(t.readTimeout)
	defer timer.Stop()

	select {
	case info := <-replies:
		return &info, nil
	case <-timer.C:
		return nil, fmt.Errorf("OTA read timed out after %v", t.readTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// BeginTransfer publishes the image to the sidecar and returns a
// subscription carrying the transfer's event stream.
func (t *BridgeTransport) BeginTransfer(_ context.Context, deviceID string, image []byte) (Subscription, error) {
	eventsTopic := t.topics.BridgeOTAEvents(deviceID)
	sub := &bridgeSubscription{
		client: t.client,
		topic:  eventsTopic,
		events: make(chan TransferEvent, transferEventBuffer),
	}

	err := t.client.Subscribe(eventsTopic, 1, sub.handleMessage)
	if err != nil {
		return nil, fmt.Errorf("subscribing to transfer events: %w", err)
	}

	if err := t.client.Publish(t.topics.BridgeOTATransfer(deviceID), image, 1, false); err != nil {
		sub.Close() //nolint:errcheck // Already failing; surface the publish error
		return nil, fmt.Errorf("publishing image: %w", err)
	}

	return sub, nil
}

const transferEventBuffer = 32

// bridgeEvent is the wire format of one sidecar transfer event.
type bridgeEvent struct {
	Type     string  `json:"type"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error,omitempty"`
}

// bridgeSubscription adapts an MQTT event topic to the Subscription
// interface. Close is idempotent.
type bridgeSubscription struct {
	client MQTTClient
	topic  string
	events chan TransferEvent

	mu     sync.Mutex
	closed bool
	// done marks that a terminal event has been queued; later events
	// for the same transfer are dropped.
	done bool
}

func (s *bridgeSubscription) Events() <-chan TransferEvent { return s.events }

func (s *bridgeSubscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.client.Unsubscribe(s.topic)
	close(s.events)
	return err
}

// handleMessage translates one sidecar event into a TransferEvent.
// Events arriving after Close are dropped.
func (s *bridgeSubscription) handleMessage(_ string, payload []byte) error {
	var raw bridgeEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return fmt.Errorf("parsing transfer event: %w", err)
	}

	ev := TransferEvent{Progress: raw.Progress}
	switch raw.Type {
	case "progress":
		ev.Type = TransferProgress
	case "complete":
		ev.Type = TransferComplete
	case "error":
		ev.Type = TransferError
		ev.Err = fmt.Errorf("%s", raw.Error)
	default:
		return fmt.Errorf("unknown transfer event type %q", raw.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.done {
		return nil
	}

	// Progress is loss-tolerant, but a dropped complete/error would leave
	// the transfer live forever. One buffer slot stays free so the single
	// terminal event always fits.
	if ev.Type == TransferProgress {
		if len(s.events) < cap(s.events)-1 {
			s.events <- ev
		}
		return nil
	}

	s.done = true
	s.events <- ev
	return nil
}
