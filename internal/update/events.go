package update

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/zigmesh/tuya-core/internal/infrastructure/mqtt"
)

// ProgressEvent is one process-wide "ota.progress" event.
type ProgressEvent struct {
	DeviceID string  `json:"device_id"`
	Status   Status  `json:"status"`
	Progress float64 `json:"progress"`
}

// Publisher pushes update lifecycle information to external consumers.
// The orchestrator tolerates a nil Publisher.
type Publisher interface {
	// PublishProgress announces transfer progress for a device.
	PublishProgress(deviceID string, progress float64) error

	// PublishState announces an update lifecycle transition.
	PublishState(state UpdateState) error

	// Notify sends a user-facing notification about a device.
	Notify(deviceID, message string) error
}

// Broadcaster fans out ProgressEvents to in-process subscribers.
//
// Delivery is best-effort: a subscriber that falls behind its channel
// buffer misses events rather than blocking the orchestrator.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan ProgressEvent
}

const subscriberBuffer = 16

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan ProgressEvent)}
}

// Subscribe registers a new subscriber. The returned cancel function
// detaches the subscriber and closes its channel; callers must invoke
// it when done.
func (b *Broadcaster) Subscribe() (<-chan ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan ProgressEvent, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers an event to all current subscribers without blocking.
func (b *Broadcaster) Publish(event ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of attached subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// MQTTPublisher implements Publisher on top of the MQTT client.
//
// Progress events are published unretained at QoS 0 (high frequency,
// loss tolerable); state transitions are retained so late subscribers
// see the last known state.
type MQTTPublisher struct {
	client *mqtt.Client
	topics mqtt.Topics
}

// NewMQTTPublisher creates an MQTT-backed Publisher.
func NewMQTTPublisher(client *mqtt.Client) *MQTTPublisher {
	return &MQTTPublisher{client: client}
}

// PublishProgress publishes to tuyacore/ota/progress/{deviceID}.
func (p *MQTTPublisher) PublishProgress(deviceID string, progress float64) error {
	payload, err := json.Marshal(map[string]any{
		"deviceId": deviceID,
		"progress": progress,
	})
	if err != nil {
		return fmt.Errorf("marshalling progress: %w", err)
	}
	return p.client.Publish(p.topics.OTAProgress(deviceID), payload, 0, false)
}

// PublishState publishes to tuyacore/ota/state/{deviceID}, retained.
func (p *MQTTPublisher) PublishState(state UpdateState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}
	return p.client.PublishRetained(p.topics.OTAState(state.DeviceID), payload)
}

// Notify publishes to tuyacore/notify/{deviceID}.
func (p *MQTTPublisher) Notify(deviceID, message string) error {
	payload, err := json.Marshal(map[string]any{
		"deviceId": deviceID,
		"message":  message,
	})
	if err != nil {
		return fmt.Errorf("marshalling notification: %w", err)
	}
	return p.client.Publish(p.topics.Notification(deviceID), payload, 1, false)
}
