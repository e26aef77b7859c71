package events

import (
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

const (
	EventConnectivityChanged = "connectivity_changed"
	EventActionEnqueued      = "action_enqueued"
	EventSyncCompleted       = "sync_completed"
)

// ConnectivityPayload reports an online/offline transition.
type ConnectivityPayload struct {
	Online bool `json:"online"`
}

// EnqueuedPayload reports a newly stored action.
type EnqueuedPayload struct {
	ActionID int64 `json:"action_id"`
}

// SyncCompletedPayload summarizes one finished cycle.
type SyncCompletedPayload struct {
	Delivered int   `json:"delivered"`
	Remaining int64 `json:"remaining"`
	Failed    bool  `json:"failed"`
}

// Event represents a lightweight in-process event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
