// internal/events/bus.go
package events

import (
	"reflect"
	"sync"
	"time"
	"unsafe"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType identifies the lifecycle moment an event describes.
type EventType string

// Constants for the event types published during an analysis run.
const (
	EventAnalysisStarted   EventType = "analysis_started"
	EventAnalysisCompleted EventType = "analysis_completed"
	EventAnalysisFailed    EventType = "analysis_failed"
	EventAgentStarted      EventType = "agent_started"
	EventAgentCompleted    EventType = "agent_completed"
	EventAgentFailed       EventType = "agent_failed"
)

// Event is the envelope delivered to observers.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Data      map[string]any
}

// Observer receives events published on the bus. Implementations must be safe
// for concurrent calls; delivery is synchronous on the publisher's goroutine.
type Observer interface {
	OnEvent(evt Event)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(evt Event)

// OnEvent calls f(evt).
func (f ObserverFunc) OnEvent(evt Event) { f(evt) }

// Bus fans events out to registered observers. Subscription is idempotent and
// a misbehaving observer never prevents delivery to the others.
type Bus struct {
	logger *zap.Logger

	mu        sync.RWMutex
	observers []Observer
}

// NewBus initializes an event bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger.Named("event_bus")}
}

// Subscribe registers an observer. Registering the same observer twice is a
// no-op; it will still receive each event exactly once.
func (b *Bus) Subscribe(obs Observer) {
	if obs == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.observers {
		if sameObserver(existing, obs) {
			return
		}
	}
	b.observers = append(b.observers, obs)
}

// sameObserver reports whether two observers are the same registration
// identity. Func-typed observers (ObserverFunc included) are not comparable
// with ==, so those fall back to the identity of the boxed value. The code
// pointer alone is not enough: distinct closures of one function literal
// share it.
func sameObserver(a, b Observer) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return dataWord(a) == dataWord(b)
}

// dataWord extracts the data pointer of the interface value.
func dataWord(obs Observer) unsafe.Pointer {
	return (*[2]unsafe.Pointer)(unsafe.Pointer(&obs))[1]
}

// Unsubscribe removes an observer. Removing an observer that was never
// registered is a no-op.
func (b *Bus) Unsubscribe(obs Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.observers {
		if sameObserver(existing, obs) {
			copy(b.observers[i:], b.observers[i+1:])
			b.observers = b.observers[:len(b.observers)-1]
			return
		}
	}
}

// Publish builds an event envelope and delivers it to every observer in
// subscription order. Observers registered mid-publish see only subsequent
// events; a panicking observer is logged and skipped.
func (b *Bus) Publish(evtType EventType, data map[string]any) Event {
	evt := Event{
		ID:        uuid.New().String(),
		Type:      evtType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	// Snapshot under the read lock so delivery happens without holding it.
	b.mu.RLock()
	snapshot := make([]Observer, len(b.observers))
	copy(snapshot, b.observers)
	b.mu.RUnlock()

	b.logger.Debug("Publishing event",
		zap.String("type", string(evt.Type)),
		zap.String("id", evt.ID),
		zap.Int("observers", len(snapshot)),
	)

	for _, obs := range snapshot {
		b.deliver(obs, evt)
	}
	return evt
}

// deliver invokes a single observer, containing any panic it raises.
func (b *Bus) deliver(obs Observer, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Observer panicked while handling event",
				zap.String("type", string(evt.Type)),
				zap.String("id", evt.ID),
				zap.Any("panic", r),
			)
		}
	}()
	obs.OnEvent(evt)
}

// Clear removes all observers.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = nil
}

// Len reports the number of registered observers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.observers)
}
