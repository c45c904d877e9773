// internal/events/observers.go
package events

import (
	"sync"

	"go.uber.org/zap"
)

// LoggingObserver writes every event it receives to a structured logger.
type LoggingObserver struct {
	logger *zap.Logger
}

// NewLoggingObserver builds an observer that logs events at debug level, with
// failures elevated to warn.
func NewLoggingObserver(logger *zap.Logger) *LoggingObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingObserver{logger: logger.Named("events")}
}

// OnEvent implements Observer.
func (o *LoggingObserver) OnEvent(evt Event) {
	fields := []zap.Field{
		zap.String("event_id", evt.ID),
		zap.Time("timestamp", evt.Timestamp),
		zap.Any("data", evt.Data),
	}
	switch evt.Type {
	case EventAgentFailed, EventAnalysisFailed:
		o.logger.Warn(string(evt.Type), fields...)
	default:
		o.logger.Debug(string(evt.Type), fields...)
	}
}

// MetricsObserver tallies how many events of each type were published. It is
// safe for concurrent use.
type MetricsObserver struct {
	mu     sync.Mutex
	counts map[EventType]int
}

// NewMetricsObserver builds an empty tally.
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{counts: make(map[EventType]int)}
}

// OnEvent implements Observer.
func (o *MetricsObserver) OnEvent(evt Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[evt.Type]++
}

// Count returns how many events of the given type have been observed.
func (o *MetricsObserver) Count(evtType EventType) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[evtType]
}

// Snapshot returns a copy of all tallies.
func (o *MetricsObserver) Snapshot() map[EventType]int {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[EventType]int, len(o.counts))
	for k, v := range o.counts {
		out[k] = v
	}
	return out
}
