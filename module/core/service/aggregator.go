package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nandanugg/drone-relay/module/core/domain"
	"github.com/nandanugg/drone-relay/module/core/metrics"
)

// EventListener receives opaque device events such as destination_reached.
// Listeners run on the delivery worker and must not block.
type EventListener interface {
	OnEvent(ev domain.DeviceEvent)
}

// Aggregator owns the history. It is the only writer; Clear and Snapshot are
// safe to call from any goroutine while messages are being delivered.
type Aggregator struct {
	parse domain.RecordParser
	watch map[string]struct{}
	log   logrus.FieldLogger
	now   func() time.Time

	listeners []EventListener
	sinks     *sinkQueue

	mu          sync.Mutex
	history     []domain.Record
	openWindows int
	lost        int64
}

func NewAggregator(parse domain.RecordParser, watch []string, log logrus.FieldLogger) *Aggregator {
	w := make(map[string]struct{}, len(watch))
	for _, t := range watch {
		w[t] = struct{}{}
	}
	return &Aggregator{
		parse: parse,
		watch: w,
		log:   log.WithField("component", "aggregator"),
		now:   time.Now,
		sinks: newSinkQueue(DefaultSinkQueueSize, log),
	}
}

// SetSinkQueueSize resizes the sink queue. Call before RunSinks.
func (a *Aggregator) SetSinkQueueSize(size int) {
	q := newSinkQueue(size, a.log)
	q.records, q.events = a.sinks.records, a.sinks.events
	a.sinks = q
}

// AddSink registers a record sink. Sinks run on the RunSinks goroutine, never
// on the delivery worker. Call before messages start flowing.
func (a *Aggregator) AddSink(name string, sink RecordSink) {
	a.sinks.addRecordSink(name, sink)
}

// AddEventSink registers a device event sink that runs off the delivery
// worker, unlike AddListener.
func (a *Aggregator) AddEventSink(name string, sink EventSink) {
	a.sinks.addEventSink(name, sink)
}

// RunSinks drains the sink queue until ctx is done.
func (a *Aggregator) RunSinks(ctx context.Context) {
	a.sinks.run(ctx)
}

// AddListener registers an event listener. Call before messages start flowing.
func (a *Aggregator) AddListener(l EventListener) {
	a.listeners = append(a.listeners, l)
}

// OnMessage handles one delivered message. Malformed payloads are dropped
// and logged; nothing is returned to the caller.
func (a *Aggregator) OnMessage(topic string, payload []byte) {
	metrics.MessagesReceived.WithLabelValues(topic).Inc()
	receivedAt := a.now()

	if topic == domain.TopicDestinationReached {
		ev := domain.DeviceEvent{
			Topic:      topic,
			Payload:    append([]byte(nil), payload...),
			ReceivedAt: receivedAt,
		}
		a.log.WithField("payload", string(payload)).Info("device event")
		for _, l := range a.listeners {
			l.OnEvent(ev)
		}
		a.sinks.enqueueEvent(ev)
		return
	}

	if _, ok := a.watch[topic]; !ok {
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonUnwatched).Inc()
		a.log.WithField("topic", topic).Debug("ignoring unwatched topic")
		return
	}

	rec, err := a.parse(payload)
	if err != nil {
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonParseError).Inc()
		a.log.WithError(err).WithField("topic", topic).Warn("dropping malformed message")
		return
	}

	a.mu.Lock()
	a.history = append(a.history, rec)
	size := len(a.history)
	a.mu.Unlock()
	metrics.HistorySize.Set(float64(size))

	a.sinks.enqueueRecord(rec, receivedAt)
}

// Clear empties the history and returns how many records it discarded.
// Records discarded while a request window is open are counted as lost.
func (a *Aggregator) Clear() int {
	a.mu.Lock()
	n := len(a.history)
	a.history = nil
	if a.openWindows > 0 && n > 0 {
		a.lost += int64(n)
		metrics.RecordsLostToClear.Add(float64(n))
		a.log.WithField("records", n).WithField("open_windows", a.openWindows).
			Warn("clear discarded records of an open request window")
	}
	a.mu.Unlock()
	metrics.HistorySize.Set(0)
	return n
}

// Snapshot returns a copy of the history in arrival order.
func (a *Aggregator) Snapshot() []domain.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.Record, len(a.history))
	copy(out, a.history)
	return out
}

func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.history)
}

// BeginWindow marks a request waiting on the history.
func (a *Aggregator) BeginWindow() {
	a.mu.Lock()
	a.openWindows++
	a.mu.Unlock()
}

func (a *Aggregator) EndWindow() {
	a.mu.Lock()
	if a.openWindows > 0 {
		a.openWindows--
	}
	a.mu.Unlock()
}

// LostToClear is the number of records discarded while a window was open.
func (a *Aggregator) LostToClear() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lost
}
