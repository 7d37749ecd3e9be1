package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nandanugg/drone-relay/module/core/domain"
	"github.com/nandanugg/drone-relay/module/core/metrics"
)

const (
	DefaultSinkQueueSize = 256
	defaultSinkTimeout   = 2 * time.Second
)

// RecordSink receives every record after it has been appended to the history.
type RecordSink interface {
	Accept(ctx context.Context, rec domain.Record, receivedAt time.Time) error
}

// EventSink receives device events after the inline listeners have seen them.
type EventSink interface {
	AcceptEvent(ctx context.Context, ev domain.DeviceEvent) error
}

type namedSink struct {
	name string
	sink RecordSink
}

type namedEventSink struct {
	name string
	sink EventSink
}

type sinkJob struct {
	rec        domain.Record
	receivedAt time.Time
	event      *domain.DeviceEvent
}

// sinkQueue hands accepted records and events to slow backends on its own
// goroutine. A full queue drops the job; the history is never affected.
type sinkQueue struct {
	jobs       chan sinkJob
	records    []namedSink
	events     []namedEventSink
	jobTimeout time.Duration
	log        logrus.FieldLogger
}

func newSinkQueue(size int, log logrus.FieldLogger) *sinkQueue {
	if size <= 0 {
		size = DefaultSinkQueueSize
	}
	return &sinkQueue{
		jobs:       make(chan sinkJob, size),
		jobTimeout: defaultSinkTimeout,
		log:        log.WithField("component", "sinks"),
	}
}

func (q *sinkQueue) addRecordSink(name string, sink RecordSink) {
	q.records = append(q.records, namedSink{name: name, sink: sink})
}

func (q *sinkQueue) addEventSink(name string, sink EventSink) {
	q.events = append(q.events, namedEventSink{name: name, sink: sink})
}

func (q *sinkQueue) enqueueRecord(rec domain.Record, receivedAt time.Time) {
	if len(q.records) == 0 {
		return
	}
	q.enqueue(sinkJob{rec: rec, receivedAt: receivedAt})
}

func (q *sinkQueue) enqueueEvent(ev domain.DeviceEvent) {
	if len(q.events) == 0 {
		return
	}
	q.enqueue(sinkJob{event: &ev})
}

func (q *sinkQueue) enqueue(job sinkJob) {
	select {
	case q.jobs <- job:
	default:
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonSinkQueueFull).Inc()
		q.log.Warn("sink queue full, dropping job")
	}
}

func (q *sinkQueue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.deliver(ctx, job)
		}
	}
}

func (q *sinkQueue) deliver(ctx context.Context, job sinkJob) {
	if job.event != nil {
		for _, s := range q.events {
			q.report(s.name, q.call(ctx, func(ctx context.Context) error {
				return s.sink.AcceptEvent(ctx, *job.event)
			}))
		}
		return
	}
	for _, s := range q.records {
		q.report(s.name, q.call(ctx, func(ctx context.Context) error {
			return s.sink.Accept(ctx, job.rec, job.receivedAt)
		}))
	}
}

func (q *sinkQueue) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, q.jobTimeout)
	defer cancel()
	return fn(ctx)
}

func (q *sinkQueue) report(name string, err error) {
	if err == nil {
		return
	}
	metrics.SinkErrors.WithLabelValues(name).Inc()
	q.log.WithError(err).WithField("sink", name).Warn("sink failed")
}
