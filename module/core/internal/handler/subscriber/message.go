package subscriber

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/nandanugg/drone-relay/module/core/channel"
	"github.com/nandanugg/drone-relay/module/core/metrics"
)

var ErrAlreadyStarted = errors.New("subscriber already started")

type messageChannel interface {
	Subscribe(ctx context.Context, topics []string, qos byte, handler channel.Handler) error
}

type messageHandler interface {
	OnMessage(topic string, payload []byte)
}

type inbound struct {
	topic   string
	payload []byte
}

// MessageSubscriber queues broker deliveries and hands them to the handler
// one at a time, in delivery order, from a single worker goroutine.
type MessageSubscriber struct {
	ch      messageChannel
	handler messageHandler
	topics  []string
	qos     byte
	queue   chan inbound
	log     logrus.FieldLogger
	started bool
}

func NewMessageSubscriber(ch messageChannel, handler messageHandler, topics []string, qos byte, queueSize int, log logrus.FieldLogger) *MessageSubscriber {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &MessageSubscriber{
		ch:      ch,
		handler: handler,
		topics:  topics,
		qos:     qos,
		queue:   make(chan inbound, queueSize),
		log:     log.WithField("component", "subscriber"),
	}
}

// Start launches the worker and subscribes. The worker stops when ctx ends.
func (s *MessageSubscriber) Start(ctx context.Context) error {
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	go s.Run(ctx)
	return s.ch.Subscribe(ctx, s.topics, s.qos, s.enqueue)
}

// Run drains the queue until ctx is done.
func (s *MessageSubscriber) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.queue:
			s.handler.OnMessage(msg.topic, msg.payload)
		}
	}
}

func (s *MessageSubscriber) enqueue(topic string, payload []byte) {
	msg := inbound{topic: topic, payload: append([]byte(nil), payload...)}
	select {
	case s.queue <- msg:
	default:
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonQueueFull).Inc()
		s.log.WithField("topic", topic).Warn("inbound queue full, dropping message")
	}
}
