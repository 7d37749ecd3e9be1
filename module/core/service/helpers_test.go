package service

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nandanugg/drone-relay/module/core/domain"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newPositionAggregator() *Aggregator {
	parse, err := domain.NewRecordParser(domain.ShapePosition, domain.OrderLonLat)
	if err != nil {
		panic(err)
	}
	return NewAggregator(parse, []string{domain.TopicPositions}, testLogger())
}

type publishedMessage struct {
	topic   string
	payload []byte
}

type mockPublisher struct {
	mu        sync.Mutex
	messages  []publishedMessage
	publishFn func(topic string, payload []byte) error
}

func (m *mockPublisher) Publish(topic string, payload []byte) error {
	m.mu.Lock()
	m.messages = append(m.messages, publishedMessage{topic: topic, payload: append([]byte(nil), payload...)})
	fn := m.publishFn
	m.mu.Unlock()
	if fn != nil {
		return fn(topic, payload)
	}
	return nil
}

func (m *mockPublisher) published() []publishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishedMessage(nil), m.messages...)
}

type mockClearer struct {
	mu    sync.Mutex
	calls int
}

func (m *mockClearer) Clear() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return 0
}

func (m *mockClearer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
