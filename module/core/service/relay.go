package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nandanugg/drone-relay/module/core/domain"
	"github.com/nandanugg/drone-relay/module/core/internal/repository/publisher"
)

// RelayService forwards records and device events to the event bus.
type RelayService struct {
	publisher publisher.EventPublisher
	log       logrus.FieldLogger
}

func NewRelayService(pub publisher.EventPublisher, log logrus.FieldLogger) *RelayService {
	return &RelayService{
		publisher: pub,
		log:       log.WithField("component", "relay"),
	}
}

func (s *RelayService) Accept(ctx context.Context, rec domain.Record, receivedAt time.Time) error {
	return s.publisher.PublishRecord(ctx, domain.NewRecordEntry(rec, receivedAt))
}

func (s *RelayService) AcceptEvent(ctx context.Context, ev domain.DeviceEvent) error {
	s.log.WithField("topic", ev.Topic).Debug("relaying device event")
	return s.publisher.PublishEvent(ctx, &ev)
}
