package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/nandanugg/drone-relay/module/core/channel"
	"github.com/nandanugg/drone-relay/module/core/domain"
	handler "github.com/nandanugg/drone-relay/module/core/internal/handler/http"
	"github.com/nandanugg/drone-relay/module/core/internal/handler/subscriber"
	"github.com/nandanugg/drone-relay/module/core/internal/repository/database/postgres"
	"github.com/nandanugg/drone-relay/module/core/internal/repository/publisher/rabbitmq"
	"github.com/nandanugg/drone-relay/module/core/service"
)

type Options struct {
	Shape         domain.RecordShape
	Order         domain.CoordOrder
	QoS           byte
	QueueSize     int
	SinkQueueSize int
	Box           domain.BoundingBox
	MoveWait      time.Duration
	PositionWait  time.Duration
	AckCompletion bool
	Logger        logrus.FieldLogger
}

type Module struct {
	Aggregator  *service.Aggregator
	Dispatcher  *service.CommandDispatcher
	Coordinator *service.RequestCoordinator
	handler     *handler.DroneHandler
	subscriber  *subscriber.MessageSubscriber
}

// Build wires the relay around an open MQTT channel. db and amqpConn are
// optional; nil disables the archive or the event relay.
func Build(ctx context.Context, db *sql.DB, amqpConn *amqp.Connection, ch *channel.MQTTChannel, opts Options) (*Module, error) {
	parse, err := domain.NewRecordParser(opts.Shape, opts.Order)
	if err != nil {
		return nil, fmt.Errorf("record parser: %w", err)
	}

	log := opts.Logger
	agg := service.NewAggregator(parse, WatchTopics(opts.Shape), log)
	agg.SetSinkQueueSize(opts.SinkQueueSize)
	dispatcher := service.NewCommandDispatcher(ch, agg, service.DispatcherConfig{
		MoveWait:      opts.MoveWait,
		PositionWait:  opts.PositionWait,
		AckCompletion: opts.AckCompletion,
	}, log)
	agg.AddListener(dispatcher)

	coordinator := service.NewRequestCoordinator(agg, dispatcher, service.NewGeoExporter(), ch, opts.Box, log)

	h := handler.NewDroneHandler(coordinator, nil, log)
	if db != nil && opts.Shape == domain.ShapeTelemetry {
		// telemetry carries no device id to key the archive on
		log.Warn("record archive disabled for telemetry records")
		db = nil
	}
	if db != nil {
		repo := postgres.NewRecordRepo(db)
		if err := repo.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("archive migrate: %w", err)
		}
		archiveSvc := service.NewArchiveService(repo)
		agg.AddSink("archive", archiveSvc)
		h = handler.NewDroneHandler(coordinator, archiveSvc, log)
	}

	if amqpConn != nil {
		pub, err := rabbitmq.NewEventPublisher(amqpConn)
		if err != nil {
			return nil, fmt.Errorf("event publisher: %w", err)
		}
		relay := service.NewRelayService(pub, log)
		agg.AddSink("relay", relay)
		agg.AddSink("region", service.NewRegionService(pub, opts.Box))
		agg.AddEventSink("relay", relay)
	}

	sub := subscriber.NewMessageSubscriber(ch, agg, WatchTopics(opts.Shape), opts.QoS, opts.QueueSize, log)

	return &Module{
		Aggregator:  agg,
		Dispatcher:  dispatcher,
		Coordinator: coordinator,
		handler:     h,
		subscriber:  sub,
	}, nil
}

// WatchTopics is the subscription set for a deployment's record shape.
func WatchTopics(shape domain.RecordShape) []string {
	data := domain.TopicPositions
	if shape == domain.ShapeTelemetry {
		data = domain.TopicSensor
	}
	return []string{data, domain.TopicDestinationReached}
}

func (m *Module) RegisterRoutes(r *gin.RouterGroup) {
	m.handler.Register(r)
}

// StartSubscribers starts the sink worker and the delivery worker, then
// subscribes. Both workers stop when ctx ends.
func (m *Module) StartSubscribers(ctx context.Context) error {
	go m.Aggregator.RunSinks(ctx)
	return m.subscriber.Start(ctx)
}
