package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/nandanugg/drone-relay/config"
	"github.com/nandanugg/drone-relay/module/core"
	"github.com/nandanugg/drone-relay/module/core/domain"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}

	log, err := config.NewLogger(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := config.NewPostgres(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("postgres")
	}
	if db != nil {
		defer func() { _ = db.Close() }()
	}

	amqpConn, err := config.NewRabbitMQ(cfg)
	if err != nil {
		log.WithError(err).Fatal("rabbitmq")
	}
	if amqpConn != nil {
		defer func() { _ = amqpConn.Close() }()
	}

	mqttCh, err := config.NewMQTT(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("mqtt")
	}
	defer mqttCh.Close()

	coreModule, err := core.Build(ctx, db, amqpConn, mqttCh, core.Options{
		Shape:         domain.RecordShape(cfg.RecordShape),
		Order:         domain.CoordOrder(cfg.TelemetryOrder),
		QoS:           byte(cfg.MQTTQoS),
		QueueSize:     cfg.InboundQueueSize,
		SinkQueueSize: cfg.SinkQueueSize,
		Box:           cfg.Box(),
		MoveWait:      cfg.MoveWait,
		PositionWait:  cfg.PositionWait,
		AckCompletion: cfg.CompletionMode == config.CompletionAck,
		Logger:        log,
	})
	if err != nil {
		log.WithError(err).Fatal("core module")
	}

	if err := coreModule.StartSubscribers(ctx); err != nil {
		log.WithError(err).Fatal("start subscribers")
	}

	r := gin.Default()

	health := config.NewHealthChecker(mqttCh)
	if db != nil {
		health.WithPostgres(db)
	}
	if amqpConn != nil {
		health.WithRabbitMQ(amqpConn)
	}
	health.Register(r)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	coreModule.RegisterRoutes(&r.RouterGroup)

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("port", cfg.HTTPPort).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("server")
		os.Exit(1)
	}
	log.Info("shut down")
}
