package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/nandanugg/drone-relay/module/core/channel"
	"github.com/nandanugg/drone-relay/module/core/domain"
)

type simConfig struct {
	Broker         string        `env:"MQTT_BROKER,default=tcp://localhost:1883"`
	DroneID        string        `env:"DRONE_ID"`
	Speed          float64       `env:"DRONE_SPEED,default=0.00102384598"`
	Tick           time.Duration `env:"DRONE_TICK,default=1s"`
	SensorInterval time.Duration `env:"SENSOR_INTERVAL,default=0s"`
	CoordOrder     string        `env:"TELEMETRY_COORD_ORDER,default=lonlat"`
	LogLevel       string        `env:"LOG_LEVEL,default=info"`
}

func main() {
	var cfg simConfig
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		logrus.WithError(err).Fatal("config")
	}
	if cfg.DroneID == "" {
		host, err := os.Hostname()
		if err != nil {
			logrus.WithError(err).Fatal("hostname")
		}
		cfg.DroneID = host
	}

	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ch := channel.New(channel.Options{
		Broker:   cfg.Broker,
		ClientID: "drone-" + cfg.DroneID,
		Logger:   log,
	})
	if err := ch.Connect(ctx); err != nil {
		log.WithError(err).Fatal("mqtt")
	}
	defer ch.Close()

	d := newDrone(cfg.DroneID, cfg.Speed, domain.CoordOrder(cfg.CoordOrder), domain.TrentoBox, ch, log)

	topics := []string{domain.CommandTopic(cfg.DroneID), domain.TopicCurrentPosition}
	if err := ch.Subscribe(ctx, topics, 0, d.handle); err != nil {
		log.WithError(err).Fatal("subscribe")
	}
	d.reportPosition()

	lat, lon := d.position()
	log.WithFields(logrus.Fields{"drone": cfg.DroneID, "lat": lat, "lon": lon}).Info("drone online")

	ticks := make(chan struct{})
	go d.fly(ctx, ticks)

	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	var sensor <-chan time.Time
	if cfg.SensorInterval > 0 {
		t := time.NewTicker(cfg.SensorInterval)
		defer t.Stop()
		sensor = t.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			select {
			case ticks <- struct{}{}:
			default:
			}
		case <-sensor:
			d.reportSensor()
		}
	}
}
