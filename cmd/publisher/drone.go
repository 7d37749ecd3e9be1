package main

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	"github.com/nandanugg/drone-relay/module/core/domain"
)

type publisher interface {
	Publish(topic string, payload []byte) error
}

type positionMessage struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type gpsMessage struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type sensorMessage struct {
	GPS         gpsMessage `json:"gps"`
	Wind        float64    `json:"wind"`
	Temperature float64    `json:"temperature"`
}

// drone is one simulated device. It walks toward the last commanded
// destination by a fixed step per axis on every tick.
type drone struct {
	id    string
	speed float64
	order domain.CoordOrder
	pub   publisher
	log   logrus.FieldLogger

	mu     sync.Mutex
	lat    float64
	lon    float64
	target *domain.MoveCommand
}

func newDrone(id string, speed float64, order domain.CoordOrder, start domain.BoundingBox, pub publisher, log logrus.FieldLogger) *drone {
	return &drone{
		id:    id,
		speed: speed,
		order: order,
		pub:   pub,
		log:   log.WithField("drone", id),
		lat:   start.MinLat + rand.Float64()*(start.MaxLat-start.MinLat),
		lon:   start.MinLon + rand.Float64()*(start.MaxLon-start.MinLon),
	}
}

func (d *drone) handle(topic string, payload []byte) {
	switch {
	case topic == domain.TopicCurrentPosition:
		d.reportPosition()
	case strings.HasPrefix(topic, domain.TopicCommandPrefix):
		cmd, err := domain.ParseMoveCommand(payload)
		if err != nil {
			d.log.WithError(err).Warn("ignoring command")
			return
		}
		d.mu.Lock()
		d.target = &cmd
		d.mu.Unlock()
		d.log.WithField("lat", cmd.Lat).WithField("lon", cmd.Lon).Info("new destination")
	}
}

func (d *drone) position() (float64, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lat, d.lon
}

func (d *drone) reportPosition() {
	lat, lon := d.position()
	body, err := json.Marshal(positionMessage{ID: d.id, Latitude: lat, Longitude: lon})
	if err != nil {
		d.log.WithError(err).Error("encode position")
		return
	}
	if err := d.pub.Publish(domain.TopicPositions, body); err != nil {
		d.log.WithError(err).Error("publish position")
	}
}

func (d *drone) reportSensor() {
	lat, lon := d.position()
	coords := [2]float64{lon, lat}
	if d.order == domain.OrderLatLon {
		coords = [2]float64{lat, lon}
	}
	msg := sensorMessage{
		GPS:         gpsMessage{Type: "Point", Coordinates: coords},
		Wind:        5 + rand.Float64()*45,
		Temperature: rand.Float64() * 30,
	}
	body, err := json.Marshal(msg)
	if err != nil {
		d.log.WithError(err).Error("encode telemetry")
		return
	}
	if err := d.pub.Publish(domain.TopicSensor, body); err != nil {
		d.log.WithError(err).Error("publish telemetry")
	}
}

// step advances one tick. It reports arrival exactly once per command.
func (d *drone) step() {
	d.mu.Lock()
	if d.target == nil {
		d.mu.Unlock()
		return
	}
	d.lat = approach(d.lat, d.target.Lat, d.speed)
	d.lon = approach(d.lon, d.target.Lon, d.speed)
	if d.lat != d.target.Lat || d.lon != d.target.Lon {
		d.mu.Unlock()
		return
	}
	corr := d.target.CorrelationID
	d.target = nil
	d.mu.Unlock()

	arrival := domain.Arrival{DeviceID: d.id, CorrelationID: corr}
	if err := d.pub.Publish(domain.TopicDestinationReached, arrival.Payload()); err != nil {
		d.log.WithError(err).Error("publish arrival")
		return
	}
	d.log.Info("destination reached")
}

func approach(cur, target, speed float64) float64 {
	if math.Abs(cur-target) < speed {
		return target
	}
	if cur < target {
		return cur + speed
	}
	return cur - speed
}

func (d *drone) fly(ctx context.Context, ticks <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			d.step()
		}
	}
}
