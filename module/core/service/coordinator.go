package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nandanugg/drone-relay/module/core/domain"
)

var ErrChannelUnavailable = errors.New("broker channel unavailable")

type historyStore interface {
	Clear() int
	Snapshot() []domain.Record
	BeginWindow()
	EndWindow()
}

type commandDispatcher interface {
	MoveDevice(ctx context.Context, deviceID string, box domain.BoundingBox) (*Pending, error)
	BroadcastPositionRequest(ctx context.Context) (*Pending, error)
}

type kmlExporter interface {
	ExportKML(records []domain.Record) ([]byte, error)
}

type channelStatus interface {
	IsConnected() bool
}

// RequestCoordinator turns the asynchronous command/response traffic into
// blocking request cycles. Cycles are not serialized: an overlapping cycle's
// clear can discard records another cycle is waiting for.
type RequestCoordinator struct {
	history    historyStore
	dispatcher commandDispatcher
	exporter   kmlExporter
	channel    channelStatus
	box        domain.BoundingBox
	log        logrus.FieldLogger
}

func NewRequestCoordinator(history historyStore, dispatcher commandDispatcher, exporter kmlExporter, channel channelStatus, box domain.BoundingBox, log logrus.FieldLogger) *RequestCoordinator {
	return &RequestCoordinator{
		history:    history,
		dispatcher: dispatcher,
		exporter:   exporter,
		channel:    channel,
		box:        box,
		log:        log.WithField("component", "coordinator"),
	}
}

// GetCurrentPositions broadcasts a position request and returns whatever
// arrived during the wait window.
func (c *RequestCoordinator) GetCurrentPositions(ctx context.Context) ([]domain.Record, error) {
	if !c.channel.IsConnected() {
		return nil, ErrChannelUnavailable
	}

	c.history.Clear()
	pending, err := c.dispatcher.BroadcastPositionRequest(ctx)
	if err != nil {
		return nil, fmt.Errorf("position request: %w", err)
	}

	c.history.BeginWindow()
	defer c.history.EndWindow()
	pending.Wait()

	records := c.history.Snapshot()
	c.log.WithField("records", len(records)).Debug("position window closed")
	return records, nil
}

// MoveDeviceTo sends deviceID to a random destination inside the configured
// box and returns a status message once the command is considered complete.
func (c *RequestCoordinator) MoveDeviceTo(ctx context.Context, deviceID string) (string, error) {
	if deviceID == "" {
		return "", ErrMissingDeviceID
	}
	if !c.channel.IsConnected() {
		return "", ErrChannelUnavailable
	}

	pending, err := c.dispatcher.MoveDevice(ctx, deviceID, c.box)
	if err != nil {
		return "", fmt.Errorf("move %s: %w", deviceID, err)
	}
	pending.Wait()

	c.log.WithField("device_id", deviceID).WithField("acknowledged", pending.Acknowledged()).Info("move completed")
	return "New destination has been reached by " + deviceID, nil
}

// ExportTrajectory renders the current history as KML without clearing it.
func (c *RequestCoordinator) ExportTrajectory(_ context.Context) ([]byte, error) {
	return c.exporter.ExportKML(c.history.Snapshot())
}
