package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nandanugg/drone-relay/module/core/domain"
	"github.com/nandanugg/drone-relay/module/core/metrics"
)

// Default completion waits observed in the field deployments.
const (
	DefaultMoveWait     = 5000 * time.Millisecond
	DefaultPositionWait = 1000 * time.Millisecond
)

const (
	kindMove      = "move"
	kindPositions = "positions"
)

var ErrMissingDeviceID = errors.New("missing device id")

type commandPublisher interface {
	Publish(topic string, payload []byte) error
}

type historyClearer interface {
	Clear() int
}

// Pending resolves once its command is considered complete. It always
// resolves: either the wait interval elapses or, in ack mode, a matching
// completion event arrives first.
type Pending struct {
	kind  string
	done  chan struct{}
	once  sync.Once
	acked atomic.Bool
	timer *time.Timer
}

func newPending(kind string) *Pending {
	return &Pending{kind: kind, done: make(chan struct{})}
}

func (p *Pending) Done() <-chan struct{} { return p.done }

func (p *Pending) Wait() { <-p.done }

// Acknowledged reports whether a device event resolved the command.
func (p *Pending) Acknowledged() bool { return p.acked.Load() }

func (p *Pending) resolve(acked bool) {
	p.once.Do(func() {
		outcome := "elapsed"
		if acked {
			p.acked.Store(true)
			outcome = "ack"
			if p.timer != nil {
				p.timer.Stop()
			}
		}
		metrics.CommandCompletions.WithLabelValues(p.kind, outcome).Inc()
		close(p.done)
	})
}

type DispatcherConfig struct {
	MoveWait     time.Duration
	PositionWait time.Duration
	// AckCompletion resolves moves on a matching destination_reached event,
	// with MoveWait as the upper bound.
	AckCompletion bool
}

type awaitingMove struct {
	deviceID string
	pending  *Pending
}

type CommandDispatcher struct {
	pub     commandPublisher
	history historyClearer
	cfg     DispatcherConfig
	log     logrus.FieldLogger

	uniform func() float64
	newID   func() string

	mu       sync.Mutex
	awaiting map[string]awaitingMove
}

func NewCommandDispatcher(pub commandPublisher, history historyClearer, cfg DispatcherConfig, log logrus.FieldLogger) *CommandDispatcher {
	if cfg.MoveWait <= 0 {
		cfg.MoveWait = DefaultMoveWait
	}
	if cfg.PositionWait <= 0 {
		cfg.PositionWait = DefaultPositionWait
	}
	return &CommandDispatcher{
		pub:      pub,
		history:  history,
		cfg:      cfg,
		log:      log.WithField("component", "dispatcher"),
		uniform:  rand.Float64,
		newID:    func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
		awaiting: make(map[string]awaitingMove),
	}
}

// MoveDevice sends deviceID to a random destination inside box, clears the
// history and returns the pending completion.
func (d *CommandDispatcher) MoveDevice(ctx context.Context, deviceID string, box domain.BoundingBox) (*Pending, error) {
	if deviceID == "" {
		return nil, ErrMissingDeviceID
	}
	if err := box.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := domain.MoveCommand{
		DeviceID: deviceID,
		Lat:      d.sample(box.MinLat, box.MaxLat),
		Lon:      d.sample(box.MinLon, box.MaxLon),
	}
	pending := newPending(kindMove)
	if d.cfg.AckCompletion {
		cmd.CorrelationID = d.newID()
	}
	correlationID := cmd.CorrelationID
	pending.timer = time.AfterFunc(d.cfg.MoveWait, func() {
		d.forget(correlationID)
		pending.resolve(false)
	})
	if correlationID != "" {
		d.mu.Lock()
		d.awaiting[correlationID] = awaitingMove{deviceID: deviceID, pending: pending}
		d.mu.Unlock()
	}

	d.history.Clear()
	if err := d.pub.Publish(domain.CommandTopic(deviceID), cmd.Payload()); err != nil {
		pending.timer.Stop()
		d.forget(correlationID)
		return nil, fmt.Errorf("publish move command: %w", err)
	}
	metrics.CommandsPublished.WithLabelValues(kindMove).Inc()
	d.log.WithFields(logrus.Fields{
		"device_id":      deviceID,
		"lat":            cmd.Lat,
		"lon":            cmd.Lon,
		"correlation_id": correlationID,
	}).Info("move command sent")
	return pending, nil
}

// BroadcastPositionRequest asks every device for its position, clears the
// history and returns the pending completion.
func (d *CommandDispatcher) BroadcastPositionRequest(ctx context.Context) (*Pending, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pending := newPending(kindPositions)
	pending.timer = time.AfterFunc(d.cfg.PositionWait, func() {
		pending.resolve(false)
	})

	d.history.Clear()
	if err := d.pub.Publish(domain.TopicCurrentPosition, []byte{}); err != nil {
		pending.timer.Stop()
		return nil, fmt.Errorf("publish position request: %w", err)
	}
	metrics.CommandsPublished.WithLabelValues(kindPositions).Inc()
	d.log.Debug("position request broadcast")
	return pending, nil
}

// OnEvent resolves moves whose correlation id appears in the event payload.
// An arrival without a correlation token ("drone3 has reached the new
// destination!") resolves the device's outstanding moves instead.
func (d *CommandDispatcher) OnEvent(ev domain.DeviceEvent) {
	if !d.cfg.AckCompletion || ev.Topic != domain.TopicDestinationReached {
		return
	}
	payload := string(ev.Payload)
	arrival, ok := domain.ParseArrival(ev.Payload)
	byDevice := ok && arrival.CorrelationID == ""

	d.mu.Lock()
	var matched []*Pending
	for id, w := range d.awaiting {
		if strings.Contains(payload, id) || (byDevice && arrival.DeviceID == w.deviceID) {
			matched = append(matched, w.pending)
			delete(d.awaiting, id)
		}
	}
	d.mu.Unlock()

	for _, p := range matched {
		p.resolve(true)
	}
}

func (d *CommandDispatcher) forget(correlationID string) {
	if correlationID == "" {
		return
	}
	d.mu.Lock()
	delete(d.awaiting, correlationID)
	d.mu.Unlock()
}

// sample draws uniformly from the open interval (lo, hi).
func (d *CommandDispatcher) sample(lo, hi float64) float64 {
	for {
		v := lo + d.uniform()*(hi-lo)
		if v > lo && v < hi {
			return v
		}
	}
}
