package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nandanugg/drone-relay/module/core/channel"
	"github.com/nandanugg/drone-relay/module/core/domain"
	"github.com/nandanugg/drone-relay/module/core/internal/handler/subscriber"
)

type mockChannel struct {
	connected atomic.Bool
}

func connectedChannel() *mockChannel {
	c := &mockChannel{}
	c.connected.Store(true)
	return c
}

func (m *mockChannel) IsConnected() bool { return m.connected.Load() }

type mockDispatcher struct {
	moveDeviceFn func(ctx context.Context, deviceID string, box domain.BoundingBox) (*Pending, error)
	broadcastFn  func(ctx context.Context) (*Pending, error)
}

func (m *mockDispatcher) MoveDevice(ctx context.Context, deviceID string, box domain.BoundingBox) (*Pending, error) {
	return m.moveDeviceFn(ctx, deviceID, box)
}

func (m *mockDispatcher) BroadcastPositionRequest(ctx context.Context) (*Pending, error) {
	return m.broadcastFn(ctx)
}

func resolvedPending() *Pending {
	p := newPending(kindMove)
	p.resolve(false)
	return p
}

type stack struct {
	agg         *Aggregator
	pub         *mockPublisher
	coordinator *RequestCoordinator
	channel     *mockChannel
}

// newStack wires real components around a publisher fake. onPublish runs in
// its own goroutine for every published message.
func newStack(cfg DispatcherConfig, onPublish func(agg *Aggregator, topic string, payload []byte)) *stack {
	agg := newPositionAggregator()
	pub := &mockPublisher{}
	if onPublish != nil {
		pub.publishFn = func(topic string, payload []byte) error {
			go onPublish(agg, topic, payload)
			return nil
		}
	}
	disp := NewCommandDispatcher(pub, agg, cfg, testLogger())
	agg.AddListener(disp)
	ch := connectedChannel()
	return &stack{
		agg:         agg,
		pub:         pub,
		channel:     ch,
		coordinator: NewRequestCoordinator(agg, disp, NewGeoExporter(), ch, testBox, testLogger()),
	}
}

func TestGetCurrentPositions_ReturnsRecordsFromWaitWindow(t *testing.T) {
	s := newStack(DispatcherConfig{PositionWait: 200 * time.Millisecond}, func(agg *Aggregator, topic string, _ []byte) {
		if topic != domain.TopicCurrentPosition {
			return
		}
		time.Sleep(20 * time.Millisecond)
		agg.OnMessage(domain.TopicPositions, positionPayload("drone1", 46.05, 11.11))
		agg.OnMessage(domain.TopicPositions, positionPayload("drone2", 46.06, 11.12))
	})

	// stale records from before the request
	s.agg.OnMessage(domain.TopicPositions, positionPayload("stale", 46.0, 11.0))
	s.agg.OnMessage(domain.TopicPositions, positionPayload("stale", 46.0, 11.0))

	records, err := s.coordinator.GetCurrentPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "drone1", records[0].DeviceID())
	assert.Equal(t, "drone2", records[1].DeviceID())

	msgs := s.pub.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.TopicCurrentPosition, msgs[0].topic)
}

func TestGetCurrentPositions_NoResponses(t *testing.T) {
	s := newStack(DispatcherConfig{PositionWait: 10 * time.Millisecond}, nil)
	s.agg.OnMessage(domain.TopicPositions, positionPayload("stale", 46.0, 11.0))

	records, err := s.coordinator.GetCurrentPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestGetCurrentPositions_ChannelClosed(t *testing.T) {
	s := newStack(DispatcherConfig{}, nil)
	s.channel.connected.Store(false)

	_, err := s.coordinator.GetCurrentPositions(context.Background())
	assert.ErrorIs(t, err, ErrChannelUnavailable)
	assert.Empty(t, s.pub.published())
}

func TestGetCurrentPositions_DispatchError(t *testing.T) {
	disp := &mockDispatcher{broadcastFn: func(context.Context) (*Pending, error) {
		return nil, errors.New("mqtt channel closed")
	}}
	c := NewRequestCoordinator(newPositionAggregator(), disp, NewGeoExporter(), connectedChannel(), testBox, testLogger())

	_, err := c.GetCurrentPositions(context.Background())
	require.Error(t, err)
}

func TestGetCurrentPositions_OverlappingCyclesCountLosses(t *testing.T) {
	s := newStack(DispatcherConfig{PositionWait: 300 * time.Millisecond}, func(agg *Aggregator, topic string, _ []byte) {
		time.Sleep(20 * time.Millisecond)
		agg.OnMessage(domain.TopicPositions, positionPayload("drone1", 46.05, 11.11))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.coordinator.GetCurrentPositions(context.Background())
	}()

	time.Sleep(100 * time.Millisecond)
	_, err := s.coordinator.GetCurrentPositions(context.Background())
	require.NoError(t, err)
	<-done

	assert.Greater(t, s.agg.LostToClear(), int64(0))
}

type handlerChannel struct {
	handler channel.Handler
}

func (c *handlerChannel) Subscribe(_ context.Context, _ []string, _ byte, h channel.Handler) error {
	c.handler = h
	return nil
}

func TestGetCurrentPositions_StalledArchiveKeepsWindowReplies(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agg := newPositionAggregator()
	agg.AddSink("archive", blockingSink())
	go agg.RunSinks(ctx)

	ch := &handlerChannel{}
	sub := subscriber.NewMessageSubscriber(ch, agg, []string{domain.TopicPositions}, 0, 16, testLogger())
	require.NoError(t, sub.Start(ctx))

	pub := &mockPublisher{publishFn: func(topic string, _ []byte) error {
		if topic == domain.TopicCurrentPosition {
			go func() {
				time.Sleep(50 * time.Millisecond)
				ch.handler(domain.TopicPositions, positionPayload("drone1", 46.05, 11.11))
				ch.handler(domain.TopicPositions, positionPayload("drone2", 46.06, 11.12))
			}()
		}
		return nil
	}}
	disp := NewCommandDispatcher(pub, agg, DispatcherConfig{PositionWait: DefaultPositionWait}, testLogger())
	c := NewRequestCoordinator(agg, disp, NewGeoExporter(), connectedChannel(), testBox, testLogger())

	records, err := c.GetCurrentPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "drone1", records[0].DeviceID())
	assert.Equal(t, "drone2", records[1].DeviceID())
}

func TestMoveDeviceTo(t *testing.T) {
	s := newStack(DispatcherConfig{MoveWait: 20 * time.Millisecond}, nil)

	msg, err := s.coordinator.MoveDeviceTo(context.Background(), "drone3")
	require.NoError(t, err)
	assert.Equal(t, "New destination has been reached by drone3", msg)

	msgs := s.pub.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, "command_drone3", msgs[0].topic)
}

func TestMoveDeviceTo_UsesConfiguredBox(t *testing.T) {
	var gotBox domain.BoundingBox
	disp := &mockDispatcher{moveDeviceFn: func(_ context.Context, deviceID string, box domain.BoundingBox) (*Pending, error) {
		gotBox = box
		return resolvedPending(), nil
	}}
	c := NewRequestCoordinator(newPositionAggregator(), disp, NewGeoExporter(), connectedChannel(), testBox, testLogger())

	_, err := c.MoveDeviceTo(context.Background(), "drone3")
	require.NoError(t, err)
	assert.Equal(t, testBox, gotBox)
}

func TestMoveDeviceTo_MissingDeviceID(t *testing.T) {
	s := newStack(DispatcherConfig{}, nil)
	s.agg.OnMessage(domain.TopicPositions, positionPayload("drone1", 46.05, 11.11))

	_, err := s.coordinator.MoveDeviceTo(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissingDeviceID)
	assert.Empty(t, s.pub.published())
	assert.Equal(t, 1, s.agg.Len())
}

func TestMoveDeviceTo_ChannelClosed(t *testing.T) {
	s := newStack(DispatcherConfig{}, nil)
	s.channel.connected.Store(false)

	_, err := s.coordinator.MoveDeviceTo(context.Background(), "drone3")
	assert.ErrorIs(t, err, ErrChannelUnavailable)
}

func TestMoveDeviceTo_AckCompletion(t *testing.T) {
	s := newStack(DispatcherConfig{MoveWait: time.Minute, AckCompletion: true}, func(agg *Aggregator, topic string, payload []byte) {
		cmd, err := domain.ParseMoveCommand(payload)
		if err != nil {
			return
		}
		agg.OnMessage(domain.TopicDestinationReached, []byte(cmd.DeviceID+" has reached the new destination! "+cmd.CorrelationID))
	})

	start := time.Now()
	msg, err := s.coordinator.MoveDeviceTo(context.Background(), "drone3")
	require.NoError(t, err)
	assert.Equal(t, "New destination has been reached by drone3", msg)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestExportTrajectory_DoesNotClear(t *testing.T) {
	s := newStack(DispatcherConfig{}, nil)
	s.agg.OnMessage(domain.TopicPositions, positionPayload("drone3", 46.07, 11.12))

	out, err := s.coordinator.ExportTrajectory(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(out), "<name>drone3</name>")
	assert.Contains(t, string(out), "<coordinates>11.12,46.07,0</coordinates>")
	assert.Equal(t, 1, s.agg.Len())
	assert.Empty(t, s.pub.published())
}
