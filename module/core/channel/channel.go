// Package channel owns the MQTT broker connection. A channel never
// reconnects: once the transport drops it stays Closed until the process
// restarts.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

var (
	ErrClosed       = errors.New("mqtt channel closed")
	ErrNotConnected = errors.New("mqtt channel not connected")
	ErrInvalidQoS   = errors.New("qos must be 0, 1 or 2")
	ErrNoTopics     = errors.New("no topics to subscribe")
)

// Handler receives every message delivered on a subscribed topic.
type Handler func(topic string, payload []byte)

// ClientFactory builds the underlying paho client. Tests swap it for a fake.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

type Options struct {
	Broker         string
	ClientID       string
	ConnectTimeout time.Duration
	NewClient      ClientFactory
	Logger         logrus.FieldLogger
}

type MQTTChannel struct {
	opts Options
	log  logrus.FieldLogger

	mu     sync.Mutex
	state  State
	client mqtt.Client
}

func New(opts Options) *MQTTChannel {
	if opts.NewClient == nil {
		opts.NewClient = mqtt.NewClient
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MQTTChannel{
		opts: opts,
		log:  log.WithField("component", "mqtt"),
	}
}

// Connect dials the broker. A failed dial closes the channel for good.
func (c *MQTTChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Closed:
		c.mu.Unlock()
		return ErrClosed
	case Connecting, Connected:
		c.mu.Unlock()
		return nil
	}
	c.state = Connecting

	clientOpts := mqtt.NewClientOptions().
		AddBroker(c.opts.Broker).
		SetClientID(c.opts.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(c.opts.ConnectTimeout).
		SetConnectionLostHandler(c.onConnectionLost)
	client := c.opts.NewClient(clientOpts)
	c.client = client
	c.mu.Unlock()

	c.log.WithField("broker", c.opts.Broker).Info("connecting")
	if err := waitToken(ctx, client.Connect()); err != nil {
		c.mu.Lock()
		c.state = Closed
		c.mu.Unlock()
		// a cancelled wait leaves paho dialing in the background
		client.Disconnect(0)
		c.log.WithError(err).Error("connect failed, channel closed")
		return fmt.Errorf("mqtt connect: %w", err)
	}

	c.mu.Lock()
	if c.state != Connecting {
		// lost or closed before the connect token resolved
		c.mu.Unlock()
		client.Disconnect(0)
		return ErrClosed
	}
	defer c.mu.Unlock()
	c.state = Connected
	c.log.Info("connected")
	return nil
}

// Subscribe registers handler for every topic in topics.
func (c *MQTTChannel) Subscribe(ctx context.Context, topics []string, qos byte, handler Handler) error {
	if qos > 2 {
		return ErrInvalidQoS
	}
	if len(topics) == 0 {
		return ErrNoTopics
	}
	client, err := c.usableClient()
	if err != nil {
		return err
	}

	filters := make(map[string]byte, len(topics))
	for _, t := range topics {
		filters[t] = qos
	}
	token := client.SubscribeMultiple(filters, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if err := waitToken(ctx, token); err != nil {
		return fmt.Errorf("mqtt subscribe: %w", err)
	}
	c.log.WithField("topics", topics).WithField("qos", qos).Info("subscribed")
	return nil
}

// Publish sends payload with QoS 0 and does not wait for the broker.
func (c *MQTTChannel) Publish(topic string, payload []byte) error {
	client, err := c.usableClient()
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, false, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			c.log.WithError(err).WithField("topic", topic).Warn("publish failed")
		}
	}()
	return nil
}

func (c *MQTTChannel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *MQTTChannel) IsConnected() bool {
	return c.State() == Connected
}

// Close disconnects and moves the channel to Closed.
func (c *MQTTChannel) Close() {
	c.mu.Lock()
	client := c.client
	wasConnected := c.state == Connected
	c.state = Closed
	c.mu.Unlock()

	if client != nil && wasConnected {
		client.Disconnect(250)
	}
}

func (c *MQTTChannel) usableClient() (mqtt.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Connected:
		return c.client, nil
	case Closed:
		return nil, ErrClosed
	}
	return nil, ErrNotConnected
}

func (c *MQTTChannel) onConnectionLost(_ mqtt.Client, err error) {
	c.mu.Lock()
	c.state = Closed
	c.mu.Unlock()
	c.log.WithError(err).Error("connection lost, channel closed")
}

func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
