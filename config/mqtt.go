package config

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nandanugg/drone-relay/module/core/channel"
)

func NewMQTT(ctx context.Context, cfg *Config, log logrus.FieldLogger) (*channel.MQTTChannel, error) {
	ch := channel.New(channel.Options{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID,
		Logger:   log,
	})
	if err := ch.Connect(ctx); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return ch, nil
}
