package config

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// NewRabbitMQ dials the event relay broker. It returns nil when the relay is
// disabled.
func NewRabbitMQ(cfg *Config) (*amqp.Connection, error) {
	if !cfg.RelayEnabled {
		return nil, nil
	}
	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connect: %w", err)
	}
	return conn, nil
}
