// Package broker publishes domain events to Kafka or RabbitMQ.
package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

const (
	DriverKafka    = "kafka"
	DriverRabbitMQ = "rabbitmq"
	DriverNone     = "none"
)

type Config struct {
	Driver   string
	Brokers  []string
	Topic    string
	URL      string
	Exchange string
}

// Publisher ships one JSON encoded event under a routing/partition key.
type Publisher interface {
	Publish(ctx context.Context, key string, event interface{}) error
	Close() error
}

func New(cfg Config) (Publisher, error) {
	switch cfg.Driver {
	case DriverKafka:
		return NewKafkaPublisher(cfg.Brokers, cfg.Topic)
	case DriverRabbitMQ:
		return NewRabbitPublisher(cfg.URL, cfg.Exchange)
	case DriverNone, "":
		return NewLogPublisher(), nil
	default:
		return nil, fmt.Errorf("unknown broker driver %q", cfg.Driver)
	}
}

// logPublisher используется, когда брокер не настроен
type logPublisher struct{}

func NewLogPublisher() Publisher {
	return logPublisher{}
}

func (logPublisher) Publish(ctx context.Context, key string, event interface{}) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"key":   key,
		"event": string(body),
	}).Debug("Event published (no broker configured)")
	return nil
}

func (logPublisher) Close() error {
	return nil
}
