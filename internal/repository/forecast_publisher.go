package repository

import (
	"context"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	pkgkafka "FinCast/pkg/kafka"
)

// KafkaForecastPublisher publishes forecast payloads keyed by symbol.
type KafkaForecastPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaForecastPublisher(producer *pkgkafka.Producer, topic string) domrepo.ForecastPublisher {
	return &KafkaForecastPublisher{producer: producer, topic: topic}
}

func (p *KafkaForecastPublisher) Publish(ctx context.Context, f models.ForecastPayload) error {
	return p.producer.Publish(ctx, p.topic, []byte(f.Symbol), f)
}

// Close is a no-op: the producer is shared and closed by its owner.
func (p *KafkaForecastPublisher) Close() error { return nil }

// NoopForecastPublisher drops forecasts; used when Kafka is disabled.
type NoopForecastPublisher struct{}

func (NoopForecastPublisher) Publish(context.Context, models.ForecastPayload) error { return nil }
func (NoopForecastPublisher) Close() error                                          { return nil }
