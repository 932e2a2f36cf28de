package kafka

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	producerMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fincast_kafka_producer_messages_total",
			Help: "Total messages published to Kafka",
		},
		[]string{"topic", "compression", "result"},
	)
	producerBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fincast_kafka_producer_bytes_total",
			Help: "Total payload bytes published",
		},
		[]string{"topic", "compression"},
	)
	producerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fincast_kafka_producer_publish_seconds",
			Help:    "Publish latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	consumerQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fincast_kafka_consumer_queue_depth",
			Help: "Messages read but not yet handled",
		},
		[]string{"topic"},
	)
	consumerHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fincast_kafka_consumer_messages_total",
			Help: "Consumed messages by outcome",
		},
		[]string{"topic", "result"},
	)
	consumerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fincast_kafka_consumer_handle_seconds",
			Help:    "Handling time per message, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
)

func init() {
	prometheus.MustRegister(producerMessages, producerBytes, producerLatency,
		consumerQueueDepth, consumerHandled, consumerLatency)
}

func observeProducer(topic, comp string, bytes int, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	producerMessages.WithLabelValues(topic, comp, result).Inc()
	producerBytes.WithLabelValues(topic, comp).Add(float64(bytes))
	producerLatency.WithLabelValues(topic).Observe(d.Seconds())
}
