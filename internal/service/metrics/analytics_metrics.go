package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	RemoteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fincast",
			Subsystem: "remote_model",
			Name:      "latency_seconds",
			Help:      "Latency of remote model inference calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	RemoteErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fincast",
			Subsystem: "remote_model",
			Name:      "errors_total",
			Help:      "Failed remote model inference calls",
		},
		[]string{"model"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(RemoteLatency, RemoteErrors)
	})
}
