package cache

import "github.com/prometheus/client_golang/prometheus"

var cacheRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fincast_cache_requests_total",
		Help: "Cache lookups by layer and result",
	},
	[]string{"layer", "result"},
)

func init() { prometheus.MustRegister(cacheRequests) }
