package queue

import "github.com/prometheus/client_golang/prometheus"

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fincast_queue_jobs_total",
			Help: "Processed queue messages by job and outcome",
		},
		[]string{"job", "result"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fincast_queue_job_duration_seconds",
			Help:    "Queue job handling duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 900, 1800},
		},
		[]string{"job"},
	)
)

func init() { prometheus.MustRegister(jobsTotal, jobDuration) }
