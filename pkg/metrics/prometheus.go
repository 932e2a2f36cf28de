package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	forecasts   *prometheus.CounterVec
	steps       *prometheus.HistogramVec
	confidence  *prometheus.GaugeVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	trainMAE    *prometheus.GaugeVec
	trainAcc    *prometheus.GaugeVec
}

// New creates a recorder registered on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder on a custom registerer.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		forecasts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_forecasts_total",
				Help: "Total number of forecasts generated",
			},
			[]string{"symbol", "timeframe", "mode"},
		),
		steps: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fincast_forecast_steps",
				Help:    "Number of steps requested per forecast",
				Buckets: []float64{1, 3, 5, 10, 20, 30},
			},
			[]string{"timeframe"},
		),
		confidence: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fincast_forecast_confidence",
				Help: "Mean step confidence of the last forecast",
			},
			[]string{"symbol", "timeframe"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fincast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fincast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		trainMAE: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fincast_model_holdout_mae",
				Help: "Holdout mean absolute error of the last trained model",
			},
			[]string{"timeframe", "family"},
		),
		trainAcc: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fincast_model_directional_accuracy",
				Help: "Holdout directional accuracy of the last trained model",
			},
			[]string{"timeframe", "family"},
		),
	}
}

// RecordForecast counts a generated forecast.
func (r *Recorder) RecordForecast(symbol, tf, mode string, steps int) {
	r.forecasts.WithLabelValues(symbol, tf, mode).Inc()
	r.steps.WithLabelValues(tf).Observe(float64(steps))
}

func (r *Recorder) RecordConfidence(symbol, tf string, avg float64) {
	r.confidence.WithLabelValues(symbol, tf).Set(avg)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordTraining(tf, family string, mae, accuracy float64) {
	r.trainMAE.WithLabelValues(tf, family).Set(mae)
	r.trainAcc.WithLabelValues(tf, family).Set(accuracy)
}
