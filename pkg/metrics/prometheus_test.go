package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordForecast("BTCUSDT", "1h", "iterative", 5)
	r.RecordForecast("BTCUSDT", "1h", "iterative", 3)
	r.RecordConfidence("BTCUSDT", "1h", 0.72)
	r.RecordError("inference")
	r.RecordTraining("1h", "linear", 0.01, 0.55)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.forecasts.WithLabelValues("BTCUSDT", "1h", "iterative")))
	assert.Equal(t, 0.72, testutil.ToFloat64(r.confidence.WithLabelValues("BTCUSDT", "1h")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("inference")))
	assert.Equal(t, 0.01, testutil.ToFloat64(r.trainMAE.WithLabelValues("1h", "linear")))
	assert.Equal(t, 0.55, testutil.ToFloat64(r.trainAcc.WithLabelValues("1h", "linear")))
}
