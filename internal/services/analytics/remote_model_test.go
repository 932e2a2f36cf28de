package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/services/features"
	"FinCast/internal/services/regression"
)

func remoteMeta() models.ModelMeta {
	return models.ModelMeta{Family: models.FamilyRemote, Timeframe: "1h", Version: "v1", Features: []string{features.NameClose, "rsi_14"}, SchemaID: "s1"}
}

func TestRemoteModel_PredictNext(t *testing.T) {
	var got predictReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast/predict", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(predictResp{PredictedReturn: 0.02})
	}))
	defer srv.Close()

	m, err := NewRemoteFactory(srv.URL, time.Second, 1)(remoteMeta(), regression.RemoteParams{Endpoint: "/forecast/predict", Name: "lstm"})
	require.NoError(t, err)

	fv := models.NewFeatureVector("s1", []string{features.NameClose, "rsi_14"}, []float64{100, 55})
	price, err := m.PredictNext(fv)
	require.NoError(t, err)
	assert.InDelta(t, 102, price, 1e-9)
	assert.Equal(t, "lstm", got.Model)
	assert.Equal(t, 55.0, got.Features["rsi_14"])
}

func TestRemoteModel_RetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m, err := NewRemoteFactory(srv.URL, time.Second, 3)(remoteMeta(), regression.RemoteParams{Endpoint: "/p", Name: "lstm"})
	require.NoError(t, err)

	_, err = m.PredictNext(models.NewFeatureVector("s1", []string{features.NameClose, "rsi_14"}, []float64{100, 55}))
	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRemoteModel_BoundContextCancelsCall(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	m, err := NewRemoteFactory(srv.URL, time.Minute, 1)(remoteMeta(), regression.RemoteParams{Endpoint: "/p", Name: "lstm"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	bound := m.(domsvc.ContextBinder).WithContext(ctx)

	start := time.Now()
	_, err = bound.PredictNext(models.NewFeatureVector("s1", []string{features.NameClose, "rsi_14"}, []float64{100, 55}))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Nil(t, m.(*RemoteModel).ctx, "shared instance stays unbound")
}

func TestRemoteModel_ArtifactRoundTrip(t *testing.T) {
	factory := NewRemoteFactory("http://models.local", time.Second, 1)
	m, err := factory(remoteMeta(), regression.RemoteParams{Endpoint: "/p", Name: "lstm"})
	require.NoError(t, err)

	b, err := regression.Encode(m)
	require.NoError(t, err)

	back, err := regression.Codec{Remote: factory}.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, regression.RemoteParams{Endpoint: "/p", Name: "lstm"}, back.(*RemoteModel).RemoteParams())

	_, err = regression.Codec{}.Decode(b)
	assert.Error(t, err)
}

func TestRemoteFactory_RequiresEndpoint(t *testing.T) {
	_, err := NewRemoteFactory("http://x", time.Second, 1)(remoteMeta(), regression.RemoteParams{Name: "lstm"})
	assert.Error(t, err)
}

func TestRemoteModel_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown model", http.StatusBadRequest)
	}))
	defer srv.Close()

	m, err := NewRemoteFactory(srv.URL, time.Second, 3)(remoteMeta(), regression.RemoteParams{Endpoint: "/p", Name: "lstm"})
	require.NoError(t, err)

	_, err = m.PredictNext(models.NewFeatureVector("s1", []string{features.NameClose, "rsi_14"}, []float64{100, 55}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown model")
	assert.Equal(t, int32(1), calls.Load())
}
