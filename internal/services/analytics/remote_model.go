package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
	svcmetrics "FinCast/internal/service/metrics"
	"FinCast/internal/services/features"
	"FinCast/internal/services/regression"
)

// RemoteModel delegates next-step prediction to an external model service.
// The service receives the named feature vector and answers with a simple return.
type RemoteModel struct {
	meta    models.ModelMeta
	params  regression.RemoteParams
	base    *HTTPServiceBase
	timeout time.Duration
	retries int
	ctx     context.Context
}

type predictReq struct {
	Model    string             `json:"model"`
	SchemaID string             `json:"schema_id"`
	Features map[string]float64 `json:"features"`
}

type predictResp struct {
	PredictedReturn float64 `json:"predicted_return"`
}

// NewRemoteFactory returns the codec hook that rebuilds remote models from artifacts.
func NewRemoteFactory(baseURL string, timeout time.Duration, retries int) regression.RemoteFactory {
	base := NewHTTPServiceBase(baseURL, timeout)
	return func(meta models.ModelMeta, params regression.RemoteParams) (domsvc.Model, error) {
		if params.Endpoint == "" {
			return nil, fmt.Errorf("remote model %q: endpoint is required", params.Name)
		}
		meta.Family = models.FamilyRemote
		return &RemoteModel{meta: meta, params: params, base: base, timeout: timeout, retries: retries}, nil
	}
}

func (m *RemoteModel) Meta() models.ModelMeta { return m.meta }

func (m *RemoteModel) RemoteParams() regression.RemoteParams { return m.params }

// WithContext binds the caller's request context so its deadline and cancellation reach
// the HTTP call.
func (m *RemoteModel) WithContext(ctx context.Context) domsvc.Model {
	cp := *m
	cp.ctx = ctx
	return &cp
}

// PredictNext calls the service under the bound context, capped by the model timeout.
func (m *RemoteModel) PredictNext(fv models.FeatureVector) (float64, error) {
	last, ok := fv.Get(features.NameClose)
	if !ok {
		return 0, fmt.Errorf("feature %q missing", features.NameClose)
	}

	parent := m.ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, m.timeout)
	defer cancel()

	start := time.Now()
	var resp predictResp
	err := m.base.PostJSONWithRetry(ctx, m.params.Endpoint, predictReq{
		Model:    m.params.Name,
		SchemaID: fv.SchemaID,
		Features: fv.Map(),
	}, &resp, m.retries)
	svcmetrics.RemoteLatency.WithLabelValues(m.params.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		svcmetrics.RemoteErrors.WithLabelValues(m.params.Name).Inc()
		return 0, fmt.Errorf("remote model %s: %w", m.params.Name, err)
	}
	r := resp.PredictedReturn
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, fmt.Errorf("remote model %s: non-finite return", m.params.Name)
	}
	return last * (1 + r), nil
}
