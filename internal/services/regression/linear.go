package regression

import (
	"fmt"
	"math"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
)

var (
	_ domsvc.Model     = (*LinearModel)(nil)
	_ domsvc.Explainer = (*LinearModel)(nil)
)

type LinearOptions struct {
	Lambda float64
}

// LinearModel is a ridge regression of the next-step return.
type LinearModel struct {
	meta   models.ModelMeta
	params RidgeParams
}

func NewLinearModel(meta models.ModelMeta, params RidgeParams) *LinearModel {
	meta.Family = models.FamilyLinear
	return &LinearModel{meta: meta, params: params}
}

func FitLinear(meta models.ModelMeta, X [][]float64, y []float64, opts LinearOptions) (*LinearModel, error) {
	params, err := fitRidge(X, y, opts.Lambda)
	if err != nil {
		return nil, fmt.Errorf("fit linear: %w", err)
	}
	return NewLinearModel(meta, params), nil
}

func (m *LinearModel) Meta() models.ModelMeta { return m.meta }

func (m *LinearModel) Params() RidgeParams { return m.params }

func (m *LinearModel) PredictNext(fv models.FeatureVector) (float64, error) {
	if err := checkWidth(m.meta, fv); err != nil {
		return 0, err
	}
	return closeFromReturn(fv, m.params.predict(fv.Values()))
}

// Importances are absolute standardized coefficients.
func (m *LinearModel) Importances() map[string]float64 {
	raw := make([]float64, len(m.params.Coef))
	for i, c := range m.params.Coef {
		raw[i] = math.Abs(c)
	}
	return normalize(m.meta.Features, raw)
}
