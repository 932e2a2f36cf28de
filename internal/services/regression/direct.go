package regression

import (
	"fmt"
	"math"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
)

var (
	_ domsvc.MultiStepModel = (*DirectModel)(nil)
	_ domsvc.Explainer      = (*DirectModel)(nil)
)

// DirectParams holds one ridge head per horizon step; head h predicts close[t+h+1]/close[t] - 1.
type DirectParams struct {
	Heads []RidgeParams `json:"heads"`
}

// DirectModel predicts a whole horizon from one feature vector without feedback.
type DirectModel struct {
	meta   models.ModelMeta
	params DirectParams
}

func NewDirectModel(meta models.ModelMeta, params DirectParams) *DirectModel {
	meta.Family = models.FamilyDirectLinear
	meta.Horizon = len(params.Heads)
	return &DirectModel{meta: meta, params: params}
}

// FitDirect fits one head per column of Y.
func FitDirect(meta models.ModelMeta, X [][]float64, Y [][]float64, opts LinearOptions) (*DirectModel, error) {
	if len(Y) == 0 || len(Y[0]) == 0 {
		return nil, fmt.Errorf("fit direct: empty target matrix")
	}
	horizon := len(Y[0])
	heads := make([]RidgeParams, horizon)
	col := make([]float64, len(Y))
	for h := 0; h < horizon; h++ {
		for i, row := range Y {
			if len(row) != horizon {
				return nil, fmt.Errorf("fit direct: target row %d has %d steps, want %d", i, len(row), horizon)
			}
			col[i] = row[h]
		}
		p, err := fitRidge(X, col, opts.Lambda)
		if err != nil {
			return nil, fmt.Errorf("fit direct head %d: %w", h+1, err)
		}
		heads[h] = p
	}
	return NewDirectModel(meta, DirectParams{Heads: heads}), nil
}

func (m *DirectModel) Meta() models.ModelMeta { return m.meta }

func (m *DirectModel) Params() DirectParams { return m.params }

func (m *DirectModel) PredictNext(fv models.FeatureVector) (float64, error) {
	out, err := m.PredictSteps(fv, 1)
	if err != nil {
		return 0, err
	}
	return out[0], nil
}

func (m *DirectModel) PredictSteps(fv models.FeatureVector, n int) ([]float64, error) {
	if err := checkWidth(m.meta, fv); err != nil {
		return nil, err
	}
	if n < 1 || n > len(m.params.Heads) {
		return nil, fmt.Errorf("%w: %d steps requested, model horizon is %d", domsvc.ErrInvalidSteps, n, len(m.params.Heads))
	}
	x := fv.Values()
	out := make([]float64, n)
	for h := 0; h < n; h++ {
		c, err := closeFromReturn(fv, m.params.Heads[h].predict(x))
		if err != nil {
			return nil, fmt.Errorf("head %d: %w", h+1, err)
		}
		out[h] = c
	}
	return out, nil
}

func (m *DirectModel) Importances() map[string]float64 {
	if len(m.params.Heads) == 0 {
		return map[string]float64{}
	}
	raw := make([]float64, len(m.params.Heads[0].Coef))
	for _, head := range m.params.Heads {
		for j, c := range head.Coef {
			raw[j] += math.Abs(c)
		}
	}
	return normalize(m.meta.Features, raw)
}
