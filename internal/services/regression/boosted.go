package regression

import (
	"fmt"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
)

var (
	_ domsvc.Model     = (*BoostedModel)(nil)
	_ domsvc.Explainer = (*BoostedModel)(nil)
)

type BoostedOptions struct {
	Rounds       int
	LearningRate float64
	Tree         TreeOptions
	MaxSamples   int
}

// BoostedParams is an additive model Base + LearningRate * sum(tree(x)).
type BoostedParams struct {
	Base         float64   `json:"base"`
	LearningRate float64   `json:"learning_rate"`
	Trees        []Tree    `json:"trees"`
	Gain         []float64 `json:"gain"`
}

// BoostedModel is gradient boosting of shallow regression trees on squared loss.
type BoostedModel struct {
	meta   models.ModelMeta
	params BoostedParams
}

func NewBoostedModel(meta models.ModelMeta, params BoostedParams) *BoostedModel {
	meta.Family = models.FamilyGradientBoosted
	return &BoostedModel{meta: meta, params: params}
}

func FitBoosted(meta models.ModelMeta, X [][]float64, y []float64, opts BoostedOptions) (*BoostedModel, error) {
	if err := checkXY(X, y); err != nil {
		return nil, fmt.Errorf("fit boosted: %w", err)
	}
	if opts.Rounds < 1 || opts.LearningRate <= 0 {
		return nil, fmt.Errorf("fit boosted: rounds and learning rate must be positive")
	}
	idx := sampleRows(len(X), opts.MaxSamples)
	base := 0.0
	for _, i := range idx {
		base += y[i]
	}
	base /= float64(len(idx))

	pred := make([]float64, len(X))
	for i := range pred {
		pred[i] = base
	}
	resid := make([]float64, len(X))
	gain := make([]float64, len(X[0]))
	trees := make([]Tree, 0, opts.Rounds)
	for r := 0; r < opts.Rounds; r++ {
		for _, i := range idx {
			resid[i] = y[i] - pred[i]
		}
		t := fitTree(X, resid, idx, opts.Tree, nil, gain)
		for _, i := range idx {
			pred[i] += opts.LearningRate * t.Predict(X[i])
		}
		trees = append(trees, t)
	}
	return NewBoostedModel(meta, BoostedParams{
		Base:         base,
		LearningRate: opts.LearningRate,
		Trees:        trees,
		Gain:         gain,
	}), nil
}

func (m *BoostedModel) Meta() models.ModelMeta { return m.meta }

func (m *BoostedModel) Params() BoostedParams { return m.params }

func (m *BoostedModel) PredictNext(fv models.FeatureVector) (float64, error) {
	if err := checkWidth(m.meta, fv); err != nil {
		return 0, err
	}
	x := fv.Values()
	r := m.params.Base
	for _, t := range m.params.Trees {
		r += m.params.LearningRate * t.Predict(x)
	}
	return closeFromReturn(fv, r)
}

func (m *BoostedModel) Importances() map[string]float64 {
	return normalize(m.meta.Features, m.params.Gain)
}
