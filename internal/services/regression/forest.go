package regression

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
)

var (
	_ domsvc.Model     = (*ForestModel)(nil)
	_ domsvc.Explainer = (*ForestModel)(nil)
)

type ForestOptions struct {
	Trees      int
	Tree       TreeOptions
	MaxSamples int
	Seed       int64
}

type ForestParams struct {
	Trees []Tree    `json:"trees"`
	Gain  []float64 `json:"gain"`
}

// ForestModel averages regression trees grown on bootstrap samples with random feature subsets.
type ForestModel struct {
	meta   models.ModelMeta
	params ForestParams
}

func NewForestModel(meta models.ModelMeta, params ForestParams) *ForestModel {
	meta.Family = models.FamilyForest
	return &ForestModel{meta: meta, params: params}
}

func FitForest(meta models.ModelMeta, X [][]float64, y []float64, opts ForestOptions) (*ForestModel, error) {
	if err := checkXY(X, y); err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}
	if opts.Trees < 1 {
		return nil, fmt.Errorf("fit forest: trees must be positive")
	}
	if opts.Tree.MaxFeatures == 0 {
		opts.Tree.MaxFeatures = int(math.Max(1, math.Round(math.Sqrt(float64(len(X[0]))))))
	}
	size := len(X)
	if opts.MaxSamples > 0 && size > opts.MaxSamples {
		size = opts.MaxSamples
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	gain := make([]float64, len(X[0]))
	trees := make([]Tree, 0, opts.Trees)
	for t := 0; t < opts.Trees; t++ {
		idx := make([]int, size)
		for i := range idx {
			idx[i] = rng.Intn(len(X))
		}
		sort.Ints(idx)
		trees = append(trees, fitTree(X, y, idx, opts.Tree, rng, gain))
	}
	return NewForestModel(meta, ForestParams{Trees: trees, Gain: gain}), nil
}

func (m *ForestModel) Meta() models.ModelMeta { return m.meta }

func (m *ForestModel) Params() ForestParams { return m.params }

func (m *ForestModel) PredictNext(fv models.FeatureVector) (float64, error) {
	if err := checkWidth(m.meta, fv); err != nil {
		return 0, err
	}
	if len(m.params.Trees) == 0 {
		return 0, fmt.Errorf("forest has no trees")
	}
	x := fv.Values()
	sum := 0.0
	for _, t := range m.params.Trees {
		sum += t.Predict(x)
	}
	return closeFromReturn(fv, sum/float64(len(m.params.Trees)))
}

func (m *ForestModel) Importances() map[string]float64 {
	return normalize(m.meta.Features, m.params.Gain)
}
