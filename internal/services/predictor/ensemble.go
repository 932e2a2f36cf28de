package predictor

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
)

var (
	_ domsvc.Predictor          = (*EnsemblePredictor)(nil)
	_ domsvc.MultiStepPredictor = (*EnsemblePredictor)(nil)
)

const weightTolerance = 1e-6

// Member is one weighted model in an ensemble.
type Member struct {
	Model  domsvc.Model
	Weight float64
}

// EnsemblePredictor combines members into a weighted mean and weighted population variance.
// Members are evaluated concurrently and reduced in declaration order.
type EnsemblePredictor struct {
	members []*SinglePredictor
	weights []float64
}

func NewEnsemblePredictor(members ...Member) (*EnsemblePredictor, error) {
	if len(members) == 0 {
		return nil, domsvc.ErrEmptyEnsemble
	}
	e := &EnsemblePredictor{
		members: make([]*SinglePredictor, len(members)),
		weights: make([]float64, len(members)),
	}
	sum := 0.0
	for i, m := range members {
		if m.Model == nil {
			return nil, fmt.Errorf("%w: member %d has no model", domsvc.ErrInvalidWeights, i)
		}
		if m.Weight < 0 || math.IsNaN(m.Weight) {
			return nil, fmt.Errorf("%w: member %d has weight %v", domsvc.ErrInvalidWeights, i, m.Weight)
		}
		e.members[i] = NewSinglePredictor(m.Model)
		e.weights[i] = m.Weight
		sum += m.Weight
	}
	if math.Abs(sum-1) > weightTolerance {
		return nil, fmt.Errorf("%w: weights sum to %v", domsvc.ErrInvalidWeights, sum)
	}
	return e, nil
}

func (e *EnsemblePredictor) Len() int { return len(e.members) }

func (e *EnsemblePredictor) Version() string {
	parts := make([]string, len(e.members))
	for i, m := range e.members {
		parts[i] = fmt.Sprintf("%s:%.2f", m.Version(), e.weights[i])
	}
	return strings.Join(parts, ",")
}

func (e *EnsemblePredictor) PredictNext(fv models.FeatureVector) (domsvc.Prediction, error) {
	preds := make([]float64, len(e.members))
	var g errgroup.Group
	for i, m := range e.members {
		g.Go(func() error {
			p, err := m.PredictNext(fv)
			if err != nil {
				return err
			}
			preds[i] = p.Close
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domsvc.Prediction{}, err
	}
	return e.combine(preds), nil
}

// PredictSteps requires every member to support direct prediction.
func (e *EnsemblePredictor) PredictSteps(fv models.FeatureVector, n int) ([]domsvc.Prediction, error) {
	perMember := make([][]domsvc.Prediction, len(e.members))
	var g errgroup.Group
	for i, m := range e.members {
		g.Go(func() error {
			p, err := m.PredictSteps(fv, n)
			if err != nil {
				return err
			}
			perMember[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make([]domsvc.Prediction, n)
	preds := make([]float64, len(e.members))
	for s := 0; s < n; s++ {
		for i := range e.members {
			preds[i] = perMember[i][s].Close
		}
		out[s] = e.combine(preds)
	}
	return out, nil
}

func (e *EnsemblePredictor) combine(preds []float64) domsvc.Prediction {
	mean := 0.0
	for i, p := range preds {
		mean += e.weights[i] * p
	}
	variance := 0.0
	for i, p := range preds {
		d := p - mean
		variance += e.weights[i] * d * d
	}
	return domsvc.Prediction{Close: mean, Variance: variance, HasVariance: true}
}

// Importances averages member importances by weight. Members without importances contribute nothing.
func (e *EnsemblePredictor) Importances() map[string]float64 {
	out := map[string]float64{}
	for i, m := range e.members {
		for name, v := range m.Importances() {
			out[name] += e.weights[i] * v
		}
	}
	return out
}

// TopDrivers returns the k most important feature names, ties broken by name.
func TopDrivers(importances map[string]float64, k int) []string {
	if k <= 0 || len(importances) == 0 {
		return []string{}
	}
	names := make([]string, 0, len(importances))
	for name, v := range importances {
		if v > 0 {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := importances[names[i]], importances[names[j]]
		if a != b {
			return a > b
		}
		return names[i] < names[j]
	})
	if len(names) > k {
		names = names[:k]
	}
	return names
}
