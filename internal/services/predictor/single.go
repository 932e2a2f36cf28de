package predictor

import (
	"fmt"
	"math"
	"slices"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
)

var (
	_ domsvc.Predictor          = (*SinglePredictor)(nil)
	_ domsvc.MultiStepPredictor = (*SinglePredictor)(nil)
)

// SinglePredictor guards one trained model: it verifies the feature schema and
// turns any model failure or invalid output into ErrModelInference.
type SinglePredictor struct {
	model domsvc.Model
}

func NewSinglePredictor(m domsvc.Model) *SinglePredictor {
	return &SinglePredictor{model: m}
}

func (p *SinglePredictor) Model() domsvc.Model { return p.model }

func (p *SinglePredictor) Version() string {
	meta := p.model.Meta()
	return fmt.Sprintf("%s@%s", meta.Family, meta.Version)
}

func (p *SinglePredictor) PredictNext(fv models.FeatureVector) (domsvc.Prediction, error) {
	if err := CheckSchema(p.model.Meta(), fv); err != nil {
		return domsvc.Prediction{}, err
	}
	c, err := p.model.PredictNext(fv)
	if err != nil {
		return domsvc.Prediction{}, fmt.Errorf("%w: %s: %w", domsvc.ErrModelInference, p.model.Meta().Family, err)
	}
	if err := checkOutput(c); err != nil {
		return domsvc.Prediction{}, fmt.Errorf("%w: %s: %w", domsvc.ErrModelInference, p.model.Meta().Family, err)
	}
	return domsvc.Prediction{Close: c}, nil
}

func (p *SinglePredictor) PredictSteps(fv models.FeatureVector, n int) ([]domsvc.Prediction, error) {
	ms, ok := p.model.(domsvc.MultiStepModel)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domsvc.ErrDirectUnsupported, p.model.Meta().Family)
	}
	if err := CheckSchema(p.model.Meta(), fv); err != nil {
		return nil, err
	}
	closes, err := ms.PredictSteps(fv, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domsvc.ErrModelInference, p.model.Meta().Family, err)
	}
	if len(closes) != n {
		return nil, fmt.Errorf("%w: %s returned %d steps, want %d", domsvc.ErrModelInference, p.model.Meta().Family, len(closes), n)
	}
	out := make([]domsvc.Prediction, n)
	for i, c := range closes {
		if err := checkOutput(c); err != nil {
			return nil, fmt.Errorf("%w: %s step %d: %w", domsvc.ErrModelInference, p.model.Meta().Family, i+1, err)
		}
		out[i] = domsvc.Prediction{Close: c}
	}
	return out, nil
}

// Importances forwards the model's importances when it can explain itself.
func (p *SinglePredictor) Importances() map[string]float64 {
	if ex, ok := p.model.(domsvc.Explainer); ok {
		return ex.Importances()
	}
	return nil
}

// CheckSchema requires fv to carry exactly the model's ordered features and schema fingerprint.
func CheckSchema(meta models.ModelMeta, fv models.FeatureVector) error {
	if !slices.Equal(fv.Names(), meta.Features) {
		return fmt.Errorf("%w: %s model expects %d features, vector has %d", domsvc.ErrSchemaMismatch, meta.Family, len(meta.Features), fv.Len())
	}
	if meta.SchemaID != "" && fv.SchemaID != meta.SchemaID {
		return fmt.Errorf("%w: %s model trained on schema %s, vector uses %s", domsvc.ErrSchemaMismatch, meta.Family, meta.SchemaID, fv.SchemaID)
	}
	return nil
}

func checkOutput(c float64) error {
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return fmt.Errorf("non-finite prediction %v", c)
	}
	if c <= 0 {
		return fmt.Errorf("non-positive prediction %v", c)
	}
	return nil
}
