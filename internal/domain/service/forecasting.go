package service

import (
	"context"

	"FinCast/internal/domain/models"
)

// Model is a trained, immutable next-step price model.
type Model interface {
	Meta() models.ModelMeta
	// PredictNext returns the predicted close of the next bucket.
	PredictNext(fv models.FeatureVector) (float64, error)
}

// ContextBinder is implemented by models that do I/O while predicting. WithContext returns
// a copy whose calls are bounded by ctx; the shared instance is left untouched.
type ContextBinder interface {
	WithContext(ctx context.Context) Model
}

// MultiStepModel predicts several future closes from a single feature vector.
type MultiStepModel interface {
	Model
	PredictSteps(fv models.FeatureVector, n int) ([]float64, error)
}

// Explainer exposes per-feature importances for driver reporting.
type Explainer interface {
	Importances() map[string]float64
}

// Prediction is a predicted close with an optional ensemble spread.
type Prediction struct {
	Close       float64
	Variance    float64
	HasVariance bool
}

// Predictor produces next-step predictions from a feature vector.
type Predictor interface {
	PredictNext(fv models.FeatureVector) (Prediction, error)
}

// MultiStepPredictor produces a whole horizon in one call.
type MultiStepPredictor interface {
	PredictSteps(fv models.FeatureVector, n int) ([]Prediction, error)
}

// Versioned is implemented by predictors that can name the models behind them.
type Versioned interface {
	Version() string
}
