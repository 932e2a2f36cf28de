package models

import "time"

// ModelFamily tags the concrete algorithm behind a trained model artifact.
type ModelFamily string

const (
	FamilyLinear          ModelFamily = "linear"
	FamilyGradientBoosted ModelFamily = "gbt"
	FamilyForest          ModelFamily = "forest"
	FamilyRecurrent       ModelFamily = "rnn"
	FamilyDirectLinear    ModelFamily = "direct_linear"
	FamilyRemote          ModelFamily = "remote"
)

// ModelMetrics are holdout statistics recorded at training time.
type ModelMetrics struct {
	MAE                 float64 `json:"mae"`
	DirectionalAccuracy float64 `json:"directional_accuracy"`
	TrainSamples        int     `json:"train_samples"`
	HoldoutSamples      int     `json:"holdout_samples"`
}

// ModelMeta describes a trained model. Features/SchemaID pin the exact input schema.
type ModelMeta struct {
	Family    ModelFamily  `json:"family"`
	Timeframe string       `json:"timeframe"`
	Version   string       `json:"version"`
	Features  []string     `json:"features"`
	SchemaID  string       `json:"schema_id"`
	Lookback  int          `json:"lookback"`
	Horizon   int          `json:"horizon,omitempty"`
	TrainedAt time.Time    `json:"trained_at"`
	Metrics   ModelMetrics `json:"metrics"`
}
