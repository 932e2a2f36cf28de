package confidence

import (
	"fmt"
	"math"
)

const (
	StrategyTimeDecay        = "time_decay"
	StrategyEnsembleVariance = "ensemble_variance"
)

// Spread is the ensemble disagreement at one step.
type Spread struct {
	Mean     float64
	Variance float64
}

// Estimator maps a step position and optional ensemble spread to a confidence in [0,1].
type Estimator interface {
	ConfidenceForStep(step, total int, spread *Spread) float64
}

// TimeDecay decreases linearly from High at step 1 to Low at the last step.
type TimeDecay struct {
	High float64
	Low  float64
}

func NewTimeDecay(high, low float64) (TimeDecay, error) {
	if low < 0 || high > 1 || low > high {
		return TimeDecay{}, fmt.Errorf("confidence: need 0 <= low <= high <= 1, got low=%v high=%v", low, high)
	}
	return TimeDecay{High: high, Low: low}, nil
}

func (d TimeDecay) ConfidenceForStep(step, total int, _ *Spread) float64 {
	if total <= 1 {
		return d.High
	}
	step = max(1, min(step, total))
	frac := float64(step-1) / float64(total-1)
	return math.Max(d.Low, d.High-frac*(d.High-d.Low))
}

// EnsembleVariance discounts the time-decay curve by the relative ensemble variance.
// Without a spread it is the time-decay curve. Results always lie in [Epsilon, 1-Epsilon].
type EnsembleVariance struct {
	Decay       TimeDecay
	Sensitivity float64
	Epsilon     float64
}

func NewEnsembleVariance(decay TimeDecay, sensitivity, epsilon float64) (EnsembleVariance, error) {
	if sensitivity < 0 {
		return EnsembleVariance{}, fmt.Errorf("confidence: sensitivity must be >= 0, got %v", sensitivity)
	}
	if epsilon <= 0 || epsilon >= 0.5 {
		return EnsembleVariance{}, fmt.Errorf("confidence: epsilon must be in (0, 0.5), got %v", epsilon)
	}
	return EnsembleVariance{Decay: decay, Sensitivity: sensitivity, Epsilon: epsilon}, nil
}

func (e EnsembleVariance) ConfidenceForStep(step, total int, spread *Spread) float64 {
	c := e.Decay.ConfidenceForStep(step, total, nil)
	if spread != nil {
		rel := spread.Variance
		if spread.Mean != 0 {
			rel = spread.Variance / (spread.Mean * spread.Mean)
		}
		c /= 1 + e.Sensitivity*math.Max(0, rel)
	}
	return math.Max(e.Epsilon, math.Min(1-e.Epsilon, c))
}

// Config selects and parameterizes an estimator.
type Config struct {
	Strategy    string
	High        float64
	Low         float64
	Sensitivity float64
	Epsilon     float64
}

func DefaultConfig() Config {
	return Config{Strategy: StrategyTimeDecay, High: 0.85, Low: 0.60, Sensitivity: 1000, Epsilon: 1e-3}
}

func New(cfg Config) (Estimator, error) {
	decay, err := NewTimeDecay(cfg.High, cfg.Low)
	if err != nil {
		return nil, err
	}
	switch cfg.Strategy {
	case "", StrategyTimeDecay:
		return decay, nil
	case StrategyEnsembleVariance:
		return NewEnsembleVariance(decay, cfg.Sensitivity, cfg.Epsilon)
	default:
		return nil, fmt.Errorf("confidence: unknown strategy %q", cfg.Strategy)
	}
}
