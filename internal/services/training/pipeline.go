package training

import (
	"context"
	"fmt"
	"math"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/services/features"
	"FinCast/internal/services/regression"
)

// Config selects model families and their hyper-parameters.
type Config struct {
	Families  []models.ModelFamily
	Holdout   float64
	Horizon   int
	Linear    regression.LinearOptions
	Boosted   regression.BoostedOptions
	Forest    regression.ForestOptions
	Recurrent regression.RecurrentOptions
}

func DefaultConfig() Config {
	return Config{
		Families: []models.ModelFamily{models.FamilyLinear, models.FamilyGradientBoosted},
		Holdout:  0.2,
		Horizon:  5,
		Linear:   regression.LinearOptions{Lambda: 1},
		Boosted: regression.BoostedOptions{
			Rounds:       60,
			LearningRate: 0.1,
			Tree:         regression.TreeOptions{MaxDepth: 3, MinLeaf: 20},
			MaxSamples:   5000,
		},
		Forest: regression.ForestOptions{
			Trees:      30,
			Tree:       regression.TreeOptions{MaxDepth: 6, MinLeaf: 10},
			MaxSamples: 3000,
			Seed:       17,
		},
		Recurrent: regression.RecurrentOptions{
			Reservoir:      32,
			SpectralRadius: 0.9,
			Density:        0.2,
			InputScale:     10,
			Lambda:         1,
			Seed:           29,
		},
	}
}

// Run describes one training job.
type Run struct {
	Timeframe domrepo.Timeframe
	Series    map[string][]models.Candle
	Version   string
	TrainedAt time.Time
}

type Result struct {
	Models  []domsvc.Model
	Symbols []string
	Skipped []string
}

// Pipeline fits every configured family on a shared dataset and scores each on the holdout.
type Pipeline struct {
	builder *features.Builder
	cfg     Config
}

func NewPipeline(b *features.Builder, cfg Config) *Pipeline {
	if cfg.Recurrent.Lags == 0 {
		cfg.Recurrent.Lags = b.Config().Lags
	}
	return &Pipeline{builder: b, cfg: cfg}
}

func (p *Pipeline) Config() Config { return p.cfg }

// Execute runs the whole job. Cancellation is observed between symbols and between
// families; a cancelled job returns no models.
func (p *Pipeline) Execute(ctx context.Context, run Run) (*Result, error) {
	ds, err := BuildDataset(ctx, p.builder, run.Series, p.cfg.Holdout, p.cfg.Horizon)
	if err != nil {
		return nil, err
	}
	res := &Result{Symbols: ds.Symbols, Skipped: ds.Skipped}
	for _, fam := range p.cfg.Families {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("training %s aborted: %w", fam, err)
		}
		meta := models.ModelMeta{
			Family:    fam,
			Timeframe: string(run.Timeframe),
			Version:   run.Version,
			Features:  ds.Features,
			SchemaID:  ds.SchemaID,
			Lookback:  p.builder.Lookback(),
			TrainedAt: run.TrainedAt,
		}
		m, err := p.fit(fam, meta, ds)
		if err != nil {
			return nil, err
		}
		res.Models = append(res.Models, withMetrics(m, Evaluate(m, ds)))
	}
	return res, nil
}

func (p *Pipeline) fit(fam models.ModelFamily, meta models.ModelMeta, ds *Dataset) (domsvc.Model, error) {
	tr := ds.Train
	switch fam {
	case models.FamilyLinear:
		return regression.FitLinear(meta, tr.X, tr.Y, p.cfg.Linear)
	case models.FamilyGradientBoosted:
		return regression.FitBoosted(meta, tr.X, tr.Y, p.cfg.Boosted)
	case models.FamilyForest:
		return regression.FitForest(meta, tr.X, tr.Y, p.cfg.Forest)
	case models.FamilyRecurrent:
		return regression.FitRecurrent(meta, tr.X, tr.Y, p.cfg.Recurrent)
	case models.FamilyDirectLinear:
		return regression.FitDirect(meta, tr.XMulti, tr.YMulti, p.cfg.Linear)
	default:
		return nil, fmt.Errorf("training: family %q cannot be trained locally", fam)
	}
}

// Evaluate scores next-step returns on the holdout: mean absolute error and sign agreement.
func Evaluate(m domsvc.Model, ds *Dataset) models.ModelMetrics {
	out := models.ModelMetrics{TrainSamples: ds.Train.Len(), HoldoutSamples: ds.Holdout.Len()}
	if ds.Holdout.Len() == 0 {
		return out
	}
	var absErr float64
	var hits, n int
	closeAt := -1
	for j, name := range ds.Features {
		if name == features.NameClose {
			closeAt = j
		}
	}
	for i, row := range ds.Holdout.X {
		pred, err := m.PredictNext(models.NewFeatureVector(ds.SchemaID, ds.Features, row))
		if err != nil || closeAt < 0 || row[closeAt] <= 0 {
			continue
		}
		r := pred/row[closeAt] - 1
		y := ds.Holdout.Y[i]
		absErr += math.Abs(r - y)
		if sign(r) == sign(y) {
			hits++
		}
		n++
	}
	if n > 0 {
		out.MAE = absErr / float64(n)
		out.DirectionalAccuracy = float64(hits) / float64(n)
	}
	return out
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// withMetrics rebuilds m with metrics stamped into its meta.
func withMetrics(m domsvc.Model, metrics models.ModelMetrics) domsvc.Model {
	meta := m.Meta()
	meta.Metrics = metrics
	switch v := m.(type) {
	case *regression.LinearModel:
		return regression.NewLinearModel(meta, v.Params())
	case *regression.BoostedModel:
		return regression.NewBoostedModel(meta, v.Params())
	case *regression.ForestModel:
		return regression.NewForestModel(meta, v.Params())
	case *regression.RecurrentModel:
		if rm, err := regression.NewRecurrentModel(meta, v.Params()); err == nil {
			return rm
		}
	case *regression.DirectModel:
		return regression.NewDirectModel(meta, v.Params())
	}
	return m
}
