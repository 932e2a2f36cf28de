package predictor

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
)

var schema = []string{"close", "rsi_14"}

type fixedModel struct {
	close float64
	steps []float64
	imp   map[string]float64
	err   error
}

func (m fixedModel) Meta() models.ModelMeta {
	return models.ModelMeta{Family: models.FamilyLinear, Version: "v1", Features: schema, SchemaID: "abc"}
}

func (m fixedModel) PredictNext(models.FeatureVector) (float64, error) { return m.close, m.err }

type fixedMultiModel struct{ fixedModel }

func (m fixedMultiModel) PredictSteps(_ models.FeatureVector, n int) ([]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.steps[:n], nil
}

type explainedModel struct{ fixedModel }

func (m explainedModel) Importances() map[string]float64 { return m.imp }

func vector() models.FeatureVector {
	return models.NewFeatureVector("abc", schema, []float64{100, 55})
}

func TestSinglePredictorSchemaMismatch(t *testing.T) {
	p := NewSinglePredictor(fixedModel{close: 101})

	reordered := models.NewFeatureVector("abc", []string{"rsi_14", "close"}, []float64{55, 100})
	_, err := p.PredictNext(reordered)
	assert.ErrorIs(t, err, domsvc.ErrSchemaMismatch)

	otherWindows := models.NewFeatureVector("zzz", schema, []float64{100, 55})
	_, err = p.PredictNext(otherWindows)
	assert.ErrorIs(t, err, domsvc.ErrSchemaMismatch)

	got, err := p.PredictNext(vector())
	require.NoError(t, err)
	assert.Equal(t, 101.0, got.Close)
	assert.False(t, got.HasVariance)
}

func TestSinglePredictorWrapsFailures(t *testing.T) {
	cause := errors.New("boom")
	_, err := NewSinglePredictor(fixedModel{err: cause}).PredictNext(vector())
	assert.ErrorIs(t, err, domsvc.ErrModelInference)
	assert.ErrorIs(t, err, cause)

	for _, bad := range []float64{math.NaN(), math.Inf(1), 0, -3} {
		_, err := NewSinglePredictor(fixedModel{close: bad}).PredictNext(vector())
		assert.ErrorIs(t, err, domsvc.ErrModelInference, "output %v", bad)
	}
}

func TestSinglePredictorSteps(t *testing.T) {
	_, err := NewSinglePredictor(fixedModel{close: 1}).PredictSteps(vector(), 2)
	assert.ErrorIs(t, err, domsvc.ErrDirectUnsupported)

	p := NewSinglePredictor(fixedMultiModel{fixedModel{steps: []float64{101, 102, 103}}})
	out, err := p.PredictSteps(vector(), 3)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, 103.0, out[2].Close)
}

func TestEnsembleValidation(t *testing.T) {
	_, err := NewEnsemblePredictor()
	assert.ErrorIs(t, err, domsvc.ErrEmptyEnsemble)

	_, err = NewEnsemblePredictor(Member{Model: fixedModel{}, Weight: 0.5}, Member{Model: fixedModel{}, Weight: 0.4})
	assert.ErrorIs(t, err, domsvc.ErrInvalidWeights)

	_, err = NewEnsemblePredictor(Member{Model: fixedModel{}, Weight: 1.5}, Member{Model: fixedModel{}, Weight: -0.5})
	assert.ErrorIs(t, err, domsvc.ErrInvalidWeights)
}

func TestEnsembleSingleMemberMatchesModel(t *testing.T) {
	e, err := NewEnsemblePredictor(Member{Model: fixedModel{close: 123.456}, Weight: 1})
	require.NoError(t, err)

	got, err := e.PredictNext(vector())
	require.NoError(t, err)
	assert.Equal(t, 123.456, got.Close)
	assert.Equal(t, 0.0, got.Variance)
	assert.True(t, got.HasVariance)
}

func TestEnsembleMeanAndVariance(t *testing.T) {
	third := 1.0 / 3
	e, err := NewEnsemblePredictor(
		Member{Model: fixedModel{close: 100}, Weight: third},
		Member{Model: fixedModel{close: 102}, Weight: third},
		Member{Model: fixedModel{close: 104}, Weight: third},
	)
	require.NoError(t, err)

	got, err := e.PredictNext(vector())
	require.NoError(t, err)
	assert.InDelta(t, 102, got.Close, 1e-9)
	assert.InDelta(t, 8.0/3, got.Variance, 1e-9)
}

func TestEnsembleMemberFailureAborts(t *testing.T) {
	e, err := NewEnsemblePredictor(
		Member{Model: fixedModel{close: 100}, Weight: 0.5},
		Member{Model: fixedModel{err: errors.New("down")}, Weight: 0.5},
	)
	require.NoError(t, err)
	_, err = e.PredictNext(vector())
	assert.ErrorIs(t, err, domsvc.ErrModelInference)
}

func TestEnsemblePredictSteps(t *testing.T) {
	e, err := NewEnsemblePredictor(
		Member{Model: fixedMultiModel{fixedModel{steps: []float64{100, 110}}}, Weight: 0.5},
		Member{Model: fixedMultiModel{fixedModel{steps: []float64{102, 114}}}, Weight: 0.5},
	)
	require.NoError(t, err)
	out, err := e.PredictSteps(vector(), 2)
	require.NoError(t, err)
	assert.InDelta(t, 101, out[0].Close, 1e-12)
	assert.InDelta(t, 1, out[0].Variance, 1e-12)
	assert.InDelta(t, 112, out[1].Close, 1e-12)
	assert.InDelta(t, 4, out[1].Variance, 1e-12)
}

func TestImportancesAndDrivers(t *testing.T) {
	e, err := NewEnsemblePredictor(
		Member{Model: explainedModel{fixedModel{close: 1, imp: map[string]float64{"close": 0.2, "rsi_14": 0.8}}}, Weight: 0.5},
		Member{Model: fixedModel{close: 1}, Weight: 0.5},
	)
	require.NoError(t, err)
	imp := e.Importances()
	assert.InDelta(t, 0.4, imp["rsi_14"], 1e-12)
	assert.Equal(t, []string{"rsi_14"}, TopDrivers(imp, 1))
	assert.Equal(t, []string{"a", "b"}, TopDrivers(map[string]float64{"b": 1, "a": 1, "c": 0}, 5))
	assert.Empty(t, TopDrivers(nil, 3))
}
