package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/services/features"
	"FinCast/internal/services/regression"
	applogger "FinCast/pkg/logger"
)

func trainedLinear(t *testing.T, tf string) *regression.LinearModel {
	t.Helper()
	return trainedLinearVersion(t, tf, "v1")
}

func trainedLinearVersion(t *testing.T, tf, version string) *regression.LinearModel {
	t.Helper()
	names := []string{features.NameClose, "a"}
	X := [][]float64{{100, 1}, {101, -1}, {102, 2}, {103, -2}, {104, 0.5}}
	y := []float64{0.01, -0.01, 0.02, -0.02, 0.005}
	m, err := regression.FitLinear(models.ModelMeta{Timeframe: tf, Version: version, Features: names, SchemaID: "s1"}, X, y, regression.LinearOptions{Lambda: 1e-3})
	require.NoError(t, err)
	return m
}

func TestFileModelStore_SaveLoadList(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileModelStore(dir, regression.Codec{})

	m := trainedLinear(t, "1h")
	require.NoError(t, store.Save(ctx, m))
	assert.FileExists(t, filepath.Join(dir, "1h", "linear.json"))

	loaded, err := store.Load(ctx, domrepo.TF1h, models.FamilyLinear)
	require.NoError(t, err)
	assert.Equal(t, m.Meta().SchemaID, loaded.Meta().SchemaID)

	fv := models.NewFeatureVector("s1", []string{features.NameClose, "a"}, []float64{100, 1})
	want, err := m.PredictNext(fv)
	require.NoError(t, err)
	got, err := loaded.PredictNext(fv)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-9)

	metas, err := store.List(ctx, domrepo.TF1h)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, models.FamilyLinear, metas[0].Family)

	entries, err := os.ReadDir(filepath.Join(dir, "1h"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileModelStore_SaveIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileModelStore(dir, regression.Codec{})
	require.NoError(t, store.Save(ctx, trainedLinearVersion(t, "1h", "v1"), trainedLinearVersion(t, "4h", "v1")))

	versionOf := func(tf domrepo.Timeframe) string {
		m, err := store.Load(ctx, tf, models.FamilyLinear)
		require.NoError(t, err)
		return m.Meta().Version
	}

	t.Run("staging failure writes nothing", func(t *testing.T) {
		err := store.Save(ctx, trainedLinearVersion(t, "1h", "v2"), trainedLinearVersion(t, "5m", "v2"))
		require.Error(t, err)
		assert.Equal(t, "v1", versionOf(domrepo.TF1h))

		entries, err := os.ReadDir(filepath.Join(dir, "1h"))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("commit failure restores replaced artifacts", func(t *testing.T) {
		// a directory squatting on the backup path makes the second rename fail
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "4h", ".linear.prev", "keep"), 0o755))

		err := store.Save(ctx, trainedLinearVersion(t, "1h", "v3"), trainedLinearVersion(t, "4h", "v3"))
		require.Error(t, err)
		assert.Equal(t, "v1", versionOf(domrepo.TF1h))
		assert.Equal(t, "v1", versionOf(domrepo.TF4h))
		assert.NoFileExists(t, filepath.Join(dir, "1h", ".linear.prev"))
	})
}

func TestFileModelStore_MonthlyDoesNotCollideWithOtherTimeframes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFileModelStore(dir, regression.Codec{})

	require.NoError(t, store.Save(ctx, trainedLinear(t, "1M")))
	assert.FileExists(t, filepath.Join(dir, "1mo", "linear.json"))

	metas, err := store.List(ctx, domrepo.TF1h)
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestFileModelStore_NotFound(t *testing.T) {
	store := NewFileModelStore(t.TempDir(), regression.Codec{})
	_, err := store.Load(context.Background(), domrepo.TF4h, models.FamilyForest)
	assert.ErrorIs(t, err, domsvc.ErrModelNotFound)
}

func TestFileModelStore_RejectsInvalidTimeframe(t *testing.T) {
	store := NewFileModelStore(t.TempDir(), regression.Codec{})
	assert.Error(t, store.Save(context.Background(), trainedLinear(t, "5m")))
}

type countingStore struct {
	domrepo.ModelStore
	loads int
}

func (c *countingStore) Load(ctx context.Context, tf domrepo.Timeframe, fam models.ModelFamily) (domsvc.Model, error) {
	c.loads++
	return c.ModelStore.Load(ctx, tf, fam)
}

func TestCachedModelStore_ServesFromMemory(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{ModelStore: NewFileModelStore(t.TempDir(), regression.Codec{})}
	require.NoError(t, inner.Save(ctx, trainedLinear(t, "1h")))

	cached := NewCachedModelStore(inner, 0, applogger.Nop())
	defer cached.Close()

	first, err := cached.Load(ctx, domrepo.TF1h, models.FamilyLinear)
	require.NoError(t, err)
	second, err := cached.Load(ctx, domrepo.TF1h, models.FamilyLinear)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, inner.loads)

	require.NoError(t, cached.Invalidate(ctx, domrepo.TF1h))
	_, err = cached.Load(ctx, domrepo.TF1h, models.FamilyLinear)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.loads)
}
