package regression

import (
	"fmt"
	"math"

	"FinCast/internal/domain/models"
	"FinCast/internal/services/features"
)

// closeFromReturn converts a predicted simple return into a price using the vector's close.
func closeFromReturn(fv models.FeatureVector, r float64) (float64, error) {
	c, ok := fv.Get(features.NameClose)
	if !ok {
		return 0, fmt.Errorf("feature %q missing", features.NameClose)
	}
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, fmt.Errorf("non-finite return %v", r)
	}
	return c * (1 + r), nil
}

func checkWidth(meta models.ModelMeta, fv models.FeatureVector) error {
	if fv.Len() != len(meta.Features) {
		return fmt.Errorf("%s model expects %d features, got %d", meta.Family, len(meta.Features), fv.Len())
	}
	return nil
}

// normalize scales non-negative importances to sum to 1 and keys them by feature name.
func normalize(names []string, raw []float64) map[string]float64 {
	total := 0.0
	for _, v := range raw {
		total += math.Abs(v)
	}
	out := make(map[string]float64, len(names))
	for j, name := range names {
		if j >= len(raw) {
			break
		}
		if total > 0 {
			out[name] = math.Abs(raw[j]) / total
		} else {
			out[name] = 0
		}
	}
	return out
}
