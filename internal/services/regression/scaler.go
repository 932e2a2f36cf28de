package regression

import (
	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes columns to zero mean and unit variance. Constant columns keep scale 1.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

func fitScaler(X [][]float64) Scaler {
	p := len(X[0])
	s := Scaler{Mean: make([]float64, p), Std: make([]float64, p)}
	col := make([]float64, len(X))
	for j := 0; j < p; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		m, sd := stat.PopMeanStdDev(col, nil)
		if sd == 0 {
			sd = 1
		}
		s.Mean[j], s.Std[j] = m, sd
	}
	return s
}

func (s Scaler) apply(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out
}
