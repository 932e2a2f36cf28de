package regression

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RidgeParams is a standardized linear map y = Intercept + Coef . scale(x).
type RidgeParams struct {
	Scaler    Scaler    `json:"scaler"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

func (r RidgeParams) predict(x []float64) float64 {
	return r.Intercept + floats.Dot(r.Coef, r.Scaler.apply(x))
}

// fitRidge solves (A'A + lambda I) b = A'(y - mean(y)) on standardized inputs.
func fitRidge(X [][]float64, y []float64, lambda float64) (RidgeParams, error) {
	if err := checkXY(X, y); err != nil {
		return RidgeParams{}, err
	}
	if lambda <= 0 {
		return RidgeParams{}, fmt.Errorf("ridge: lambda must be > 0, got %v", lambda)
	}
	n, p := len(X), len(X[0])
	scaler := fitScaler(X)
	data := make([]float64, 0, n*p)
	for _, row := range X {
		data = append(data, scaler.apply(row)...)
	}
	A := mat.NewDense(n, p, data)

	var ata mat.Dense
	ata.Mul(A.T(), A)
	for i := 0; i < p; i++ {
		ata.Set(i, i, ata.At(i, i)+lambda)
	}

	ymean := floats.Sum(y) / float64(n)
	yc := make([]float64, n)
	for i, v := range y {
		yc[i] = v - ymean
	}
	var aty mat.VecDense
	aty.MulVec(A.T(), mat.NewVecDense(n, yc))

	var beta mat.VecDense
	if err := beta.SolveVec(&ata, &aty); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return RidgeParams{}, fmt.Errorf("ridge solve: %w", err)
		}
	}
	coef := make([]float64, p)
	for i := range coef {
		coef[i] = beta.AtVec(i)
	}
	return RidgeParams{Scaler: scaler, Coef: coef, Intercept: ymean}, nil
}

func checkXY(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return fmt.Errorf("regression: empty design matrix")
	}
	if len(X) != len(y) {
		return fmt.Errorf("regression: %d rows but %d targets", len(X), len(y))
	}
	p := len(X[0])
	if p == 0 {
		return fmt.Errorf("regression: rows have no features")
	}
	for i, row := range X {
		if len(row) != p {
			return fmt.Errorf("regression: row %d has %d features, want %d", i, len(row), p)
		}
	}
	return nil
}
