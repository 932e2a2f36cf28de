package regression

import (
	"fmt"
	"math"
	"math/rand"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/services/features"
)

var _ domsvc.Model = (*RecurrentModel)(nil)

type RecurrentOptions struct {
	Reservoir      int
	SpectralRadius float64
	Density        float64
	InputScale     float64
	Lambda         float64
	Lags           int
	Seed           int64
}

// RecurrentParams is an echo-state network: a fixed random reservoir driven by the
// lagged return/volume sequence, with a trained ridge readout on the final state.
type RecurrentParams struct {
	Lags       int         `json:"lags"`
	InputScale float64     `json:"input_scale"`
	Win        [][]float64 `json:"w_in"`
	W          [][]float64 `json:"w"`
	Readout    RidgeParams `json:"readout"`
}

type RecurrentModel struct {
	meta   models.ModelMeta
	params RecurrentParams
	closes []int // feature positions oldest..newest
	vols   []int
}

func NewRecurrentModel(meta models.ModelMeta, params RecurrentParams) (*RecurrentModel, error) {
	meta.Family = models.FamilyRecurrent
	closes, vols, err := sequenceIndex(meta.Features, params.Lags)
	if err != nil {
		return nil, err
	}
	return &RecurrentModel{meta: meta, params: params, closes: closes, vols: vols}, nil
}

func sequenceIndex(names []string, lags int) ([]int, []int, error) {
	pos := make(map[string]int, len(names))
	for i, n := range names {
		pos[n] = i
	}
	closes := make([]int, 0, lags+1)
	vols := make([]int, 0, lags+1)
	for k := lags; k >= 0; k-- {
		cn, vn := features.NameClose, features.NameVolume
		if k > 0 {
			cn, vn = features.CloseLagName(k), features.VolumeLagName(k)
		}
		ci, ok := pos[cn]
		if !ok {
			return nil, nil, fmt.Errorf("recurrent model needs feature %q", cn)
		}
		vi, ok := pos[vn]
		if !ok {
			return nil, nil, fmt.Errorf("recurrent model needs feature %q", vn)
		}
		closes = append(closes, ci)
		vols = append(vols, vi)
	}
	return closes, vols, nil
}

func FitRecurrent(meta models.ModelMeta, X [][]float64, y []float64, opts RecurrentOptions) (*RecurrentModel, error) {
	if err := checkXY(X, y); err != nil {
		return nil, fmt.Errorf("fit recurrent: %w", err)
	}
	if opts.Reservoir < 1 || opts.Lags < 1 {
		return nil, fmt.Errorf("fit recurrent: reservoir and lags must be positive")
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	win := make([][]float64, opts.Reservoir)
	for i := range win {
		win[i] = []float64{rng.Float64()*2 - 1, rng.Float64()*2 - 1, rng.Float64()*2 - 1}
	}
	w := make([][]float64, opts.Reservoir)
	maxRow := 0.0
	for i := range w {
		w[i] = make([]float64, opts.Reservoir)
		rowSum := 0.0
		for j := range w[i] {
			if rng.Float64() < opts.Density {
				w[i][j] = rng.Float64()*2 - 1
				rowSum += math.Abs(w[i][j])
			}
		}
		maxRow = math.Max(maxRow, rowSum)
	}
	// The infinity norm bounds the spectral radius, so scaling by it keeps the reservoir contractive.
	if maxRow > 0 {
		for i := range w {
			for j := range w[i] {
				w[i][j] *= opts.SpectralRadius / maxRow
			}
		}
	}

	m, err := NewRecurrentModel(meta, RecurrentParams{Lags: opts.Lags, InputScale: opts.InputScale, Win: win, W: w})
	if err != nil {
		return nil, fmt.Errorf("fit recurrent: %w", err)
	}
	H := make([][]float64, len(X))
	for i, row := range X {
		H[i] = m.state(row)
	}
	readout, err := fitRidge(H, y, opts.Lambda)
	if err != nil {
		return nil, fmt.Errorf("fit recurrent readout: %w", err)
	}
	m.params.Readout = readout
	return m, nil
}

// state runs the reservoir over the log-return/relative-volume sequence encoded in x.
func (m *RecurrentModel) state(x []float64) []float64 {
	r := len(m.params.W)
	h := make([]float64, r)
	next := make([]float64, r)

	meanVol := 0.0
	for _, vi := range m.vols {
		meanVol += x[vi]
	}
	meanVol /= float64(len(m.vols))

	for t := 1; t < len(m.closes); t++ {
		prev, cur := x[m.closes[t-1]], x[m.closes[t]]
		ret := 0.0
		if prev > 0 && cur > 0 {
			ret = math.Log(cur / prev)
		}
		vol := 0.0
		if meanVol > 0 {
			vol = x[m.vols[t]]/meanVol - 1
		}
		u0, u1 := ret*m.params.InputScale, vol
		for i := 0; i < r; i++ {
			pre := m.params.Win[i][0]*u0 + m.params.Win[i][1]*u1 + m.params.Win[i][2]
			for j, wij := range m.params.W[i] {
				pre += wij * h[j]
			}
			next[i] = math.Tanh(pre)
		}
		h, next = next, h
	}
	return h
}

func (m *RecurrentModel) Meta() models.ModelMeta { return m.meta }

func (m *RecurrentModel) Params() RecurrentParams { return m.params }

func (m *RecurrentModel) PredictNext(fv models.FeatureVector) (float64, error) {
	if err := checkWidth(m.meta, fv); err != nil {
		return 0, err
	}
	return closeFromReturn(fv, m.params.Readout.predict(m.state(fv.Values())))
}
