package training

import (
	"context"
	"fmt"
	"sort"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/services/features"
)

// Split is a design matrix. X/Y hold every row with a next-step target; XMulti/YMulti
// hold the subset whose full horizon of targets is known, so single-step families do not
// lose the most recent horizon-1 rows.
type Split struct {
	X      [][]float64
	Y      []float64
	XMulti [][]float64
	YMulti [][]float64
}

func (s *Split) Len() int { return len(s.X) }

func (s *Split) append(o Split) {
	s.X = append(s.X, o.X...)
	s.Y = append(s.Y, o.Y...)
	s.XMulti = append(s.XMulti, o.XMulti...)
	s.YMulti = append(s.YMulti, o.YMulti...)
}

// split cuts both row sets at next-step row cut. Multi rows are a prefix of the next-step
// rows, so the same index keeps them on the same side of the time boundary.
func (s Split) split(cut int) (Split, Split) {
	mcut := min(cut, len(s.XMulti))
	return Split{X: s.X[:cut], Y: s.Y[:cut], XMulti: s.XMulti[:mcut], YMulti: s.YMulti[:mcut]},
		Split{X: s.X[cut:], Y: s.Y[cut:], XMulti: s.XMulti[mcut:], YMulti: s.YMulti[mcut:]}
}

// Dataset is built per symbol and split chronologically, so holdout rows are always
// later than the training rows of the same symbol.
type Dataset struct {
	Features []string
	SchemaID string
	Train    Split
	Holdout  Split
	Symbols  []string
	Skipped  []string
}

// BuildDataset turns candle series into supervised rows. Row i uses candles up to i and targets
// close[i+1]/close[i]-1; rows with i+horizon in range also carry close[i+h]/close[i]-1 for
// h=1..horizon. Symbols are processed in sorted order.
func BuildDataset(ctx context.Context, b *features.Builder, series map[string][]models.Candle, holdout float64, horizon int) (*Dataset, error) {
	if holdout < 0 || holdout >= 1 {
		return nil, fmt.Errorf("dataset: holdout must be in [0,1), got %v", holdout)
	}
	if horizon < 1 {
		horizon = 1
	}
	symbols := make([]string, 0, len(series))
	for s := range series {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	ds := &Dataset{Features: b.Schema(), SchemaID: b.SchemaID()}
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := symbolRows(b, series[sym], horizon)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", sym, err)
		}
		if rows.Len() == 0 {
			ds.Skipped = append(ds.Skipped, sym)
			continue
		}
		cut := int(float64(rows.Len()) * (1 - holdout))
		if cut < 1 {
			cut = 1
		}
		train, hold := rows.split(cut)
		ds.Train.append(train)
		ds.Holdout.append(hold)
		ds.Symbols = append(ds.Symbols, sym)
	}
	if ds.Train.Len() == 0 {
		return nil, fmt.Errorf("%w: no symbol has more than %d candles", domsvc.ErrInsufficientHistory, b.Lookback()+1)
	}
	return ds, nil
}

func symbolRows(b *features.Builder, candles []models.Candle, horizon int) (Split, error) {
	var out Split
	for i := b.Lookback(); i+1 < len(candles); i++ {
		base := candles[i].Close
		if base <= 0 {
			continue
		}
		fv, err := b.Build(candles, i)
		if err != nil {
			return Split{}, err
		}
		row := fv.Values()
		out.X = append(out.X, row)
		out.Y = append(out.Y, candles[i+1].Close/base-1)
		if i+horizon >= len(candles) {
			continue
		}
		multi := make([]float64, horizon)
		for h := 1; h <= horizon; h++ {
			multi[h-1] = candles[i+h].Close/base - 1
		}
		out.XMulti = append(out.XMulti, row)
		out.YMulti = append(out.YMulti, multi)
	}
	return out, nil
}
