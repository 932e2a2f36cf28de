package features

import (
	"fmt"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
)

// State is an immutable rolling window of the most recent lookback+1 candles.
// Advance returns a new State; the receiver and the caller's history are never modified.
type State struct {
	candles []models.Candle
}

// NewState copies the trailing lookback+1 candles of history.
func NewState(history []models.Candle, lookback int) (State, error) {
	need := lookback + 1
	if len(history) < need {
		return State{}, fmt.Errorf("%w: have %d candles, need %d", domsvc.ErrInsufficientHistory, len(history), need)
	}
	window := make([]models.Candle, need)
	copy(window, history[len(history)-need:])
	return State{candles: window}, nil
}

// Advance appends c and drops the oldest candle.
func (s State) Advance(c models.Candle) State {
	next := make([]models.Candle, len(s.candles))
	copy(next, s.candles[1:])
	next[len(next)-1] = c
	return State{candles: next}
}

// Last returns the newest candle.
func (s State) Last() models.Candle { return s.candles[len(s.candles)-1] }

func (s State) Len() int { return len(s.candles) }

// Candles returns a copy of the window.
func (s State) Candles() []models.Candle {
	out := make([]models.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}
