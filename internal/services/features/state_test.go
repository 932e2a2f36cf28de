package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domsvc "FinCast/internal/domain/service"
)

func TestNewStateRequiresLookbackPlusOne(t *testing.T) {
	_, err := NewState(rampCandles(50, 1), 50)
	assert.ErrorIs(t, err, domsvc.ErrInsufficientHistory)

	s, err := NewState(rampCandles(200, 1), 50)
	require.NoError(t, err)
	assert.Equal(t, 51, s.Len())
	assert.Equal(t, 200.0, s.Last().Close)
}

func TestAdvanceDoesNotMutate(t *testing.T) {
	history := rampCandles(60, 1)
	s, err := NewState(history, 50)
	require.NoError(t, err)

	next := history[len(history)-1]
	next.Close = 999
	advanced := s.Advance(next)

	assert.Equal(t, 60.0, s.Last().Close)
	assert.Equal(t, 999.0, advanced.Last().Close)
	assert.Equal(t, s.Len(), advanced.Len())
	assert.Equal(t, s.Candles()[1], advanced.Candles()[0])
	assert.Equal(t, 60.0, history[len(history)-1].Close)
}

func TestFromStateMatchesBuild(t *testing.T) {
	b := newDefaultBuilder(t)
	history := waveCandles(120)
	s, err := NewState(history, b.Lookback())
	require.NoError(t, err)

	fromState, err := b.FromState(s)
	require.NoError(t, err)
	direct, err := b.Build(history, len(history)-1)
	require.NoError(t, err)
	assert.Equal(t, direct.Values(), fromState.Values())
}
