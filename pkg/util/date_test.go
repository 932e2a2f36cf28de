package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	require.True(t, ok)
	assert.Equal(t, s, got.UTC().Format(time.RFC3339))
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	require.True(t, ok)
	assert.Equal(t, ts, got.Unix())
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	assert.True(t, ParseTimeDefault("", def).Equal(def))
	assert.True(t, ParseTimeDefault("not-a-time", def).Equal(def))
}

func TestAlignBucket(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 42, 7, 0, time.UTC) // Thursday

	cases := map[string]time.Time{
		"1h": time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC),
		"4h": time.Date(2024, 10, 10, 8, 0, 0, 0, time.UTC),
		"1d": time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC),
		"1w": time.Date(2024, 10, 7, 0, 0, 0, 0, time.UTC),
		"1M": time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC),
	}
	for tf, want := range cases {
		t.Run(tf, func(t *testing.T) {
			assert.Equal(t, want, AlignBucket(ts, tf))
		})
	}
}

func TestAlignBucket_SundayBelongsToPreviousWeek(t *testing.T) {
	sunday := time.Date(2024, 10, 13, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 10, 7, 0, 0, 0, 0, time.UTC), AlignBucket(sunday, "1w"))
}
