package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeasonality_StrongMonthlyPeak(t *testing.T) {
	// Jan and Mar at 10/day, Feb at 3x. 91 days total.
	series := constSeries(day(0), 31, 10, 10)                       // January
	series = append(series, constSeries(day(31), 29, 30, 10)...)    // February (3x)
	series = append(series, constSeries(day(60), 31, 10, 10)...)    // March

	res := Seasonality(series, DefaultSeasonalityWindowDays)
	require.Equal(t, StatusOK, res.Status)
	assert.True(t, res.Detected)
	assert.Equal(t, StrengthStrong, res.Strength)
	assert.Equal(t, time.February, res.PeakMonth)
	assert.Equal(t, PatternMonthly, res.PatternType)
	assert.Greater(t, res.MonthlyVariation, monthlyStrongThreshold)
}

func TestSeasonality_ModeratePeak(t *testing.T) {
	// Feb at 1.65x the other months: variation lands between the detect
	// and strong thresholds.
	series := constSeries(day(0), 31, 10, 10)
	series = append(series, constSeries(day(31), 29, 16.5, 10)...)
	series = append(series, constSeries(day(60), 31, 10, 10)...)

	res := Seasonality(series, DefaultSeasonalityWindowDays)
	require.Equal(t, StatusOK, res.Status)
	assert.True(t, res.Detected)
	assert.Equal(t, StrengthModerate, res.Strength)
	assert.Equal(t, time.February, res.PeakMonth)
}

func TestSeasonality_InsufficientData(t *testing.T) {
	res := Seasonality(constSeries(day(0), 30, 10, 10), DefaultSeasonalityWindowDays)

	assert.Equal(t, StatusInsufficientData, res.Status)
	assert.False(t, res.Detected)
}

func TestSeasonality_FlatSeriesNotDetected(t *testing.T) {
	res := Seasonality(constSeries(day(0), 91, 10, 10), DefaultSeasonalityWindowDays)

	require.Equal(t, StatusOK, res.Status)
	assert.False(t, res.Detected)
	assert.Equal(t, StrengthWeak, res.Strength)
	assert.InDelta(t, 0.0, res.MonthlyVariation, 1e-9)
}

func TestSeasonality_FullYearPeakQuarter(t *testing.T) {
	// Flat through September, then Oct 15, Nov 16, Dec 17 per day.
	series := constSeries(day(0), 274, 10, 10)                     // Jan 1 - Sep 30
	series = append(series, constSeries(day(274), 31, 15, 10)...)  // October
	series = append(series, constSeries(day(305), 30, 16, 10)...)  // November
	series = append(series, constSeries(day(335), 31, 17, 10)...)  // December

	res := Seasonality(series, DefaultSeasonalityWindowDays)
	require.Equal(t, StatusOK, res.Status)
	assert.True(t, res.Detected)
	assert.Equal(t, 4, res.PeakQuarter)
	assert.Equal(t, time.December, res.PeakMonth)
}
