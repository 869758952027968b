package regime

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecrew/tradecrew/internal/models"
)

func series(n int, next func(i int, prev float64) float64, volume func(i int) float64) []models.OHLCVCandle {
	candles := make([]models.OHLCVCandle, n)
	price := 100.0
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		price = next(i, price)
		candles[i] = models.OHLCVCandle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      price,
			High:      price * 1.001,
			Low:       price * 0.999,
			Close:     price,
			Volume:    volume(i),
		}
	}
	return candles
}

func steadyVolume(int) float64 { return 1000 }

func TestCurrentRegimeTrendingBull(t *testing.T) {
	candles := series(40, func(i int, prev float64) float64 { return prev * 1.005 }, steadyVolume)
	regime, err := NewHeuristicDetector(zerolog.Nop()).CurrentRegime(candles)
	require.NoError(t, err)
	assert.Equal(t, models.RegimeTrendingBull, regime)
}

func TestCurrentRegimeTrendingBear(t *testing.T) {
	candles := series(40, func(i int, prev float64) float64 { return prev * 0.995 }, steadyVolume)
	regime, err := NewHeuristicDetector(zerolog.Nop()).CurrentRegime(candles)
	require.NoError(t, err)
	assert.Equal(t, models.RegimeTrendingBear, regime)
}

func TestCurrentRegimeMeanReverting(t *testing.T) {
	candles := series(40, func(i int, prev float64) float64 {
		if i%2 == 0 {
			return prev * 1.0004
		}
		return prev * 0.9996
	}, steadyVolume)
	regime, err := NewHeuristicDetector(zerolog.Nop()).CurrentRegime(candles)
	require.NoError(t, err)
	assert.Equal(t, models.RegimeMeanReverting, regime)
}

func TestCurrentRegimeHighVolatility(t *testing.T) {
	candles := series(40, func(i int, prev float64) float64 {
		swing := 0.08
		if i%2 == 0 {
			return prev * (1 + swing)
		}
		return prev * (1 - swing)
	}, steadyVolume)
	regime, err := NewHeuristicDetector(zerolog.Nop()).CurrentRegime(candles)
	require.NoError(t, err)
	assert.Equal(t, models.RegimeHighVolatility, regime)
}

func TestCurrentRegimeVolumeSpike(t *testing.T) {
	candles := series(40, func(i int, prev float64) float64 {
		// Flat drift below the trend cutoff.
		return prev * math.Pow(1.0001, 1)
	}, func(i int) float64 {
		if i == 39 {
			return 10000
		}
		return 1000 + float64(i%3)
	})
	regime, err := NewHeuristicDetector(zerolog.Nop()).CurrentRegime(candles)
	require.NoError(t, err)
	assert.Equal(t, models.RegimeHighVolatility, regime)
}

func TestCurrentRegimeInsufficientHistory(t *testing.T) {
	candles := series(10, func(i int, prev float64) float64 { return prev }, steadyVolume)
	_, err := NewHeuristicDetector(zerolog.Nop()).CurrentRegime(candles)
	assert.Error(t, err)
}
