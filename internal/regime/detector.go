// Package regime classifies prevailing market behavior from rolling
// OHLCV features. The classifier sits behind a small interface so the
// heuristic can be swapped for a fitted model without touching callers.
package regime

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/tradecrew/tradecrew/internal/models"
)

// Detector infers the current market regime from a candle series
type Detector interface {
	CurrentRegime(candles []models.OHLCVCandle) (models.MarketRegime, error)
}

// HeuristicDetector classifies regimes from rolling log returns,
// realized volatility, and volume anomaly.
type HeuristicDetector struct {
	window        int     // rolling feature window
	trendCutoff   float64 // mean log-return magnitude separating trend from chop
	volCutoff     float64 // realized volatility marking the high-volatility regime
	volumeZCutoff float64 // volume z-score reinforcing the volatility call
	log           zerolog.Logger
}

// NewHeuristicDetector creates a detector with production thresholds
func NewHeuristicDetector(log zerolog.Logger) *HeuristicDetector {
	return &HeuristicDetector{
		window:        20,
		trendCutoff:   0.001,
		volCutoff:     0.03,
		volumeZCutoff: 2.0,
		log:           log.With().Str("component", "regime_detector").Logger(),
	}
}

// CurrentRegime classifies the latest window of candles
func (d *HeuristicDetector) CurrentRegime(candles []models.OHLCVCandle) (models.MarketRegime, error) {
	if len(candles) < d.window+1 {
		return "", fmt.Errorf("insufficient history: need at least %d candles, got %d", d.window+1, len(candles))
	}

	recent := candles[len(candles)-d.window-1:]
	returns := make([]float64, 0, d.window)
	for i := 1; i < len(recent); i++ {
		if recent[i-1].Close <= 0 || recent[i].Close <= 0 {
			return "", fmt.Errorf("non-positive close in window")
		}
		returns = append(returns, math.Log(recent[i].Close/recent[i-1].Close))
	}

	meanReturn := mean(returns)
	realizedVol := stddev(returns, meanReturn)
	volumeZ := latestVolumeZ(recent)

	var regime models.MarketRegime
	switch {
	case realizedVol >= d.volCutoff || volumeZ >= d.volumeZCutoff:
		regime = models.RegimeHighVolatility
	case meanReturn >= d.trendCutoff:
		regime = models.RegimeTrendingBull
	case meanReturn <= -d.trendCutoff:
		regime = models.RegimeTrendingBear
	default:
		regime = models.RegimeMeanReverting
	}

	d.log.Debug().
		Float64("mean_return", meanReturn).
		Float64("realized_vol", realizedVol).
		Float64("volume_z", volumeZ).
		Str("regime", string(regime)).
		Msg("Regime classified")

	return regime, nil
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

func latestVolumeZ(candles []models.OHLCVCandle) float64 {
	volumes := make([]float64, len(candles)-1)
	for i := 0; i < len(candles)-1; i++ {
		volumes[i] = candles[i].Volume
	}
	m := mean(volumes)
	sd := stddev(volumes, m)
	if sd == 0 {
		return 0
	}
	return (candles[len(candles)-1].Volume - m) / sd
}
