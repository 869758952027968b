package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/volatility"

	"github.com/tradecrew/tradecrew/internal/models"
)

// ATR calculates the Average True Range over a candle series and returns
// the most recent value.
func ATR(candles []models.OHLCVCandle, period int) (float64, error) {
	if period < 1 {
		return 0, fmt.Errorf("invalid ATR period: %d", period)
	}
	if len(candles) < period+1 {
		return 0, fmt.Errorf("insufficient data: need at least %d candles, got %d", period+1, len(candles))
	}

	highs := make(chan float64, len(candles))
	lows := make(chan float64, len(candles))
	closes := make(chan float64, len(candles))
	for _, c := range candles {
		highs <- c.High
		lows <- c.Low
		closes <- c.Close
	}
	close(highs)
	close(lows)
	close(closes)

	atrIndicator := volatility.NewAtrWithPeriod[float64](period)
	atrChan := atrIndicator.Compute(highs, lows, closes)

	var values []float64
	for v := range atrChan {
		values = append(values, v)
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("no ATR values calculated")
	}

	return values[len(values)-1], nil
}
