package indicators

import (
	"fmt"

	"github.com/tradecrew/tradecrew/internal/models"
)

// VWAP calculates the Volume Weighted Average Price over a candle series.
// Each candle contributes its typical price (H+L+C)/3 weighted by volume.
func VWAP(candles []models.OHLCVCandle) (float64, error) {
	if len(candles) == 0 {
		return 0, fmt.Errorf("insufficient data: need at least 1 candle")
	}

	var weightedSum, volumeSum float64
	for _, c := range candles {
		typical := (c.High + c.Low + c.Close) / 3
		weightedSum += typical * c.Volume
		volumeSum += c.Volume
	}
	if volumeSum == 0 {
		return 0, fmt.Errorf("total volume is zero")
	}

	return weightedSum / volumeSum, nil
}
