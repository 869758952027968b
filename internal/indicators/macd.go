package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/trend"
)

// MACDResult represents the MACD calculation result
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// MACD calculates the Moving Average Convergence Divergence over a close
// series and returns the most recent line and signal values.
func MACD(closes []float64, fastPeriod, slowPeriod, signalPeriod int) (MACDResult, error) {
	minRequired := slowPeriod + signalPeriod
	if len(closes) < minRequired {
		return MACDResult{}, fmt.Errorf("insufficient data: need at least %d closes, got %d", minRequired, len(closes))
	}

	closesChan := make(chan float64, len(closes))
	for _, c := range closes {
		closesChan <- c
	}
	close(closesChan)

	macdIndicator := trend.NewMacdWithPeriod[float64](fastPeriod, slowPeriod, signalPeriod)
	macdChan, signalChan := macdIndicator.Compute(closesChan)

	var macdValues, signalValues []float64
	for {
		m, mok := <-macdChan
		s, sok := <-signalChan
		if !mok || !sok {
			break
		}
		macdValues = append(macdValues, m)
		signalValues = append(signalValues, s)
	}
	if len(macdValues) == 0 {
		return MACDResult{}, fmt.Errorf("no MACD values calculated")
	}

	currentMACD := macdValues[len(macdValues)-1]
	currentSignal := signalValues[len(signalValues)-1]
	return MACDResult{
		MACD:      currentMACD,
		Signal:    currentSignal,
		Histogram: currentMACD - currentSignal,
	}, nil
}
