package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/momentum"
)

// RSIResult represents the RSI calculation result
type RSIResult struct {
	Value  float64 `json:"value"`
	Signal string  `json:"signal"` // "oversold", "overbought", "neutral"
}

// RSI calculates the Relative Strength Index over a close series and
// returns the most recent value.
func RSI(closes []float64, period int) (RSIResult, error) {
	if period < 1 || period > len(closes) {
		return RSIResult{}, fmt.Errorf("invalid RSI period: %d (must be between 1 and %d)", period, len(closes))
	}

	closesChan := make(chan float64, len(closes))
	for _, c := range closes {
		closesChan <- c
	}
	close(closesChan)

	rsiIndicator := momentum.NewRsiWithPeriod[float64](period)
	rsiChan := rsiIndicator.Compute(closesChan)

	var values []float64
	for v := range rsiChan {
		values = append(values, v)
	}
	if len(values) == 0 {
		return RSIResult{}, fmt.Errorf("no RSI values calculated")
	}

	current := values[len(values)-1]
	signal := "neutral"
	if current < 30 {
		signal = "oversold"
	} else if current > 70 {
		signal = "overbought"
	}

	return RSIResult{Value: current, Signal: signal}, nil
}
