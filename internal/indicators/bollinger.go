package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/volatility"
)

// BollingerResult represents the Bollinger Bands calculation result
type BollingerResult struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
	Width  float64 `json:"width"` // band width as a percentage of the middle band
}

// Bollinger calculates Bollinger Bands over a close series and returns
// the most recent band values.
func Bollinger(closes []float64, period int) (BollingerResult, error) {
	if period < 2 || period > len(closes) {
		return BollingerResult{}, fmt.Errorf("invalid Bollinger period: %d (must be between 2 and %d)", period, len(closes))
	}

	closesChan := make(chan float64, len(closes))
	for _, c := range closes {
		closesChan <- c
	}
	close(closesChan)

	bbIndicator := volatility.NewBollingerBandsWithPeriod[float64](period)
	lowerChan, middleChan, upperChan := bbIndicator.Compute(closesChan)

	var lowerValues, middleValues, upperValues []float64
	for {
		l, lok := <-lowerChan
		m, mok := <-middleChan
		u, uok := <-upperChan
		if !lok || !mok || !uok {
			break
		}
		lowerValues = append(lowerValues, l)
		middleValues = append(middleValues, m)
		upperValues = append(upperValues, u)
	}
	if len(middleValues) == 0 {
		return BollingerResult{}, fmt.Errorf("no Bollinger Bands values calculated")
	}

	upper := upperValues[len(upperValues)-1]
	middle := middleValues[len(middleValues)-1]
	lower := lowerValues[len(lowerValues)-1]

	return BollingerResult{
		Upper:  upper,
		Middle: middle,
		Lower:  lower,
		Width:  ((upper - lower) / middle) * 100,
	}, nil
}
