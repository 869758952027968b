package agents

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradecrew/tradecrew/internal/indicators"
	"github.com/tradecrew/tradecrew/internal/models"
)

// TechnicalAgent generates technical signals from OHLCV series. It
// operates only on the candles it is given and performs no I/O.
type TechnicalAgent struct {
	adapterVersion string
	minLookback    int
	log            zerolog.Logger
}

// NewTechnicalAgent creates a technical agent
func NewTechnicalAgent(adapterVersion string, log zerolog.Logger) *TechnicalAgent {
	return &TechnicalAgent{
		adapterVersion: adapterVersion,
		minLookback:    50,
		log:            log.With().Str("component", TechnicalAgentID).Logger(),
	}
}

// Run builds a technical signal from the candle series. Insufficient
// lookback yields an abstain response rather than an error.
func (a *TechnicalAgent) Run(taskID, asset string, timeframe models.Timeframe, candles []models.OHLCVCandle, regime models.MarketRegime) models.AgentResponse {
	start := time.Now()

	if len(candles) < a.minLookback {
		return models.AgentResponse{
			AgentID:   TechnicalAgentID,
			Timestamp: time.Now().UTC(),
			TaskID:    taskID,
			Status:    models.StatusAbstain,
			Payload: models.TechnicalSignal{
				BaseSignal:     models.BaseSignal{Asset: asset, Direction: models.DirectionAbstain, Timeframe: timeframe},
				Strength:       0,
				IndicatorsUsed: []string{"lookback_validation"},
			},
			Confidence:     0,
			Reasoning:      "Insufficient lookback history for indicators.",
			DataSources:    []string{"market:ohlcv"},
			LatencyMS:      elapsedMS(start),
			AdapterVersion: a.adapterVersion,
			MarketRegime:   regime,
		}
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	rsi, err := indicators.RSI(closes, 14)
	if err != nil {
		return ErrorResponse(TechnicalAgentID, taskID, asset, fmt.Sprintf("RSI failed: %v", err), a.adapterVersion, regime, a.log)
	}
	macd, err := indicators.MACD(closes, 12, 26, 9)
	if err != nil {
		return ErrorResponse(TechnicalAgentID, taskID, asset, fmt.Sprintf("MACD failed: %v", err), a.adapterVersion, regime, a.log)
	}
	bands, err := indicators.Bollinger(closes, 20)
	if err != nil {
		return ErrorResponse(TechnicalAgentID, taskID, asset, fmt.Sprintf("Bollinger failed: %v", err), a.adapterVersion, regime, a.log)
	}
	// VWAP and ATR are computed for the decision log context; they do
	// not gate the direction rule.
	if _, err := indicators.VWAP(candles); err != nil {
		return ErrorResponse(TechnicalAgentID, taskID, asset, fmt.Sprintf("VWAP failed: %v", err), a.adapterVersion, regime, a.log)
	}
	if _, err := indicators.ATR(candles, 14); err != nil {
		return ErrorResponse(TechnicalAgentID, taskID, asset, fmt.Sprintf("ATR failed: %v", err), a.adapterVersion, regime, a.log)
	}

	currentClose := closes[len(closes)-1]
	direction := models.DirectionHold
	strength := 0.5
	switch {
	case rsi.Value <= 35 && macd.MACD > macd.Signal && currentClose <= bands.Lower:
		direction = models.DirectionBuy
		strength = 0.8
	case rsi.Value >= 65 && macd.MACD < macd.Signal && currentClose >= bands.Upper:
		direction = models.DirectionSell
		strength = 0.8
	}

	a.log.Info().
		Str("task_id", taskID).
		Str("direction", string(direction)).
		Float64("rsi", rsi.Value).
		Msg("Technical signal emitted")

	return models.AgentResponse{
		AgentID:   TechnicalAgentID,
		Timestamp: time.Now().UTC(),
		TaskID:    taskID,
		Status:    models.StatusSuccess,
		Payload: models.TechnicalSignal{
			BaseSignal:     models.BaseSignal{Asset: asset, Direction: direction, Timeframe: timeframe},
			Strength:       strength,
			IndicatorsUsed: []string{"rsi", "macd", "bollinger", "vwap", "atr"},
		},
		Confidence:     strength,
		Reasoning:      "Signal based on RSI, MACD, and Bollinger confirmation.",
		DataSources:    []string{"market:ohlcv"},
		LatencyMS:      elapsedMS(start),
		AdapterVersion: a.adapterVersion,
		MarketRegime:   regime,
	}
}

func elapsedMS(start time.Time) int64 {
	ms := time.Since(start).Milliseconds()
	if ms < 1 {
		return 1
	}
	return ms
}
