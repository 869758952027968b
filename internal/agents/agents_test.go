package agents

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecrew/tradecrew/internal/models"
)

func candlesFromCloses(closes []float64) []models.OHLCVCandle {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]models.OHLCVCandle, len(closes))
	for i, c := range closes {
		candles[i] = models.OHLCVCandle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    1000,
		}
	}
	return candles
}

func TestTechnicalAgentAbstainsOnShortHistory(t *testing.T) {
	agent := NewTechnicalAgent("v1", zerolog.Nop())
	resp := agent.Run("task-1", "SPY", models.Timeframe1h, candlesFromCloses(make([]float64, 0)), models.RegimeMeanReverting)

	require.Equal(t, models.StatusAbstain, resp.Status)
	assert.Equal(t, models.DirectionAbstain, resp.Payload.Head().Direction)
	assert.Equal(t, 0.0, resp.Confidence)
	assert.Contains(t, resp.Reasoning, "lookback")
	require.NoError(t, resp.Validate())
}

func TestTechnicalAgentEmitsSignal(t *testing.T) {
	closes := make([]float64, 80)
	price := 100.0
	for i := range closes {
		price *= 1.002
		closes[i] = price
	}
	agent := NewTechnicalAgent("v1", zerolog.Nop())
	resp := agent.Run("task-2", "SPY", models.Timeframe1h, candlesFromCloses(closes), models.RegimeTrendingBull)

	require.Equal(t, models.StatusSuccess, resp.Status)
	require.NoError(t, resp.Validate())
	signal, ok := resp.Payload.(models.TechnicalSignal)
	require.True(t, ok)
	assert.Equal(t, "SPY", signal.Asset)
	assert.Equal(t, models.Timeframe1h, signal.Timeframe)
	assert.Contains(t, signal.IndicatorsUsed, "rsi")
	assert.Equal(t, resp.Confidence, signal.Strength)
	assert.Equal(t, TechnicalAgentID, resp.AgentID)
	assert.GreaterOrEqual(t, resp.LatencyMS, int64(1))
}

func TestResearchAgentAbstainsWithoutBundle(t *testing.T) {
	agent := NewResearchAgent("v1", zerolog.Nop())
	resp := agent.Run("task-3", nil, models.RegimeMeanReverting)

	require.Equal(t, models.StatusAbstain, resp.Status)
	assert.Equal(t, 0.0, resp.Confidence)
	require.NoError(t, resp.Validate())
}

func TestResearchAgentAggregatesSentiment(t *testing.T) {
	agent := NewResearchAgent("v1", zerolog.Nop())
	bundle := &ResearchBundle{
		Asset:     "QQQ",
		Timeframe: models.Timeframe1d,
		Scores: []SourceScore{
			{Source: "news:reuters", Score: 0.6},
			{Source: "filings:10q", Score: 0.4},
		},
	}
	resp := agent.Run("task-4", bundle, models.RegimeTrendingBull)

	require.Equal(t, models.StatusSuccess, resp.Status)
	require.NoError(t, resp.Validate())
	signal, ok := resp.Payload.(models.SentimentSignal)
	require.True(t, ok)
	assert.InDelta(t, 0.5, signal.Score, 1e-9)
	assert.Equal(t, models.DirectionBuy, signal.Direction)
	assert.ElementsMatch(t, []string{"news:reuters", "filings:10q"}, signal.Sources)
}

func TestResearchAgentClampsOutOfRangeScores(t *testing.T) {
	agent := NewResearchAgent("v1", zerolog.Nop())
	bundle := &ResearchBundle{
		Asset:     "QQQ",
		Timeframe: models.Timeframe1d,
		Scores:    []SourceScore{{Source: "news:wire", Score: -7.5}},
	}
	resp := agent.Run("task-5", bundle, models.RegimeTrendingBear)

	require.NoError(t, resp.Validate())
	signal := resp.Payload.(models.SentimentSignal)
	assert.Equal(t, -1.0, signal.Score)
	assert.Equal(t, models.DirectionSell, signal.Direction)
	assert.Equal(t, 1.0, resp.Confidence)
}

func TestClampSentiment(t *testing.T) {
	assert.Equal(t, 1.0, ClampSentiment(3.2))
	assert.Equal(t, -1.0, ClampSentiment(-3.2))
	assert.Equal(t, 0.25, ClampSentiment(0.25))
}

func TestErrorResponseEnvelope(t *testing.T) {
	resp := ErrorResponse(TechnicalAgentID, "task-6", "SPY", "indicator pipeline failed", "v1", models.RegimeHighVolatility, zerolog.Nop())
	require.Equal(t, models.StatusError, resp.Status)
	assert.Equal(t, models.DirectionAbstain, resp.Payload.Head().Direction)
	require.NoError(t, resp.Validate())
}
