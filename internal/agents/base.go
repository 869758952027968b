// Package agents contains the signal-producing agents of the trading
// crew and the shared response helpers they use at error boundaries.
package agents

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/tradecrew/tradecrew/internal/models"
)

// Stable agent identifiers used in weights, decision logs, and datasets.
const (
	TechnicalAgentID = "technical_agent"
	ResearchAgentID  = "research_agent"
	ExecutionAgentID = "execution_agent"
)

// ErrorResponse builds the standardized error envelope emitted when an
// agent boundary fails. Errors surface as typed responses, never panics.
func ErrorResponse(agentID, taskID, asset, reasoning, adapterVersion string, regime models.MarketRegime, log zerolog.Logger) models.AgentResponse {
	log.Error().
		Str("agent_id", agentID).
		Str("task_id", taskID).
		Str("reasoning", reasoning).
		Msg("Agent error")

	return models.AgentResponse{
		AgentID:        agentID,
		Timestamp:      time.Now().UTC(),
		TaskID:         taskID,
		Status:         models.StatusError,
		Payload:        models.BaseSignal{Asset: asset, Direction: models.DirectionAbstain, Timeframe: models.Timeframe1h},
		Confidence:     0,
		Reasoning:      reasoning,
		DataSources:    []string{},
		LatencyMS:      0,
		AdapterVersion: adapterVersion,
		MarketRegime:   regime,
	}
}

// ClampSentiment clamps a sentiment score to [-1.0, 1.0]
func ClampSentiment(score float64) float64 {
	if score < -1 {
		return -1
	}
	if score > 1 {
		return 1
	}
	return score
}
