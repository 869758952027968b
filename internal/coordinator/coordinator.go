// Package coordinator fuses typed agent signals into trade decisions
// and applies risk veto semantics.
package coordinator

import (
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradecrew/tradecrew/internal/metrics"
	"github.com/tradecrew/tradecrew/internal/models"
)

// Config holds weighted aggregation tunables
type Config struct {
	SignalTimeout       time.Duration // per-task agent response collection timeout
	MinConfidence       float64       // responses below this are dropped
	DefaultPositionSize float64       // cap applied to the risk-adjusted size
	MinAgentWeight      float64       // weight floor applied before normalization
}

// DefaultConfig returns the production aggregation settings
func DefaultConfig() Config {
	return Config{
		SignalTimeout:       30 * time.Second,
		MinConfidence:       0.60,
		DefaultPositionSize: 0.01,
		MinAgentWeight:      0.05,
	}
}

// Coordinator aggregates validated agent responses into trade decisions.
// The risk veto is absolute: a rejected assessment always yields an
// unapproved decision with zero size.
type Coordinator struct {
	mu      sync.RWMutex
	weights map[string]float64
	cfg     Config
	log     zerolog.Logger
}

// New creates a coordinator with the given per-agent weights
func New(weights map[string]float64, cfg Config, log zerolog.Logger) *Coordinator {
	c := &Coordinator{
		cfg: cfg,
		log: log.With().Str("component", "coordinator").Logger(),
	}
	c.weights = c.normalizeWeights(weights)
	return c
}

// Weights returns a copy of the active normalized agent weights
func (c *Coordinator) Weights() map[string]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]float64, len(c.weights))
	for agent, w := range c.weights {
		out[agent] = w
	}
	return out
}

// UpdateWeights replaces agent weights, preserving the minimum floor
func (c *Coordinator) UpdateWeights(weights map[string]float64) {
	normalized := c.normalizeWeights(weights)
	c.mu.Lock()
	c.weights = normalized
	c.mu.Unlock()
	c.log.Info().Interface("weights", normalized).Msg("Coordinator weights updated")
}

// Aggregate fuses responses into a trade decision for the task.
// Deterministic given inputs; never returns an error: degenerate input
// yields an abstain decision.
func (c *Coordinator) Aggregate(taskID, asset string, responses []models.AgentResponse, risk models.RiskAssessment, regime models.MarketRegime) models.TradeDecision {
	c.mu.RLock()
	weights := c.weights
	c.mu.RUnlock()

	votes := make(map[models.SignalDirection]float64)
	for _, resp := range responses {
		if resp.Status != models.StatusSuccess || resp.Confidence < c.cfg.MinConfidence {
			continue
		}
		weight, ok := weights[resp.AgentID]
		if !ok {
			weight = c.cfg.MinAgentWeight
		}
		votes[resp.Payload.Head().Direction] += resp.Confidence * weight
	}

	direction := models.DirectionAbstain
	confidence := 0.0
	if len(votes) > 0 {
		// Tie-break by declared direction order.
		first := true
		for _, d := range models.Directions {
			score, ok := votes[d]
			if !ok {
				continue
			}
			if first || score > confidence {
				direction = d
				confidence = score
				first = false
			}
		}
	}

	approved := risk.Approved && direction.Executable()
	decision := models.TradeDecision{
		TaskID:        taskID,
		Asset:         asset,
		Direction:     direction,
		Confidence:    clamp01(confidence),
		Approved:      approved,
		WeightedVotes: votes,
	}
	if approved {
		decision.PositionSize = min(c.cfg.DefaultPositionSize, risk.AdjustedSize)
	} else {
		decision.VetoReason = risk.Reason
	}

	metrics.DecisionsTotal.WithLabelValues(string(direction), strconv.FormatBool(approved)).Inc()
	c.log.Info().
		Str("task_id", taskID).
		Str("asset", asset).
		Str("market_regime", string(regime)).
		Str("direction", string(direction)).
		Bool("approved", approved).
		Float64("confidence", decision.Confidence).
		Str("veto_reason", decision.VetoReason).
		Msg("Trade decision")

	return decision
}

// normalizeWeights floors each weight at the minimum, then scales the set
// to sum to 1.0. Empty input stays empty.
func (c *Coordinator) normalizeWeights(raw map[string]float64) map[string]float64 {
	if len(raw) == 0 {
		return map[string]float64{}
	}

	floored := make(map[string]float64, len(raw))
	total := 0.0
	for agent, weight := range raw {
		if weight < c.cfg.MinAgentWeight {
			weight = c.cfg.MinAgentWeight
		}
		floored[agent] = weight
		total += weight
	}
	if total <= 0 {
		uniform := 1.0 / float64(len(floored))
		for agent := range floored {
			floored[agent] = uniform
		}
		return floored
	}
	for agent, weight := range floored {
		floored[agent] = weight / total
	}
	return floored
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
