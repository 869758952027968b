// Package risk applies hard portfolio limits ahead of execution. Its veto
// is absolute: downstream components must not override a rejection.
package risk

import (
	"github.com/rs/zerolog"

	"github.com/tradecrew/tradecrew/internal/metrics"
	"github.com/tradecrew/tradecrew/internal/models"
)

// Limits holds the hard risk limits
type Limits struct {
	MaxDailyDrawdownPct       float64 // daily drawdown at which trading halts
	NoTradeEventWindowMinutes int     // window around major economic events
	MinHistoryDays            int     // minimum instrument history required
	MaxCorrelatedExposurePct  float64 // sector exposure cap
	MaxPositionPct            float64 // single position cap as portfolio fraction
}

// DefaultLimits returns the production limit set
func DefaultLimits() Limits {
	return Limits{
		MaxDailyDrawdownPct:       0.05,
		NoTradeEventWindowMinutes: 5,
		MinHistoryDays:            30,
		MaxCorrelatedExposurePct:  0.10,
		MaxPositionPct:            0.02,
	}
}

// Agent evaluates risk contexts against hard limits
type Agent struct {
	limits Limits
	log    zerolog.Logger
}

// NewAgent creates a risk agent with the given limits
func NewAgent(limits Limits, log zerolog.Logger) *Agent {
	return &Agent{
		limits: limits,
		log:    log.With().Str("component", "risk_agent").Logger(),
	}
}

// Assess applies the hard limits in fixed order. The first failing check
// short-circuits to a rejection with adjusted_size = 0.
func (a *Agent) Assess(ctx models.RiskContext) models.RiskAssessment {
	if ctx.CurrentDailyDrawdownPct >= a.limits.MaxDailyDrawdownPct {
		return a.reject("Daily drawdown breach: trading halted.", ctx)
	}
	window := ctx.MinutesToMajorEvent
	if window < 0 {
		window = -window
	}
	if window <= a.limits.NoTradeEventWindowMinutes {
		return a.reject("Within major economic event no-trade window.", ctx)
	}
	if ctx.InstrumentHistoryDays < a.limits.MinHistoryDays {
		return a.reject("Insufficient instrument history for risk modeling.", ctx)
	}
	if ctx.SectorExposurePct > a.limits.MaxCorrelatedExposurePct {
		return a.reject("Sector exposure exceeds correlation limit.", ctx)
	}

	if ctx.ProposedPositionValue > ctx.PortfolioValue*a.limits.MaxPositionPct {
		a.log.Info().
			Float64("proposed_value", ctx.ProposedPositionValue).
			Float64("portfolio_value", ctx.PortfolioValue).
			Float64("adjusted_size", a.limits.MaxPositionPct).
			Msg("Position size adjusted to limit")
		return models.RiskAssessment{
			Approved:     true,
			Reason:       "Position size adjusted to limit.",
			AdjustedSize: a.limits.MaxPositionPct,
		}
	}

	size := 0.0
	if ctx.PortfolioValue > 0 {
		size = ctx.ProposedPositionValue / ctx.PortfolioValue
	}
	return models.RiskAssessment{
		Approved:     true,
		Reason:       "Approved.",
		AdjustedSize: size,
	}
}

func (a *Agent) reject(reason string, ctx models.RiskContext) models.RiskAssessment {
	metrics.RiskVetoes.WithLabelValues(metrics.NormalizeVetoReason(reason)).Inc()
	a.log.Warn().
		Str("reason", reason).
		Float64("drawdown_pct", ctx.CurrentDailyDrawdownPct).
		Float64("sector_exposure_pct", ctx.SectorExposurePct).
		Int("minutes_to_event", ctx.MinutesToMajorEvent).
		Msg("Risk veto")
	return models.RiskAssessment{Approved: false, Reason: reason, AdjustedSize: 0}
}
