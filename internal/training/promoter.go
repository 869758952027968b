package training

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradecrew/tradecrew/internal/metrics"
	"github.com/tradecrew/tradecrew/internal/models"
)

const (
	// ShadowDuration is the mandatory candidate shadow window.
	ShadowDuration = 48 * time.Hour

	// MinShadowAgreement is the agreement floor below which promotion
	// requires human review.
	MinShadowAgreement = 0.85

	// ChampionRetentionDays is how long a replaced champion adapter
	// stays available for rollback.
	ChampionRetentionDays = 90
)

// ShadowDeploymentResult is the outcome of a completed shadow window
type ShadowDeploymentResult struct {
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
	AgreementRate float64   `json:"agreement_rate"`
	TotalSamples  int       `json:"total_samples"`
}

// PromotionResult is the resolved promotion decision after the shadow phase
type PromotionResult struct {
	Promoted              bool   `json:"promoted"`
	Reason                string `json:"reason"`
	RetainPreviousForDays int    `json:"retain_previous_for_days"`
	ResetFailureStreak    bool   `json:"reset_failure_streak"`
}

// Promoter applies the shadow deployment gate after the evaluation gate
type Promoter struct {
	now func() time.Time
	log zerolog.Logger
}

// NewPromoter creates a promoter
func NewPromoter(log zerolog.Logger) *Promoter {
	return &Promoter{
		now: time.Now,
		log: log.With().Str("component", "promoter").Logger(),
	}
}

// BeginShadowWindow returns the shadow deployment start and end times
func (p *Promoter) BeginShadowWindow() (time.Time, time.Time) {
	start := p.now().UTC()
	return start, start.Add(ShadowDuration)
}

// Resolve applies the final promotion gate. The evaluation verdict is
// absolute; a passing candidate still needs the shadow agreement floor.
// The previous champion is retained for rollback in every path.
func (p *Promoter) Resolve(agentID string, evaluation models.PromotionDecision, shadow ShadowDeploymentResult) PromotionResult {
	metrics.ShadowAgreement.WithLabelValues(agentID).Set(shadow.AgreementRate)

	result := PromotionResult{
		Promoted:              true,
		Reason:                "Candidate promoted to champion after successful shadow deployment.",
		RetainPreviousForDays: ChampionRetentionDays,
		ResetFailureStreak:    true,
	}
	switch {
	case !evaluation.Approved:
		result.Promoted = false
		result.Reason = "Evaluation gate rejected candidate."
		result.ResetFailureStreak = false
	case shadow.AgreementRate < MinShadowAgreement:
		result.Promoted = false
		result.Reason = "Shadow agreement below 85%; human review required."
		result.ResetFailureStreak = false
	}

	metrics.PromotionsTotal.WithLabelValues(agentID, fmt.Sprintf("%t", result.Promoted)).Inc()
	p.log.Info().
		Str("agent_id", agentID).
		Bool("promoted", result.Promoted).
		Str("reason", result.Reason).
		Float64("agreement_rate", shadow.AgreementRate).
		Int("shadow_samples", shadow.TotalSamples).
		Strs("evaluation_reasons", evaluation.Reasons).
		Msg("Promotion resolved")
	return result
}
