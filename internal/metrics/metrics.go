package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels.
// These ensure metrics don't have unbounded label values which can cause memory issues.
const (
	// Provider fetch outcomes (bounded set)
	FetchOutcomeSuccess     = "success"
	FetchOutcomeFailure     = "failure"
	FetchOutcomeStale       = "stale"
	FetchOutcomeCircuitOpen = "circuit_open"

	// Risk veto reasons (bounded set)
	VetoReasonDrawdown     = "drawdown"
	VetoReasonPositionSize = "position_size"
	VetoReasonSector       = "sector_exposure"
	VetoReasonEventWindow  = "event_window"
	VetoReasonHistory      = "instrument_history"
	VetoReasonOther        = "other"
)

// NormalizeVetoReason maps arbitrary veto reasons to the bounded set
func NormalizeVetoReason(reason string) string {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "drawdown"):
		return VetoReasonDrawdown
	case strings.Contains(lower, "position"):
		return VetoReasonPositionSize
	case strings.Contains(lower, "sector"):
		return VetoReasonSector
	case strings.Contains(lower, "event"):
		return VetoReasonEventWindow
	case strings.Contains(lower, "history"):
		return VetoReasonHistory
	default:
		return VetoReasonOther
	}
}

var (
	// Market data client
	ProviderFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradecrew_provider_fetches_total",
		Help: "Market data provider fetch attempts by source and outcome",
	}, []string{"source", "outcome"})

	ProviderCircuitOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tradecrew_provider_circuit_open",
		Help: "Whether the provider circuit breaker is currently open (0 or 1)",
	}, []string{"source"})

	ConsensusSpreadBps = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tradecrew_consensus_spread_bps",
		Help: "Cross-provider close price spread in basis points for the last fetch",
	})

	// Coordinator and risk
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradecrew_decisions_total",
		Help: "Trade decisions emitted by direction and approval",
	}, []string{"direction", "approved"})

	RiskVetoes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradecrew_risk_vetoes_total",
		Help: "Risk agent vetoes by normalized reason",
	}, []string{"reason"})

	// Execution
	OrdersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradecrew_orders_submitted_total",
		Help: "Order submissions by exchange and terminal status",
	}, []string{"exchange", "status"})

	OrderRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradecrew_order_retries_total",
		Help: "Order submission retry attempts",
	})

	// Training loop
	TrainingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradecrew_training_runs_total",
		Help: "Retraining runs by agent and terminal status",
	}, []string{"agent_id", "status"})

	TrainingFailureStreak = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tradecrew_training_failure_streak",
		Help: "Consecutive failed retraining runs per agent",
	}, []string{"agent_id"})

	DatasetPairs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tradecrew_dataset_pairs",
		Help: "Training pairs emitted by the last dataset build, by split",
	}, []string{"agent_id", "split"})

	ShadowAgreement = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tradecrew_shadow_agreement_ratio",
		Help: "Shadow deployment agreement ratio per agent (0.0 to 1.0)",
	}, []string{"agent_id"})

	PromotionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradecrew_promotions_total",
		Help: "Adapter promotion decisions by agent and outcome",
	}, []string{"agent_id", "approved"})
)

// RecordDatasetSplits publishes the pair counts of the latest dataset
// build for an agent.
func RecordDatasetSplits(agentID string, counts map[string]int) {
	for split, count := range counts {
		DatasetPairs.WithLabelValues(agentID, split).Set(float64(count))
	}
}
