package models

import "fmt"

// TrainingPairMetadata annotates each JSONL training pair
type TrainingPairMetadata struct {
	Regime            MarketRegime `json:"regime"`
	AgentID           string       `json:"agent_id"`
	OutcomePnL        float64      `json:"outcome_pnl"`
	Confidence        float64      `json:"confidence"`
	IsReplay          bool         `json:"is_replay"`
	DatasetVersion    string       `json:"dataset_version"`
	UnmatchedNegative bool         `json:"unmatched_negative"`
}

// TrainingPair is a single prompt/completion row encoded in JSONL
type TrainingPair struct {
	Prompt     string               `json:"prompt"`
	Completion string               `json:"completion"`
	Metadata   TrainingPairMetadata `json:"metadata"`
}

// Validate checks pair constraints
func (p TrainingPair) Validate() error {
	if p.Prompt == "" || p.Completion == "" {
		return fmt.Errorf("training pair prompt and completion must not be empty")
	}
	if !p.Metadata.Regime.Valid() {
		return fmt.Errorf("invalid pair regime: %q", p.Metadata.Regime)
	}
	if p.Metadata.Confidence < 0 || p.Metadata.Confidence > 1 {
		return fmt.Errorf("pair confidence %f outside [0, 1]", p.Metadata.Confidence)
	}
	return nil
}

// EvaluationMetrics are adapter evaluation metrics on holdout data
type EvaluationMetrics struct {
	SignalAccuracy      float64                  `json:"signal_accuracy"`
	AbstainRate         float64                  `json:"abstain_rate"`
	BrierScore          float64                  `json:"brier_score"`
	RegimeAccuracy      map[MarketRegime]float64 `json:"regime_accuracy"`
	ConsistencyVariance float64                  `json:"consistency_variance"`
}

// Validate checks metric ranges
func (m EvaluationMetrics) Validate() error {
	if m.SignalAccuracy < 0 || m.SignalAccuracy > 1 {
		return fmt.Errorf("signal_accuracy %f outside [0, 1]", m.SignalAccuracy)
	}
	if m.AbstainRate < 0 || m.AbstainRate > 1 {
		return fmt.Errorf("abstain_rate %f outside [0, 1]", m.AbstainRate)
	}
	if m.BrierScore < 0 {
		return fmt.Errorf("brier_score must be non-negative")
	}
	if m.ConsistencyVariance < 0 {
		return fmt.Errorf("consistency_variance must be non-negative")
	}
	for regime, accuracy := range m.RegimeAccuracy {
		if !regime.Valid() {
			return fmt.Errorf("invalid regime in regime_accuracy: %q", regime)
		}
		if accuracy < 0 || accuracy > 1 {
			return fmt.Errorf("regime accuracy %f outside [0, 1] for %s", accuracy, regime)
		}
	}
	return nil
}

// PromotionDecision carries the evaluation gate result and rationale
type PromotionDecision struct {
	Approved bool     `json:"approved"`
	Reasons  []string `json:"reasons"`
}
