package dataset

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tradecrew/tradecrew/internal/models"
)

type contextKey struct {
	Regime     models.MarketRegime
	AssetClass models.AssetClass
	Timeframe  models.Timeframe
}

// buildPairs emits one pair per selected record, plus a paired negative
// for each profitable record when the context pool has one available.
// The final ordering is temporal over the prompt timestamp line.
func (b *Builder) buildPairs(selected []selectedRecord, historicalPool []models.DecisionLogRecord, datasetVersion string) ([]models.TrainingPair, error) {
	negativesByContext := make(map[contextKey][]models.DecisionLogRecord)
	for _, record := range historicalPool {
		if record.TradeWasProfitable != nil && *record.TradeWasProfitable {
			continue
		}
		key := contextKey{record.MarketRegime, record.AssetClass, record.Timeframe}
		negativesByContext[key] = append(negativesByContext[key], record)
	}

	var pairs []models.TrainingPair
	for _, sel := range selected {
		record := sel.record
		unmatched := false
		if record.TradeWasProfitable != nil && *record.TradeWasProfitable {
			key := contextKey{record.MarketRegime, record.AssetClass, record.Timeframe}
			if candidates := negativesByContext[key]; len(candidates) > 0 {
				negative := candidates[0]
				negativesByContext[key] = candidates[1:]
				pair, err := b.recordToPair(negative, datasetVersion, sel.isReplay, false)
				if err != nil {
					return nil, err
				}
				pairs = append(pairs, pair)
			} else {
				unmatched = true
			}
		}
		pair, err := b.recordToPair(record, datasetVersion, sel.isReplay, unmatched)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}

	sortPairsByPromptTimestamp(pairs)
	return pairs, nil
}

func (b *Builder) recordToPair(record models.DecisionLogRecord, datasetVersion string, isReplay, unmatchedNegative bool) (models.TrainingPair, error) {
	signalJSON, err := models.EncodeSignal(record.SignalValue)
	if err != nil {
		return models.TrainingPair{}, fmt.Errorf("failed to encode signal for record %s: %w", record.ID, err)
	}

	lines := []string{
		"Agent context:",
		fmt.Sprintf("- timestamp: %s", record.Timestamp.Format(time.RFC3339Nano)),
		fmt.Sprintf("- task_id: %s", record.TaskID),
		fmt.Sprintf("- agent_id: %s", record.AgentID),
		fmt.Sprintf("- asset: %s", record.Asset),
		fmt.Sprintf("- asset_class: %s", record.AssetClass),
		fmt.Sprintf("- timeframe: %s", record.Timeframe),
		fmt.Sprintf("- market_regime: %s", record.MarketRegime),
		fmt.Sprintf("- confidence: %.4f", record.Confidence),
		fmt.Sprintf("- signal: %s", signalJSON),
		fmt.Sprintf("- reasoning: %s", record.Reasoning),
	}
	for _, source := range b.contextSources {
		lines = append(lines, renderContextLine(source.BuildContext(record)))
	}
	lines = append(lines, "Return a valid AgentResponse JSON.")
	prompt := strings.Join(lines, "\n")

	// Canonical completion: sorted keys, compact separators.
	completion, err := json.Marshal(map[string]interface{}{
		"agent_id":        record.AgentID,
		"timestamp":       record.Timestamp.Format(time.RFC3339Nano),
		"task_id":         record.TaskID,
		"status":          "success",
		"payload":         json.RawMessage(signalJSON),
		"confidence":      record.Confidence,
		"reasoning":       record.Reasoning,
		"data_sources":    record.DataSources,
		"latency_ms":      1,
		"adapter_version": "label_from_record",
		"market_regime":   record.MarketRegime,
	})
	if err != nil {
		return models.TrainingPair{}, fmt.Errorf("failed to encode completion: %w", err)
	}

	outcomePnL := 0.0
	if record.OutcomePnL != nil {
		outcomePnL = *record.OutcomePnL
	}
	return models.TrainingPair{
		Prompt:     prompt,
		Completion: string(completion),
		Metadata: models.TrainingPairMetadata{
			Regime:            record.MarketRegime,
			AgentID:           record.AgentID,
			OutcomePnL:        outcomePnL,
			Confidence:        record.Confidence,
			IsReplay:          isReplay,
			DatasetVersion:    datasetVersion,
			UnmatchedNegative: unmatchedNegative,
		},
	}, nil
}

const promptTimestampPrefix = "- timestamp: "

func promptTimestamp(prompt string) time.Time {
	for _, line := range strings.Split(prompt, "\n") {
		if strings.HasPrefix(line, promptTimestampPrefix) {
			value := strings.TrimSpace(strings.TrimPrefix(line, promptTimestampPrefix))
			if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
				return ts
			}
		}
	}
	return time.Now().UTC()
}
