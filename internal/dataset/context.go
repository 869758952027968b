package dataset

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tradecrew/tradecrew/internal/models"
)

// TrainingContext is the context emitted by one prompt enrichment source
type TrainingContext struct {
	SourceName string
	Fields     map[string]interface{}
}

// ContextSource enriches dataset prompts with one extra context line
type ContextSource interface {
	// SourceName returns the stable identifier used in prompts and metadata
	SourceName() string

	// BuildContext builds context fields for one decision record
	BuildContext(record models.DecisionLogRecord) TrainingContext
}

// SourceDiversityContext summarizes the source diversity behind a decision
type SourceDiversityContext struct{}

func (SourceDiversityContext) SourceName() string { return "source_diversity" }

func (s SourceDiversityContext) BuildContext(record models.DecisionLogRecord) TrainingContext {
	seen := make(map[string]struct{}, len(record.DataSources))
	for _, src := range record.DataSources {
		seen[src] = struct{}{}
	}
	unique := make([]string, 0, len(seen))
	for src := range seen {
		unique = append(unique, src)
	}
	sort.Strings(unique)

	primary := "none"
	if len(unique) > 0 {
		primary = unique[0]
	}
	return TrainingContext{
		SourceName: s.SourceName(),
		Fields: map[string]interface{}{
			"source_count":     len(unique),
			"has_multi_source": len(unique) > 1,
			"primary_source":   primary,
		},
	}
}

// OutcomeQualityContext encodes outcome quality labels for
// calibration-aware training
type OutcomeQualityContext struct{}

func (OutcomeQualityContext) SourceName() string { return "outcome_quality" }

func (o OutcomeQualityContext) BuildContext(record models.DecisionLogRecord) TrainingContext {
	pnl := 0.0
	if record.OutcomePnL != nil {
		pnl = *record.OutcomePnL
	}
	latencyDays := 0
	if record.OutcomeLatencyDays != nil {
		latencyDays = *record.OutcomeLatencyDays
	}
	profitable := record.TradeWasProfitable != nil && *record.TradeWasProfitable

	pnlSign := "non_positive"
	if pnl > 0 {
		pnlSign = "positive"
	}
	return TrainingContext{
		SourceName: o.SourceName(),
		Fields: map[string]interface{}{
			"pnl_sign":             pnlSign,
			"latency_bucket":       latencyBucket(latencyDays),
			"trade_was_profitable": profitable,
		},
	}
}

// TemporalRegimeContext adds temporal markers and regime for sequence
// conditioning
type TemporalRegimeContext struct{}

func (TemporalRegimeContext) SourceName() string { return "temporal_regime" }

func (t TemporalRegimeContext) BuildContext(record models.DecisionLogRecord) TrainingContext {
	return TrainingContext{
		SourceName: t.SourceName(),
		Fields: map[string]interface{}{
			"weekday":  int(record.Timestamp.Weekday()),
			"hour_utc": record.Timestamp.UTC().Hour(),
			"regime":   string(record.MarketRegime),
		},
	}
}

// MacroSnapshotContext injects exogenous macro features from daily
// snapshots keyed by YYYY-MM-DD.
type MacroSnapshotContext struct {
	Snapshots map[string]map[string]interface{}
}

func (MacroSnapshotContext) SourceName() string { return "macro_snapshot" }

func (m MacroSnapshotContext) BuildContext(record models.DecisionLogRecord) TrainingContext {
	dayKey := record.Timestamp.UTC().Format("2006-01-02")
	row := m.Snapshots[dayKey]
	fields := map[string]interface{}{"available": len(row) > 0}
	for key, value := range row {
		switch value.(type) {
		case string, float64, int, bool:
			fields[key] = value
		}
	}
	return TrainingContext{SourceName: m.SourceName(), Fields: fields}
}

// renderContextLine renders one context as a stable prompt line
func renderContextLine(ctx TrainingContext) string {
	serialized, err := json.Marshal(ctx.Fields)
	if err != nil {
		serialized = []byte("{}")
	}
	return fmt.Sprintf("- %s: %s", ctx.SourceName, serialized)
}

// FlattenContexts flattens context maps into metadata-safe dotted keys
func FlattenContexts(contexts []TrainingContext) map[string]interface{} {
	flattened := make(map[string]interface{})
	for _, ctx := range contexts {
		for key, value := range ctx.Fields {
			flattened[fmt.Sprintf("%s.%s", ctx.SourceName, key)] = value
		}
	}
	return flattened
}

func latencyBucket(latencyDays int) string {
	switch {
	case latencyDays <= 1:
		return "fast"
	case latencyDays <= 5:
		return "medium"
	default:
		return "slow"
	}
}
