package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tradecrew/tradecrew/internal/models"
)

// DecisionStore persists agent decisions and their trade outcomes.
// Records are immutable except for the one-time outcome label.
type DecisionStore struct {
	pool PoolInterface
	log  zerolog.Logger
}

// NewDecisionStore creates a decision store on the given pool
func NewDecisionStore(pool PoolInterface, log zerolog.Logger) *DecisionStore {
	return &DecisionStore{
		pool: pool,
		log:  log.With().Str("component", "decision_store").Logger(),
	}
}

const insertDecisionSQL = `
	INSERT INTO decision_log (
		id, timestamp, agent_id, task_id, asset, asset_class, timeframe,
		signal_type, signal_value, confidence, reasoning, data_sources,
		market_regime, outcome_pnl, outcome_latency_days,
		contributed_to_trade, trade_was_profitable
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
	)
`

// Insert persists one decision log record
func (s *DecisionStore) Insert(ctx context.Context, record models.DecisionLogRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid decision record: %w", err)
	}
	signalJSON, err := models.EncodeSignal(record.SignalValue)
	if err != nil {
		return fmt.Errorf("failed to encode signal value: %w", err)
	}

	_, err = s.pool.Exec(ctx, insertDecisionSQL,
		record.ID,
		record.Timestamp,
		record.AgentID,
		record.TaskID,
		record.Asset,
		string(record.AssetClass),
		string(record.Timeframe),
		string(record.SignalType),
		signalJSON,
		record.Confidence,
		record.Reasoning,
		record.DataSources,
		string(record.MarketRegime),
		record.OutcomePnL,
		record.OutcomeLatencyDays,
		record.ContributedToTrade,
		record.TradeWasProfitable,
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	return nil
}

const updateOutcomeSQL = `
	UPDATE decision_log
	SET outcome_pnl = $2,
		outcome_latency_days = $3,
		trade_was_profitable = $4
	WHERE id = $1 AND outcome_pnl IS NULL
`

// SetOutcome labels a decision with its trade outcome. The label is
// write-once: records that already carry an outcome are left untouched
// and false is returned.
func (s *DecisionStore) SetOutcome(ctx context.Context, id uuid.UUID, pnl float64, latencyDays int, profitable bool) (bool, error) {
	tag, err := s.pool.Exec(ctx, updateOutcomeSQL, id, pnl, latencyDays, profitable)
	if err != nil {
		return false, fmt.Errorf("failed to update decision outcome: %w", err)
	}
	applied := tag.RowsAffected() > 0
	if !applied {
		s.log.Debug().Str("decision_id", id.String()).Msg("Outcome already set, update skipped")
	}
	return applied, nil
}

const countOutcomeReadySQL = `
	SELECT COUNT(*)
	FROM decision_log
	WHERE outcome_pnl IS NOT NULL
	  AND trade_was_profitable IS NOT NULL
`

// CountOutcomeReady returns how many records carry a full outcome label
func (s *DecisionStore) CountOutcomeReady(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, countOutcomeReadySQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count outcome-ready decisions: %w", err)
	}
	return count, nil
}

const listEligibleSQL = `
	SELECT
		id, timestamp, agent_id, task_id, asset, asset_class, timeframe,
		signal_type, signal_value, confidence, reasoning, data_sources,
		market_regime, outcome_pnl, outcome_latency_days,
		contributed_to_trade, trade_was_profitable
	FROM decision_log
	WHERE outcome_pnl IS NOT NULL
	  AND trade_was_profitable IS NOT NULL
	ORDER BY timestamp ASC
`

// ListEligible returns all outcome-labeled records in timestamp order,
// ready for dataset construction.
func (s *DecisionStore) ListEligible(ctx context.Context) ([]models.DecisionLogRecord, error) {
	rows, err := s.pool.Query(ctx, listEligibleSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible decisions: %w", err)
	}
	defer rows.Close()

	var records []models.DecisionLogRecord
	for rows.Next() {
		var (
			record     models.DecisionLogRecord
			assetClass string
			timeframe  string
			signalType string
			regime     string
			signalJSON []byte
		)
		err := rows.Scan(
			&record.ID,
			&record.Timestamp,
			&record.AgentID,
			&record.TaskID,
			&record.Asset,
			&assetClass,
			&timeframe,
			&signalType,
			&signalJSON,
			&record.Confidence,
			&record.Reasoning,
			&record.DataSources,
			&regime,
			&record.OutcomePnL,
			&record.OutcomeLatencyDays,
			&record.ContributedToTrade,
			&record.TradeWasProfitable,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		record.AssetClass = models.AssetClass(assetClass)
		record.Timeframe = models.Timeframe(timeframe)
		record.SignalType = models.SignalType(signalType)
		record.MarketRegime = models.MarketRegime(regime)

		signal, err := models.DecodeSignal(signalJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode signal for %s: %w", record.ID, err)
		}
		record.SignalValue = signal
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decisions: %w", err)
	}
	return records, nil
}
