package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecrew/tradecrew/internal/models"
)

func testRecord() models.DecisionLogRecord {
	return models.DecisionLogRecord{
		ID:         uuid.New(),
		Timestamp:  time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC),
		AgentID:    "technical_agent",
		TaskID:     uuid.NewString(),
		Asset:      "BTC/USD",
		AssetClass: models.AssetClassCrypto,
		Timeframe:  models.Timeframe1h,
		SignalType: models.SignalTypeTechnical,
		SignalValue: models.TechnicalSignal{
			BaseSignal: models.BaseSignal{Asset: "BTC/USD", Direction: models.DirectionBuy, Timeframe: models.Timeframe1h},
			Strength:   0.8,
		},
		Confidence:   0.8,
		Reasoning:    "momentum confirmation",
		DataSources:  []string{"market:ohlcv"},
		MarketRegime: models.RegimeTrendingBull,
	}
}

func TestDecisionStoreInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO decision_log").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewDecisionStore(mock, zerolog.Nop())
	require.NoError(t, store.Insert(context.Background(), testRecord()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecisionStoreInsertRejectsInvalidRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	record := testRecord()
	record.Confidence = 1.5

	store := NewDecisionStore(mock, zerolog.Nop())
	require.Error(t, store.Insert(context.Background(), record))
	require.NoError(t, mock.ExpectationsWereMet(), "invalid records must not reach the database")
}

func TestDecisionStoreSetOutcomeAppliesOnce(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE decision_log").
		WithArgs(id, 5.5, 2, true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	store := NewDecisionStore(mock, zerolog.Nop())
	applied, err := store.SetOutcome(context.Background(), id, 5.5, 2, true)
	require.NoError(t, err)
	assert.True(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecisionStoreSetOutcomeSkipsLabeledRecords(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE decision_log").
		WithArgs(id, -1.0, 3, false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	store := NewDecisionStore(mock, zerolog.Nop())
	applied, err := store.SetOutcome(context.Background(), id, -1.0, 3, false)
	require.NoError(t, err)
	assert.False(t, applied, "outcome labels are write-once")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecisionStoreCountOutcomeReady(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(612))

	store := NewDecisionStore(mock, zerolog.Nop())
	count, err := store.CountOutcomeReady(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 612, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDecisionStoreListEligible(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	record := testRecord()
	signalJSON, err := models.EncodeSignal(record.SignalValue)
	require.NoError(t, err)

	pnl := 3.25
	latency := 2
	profitable := true
	rows := pgxmock.NewRows([]string{
		"id", "timestamp", "agent_id", "task_id", "asset", "asset_class", "timeframe",
		"signal_type", "signal_value", "confidence", "reasoning", "data_sources",
		"market_regime", "outcome_pnl", "outcome_latency_days",
		"contributed_to_trade", "trade_was_profitable",
	}).AddRow(
		record.ID, record.Timestamp, record.AgentID, record.TaskID, record.Asset,
		string(record.AssetClass), string(record.Timeframe), string(record.SignalType),
		signalJSON, record.Confidence, record.Reasoning, record.DataSources,
		string(record.MarketRegime), &pnl, &latency, true, &profitable,
	)
	mock.ExpectQuery("SELECT(.|\n)+FROM decision_log").WillReturnRows(rows)

	store := NewDecisionStore(mock, zerolog.Nop())
	records, err := store.ListEligible(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, models.AssetClassCrypto, got.AssetClass)
	assert.Equal(t, models.RegimeTrendingBull, got.MarketRegime)
	require.NotNil(t, got.OutcomePnL)
	assert.Equal(t, 3.25, *got.OutcomePnL)
	assert.True(t, got.HasOutcome())

	signal, ok := got.SignalValue.(models.TechnicalSignal)
	require.True(t, ok, "signal decodes by discriminator")
	assert.Equal(t, models.DirectionBuy, signal.Direction)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigratorRunsPendingMigrations(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_version").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(1))

	// Version 1 is already applied; only version 2 runs.
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_decision_log_timestamp").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_version").
		WithArgs(2, "decision_log indexes").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewMigrator(mock).Run(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
