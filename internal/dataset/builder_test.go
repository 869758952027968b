package dataset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecrew/tradecrew/internal/models"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinOutcomeRecords = 20
	return cfg
}

// labeledRecord builds an outcome-labeled decision record.
func labeledRecord(i int, ts time.Time, regime models.MarketRegime, profitable bool) models.DecisionLogRecord {
	pnl := -2.5
	if profitable {
		pnl = 5.0
	}
	latency := 1
	return models.DecisionLogRecord{
		ID:         uuid.New(),
		Timestamp:  ts,
		AgentID:    "technical_agent",
		TaskID:     uuid.NewString(),
		Asset:      "SPY",
		AssetClass: models.AssetClassEquity,
		Timeframe:  models.Timeframe1h,
		SignalType: models.SignalTypeTechnical,
		SignalValue: models.TechnicalSignal{
			BaseSignal: models.BaseSignal{Asset: "SPY", Direction: models.DirectionBuy, Timeframe: models.Timeframe1h},
			Strength:   0.8,
		},
		Confidence:         0.8,
		Reasoning:          "test signal",
		DataSources:        []string{"market:ohlcv"},
		MarketRegime:       regime,
		OutcomePnL:         &pnl,
		OutcomeLatencyDays: &latency,
		TradeWasProfitable: &profitable,
	}
}

// unprofitablePool builds n records cycling evenly through all regimes,
// none profitable, one hour apart.
func unprofitablePool(n int) []models.DecisionLogRecord {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]models.DecisionLogRecord, n)
	for i := range records {
		regime := models.Regimes[i%len(models.Regimes)]
		records[i] = labeledRecord(i, base.Add(time.Duration(i)*time.Hour), regime, false)
	}
	return records
}

func TestBuildRequiresMinimumOutcomes(t *testing.T) {
	builder := NewBuilder(t.TempDir(), testConfig(), zerolog.Nop())
	_, err := builder.Build(unprofitablePool(10), "v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient outcome-labeled records")
}

func TestBuildExcludesUnlabeledRecords(t *testing.T) {
	records := unprofitablePool(19)
	unlabeled := labeledRecord(99, time.Now().UTC(), models.RegimeTrendingBull, false)
	unlabeled.OutcomePnL = nil
	unlabeled.TradeWasProfitable = nil
	records = append(records, unlabeled)

	builder := NewBuilder(t.TempDir(), testConfig(), zerolog.Nop())
	_, err := builder.Build(records, "v1")
	require.Error(t, err, "unlabeled record must not count toward eligibility")
}

func TestBuildFirstSplitWritesLockAndFiles(t *testing.T) {
	dir := t.TempDir()
	builder := NewBuilder(dir, testConfig(), zerolog.Nop())

	result, err := builder.Build(unprofitablePool(80), "v1")
	require.NoError(t, err)

	// 70/15/15 over 80 records; all-unprofitable means no paired
	// negatives, so pair counts equal row counts.
	assert.Equal(t, 12, result.SplitCounts["validation"])
	assert.Equal(t, 12, result.SplitCounts["test"])
	// 56 base rows + ceil(0.3*56/0.7) = 24 replay rows.
	assert.Equal(t, 80, result.SplitCounts["train"])

	lock, err := readHoldoutLock(filepath.Join(dir, "holdout_lock.json"))
	require.NoError(t, err)
	assert.Len(t, lock.TestIDs, 12)

	for _, path := range []string{result.TrainPath, result.ValidationPath, result.TestPath} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func TestHoldoutLockStableAcrossBuilds(t *testing.T) {
	dir := t.TempDir()
	records := unprofitablePool(80)

	_, err := NewBuilder(dir, testConfig(), zerolog.Nop()).Build(records, "v1")
	require.NoError(t, err)
	first, err := readHoldoutLock(filepath.Join(dir, "holdout_lock.json"))
	require.NoError(t, err)

	// Append 20 newer records and rebuild.
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		records = append(records, labeledRecord(100+i, base.Add(time.Duration(i)*time.Hour), models.Regimes[i%4], false))
	}
	_, err = NewBuilder(dir, testConfig(), zerolog.Nop()).Build(records, "v2")
	require.NoError(t, err)

	second, err := readHoldoutLock(filepath.Join(dir, "holdout_lock.json"))
	require.NoError(t, err)
	assert.ElementsMatch(t, first.TestIDs, second.TestIDs, "holdout ids must never change once written")
}

func TestBuildDeterministicForSameInputsAndSeed(t *testing.T) {
	records := unprofitablePool(80)

	dirA, dirB := t.TempDir(), t.TempDir()
	_, err := NewBuilder(dirA, testConfig(), zerolog.Nop()).Build(records, "v1")
	require.NoError(t, err)
	_, err = NewBuilder(dirB, testConfig(), zerolog.Nop()).Build(records, "v1")
	require.NoError(t, err)

	for _, name := range []string{"train.jsonl", "validation.jsonl", "test.jsonl"} {
		a, err := os.ReadFile(filepath.Join(dirA, "v1", name))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(dirB, "v1", name))
		require.NoError(t, err)
		assert.Equal(t, a, b, name)
	}
}

func TestBuildReplayRatio(t *testing.T) {
	dir := t.TempDir()
	result, err := NewBuilder(dir, testConfig(), zerolog.Nop()).Build(unprofitablePool(80), "v1")
	require.NoError(t, err)

	data, err := os.ReadFile(result.TrainPath)
	require.NoError(t, err)

	total, replay := 0, 0
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var pair models.TrainingPair
		require.NoError(t, json.Unmarshal([]byte(line), &pair))
		total++
		if pair.Metadata.IsReplay {
			replay++
		}
		assert.Equal(t, "v1", pair.Metadata.DatasetVersion)
	}
	assert.GreaterOrEqual(t, float64(replay)/float64(total), 0.30)
}

func TestBuildMissingRegimeIsFatal(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var records []models.DecisionLogRecord
	for i := 0; i < 40; i++ {
		// Only two regimes ever appear.
		regime := models.RegimeTrendingBull
		if i%2 == 0 {
			regime = models.RegimeTrendingBear
		}
		records = append(records, labeledRecord(i, base.Add(time.Duration(i)*time.Hour), regime, false))
	}

	_, err := NewBuilder(t.TempDir(), testConfig(), zerolog.Nop()).Build(records, "v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no historical records available for regime")
}

func TestBalanceRegimesMeetsFloor(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var pool []models.DecisionLogRecord
	for i := 0; i < 100; i++ {
		// Skewed pool: 70% trending_bull, 10% each of the rest.
		regime := models.RegimeTrendingBull
		switch {
		case i%10 == 7:
			regime = models.RegimeTrendingBear
		case i%10 == 8:
			regime = models.RegimeMeanReverting
		case i%10 == 9:
			regime = models.RegimeHighVolatility
		}
		pool = append(pool, labeledRecord(i, base.Add(time.Duration(i)*time.Hour), regime, false))
	}

	builder := NewBuilder(t.TempDir(), testConfig(), zerolog.Nop())
	selected, err := builder.balanceRegimes(pool[:70], pool)
	require.NoError(t, err)

	counts := regimeCounts(recordsOf(selected))
	total := len(selected)
	for _, regime := range models.Regimes {
		assert.GreaterOrEqual(t, float64(counts[regime])/float64(total), 0.20-1e-9,
			"regime %s below floor", regime)
	}
}

func TestBuildPairsEmitsMatchedNegatives(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	negative := labeledRecord(0, base, models.RegimeTrendingBull, false)
	positive := labeledRecord(1, base.Add(time.Hour), models.RegimeTrendingBull, true)
	orphan := labeledRecord(2, base.Add(2*time.Hour), models.RegimeHighVolatility, true)

	builder := NewBuilder(t.TempDir(), testConfig(), zerolog.Nop())
	pairs, err := builder.buildPairs(
		asSelected([]models.DecisionLogRecord{positive, orphan}),
		[]models.DecisionLogRecord{negative, positive, orphan},
		"v1",
	)
	require.NoError(t, err)
	require.Len(t, pairs, 3)

	// Temporal order: negative (earliest) first, then positive, then orphan.
	assert.Equal(t, models.RegimeTrendingBull, pairs[0].Metadata.Regime)
	assert.Less(t, pairs[0].Metadata.OutcomePnL, 0.0)
	assert.False(t, pairs[0].Metadata.UnmatchedNegative)

	assert.Greater(t, pairs[1].Metadata.OutcomePnL, 0.0)
	assert.False(t, pairs[1].Metadata.UnmatchedNegative)

	assert.Equal(t, models.RegimeHighVolatility, pairs[2].Metadata.Regime)
	assert.True(t, pairs[2].Metadata.UnmatchedNegative, "positive without matching negative context")
}

func TestRecordToPairFormats(t *testing.T) {
	record := labeledRecord(0, time.Date(2025, 2, 3, 12, 30, 0, 0, time.UTC), models.RegimeMeanReverting, true)
	builder := NewBuilder(t.TempDir(), testConfig(), zerolog.Nop())

	pair, err := builder.recordToPair(record, "v3", true, false)
	require.NoError(t, err)

	lines := strings.Split(pair.Prompt, "\n")
	assert.Equal(t, "Agent context:", lines[0])
	assert.Equal(t, "- timestamp: 2025-02-03T12:30:00Z", lines[1])
	assert.Contains(t, pair.Prompt, "- confidence: 0.8000")
	assert.Contains(t, pair.Prompt, "- market_regime: mean_reverting")
	assert.Equal(t, "Return a valid AgentResponse JSON.", lines[len(lines)-1])

	// Canonical completion: sorted keys, compact separators.
	assert.True(t, strings.HasPrefix(pair.Completion, `{"adapter_version":"label_from_record","agent_id":`), pair.Completion)
	assert.Contains(t, pair.Completion, `"latency_ms":1`)
	assert.Contains(t, pair.Completion, `"status":"success"`)
	assert.NotContains(t, pair.Completion, ": ")

	assert.True(t, pair.Metadata.IsReplay)
	assert.Equal(t, "v3", pair.Metadata.DatasetVersion)
	require.NoError(t, pair.Validate())
}

func TestRecordToPairAppendsContextLines(t *testing.T) {
	record := labeledRecord(0, time.Date(2025, 2, 3, 12, 30, 0, 0, time.UTC), models.RegimeMeanReverting, true)
	builder := NewBuilder(t.TempDir(), testConfig(), zerolog.Nop(), SourceDiversityContext{}, TemporalRegimeContext{})

	pair, err := builder.recordToPair(record, "v1", false, false)
	require.NoError(t, err)

	lines := strings.Split(pair.Prompt, "\n")
	assert.Contains(t, pair.Prompt, `- source_diversity: {"has_multi_source":false,"primary_source":"market:ohlcv","source_count":1}`)
	assert.Contains(t, pair.Prompt, `- temporal_regime: {"hour_utc":12,"regime":"mean_reverting","weekday":1}`)
	assert.Equal(t, "Return a valid AgentResponse JSON.", lines[len(lines)-1])
}

func TestRecencySamplerDeterministic(t *testing.T) {
	pool := unprofitablePool(30)
	a := newRecencySampler(7).Sample(pool, 10)
	b := newRecencySampler(7).Sample(pool, 10)
	require.Equal(t, a, b)

	c := newRecencySampler(8).Sample(pool, 10)
	assert.NotEqual(t, a, c, "different seeds should diverge")
}
