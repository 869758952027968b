// Package dataset converts decision logs into temporally-safe,
// regime-balanced JSONL training artifacts with locked holdout
// semantics.
package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tradecrew/tradecrew/internal/models"
)

// Config holds deterministic dataset generation settings
type Config struct {
	MinOutcomeRecords int     // eligibility floor before a build may run
	ReplayRatio       float64 // minimum fraction of replay rows in training
	MinRegimeRatio    float64 // per-regime floor in the training split
	Seed              int64   // recency sampler seed
	LockFilename      string
}

// DefaultConfig returns the production dataset settings
func DefaultConfig() Config {
	return Config{
		MinOutcomeRecords: 500,
		ReplayRatio:       0.30,
		MinRegimeRatio:    0.20,
		Seed:              7,
		LockFilename:      "holdout_lock.json",
	}
}

type selectedRecord struct {
	record   models.DecisionLogRecord
	isReplay bool
}

// BuiltDataset reports output paths and split statistics
type BuiltDataset struct {
	DatasetVersion     string             `json:"dataset_version"`
	TrainPath          string             `json:"train_path"`
	ValidationPath     string             `json:"validation_path"`
	TestPath           string             `json:"test_path"`
	SplitCounts        map[string]int     `json:"split_counts"`
	RegimeDistribution map[string]float64 `json:"regime_distribution"`
}

// Builder converts decision logs into JSONL train/validation/test files
type Builder struct {
	outputDir      string
	cfg            Config
	sampler        *recencySampler
	contextSources []ContextSource
	log            zerolog.Logger
}

// NewBuilder creates a dataset builder writing under outputDir.
// Context sources are optional prompt enrichers applied in order.
func NewBuilder(outputDir string, cfg Config, log zerolog.Logger, contextSources ...ContextSource) *Builder {
	return &Builder{
		outputDir:      outputDir,
		cfg:            cfg,
		sampler:        newRecencySampler(cfg.Seed),
		contextSources: contextSources,
		log:            log.With().Str("component", "dataset_builder").Logger(),
	}
}

// Build persists dataset splits with holdout lock semantics. Records
// with null outcomes are excluded by design.
func (b *Builder) Build(records []models.DecisionLogRecord, datasetVersion string) (*BuiltDataset, error) {
	var eligible []models.DecisionLogRecord
	for _, record := range records {
		if record.HasOutcome() {
			eligible = append(eligible, record)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Timestamp.Before(eligible[j].Timestamp)
	})
	if len(eligible) < b.cfg.MinOutcomeRecords {
		return nil, fmt.Errorf("insufficient outcome-labeled records for training: %d < %d",
			len(eligible), b.cfg.MinOutcomeRecords)
	}

	datasetRoot := filepath.Join(b.outputDir, datasetVersion)
	if err := os.MkdirAll(datasetRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dataset dir: %w", err)
	}
	lockPath := filepath.Join(b.outputDir, b.cfg.LockFilename)

	var trainRecords, validationRecords, testRecords []models.DecisionLogRecord
	if _, err := os.Stat(lockPath); err == nil {
		lock, err := readHoldoutLock(lockPath)
		if err != nil {
			return nil, err
		}
		trainRecords, validationRecords, testRecords = splitWithLockedHoldout(eligible, lock)
	} else {
		trainRecords, validationRecords, testRecords = initialTimeSplit(eligible)
		if err := writeHoldoutLock(lockPath, testRecords); err != nil {
			return nil, err
		}
	}

	balanced, err := b.balanceRegimes(trainRecords, eligible)
	if err != nil {
		return nil, err
	}
	enriched := b.injectReplayBuffer(balanced, eligible)

	trainPairs, err := b.buildPairs(enriched, eligible, datasetVersion)
	if err != nil {
		return nil, err
	}
	validationPairs, err := b.buildPairs(asSelected(validationRecords), validationRecords, datasetVersion)
	if err != nil {
		return nil, err
	}
	testPairs, err := b.buildPairs(asSelected(testRecords), testRecords, datasetVersion)
	if err != nil {
		return nil, err
	}

	result := &BuiltDataset{
		DatasetVersion: datasetVersion,
		TrainPath:      filepath.Join(datasetRoot, "train.jsonl"),
		ValidationPath: filepath.Join(datasetRoot, "validation.jsonl"),
		TestPath:       filepath.Join(datasetRoot, "test.jsonl"),
		SplitCounts: map[string]int{
			"train":      len(trainPairs),
			"validation": len(validationPairs),
			"test":       len(testPairs),
		},
		RegimeDistribution: regimeDistribution(recordsOf(enriched)),
	}
	if err := writeJSONL(result.TrainPath, trainPairs); err != nil {
		return nil, err
	}
	if err := writeJSONL(result.ValidationPath, validationPairs); err != nil {
		return nil, err
	}
	if err := writeJSONL(result.TestPath, testPairs); err != nil {
		return nil, err
	}

	b.log.Info().
		Str("dataset_version", datasetVersion).
		Int("train", len(trainPairs)).
		Int("validation", len(validationPairs)).
		Int("test", len(testPairs)).
		Interface("regime_distribution", result.RegimeDistribution).
		Msg("Dataset built")

	return result, nil
}

// initialTimeSplit cuts 70/15/15 by index over timestamp-sorted records
func initialTimeSplit(records []models.DecisionLogRecord) (train, validation, test []models.DecisionLogRecord) {
	count := len(records)
	trainEnd := int(float64(count) * 0.70)
	validationEnd := int(float64(count) * 0.85)
	return records[:trainEnd], records[trainEnd:validationEnd], records[validationEnd:]
}

// splitWithLockedHoldout pins the test split to the locked ids and
// splits the remainder 0.70/0.85 by index.
func splitWithLockedHoldout(records []models.DecisionLogRecord, lock *HoldoutLock) (train, validation, test []models.DecisionLogRecord) {
	testIDs := make(map[uuid.UUID]struct{}, len(lock.TestIDs))
	for _, id := range lock.TestIDs {
		testIDs[id] = struct{}{}
	}

	var remainder []models.DecisionLogRecord
	for _, record := range records {
		if _, ok := testIDs[record.ID]; ok {
			test = append(test, record)
		} else {
			remainder = append(remainder, record)
		}
	}
	trainEnd := int(float64(len(remainder)) * (0.70 / 0.85))
	return remainder[:trainEnd], remainder[trainEnd:], test
}

// balanceRegimes tops up deficient regimes from recency-weighted pool
// samples until every regime meets the floor or the iteration cap hits.
func (b *Builder) balanceRegimes(baseRecords, historicalPool []models.DecisionLogRecord) ([]selectedRecord, error) {
	selected := asSelected(baseRecords)

	poolByRegime := make(map[models.MarketRegime][]models.DecisionLogRecord, len(models.Regimes))
	for _, record := range historicalPool {
		poolByRegime[record.MarketRegime] = append(poolByRegime[record.MarketRegime], record)
	}
	for _, regime := range models.Regimes {
		if len(poolByRegime[regime]) == 0 {
			return nil, fmt.Errorf("no historical records available for regime: %s", regime)
		}
	}

	maxIterations := len(baseRecords) * 8
	iterations := 0
	for !b.regimesMeetFloor(recordsOf(selected)) && iterations < maxIterations {
		iterations++
		counts := regimeCounts(recordsOf(selected))
		total := len(selected)
		for _, regime := range models.Regimes {
			minCount := int(math.Ceil(float64(total) * b.cfg.MinRegimeRatio))
			if counts[regime] >= minCount {
				continue
			}
			sample := b.sampler.Sample(poolByRegime[regime], 1)[0]
			selected = append(selected, selectedRecord{record: sample})
			counts[regime]++
			total++
		}
	}

	if !b.regimesMeetFloor(recordsOf(selected)) {
		return nil, fmt.Errorf("unable to satisfy minimum regime distribution constraints")
	}
	return selected, nil
}

func (b *Builder) regimesMeetFloor(records []models.DecisionLogRecord) bool {
	if len(records) == 0 {
		return false
	}
	counts := regimeCounts(records)
	total := len(records)
	for _, regime := range models.Regimes {
		if counts[regime] < int(math.Ceil(float64(total)*b.cfg.MinRegimeRatio)) {
			return false
		}
	}
	return true
}

// injectReplayBuffer appends m = ceil(r*B/(1-r)) recency-weighted rows
// from the full eligible pool so replay rows reach the target ratio.
func (b *Builder) injectReplayBuffer(base []selectedRecord, historicalPool []models.DecisionLogRecord) []selectedRecord {
	out := make([]selectedRecord, len(base))
	copy(out, base)

	baseCount := len(base)
	minReplay := int(math.Ceil((b.cfg.ReplayRatio * float64(baseCount)) / (1.0 - b.cfg.ReplayRatio)))
	for _, record := range b.sampler.Sample(historicalPool, minReplay) {
		out = append(out, selectedRecord{record: record, isReplay: true})
	}
	return out
}

func asSelected(records []models.DecisionLogRecord) []selectedRecord {
	out := make([]selectedRecord, 0, len(records))
	for _, record := range records {
		out = append(out, selectedRecord{record: record})
	}
	return out
}

func recordsOf(selected []selectedRecord) []models.DecisionLogRecord {
	out := make([]models.DecisionLogRecord, 0, len(selected))
	for _, sel := range selected {
		out = append(out, sel.record)
	}
	return out
}

func regimeCounts(records []models.DecisionLogRecord) map[models.MarketRegime]int {
	counts := make(map[models.MarketRegime]int, len(models.Regimes))
	for _, regime := range models.Regimes {
		counts[regime] = 0
	}
	for _, record := range records {
		counts[record.MarketRegime]++
	}
	return counts
}

func regimeDistribution(records []models.DecisionLogRecord) map[string]float64 {
	counts := regimeCounts(records)
	total := len(records)
	if total == 0 {
		total = 1
	}
	out := make(map[string]float64, len(models.Regimes))
	for _, regime := range models.Regimes {
		out[string(regime)] = float64(counts[regime]) / float64(total)
	}
	return out
}

func sortPairsByPromptTimestamp(pairs []models.TrainingPair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		return promptTimestamp(pairs[i].Prompt).Before(promptTimestamp(pairs[j].Prompt))
	})
}

func writeJSONL(path string, pairs []models.TrainingPair) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	encoder := json.NewEncoder(file)
	for _, pair := range pairs {
		if err := encoder.Encode(pair); err != nil {
			file.Close()
			return fmt.Errorf("failed to write pair: %w", err)
		}
	}
	return file.Close()
}
