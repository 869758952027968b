package training

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecrew/tradecrew/internal/models"
)

func TestComputeMetricsRejectsEmptyInput(t *testing.T) {
	_, err := NewEvaluator(11).ComputeMetrics(nil)
	require.Error(t, err)
}

func TestComputeMetricsKnownValues(t *testing.T) {
	predictions := []HoldoutPrediction{
		{Regime: models.RegimeTrendingBull, ActualProfitable: true, Abstained: true},
		{Regime: models.RegimeTrendingBull, PredictedProfitable: true, ActualProfitable: true, Confidence: 0.8},
		{Regime: models.RegimeTrendingBear, PredictedProfitable: false, ActualProfitable: false, Confidence: 0.7},
		{Regime: models.RegimeMeanReverting, PredictedProfitable: true, ActualProfitable: false, Confidence: 0.6},
	}

	metrics, err := NewEvaluator(11).ComputeMetrics(predictions)
	require.NoError(t, err)

	assert.InDelta(t, 2.0/3.0, metrics.SignalAccuracy, 1e-9)
	assert.InDelta(t, 0.25, metrics.AbstainRate, 1e-9)
	// (0.5-1)^2 + (0.8-1)^2 + (0.3-0)^2 + (0.6-0)^2 over 4 rows.
	assert.InDelta(t, 0.185, metrics.BrierScore, 1e-9)

	assert.InDelta(t, 1.0, metrics.RegimeAccuracy[models.RegimeTrendingBull], 1e-9)
	assert.InDelta(t, 1.0, metrics.RegimeAccuracy[models.RegimeTrendingBear], 1e-9)
	assert.InDelta(t, 0.0, metrics.RegimeAccuracy[models.RegimeMeanReverting], 1e-9)
	assert.InDelta(t, 0.0, metrics.RegimeAccuracy[models.RegimeHighVolatility], 1e-9,
		"regimes without predictions report zero")
}

func TestComputeMetricsConsistencyVarianceZeroWhenUniform(t *testing.T) {
	var predictions []HoldoutPrediction
	for i := 0; i < 40; i++ {
		predictions = append(predictions, HoldoutPrediction{
			Regime:              models.Regimes[i%4],
			PredictedProfitable: true,
			ActualProfitable:    true,
			Confidence:          0.9,
		})
	}

	metrics, err := NewEvaluator(11).ComputeMetrics(predictions)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, metrics.ConsistencyVariance, 1e-12,
		"uniformly correct predictions have zero subsample variance")
}

func passingPair() (champion, candidate models.EvaluationMetrics) {
	fullRegime := map[models.MarketRegime]float64{
		models.RegimeTrendingBull:   0.6,
		models.RegimeTrendingBear:   0.6,
		models.RegimeMeanReverting:  0.6,
		models.RegimeHighVolatility: 0.6,
	}
	champion = models.EvaluationMetrics{
		SignalAccuracy:      0.60,
		AbstainRate:         0.25,
		BrierScore:          0.20,
		RegimeAccuracy:      fullRegime,
		ConsistencyVariance: 0.01,
	}
	candidate = champion
	candidate.SignalAccuracy = 0.65
	candidate.BrierScore = 0.18
	candidate.RegimeAccuracy = fullRegime
	return champion, candidate
}

func TestEvaluatePromotionApproves(t *testing.T) {
	champion, candidate := passingPair()
	decision := NewEvaluator(11).EvaluatePromotion(champion, candidate, "dataset_v3", "dataset_v4")
	assert.True(t, decision.Approved)
	assert.Empty(t, decision.Reasons)
}

func TestEvaluatePromotionCollectsAllFailures(t *testing.T) {
	champion, candidate := passingPair()
	candidate.SignalAccuracy = champion.SignalAccuracy + 0.01
	candidate.BrierScore = champion.BrierScore + 0.01
	candidate.AbstainRate = 0.50
	candidate.ConsistencyVariance = 0.05
	candidate.RegimeAccuracy = map[models.MarketRegime]float64{
		models.RegimeTrendingBull:   0.6,
		models.RegimeTrendingBear:   0.6,
		models.RegimeMeanReverting:  0.6,
		models.RegimeHighVolatility: 0.50,
	}

	decision := NewEvaluator(11).EvaluatePromotion(champion, candidate, "dataset_v4", "dataset_v3")
	assert.False(t, decision.Approved)
	assert.Len(t, decision.Reasons, 6)
	assert.Contains(t, decision.Reasons, "Signal accuracy improvement is below 2%.")
	assert.Contains(t, decision.Reasons, "Brier score degraded versus champion.")
	assert.Contains(t, decision.Reasons, "Candidate abstain rate is outside healthy 15%-40% range.")
	assert.Contains(t, decision.Reasons, "Regime degradation exceeds 5% for high_volatility.")
	assert.Contains(t, decision.Reasons, "Candidate consistency variance is not stable (<0.05 required).")
	assert.Contains(t, decision.Reasons, "Candidate dataset_version must be newer than champion.")
}

func TestEvaluatePromotionDatasetVersionOrdering(t *testing.T) {
	champion, candidate := passingPair()
	evaluator := NewEvaluator(11)

	cases := []struct {
		name      string
		champion  string
		candidate string
		approved  bool
	}{
		{"newer candidate", "dataset_v9", "dataset_v10", true},
		{"equal versions", "dataset_v4", "dataset_v4", false},
		{"missing digits resolve to minus one", "dataset", "dataset_v0", true},
		{"both missing digits", "dataset", "dataset", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision := evaluator.EvaluatePromotion(champion, candidate, tc.champion, tc.candidate)
			assert.Equal(t, tc.approved, decision.Approved)
		})
	}
}

func TestPromoterShadowWindow(t *testing.T) {
	promoter := NewPromoter(zerolog.Nop())
	fixed := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	promoter.now = func() time.Time { return fixed }

	start, end := promoter.BeginShadowWindow()
	assert.Equal(t, fixed, start)
	assert.Equal(t, fixed.Add(48*time.Hour), end)
}

func TestPromoterResolve(t *testing.T) {
	promoter := NewPromoter(zerolog.Nop())
	shadow := ShadowDeploymentResult{AgreementRate: 0.92, TotalSamples: 400}

	cases := []struct {
		name       string
		evaluation models.PromotionDecision
		agreement  float64
		promoted   bool
		reason     string
		reset      bool
	}{
		{
			name:       "evaluation rejected is absolute",
			evaluation: models.PromotionDecision{Approved: false, Reasons: []string{"Brier score degraded versus champion."}},
			agreement:  0.99,
			promoted:   false,
			reason:     "Evaluation gate rejected candidate.",
		},
		{
			name:       "low agreement requires human review",
			evaluation: models.PromotionDecision{Approved: true},
			agreement:  0.84,
			promoted:   false,
			reason:     "Shadow agreement below 85%; human review required.",
		},
		{
			name:       "promotion after successful shadow",
			evaluation: models.PromotionDecision{Approved: true},
			agreement:  0.85,
			promoted:   true,
			reason:     "Candidate promoted to champion after successful shadow deployment.",
			reset:      true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			shadow.AgreementRate = tc.agreement
			result := promoter.Resolve("technical_agent", tc.evaluation, shadow)
			assert.Equal(t, tc.promoted, result.Promoted)
			assert.Equal(t, tc.reason, result.Reason)
			assert.Equal(t, tc.reset, result.ResetFailureStreak)
			assert.Equal(t, 90, result.RetainPreviousForDays, "previous champion always retained")
		})
	}
}

func TestTrainerAgentTrigger(t *testing.T) {
	trainer := NewTrainerAgent(TrainerConfig{MinOutcomes: 500, FailureStreakPause: 3}, zerolog.Nop())

	assert.False(t, trainer.ShouldTrigger(499))
	assert.True(t, trainer.ShouldTrigger(500))
	assert.True(t, trainer.ShouldTrigger(10000))
}

func TestTrainerAgentRunLock(t *testing.T) {
	trainer := NewTrainerAgent(DefaultTrainerConfig(), zerolog.Nop())

	require.True(t, trainer.BeginRun())
	assert.False(t, trainer.BeginRun(), "second run must not start while active")
	assert.True(t, trainer.Running())

	trainer.CompleteRun(true)
	assert.False(t, trainer.Running())
	assert.True(t, trainer.BeginRun())
}

func TestTrainerAgentFailureStreakPause(t *testing.T) {
	trainer := NewTrainerAgent(TrainerConfig{MinOutcomes: 10, FailureStreakPause: 3}, zerolog.Nop())

	for i := 0; i < 3; i++ {
		require.True(t, trainer.BeginRun())
		trainer.CompleteRun(false)
	}
	assert.Equal(t, 3, trainer.FailureStreak())
	assert.False(t, trainer.ShouldTrigger(1000), "triggering pauses at the streak threshold")

	trainer.ResetFailureStreak()
	assert.Equal(t, 0, trainer.FailureStreak())
	assert.True(t, trainer.ShouldTrigger(1000))
}

func TestTrainerAgentSuccessResetsStreak(t *testing.T) {
	trainer := NewTrainerAgent(DefaultTrainerConfig(), zerolog.Nop())

	require.True(t, trainer.BeginRun())
	trainer.CompleteRun(false)
	require.True(t, trainer.BeginRun())
	trainer.CompleteRun(false)
	assert.Equal(t, 2, trainer.FailureStreak())

	require.True(t, trainer.BeginRun())
	trainer.CompleteRun(true)
	assert.Equal(t, 0, trainer.FailureStreak())
}

func TestAdapterRegistryRegisterAndLatest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry", "adapter_registry.json")
	registry, err := NewAdapterRegistry(path)
	require.NoError(t, err)

	empty, err := registry.LatestForAgent("technical_agent", StageChampion)
	require.NoError(t, err)
	assert.Nil(t, empty)

	_, err = registry.Register("technical_agent", "0.1.0", "dataset_v1", "run-1", StageChampion)
	require.NoError(t, err)
	_, err = registry.Register("technical_agent", "0.1.1", "dataset_v2", "run-2", StageChampion)
	require.NoError(t, err)
	_, err = registry.Register("technical_agent", "0.2.0", "dataset_v3", "run-3", StageCandidate)
	require.NoError(t, err)

	latest, err := registry.LatestForAgent("technical_agent", StageChampion)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "0.1.1", latest.AdapterVersion)
	assert.Equal(t, "dataset_v2", latest.DatasetVersion)

	// Records survive reopening the same file.
	reopened, err := NewAdapterRegistry(path)
	require.NoError(t, err)
	again, err := reopened.LatestForAgent("technical_agent", StageCandidate)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "run-3", again.RunID)
}

func TestAdapterRegistryNextVersion(t *testing.T) {
	registry, err := NewAdapterRegistry(filepath.Join(t.TempDir(), "adapter_registry.json"))
	require.NoError(t, err)

	version, err := registry.NextVersion("research_agent")
	require.NoError(t, err)
	assert.Equal(t, "0.1.0", version, "agents without a champion start at 0.1.0")

	_, err = registry.Register("research_agent", version, "dataset_v1", "run-1", StageChampion)
	require.NoError(t, err)

	version, err = registry.NextVersion("research_agent")
	require.NoError(t, err)
	assert.Equal(t, "0.1.1", version)
}

func TestLocalFineTunerCreatesArtifact(t *testing.T) {
	dir := t.TempDir()
	tuner := NewLocalFineTuner(DefaultFineTuneConfig(), zerolog.Nop())

	path, err := tuner.Run(context.Background(), FineTuneRequest{
		AgentID:    "technical_agent",
		BaseModel:  "llama-3.1-8b",
		TrainJSONL: filepath.Join(dir, "train.jsonl"),
		OutputDir:  dir,
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "technical_agent_adapter"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLocalFineTunerValidatesRequest(t *testing.T) {
	tuner := NewLocalFineTuner(DefaultFineTuneConfig(), zerolog.Nop())

	_, err := tuner.Run(context.Background(), FineTuneRequest{AgentID: "technical_agent"})
	require.Error(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tuner.Run(cancelled, FineTuneRequest{AgentID: "a", BaseModel: "b", OutputDir: t.TempDir()})
	require.ErrorIs(t, err, context.Canceled)
}
