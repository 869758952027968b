// Trainer service: watches the decision log for enough outcome-labeled
// records, builds temporally-safe datasets, fine-tunes candidate
// adapters, gates them through holdout evaluation and shadow
// deployment, and promotes champions through the adapter registry.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradecrew/tradecrew/internal/agents"
	"github.com/tradecrew/tradecrew/internal/bus"
	"github.com/tradecrew/tradecrew/internal/config"
	"github.com/tradecrew/tradecrew/internal/dataset"
	"github.com/tradecrew/tradecrew/internal/db"
	"github.com/tradecrew/tradecrew/internal/metrics"
	"github.com/tradecrew/tradecrew/internal/models"
	"github.com/tradecrew/tradecrew/internal/notify"
	"github.com/tradecrew/tradecrew/internal/tracking"
	"github.com/tradecrew/tradecrew/internal/training"
)

var trainedAgents = []string{agents.TechnicalAgentID, agents.ResearchAgentID}

func main() {
	configPath := flag.String("config", "", "Path to config file")
	interval := flag.Duration("interval", time.Hour, "Retraining check interval")
	once := flag.Bool("once", false, "Run a single retraining check and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadSecretsFromVault(ctx, cfg, config.GetVaultConfigFromEnv()); err != nil {
		log.Fatal().Err(err).Msg("Failed to load secrets")
	}

	database, err := db.NewWithURL(ctx, cfg.Database.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()
	store := db.NewDecisionStore(database.Pool(), log.Logger)

	registry, err := training.NewAdapterRegistry(cfg.Training.RegistryPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open adapter registry")
	}

	eventBus, err := bus.New(bus.Config{
		NATSURL: cfg.NATS.URL,
		Prefix:  cfg.NATS.Prefix,
		Name:    "tradecrew-trainer",
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer eventBus.Close()

	tracker, err := tracking.NewTracker(tracking.Config{
		RedisURL:      cfg.Redis.GetRedisAddr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer tracker.Close()

	notifier, err := notify.NewNotifier(notify.Config{
		Enabled:  cfg.Telegram.Enabled,
		BotToken: cfg.Telegram.BotToken,
		ChatID:   cfg.Telegram.ChatID,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create notifier")
	}

	pipeline := &pipeline{
		cfg:       cfg,
		store:     store,
		registry:  registry,
		bus:       eventBus,
		tracker:   tracker,
		notifier:  notifier,
		trainer:   training.NewTrainerAgent(trainerConfig(cfg), log.Logger),
		evaluator: training.NewEvaluator(cfg.Training.Seed),
		promoter:  training.NewPromoter(log.Logger),
		fineTuner: training.NewLocalFineTuner(training.DefaultFineTuneConfig(), log.Logger),
	}

	// Outcome labels arrive over the bus from trade reconciliation and
	// are written once into the decision log.
	outcomeSub, err := eventBus.SubscribeOutcomes(func(event bus.OutcomeEvent) {
		applied, err := store.SetOutcome(context.Background(), event.DecisionID, event.PnL, event.LatencyDays, event.Profitable)
		if err != nil {
			log.Error().Err(err).Str("decision_id", event.DecisionID.String()).Msg("Failed to apply outcome")
			return
		}
		if !applied {
			log.Debug().Str("decision_id", event.DecisionID.String()).Msg("Outcome already labeled, skipped")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to subscribe to outcomes")
	}
	defer outcomeSub.Unsubscribe()

	log.Info().
		Dur("interval", *interval).
		Bool("once", *once).
		Msg("Trainer service started")

	if *once {
		pipeline.tick(ctx)
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Trainer service stopped")
			return
		case <-ticker.C:
			pipeline.tick(ctx)
		}
	}
}

type pipeline struct {
	cfg       *config.Config
	store     *db.DecisionStore
	registry  *training.AdapterRegistry
	bus       *bus.EventBus
	tracker   *tracking.Tracker
	notifier  *notify.Notifier
	trainer   *training.TrainerAgent
	evaluator *training.Evaluator
	promoter  *training.Promoter
	fineTuner training.FineTuner
}

// tick resolves any expired shadow windows first, then checks whether a
// new training run should start.
func (p *pipeline) tick(ctx context.Context) {
	for _, agentID := range trainedAgents {
		if err := p.resolveShadow(ctx, agentID); err != nil {
			log.Error().Err(err).Str("agent_id", agentID).Msg("Shadow resolution failed")
		}
	}

	count, err := p.store.CountOutcomeReady(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count outcome-ready records")
		return
	}
	if !p.trainer.ShouldTrigger(count) {
		log.Debug().Int("outcome_records", count).Msg("Retraining not triggered")
		return
	}

	records, err := p.store.ListEligible(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list eligible records")
		return
	}

	for _, agentID := range trainedAgents {
		if err := p.trainAgent(ctx, agentID, records); err != nil {
			log.Error().Err(err).Str("agent_id", agentID).Msg("Training run failed")
		}
	}
}

// trainAgent runs one full candidate pipeline for a single agent:
// dataset build, fine-tune, holdout evaluation, shadow registration.
func (p *pipeline) trainAgent(ctx context.Context, agentID string, allRecords []models.DecisionLogRecord) error {
	// A pending shadow adapter must resolve before the next candidate.
	pending, err := p.registry.LatestForAgent(agentID, training.StageShadow)
	if err != nil {
		return err
	}
	if pending != nil {
		log.Info().Str("agent_id", agentID).Msg("Shadow deployment pending, skipping training")
		return nil
	}

	var records []models.DecisionLogRecord
	for _, record := range allRecords {
		if record.AgentID == agentID {
			records = append(records, record)
		}
	}
	if len(records) < p.cfg.Training.MinOutcomeRecords {
		log.Debug().
			Str("agent_id", agentID).
			Int("records", len(records)).
			Msg("Not enough labeled records for agent")
		return nil
	}

	if !p.trainer.BeginRun() {
		return nil
	}
	succeeded := false
	defer func() {
		p.trainer.CompleteRun(succeeded)
		if !succeeded {
			p.notifier.NotifyTrainingFailure(agentID, p.trainer.FailureStreak())
		}
	}()

	champion, err := p.registry.LatestForAgent(agentID, training.StageChampion)
	if err != nil {
		return err
	}
	championDatasetVersion := ""
	if champion != nil {
		championDatasetVersion = champion.DatasetVersion
	}
	datasetVersion := nextDatasetVersion(championDatasetVersion)

	builder := dataset.NewBuilder(
		filepath.Join(p.cfg.Training.DatasetOutputDir, agentID),
		datasetConfig(p.cfg),
		log.Logger,
		dataset.SourceDiversityContext{},
		dataset.TemporalRegimeContext{},
	)
	built, err := builder.Build(records, datasetVersion)
	if err != nil {
		return fmt.Errorf("dataset build: %w", err)
	}
	metrics.RecordDatasetSplits(agentID, built.SplitCounts)

	adapterVersion, err := p.registry.NextVersion(agentID)
	if err != nil {
		return err
	}

	runID := fmt.Sprintf("%s-%s-%d", agentID, datasetVersion, time.Now().UTC().Unix())
	artifact, err := p.fineTuner.Run(ctx, training.FineTuneRequest{
		AgentID:         agentID,
		BaseModel:       p.cfg.Training.BaseModel,
		TrainJSONL:      built.TrainPath,
		ValidationJSONL: built.ValidationPath,
		OutputDir:       filepath.Join(p.cfg.Training.DatasetOutputDir, agentID, "adapters", adapterVersion),
	})
	if err != nil {
		return fmt.Errorf("fine-tune: %w", err)
	}

	candidateMetrics, err := p.evaluator.ComputeMetrics(holdoutPredictions(records, p.cfg.Trading.MinConfidence))
	if err != nil {
		return fmt.Errorf("holdout evaluation: %w", err)
	}
	championMetrics := p.loadChampionMetrics(agentID)

	decision := p.evaluator.EvaluatePromotion(championMetrics, candidateMetrics, championDatasetVersion, datasetVersion)
	if !decision.Approved {
		log.Info().
			Str("agent_id", agentID).
			Str("adapter_version", adapterVersion).
			Strs("reasons", decision.Reasons).
			Msg("Candidate rejected at holdout gate")
		// The run itself succeeded; the candidate just did not qualify.
		succeeded = true
		return nil
	}

	if _, err := p.registry.Register(agentID, adapterVersion, datasetVersion, runID, training.StageShadow); err != nil {
		return err
	}
	if err := p.saveCandidateMetrics(agentID, adapterVersion, candidateMetrics); err != nil {
		return err
	}

	start, end := p.promoter.BeginShadowWindow()
	log.Info().
		Str("agent_id", agentID).
		Str("adapter_version", adapterVersion).
		Str("artifact", artifact).
		Time("shadow_start", start).
		Time("shadow_end", end).
		Msg("Candidate entered shadow deployment")

	succeeded = true
	return nil
}

// resolveShadow finishes a shadow deployment whose window has elapsed
func (p *pipeline) resolveShadow(ctx context.Context, agentID string) error {
	shadow, err := p.registry.LatestForAgent(agentID, training.StageShadow)
	if err != nil || shadow == nil {
		return err
	}

	startedAt, err := time.Parse(time.RFC3339Nano, shadow.CreatedAt)
	if err != nil {
		return fmt.Errorf("invalid shadow record timestamp: %w", err)
	}
	endedAt := startedAt.Add(training.ShadowDuration)
	if time.Now().UTC().Before(endedAt) {
		return nil
	}

	result, err := p.tracker.Result(ctx, agentID, shadow.RunID, startedAt, endedAt)
	if err != nil {
		return err
	}

	// The holdout gate approved this candidate when it entered shadow.
	evaluation := models.PromotionDecision{Approved: true}
	outcome := p.promoter.Resolve(agentID, evaluation, result)

	stage := training.StageRetired
	if outcome.Promoted {
		stage = training.StageChampion
	}
	if _, err := p.registry.Register(agentID, shadow.AdapterVersion, shadow.DatasetVersion, shadow.RunID, stage); err != nil {
		return err
	}
	if outcome.Promoted {
		if err := p.promoteCandidateMetrics(agentID, shadow.AdapterVersion); err != nil {
			return err
		}
	}
	if outcome.ResetFailureStreak {
		p.trainer.ResetFailureStreak()
	}

	event := bus.PromotionEvent{
		AgentID:        agentID,
		AdapterVersion: shadow.AdapterVersion,
		DatasetVersion: shadow.DatasetVersion,
	}
	if err := p.bus.PublishPromotion(ctx, event, outcome); err != nil {
		log.Error().Err(err).Msg("Failed to publish promotion")
	}
	p.notifier.NotifyPromotion(agentID, shadow.AdapterVersion, outcome)

	if err := p.tracker.Reset(ctx, agentID, shadow.RunID); err != nil {
		log.Warn().Err(err).Msg("Failed to reset shadow counters")
	}
	return nil
}

// holdoutPredictions replays logged signals against their realized
// outcomes. A model inference backend can replace this predictor once
// adapters are served at evaluation time.
func holdoutPredictions(records []models.DecisionLogRecord, minConfidence float64) []training.HoldoutPrediction {
	predictions := make([]training.HoldoutPrediction, 0, len(records))
	for _, record := range records {
		if !record.HasOutcome() {
			continue
		}
		direction := record.SignalValue.Head().Direction
		predictions = append(predictions, training.HoldoutPrediction{
			Regime:              record.MarketRegime,
			PredictedProfitable: direction.Executable() && record.Confidence >= minConfidence,
			ActualProfitable:    *record.TradeWasProfitable,
			Confidence:          record.Confidence,
			Abstained:           !direction.Executable(),
		})
	}
	return predictions
}

// metricsPath stores per-agent champion metrics next to the registry
func (p *pipeline) metricsPath(agentID, suffix string) string {
	dir := filepath.Dir(p.cfg.Training.RegistryPath)
	return filepath.Join(dir, fmt.Sprintf("metrics_%s%s.json", agentID, suffix))
}

func (p *pipeline) loadChampionMetrics(agentID string) models.EvaluationMetrics {
	var metrics models.EvaluationMetrics
	data, err := os.ReadFile(p.metricsPath(agentID, ""))
	if err != nil {
		// First run: no champion baseline yet.
		return metrics
	}
	if err := json.Unmarshal(data, &metrics); err != nil {
		log.Warn().Err(err).Str("agent_id", agentID).Msg("Unreadable champion metrics, using zero baseline")
	}
	return metrics
}

func (p *pipeline) saveCandidateMetrics(agentID, adapterVersion string, metrics models.EvaluationMetrics) error {
	data, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p.metricsPath(agentID, "_"+adapterVersion), append(data, '\n'), 0o644)
}

// promoteCandidateMetrics makes the candidate metrics the new champion
// baseline
func (p *pipeline) promoteCandidateMetrics(agentID, adapterVersion string) error {
	candidate := p.metricsPath(agentID, "_"+adapterVersion)
	data, err := os.ReadFile(candidate)
	if err != nil {
		return err
	}
	if err := os.WriteFile(p.metricsPath(agentID, ""), data, 0o644); err != nil {
		return err
	}
	return os.Remove(candidate)
}

var datasetVersionDigits = regexp.MustCompile(`(\d+)`)

// nextDatasetVersion increments the numeric component of the previous
// dataset version; a missing baseline starts at v1.
func nextDatasetVersion(previous string) string {
	match := datasetVersionDigits.FindString(previous)
	if match == "" {
		return "v1"
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return "v1"
	}
	return fmt.Sprintf("v%d", n+1)
}

func trainerConfig(cfg *config.Config) training.TrainerConfig {
	return training.TrainerConfig{
		MinOutcomes:        cfg.Training.MinOutcomeRecords,
		FailureStreakPause: cfg.Training.FailureStreakPause,
	}
}

func datasetConfig(cfg *config.Config) dataset.Config {
	c := dataset.DefaultConfig()
	c.MinOutcomeRecords = cfg.Training.MinOutcomeRecords
	c.ReplayRatio = cfg.Training.ReplayRatio
	c.MinRegimeRatio = cfg.Training.MinRegimeRatio
	c.Seed = cfg.Training.Seed
	return c
}
