// Trading coordinator service: fetches market data, runs the signal
// agents, applies the risk veto, and routes approved decisions to
// execution while logging every signal for retraining.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tradecrew/tradecrew/internal/agents"
	"github.com/tradecrew/tradecrew/internal/bus"
	"github.com/tradecrew/tradecrew/internal/config"
	"github.com/tradecrew/tradecrew/internal/coordinator"
	"github.com/tradecrew/tradecrew/internal/db"
	"github.com/tradecrew/tradecrew/internal/exchange"
	"github.com/tradecrew/tradecrew/internal/execution"
	"github.com/tradecrew/tradecrew/internal/market"
	"github.com/tradecrew/tradecrew/internal/metrics"
	"github.com/tradecrew/tradecrew/internal/models"
	"github.com/tradecrew/tradecrew/internal/notify"
	"github.com/tradecrew/tradecrew/internal/regime"
	"github.com/tradecrew/tradecrew/internal/risk"
	"github.com/tradecrew/tradecrew/internal/tracking"
	"github.com/tradecrew/tradecrew/internal/training"
)

const candleLimit = 100

func main() {
	configPath := flag.String("config", "", "Path to config file")
	interval := flag.Duration("interval", time.Minute, "Trading loop interval")
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

	eventBus, err := bus.New(bus.Config{
		NATSURL: cfg.NATS.URL,
		Prefix:  cfg.NATS.Prefix,
		Name:    "tradecrew-coordinator",
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer eventBus.Close()

	notifier, err := notify.NewNotifier(notify.Config{
		Enabled:  cfg.Telegram.Enabled,
		BotToken: cfg.Telegram.BotToken,
		ChatID:   cfg.Telegram.ChatID,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create notifier")
	}

	marketClient := market.NewClient(market.Config{
		MaxProviderFailures: uint32(cfg.Market.MaxProviderFailures),
		CircuitCooldown:     cfg.Market.CircuitCooldown(),
		ProviderTimeout:     cfg.Market.ProviderTimeout(),
		IntradayMaxAge:      cfg.Market.IntradayMaxAge(),
		SwingMaxAge:         cfg.Market.SwingMaxAge(),
	}, log.Logger, buildProviders(cfg)...)

	svc := &service{
		cfg:         cfg,
		store:       store,
		bus:         eventBus,
		notifier:    notifier,
		market:      marketClient,
		detector:    regime.NewHeuristicDetector(log.Logger),
		technical:   agents.NewTechnicalAgent(championVersion(cfg, agents.TechnicalAgentID), log.Logger),
		research:    agents.NewResearchAgent(championVersion(cfg, agents.ResearchAgentID), log.Logger),
		riskAgent:   risk.NewAgent(riskLimits(cfg), log.Logger),
		coordinator: coordinator.New(defaultWeights(), coordinatorConfig(cfg), log.Logger),
		execution:   execution.NewAgent(executionConfig(cfg), orderManager(cfg), log.Logger),
	}
	svc.setupShadow(cfg)

	metricsServer := metrics.NewServer(cfg.Monitoring.PrometheusPort, log.Logger)
	if cfg.Monitoring.EnableMetrics {
		if err := metricsServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start metrics server")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.run(gctx, *interval)
	})

	log.Info().
		Str("mode", cfg.Trading.Mode).
		Strs("assets", cfg.Trading.Assets).
		Dur("interval", *interval).
		Msg("Coordinator service started")

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("Coordinator service stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if cfg.Monitoring.EnableMetrics {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown failed")
		}
	}
	log.Info().Msg("Coordinator service stopped")
}

type service struct {
	cfg         *config.Config
	store       *db.DecisionStore
	bus         *bus.EventBus
	notifier    *notify.Notifier
	market      *market.Client
	detector    *regime.HeuristicDetector
	technical   *agents.TechnicalAgent
	research    *agents.ResearchAgent
	riskAgent   *risk.Agent
	coordinator *coordinator.Coordinator
	execution   *execution.Agent

	// Shadow deployment comparison, active only while a candidate
	// adapter is in its shadow window.
	tracker         *tracking.Tracker
	shadowTechnical *agents.TechnicalAgent
	shadowRunID     string
}

// setupShadow enables champion/candidate comparison when a shadow
// adapter is registered for the technical agent.
func (s *service) setupShadow(cfg *config.Config) {
	registry, err := training.NewAdapterRegistry(cfg.Training.RegistryPath)
	if err != nil {
		log.Warn().Err(err).Msg("Adapter registry unavailable, shadow tracking disabled")
		return
	}
	shadow, err := registry.LatestForAgent(agents.TechnicalAgentID, training.StageShadow)
	if err != nil || shadow == nil {
		return
	}

	tracker, err := tracking.NewTracker(tracking.Config{
		RedisURL:      cfg.Redis.GetRedisAddr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	}, log.Logger)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, shadow tracking disabled")
		return
	}

	s.tracker = tracker
	s.shadowTechnical = agents.NewTechnicalAgent(shadow.AdapterVersion, log.Logger)
	s.shadowRunID = shadow.RunID
	log.Info().
		Str("adapter_version", shadow.AdapterVersion).
		Str("run_id", shadow.RunID).
		Msg("Shadow comparison enabled")
}

// run drives the trading loop until the context is cancelled
func (s *service) run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, asset := range s.cfg.Trading.Assets {
				s.runTask(ctx, asset)
			}
		}
	}
}

// runTask executes one full decision cycle for a single asset
func (s *service) runTask(ctx context.Context, asset string) {
	taskID := uuid.NewString()
	class := assetClass(asset)
	taskLog := log.With().Str("task_id", taskID).Str("asset", asset).Logger()

	inputs, err := s.market.GetTradeInputs(ctx, asset, models.Timeframe1h, candleLimit, class, s.cfg.Market.MinSources)
	if err != nil {
		taskLog.Error().Err(err).Msg("Market data unavailable, skipping task")
		return
	}

	currentRegime, err := s.detector.CurrentRegime(inputs.Primary.Candles)
	if err != nil {
		taskLog.Warn().Err(err).Msg("Regime detection failed, assuming mean reverting")
		currentRegime = models.RegimeMeanReverting
	}

	championResp := s.technical.Run(taskID, asset, models.Timeframe1h, inputs.Primary.Candles, currentRegime)
	responses := []models.AgentResponse{
		championResp,
		// Research bundles arrive from the news ingestion pipeline.
		// Without a validated bundle the agent abstains.
		s.research.Run(taskID, nil, currentRegime),
	}

	if s.tracker != nil {
		shadowResp := s.shadowTechnical.Run(taskID, asset, models.Timeframe1h, inputs.Primary.Candles, currentRegime)
		err := s.tracker.RecordComparison(ctx, agents.TechnicalAgentID, s.shadowRunID,
			championResp.Payload.Head().Direction, shadowResp.Payload.Head().Direction)
		if err != nil {
			taskLog.Warn().Err(err).Msg("Shadow comparison not recorded")
		}
	}

	assessment := s.riskAgent.Assess(s.riskContext(inputs))
	decision := s.coordinator.Aggregate(taskID, asset, responses, assessment, currentRegime)

	for _, resp := range responses {
		record, err := models.NewDecisionLogRecord(resp, class)
		if err != nil {
			taskLog.Error().Err(err).Str("agent_id", resp.AgentID).Msg("Failed to build decision record")
			continue
		}
		record.ContributedToTrade = decision.Approved
		if err := s.store.Insert(ctx, record); err != nil {
			taskLog.Error().Err(err).Str("agent_id", resp.AgentID).Msg("Failed to persist decision record")
		}
	}

	if err := s.bus.PublishDecision(ctx, decision, class); err != nil {
		taskLog.Error().Err(err).Msg("Failed to publish decision")
	}

	if !decision.Approved {
		if decision.VetoReason != "" {
			s.notifier.NotifyVeto(decision)
		}
		taskLog.Info().Str("veto_reason", decision.VetoReason).Msg("Decision not approved")
		return
	}

	result := s.execution.Execute(ctx, decision)
	if result.Success {
		s.notifier.NotifyExecution(decision, result.OrderID)
	}
	taskLog.Info().
		Bool("executed", result.Success).
		Str("order_id", result.OrderID).
		Str("reason", result.Reason).
		Msg("Task complete")
}

// riskContext derives the portfolio inputs for the risk gate. Paper
// trading runs against a fixed reference portfolio; live portfolio
// accounting feeds these fields from the exchange.
func (s *service) riskContext(inputs *market.TradeInputs) models.RiskContext {
	const referencePortfolio = 100_000.0
	historyDays := len(inputs.Primary.Candles) / 24
	return models.RiskContext{
		PortfolioValue:        referencePortfolio,
		ProposedPositionValue: referencePortfolio * s.cfg.Trading.DefaultPositionSize,
		InstrumentHistoryDays: historyDays,
		// No calendar feed wired: assume the next major event is a day out.
		MinutesToMajorEvent: 24 * 60,
	}
}

func buildProviders(cfg *config.Config) []market.Provider {
	var providers []market.Provider
	if cfg.Providers.Alpaca.APIKey != "" {
		providers = append(providers, market.NewAlpacaProvider(cfg.Providers.Alpaca.APIKey, cfg.Providers.Alpaca.APISecret, ""))
	}
	providers = append(providers, market.NewYahooProvider(""))

	binance := cfg.Exchanges["binance"]
	providers = append(providers, market.NewBinanceProvider(binance.APIKey, binance.SecretKey))
	return providers
}

// championVersion resolves the active champion adapter for an agent,
// falling back to the base model tag when none has been promoted.
func championVersion(cfg *config.Config, agentID string) string {
	registry, err := training.NewAdapterRegistry(cfg.Training.RegistryPath)
	if err != nil {
		log.Warn().Err(err).Msg("Adapter registry unavailable, using base model")
		return cfg.Training.BaseModel
	}
	champion, err := registry.LatestForAgent(agentID, training.StageChampion)
	if err != nil || champion == nil {
		return cfg.Training.BaseModel
	}
	return champion.AdapterVersion
}

func orderManager(cfg *config.Config) exchange.OrderManager {
	if !cfg.Trading.LiveTrading() {
		return exchange.NewPaperManager("paper", log.Logger)
	}
	creds := cfg.Exchanges[cfg.Trading.Exchange]
	return exchange.NewKrakenManager(creds.APIKey, creds.SecretKey, "", log.Logger)
}

func defaultWeights() map[string]float64 {
	return map[string]float64{
		agents.TechnicalAgentID: 0.6,
		agents.ResearchAgentID:  0.4,
	}
}

func coordinatorConfig(cfg *config.Config) coordinator.Config {
	c := coordinator.DefaultConfig()
	c.SignalTimeout = cfg.Trading.SignalTimeout()
	c.MinConfidence = cfg.Trading.MinConfidence
	c.DefaultPositionSize = cfg.Trading.DefaultPositionSize
	return c
}

func executionConfig(cfg *config.Config) execution.Config {
	return execution.Config{
		LiveTrading:       cfg.Trading.LiveTrading(),
		MaxRetries:        cfg.Trading.MaxRetries,
		InitialRetryDelay: cfg.Trading.InitialRetryDelay(),
	}
}

func riskLimits(cfg *config.Config) risk.Limits {
	return risk.Limits{
		MaxDailyDrawdownPct:       cfg.Risk.MaxDailyDrawdownPct,
		NoTradeEventWindowMinutes: cfg.Risk.NoTradeEventWindowMinutes,
		MinHistoryDays:            cfg.Risk.MinHistoryDays,
		MaxCorrelatedExposurePct:  cfg.Risk.MaxCorrelatedExposurePct,
		MaxPositionPct:            cfg.Risk.MaxPositionPct,
	}
}

// assetClass infers the instrument category from the symbol form:
// pairs quote crypto ("BTC/USD"), bare tickers are equities.
func assetClass(asset string) models.AssetClass {
	if strings.Contains(asset, "/") {
		return models.AssetClassCrypto
	}
	return models.AssetClassEquity
}
