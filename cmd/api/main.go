// API gateway: REST endpoints over the decision log and adapter
// registry, plus a WebSocket stream fed by the event bus.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradecrew/tradecrew/internal/api"
	"github.com/tradecrew/tradecrew/internal/bus"
	"github.com/tradecrew/tradecrew/internal/config"
	"github.com/tradecrew/tradecrew/internal/db"
	"github.com/tradecrew/tradecrew/internal/models"
	"github.com/tradecrew/tradecrew/internal/training"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
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

	trainer := training.NewTrainerAgent(training.TrainerConfig{
		MinOutcomes:        cfg.Training.MinOutcomeRecords,
		FailureStreakPause: cfg.Training.FailureStreakPause,
	}, log.Logger)

	server := api.NewServer(api.Config{
		Host:     cfg.API.Host,
		Port:     cfg.API.Port,
		Mode:     cfg.Trading.Mode,
		Version:  cfg.App.Version,
		Store:    store,
		Trainer:  trainer,
		Registry: registry,
	})

	eventBus, err := bus.New(bus.Config{
		NATSURL: cfg.NATS.URL,
		Prefix:  cfg.NATS.Prefix,
		Name:    "tradecrew-api",
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer eventBus.Close()

	decisionSub, err := eventBus.SubscribeDecisions(func(decision models.TradeDecision) {
		if err := server.Hub().BroadcastDecision(decision); err != nil {
			log.Error().Err(err).Msg("Failed to broadcast decision")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to subscribe to decisions")
	}
	defer decisionSub.Unsubscribe()

	promotionSub, err := eventBus.SubscribePromotions(func(event bus.PromotionEvent) {
		if err := server.Hub().Broadcast(api.MessageTypePromotion, event); err != nil {
			log.Error().Err(err).Msg("Failed to broadcast promotion")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to subscribe to promotions")
	}
	defer promotionSub.Unsubscribe()

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("API server error")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API server shutdown failed")
	}
	log.Info().Msg("API gateway stopped")
}
