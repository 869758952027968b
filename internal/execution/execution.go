// Package execution turns approved trade decisions into broker orders
// with exponential backoff retry.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradecrew/tradecrew/internal/exchange"
	"github.com/tradecrew/tradecrew/internal/metrics"
	"github.com/tradecrew/tradecrew/internal/models"
)

// Config holds execution agent tunables
type Config struct {
	LiveTrading       bool
	MaxRetries        int           // order placement attempts before giving up
	InitialRetryDelay time.Duration // doubled after every retryable failure
}

// DefaultConfig returns the production execution settings
func DefaultConfig() Config {
	return Config{
		LiveTrading:       false,
		MaxRetries:        3,
		InitialRetryDelay: time.Second,
	}
}

// ExecutionResult is the terminal outcome for a decision
type ExecutionResult struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id,omitempty"`
	Reason  string `json:"reason"`
}

// Agent places orders only after successful risk approval
type Agent struct {
	cfg     Config
	manager exchange.OrderManager
	sleep   func(ctx context.Context, d time.Duration) error
	log     zerolog.Logger
}

// NewAgent creates an execution agent over the given order manager
func NewAgent(cfg Config, manager exchange.OrderManager, log zerolog.Logger) *Agent {
	return &Agent{
		cfg:     cfg,
		manager: manager,
		sleep:   sleepCtx,
		log:     log.With().Str("component", "execution_agent").Logger(),
	}
}

// Execute places the order for an approved decision, retrying transient
// broker failures with doubling delays. Cancellation is honored between
// attempts but never mid-submission.
func (a *Agent) Execute(ctx context.Context, decision models.TradeDecision) ExecutionResult {
	if !decision.Approved {
		return ExecutionResult{Success: false, Reason: "Risk not approved."}
	}
	if !decision.Direction.Executable() {
		return ExecutionResult{Success: false, Reason: "No executable direction."}
	}
	if !a.cfg.LiveTrading {
		a.log.Info().
			Str("task_id", decision.TaskID).
			Str("asset", decision.Asset).
			Msg("Paper order submitted")
		return ExecutionResult{
			Success: true,
			OrderID: fmt.Sprintf("paper-%s", decision.TaskID),
			Reason:  "Paper order simulated.",
		}
	}

	req := exchange.OrderRequest{
		Symbol:   decision.Asset,
		Side:     decision.Direction,
		Quantity: decision.PositionSize,
		Type:     exchange.OrderTypeMarket,
		Exchange: a.manager.Name(),
	}

	delay := a.cfg.InitialRetryDelay
	for attempt := 1; attempt <= a.cfg.MaxRetries; attempt++ {
		resp, err := a.manager.PlaceOrder(ctx, req)
		if err != nil {
			// Manager errors are treated as retryable.
			resp = exchange.OrderResponse{Reason: err.Error(), Retryable: true}
		}

		if resp.Accepted {
			metrics.OrdersSubmitted.WithLabelValues(a.manager.Name(), "accepted").Inc()
			a.log.Info().
				Str("task_id", decision.TaskID).
				Str("order_id", resp.OrderID).
				Int("attempt", attempt).
				Msg("Live order placed")
			return ExecutionResult{Success: true, OrderID: resp.OrderID, Reason: resp.Reason}
		}
		if !resp.Retryable {
			metrics.OrdersSubmitted.WithLabelValues(a.manager.Name(), "rejected").Inc()
			a.log.Error().
				Str("task_id", decision.TaskID).
				Str("reason", resp.Reason).
				Int("attempt", attempt).
				Msg("Live order rejected")
			return ExecutionResult{Success: false, Reason: resp.Reason}
		}
		if attempt == a.cfg.MaxRetries {
			break
		}

		a.log.Warn().
			Str("task_id", decision.TaskID).
			Str("reason", resp.Reason).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("Order attempt failed, retrying")
		metrics.OrderRetries.Inc()
		if err := a.sleep(ctx, delay); err != nil {
			return ExecutionResult{Success: false, Reason: fmt.Sprintf("cancelled during retry backoff: %v", err)}
		}
		delay *= 2
	}

	metrics.OrdersSubmitted.WithLabelValues(a.manager.Name(), "exhausted").Inc()
	return ExecutionResult{Success: false, Reason: "Exhausted retries."}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
