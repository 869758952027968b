package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/tradecrew/tradecrew/internal/metrics"
	"github.com/tradecrew/tradecrew/internal/models"
)

// Config holds market data client tunables
type Config struct {
	MaxProviderFailures uint32        // consecutive failures before the circuit opens
	CircuitCooldown     time.Duration // how long an open circuit skips the provider
	ProviderTimeout     time.Duration // per-call fetch timeout
	IntradayMaxAge      time.Duration // freshness bound for 1m..4h timeframes
	SwingMaxAge         time.Duration // freshness bound for daily timeframes
}

func (c Config) withDefaults() Config {
	if c.MaxProviderFailures == 0 {
		c.MaxProviderFailures = 3
	}
	if c.CircuitCooldown == 0 {
		c.CircuitCooldown = 120 * time.Second
	}
	if c.ProviderTimeout == 0 {
		c.ProviderTimeout = 20 * time.Second
	}
	if c.IntradayMaxAge == 0 {
		c.IntradayMaxAge = 15 * time.Minute
	}
	if c.SwingMaxAge == 0 {
		c.SwingMaxAge = 24 * time.Hour
	}
	return c
}

// Client aggregates OHLCV across providers with graceful degradation.
// Provider order encodes policy preference; the client does not cache
// across calls.
type Client struct {
	providers []Provider
	breakers  map[string]*gobreaker.CircuitBreaker
	cfg       Config
	now       func() time.Time
	log       zerolog.Logger
}

// NewClient creates a market data client over the given providers
func NewClient(cfg Config, log zerolog.Logger, providers ...Provider) *Client {
	cfg = cfg.withDefaults()
	clientLog := log.With().Str("component", "market_client").Logger()

	breakers := make(map[string]*gobreaker.CircuitBreaker, len(providers))
	for _, p := range providers {
		name := p.Name()
		breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: cfg.CircuitCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.MaxProviderFailures
			},
			// Caller cancellation and source-terminal errors do not
			// count against the breaker.
			IsSuccessful: func(err error) bool {
				if err == nil || errors.Is(err, context.Canceled) {
					return true
				}
				return !IsRetryable(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				open := 0.0
				if to == gobreaker.StateOpen {
					open = 1.0
				}
				metrics.ProviderCircuitOpen.WithLabelValues(name).Set(open)
				clientLog.Warn().
					Str("provider", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Provider circuit state changed")
			},
		})
	}

	return &Client{
		providers: providers,
		breakers:  breakers,
		cfg:       cfg,
		now:       time.Now,
		log:       clientLog,
	}
}

// GetTradeInputs fans out across providers supporting the asset class,
// in declared order, and aggregates at least minSources fresh snapshots
// into consensus pricing.
func (c *Client) GetTradeInputs(ctx context.Context, asset string, timeframe models.Timeframe, limit int, assetClass models.AssetClass, minSources int) (*TradeInputs, error) {
	if minSources < 1 {
		minSources = 1
	}

	var candidates []Provider
	for _, p := range c.providers {
		if supportsClass(p, assetClass) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no providers support asset class %q", assetClass)
	}

	var successes []*MarketSnapshot
	var reasons []string
	for _, p := range candidates {
		snapshot, err := c.fetchOne(ctx, p, asset, timeframe, limit)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			reasons = append(reasons, fmt.Sprintf("%s: %v", p.Name(), err))
			continue
		}
		successes = append(successes, snapshot)
	}

	if len(successes) < minSources {
		return nil, fmt.Errorf("only %d of %d required sources for %s succeeded: %s",
			len(successes), minSources, asset, strings.Join(reasons, "; "))
	}

	inputs := &TradeInputs{
		Primary:   successes[0],
		Secondary: successes[1:],
	}

	closes := make([]float64, 0, len(successes))
	for _, s := range successes {
		if latest, ok := s.Latest(); ok {
			closes = append(closes, latest.Close)
		}
	}
	if len(closes) > 0 {
		var sum, minClose, maxClose float64
		minClose, maxClose = closes[0], closes[0]
		for _, v := range closes {
			sum += v
			if v < minClose {
				minClose = v
			}
			if v > maxClose {
				maxClose = v
			}
		}
		inputs.ConsensusClose = sum / float64(len(closes))
		if len(closes) >= 2 && inputs.ConsensusClose != 0 {
			inputs.PriceSpreadBps = ((maxClose - minClose) / inputs.ConsensusClose) * 10000
		}
		metrics.ConsensusSpreadBps.Set(inputs.PriceSpreadBps)
	}

	c.log.Debug().
		Str("asset", asset).
		Str("primary", inputs.Primary.Source).
		Int("sources", len(successes)).
		Float64("consensus_close", inputs.ConsensusClose).
		Float64("spread_bps", inputs.PriceSpreadBps).
		Msg("Aggregated trade inputs")

	return inputs, nil
}

// GetOHLCV fetches a single fresh snapshot from the preferred available source
func (c *Client) GetOHLCV(ctx context.Context, asset string, timeframe models.Timeframe, limit int, assetClass models.AssetClass) (*MarketSnapshot, error) {
	inputs, err := c.GetTradeInputs(ctx, asset, timeframe, limit, assetClass, 1)
	if err != nil {
		return nil, err
	}
	return inputs.Primary, nil
}

func (c *Client) fetchOne(ctx context.Context, p Provider, asset string, timeframe models.Timeframe, limit int) (*MarketSnapshot, error) {
	breaker := c.breakers[p.Name()]
	result, err := breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.ProviderTimeout)
		defer cancel()

		snapshot, err := p.FetchOHLCV(callCtx, asset, timeframe, limit)
		if err != nil {
			return nil, err
		}
		// Stale snapshots count as retryable failures.
		if err := c.checkFreshness(snapshot, timeframe); err != nil {
			return nil, err
		}
		return snapshot, nil
	})
	if err != nil {
		outcome := metrics.FetchOutcomeFailure
		switch {
		case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
			outcome = metrics.FetchOutcomeCircuitOpen
			err = fmt.Errorf("circuit_open")
		case strings.Contains(err.Error(), "stale"):
			outcome = metrics.FetchOutcomeStale
		}
		metrics.ProviderFetches.WithLabelValues(p.Name(), outcome).Inc()
		return nil, err
	}

	metrics.ProviderFetches.WithLabelValues(p.Name(), metrics.FetchOutcomeSuccess).Inc()
	return result.(*MarketSnapshot), nil
}

func (c *Client) checkFreshness(snapshot *MarketSnapshot, timeframe models.Timeframe) error {
	latest, ok := snapshot.Latest()
	if !ok {
		return NewRetryableError(snapshot.Source, "stale snapshot: no candles", nil)
	}
	maxAge := c.cfg.SwingMaxAge
	if timeframe.Intraday() {
		maxAge = c.cfg.IntradayMaxAge
	}
	if age := c.now().Sub(latest.Timestamp); age > maxAge {
		return NewRetryableError(snapshot.Source,
			fmt.Sprintf("stale snapshot: latest candle age %s exceeds %s", age.Round(time.Second), maxAge), nil)
	}
	return nil
}
