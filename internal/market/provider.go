// Package market aggregates OHLCV data from multiple providers with
// freshness gating, consensus pricing, and per-provider circuit breaking.
package market

import (
	"context"
	"time"

	"github.com/tradecrew/tradecrew/internal/models"
)

// Provider is the contract every market data source implements
type Provider interface {
	// Name returns the stable source identifier
	Name() string

	// SupportedAssetClasses returns the asset classes this source can serve
	SupportedAssetClasses() []models.AssetClass

	// FetchOHLCV retrieves up to limit candles for the asset and timeframe.
	// Failures are reported as *DataSourceError.
	FetchOHLCV(ctx context.Context, asset string, timeframe models.Timeframe, limit int) (*MarketSnapshot, error)
}

// MarketSnapshot is a single provider's view of an asset
type MarketSnapshot struct {
	Source    string               `json:"source"`
	Asset     string               `json:"asset"`
	Timeframe models.Timeframe     `json:"timeframe"`
	Candles   []models.OHLCVCandle `json:"candles"`
	FetchedAt time.Time            `json:"fetched_at"`
}

// Latest returns the most recent candle, or false when the snapshot is empty
func (s *MarketSnapshot) Latest() (models.OHLCVCandle, bool) {
	if len(s.Candles) == 0 {
		return models.OHLCVCandle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// TradeInputs is the aggregated multi-source fetch result
type TradeInputs struct {
	Primary        *MarketSnapshot   `json:"primary"`
	Secondary      []*MarketSnapshot `json:"secondary"`
	ConsensusClose float64           `json:"consensus_close"`
	PriceSpreadBps float64           `json:"price_spread_bps"`
}

func supportsClass(p Provider, class models.AssetClass) bool {
	for _, c := range p.SupportedAssetClasses() {
		if c == class {
			return true
		}
	}
	return false
}
