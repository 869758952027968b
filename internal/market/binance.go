package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"

	"github.com/tradecrew/tradecrew/internal/models"
)

const binanceSource = "binance"

var binanceIntervals = map[models.Timeframe]string{
	models.Timeframe1m:  "1m",
	models.Timeframe5m:  "5m",
	models.Timeframe15m: "15m",
	models.Timeframe1h:  "1h",
	models.Timeframe4h:  "4h",
	models.Timeframe1d:  "1d",
}

// klineService abstracts the go-binance klines call for testing
type klineService interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]*binance.Kline, error)
}

type binanceKlines struct {
	client *binance.Client
}

func (s *binanceKlines) Klines(ctx context.Context, symbol, interval string, limit int) ([]*binance.Kline, error) {
	return s.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
}

// BinanceProvider fetches crypto klines through the Binance REST API.
// Assets use BASE/QUOTE form (e.g. "BTC/USDT").
type BinanceProvider struct {
	svc klineService
}

// NewBinanceProvider creates a Binance market data provider. Public kline
// data needs no credentials; keys are accepted for higher rate limits.
func NewBinanceProvider(apiKey, apiSecret string) *BinanceProvider {
	return &BinanceProvider{svc: &binanceKlines{client: binance.NewClient(apiKey, apiSecret)}}
}

// Name returns the source identifier
func (p *BinanceProvider) Name() string { return binanceSource }

// SupportedAssetClasses returns the classes this venue serves
func (p *BinanceProvider) SupportedAssetClasses() []models.AssetClass {
	return []models.AssetClass{models.AssetClassCrypto}
}

// FetchOHLCV retrieves klines for a BASE/QUOTE crypto symbol
func (p *BinanceProvider) FetchOHLCV(ctx context.Context, asset string, timeframe models.Timeframe, limit int) (*MarketSnapshot, error) {
	interval, ok := binanceIntervals[timeframe]
	if !ok {
		return nil, NewTerminalError(binanceSource, fmt.Sprintf("unsupported timeframe %q", timeframe))
	}
	if !strings.Contains(asset, "/") {
		return nil, NewTerminalError(binanceSource, fmt.Sprintf("asset %q is not in BASE/QUOTE form", asset))
	}
	symbol := strings.ToUpper(strings.ReplaceAll(asset, "/", ""))

	klines, err := p.svc.Klines(ctx, symbol, interval, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewRetryableError(binanceSource, "klines request failed", err)
	}

	candles := make([]models.OHLCVCandle, 0, len(klines))
	for _, k := range klines {
		candle, err := klineToCandle(k)
		if err != nil {
			// Reject rows with missing or unparsable fields.
			continue
		}
		candles = append(candles, candle)
	}

	return &MarketSnapshot{
		Source:    binanceSource,
		Asset:     asset,
		Timeframe: timeframe,
		Candles:   candles,
		FetchedAt: time.Now().UTC(),
	}, nil
}

func klineToCandle(k *binance.Kline) (models.OHLCVCandle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return models.OHLCVCandle{}, fmt.Errorf("bad open %q: %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return models.OHLCVCandle{}, fmt.Errorf("bad high %q: %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return models.OHLCVCandle{}, fmt.Errorf("bad low %q: %w", k.Low, err)
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return models.OHLCVCandle{}, fmt.Errorf("bad close %q: %w", k.Close, err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return models.OHLCVCandle{}, fmt.Errorf("bad volume %q: %w", k.Volume, err)
	}
	return models.OHLCVCandle{
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, nil
}
