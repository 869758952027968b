package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/tradecrew/tradecrew/internal/models"
)

const alpacaSource = "alpaca"

var alpacaTimeframes = map[models.Timeframe]string{
	models.Timeframe1m:  "1Min",
	models.Timeframe5m:  "5Min",
	models.Timeframe15m: "15Min",
	models.Timeframe1h:  "1Hour",
	models.Timeframe4h:  "4Hour",
	models.Timeframe1d:  "1Day",
}

// AlpacaProvider fetches equity and ETF bars from the Alpaca data API
type AlpacaProvider struct {
	apiKey     string
	apiSecret  string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewAlpacaProvider creates an Alpaca market data provider
func NewAlpacaProvider(apiKey, apiSecret, baseURL string) *AlpacaProvider {
	if baseURL == "" {
		baseURL = "https://data.alpaca.markets"
	}
	return &AlpacaProvider{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		// Free tier allows 200 requests/minute
		limiter: rate.NewLimiter(rate.Every(300*time.Millisecond), 5),
	}
}

// Name returns the source identifier
func (p *AlpacaProvider) Name() string { return alpacaSource }

// SupportedAssetClasses returns the classes the Alpaca data API serves
func (p *AlpacaProvider) SupportedAssetClasses() []models.AssetClass {
	return []models.AssetClass{models.AssetClassEquity, models.AssetClassETF}
}

type alpacaBar struct {
	Timestamp *time.Time `json:"t"`
	Open      *float64   `json:"o"`
	High      *float64   `json:"h"`
	Low       *float64   `json:"l"`
	Close     *float64   `json:"c"`
	Volume    *float64   `json:"v"`
}

type alpacaBarsResponse struct {
	Bars []alpacaBar `json:"bars"`
}

// FetchOHLCV retrieves bars from the Alpaca bars endpoint
func (p *AlpacaProvider) FetchOHLCV(ctx context.Context, asset string, timeframe models.Timeframe, limit int) (*MarketSnapshot, error) {
	if p.apiKey == "" || p.apiSecret == "" {
		return nil, NewTerminalError(alpacaSource, "missing API credentials")
	}
	tf, ok := alpacaTimeframes[timeframe]
	if !ok {
		return nil, NewTerminalError(alpacaSource, fmt.Sprintf("unsupported timeframe %q", timeframe))
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v2/stocks/%s/bars", p.baseURL, url.PathEscape(asset))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, NewTerminalError(alpacaSource, fmt.Sprintf("failed to build request: %v", err))
	}
	q := req.URL.Query()
	q.Set("timeframe", tf)
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("adjustment", "raw")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("APCA-API-KEY-ID", p.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", p.apiSecret)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewRetryableError(alpacaSource, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, NewTerminalError(alpacaSource, fmt.Sprintf("authentication rejected (HTTP %d)", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, NewRetryableError(alpacaSource, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	default:
		return nil, NewTerminalError(alpacaSource, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewRetryableError(alpacaSource, "failed to read response", err)
	}

	var parsed alpacaBarsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, NewRetryableError(alpacaSource, "failed to parse response", err)
	}

	candles := make([]models.OHLCVCandle, 0, len(parsed.Bars))
	for _, bar := range parsed.Bars {
		// Reject rows carrying any null OHLC/volume field.
		if bar.Timestamp == nil || bar.Open == nil || bar.High == nil || bar.Low == nil || bar.Close == nil || bar.Volume == nil {
			continue
		}
		candles = append(candles, models.OHLCVCandle{
			Timestamp: bar.Timestamp.UTC(),
			Open:      *bar.Open,
			High:      *bar.High,
			Low:       *bar.Low,
			Close:     *bar.Close,
			Volume:    *bar.Volume,
		})
	}

	return &MarketSnapshot{
		Source:    alpacaSource,
		Asset:     asset,
		Timeframe: timeframe,
		Candles:   candles,
		FetchedAt: time.Now().UTC(),
	}, nil
}
