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

const yahooSource = "yahoo"

// Yahoo has no native 4h interval; 4h requests fetch 60m bars and
// aggregate them client-side.
var yahooIntervals = map[models.Timeframe]string{
	models.Timeframe1m:  "1m",
	models.Timeframe5m:  "5m",
	models.Timeframe15m: "15m",
	models.Timeframe1h:  "1h",
	models.Timeframe4h:  "1h",
	models.Timeframe1d:  "1d",
}

var yahooRanges = map[models.Timeframe]string{
	models.Timeframe1m:  "1d",
	models.Timeframe5m:  "5d",
	models.Timeframe15m: "5d",
	models.Timeframe1h:  "1mo",
	models.Timeframe4h:  "3mo",
	models.Timeframe1d:  "1y",
}

// YahooProvider fetches bars from the Yahoo Finance chart endpoint.
// It needs no credentials and serves as the keyless fallback source.
type YahooProvider struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewYahooProvider creates a Yahoo Finance market data provider
func NewYahooProvider(baseURL string) *YahooProvider {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	return &YahooProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

// Name returns the source identifier
func (p *YahooProvider) Name() string { return yahooSource }

// SupportedAssetClasses returns the classes the chart endpoint serves
func (p *YahooProvider) SupportedAssetClasses() []models.AssetClass {
	return []models.AssetClass{models.AssetClassEquity, models.AssetClassETF}
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchOHLCV retrieves candles from the Yahoo chart endpoint
func (p *YahooProvider) FetchOHLCV(ctx context.Context, asset string, timeframe models.Timeframe, limit int) (*MarketSnapshot, error) {
	interval, ok := yahooIntervals[timeframe]
	if !ok {
		return nil, NewTerminalError(yahooSource, fmt.Sprintf("unsupported timeframe %q", timeframe))
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s", p.baseURL, url.PathEscape(asset))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, NewTerminalError(yahooSource, fmt.Sprintf("failed to build request: %v", err))
	}
	q := req.URL.Query()
	q.Set("interval", interval)
	q.Set("range", yahooRanges[timeframe])
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", "tradecrew/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewRetryableError(yahooSource, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, NewRetryableError(yahooSource, fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
		}
		return nil, NewTerminalError(yahooSource, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewRetryableError(yahooSource, "failed to read response", err)
	}

	var parsed yahooChartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, NewRetryableError(yahooSource, "failed to parse response", err)
	}
	if parsed.Chart.Error != nil {
		return nil, NewRetryableError(yahooSource, fmt.Sprintf("chart error: %s", parsed.Chart.Error.Description), nil)
	}
	if len(parsed.Chart.Result) == 0 || len(parsed.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, NewRetryableError(yahooSource, "empty chart result", nil)
	}

	result := parsed.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	candles := make([]models.OHLCVCandle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) || i >= len(quote.Volume) {
			break
		}
		// Yahoo pads in-progress and halted rows with nulls; skip them.
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil || quote.Close[i] == nil || quote.Volume[i] == nil {
			continue
		}
		candles = append(candles, models.OHLCVCandle{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      *quote.Open[i],
			High:      *quote.High[i],
			Low:       *quote.Low[i],
			Close:     *quote.Close[i],
			Volume:    *quote.Volume[i],
		})
	}
	if timeframe == models.Timeframe4h {
		candles = aggregateFourHour(candles)
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	return &MarketSnapshot{
		Source:    yahooSource,
		Asset:     asset,
		Timeframe: timeframe,
		Candles:   candles,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// aggregateFourHour folds consecutive hourly candles into 4h candles
// aligned on four-hour boundaries: open from the first bar, close from
// the last, high/low over the bucket, volumes summed. The trailing
// partial bucket is kept so the latest bar stays current.
func aggregateFourHour(candles []models.OHLCVCandle) []models.OHLCVCandle {
	aggregated := make([]models.OHLCVCandle, 0, len(candles)/4+1)
	for _, c := range candles {
		bucket := c.Timestamp.Truncate(4 * time.Hour)
		if n := len(aggregated); n > 0 && aggregated[n-1].Timestamp.Equal(bucket) {
			cur := &aggregated[n-1]
			if c.High > cur.High {
				cur.High = c.High
			}
			if c.Low < cur.Low {
				cur.Low = c.Low
			}
			cur.Close = c.Close
			cur.Volume += c.Volume
			continue
		}
		aggregated = append(aggregated, models.OHLCVCandle{
			Timestamp: bucket,
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		})
	}
	return aggregated
}
