package market

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecrew/tradecrew/internal/models"
)

func TestAlpacaFetchOHLCV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/stocks/SPY/bars", r.URL.Path)
		assert.Equal(t, "1Hour", r.URL.Query().Get("timeframe"))
		assert.Equal(t, "test-key", r.Header.Get("APCA-API-KEY-ID"))
		fmt.Fprint(w, `{"bars":[
			{"t":"2025-06-02T13:00:00Z","o":100,"h":101,"l":99,"c":100.5,"v":5000},
			{"t":"2025-06-02T14:00:00Z","o":100.5,"h":102,"l":100,"c":101.5,"v":6000},
			{"t":"2025-06-02T15:00:00Z","o":null,"h":102,"l":100,"c":101,"v":1000}
		]}`)
	}))
	defer server.Close()

	provider := NewAlpacaProvider("test-key", "test-secret", server.URL)
	snapshot, err := provider.FetchOHLCV(context.Background(), "SPY", models.Timeframe1h, 3)
	require.NoError(t, err)

	// The null-open row is rejected.
	require.Len(t, snapshot.Candles, 2)
	assert.Equal(t, alpacaSource, snapshot.Source)
	assert.Equal(t, 101.5, snapshot.Candles[1].Close)
	assert.Equal(t, time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC), snapshot.Candles[1].Timestamp)
}

func TestAlpacaMissingCredentialsIsTerminal(t *testing.T) {
	provider := NewAlpacaProvider("", "", "")
	_, err := provider.FetchOHLCV(context.Background(), "SPY", models.Timeframe1h, 10)
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestAlpacaServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	provider := NewAlpacaProvider("k", "s", server.URL)
	_, err := provider.FetchOHLCV(context.Background(), "SPY", models.Timeframe1h, 10)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestYahooFetchOHLCV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/SPY", r.URL.Path)
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		assert.Equal(t, "1mo", r.URL.Query().Get("range"))
		fmt.Fprint(w, `{"chart":{"result":[{
			"timestamp":[1748869200,1748872800,1748876400],
			"indicators":{"quote":[{
				"open":[100,100.5,null],
				"high":[101,102,102],
				"low":[99,100,100],
				"close":[100.5,101.5,101],
				"volume":[5000,6000,1000]
			}]}
		}],"error":null}}`)
	}))
	defer server.Close()

	provider := NewYahooProvider(server.URL)
	snapshot, err := provider.FetchOHLCV(context.Background(), "SPY", models.Timeframe1h, 10)
	require.NoError(t, err)

	// The null-open row is rejected.
	require.Len(t, snapshot.Candles, 2)
	assert.Equal(t, yahooSource, snapshot.Source)
	assert.Equal(t, 101.5, snapshot.Candles[1].Close)
}

func TestYahooUnsupportedTimeframeIsTerminal(t *testing.T) {
	provider := NewYahooProvider("")
	_, err := provider.FetchOHLCV(context.Background(), "SPY", models.Timeframe("30m"), 10)
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestYahooFourHourAggregatesHourlyBars(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		assert.Equal(t, "3mo", r.URL.Query().Get("range"))
		// Six hourly bars: a full 12:00-16:00 bucket and a partial 16:00 one.
		fmt.Fprint(w, `{"chart":{"result":[{
			"timestamp":[1748865600,1748869200,1748872800,1748876400,1748880000,1748883600],
			"indicators":{"quote":[{
				"open":[100,100.5,102,99,99.5,100.8],
				"high":[101,103,102.5,100,101,102],
				"low":[99,100,98,98.5,99,100.5],
				"close":[100.5,102,99,99.5,100.8,101.2],
				"volume":[1000,2000,1500,500,800,700]
			}]}
		}],"error":null}}`)
	}))
	defer server.Close()

	provider := NewYahooProvider(server.URL)
	snapshot, err := provider.FetchOHLCV(context.Background(), "SPY", models.Timeframe4h, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
	assert.Equal(t, models.Timeframe4h, snapshot.Timeframe)

	require.Len(t, snapshot.Candles, 2)
	full := snapshot.Candles[0]
	assert.Equal(t, time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC), full.Timestamp)
	assert.Equal(t, 100.0, full.Open)
	assert.Equal(t, 103.0, full.High)
	assert.Equal(t, 98.0, full.Low)
	assert.Equal(t, 99.5, full.Close)
	assert.Equal(t, 5000.0, full.Volume)

	partial := snapshot.Candles[1]
	assert.Equal(t, time.Date(2025, 6, 2, 16, 0, 0, 0, time.UTC), partial.Timestamp)
	assert.Equal(t, 99.5, partial.Open)
	assert.Equal(t, 101.2, partial.Close)
	assert.Equal(t, 1500.0, partial.Volume)
}

func TestYahooLimitTrimsOldest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[{
			"timestamp":[1748869200,1748872800,1748876400],
			"indicators":{"quote":[{
				"open":[100,100.5,101],
				"high":[101,102,102],
				"low":[99,100,100],
				"close":[100.5,101.5,101.8],
				"volume":[5000,6000,1000]
			}]}
		}],"error":null}}`)
	}))
	defer server.Close()

	provider := NewYahooProvider(server.URL)
	snapshot, err := provider.FetchOHLCV(context.Background(), "SPY", models.Timeframe1h, 2)
	require.NoError(t, err)
	require.Len(t, snapshot.Candles, 2)
	assert.Equal(t, 101.8, snapshot.Candles[1].Close)
}

type fakeKlines struct {
	symbol   string
	interval string
	klines   []*binance.Kline
	err      error
}

func (f *fakeKlines) Klines(ctx context.Context, symbol, interval string, limit int) ([]*binance.Kline, error) {
	f.symbol = symbol
	f.interval = interval
	return f.klines, f.err
}

func TestBinanceFetchOHLCV(t *testing.T) {
	fake := &fakeKlines{klines: []*binance.Kline{
		{OpenTime: 1748869200000, Open: "67000.5", High: "67500", Low: "66800", Close: "67250.25", Volume: "123.45"},
		{OpenTime: 1748872800000, Open: "67250.25", High: "67800", Low: "67100", Close: "bad", Volume: "98.7"},
	}}
	provider := &BinanceProvider{svc: fake}

	snapshot, err := provider.FetchOHLCV(context.Background(), "BTC/USDT", models.Timeframe1h, 10)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", fake.symbol)
	assert.Equal(t, "1h", fake.interval)

	// The unparsable row is rejected.
	require.Len(t, snapshot.Candles, 1)
	assert.Equal(t, 67250.25, snapshot.Candles[0].Close)
	assert.Equal(t, time.UnixMilli(1748869200000).UTC(), snapshot.Candles[0].Timestamp)
}

func TestBinanceRequiresBaseQuoteSymbol(t *testing.T) {
	provider := &BinanceProvider{svc: &fakeKlines{}}
	_, err := provider.FetchOHLCV(context.Background(), "BTCUSDT", models.Timeframe1h, 10)
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}
