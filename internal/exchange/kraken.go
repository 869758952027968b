package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const krakenName = "kraken"

var krakenSides = map[string]string{"buy": "buy", "sell": "sell"}

// KrakenManager places orders on Kraken through the private AddOrder
// endpoint.
type KrakenManager struct {
	apiKey     string
	apiSecret  string // base64-encoded per Kraken API docs
	baseURL    string
	httpClient *http.Client
	nonce      func() int64
	log        zerolog.Logger
}

// NewKrakenManager creates a live Kraken order manager
func NewKrakenManager(apiKey, apiSecret, baseURL string, log zerolog.Logger) *KrakenManager {
	if baseURL == "" {
		baseURL = "https://api.kraken.com"
	}
	return &KrakenManager{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		nonce:      func() int64 { return time.Now().UnixNano() },
		log:        log.With().Str("component", "kraken_manager").Logger(),
	}
}

// Name returns the venue identifier
func (m *KrakenManager) Name() string { return krakenName }

type krakenAddOrderResponse struct {
	Error  []string `json:"error"`
	Result struct {
		TxID []string `json:"txid"`
	} `json:"result"`
}

// PlaceOrder submits the order to Kraken. Local validation failures and
// venue rejections are terminal; network-class failures are retryable.
func (m *KrakenManager) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResponse, error) {
	if req.Exchange != "" && req.Exchange != krakenName {
		return OrderResponse{Reason: fmt.Sprintf("order routed to %q, this manager serves kraken", req.Exchange), Retryable: false}, nil
	}
	if err := req.Validate(); err != nil {
		return OrderResponse{Reason: err.Error(), Retryable: false}, nil
	}
	if m.apiKey == "" || m.apiSecret == "" {
		return OrderResponse{Reason: "missing Kraken API credentials", Retryable: false}, nil
	}

	form := url.Values{}
	form.Set("nonce", strconv.FormatInt(m.nonce(), 10))
	form.Set("pair", strings.ReplaceAll(req.Symbol, "/", ""))
	form.Set("type", krakenSides[string(req.Side)])
	form.Set("ordertype", string(req.Type))
	form.Set("volume", strconv.FormatFloat(req.Quantity, 'f', -1, 64))
	if req.Type == OrderTypeLimit {
		form.Set("price", strconv.FormatFloat(*req.Price, 'f', -1, 64))
	}

	const path = "/0/private/AddOrder"
	signature, err := m.sign(path, form)
	if err != nil {
		return OrderResponse{Reason: fmt.Sprintf("failed to sign request: %v", err), Retryable: false}, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return OrderResponse{Reason: fmt.Sprintf("failed to build request: %v", err), Retryable: false}, nil
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("API-Key", m.apiKey)
	httpReq.Header.Set("API-Sign", signature)

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		// Transient network-class failure.
		return OrderResponse{Reason: fmt.Sprintf("request failed: %v", err), Retryable: true}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return OrderResponse{Reason: fmt.Sprintf("HTTP %d from venue", resp.StatusCode), Retryable: true}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return OrderResponse{Reason: fmt.Sprintf("HTTP %d from venue", resp.StatusCode), Retryable: false}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return OrderResponse{Reason: fmt.Sprintf("failed to read response: %v", err), Retryable: true}, nil
	}

	var parsed krakenAddOrderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return OrderResponse{Reason: fmt.Sprintf("failed to parse response: %v", err), Retryable: true}, nil
	}
	if len(parsed.Error) > 0 {
		reason := strings.Join(parsed.Error, "; ")
		return OrderResponse{Reason: reason, Retryable: krakenErrorRetryable(reason)}, nil
	}
	if len(parsed.Result.TxID) == 0 || parsed.Result.TxID[0] == "" {
		return OrderResponse{Reason: "venue returned no transaction id", Retryable: false}, nil
	}

	m.log.Info().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("order_id", parsed.Result.TxID[0]).
		Msg("Live order accepted")

	return OrderResponse{
		Accepted:  true,
		OrderID:   parsed.Result.TxID[0],
		Reason:    "Live order placed.",
		Retryable: false,
	}, nil
}

// sign computes API-Sign: base64(HMAC-SHA512(path + SHA256(nonce + postdata),
// base64-decoded secret)).
func (m *KrakenManager) sign(path string, form url.Values) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(m.apiSecret)
	if err != nil {
		return "", fmt.Errorf("secret is not valid base64: %w", err)
	}
	postData := form.Encode()
	digest := sha256.Sum256([]byte(form.Get("nonce") + postData))
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(digest[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// krakenErrorRetryable classifies venue error strings. Rate limits and
// service availability are transient; everything else is terminal.
func krakenErrorRetryable(reason string) bool {
	lower := strings.ToLower(reason)
	return strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "unavailable") ||
		strings.Contains(lower, "busy") ||
		strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "temporary")
}
