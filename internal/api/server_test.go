package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecrew/tradecrew/internal/models"
	"github.com/tradecrew/tradecrew/internal/training"
)

type fakeDecisionStore struct {
	records []models.DecisionLogRecord
	count   int
	err     error
}

func (f *fakeDecisionStore) ListEligible(ctx context.Context) ([]models.DecisionLogRecord, error) {
	return f.records, f.err
}

func (f *fakeDecisionStore) CountOutcomeReady(ctx context.Context) (int, error) {
	return f.count, f.err
}

func labeledRecord(agentID string, ts time.Time) models.DecisionLogRecord {
	pnl := 5.0
	latency := 1
	profitable := true
	return models.DecisionLogRecord{
		ID:         uuid.New(),
		Timestamp:  ts,
		AgentID:    agentID,
		TaskID:     uuid.NewString(),
		Asset:      "SPY",
		AssetClass: models.AssetClassEquity,
		Timeframe:  models.Timeframe1h,
		SignalType: models.SignalTypeTechnical,
		SignalValue: models.TechnicalSignal{
			BaseSignal: models.BaseSignal{Asset: "SPY", Direction: models.DirectionBuy, Timeframe: models.Timeframe1h},
			Strength:   0.8,
		},
		Confidence:         0.8,
		Reasoning:          "test signal",
		DataSources:        []string{"market:ohlcv"},
		MarketRegime:       models.RegimeTrendingBull,
		OutcomePnL:         &pnl,
		OutcomeLatencyDays: &latency,
		TradeWasProfitable: &profitable,
	}
}

func newTestServer(t *testing.T, store DecisionReader) *Server {
	t.Helper()

	registry, err := training.NewAdapterRegistry(filepath.Join(t.TempDir(), "adapters.json"))
	require.NoError(t, err)
	_, err = registry.Register("technical_agent", "0.1.0", "v1", "run-1", training.StageChampion)
	require.NoError(t, err)

	return NewServer(Config{
		Host:     "127.0.0.1",
		Port:     0,
		Mode:     "paper",
		Version:  "test",
		Store:    store,
		Trainer:  training.NewTrainerAgent(training.DefaultTrainerConfig(), zerolog.Nop()),
		Registry: registry,
	})
}

func doRequest(s *Server, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeDecisionStore{})

	w := doRequest(s, http.MethodGet, "/api/v1/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestStatusReportsOutcomeCount(t *testing.T) {
	s := newTestServer(t, &fakeDecisionStore{count: 612})

	w := doRequest(s, http.MethodGet, "/api/v1/status")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status     string `json:"status"`
		Mode       string `json:"mode"`
		Components struct {
			DecisionStore struct {
				Status       string `json:"status"`
				OutcomeReady int    `json:"outcome_ready_records"`
			} `json:"decision_store"`
		} `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "paper", body.Mode)
	assert.Equal(t, 612, body.Components.DecisionStore.OutcomeReady)
}

func TestStatusDegradedOnStoreFailure(t *testing.T) {
	s := newTestServer(t, &fakeDecisionStore{err: fmt.Errorf("connection refused")})

	w := doRequest(s, http.MethodGet, "/api/v1/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
}

func TestListDecisionsFiltersAndLimits(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeDecisionStore{records: []models.DecisionLogRecord{
		labeledRecord("technical_agent", base),
		labeledRecord("sentiment_agent", base.Add(time.Hour)),
		labeledRecord("technical_agent", base.Add(2*time.Hour)),
		labeledRecord("technical_agent", base.Add(3*time.Hour)),
	}}
	s := newTestServer(t, store)

	w := doRequest(s, http.MethodGet, "/api/v1/decisions?agent_id=technical_agent&limit=2")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count     int               `json:"count"`
		Decisions []json.RawMessage `json:"decisions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Decisions, 2)
	// The most recent matching records survive the limit.
	assert.Contains(t, string(body.Decisions[1]), base.Add(3*time.Hour).Format(time.RFC3339))
}

func TestListDecisionsRejectsBadLimit(t *testing.T) {
	s := newTestServer(t, &fakeDecisionStore{})

	w := doRequest(s, http.MethodGet, "/api/v1/decisions?limit=zero")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListDecisionsStoreError(t *testing.T) {
	s := newTestServer(t, &fakeDecisionStore{err: fmt.Errorf("connection refused")})

	w := doRequest(s, http.MethodGet, "/api/v1/decisions")
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCountOutcomesEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeDecisionStore{count: 499})

	w := doRequest(s, http.MethodGet, "/api/v1/decisions/count")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"outcome_ready_records":499`)
}

func TestTrainingStatusEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeDecisionStore{})

	w := doRequest(s, http.MethodGet, "/api/v1/training/status")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		AgentID       string `json:"agent_id"`
		Running       bool   `json:"running"`
		FailureStreak int    `json:"failure_streak"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, training.TrainerAgentID, body.AgentID)
	assert.False(t, body.Running)
	assert.Equal(t, 0, body.FailureStreak)
}

func TestGetAdapterEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeDecisionStore{})

	w := doRequest(s, http.MethodGet, "/api/v1/training/adapters/technical_agent")
	require.Equal(t, http.StatusOK, w.Code)

	var record training.AdapterRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, "technical_agent", record.AgentID)
	assert.Equal(t, "0.1.0", record.AdapterVersion)
	assert.Equal(t, training.StageChampion, record.Stage)
}

func TestGetAdapterNotFound(t *testing.T) {
	s := newTestServer(t, &fakeDecisionStore{})

	w := doRequest(s, http.MethodGet, "/api/v1/training/adapters/sentiment_agent")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(s, http.MethodGet, "/api/v1/training/adapters/technical_agent?stage=shadow")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebSocketDecisionStream(t *testing.T) {
	s := newTestServer(t, &fakeDecisionStore{})

	ts := httptest.NewServer(s.router)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	// Wait for the hub to register the client before broadcasting.
	require.Eventually(t, func() bool {
		return s.Hub().ClientCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	decision := models.TradeDecision{
		TaskID:       "task-1",
		Asset:        "BTC/USD",
		Direction:    models.DirectionBuy,
		Confidence:   0.82,
		Approved:     true,
		PositionSize: 0.01,
	}
	require.NoError(t, s.Hub().BroadcastDecision(decision))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, MessageTypeDecision, msg.Type)

	var got models.TradeDecision
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "task-1", got.TaskID)
	assert.Equal(t, models.DirectionBuy, got.Direction)
	assert.InDelta(t, 0.82, got.Confidence, 1e-9)
}
