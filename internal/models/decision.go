package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RiskContext carries the portfolio inputs required by the risk veto agent
type RiskContext struct {
	PortfolioValue          float64 `json:"portfolio_value"`
	ProposedPositionValue   float64 `json:"proposed_position_value"`
	CurrentDailyDrawdownPct float64 `json:"current_daily_drawdown_pct"`
	SectorExposurePct       float64 `json:"sector_exposure_pct"`
	MinutesToMajorEvent     int     `json:"minutes_to_major_event"`
	InstrumentHistoryDays   int     `json:"instrument_history_days"`
}

// Validate checks context field ranges
func (c RiskContext) Validate() error {
	if c.PortfolioValue <= 0 {
		return fmt.Errorf("portfolio_value must be positive")
	}
	if c.ProposedPositionValue < 0 {
		return fmt.Errorf("proposed_position_value must be non-negative")
	}
	if c.CurrentDailyDrawdownPct < 0 {
		return fmt.Errorf("current_daily_drawdown_pct must be non-negative")
	}
	if c.SectorExposurePct < 0 || c.SectorExposurePct > 1 {
		return fmt.Errorf("sector_exposure_pct %f outside [0, 1]", c.SectorExposurePct)
	}
	if c.InstrumentHistoryDays < 0 {
		return fmt.Errorf("instrument_history_days must be non-negative")
	}
	return nil
}

// RiskAssessment is the risk gate output with veto semantics.
// A rejected assessment always carries adjusted_size = 0.
type RiskAssessment struct {
	Approved     bool    `json:"approved"`
	Reason       string  `json:"reason"`
	AdjustedSize float64 `json:"adjusted_size"`
}

// Validate checks assessment invariants
func (a RiskAssessment) Validate() error {
	if a.AdjustedSize < 0 || a.AdjustedSize > 1 {
		return fmt.Errorf("adjusted_size %f outside [0, 1]", a.AdjustedSize)
	}
	if !a.Approved && a.AdjustedSize != 0 {
		return fmt.Errorf("rejected assessment must carry adjusted_size = 0")
	}
	return nil
}

// TradeDecision is the final coordinator output emitted before execution
type TradeDecision struct {
	TaskID        string                      `json:"task_id"`
	Asset         string                      `json:"asset"`
	Direction     SignalDirection             `json:"direction"`
	Confidence    float64                     `json:"confidence"`
	Approved      bool                        `json:"approved"`
	VetoReason    string                      `json:"veto_reason,omitempty"`
	PositionSize  float64                     `json:"position_size"`
	WeightedVotes map[SignalDirection]float64 `json:"weighted_votes"`
}

// Validate checks decision invariants: approval implies an executable
// direction and a positive position size, rejection implies zero size.
func (d TradeDecision) Validate() error {
	if d.TaskID == "" {
		return fmt.Errorf("task_id must not be empty")
	}
	if d.Asset == "" {
		return fmt.Errorf("asset must not be empty")
	}
	if !d.Direction.Valid() {
		return fmt.Errorf("invalid decision direction: %q", d.Direction)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("decision confidence %f outside [0, 1]", d.Confidence)
	}
	if d.PositionSize < 0 || d.PositionSize > 1 {
		return fmt.Errorf("position_size %f outside [0, 1]", d.PositionSize)
	}
	if d.Approved {
		if !d.Direction.Executable() {
			return fmt.Errorf("approved decision requires buy or sell direction, got %q", d.Direction)
		}
		if d.PositionSize <= 0 {
			return fmt.Errorf("approved decision requires positive position size")
		}
	} else if d.PositionSize != 0 {
		return fmt.Errorf("rejected decision must carry position_size = 0")
	}
	return nil
}

// DecisionLogRecord is an immutable decision log entry used for retraining.
// Outcome fields are set once by the outcome writer; outcome_pnl present
// requires trade_was_profitable present (label consistency).
type DecisionLogRecord struct {
	ID                 uuid.UUID    `json:"id"`
	Timestamp          time.Time    `json:"timestamp"`
	AgentID            string       `json:"agent_id"`
	TaskID             string       `json:"task_id"`
	Asset              string       `json:"asset"`
	AssetClass         AssetClass   `json:"asset_class"`
	Timeframe          Timeframe    `json:"timeframe"`
	SignalType         SignalType   `json:"signal_type"`
	SignalValue        Signal       `json:"-"`
	Confidence         float64      `json:"confidence"`
	Reasoning          string       `json:"reasoning"`
	DataSources        []string     `json:"data_sources"`
	MarketRegime       MarketRegime `json:"market_regime"`
	OutcomePnL         *float64     `json:"outcome_pnl,omitempty"`
	OutcomeLatencyDays *int         `json:"outcome_latency_days,omitempty"`
	ContributedToTrade bool         `json:"contributed_to_trade"`
	TradeWasProfitable *bool        `json:"trade_was_profitable,omitempty"`
}

// NewDecisionLogRecord builds a record from an agent response with a fresh id
func NewDecisionLogRecord(resp AgentResponse, assetClass AssetClass) (DecisionLogRecord, error) {
	head := resp.Payload.Head()
	record := DecisionLogRecord{
		ID:           uuid.New(),
		Timestamp:    resp.Timestamp,
		AgentID:      resp.AgentID,
		TaskID:       resp.TaskID,
		Asset:        head.Asset,
		AssetClass:   assetClass,
		Timeframe:    head.Timeframe,
		SignalType:   resp.Payload.Type(),
		SignalValue:  resp.Payload,
		Confidence:   resp.Confidence,
		Reasoning:    resp.Reasoning,
		DataSources:  resp.DataSources,
		MarketRegime: resp.MarketRegime,
	}
	if err := record.Validate(); err != nil {
		return DecisionLogRecord{}, err
	}
	return record, nil
}

// HasOutcome reports whether the record carries a full outcome label
func (r DecisionLogRecord) HasOutcome() bool {
	return r.OutcomePnL != nil && r.TradeWasProfitable != nil
}

// Validate checks record field constraints and label consistency
func (r DecisionLogRecord) Validate() error {
	if r.ID == uuid.Nil {
		return fmt.Errorf("record id must not be nil")
	}
	if r.AgentID == "" || r.TaskID == "" || r.Asset == "" {
		return fmt.Errorf("agent_id, task_id and asset must not be empty")
	}
	if !r.AssetClass.Valid() {
		return fmt.Errorf("invalid asset class: %q", r.AssetClass)
	}
	if !r.Timeframe.Valid() {
		return fmt.Errorf("invalid timeframe: %q", r.Timeframe)
	}
	if r.SignalValue == nil {
		return fmt.Errorf("signal_value must not be nil")
	}
	if err := r.SignalValue.Validate(); err != nil {
		return fmt.Errorf("invalid signal_value: %w", err)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("record confidence %f outside [0, 1]", r.Confidence)
	}
	if !r.MarketRegime.Valid() {
		return fmt.Errorf("invalid market regime: %q", r.MarketRegime)
	}
	if r.OutcomePnL != nil && r.TradeWasProfitable == nil {
		return fmt.Errorf("trade_was_profitable must be set when outcome_pnl exists")
	}
	return nil
}

type decisionLogRecordWire struct {
	ID                 uuid.UUID       `json:"id"`
	Timestamp          time.Time       `json:"timestamp"`
	AgentID            string          `json:"agent_id"`
	TaskID             string          `json:"task_id"`
	Asset              string          `json:"asset"`
	AssetClass         AssetClass      `json:"asset_class"`
	Timeframe          Timeframe       `json:"timeframe"`
	SignalType         SignalType      `json:"signal_type"`
	SignalValue        json.RawMessage `json:"signal_value"`
	Confidence         float64         `json:"confidence"`
	Reasoning          string          `json:"reasoning"`
	DataSources        []string        `json:"data_sources"`
	MarketRegime       MarketRegime    `json:"market_regime"`
	OutcomePnL         *float64        `json:"outcome_pnl"`
	OutcomeLatencyDays *int            `json:"outcome_latency_days"`
	ContributedToTrade bool            `json:"contributed_to_trade"`
	TradeWasProfitable *bool           `json:"trade_was_profitable"`
}

// MarshalJSON encodes the record with its tagged signal payload
func (r DecisionLogRecord) MarshalJSON() ([]byte, error) {
	payload, err := EncodeSignal(r.SignalValue)
	if err != nil {
		return nil, err
	}
	return json.Marshal(decisionLogRecordWire{
		ID:                 r.ID,
		Timestamp:          r.Timestamp,
		AgentID:            r.AgentID,
		TaskID:             r.TaskID,
		Asset:              r.Asset,
		AssetClass:         r.AssetClass,
		Timeframe:          r.Timeframe,
		SignalType:         r.SignalType,
		SignalValue:        payload,
		Confidence:         r.Confidence,
		Reasoning:          r.Reasoning,
		DataSources:        r.DataSources,
		MarketRegime:       r.MarketRegime,
		OutcomePnL:         r.OutcomePnL,
		OutcomeLatencyDays: r.OutcomeLatencyDays,
		ContributedToTrade: r.ContributedToTrade,
		TradeWasProfitable: r.TradeWasProfitable,
	})
}

// UnmarshalJSON decodes and validates the record
func (r *DecisionLogRecord) UnmarshalJSON(data []byte) error {
	var wire decisionLogRecordWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("failed to unmarshal decision log record: %w", err)
	}
	signal, err := DecodeSignal(wire.SignalValue)
	if err != nil {
		return err
	}
	*r = DecisionLogRecord{
		ID:                 wire.ID,
		Timestamp:          wire.Timestamp,
		AgentID:            wire.AgentID,
		TaskID:             wire.TaskID,
		Asset:              wire.Asset,
		AssetClass:         wire.AssetClass,
		Timeframe:          wire.Timeframe,
		SignalType:         signal.Type(),
		SignalValue:        signal,
		Confidence:         wire.Confidence,
		Reasoning:          wire.Reasoning,
		DataSources:        wire.DataSources,
		MarketRegime:       wire.MarketRegime,
		OutcomePnL:         wire.OutcomePnL,
		OutcomeLatencyDays: wire.OutcomeLatencyDays,
		ContributedToTrade: wire.ContributedToTrade,
		TradeWasProfitable: wire.TradeWasProfitable,
	}
	return r.Validate()
}
