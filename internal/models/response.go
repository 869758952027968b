package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// AgentResponse is the strict response contract emitted by every agent
type AgentResponse struct {
	AgentID        string       `json:"agent_id"`
	Timestamp      time.Time    `json:"timestamp"`
	TaskID         string       `json:"task_id"`
	Status         AgentStatus  `json:"status"`
	Payload        Signal       `json:"-"`
	Confidence     float64      `json:"confidence"`
	Reasoning      string       `json:"reasoning"`
	DataSources    []string     `json:"data_sources"`
	LatencyMS      int64        `json:"latency_ms"`
	AdapterVersion string       `json:"adapter_version"`
	MarketRegime   MarketRegime `json:"market_regime"`
}

// Validate checks response field constraints
func (r AgentResponse) Validate() error {
	if r.AgentID == "" {
		return fmt.Errorf("agent_id must not be empty")
	}
	if r.TaskID == "" {
		return fmt.Errorf("task_id must not be empty")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("invalid agent status: %q", r.Status)
	}
	if r.Payload == nil {
		return fmt.Errorf("response payload must not be nil")
	}
	if err := r.Payload.Validate(); err != nil {
		return fmt.Errorf("invalid response payload: %w", err)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("response confidence %f outside [0, 1]", r.Confidence)
	}
	if r.Reasoning == "" {
		return fmt.Errorf("response reasoning must not be empty")
	}
	if r.LatencyMS < 0 {
		return fmt.Errorf("latency_ms must be non-negative")
	}
	if r.AdapterVersion == "" {
		return fmt.Errorf("adapter_version must not be empty")
	}
	if !r.MarketRegime.Valid() {
		return fmt.Errorf("invalid market regime: %q", r.MarketRegime)
	}
	return nil
}

type agentResponseWire struct {
	AgentID        string          `json:"agent_id"`
	Timestamp      time.Time       `json:"timestamp"`
	TaskID         string          `json:"task_id"`
	Status         AgentStatus     `json:"status"`
	Payload        json.RawMessage `json:"payload"`
	Confidence     float64         `json:"confidence"`
	Reasoning      string          `json:"reasoning"`
	DataSources    []string        `json:"data_sources"`
	LatencyMS      int64           `json:"latency_ms"`
	AdapterVersion string          `json:"adapter_version"`
	MarketRegime   MarketRegime    `json:"market_regime"`
}

// MarshalJSON encodes the response with its tagged signal payload
func (r AgentResponse) MarshalJSON() ([]byte, error) {
	payload, err := EncodeSignal(r.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(agentResponseWire{
		AgentID:        r.AgentID,
		Timestamp:      r.Timestamp,
		TaskID:         r.TaskID,
		Status:         r.Status,
		Payload:        payload,
		Confidence:     r.Confidence,
		Reasoning:      r.Reasoning,
		DataSources:    r.DataSources,
		LatencyMS:      r.LatencyMS,
		AdapterVersion: r.AdapterVersion,
		MarketRegime:   r.MarketRegime,
	})
}

// UnmarshalJSON decodes the response and validates its payload by discriminator
func (r *AgentResponse) UnmarshalJSON(data []byte) error {
	var wire agentResponseWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("failed to unmarshal agent response: %w", err)
	}
	payload, err := DecodeSignal(wire.Payload)
	if err != nil {
		return err
	}
	*r = AgentResponse{
		AgentID:        wire.AgentID,
		Timestamp:      wire.Timestamp,
		TaskID:         wire.TaskID,
		Status:         wire.Status,
		Payload:        payload,
		Confidence:     wire.Confidence,
		Reasoning:      wire.Reasoning,
		DataSources:    wire.DataSources,
		LatencyMS:      wire.LatencyMS,
		AdapterVersion: wire.AdapterVersion,
		MarketRegime:   wire.MarketRegime,
	}
	return r.Validate()
}
