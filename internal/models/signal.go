package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SignalType discriminates the wire form of polymorphic signal payloads
type SignalType string

const (
	SignalTypeBase      SignalType = "base"
	SignalTypeSentiment SignalType = "sentiment"
	SignalTypeTechnical SignalType = "technical"
)

// OHLCVCandle represents a single candle in a time series.
// Producers must supply monotonic non-decreasing timestamps per series.
type OHLCVCandle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Validate checks candle field ranges
func (c OHLCVCandle) Validate() error {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("candle OHLC fields must be positive")
	}
	if c.Volume < 0 {
		return fmt.Errorf("candle volume must be non-negative")
	}
	return nil
}

// Signal is the polymorphic payload carried by agent responses
type Signal interface {
	Type() SignalType
	Head() BaseSignal
	Validate() error
}

// BaseSignal is the common head shared by all signal variants
type BaseSignal struct {
	Asset     string          `json:"asset"`
	Direction SignalDirection `json:"direction"`
	Timeframe Timeframe       `json:"timeframe"`
}

// Type returns the wire discriminator
func (s BaseSignal) Type() SignalType { return SignalTypeBase }

// Head returns the common signal head
func (s BaseSignal) Head() BaseSignal { return s }

// Validate checks the common head constraints
func (s BaseSignal) Validate() error {
	if s.Asset == "" {
		return fmt.Errorf("signal asset must not be empty")
	}
	if !s.Direction.Valid() {
		return fmt.Errorf("invalid signal direction: %q", s.Direction)
	}
	if !s.Timeframe.Valid() {
		return fmt.Errorf("invalid signal timeframe: %q", s.Timeframe)
	}
	return nil
}

// SentimentSignal is produced by the research agent
type SentimentSignal struct {
	BaseSignal
	Score      float64  `json:"score"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources"`
}

// Type returns the wire discriminator
func (s SentimentSignal) Type() SignalType { return SignalTypeSentiment }

// Validate checks head and sentiment-specific ranges
func (s SentimentSignal) Validate() error {
	if err := s.BaseSignal.Validate(); err != nil {
		return err
	}
	if s.Score < -1 || s.Score > 1 {
		return fmt.Errorf("sentiment score %f outside [-1, 1]", s.Score)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("sentiment confidence %f outside [0, 1]", s.Confidence)
	}
	return nil
}

// TechnicalSignal is produced by the technical agent
type TechnicalSignal struct {
	BaseSignal
	Strength       float64  `json:"strength"`
	IndicatorsUsed []string `json:"indicators_used"`
}

// Type returns the wire discriminator
func (s TechnicalSignal) Type() SignalType { return SignalTypeTechnical }

// Validate checks head and technical-specific ranges
func (s TechnicalSignal) Validate() error {
	if err := s.BaseSignal.Validate(); err != nil {
		return err
	}
	if s.Strength < 0 || s.Strength > 1 {
		return fmt.Errorf("technical strength %f outside [0, 1]", s.Strength)
	}
	return nil
}

// EncodeSignal marshals a signal into its canonical wire form: a JSON
// object with sorted keys carrying a signal_type discriminator.
func EncodeSignal(s Signal) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("signal is nil")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signal: %w", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to canonicalize signal: %w", err)
	}
	fields["signal_type"] = string(s.Type())
	return json.Marshal(fields)
}

// DecodeSignal unmarshals a wire-form signal by its discriminator and
// validates range constraints.
func DecodeSignal(data []byte) (Signal, error) {
	var head struct {
		SignalType SignalType `json:"signal_type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to read signal discriminator: %w", err)
	}

	var signal Signal
	switch head.SignalType {
	case SignalTypeBase, "":
		var s BaseSignal
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal base signal: %w", err)
		}
		signal = s
	case SignalTypeSentiment:
		var s SentimentSignal
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sentiment signal: %w", err)
		}
		signal = s
	case SignalTypeTechnical:
		var s TechnicalSignal
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal technical signal: %w", err)
		}
		signal = s
	default:
		return nil, fmt.Errorf("unknown signal_type: %q", head.SignalType)
	}

	if err := signal.Validate(); err != nil {
		return nil, err
	}
	return signal, nil
}
