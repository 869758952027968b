// Package bus carries trading and training events between services
// over NATS: trade decisions, outcome labels, and promotion results.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/tradecrew/tradecrew/internal/models"
	"github.com/tradecrew/tradecrew/internal/training"
)

// Topics relative to the subject prefix.
const (
	TopicDecisions  = "decisions"
	TopicOutcomes   = "outcomes"
	TopicPromotions = "promotions"
)

// Config configures the event bus connection
type Config struct {
	NATSURL string
	Prefix  string // subject prefix (default "tradecrew.")
	Name    string // client connection name
}

// DefaultConfig returns the default event bus configuration
func DefaultConfig() Config {
	return Config{
		NATSURL: nats.DefaultURL,
		Prefix:  "tradecrew.",
		Name:    "tradecrew",
	}
}

// OutcomeEvent labels a prior decision with its realized trade outcome
type OutcomeEvent struct {
	DecisionID  uuid.UUID `json:"decision_id"`
	PnL         float64   `json:"pnl"`
	LatencyDays int       `json:"latency_days"`
	Profitable  bool      `json:"profitable"`
}

// PromotionEvent announces a resolved adapter promotion
type PromotionEvent struct {
	AgentID        string `json:"agent_id"`
	AdapterVersion string `json:"adapter_version"`
	DatasetVersion string `json:"dataset_version"`
	Promoted       bool   `json:"promoted"`
	Reason         string `json:"reason"`
}

// envelope wraps every published payload with identity and timing
type envelope struct {
	ID        uuid.UUID       `json:"id"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// EventBus publishes and consumes tradecrew events over NATS
type EventBus struct {
	nc     *nats.Conn
	prefix string
	log    zerolog.Logger
}

// New connects to NATS and returns an event bus
func New(cfg Config, log zerolog.Logger) (*EventBus, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = "tradecrew."
	}
	if cfg.Name == "" {
		cfg.Name = "tradecrew"
	}
	busLog := log.With().Str("component", "event_bus").Logger()

	nc, err := nats.Connect(
		cfg.NATSURL,
		nats.Name(cfg.Name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				busLog.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			busLog.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	busLog.Info().
		Str("nats_url", cfg.NATSURL).
		Str("prefix", cfg.Prefix).
		Msg("Event bus connected")
	return &EventBus{nc: nc, prefix: cfg.Prefix, log: busLog}, nil
}

// PublishDecision publishes a trade decision to decisions.<asset_class>
func (b *EventBus) PublishDecision(ctx context.Context, decision models.TradeDecision, assetClass models.AssetClass) error {
	subject := fmt.Sprintf("%s%s.%s", b.prefix, TopicDecisions, assetClass)
	return b.publish(ctx, subject, TopicDecisions, decision)
}

// PublishOutcome publishes a trade outcome label
func (b *EventBus) PublishOutcome(ctx context.Context, outcome OutcomeEvent) error {
	return b.publish(ctx, b.prefix+TopicOutcomes, TopicOutcomes, outcome)
}

// PublishPromotion publishes a resolved promotion
func (b *EventBus) PublishPromotion(ctx context.Context, event PromotionEvent, result training.PromotionResult) error {
	event.Promoted = result.Promoted
	event.Reason = result.Reason
	return b.publish(ctx, b.prefix+TopicPromotions, TopicPromotions, event)
}

func (b *EventBus) publish(ctx context.Context, subject, topic string, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.nc.IsConnected() {
		return fmt.Errorf("event bus not connected")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	data, err := json.Marshal(envelope{
		ID:        uuid.New(),
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	b.log.Debug().Str("subject", subject).Msg("Event published")
	return nil
}

// SubscribeDecisions delivers every trade decision for any asset class
func (b *EventBus) SubscribeDecisions(handler func(models.TradeDecision)) (*Subscription, error) {
	subject := fmt.Sprintf("%s%s.*", b.prefix, TopicDecisions)
	return b.subscribe(subject, func(payload json.RawMessage) error {
		var decision models.TradeDecision
		if err := json.Unmarshal(payload, &decision); err != nil {
			return err
		}
		handler(decision)
		return nil
	})
}

// SubscribeOutcomes delivers trade outcome labels
func (b *EventBus) SubscribeOutcomes(handler func(OutcomeEvent)) (*Subscription, error) {
	return b.subscribe(b.prefix+TopicOutcomes, func(payload json.RawMessage) error {
		var outcome OutcomeEvent
		if err := json.Unmarshal(payload, &outcome); err != nil {
			return err
		}
		handler(outcome)
		return nil
	})
}

// SubscribePromotions delivers resolved promotion events
func (b *EventBus) SubscribePromotions(handler func(PromotionEvent)) (*Subscription, error) {
	return b.subscribe(b.prefix+TopicPromotions, func(payload json.RawMessage) error {
		var event PromotionEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return err
		}
		handler(event)
		return nil
	})
}

func (b *EventBus) subscribe(subject string, handle func(json.RawMessage) error) (*Subscription, error) {
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var env envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			b.log.Warn().Err(err).Str("subject", msg.Subject).Msg("Failed to unmarshal envelope")
			return
		}
		if err := handle(env.Payload); err != nil {
			b.log.Error().Err(err).
				Str("subject", msg.Subject).
				Str("event_id", env.ID.String()).
				Msg("Event handler error")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	b.log.Info().Str("subject", subject).Msg("Subscribed")
	return &Subscription{sub: sub, subject: subject, log: b.log}, nil
}

// Connected reports connection health
func (b *EventBus) Connected() bool {
	return b.nc != nil && b.nc.IsConnected()
}

// Close drains and closes the connection
func (b *EventBus) Close() error {
	if b.nc != nil {
		b.nc.Close()
		b.log.Info().Msg("Event bus closed")
	}
	return nil
}

// Subscription is an active event subscription
type Subscription struct {
	sub     *nats.Subscription
	subject string
	log     zerolog.Logger
}

// Unsubscribe stops delivery for the subscription
func (s *Subscription) Unsubscribe() error {
	if err := s.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}
	s.log.Info().Str("subject", s.subject).Msg("Unsubscribed")
	return nil
}

// IsValid reports whether the subscription is still active
func (s *Subscription) IsValid() bool {
	return s.sub.IsValid()
}
