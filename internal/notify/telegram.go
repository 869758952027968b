// Package notify pushes operational events to Telegram: risk vetoes,
// training run failures, and adapter promotion results.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/tradecrew/tradecrew/internal/models"
	"github.com/tradecrew/tradecrew/internal/training"
)

// Config holds the notifier configuration
type Config struct {
	BotToken string
	ChatID   int64
	Enabled  bool
}

// sender abstracts the Telegram API for testing
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier sends formatted alerts to a Telegram chat. A notifier
// without credentials is valid and drops every message.
type Notifier struct {
	api    sender
	chatID int64
	log    zerolog.Logger
}

// NewNotifier creates a Telegram notifier. When disabled or missing a
// token it returns a no-op notifier rather than an error, so callers
// never need to branch on notification availability.
func NewNotifier(cfg Config, log zerolog.Logger) (*Notifier, error) {
	notifyLog := log.With().Str("component", "notifier").Logger()
	if !cfg.Enabled || cfg.BotToken == "" {
		notifyLog.Info().Msg("Telegram notifications disabled")
		return &Notifier{log: notifyLog}, nil
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}
	notifyLog.Info().Str("username", api.Self.UserName).Msg("Telegram bot authorized")
	return &Notifier{api: api, chatID: cfg.ChatID, log: notifyLog}, nil
}

// NotifyVeto reports a risk-vetoed trade decision
func (n *Notifier) NotifyVeto(decision models.TradeDecision) {
	n.send(fmt.Sprintf(
		"🛑 *Trade vetoed*\nAsset: %s\nDirection: %s\nConfidence: %.2f\nReason: %s",
		decision.Asset, decision.Direction, decision.Confidence, decision.VetoReason,
	))
}

// NotifyExecution reports a completed order submission
func (n *Notifier) NotifyExecution(decision models.TradeDecision, orderID string) {
	n.send(fmt.Sprintf(
		"✅ *Order submitted*\nAsset: %s\nDirection: %s\nSize: %.4f\nOrder: `%s`",
		decision.Asset, decision.Direction, decision.PositionSize, orderID,
	))
}

// NotifyPromotion reports a resolved adapter promotion
func (n *Notifier) NotifyPromotion(agentID, adapterVersion string, result training.PromotionResult) {
	icon := "🎉"
	verdict := "promoted"
	if !result.Promoted {
		icon = "⚠️"
		verdict = "rejected"
	}
	n.send(fmt.Sprintf(
		"%s *Adapter %s*\nAgent: %s\nVersion: %s\nReason: %s",
		icon, verdict, agentID, adapterVersion, result.Reason,
	))
}

// NotifyTrainingFailure reports a failed retraining run
func (n *Notifier) NotifyTrainingFailure(agentID string, failureStreak int) {
	n.send(fmt.Sprintf(
		"❌ *Training run failed*\nAgent: %s\nFailure streak: %d",
		agentID, failureStreak,
	))
}

func (n *Notifier) send(text string) {
	if n.api == nil {
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.api.Send(msg); err != nil {
		n.log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}
