package exchange

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// PaperManager simulates a venue that always accepts. Order ids are
// deterministic over (exchange, symbol) so repeated runs are comparable.
type PaperManager struct {
	name string
	log  zerolog.Logger
}

// NewPaperManager creates a paper order manager for the named venue
func NewPaperManager(name string, log zerolog.Logger) *PaperManager {
	return &PaperManager{
		name: name,
		log:  log.With().Str("component", "paper_manager").Logger(),
	}
}

// Name returns the simulated venue identifier
func (m *PaperManager) Name() string { return m.name }

// PlaceOrder accepts every valid order with a deterministic id
func (m *PaperManager) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResponse, error) {
	if err := req.Validate(); err != nil {
		return OrderResponse{Accepted: false, Reason: err.Error(), Retryable: false}, nil
	}

	orderID := fmt.Sprintf("paper-%s-%s", m.name, strings.ToLower(strings.ReplaceAll(req.Symbol, "/", "-")))
	m.log.Info().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Float64("quantity", req.Quantity).
		Str("order_id", orderID).
		Msg("Paper order accepted")

	return OrderResponse{
		Accepted:  true,
		OrderID:   orderID,
		Reason:    "Paper order simulated.",
		Retryable: false,
	}, nil
}
