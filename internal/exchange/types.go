// Package exchange defines the typed order contract and the order
// managers that speak it: a deterministic paper manager and a Kraken
// live manager.
package exchange

import (
	"context"
	"fmt"

	"github.com/tradecrew/tradecrew/internal/models"
)

// OrderType is the supported order kind
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderRequest is the broker-facing order payload
type OrderRequest struct {
	Symbol   string                 `json:"symbol"`
	Side     models.SignalDirection `json:"side"`
	Quantity float64                `json:"quantity"`
	Type     OrderType              `json:"order_type"`
	Exchange string                 `json:"exchange"`
	Price    *float64               `json:"price,omitempty"`
}

// Validate checks request constraints; limit orders require a price
func (r OrderRequest) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("order symbol must not be empty")
	}
	if !r.Side.Executable() {
		return fmt.Errorf("order side must be buy or sell, got %q", r.Side)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("order quantity must be positive")
	}
	switch r.Type {
	case OrderTypeMarket:
	case OrderTypeLimit:
		if r.Price == nil {
			return fmt.Errorf("limit order requires a price")
		}
	default:
		return fmt.Errorf("unknown order type %q", r.Type)
	}
	return nil
}

// OrderResponse is the broker placement result. Retryable distinguishes
// transient upstream errors from terminal rejections.
type OrderResponse struct {
	Accepted  bool   `json:"accepted"`
	OrderID   string `json:"order_id,omitempty"`
	Reason    string `json:"reason"`
	Retryable bool   `json:"retryable"`
}

// OrderManager places orders against a single venue
type OrderManager interface {
	// Name returns the venue identifier this manager serves
	Name() string

	// PlaceOrder submits the order. Transport-level failures may surface
	// as errors; callers treat those as retryable.
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResponse, error)
}
