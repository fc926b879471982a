package models

import (
	"errors"
	"time"
)

// Side is the direction of a trade from the player's point of view.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is buy or sell.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// TradeRecord is one executed trade, written to the trade journal.
type TradeRecord struct {
	ID         string    `json:"id"`
	Market     string    `json:"market"`
	Resource   string    `json:"resource"`
	Side       Side      `json:"side"`
	Quantity   int64     `json:"quantity"`
	UnitPrice  int64     `json:"unit_price"` // Price at execution, before market impact
	Value      int64     `json:"value"`      // Gold paid (buy) or received (sell)
	PriceAfter int64     `json:"price_after"`
	RouteID    string    `json:"route_id,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Validate checks that all trade fields are valid
func (t *TradeRecord) Validate() error {
	if t.ID == "" {
		return errors.New("trade ID must not be empty")
	}
	if t.Market == "" || t.Resource == "" {
		return errors.New("trade market and resource must not be empty")
	}
	if !t.Side.Valid() {
		return errors.New("side must be 'buy' or 'sell'")
	}
	if t.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	if t.UnitPrice < 1 || t.PriceAfter < 1 {
		return errors.New("prices must be at least 1")
	}
	if t.Value < 0 {
		return errors.New("value must not be negative")
	}
	return nil
}
