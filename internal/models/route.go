package models

import (
	"errors"
	"time"
)

// TradeRoute is a standing instruction to arbitrage one resource between two markets.
type TradeRoute struct {
	ID         string    `json:"id"`
	FromMarket string    `json:"from_market"`
	ToMarket   string    `json:"to_market"`
	Resource   string    `json:"resource"`
	CreatedAt  time.Time `json:"created_at"`
	Active     bool      `json:"active"`
	Profit     int64     `json:"profit"` // Cumulative, may be negative
	Trades     int       `json:"trades"`
}

// Validate checks that all route fields are valid
func (r *TradeRoute) Validate() error {
	if r.ID == "" {
		return errors.New("route ID must not be empty")
	}
	if r.FromMarket == "" || r.ToMarket == "" {
		return errors.New("route markets must not be empty")
	}
	if r.FromMarket == r.ToMarket {
		return errors.New("route must connect two different markets")
	}
	if r.Resource == "" {
		return errors.New("route resource must not be empty")
	}
	if r.Trades < 0 {
		return errors.New("route trade count must not be negative")
	}
	return nil
}
