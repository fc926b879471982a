package models

import (
	"errors"
	"time"
)

// MaxHistory is the number of past prices retained per market resource.
const MaxHistory = 24

// Faction names tracked by Reputation.
const (
	FactionMerchants = "merchants"
	FactionNobles    = "nobles"
	FactionPlebs     = "plebs"
)

// Factions lists every faction in a stable order.
var Factions = []string{FactionMerchants, FactionNobles, FactionPlebs}

// Reputation maps faction name to standing in [0,100].
type Reputation map[string]int

// DefaultReputation returns the starting standing with every faction.
func DefaultReputation() Reputation {
	r := make(Reputation, len(Factions))
	for _, f := range Factions {
		r[f] = 50
	}
	return r
}

// Adjust adds delta to a faction's standing, clamped to [0,100].
func (r Reputation) Adjust(faction string, delta int) {
	r[faction] = ClampReputation(r[faction] + delta)
}

// ClampReputation bounds a standing to [0,100].
func ClampReputation(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// PriceState is the mutable price of one resource at one market.
type PriceState struct {
	CurrentPrice int64   `json:"current_price"`
	History      []int64 `json:"history"` // Chronological, oldest first
}

// Validate checks the price floor and history bound.
func (p *PriceState) Validate() error {
	if p.CurrentPrice < 1 {
		return errors.New("current price must be at least 1")
	}
	if len(p.History) == 0 {
		return errors.New("history must not be empty")
	}
	if len(p.History) > MaxHistory {
		return errors.New("history exceeds maximum length")
	}
	for _, h := range p.History {
		if h < 1 {
			return errors.New("history prices must be at least 1")
		}
	}
	return nil
}

// Push appends price to the history, evicting the oldest entries beyond MaxHistory.
func (p *PriceState) Push(price int64) {
	p.History = append(p.History, price)
	if over := len(p.History) - MaxHistory; over > 0 {
		p.History = append([]int64(nil), p.History[over:]...)
	}
}

// MarketState is the single persisted record of the market economy.
// It is loaded wholesale at startup and overwritten wholesale on save.
// Missing fields are defaulted by the engine; unknown fields are ignored.
type MarketState struct {
	MarketPrices     map[string]map[string]int64   `json:"marketPrices"`
	PriceHistory     map[string]map[string][]int64 `json:"priceHistory"`
	LastMarketUpdate time.Time                     `json:"lastMarketUpdate"`
	TradingSkill     int64                         `json:"tradingSkill"`
	Reputation       Reputation                    `json:"reputation"`
	TradeRoutes      []TradeRoute                  `json:"tradeRoutes"`
	News             []NewsItem                    `json:"news,omitempty"`
}
