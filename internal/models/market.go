// Package models defines the core domain records of the IMPERIUM market economy.
// These models describe static market definitions, per-resource price state,
// player trade routes, market news and executed trades.
// All models include built-in validation to ensure data integrity throughout the application.
//
// Terminology:
//   - Market: a trading venue with its own price for each listed resource.
//   - Listing: the static definition of one resource at one market.
//   - Trend: the fixed qualitative bias steering a resource's hourly drift.
package models

import (
	"errors"
	"fmt"
)

// Trend is the fixed qualitative bias of a resource listing.
type Trend string

const (
	TrendStable   Trend = "stable"
	TrendBullish  Trend = "bullish"
	TrendBearish  Trend = "bearish"
	TrendVolatile Trend = "volatile"
)

// Valid reports whether t is one of the known trends.
func (t Trend) Valid() bool {
	switch t {
	case TrendStable, TrendBullish, TrendBearish, TrendVolatile:
		return true
	}
	return false
}

// ResourceListing is the immutable definition of a resource traded at a market.
type ResourceListing struct {
	BasePrice int64 `json:"base_price" yaml:"base_price"` // Reference price in gold
	Trend     Trend `json:"trend" yaml:"trend"`
}

// Validate checks that the listing is usable by the price model.
func (l *ResourceListing) Validate() error {
	if l.BasePrice < 1 {
		return errors.New("base price must be at least 1")
	}
	if !l.Trend.Valid() {
		return fmt.Errorf("unknown trend %q", l.Trend)
	}
	return nil
}

// MarketDef is the immutable definition of a market loaded at startup.
type MarketDef struct {
	ID        string                     `json:"id" yaml:"id"`
	Name      string                     `json:"name" yaml:"name"`
	Location  string                     `json:"location" yaml:"location"`
	Resources map[string]ResourceListing `json:"resources" yaml:"resources"`
}

// Validate checks that all market fields are valid.
func (m *MarketDef) Validate() error {
	if m.ID == "" {
		return errors.New("market ID must not be empty")
	}
	if m.Name == "" {
		return errors.New("market name must not be empty")
	}
	if len(m.Resources) == 0 {
		return errors.New("market must list at least one resource")
	}
	for id, listing := range m.Resources {
		if id == "" {
			return errors.New("resource ID must not be empty")
		}
		if err := listing.Validate(); err != nil {
			return fmt.Errorf("resource %s: %w", id, err)
		}
	}
	return nil
}
